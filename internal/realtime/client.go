package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acme/catalog-console/pkg/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultPath             = "/socket.io/"
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

var (
	ErrClosed           = errors.New("realtime connection closed")
	ErrServerDisconnect = errors.New("server disconnected the socket")
	ErrHeartbeatTimeout = errors.New("no ping from server within the heartbeat window")
)

// Handler receives events on the dispatch goroutine. Handlers never run
// concurrently with each other.
type Handler func(Event)

type ClientOptions func(c *Client)

// WithNamespace connects to a namespace other than "/".
func WithNamespace(namespace string) ClientOptions {
	return func(c *Client) {
		c.namespace = namespace
	}
}

// WithPath overrides the Socket.IO endpoint path.
func WithPath(path string) ClientOptions {
	return func(c *Client) {
		c.path = path
	}
}

func WithHandshakeTimeout(d time.Duration) ClientOptions {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

func WithHeader(h http.Header) ClientOptions {
	return func(c *Client) {
		c.header = h
	}
}

// Client is one Socket.IO connection. It does not reconnect: once Done is
// closed the client is unusable and Err tells why.
type Client struct {
	namespace        string
	path             string
	header           http.Header
	handshakeTimeout time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex
	sid     string
	// heartbeat is pingInterval+pingTimeout; zero disables the read deadline.
	heartbeat time.Duration

	handlersMu sync.Mutex
	handlers   map[string]map[uint64]Handler
	nextID     uint64

	queue *buffer

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
	wg        sync.WaitGroup
}

// Dial opens the realtime connection to server (the API base URL) and
// completes the Engine.IO and Socket.IO handshakes.
func Dial(ctx context.Context, server string, opts ...ClientOptions) (*Client, error) {
	c := &Client{
		namespace:        DefaultNamespace,
		path:             DefaultPath,
		handshakeTimeout: defaultHandshakeTimeout,
		handlers:         map[string]map[uint64]Handler{},
		queue:            newBuffer(),
		done:             make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	wsURL, err := websocketURL(server, c.path)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	c.conn = conn

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.dispatchLoop()

	zap.S().Named("realtime").Debugw("connected", "sid", c.sid, "namespace", c.namespace)
	return c, nil
}

func websocketURL(server, path string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server url %q: %w", server, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q in server url", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) handshake(ctx context.Context) error {
	deadline := time.Now().Add(c.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()

	typ, payload, err := c.readEngine()
	if err != nil {
		return fmt.Errorf("reading open packet: %w", err)
	}
	if typ != EngineOpen {
		return fmt.Errorf("expected open packet, got %q", typ)
	}
	var open OpenPayload
	if err := json.Unmarshal([]byte(payload), &open); err != nil {
		return fmt.Errorf("decoding open packet: %w", err)
	}
	if open.PingInterval > 0 {
		c.heartbeat = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	}

	connect := Packet{Type: SocketConnect, Namespace: c.namespace, AckID: -1}
	if err := c.writeEngine(EngineMessage, EncodeSocketPacket(connect)); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	for {
		typ, payload, err := c.readEngine()
		if err != nil {
			return fmt.Errorf("waiting for connect: %w", err)
		}
		switch typ {
		case EnginePing:
			if err := c.writeEngine(EnginePong, payload); err != nil {
				return err
			}
			continue
		case EngineMessage:
		default:
			continue
		}

		p, err := DecodeSocketPacket(payload)
		if err != nil {
			return fmt.Errorf("decoding connect reply: %w", err)
		}
		if p.Namespace != c.namespace {
			continue
		}
		switch p.Type {
		case SocketConnect:
			var ack struct {
				Sid string `json:"sid"`
			}
			if len(p.Data) > 0 {
				_ = json.Unmarshal(p.Data, &ack)
			}
			c.sid = ack.Sid
			return nil
		case SocketConnectError:
			var cerr struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(p.Data, &cerr)
			return fmt.Errorf("connect to namespace %s refused: %s", c.namespace, cerr.Message)
		}
	}
}

func (c *Client) readEngine() (byte, string, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, "", err
	}
	if mt != websocket.TextMessage {
		return EngineNoop, "", nil
	}
	return DecodeEnginePacket(string(data))
}

func (c *Client) writeEngine(typ byte, data string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(EncodeEnginePacket(typ, data)))
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	logger := zap.S().Named("realtime")

	for {
		if c.heartbeat > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.heartbeat))
		}
		typ, payload, err := c.readEngine()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				c.shutdown(ErrHeartbeatTimeout)
				return
			}
			c.shutdown(err)
			return
		}

		switch typ {
		case EnginePing:
			if err := c.writeEngine(EnginePong, payload); err != nil {
				c.shutdown(err)
				return
			}
		case EngineClose:
			c.shutdown(ErrServerDisconnect)
			return
		case EngineMessage:
			p, err := DecodeSocketPacket(payload)
			if err != nil {
				logger.Warnw("dropping undecodable packet", "error", err)
				continue
			}
			if p.Namespace != c.namespace {
				continue
			}
			switch p.Type {
			case SocketEvent:
				name, args, err := p.Event()
				if err != nil {
					logger.Warnw("dropping malformed event", "error", err)
					continue
				}
				c.queue.PushBack(Event{Name: name, Args: args})
			case SocketDisconnect:
				c.shutdown(ErrServerDisconnect)
				return
			}
		}
	}
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		e, ok := c.queue.Pop()
		if !ok {
			select {
			case <-c.queue.notify:
				continue
			case <-c.done:
				// deliver what was received before the connection went away
				for e, ok := c.queue.Pop(); ok; e, ok = c.queue.Pop() {
					c.dispatch(e)
				}
				return
			}
		}
		c.dispatch(e)
	}
}

func (c *Client) dispatch(e Event) {
	metrics.IncreaseRealtimeEventsTotalMetric(e.Name)

	c.handlersMu.Lock()
	registered := c.handlers[e.Name]
	ids := make([]uint64, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, registered[id])
	}
	c.handlersMu.Unlock()

	for _, h := range hs {
		h(e)
	}
}

// On registers h for the named event. The returned func removes exactly this
// registration and is safe to call more than once.
func (c *Client) On(event string, h Handler) (off func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = map[uint64]Handler{}
	}
	c.handlers[event][id] = h

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		delete(c.handlers[event], id)
	}
}

// Handlers returns the number of handlers registered for event.
func (c *Client) Handlers(event string) int {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	return len(c.handlers[event])
}

func (c *Client) OnProgress(h func(ProgressUpdate)) (off func()) {
	return c.On(EventProgressUpdate, func(e Event) {
		var p ProgressUpdate
		if err := e.Decode(&p); err != nil {
			zap.S().Named("realtime").Warnw("malformed progress_update", "error", err)
			return
		}
		h(p)
	})
}

func (c *Client) OnComplete(h func(TaskComplete)) (off func()) {
	return c.On(EventTaskComplete, func(e Event) {
		var p TaskComplete
		if err := e.Decode(&p); err != nil {
			zap.S().Named("realtime").Warnw("malformed task_complete", "error", err)
			return
		}
		h(p)
	})
}

func (c *Client) OnFailed(h func(TaskFailed)) (off func()) {
	return c.On(EventTaskFailed, func(e Event) {
		var p TaskFailed
		if err := e.Decode(&p); err != nil {
			zap.S().Named("realtime").Warnw("malformed task_failed", "error", err)
			return
		}
		h(p)
	})
}

// Emit sends an event to the server.
func (c *Client) Emit(ctx context.Context, event string, args ...any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := NewEventPacket(c.namespace, event, args...)
	if err != nil {
		return err
	}
	if err := c.writeEngine(EngineMessage, EncodeSocketPacket(p)); err != nil {
		return fmt.Errorf("emitting %s: %w", event, err)
	}
	return nil
}

// JoinRoom subscribes the connection to the events of jobID.
func (c *Client) JoinRoom(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required to join a room")
	}
	return c.Emit(ctx, EventJoinRoom, JoinRoom{JobID: jobID})
}

// Sid is the Socket.IO session id assigned by the server.
func (c *Client) Sid() string {
	return c.sid
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open or after a
// local Close.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close disconnects from the namespace and waits for the reader and the
// dispatcher to stop. Queued events are still delivered. Close must not be
// called from a Handler.
func (c *Client) Close() error {
	select {
	case <-c.done:
	default:
		disconnect := Packet{Type: SocketDisconnect, Namespace: c.namespace, AckID: -1}
		_ = c.writeEngine(EngineMessage, EncodeSocketPacket(disconnect))
	}
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		if err != nil {
			zap.S().Named("realtime").Warnw("connection closed", "error", err)
		}
		close(c.done)
		_ = c.conn.Close()
	})
}
