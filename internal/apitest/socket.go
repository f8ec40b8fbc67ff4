package apitest

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/acme/catalog-console/internal/realtime"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type socket struct {
	conn    *websocket.Conn
	sid     string
	writeMu sync.Mutex
	// rooms is guarded by Server.mu.
	rooms map[string]bool
}

func (so *socket) write(typ byte, data string) error {
	so.writeMu.Lock()
	defer so.writeMu.Unlock()
	_ = so.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return so.conn.WriteMessage(websocket.TextMessage, []byte(realtime.EncodeEnginePacket(typ, data)))
}

// WithoutPings advertises the ping interval in the handshake but never pings,
// so clients hit their heartbeat timeout.
func WithoutPings() Option {
	return func(s *Server) {
		s.silent = true
	}
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
		writeError(w, r, http.StatusBadRequest, "Unsupported protocol version")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	so := &socket{conn: conn, sid: newJobID(), rooms: map[string]bool{}}
	open, _ := json.Marshal(realtime.OpenPayload{
		Sid:          so.sid,
		Upgrades:     []string{},
		PingInterval: int(s.pingInterval.Milliseconds()),
		PingTimeout:  int(s.pingInterval.Milliseconds()),
		MaxPayload:   1000000,
	})
	if err := so.write(realtime.EngineOpen, string(open)); err != nil {
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.sockets[so] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		s.mu.Lock()
		delete(s.sockets, so)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	if !s.silent {
		go func() {
			t := time.NewTicker(s.pingInterval)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-t.C:
					if err := so.write(realtime.EnginePing, ""); err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		typ, payload, err := realtime.DecodeEnginePacket(string(data))
		if err != nil {
			continue
		}
		switch typ {
		case realtime.EngineClose:
			return
		case realtime.EnginePong:
			s.mu.Lock()
			s.pongs++
			s.mu.Unlock()
		case realtime.EngineMessage:
			if !s.handlePacket(so, payload) {
				return
			}
		}
	}
}

// handlePacket returns false when the client left.
func (s *Server) handlePacket(so *socket, payload string) bool {
	p, err := realtime.DecodeSocketPacket(payload)
	if err != nil {
		return true
	}
	switch p.Type {
	case realtime.SocketConnect:
		ack, _ := json.Marshal(map[string]string{"sid": so.sid})
		reply := realtime.Packet{Type: realtime.SocketConnect, Namespace: p.Namespace, AckID: -1, Data: ack}
		_ = so.write(realtime.EngineMessage, realtime.EncodeSocketPacket(reply))
	case realtime.SocketDisconnect:
		return false
	case realtime.SocketEvent:
		name, args, err := p.Event()
		if err != nil || name != realtime.EventJoinRoom {
			return true
		}
		var join realtime.JoinRoom
		if err := (realtime.Event{Name: name, Args: args}).Decode(&join); err != nil || join.JobID == "" {
			return true
		}
		s.mu.Lock()
		so.rooms[join.JobID] = true
		s.joined = append(s.joined, join.JobID)
		s.cond.Broadcast()
		autoRun := s.autoRun
		s.mu.Unlock()

		if autoRun {
			go func() {
				if err := s.RunJob(join.JobID); err != nil {
					zap.S().Named("apitest").Debugw("auto run skipped", "job_id", join.JobID, "error", err)
				}
			}()
		}
	}
	return true
}

// Emit sends event with payload to every socket that joined room.
func (s *Server) Emit(room, event string, payload any) {
	p, err := realtime.NewEventPacket(realtime.DefaultNamespace, event, payload)
	if err != nil {
		panic(err)
	}
	frame := realtime.EncodeSocketPacket(p)

	s.mu.Lock()
	targets := make([]*socket, 0, len(s.sockets))
	for so := range s.sockets {
		if so.rooms[room] {
			targets = append(targets, so)
		}
	}
	s.mu.Unlock()

	for _, so := range targets {
		_ = so.write(realtime.EngineMessage, frame)
	}
}

// WaitForJoin blocks until a client joined the room of jobID or timeout
// elapsed, and reports whether the join happened.
func (s *Server) WaitForJoin(jobID string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	t := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer t.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for !slices.Contains(s.joined, jobID) {
		if !time.Now().Before(deadline) {
			return false
		}
		s.cond.Wait()
	}
	return true
}

// Joined returns the rooms joined so far, in order.
func (s *Server) Joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.joined)
}

// Pongs returns how many pongs the server received.
func (s *Server) Pongs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pongs
}

// Sockets returns the number of open socket connections.
func (s *Server) Sockets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// Disconnect drops every socket from the server side.
func (s *Server) Disconnect() {
	s.mu.Lock()
	targets := make([]*socket, 0, len(s.sockets))
	for so := range s.sockets {
		targets = append(targets, so)
	}
	s.mu.Unlock()

	disconnect := realtime.EncodeSocketPacket(realtime.Packet{Type: realtime.SocketDisconnect, Namespace: realtime.DefaultNamespace, AckID: -1})
	for _, so := range targets {
		_ = so.write(realtime.EngineMessage, disconnect)
		_ = so.conn.Close()
	}
}

// Close drops the sockets and shuts the server down.
func (s *Server) Close() {
	s.Disconnect()
	s.Server.Close()
}
