package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types.
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketAck          byte = '3'
	SocketConnectError byte = '4'
	SocketBinaryEvent  byte = '5'
	SocketBinaryAck    byte = '6'
)

const DefaultNamespace = "/"

var (
	ErrEmptyPacket       = errors.New("empty packet")
	ErrBinaryUnsupported = errors.New("binary packets are not supported")
)

// OpenPayload is the handshake sent by the server in the Engine.IO open packet.
// Intervals are in milliseconds.
type OpenPayload struct {
	Sid          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// EncodeEnginePacket frames data as an Engine.IO text packet.
func EncodeEnginePacket(typ byte, data string) string {
	return string(typ) + data
}

// DecodeEnginePacket splits a text frame into its type and payload.
func DecodeEnginePacket(frame string) (byte, string, error) {
	if frame == "" {
		return 0, "", ErrEmptyPacket
	}
	typ := frame[0]
	if typ < EngineOpen || typ > EngineNoop {
		return 0, "", fmt.Errorf("unknown engine packet type %q", typ)
	}
	return typ, frame[1:], nil
}

// Packet is a decoded Socket.IO packet.
type Packet struct {
	Type      byte
	Namespace string
	// AckID is -1 when the packet does not ask for an acknowledgement.
	AckID int64
	Data  json.RawMessage
}

// NewEventPacket builds an EVENT packet for name with the given arguments.
func NewEventPacket(namespace, name string, args ...any) (Packet, error) {
	items := make([]any, 0, len(args)+1)
	items = append(items, name)
	items = append(items, args...)
	data, err := json.Marshal(items)
	if err != nil {
		return Packet{}, fmt.Errorf("encoding event %s: %w", name, err)
	}
	return Packet{Type: SocketEvent, Namespace: namespace, AckID: -1, Data: data}, nil
}

// EncodeSocketPacket renders p without the Engine.IO prefix.
func EncodeSocketPacket(p Packet) string {
	var b strings.Builder
	b.WriteByte(p.Type)
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.AckID >= 0 {
		b.WriteString(strconv.FormatInt(p.AckID, 10))
	}
	b.Write(p.Data)
	return b.String()
}

// DecodeSocketPacket parses a Socket.IO packet (the payload of an Engine.IO
// message).
func DecodeSocketPacket(s string) (Packet, error) {
	if s == "" {
		return Packet{}, ErrEmptyPacket
	}
	p := Packet{Type: s[0], Namespace: DefaultNamespace, AckID: -1}
	if p.Type < SocketConnect || p.Type > SocketBinaryAck {
		return Packet{}, fmt.Errorf("unknown socket packet type %q", p.Type)
	}
	if p.Type == SocketBinaryEvent || p.Type == SocketBinaryAck {
		return Packet{}, ErrBinaryUnsupported
	}
	rest := s[1:]

	if strings.HasPrefix(rest, "/") {
		nsp, after, found := strings.Cut(rest, ",")
		p.Namespace = nsp
		if !found {
			after = ""
		}
		rest = after
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.ParseInt(rest[:i], 10, 64)
		if err != nil {
			return Packet{}, fmt.Errorf("invalid ack id: %w", err)
		}
		p.AckID = id
		rest = rest[i:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, fmt.Errorf("invalid packet payload %q", rest)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Event returns the event name and arguments of an EVENT packet.
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Type != SocketEvent {
		return "", nil, fmt.Errorf("packet type %q is not an event", p.Type)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(p.Data, &items); err != nil {
		return "", nil, fmt.Errorf("decoding event: %w", err)
	}
	if len(items) == 0 {
		return "", nil, fmt.Errorf("event without a name")
	}
	var name string
	if err := json.Unmarshal(items[0], &name); err != nil {
		return "", nil, fmt.Errorf("decoding event name: %w", err)
	}
	return name, items[1:], nil
}
