// Package packet implements the wire protocol: every message is a JSON
// envelope with a "type" string and a "payload" object.
package packet

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Packet type catalog.
const (
	PlayerConnect    = "PLAYER_CONNECT"
	PlayerDisconnect = "PLAYER_DISCONNECT"
	PlayerMove       = "PLAYER_MOVE"
	MoveReject       = "MOVE_REJECT"
	SectorUpdate     = "SECTOR_UPDATE"
	ChatMessage      = "CHAT_MESSAGE"
	HeartbeatPing    = "HEARTBEAT_PING"
	HeartbeatPong    = "HEARTBEAT_PONG"
	PortTrade        = "PORT_TRADE"
	TradeResult      = "TRADE_RESULT"
	ScanRequest      = "SCAN_REQUEST"
	ScanResult       = "SCAN_RESULT"
	DockRequest      = "DOCK_REQUEST"
	DockResult       = "DOCK_RESULT"
	DockAction       = "DOCK_ACTION"
	Error            = "ERROR"
)

var (
	// ErrInvalidArgument is returned by Encode for unusable inputs.
	ErrInvalidArgument = errors.New("invalid packet argument")
	// ErrMalformedPacket is returned by Decode for bytes that are not a
	// well-formed envelope.
	ErrMalformedPacket = errors.New("malformed packet")
)

// Packet is a decoded inbound message.
type Packet struct {
	Type    string
	Payload map[string]interface{}
}

// Envelope is the outbound wire form. Payload may be any JSON-marshalable
// value; handlers use typed structs, broadcasts may use maps.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// IsHeartbeat reports whether the packet is a keep-alive ping or pong.
// Heartbeats carry no semantic payload and are never broadcast.
func (p Packet) IsHeartbeat() bool {
	return p.Type == HeartbeatPing || p.Type == HeartbeatPong
}

// Encode serializes a packet to its wire form.
func Encode(packetType string, payload map[string]interface{}) ([]byte, error) {
	if packetType == "" {
		return nil, fmt.Errorf("%w: empty type", ErrInvalidArgument)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidArgument)
	}
	raw, err := json.Marshal(Envelope{Type: packetType, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return raw, nil
}

// Decode parses and validates a wire envelope. The top-level value must be
// a JSON object carrying a non-empty string "type" and an object "payload".
func Decode(raw []byte) (Packet, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Packet{}, fmt.Errorf("%w: invalid JSON", ErrMalformedPacket)
	}
	if fields == nil {
		return Packet{}, fmt.Errorf("%w: top-level value is not an object", ErrMalformedPacket)
	}

	rawType, ok := fields["type"]
	if !ok {
		return Packet{}, fmt.Errorf("%w: missing \"type\" field", ErrMalformedPacket)
	}
	var packetType string
	if err := json.Unmarshal(rawType, &packetType); err != nil || packetType == "" {
		return Packet{}, fmt.Errorf("%w: \"type\" must be a non-empty string", ErrMalformedPacket)
	}

	rawPayload, ok := fields["payload"]
	if !ok {
		return Packet{}, fmt.Errorf("%w: missing \"payload\" field", ErrMalformedPacket)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rawPayload, &payload); err != nil || payload == nil {
		return Packet{}, fmt.Errorf("%w: \"payload\" must be a JSON object", ErrMalformedPacket)
	}

	return Packet{Type: packetType, Payload: payload}, nil
}
