package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type discriminates the closed set of pulse message kinds.
type Type string

const (
	TypeData      Type = "data"
	TypeKeepalive Type = "keepalive"
	TypePing      Type = "ping"
	TypePong      Type = "pong"
	TypeClose     Type = "close"
)

// Known reports whether t is one of the five protocol message kinds.
func (t Type) Known() bool {
	switch t {
	case TypeData, TypeKeepalive, TypePing, TypePong, TypeClose:
		return true
	}
	return false
}

// Message is the wire-level unit: one JSON object per line.
//
// Payload is opaque to the protocol layer; data payloads pass through
// unexamined. ID is an optional correlation identifier echoed by the
// receiver when replying to data, ping, or keepalive.
type Message struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
}

// New constructs an outbound message stamped with the sender's clock (unix ms).
func New(t Type) Message {
	return Message{
		Type:      t,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Validate checks outbound message shape. Inbound messages are not validated
// this way: an unknown inbound type is a dispatcher concern, not a decode error.
func (m Message) Validate() error {
	if !m.Type.Known() {
		return fmt.Errorf("%w: type=%q", ErrUnknownType, m.Type)
	}
	if m.Timestamp == 0 {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidMessage)
	}
	return nil
}

// SetPayload marshals v into the message payload.
func (m *Message) SetPayload(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	m.Payload = raw
	return nil
}

// StatusPayload is the keepalive acknowledgement body.
type StatusPayload struct {
	Status string `json:"status"`
}

// NotePayload is the pong reply body.
type NotePayload struct {
	Message string `json:"message"`
}

// ErrorPayload is the recoverable-error reply body for malformed lines.
type ErrorPayload struct {
	Error string `json:"error"`
}

const (
	StatusAlive          = "alive"
	NotePong             = "pong"
	ErrInvalidFormatText = "Invalid message format"
)
