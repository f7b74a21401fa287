// Package envelope defines the wire format exchanged over the WebSocket
// channel. Each text frame carries exactly one JSON-encoded Envelope.
package envelope

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope types. Join, Leave and Chat flow client to server; Chat,
// System and Error flow server to client.
const (
	TypeJoin   = "join"
	TypeLeave  = "leave"
	TypeChat   = "chat"
	TypeSystem = "system"
	TypeError  = "error"
)

// Envelope is the tagged union exchanged over the duplex channel. Which
// fields are populated depends on Type: join carries Room and Username,
// chat carries Content (plus ID and CreatedAt once the server has
// persisted it), system and error carry Text.
type Envelope struct {
	Type      string `json:"type"`
	Room      string `json:"room,omitempty"`
	Username  string `json:"username,omitempty"`
	Content   string `json:"content,omitempty"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"` // RFC 3339
}

// ErrMalformed reports a frame that could not be decoded at all.
type ErrMalformed struct {
	cause error
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("malformed envelope: %v", e.cause)
}

func (e *ErrMalformed) Unwrap() error { return e.cause }

// Decode parses a single frame. A decode failure is a protocol error on
// the sender's part, not a transport failure: callers log it, drop the
// frame and keep the connection open.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, &ErrMalformed{cause: err}
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, &ErrMalformed{cause: fmt.Errorf("missing type field")}
	}
	return env, nil
}

// Encode marshals an envelope for the wire.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// System builds a server notice, used for join/leave announcements.
func System(text string) Envelope {
	return Envelope{Type: TypeSystem, Text: text}
}

// Error builds a rejection sent back to a single offending session.
func Error(text string) Envelope {
	return Envelope{Type: TypeError, Text: text}
}
