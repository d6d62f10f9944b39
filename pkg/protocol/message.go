// Package protocol defines the WebSocket frames exchanged between a voice
// client and the conversation server.
//
// Every JSON frame is a type-discriminated envelope:
//
//	{"type": "<kind>", "data": <payload>}
//
// Audio may also arrive from the client as a raw binary WebSocket frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Server → Client messages
	TypeStatus     MessageType = "status"     // Session ready
	TypeTranscript MessageType = "transcript" // Final user transcript
	TypeError      MessageType = "error"      // Recoverable or fatal error

	// Client → Server messages
	TypeStop          MessageType = "stop"          // Graceful teardown
	TypeUpdateContext MessageType = "updateContext" // Replace system prompt

	// Bidirectional. Server sends {"audio": base64}, client sends a bare base64 string.
	TypeAudio MessageType = "audio"
)

// StatusReady is the only status value the server currently reports.
const StatusReady = "ready"

// ErrMalformed is returned when a client frame cannot be decoded.
var ErrMalformed = errors.New("protocol: malformed message")

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the given payload.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type: msgType,
		Data: rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return &msg, nil
}

// =============================================================================
// Server → Client payloads
// =============================================================================

// StatusData announces a ready session.
type StatusData struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// TranscriptData carries one finalized user transcript.
type TranscriptData struct {
	Text string `json:"text"`
}

// AudioData carries one synthesized sentence.
type AudioData struct {
	Audio string `json:"audio"` // base64 encoded
}

// ErrorData carries a human-readable error.
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Client → Server payloads
// =============================================================================

// ContextData replaces conversation context for subsequent turns.
type ContextData struct {
	SystemPrompt string `json:"systemPrompt"`
}
