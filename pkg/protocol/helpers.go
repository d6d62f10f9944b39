package protocol

import (
	"encoding/base64"
	"fmt"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewStatusMessage creates the ready frame sent once per session.
func NewStatusMessage(sessionID string) (*Message, error) {
	return NewMessage(TypeStatus, StatusData{
		Status:    StatusReady,
		SessionID: sessionID,
	})
}

// NewTranscriptMessage creates a transcript frame.
func NewTranscriptMessage(text string) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{Text: text})
}

// NewAudioMessage base64-encodes audio bytes into an audio frame.
func NewAudioMessage(audio []byte) (*Message, error) {
	return NewMessage(TypeAudio, AudioData{
		Audio: base64.StdEncoding.EncodeToString(audio),
	})
}

// NewErrorMessage creates an error frame.
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// =============================================================================
// Client frame decoding
// =============================================================================

// ClientEventKind classifies a decoded client frame.
type ClientEventKind int

const (
	ClientAudio ClientEventKind = iota
	ClientStop
	ClientUpdateContext
)

func (k ClientEventKind) String() string {
	switch k {
	case ClientAudio:
		return "audio"
	case ClientStop:
		return "stop"
	case ClientUpdateContext:
		return "updateContext"
	default:
		return "unknown"
	}
}

// ClientEvent is a decoded client frame.
type ClientEvent struct {
	Kind         ClientEventKind
	Audio        []byte
	SystemPrompt string
}

// DecodeFrame decodes one WebSocket frame from the client.
// Binary frames are raw audio; text frames are JSON envelopes.
func DecodeFrame(binary bool, data []byte) (ClientEvent, error) {
	if binary {
		return ClientEvent{Kind: ClientAudio, Audio: data}, nil
	}

	msg, err := ParseMessage(data)
	if err != nil {
		return ClientEvent{}, err
	}

	switch msg.Type {
	case TypeAudio:
		audio, err := DecodeClientAudio(msg)
		if err != nil {
			return ClientEvent{}, err
		}
		return ClientEvent{Kind: ClientAudio, Audio: audio}, nil

	case TypeStop:
		return ClientEvent{Kind: ClientStop}, nil

	case TypeUpdateContext:
		var ctxData ContextData
		if err := msg.ParseData(&ctxData); err != nil {
			return ClientEvent{}, fmt.Errorf("%w: updateContext: %v", ErrMalformed, err)
		}
		return ClientEvent{Kind: ClientUpdateContext, SystemPrompt: ctxData.SystemPrompt}, nil

	default:
		return ClientEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Type)
	}
}

// DecodeClientAudio decodes the base64 string carried by a client audio frame.
func DecodeClientAudio(m *Message) ([]byte, error) {
	var encoded string
	if err := m.ParseData(&encoded); err != nil {
		return nil, fmt.Errorf("%w: audio data must be a base64 string", ErrMalformed)
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: audio base64: %v", ErrMalformed, err)
	}
	return audio, nil
}

// GetAudioData extracts audio data from a server audio message.
func (m *Message) GetAudioData() (*AudioData, error) {
	var data AudioData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudio decodes the base64 audio payload.
func (a *AudioData) DecodeAudio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Audio)
}

// GetErrorData extracts error data from a message.
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatusData extracts status data from a message.
func (m *Message) GetStatusData() (*StatusData, error) {
	var data StatusData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTranscriptData extracts transcript data from a message.
func (m *Message) GetTranscriptData() (*TranscriptData, error) {
	var data TranscriptData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
