package stt

import (
	"context"
	"sync"
)

// Mock implements Recognizer for testing. Events are injected with the
// Emit helpers.
type Mock struct {
	// ConnectErr is returned by Connect when set.
	ConnectErr error

	// PricePerMinute drives Cost.
	PricePerMinute float64

	mu           sync.Mutex
	events       chan Event
	closed       bool
	connected    bool
	disconnected bool
	chunks       [][]byte
	duration     float64
}

// NewMock creates a mock recognizer.
func NewMock() *Mock {
	return &Mock{events: make(chan Event, 256)}
}

// Connect implements Recognizer.
func (m *Mock) Connect(ctx context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return nil
}

// Events implements Recognizer.
func (m *Mock) Events() <-chan Event {
	return m.events
}

// SendAudio records the chunk when connected.
func (m *Mock) SendAudio(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected || m.disconnected {
		return
	}
	m.chunks = append(m.chunks, append([]byte(nil), chunk...))
}

// Disconnect implements Recognizer.
func (m *Mock) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	m.closeLocked()
	return nil
}

// DurationSeconds returns the value set by SetDuration.
func (m *Mock) DurationSeconds() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duration
}

// Cost implements Recognizer.
func (m *Mock) Cost() float64 {
	return PerMinute(m.DurationSeconds(), m.PricePerMinute)
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// EmitTranscript injects a final transcript segment.
func (m *Mock) EmitTranscript(text string) {
	m.emit(Event{Type: EventTranscript, Text: text})
}

// EmitUtteranceEnd injects an utterance-end signal.
func (m *Mock) EmitUtteranceEnd() {
	m.emit(Event{Type: EventUtteranceEnd})
}

// EmitError injects an upstream failure and closes the event channel.
func (m *Mock) EmitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- Event{Type: EventError, Err: err}
	m.closeLocked()
}

// Close simulates upstream ending the stream without an error event.
func (m *Mock) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// SetDuration fixes the reported stream duration.
func (m *Mock) SetDuration(seconds float64) {
	m.mu.Lock()
	m.duration = seconds
	m.mu.Unlock()
}

// AudioChunks returns copies of all forwarded chunks.
func (m *Mock) AudioChunks() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.chunks))
	copy(result, m.chunks)
	return result
}

// Connected reports whether Connect succeeded.
func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Disconnected reports whether Disconnect was called.
func (m *Mock) Disconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

func (m *Mock) emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

func (m *Mock) closeLocked() {
	if m.closed {
		return
	}
	m.closed = true
	close(m.events)
}

// Verify Mock implements Recognizer at compile time.
var _ Recognizer = (*Mock)(nil)
