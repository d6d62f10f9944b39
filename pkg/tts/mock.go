package tts

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// SynthesizeFunc is called when Synthesize is invoked.
	// If nil, returns "audio:" followed by the text.
	SynthesizeFunc func(ctx context.Context, text, voiceID, language string) (*AudioResult, error)

	// PricePerChar drives Cost.
	PricePerChar float64

	// Tracking
	mu     sync.Mutex
	calls  []MockCall
	failOn map[string]error
}

// MockCall records one Synthesize invocation for verification.
type MockCall struct {
	Text     string
	VoiceID  string
	Language string
	Time     time.Time
}

// NewMock creates a new mock provider with sensible defaults.
func NewMock() *Mock {
	return &Mock{}
}

// FailOn makes Synthesize return err whenever it is asked for exactly text.
func (m *Mock) FailOn(text string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == nil {
		m.failOn = make(map[string]error)
	}
	m.failOn[text] = err
	return m
}

// Synthesize records the call, applies failure injection, then delegates
// to SynthesizeFunc.
func (m *Mock) Synthesize(ctx context.Context, text, voiceID, language string) (*AudioResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{
		Text:     text,
		VoiceID:  voiceID,
		Language: language,
		Time:     time.Now(),
	})
	err := m.failOn[text]
	fn := m.SynthesizeFunc
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, text, voiceID, language)
	}
	return &AudioResult{
		Audio:     []byte("audio:" + text),
		Format:    AudioFormat{Encoding: "pcm_24000", SampleRate: 24000, Channels: 1},
		CharCount: len(text),
	}, nil
}

// Cost prices characters at PricePerChar.
func (m *Mock) Cost(chars int) float64 {
	return linearCost(chars, m.PricePerChar)
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// Close is a no-op.
func (m *Mock) Close() error {
	return nil
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of Synthesize calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// WithError returns a mock that always fails with err.
func WithError(err error) *Mock {
	return &Mock{
		SynthesizeFunc: func(ctx context.Context, text, voiceID, language string) (*AudioResult, error) {
			return nil, err
		},
	}
}

// WithLatency wraps a mock to add artificial latency.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	original := m.SynthesizeFunc
	m.SynthesizeFunc = func(ctx context.Context, text, voiceID, language string) (*AudioResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if original != nil {
			return original(ctx, text, voiceID, language)
		}
		return &AudioResult{Audio: []byte("audio:" + text), CharCount: len(text)}, nil
	}
	return m
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
