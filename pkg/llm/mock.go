package llm

import (
	"context"
	"sync"
	"time"
)

// Mock implements Provider for testing.
type Mock struct {
	// StreamFunc is called when Stream is invoked.
	StreamFunc func(ctx context.Context, req *Request) (Stream, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Stream invocation. Request is a deep copy taken at
// call time.
type MockCall struct {
	Request Request
	Time    time.Time
}

// NewMock creates a mock that streams the given deltas and then finishes
// with the given usage (nil to exercise estimation).
func NewMock(usage *Usage, deltas ...string) *Mock {
	return &Mock{
		StreamFunc: func(ctx context.Context, req *Request) (Stream, error) {
			return &MockStream{Deltas: deltas, Usage: usage, ctx: ctx}, nil
		},
	}
}

// Stream records the call and delegates to StreamFunc.
func (m *Mock) Stream(ctx context.Context, req *Request) (Stream, error) {
	m.record(req)
	if m.StreamFunc == nil {
		return &MockStream{ctx: ctx}, nil
	}
	s, err := m.StreamFunc(ctx, req)
	if ms, ok := s.(*MockStream); ok && ms.ctx == nil {
		ms.ctx = ctx
	}
	return s, err
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
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Stream calls.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *Mock) record(req *Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	cp.Messages = append([]Message(nil), req.Messages...)
	m.calls = append(m.calls, MockCall{Request: cp, Time: time.Now()})
}

// MockStream replays Deltas one per Recv. After the deltas it returns Err
// if set, otherwise a final chunk carrying Usage followed by Done.
// When Wait is set, the first Recv blocks until Wait is closed.
type MockStream struct {
	Deltas []string
	Usage  *Usage
	Err    error
	Wait   <-chan struct{}

	ctx       context.Context
	i         int
	waited    bool
	usageSent bool
}

// NewMockStream creates a stream bound to ctx.
func NewMockStream(ctx context.Context, deltas ...string) *MockStream {
	return &MockStream{Deltas: deltas, ctx: ctx}
}

func (s *MockStream) Recv() (*Chunk, error) {
	if s.Wait != nil && !s.waited {
		s.waited = true
		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case <-s.Wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if s.i < len(s.Deltas) {
		d := s.Deltas[s.i]
		s.i++
		return &Chunk{Delta: d}, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Usage != nil && !s.usageSent {
		s.usageSent = true
		u := *s.Usage
		return &Chunk{Usage: &u}, nil
	}
	return &Chunk{Done: true}, nil
}

func (s *MockStream) Close() error {
	return nil
}

// Verify Mock implements Provider at compile time.
var _ Provider = (*Mock)(nil)
