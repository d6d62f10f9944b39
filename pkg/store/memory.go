package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]Session
	usage    map[string]Usage // key: userID + "|" + month
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
		usage:    make(map[string]Usage),
	}
}

func usageKey(userID, month string) string {
	return userID + "|" + month
}

// MonthlyUsage implements Store.
func (m *Memory) MonthlyUsage(_ context.Context, userID, month string) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usage[usageKey(userID, month)]
	if !ok {
		return Usage{UserID: userID, Month: month}, nil
	}
	return u, nil
}

// CreateSession implements Store.
func (m *Memory) CreateSession(_ context.Context, s *Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	s.Status = StatusActive
	m.sessions[s.ID] = *s
	return s.ID, nil
}

// UpdateSession implements Store.
func (m *Memory) UpdateSession(_ context.Context, id string, u SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.Status != StatusActive {
		return ErrNotFound
	}

	completed := u.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	s.Status = u.Status
	s.CompletedAt = &completed
	s.DurationSeconds = u.DurationSeconds
	s.STTCost = u.STTCost
	s.LLMCost = u.LLMCost
	s.TTSCost = u.TTSCost
	s.TotalCost = u.TotalCost
	s.STTSeconds = u.STTSeconds
	s.LLMTokensIn = u.LLMTokensIn
	s.LLMTokensOut = u.LLMTokensOut
	s.TTSCharacters = u.TTSCharacters
	m.sessions[id] = s

	month := Month(s.StartedAt)
	key := usageKey(s.UserID, month)
	usage := m.usage[key]
	usage.UserID = s.UserID
	usage.Month = month
	usage.MinutesUsed += u.DurationSeconds / 60
	usage.Sessions++
	m.usage[key] = usage

	return nil
}

// Session returns a copy of the stored session.
func (m *Memory) Session(id string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// SessionCount returns the number of sessions ever created.
func (m *Memory) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sessions returns copies of every stored session, oldest first.
func (m *Memory) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// SetUsage seeds a user's monthly minutes.
func (m *Memory) SetUsage(userID, month string, minutes float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := usageKey(userID, month)
	u := m.usage[key]
	u.UserID = userID
	u.Month = month
	u.MinutesUsed = minutes
	m.usage[key] = u
}

var _ Store = (*Memory)(nil)
