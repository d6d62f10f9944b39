// Package store persists voice session records and monthly usage.
//
// The voice server needs three operations: read a user's usage for the
// current month, create a session at admission, and finalize that session
// once at teardown. Postgres backs production; Memory backs development
// and tests.
package store

import (
	"context"
	"errors"
	"time"
)

// Status of a voice session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// ErrNotFound is returned when updating a session that does not exist or
// was already finalized.
var ErrNotFound = errors.New("store: session not found or not active")

// Session is one voice connection's record.
type Session struct {
	ID           string
	UserID       string
	Status       Status
	Language     string
	ProviderType string // e.g. "deepgram+openai+elevenlabs"
	StartedAt    time.Time
	CompletedAt  *time.Time

	DurationSeconds float64

	STTCost   float64
	LLMCost   float64
	TTSCost   float64
	TotalCost float64

	STTSeconds    float64
	LLMTokensIn   int
	LLMTokensOut  int
	TTSCharacters int
}

// SessionUpdate finalizes a session.
type SessionUpdate struct {
	Status          Status
	CompletedAt     time.Time
	DurationSeconds float64

	STTCost   float64
	LLMCost   float64
	TTSCost   float64
	TotalCost float64

	STTSeconds    float64
	LLMTokensIn   int
	LLMTokensOut  int
	TTSCharacters int
}

// Usage aggregates a user's consumption for one calendar month.
type Usage struct {
	UserID      string
	Month       string
	MinutesUsed float64
	Sessions    int
}

// Store is the persistence contract the gateway depends on.
type Store interface {
	// MonthlyUsage returns the user's usage for month (YYYY-MM). A user
	// with no sessions that month has zero usage, not an error.
	MonthlyUsage(ctx context.Context, userID, month string) (Usage, error)

	// CreateSession inserts an active session and returns its id.
	CreateSession(ctx context.Context, s *Session) (string, error)

	// UpdateSession finalizes an active session and rolls its minutes into
	// the month it started in.
	UpdateSession(ctx context.Context, id string, u SessionUpdate) error
}

// Month formats t as the usage bucket key.
func Month(t time.Time) string {
	return t.UTC().Format("2006-01")
}
