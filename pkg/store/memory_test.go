package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonth(t *testing.T) {
	ts := time.Date(2026, time.March, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03", Month(ts))

	// Bucketed in UTC.
	local := time.Date(2026, time.April, 1, 1, 0, 0, 0, time.FixedZone("x", 3*3600))
	assert.Equal(t, "2026-03", Month(local))
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	usage, err := m.MonthlyUsage(ctx, "u1", "2026-10")
	require.NoError(t, err)
	assert.Zero(t, usage.MinutesUsed)

	started := time.Date(2026, time.October, 3, 12, 0, 0, 0, time.UTC)
	id, err := m.CreateSession(ctx, &Session{UserID: "u1", StartedAt: started, ProviderType: "mock"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	s, ok := m.Session(id)
	require.True(t, ok)
	assert.Equal(t, StatusActive, s.Status)

	err = m.UpdateSession(ctx, id, SessionUpdate{
		Status:          StatusCompleted,
		DurationSeconds: 120,
		STTCost:         0.0086,
		LLMCost:         0.00045,
		TTSCost:         0.00001,
		TotalCost:       0.00906,
		LLMTokensIn:     1000,
		LLMTokensOut:    500,
		TTSCharacters:   200,
	})
	require.NoError(t, err)

	s, _ = m.Session(id)
	assert.Equal(t, StatusCompleted, s.Status)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, 1000, s.LLMTokensIn)
	assert.InDelta(t, 0.00906, s.TotalCost, 1e-12)

	usage, err = m.MonthlyUsage(ctx, "u1", "2026-10")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, usage.MinutesUsed, 1e-9)
	assert.Equal(t, 1, usage.Sessions)

	// Finalized exactly once.
	err = m.UpdateSession(ctx, id, SessionUpdate{Status: StatusCompleted, DurationSeconds: 60})
	assert.ErrorIs(t, err, ErrNotFound)
	usage, _ = m.MonthlyUsage(ctx, "u1", "2026-10")
	assert.InDelta(t, 2.0, usage.MinutesUsed, 1e-9)
}

func TestMemoryUnknownSession(t *testing.T) {
	err := NewMemory().UpdateSession(context.Background(), "missing", SessionUpdate{Status: StatusCompleted})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySetUsage(t *testing.T) {
	m := NewMemory()
	m.SetUsage("u1", "2026-10", 30)

	usage, err := m.MonthlyUsage(context.Background(), "u1", "2026-10")
	require.NoError(t, err)
	assert.Equal(t, 30.0, usage.MinutesUsed)
	assert.Equal(t, 0, m.SessionCount())
}
