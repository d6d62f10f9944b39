package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database when VOXTURN_TEST_DATABASE_URL is set.
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	url := os.Getenv("VOXTURN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("VOXTURN_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := OpenPostgres(ctx, url, 4, nil)
	require.NoError(t, err)
	t.Cleanup(pg.Close)

	require.NoError(t, pg.Migrate(ctx))
	return pg
}

func TestPostgresLifecycle(t *testing.T) {
	pg := openTestPostgres(t)
	ctx := context.Background()
	userID := "test-" + uuid.NewString()
	month := Month(time.Now())

	usage, err := pg.MonthlyUsage(ctx, userID, month)
	require.NoError(t, err)
	assert.Zero(t, usage.MinutesUsed)

	id, err := pg.CreateSession(ctx, &Session{UserID: userID, Language: "es", ProviderType: "mock+mock+mock"})
	require.NoError(t, err)

	require.NoError(t, pg.UpdateSession(ctx, id, SessionUpdate{
		Status:          StatusCompleted,
		DurationSeconds: 90,
		TotalCost:       0.01,
		LLMTokensIn:     10,
	}))

	usage, err = pg.MonthlyUsage(ctx, userID, month)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, usage.MinutesUsed, 1e-9)
	assert.Equal(t, 1, usage.Sessions)

	err = pg.UpdateSession(ctx, id, SessionUpdate{Status: StatusCompleted, DurationSeconds: 90})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresMigrateIdempotent(t *testing.T) {
	pg := openTestPostgres(t)
	require.NoError(t, pg.Migrate(context.Background()))
}
