package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Postgres is a Store backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, url string, maxConns int32, logger *slog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgres(pool, logger), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger.With("component", "store.postgres")}
}

// Pool exposes the underlying pool.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Close releases all pooled connections.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate applies the embedded schema migrations.
func (p *Postgres) Migrate(ctx context.Context) error {
	return Migrate(ctx, p.pool)
}

// Migrate applies the embedded schema migrations to pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		slog.Info("migration applied", "component", "store.postgres", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// MonthlyUsage implements Store.
func (p *Postgres) MonthlyUsage(ctx context.Context, userID, month string) (Usage, error) {
	usage := Usage{UserID: userID, Month: month}

	err := p.pool.QueryRow(ctx, `
		SELECT minutes_used, session_count
		FROM voice_usage
		WHERE user_id = $1 AND month = $2`,
		userID, month,
	).Scan(&usage.MinutesUsed, &usage.Sessions)

	if errors.Is(err, pgx.ErrNoRows) {
		return usage, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("read monthly usage: %w", err)
	}
	return usage, nil
}

// CreateSession implements Store.
func (p *Postgres) CreateSession(ctx context.Context, s *Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	s.Status = StatusActive

	_, err := p.pool.Exec(ctx, `
		INSERT INTO voice_sessions (id, user_id, status, language, provider_type, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, string(s.Status), s.Language, s.ProviderType, s.StartedAt,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return s.ID, nil
}

// UpdateSession implements Store. The session row and the usage rollup are
// written in one transaction.
func (p *Postgres) UpdateSession(ctx context.Context, id string, u SessionUpdate) error {
	completed := u.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		userID    string
		startedAt time.Time
	)
	err = tx.QueryRow(ctx, `
		UPDATE voice_sessions SET
			status = $2,
			completed_at = $3,
			duration_seconds = $4,
			stt_cost = $5,
			llm_cost = $6,
			tts_cost = $7,
			total_cost = $8,
			stt_seconds = $9,
			llm_tokens_in = $10,
			llm_tokens_out = $11,
			tts_characters = $12
		WHERE id = $1 AND status = 'active'
		RETURNING user_id, started_at`,
		id, string(u.Status), completed, u.DurationSeconds,
		u.STTCost, u.LLMCost, u.TTSCost, u.TotalCost,
		u.STTSeconds, u.LLMTokensIn, u.LLMTokensOut, u.TTSCharacters,
	).Scan(&userID, &startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO voice_usage (user_id, month, minutes_used, session_count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (user_id, month) DO UPDATE SET
			minutes_used = voice_usage.minutes_used + EXCLUDED.minutes_used,
			session_count = voice_usage.session_count + 1,
			updated_at = now()`,
		userID, Month(startedAt), u.DurationSeconds/60,
	)
	if err != nil {
		return fmt.Errorf("roll up usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Debug("session finalized", "session_id", id, "status", u.Status, "minutes", u.DurationSeconds/60)
	return nil
}

var _ Store = (*Postgres)(nil)
