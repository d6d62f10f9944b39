// Package gateway admits voice callers and runs one orchestrator per
// WebSocket connection.
//
// Admission happens before the upgrade, in this order: bearer token (401),
// request parameters (400), monthly quota (429), upgrade header (426) and
// session creation (500). Refused requests receive {"error": "..."} and no
// provider is contacted.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/voxturn/internal/log"
	"github.com/teslashibe/voxturn/pkg/auth"
	"github.com/teslashibe/voxturn/pkg/cost"
	"github.com/teslashibe/voxturn/pkg/llm"
	"github.com/teslashibe/voxturn/pkg/protocol"
	"github.com/teslashibe/voxturn/pkg/store"
	"github.com/teslashibe/voxturn/pkg/stt"
	"github.com/teslashibe/voxturn/pkg/tts"
	"github.com/teslashibe/voxturn/pkg/voice"
)

const admissionKey = "voxturn.admission"

// Config holds admission and session settings.
type Config struct {
	QuotaMinutes    float64
	Languages       []string
	Voices          tts.Voices
	SystemPrompt    string // Used when the request carries none
	MaxPromptSize   int    // Zero means unlimited
	ConnectTimeout  time.Duration
	FinalizeTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		QuotaMinutes:    30,
		Languages:       []string{"en", "es"},
		ConnectTimeout:  10 * time.Second,
		FinalizeTimeout: 5 * time.Second,
	}
}

// Gateway owns admission and the live connection registry.
type Gateway struct {
	cfg      Config
	verifier auth.Verifier
	store    store.Store
	factory  ProviderFactory
	logger   *slog.Logger

	registry *registry
	stats    stats

	// Cancelled by Shutdown to end every live session.
	baseCtx context.Context
	cancel  context.CancelFunc
	active  sync.WaitGroup
}

// New creates a gateway.
func New(cfg Config, verifier auth.Verifier, st store.Store, factory ProviderFactory, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:      cfg,
		verifier: verifier,
		store:    st,
		factory:  factory,
		logger:   log.Component(logger, "gateway"),
		registry: newRegistry(),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// RegisterRoutes registers the voice WebSocket endpoint.
func (g *Gateway) RegisterRoutes(app fiber.Router) {
	app.Get("/ws/voice", g.Admit, websocket.New(g.handle))
}

// RegisterAPIRoutes registers read-only session endpoints.
func (g *Gateway) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/sessions", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": g.registry.infos(),
			"count":    g.registry.count(),
		})
	})

	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(g.Stats())
	})
}

// Stats returns gateway statistics.
func (g *Gateway) Stats() Stats {
	return Stats{
		ActiveSessions:    g.registry.count(),
		SessionsAdmitted:  g.stats.admitted.Load(),
		SessionsRejected:  g.stats.rejected.Load(),
		SetupFailures:     g.stats.setupFailures.Load(),
		SessionsCompleted: g.stats.completed.Load(),
		FramesReceived:    g.stats.framesReceived.Load(),
		FramesSent:        g.stats.framesSent.Load(),
	}
}

// Session returns the live connection for a session id, or nil.
func (g *Gateway) Session(id string) *Connection {
	return g.registry.get(id)
}

// Shutdown ends every live session and waits for their cleanup.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Admit runs the pre-upgrade checks and creates the session record.
func (g *Gateway) Admit(c *fiber.Ctx) error {
	ctx := c.UserContext()

	token, ok := auth.ParseBearer(c.Get(fiber.HeaderAuthorization))
	if !ok {
		g.stats.rejected.Add(1)
		return reject(c, fiber.StatusUnauthorized, "missing bearer token")
	}
	userID, err := g.verifier.Verify(ctx, token)
	if err != nil {
		g.stats.rejected.Add(1)
		g.logger.Info("admission refused", "reason", "auth", "error", err)
		return reject(c, fiber.StatusUnauthorized, "invalid token")
	}

	language := strings.ToLower(c.Query("language", "en"))
	if !slices.Contains(g.cfg.Languages, language) {
		g.stats.rejected.Add(1)
		return reject(c, fiber.StatusBadRequest, ErrUnsupportedLanguage.Error()+": "+language)
	}

	prompt := c.Query("systemPrompt")
	if prompt == "" {
		prompt = g.cfg.SystemPrompt
	}
	if g.cfg.MaxPromptSize > 0 && len(prompt) > g.cfg.MaxPromptSize {
		g.stats.rejected.Add(1)
		return reject(c, fiber.StatusBadRequest, ErrPromptTooLong.Error())
	}

	now := time.Now().UTC()
	usage, err := g.store.MonthlyUsage(ctx, userID, store.Month(now))
	if err != nil {
		g.stats.rejected.Add(1)
		g.logger.Error("read monthly usage", "user_id", userID, "error", err)
		return reject(c, fiber.StatusInternalServerError, "failed to read usage")
	}
	if usage.MinutesUsed >= g.cfg.QuotaMinutes {
		g.stats.rejected.Add(1)
		g.logger.Info("admission refused", "reason", "quota", "user_id", userID, "minutes_used", usage.MinutesUsed)
		return reject(c, fiber.StatusTooManyRequests, ErrQuotaExceeded.Error())
	}

	if !websocket.IsWebSocketUpgrade(c) {
		g.stats.rejected.Add(1)
		return reject(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
	}

	session := &store.Session{
		UserID:       userID,
		Language:     language,
		ProviderType: g.factory.Tag(),
		StartedAt:    now,
	}
	sessionID, err := g.store.CreateSession(ctx, session)
	if err != nil {
		g.stats.rejected.Add(1)
		g.logger.Error("create session", "user_id", userID, "error", err)
		return reject(c, fiber.StatusInternalServerError, "failed to create session")
	}

	g.stats.admitted.Add(1)
	c.Locals(admissionKey, &admission{
		SessionID:    sessionID,
		UserID:       userID,
		Language:     language,
		SystemPrompt: prompt,
		StartedAt:    now,
	})
	return c.Next()
}

// providers are the per-connection adapter instances.
type providers struct {
	recognizer  stt.Recognizer
	model       llm.Provider
	synthesizer tts.Provider
}

func (p *providers) close() {
	if p.model != nil {
		_ = p.model.Close()
	}
	if p.synthesizer != nil {
		_ = p.synthesizer.Close()
	}
}

// handle runs one upgraded connection to completion.
func (g *Gateway) handle(ws *websocket.Conn) {
	adm, ok := ws.Locals(admissionKey).(*admission)
	if !ok {
		g.logger.Error("upgraded without admission")
		_ = ws.Close()
		return
	}

	g.active.Add(1)
	defer g.active.Done()

	conn := newConnection(adm, ws, log.Session(g.logger, adm.SessionID, adm.UserID), &g.stats)
	total := g.registry.add(conn)
	conn.logger.Info("connected", "language", adm.Language, "active", total)
	defer func() {
		total := g.registry.remove(conn.ID)
		conn.logger.Info("disconnected", "active", total)
	}()

	ctx, cancel := context.WithCancel(g.baseCtx)
	defer cancel()

	p, err := g.setup(ctx, conn)
	if err != nil {
		g.stats.setupFailures.Add(1)
		conn.logger.Error("session setup failed", "error", err)
		conn.sendError("session setup failed: " + err.Error())
		conn.setState(LifecycleClosed)
		g.finalizeFailed(conn, p)
		conn.close()
		return
	}

	ledger := cost.NewLedger(g.factory.Rates())
	orch, err := voice.New(voice.Deps{
		Recognizer:  p.recognizer,
		Model:       p.model,
		Synthesizer: p.synthesizer,
		Ledger:      ledger,
		Sink:        conn,
	}, voice.Options{
		SystemPrompt: adm.SystemPrompt,
		Language:     adm.Language,
		VoiceID:      g.cfg.Voices.VoiceFor(adm.Language),
		Logger:       conn.logger,
		Metrics:      conn.metrics,
	})
	if err != nil {
		g.stats.setupFailures.Add(1)
		conn.sendError("session setup failed")
		conn.setState(LifecycleClosed)
		g.finalizeFailed(conn, p)
		conn.close()
		return
	}

	conn.setState(LifecycleReady)
	if msg, err := protocol.NewStatusMessage(conn.ID); err == nil {
		_ = conn.Send(msg)
	}
	conn.setState(LifecycleActive)

	client := make(chan protocol.ClientEvent, 64)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.readLoop(ctx, client)
	}()

	outcome := orch.Run(ctx, client)
	conn.logger.Info("session ending", "reason", outcome.Reason, "error", outcome.Err)

	conn.setState(LifecycleClosing)
	g.cleanup(conn, p, ledger, outcome)

	cancel()
	conn.close()
	<-readDone
	conn.setState(LifecycleClosed)
}

// setup builds and connects the adapters. On error the returned providers
// hold whatever was created so far.
func (g *Gateway) setup(ctx context.Context, conn *Connection) (*providers, error) {
	p := &providers{}

	rec, err := g.factory.NewRecognizer(conn.Language)
	if err != nil {
		return p, fmt.Errorf("speech recognition: %w", err)
	}
	p.recognizer = rec

	model, err := g.factory.NewModel(ctx)
	if err != nil {
		return p, fmt.Errorf("language model: %w", err)
	}
	p.model = model

	synth, err := g.factory.NewSynthesizer(ctx)
	if err != nil {
		return p, fmt.Errorf("speech synthesis: %w", err)
	}
	p.synthesizer = synth

	connectCtx := ctx
	if g.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, g.cfg.ConnectTimeout)
		defer cancel()
	}
	if err := rec.Connect(connectCtx); err != nil {
		return p, fmt.Errorf("speech recognition: %w", err)
	}
	return p, nil
}

// cleanup finalizes the session exactly once: it releases the recognizer,
// prices the ledger and persists the record. Persistence failures are
// logged only.
func (g *Gateway) cleanup(conn *Connection, p *providers, ledger *cost.Ledger, outcome voice.Outcome) {
	conn.cleanupOnce.Do(func() {
		if err := p.recognizer.Disconnect(); err != nil {
			conn.logger.Debug("recognizer disconnect", "error", err)
		}
		defer p.close()

		ledger.ObserveSTTSeconds(p.recognizer.DurationSeconds())
		summary := ledger.Summarize(p.recognizer.Cost(), p.synthesizer.Cost)

		status := store.StatusCompleted
		if outcome.Reason == voice.ReasonRecognizerClosed {
			status = store.StatusError
		}

		completed := time.Now().UTC()
		update := store.SessionUpdate{
			Status:          status,
			CompletedAt:     completed,
			DurationSeconds: completed.Sub(conn.Connected).Seconds(),
			STTCost:         summary.STTCost,
			LLMCost:         summary.LLMCost,
			TTSCost:         summary.TTSCost,
			TotalCost:       summary.TotalCost,
			STTSeconds:      summary.STTSeconds,
			LLMTokensIn:     summary.LLMTokensIn,
			LLMTokensOut:    summary.LLMTokensOut,
			TTSCharacters:   summary.TTSCharacters,
		}
		g.persist(conn, update)
		g.stats.completed.Add(1)

		conn.logger.Info("session finalized",
			"status", status,
			"duration_s", update.DurationSeconds,
			"total_cost", summary.TotalCost,
			"llm_tokens_in", summary.LLMTokensIn,
			"llm_tokens_out", summary.LLMTokensOut,
			"tts_chars", summary.TTSCharacters,
		)
	})
}

// finalizeFailed closes out a session whose setup failed.
func (g *Gateway) finalizeFailed(conn *Connection, p *providers) {
	conn.cleanupOnce.Do(func() {
		completed := time.Now().UTC()
		g.persist(conn, store.SessionUpdate{
			Status:          store.StatusError,
			CompletedAt:     completed,
			DurationSeconds: completed.Sub(conn.Connected).Seconds(),
		})

		if p == nil {
			return
		}
		if p.recognizer != nil {
			_ = p.recognizer.Disconnect()
		}
		p.close()
	})
}

func (g *Gateway) persist(conn *Connection, update store.SessionUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.FinalizeTimeout)
	defer cancel()

	if err := g.store.UpdateSession(ctx, conn.ID, update); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			conn.logger.Warn("session already finalized")
			return
		}
		conn.logger.Error("persist session", "error", err)
	}
}
