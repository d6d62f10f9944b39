// voxturn: real-time voice conversation server.
// Callers stream microphone audio over /ws/voice and receive spoken replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/voxturn/internal/config"
	"github.com/teslashibe/voxturn/internal/log"
	"github.com/teslashibe/voxturn/pkg/auth"
	"github.com/teslashibe/voxturn/pkg/gateway"
	"github.com/teslashibe/voxturn/pkg/store"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to config file (default: search ./voxturn.yaml)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := cfg.Log.Level
	if *debug {
		level = "debug"
	}
	log.Init(level)

	if err := run(cfg); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}

	gw := gateway.New(gateway.Config{
		QuotaMinutes:    cfg.Quota.MonthlyMinutes,
		Languages:       cfg.Session.Languages,
		Voices:          cfg.VoicesFor(cfg.Providers.TTS),
		SystemPrompt:    cfg.Session.SystemPrompt,
		MaxPromptSize:   cfg.Session.MaxPromptSize,
		ConnectTimeout:  cfg.Timeouts.STTConnect,
		FinalizeTimeout: cfg.Timeouts.Shutdown,
	}, verifier, st, gateway.NewDefaultFactory(cfg, log.L()), log.L())

	app := fiber.New(fiber.Config{
		AppName:               "voxturn",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(logger.New())
	}

	gw.RegisterRoutes(app)
	gw.RegisterAPIRoutes(app.Group("/api"))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"version":  version,
			"sessions": gw.Stats().ActiveSessions,
		})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		s := gw.Stats()
		return c.SendString(fmt.Sprintf(`# HELP voxturn_sessions_active Live voice sessions
# TYPE voxturn_sessions_active gauge
voxturn_sessions_active %d

# HELP voxturn_sessions_admitted_total Sessions admitted
# TYPE voxturn_sessions_admitted_total counter
voxturn_sessions_admitted_total %d

# HELP voxturn_sessions_rejected_total Admissions refused
# TYPE voxturn_sessions_rejected_total counter
voxturn_sessions_rejected_total %d

# HELP voxturn_setup_failures_total Sessions that failed provider setup
# TYPE voxturn_setup_failures_total counter
voxturn_setup_failures_total %d

# HELP voxturn_frames_received_total Client frames received
# TYPE voxturn_frames_received_total counter
voxturn_frames_received_total %d

# HELP voxturn_frames_sent_total Frames sent to clients
# TYPE voxturn_frames_sent_total counter
voxturn_frames_sent_total %d
`, s.ActiveSessions, s.SessionsAdmitted, s.SessionsRejected, s.SetupFailures, s.FramesReceived, s.FramesSent))
	})

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Addr()
		log.Info("listening",
			"addr", addr,
			"version", version,
			"stt", cfg.Providers.STT,
			"llm", cfg.Providers.LLM,
			"tts", cfg.Providers.TTS,
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if err := gw.Shutdown(shutdownCtx); err != nil {
		log.Warn("sessions still open at shutdown", "error", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	return nil
}

// openStore picks Postgres when a database URL is configured and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("database.url not set, sessions and usage are kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.OpenPostgres(ctx, cfg.Database.URL, cfg.Database.MaxConns, log.L())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return pg, pg.Close, nil
}

// devTokens are accepted when no JWT secret is configured.
var devTokens = auth.StaticVerifier{"dev": "dev-user"}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.JWTSecret == "" {
		if os.Getenv("GO_ENV") == "production" {
			return nil, errors.New("auth.jwt_secret is required in production")
		}
		log.Warn("auth.jwt_secret not set, accepting the static dev token")
		return devTokens, nil
	}
	return auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
}
