package stt

import (
	"log/slog"
	"time"
)

// Config holds recognizer configuration.
type Config struct {
	// Connection
	APIKey  string
	BaseURL string

	// Recognition
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	Channels       int
	UtteranceEndMs int // Silence gap that ends an utterance

	// KeepAliveInterval keeps the stream open across long pauses.
	KeepAliveInterval time.Duration

	// Pricing
	PricePerMinute float64

	// Timeout bounds the WebSocket handshake.
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring recognizers.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the streaming endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the spoken language (en, es, ...).
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithAudioFormat describes the incoming audio.
func WithAudioFormat(encoding string, sampleRate, channels int) Option {
	return func(c *Config) {
		c.Encoding = encoding
		c.SampleRate = sampleRate
		c.Channels = channels
	}
}

// WithUtteranceEnd sets the silence gap in milliseconds.
func WithUtteranceEnd(ms int) Option {
	return func(c *Config) { c.UtteranceEndMs = ms }
}

// WithKeepAlive sets the keepalive interval. Zero disables it.
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAliveInterval = d }
}

// WithPricePerMinute sets the list price used by Cost.
func WithPricePerMinute(price float64) Option {
	return func(c *Config) { c.PricePerMinute = price }
}

// WithTimeout sets the handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns defaults for 16 kHz mono PCM from a browser mic.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:           "wss://api.deepgram.com/v1/listen",
		Model:             "nova-2",
		Language:          "en",
		Encoding:          "linear16",
		SampleRate:        16000,
		Channels:          1,
		UtteranceEndMs:    1000,
		KeepAliveInterval: 8 * time.Second,
		PricePerMinute:    0.0043,
		Timeout:           10 * time.Second,
		Logger:            slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
