// Package config loads voxturn server configuration with viper.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// voxturn.yaml (in ".", "./config" or "$HOME/.voxturn"), and environment
// variables. Every key can be set as VOXTURN_<SECTION>_<KEY>; the usual
// vendor variables (DEEPGRAM_API_KEY, OPENAI_API_KEY, ...) are honored too.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Provider names accepted in the providers section.
const (
	ProviderDeepgram   = "deepgram"
	ProviderOpenAI     = "openai"
	ProviderGemini     = "gemini"
	ProviderElevenLabs = "elevenlabs"
	ProviderGoogle     = "google"
)

type Config struct {
	Server     ServerConfig                 `mapstructure:"server"`
	Log        LogConfig                    `mapstructure:"log"`
	Database   DatabaseConfig               `mapstructure:"database"`
	Auth       AuthConfig                   `mapstructure:"auth"`
	Quota      QuotaConfig                  `mapstructure:"quota"`
	Session    SessionConfig                `mapstructure:"session"`
	Providers  ProvidersConfig              `mapstructure:"providers"`
	Deepgram   DeepgramConfig               `mapstructure:"deepgram"`
	OpenAI     OpenAIConfig                 `mapstructure:"openai"`
	Gemini     GeminiConfig                 `mapstructure:"gemini"`
	ElevenLabs ElevenLabsConfig             `mapstructure:"elevenlabs"`
	GoogleTTS  GoogleTTSConfig              `mapstructure:"google_tts"`
	Voices     map[string]map[string]string `mapstructure:"voices"`
	Pricing    PricingConfig                `mapstructure:"pricing"`
	Timeouts   TimeoutsConfig               `mapstructure:"timeouts"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type QuotaConfig struct {
	MonthlyMinutes float64 `mapstructure:"monthly_minutes"`
}

// SessionConfig holds per-connection defaults.
type SessionConfig struct {
	Languages     []string `mapstructure:"languages"`
	SystemPrompt  string   `mapstructure:"system_prompt"`
	MaxPromptSize int      `mapstructure:"max_prompt_size"`
}

// ProvidersConfig selects one backend per pipeline stage.
type ProvidersConfig struct {
	STT string `mapstructure:"stt"`
	LLM string `mapstructure:"llm"`
	TTS string `mapstructure:"tts"`
}

type DeepgramConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Encoding       string        `mapstructure:"encoding"`
	SampleRate     int           `mapstructure:"sample_rate"`
	Channels       int           `mapstructure:"channels"`
	UtteranceEndMs int           `mapstructure:"utterance_end_ms"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	TTSModel    string  `mapstructure:"tts_model"`
	TTSFormat   string  `mapstructure:"tts_format"`
}

type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type ElevenLabsConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	OutputFormat string `mapstructure:"output_format"`
}

type GoogleTTSConfig struct {
	APIKey          string `mapstructure:"api_key"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Encoding        string `mapstructure:"encoding"`
	SampleRate      int    `mapstructure:"sample_rate"`
}

// PricingConfig holds vendor list prices used for session cost telemetry.
type PricingConfig struct {
	STTPerMinute        float64            `mapstructure:"stt_per_minute"`
	LLMInputPerMillion  float64            `mapstructure:"llm_input_per_million"`
	LLMOutputPerMillion float64            `mapstructure:"llm_output_per_million"`
	TTSPerMillionChars  map[string]float64 `mapstructure:"tts_per_million_chars"`
}

type TimeoutsConfig struct {
	STTConnect time.Duration `mapstructure:"stt_connect"`
	LLM        time.Duration `mapstructure:"llm"`
	TTS        time.Duration `mapstructure:"tts"`
	Shutdown   time.Duration `mapstructure:"shutdown"`
}

// envAliases are vendor variables read in addition to the VOXTURN_ form.
var envAliases = map[string][]string{
	"deepgram.api_key":            {"DEEPGRAM_API_KEY"},
	"openai.api_key":              {"OPENAI_API_KEY"},
	"openai.base_url":             {"OPENAI_BASE_URL"},
	"gemini.api_key":              {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"elevenlabs.api_key":          {"ELEVENLABS_API_KEY"},
	"google_tts.api_key":          {"GOOGLE_TTS_API_KEY"},
	"google_tts.credentials_file": {"GOOGLE_APPLICATION_CREDENTIALS"},
	"database.url":                {"DATABASE_URL"},
	"auth.jwt_secret":             {"JWT_SECRET"},
	"server.port":                 {"PORT"},
	"log.level":                   {"LOG_LEVEL"},
}

// SetDefaults registers every key with its default value. Keys must be
// registered for env-only overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "voxturn")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("quota.monthly_minutes", 30)

	v.SetDefault("session.languages", []string{"en", "es"})
	v.SetDefault("session.system_prompt", "You are a friendly voice assistant. Keep answers short and conversational.")
	v.SetDefault("session.max_prompt_size", 8192)

	v.SetDefault("providers.stt", ProviderDeepgram)
	v.SetDefault("providers.llm", ProviderOpenAI)
	v.SetDefault("providers.tts", ProviderElevenLabs)

	v.SetDefault("deepgram.api_key", "")
	v.SetDefault("deepgram.base_url", "wss://api.deepgram.com/v1/listen")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.encoding", "linear16")
	v.SetDefault("deepgram.sample_rate", 16000)
	v.SetDefault("deepgram.channels", 1)
	v.SetDefault("deepgram.utterance_end_ms", 1000)
	v.SetDefault("deepgram.keep_alive", "8s")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.tts_model", "tts-1")
	v.SetDefault("openai.tts_format", "mp3")

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.7)

	v.SetDefault("elevenlabs.api_key", "")
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")
	v.SetDefault("elevenlabs.model", "eleven_turbo_v2_5")
	v.SetDefault("elevenlabs.output_format", "mp3_44100_128")

	v.SetDefault("google_tts.api_key", "")
	v.SetDefault("google_tts.credentials_file", "")
	v.SetDefault("google_tts.encoding", "MP3")
	v.SetDefault("google_tts.sample_rate", 24000)

	v.SetDefault("voices", map[string]any{
		ProviderOpenAI:     map[string]any{"en": "alloy", "es": "nova"},
		ProviderElevenLabs: map[string]any{"en": "charlotte", "es": "aria"},
		ProviderGoogle:     map[string]any{"en": "en-US-Neural2-F", "es": "es-US-Neural2-A"},
	})

	v.SetDefault("pricing.stt_per_minute", 0.0043)
	v.SetDefault("pricing.llm_input_per_million", 0.15)
	v.SetDefault("pricing.llm_output_per_million", 0.60)
	v.SetDefault("pricing.tts_per_million_chars", map[string]any{
		ProviderOpenAI:     15.0,
		ProviderElevenLabs: 180.0,
		ProviderGoogle:     4.0,
	})

	v.SetDefault("timeouts.stt_connect", "10s")
	v.SetDefault("timeouts.llm", "60s")
	v.SetDefault("timeouts.tts", "30s")
	v.SetDefault("timeouts.shutdown", "10s")
}

// Load reads configuration. When path is empty the standard search paths
// are used and a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("voxturn")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".voxturn"))
		}
	}

	v.SetEnvPrefix("VOXTURN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		envs := append([]string{"VOXTURN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural settings. Missing provider credentials are
// reported later, when a session first needs the provider.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Quota.MonthlyMinutes <= 0 {
		return fmt.Errorf("config: quota.monthly_minutes must be positive")
	}
	if len(c.Session.Languages) == 0 {
		return fmt.Errorf("config: session.languages is empty")
	}
	switch c.Providers.STT {
	case ProviderDeepgram:
	default:
		return fmt.Errorf("config: unknown providers.stt %q", c.Providers.STT)
	}
	switch c.Providers.LLM {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("config: unknown providers.llm %q", c.Providers.LLM)
	}
	switch c.Providers.TTS {
	case ProviderOpenAI, ProviderElevenLabs, ProviderGoogle:
	default:
		return fmt.Errorf("config: unknown providers.tts %q", c.Providers.TTS)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// VoicesFor returns the language → voice map for a TTS provider.
func (c *Config) VoicesFor(provider string) map[string]string {
	out := make(map[string]string)
	for lang, voice := range c.Voices[provider] {
		out[strings.ToLower(lang)] = voice
	}
	return out
}

// TTSPerChar returns the per-character price for a TTS provider.
func (c *Config) TTSPerChar(provider string) float64 {
	return c.Pricing.TTSPerMillionChars[provider] / 1_000_000
}
