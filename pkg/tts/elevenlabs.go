package tts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teslashibe/voxturn/internal/httpc"
)

const (
	elevenLabsBaseURL  = "https://api.elevenlabs.io"
	providerElevenLabs = "elevenlabs"
)

// ElevenLabs model IDs
const (
	// ModelTurboV2_5 is a fast multilingual model (~250ms latency).
	ModelTurboV2_5 = "eleven_turbo_v2_5"

	// ModelFlashV2_5 is the fastest multilingual model (~75ms latency).
	ModelFlashV2_5 = "eleven_flash_v2_5"

	// ModelMultilingualV2 is the highest quality multilingual model.
	ModelMultilingualV2 = "eleven_multilingual_v2"
)

// ElevenLabs implements Provider for ElevenLabs TTS.
type ElevenLabs struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTurboV2_5
	cfg.OutputFormat = "mp3_44100_128"
	cfg.PricePerChar = 180.0 / 1_000_000
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerElevenLabs, err)
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.elevenlabs"),
		baseURL: baseURL,
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
// voiceID may be a preset name (see ElevenLabsVoices) or a raw voice ID.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voiceID, language string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerElevenLabs, ErrEmptyText)
	}
	voiceID = ResolveElevenLabsVoice(voiceID)
	if voiceID == "" {
		return nil, WrapError(providerElevenLabs, ErrNoVoiceID)
	}
	start := time.Now()

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		e.baseURL, url.PathEscape(voiceID), url.QueryEscape(e.config.OutputFormat))

	header := http.Header{}
	header.Set("xi-api-key", e.config.APIKey)
	header.Set("Accept", "audio/mpeg")

	audio, err := postForAudio(ctx, e.client, providerElevenLabs, endpoint, header, e.buildPayload(text, language))
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	e.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"model", e.config.ModelID,
		"language", language,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    e.outputFormat(),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Cost prices synthesized characters.
func (e *ElevenLabs) Cost(chars int) float64 {
	return linearCost(chars, e.config.PricePerChar)
}

// Name returns "elevenlabs".
func (e *ElevenLabs) Name() string {
	return providerElevenLabs
}

// Close releases resources held by the provider.
func (e *ElevenLabs) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// buildPayload constructs the API request payload.
func (e *ElevenLabs) buildPayload(text, language string) map[string]interface{} {
	payload := map[string]interface{}{
		"text":     text,
		"model_id": e.config.ModelID,
		"voice_settings": map[string]interface{}{
			"stability":         e.config.VoiceSettings.Stability,
			"similarity_boost":  e.config.VoiceSettings.SimilarityBoost,
			"style":             e.config.VoiceSettings.Style,
			"use_speaker_boost": e.config.VoiceSettings.SpeakerBoost,
		},
	}
	if language != "" {
		payload["language_code"] = language
	}
	return payload
}

// outputFormat decodes formats like "mp3_44100_128" or "pcm_24000".
func (e *ElevenLabs) outputFormat() AudioFormat {
	f := AudioFormat{Encoding: e.config.OutputFormat, SampleRate: 44100, Channels: 1}
	parts := strings.Split(e.config.OutputFormat, "_")
	if len(parts) >= 2 {
		var hz int
		if _, err := fmt.Sscanf(parts[1], "%d", &hz); err == nil && hz > 0 {
			f.SampleRate = hz
		}
	}
	return f
}

// Verify ElevenLabs implements Provider at compile time.
var _ Provider = (*ElevenLabs)(nil)
