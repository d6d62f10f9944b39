package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/voxturn/internal/httpc"
)

const providerGoogle = "google"

// googleLocales picks a region when the voice name does not carry one.
var googleLocales = map[string]string{
	"en": "en-US",
	"es": "es-US",
}

// Google implements Provider for Google Cloud Text-to-Speech.
//
// Authentication uses, in order: an API key, a service account file, or
// application default credentials.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.OutputFormat = "MP3"
	cfg.SampleRate = 24000
	cfg.PricePerChar = 4.0 / 1_000_000
	cfg.Apply(opts...)

	clientOpts, err := googleClientOptions(ctx, cfg)
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "tts.google"),
	}, nil
}

func googleClientOptions(ctx context.Context, cfg *Config) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	if cfg.APIKey != "" {
		return append(opts, option.WithAPIKey(cfg.APIKey)), nil
	}

	var (
		creds *google.Credentials
		err   error
	)
	if cfg.CredentialsFile != "" {
		data, rerr := os.ReadFile(cfg.CredentialsFile)
		if rerr != nil {
			return nil, fmt.Errorf("read credentials: %w", rerr)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, texttospeech.CloudPlatformScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoAPIKey, err)
	}

	// Token refreshes and API calls share one transport with timeouts.
	base := context.WithValue(ctx, oauth2.HTTPClient, httpc.NewClient(cfg.Timeout))
	return append(opts, option.WithHTTPClient(oauth2.NewClient(base, creds.TokenSource))), nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
// voiceID is a Google voice name such as "en-US-Neural2-F".
func (g *Google) Synthesize(ctx context.Context, text, voiceID, language string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: googleLanguageCode(voiceID, language),
			Name:         voiceID,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   g.config.OutputFormat,
			SampleRateHertz: int64(g.config.SampleRate),
		},
	}

	resp, err := g.service.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			message := strings.TrimSpace(gerr.Body)
			if message == "" {
				message = gerr.Message
			}
			return nil, &APIError{
				StatusCode: gerr.Code,
				Message:    message,
				Provider:   providerGoogle,
			}
		}
		return nil, WrapError(providerGoogle, err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", voiceID,
	)

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   g.config.OutputFormat,
			SampleRate: g.config.SampleRate,
			Channels:   1,
		},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Cost prices synthesized characters.
func (g *Google) Cost(chars int) float64 {
	return linearCost(chars, g.config.PricePerChar)
}

// Name returns "google".
func (g *Google) Name() string {
	return providerGoogle
}

// Close is a no-op.
func (g *Google) Close() error {
	return nil
}

// googleLanguageCode derives a BCP-47 code, preferring the locale embedded
// in the voice name ("es-US-Neural2-A" -> "es-US").
func googleLanguageCode(voiceID, language string) string {
	if parts := strings.SplitN(voiceID, "-", 3); len(parts) == 3 {
		return parts[0] + "-" + parts[1]
	}
	if code, ok := googleLocales[strings.ToLower(language)]; ok {
		return code
	}
	if language != "" {
		return language
	}
	return googleLocales[DefaultLanguage]
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
