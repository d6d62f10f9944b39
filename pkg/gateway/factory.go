package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teslashibe/voxturn/internal/config"
	"github.com/teslashibe/voxturn/pkg/cost"
	"github.com/teslashibe/voxturn/pkg/llm"
	"github.com/teslashibe/voxturn/pkg/stt"
	"github.com/teslashibe/voxturn/pkg/tts"
)

// ProviderFactory builds fresh provider instances for each connection.
// Instances are never shared between sessions.
type ProviderFactory interface {
	NewRecognizer(language string) (stt.Recognizer, error)
	NewModel(ctx context.Context) (llm.Provider, error)
	NewSynthesizer(ctx context.Context) (tts.Provider, error)

	// Rates prices the model's tokens for the cost ledger.
	Rates() cost.LLMRates

	// Tag identifies the provider combination, e.g. "deepgram+openai+elevenlabs".
	Tag() string
}

// DefaultFactory selects providers from application config.
type DefaultFactory struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewDefaultFactory creates a factory backed by cfg.
func NewDefaultFactory(cfg *config.Config, logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{cfg: cfg, logger: logger}
}

// NewRecognizer implements ProviderFactory.
func (f *DefaultFactory) NewRecognizer(language string) (stt.Recognizer, error) {
	switch f.cfg.Providers.STT {
	case config.ProviderDeepgram:
		dg := f.cfg.Deepgram
		return recognizer(stt.NewDeepgram(
			stt.WithAPIKey(dg.APIKey),
			stt.WithBaseURL(dg.BaseURL),
			stt.WithModel(dg.Model),
			stt.WithLanguage(language),
			stt.WithAudioFormat(dg.Encoding, dg.SampleRate, dg.Channels),
			stt.WithUtteranceEnd(dg.UtteranceEndMs),
			stt.WithKeepAlive(dg.KeepAlive),
			stt.WithPricePerMinute(f.cfg.Pricing.STTPerMinute),
			stt.WithTimeout(f.cfg.Timeouts.STTConnect),
			stt.WithLogger(f.logger),
		))
	default:
		return nil, fmt.Errorf("unknown stt provider %q", f.cfg.Providers.STT)
	}
}

// NewModel implements ProviderFactory.
func (f *DefaultFactory) NewModel(ctx context.Context) (llm.Provider, error) {
	switch f.cfg.Providers.LLM {
	case config.ProviderOpenAI:
		oa := f.cfg.OpenAI
		return model(llm.NewOpenAI(
			llm.WithAPIKey(oa.APIKey),
			llm.WithBaseURL(oa.BaseURL),
			llm.WithModel(oa.Model),
			llm.WithMaxTokens(oa.MaxTokens),
			llm.WithTemperature(oa.Temperature),
			llm.WithTimeout(f.cfg.Timeouts.LLM),
			llm.WithLogger(f.logger),
		))
	case config.ProviderGemini:
		gm := f.cfg.Gemini
		return model(llm.NewGemini(ctx,
			llm.WithAPIKey(gm.APIKey),
			llm.WithModel(gm.Model),
			llm.WithMaxTokens(gm.MaxTokens),
			llm.WithTemperature(gm.Temperature),
			llm.WithTimeout(f.cfg.Timeouts.LLM),
			llm.WithLogger(f.logger),
		))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", f.cfg.Providers.LLM)
	}
}

// NewSynthesizer implements ProviderFactory.
func (f *DefaultFactory) NewSynthesizer(ctx context.Context) (tts.Provider, error) {
	price := tts.WithPricePerChar(f.cfg.TTSPerChar(f.cfg.Providers.TTS))
	timeout := tts.WithTimeout(f.cfg.Timeouts.TTS)
	logger := tts.WithLogger(f.logger)

	switch f.cfg.Providers.TTS {
	case config.ProviderOpenAI:
		oa := f.cfg.OpenAI
		return synthesizer(tts.NewOpenAI(
			tts.WithAPIKey(oa.APIKey),
			tts.WithBaseURL(oa.BaseURL),
			tts.WithModel(oa.TTSModel),
			tts.WithOutputFormat(oa.TTSFormat),
			price, timeout, logger,
		))
	case config.ProviderElevenLabs:
		el := f.cfg.ElevenLabs
		return synthesizer(tts.NewElevenLabs(
			tts.WithAPIKey(el.APIKey),
			tts.WithBaseURL(el.BaseURL),
			tts.WithModel(el.Model),
			tts.WithOutputFormat(el.OutputFormat),
			price, timeout, logger,
		))
	case config.ProviderGoogle:
		g := f.cfg.GoogleTTS
		return synthesizer(tts.NewGoogle(ctx,
			tts.WithAPIKey(g.APIKey),
			tts.WithCredentialsFile(g.CredentialsFile),
			tts.WithOutputFormat(g.Encoding),
			tts.WithSampleRate(g.SampleRate),
			price, timeout, logger,
		))
	default:
		return nil, fmt.Errorf("unknown tts provider %q", f.cfg.Providers.TTS)
	}
}

// Rates implements ProviderFactory.
func (f *DefaultFactory) Rates() cost.LLMRates {
	return cost.LLMRates{
		InputPerToken:  cost.PerMillion(f.cfg.Pricing.LLMInputPerMillion),
		OutputPerToken: cost.PerMillion(f.cfg.Pricing.LLMOutputPerMillion),
	}
}

// Tag implements ProviderFactory.
func (f *DefaultFactory) Tag() string {
	p := f.cfg.Providers
	return p.STT + "+" + p.LLM + "+" + p.TTS
}

// The helpers below keep a failed constructor's typed nil pointer out of
// the returned interface.

func recognizer[P stt.Recognizer](p P, err error) (stt.Recognizer, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

func model[P llm.Provider](p P, err error) (llm.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

func synthesizer[P tts.Provider](p P, err error) (tts.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

var _ ProviderFactory = (*DefaultFactory)(nil)
