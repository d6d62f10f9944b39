package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/teslashibe/voxturn/internal/config"
	"github.com/teslashibe/voxturn/internal/log"
	"github.com/teslashibe/voxturn/pkg/llm"
	"github.com/teslashibe/voxturn/pkg/stt"
	"github.com/teslashibe/voxturn/pkg/tts"
)

func TestDefaultFactoryMissingCredentials(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderDeepgram,
			LLM: config.ProviderOpenAI,
			TTS: config.ProviderOpenAI,
		},
	}
	f := NewDefaultFactory(cfg, log.Discard())

	rec, err := f.NewRecognizer("en")
	if !errors.Is(err, stt.ErrNoAPIKey) {
		t.Errorf("NewRecognizer() error = %v, want ErrNoAPIKey", err)
	}
	if rec != nil {
		t.Errorf("NewRecognizer() = %#v, want a nil interface", rec)
	}

	m, err := f.NewModel(context.Background())
	if !errors.Is(err, llm.ErrNoAPIKey) {
		t.Errorf("NewModel() error = %v, want ErrNoAPIKey", err)
	}
	if m != nil {
		t.Errorf("NewModel() = %#v, want a nil interface", m)
	}

	s, err := f.NewSynthesizer(context.Background())
	if !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("NewSynthesizer() error = %v, want ErrNoAPIKey", err)
	}
	if s != nil {
		t.Errorf("NewSynthesizer() = %#v, want a nil interface", s)
	}
}

func TestDefaultFactoryTag(t *testing.T) {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderDeepgram,
			LLM: config.ProviderGemini,
			TTS: config.ProviderElevenLabs,
		},
	}
	if got := NewDefaultFactory(cfg, nil).Tag(); got != "deepgram+gemini+elevenlabs" {
		t.Errorf("Tag() = %q", got)
	}
}
