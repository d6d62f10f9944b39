package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/voxturn/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world", "v1", "en")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(result.Audio) != "audio:Hello world" {
			t.Errorf("unexpected audio %q", result.Audio)
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
	})

	t.Run("Failure injection is per text", func(t *testing.T) {
		boom := errors.New("boom")
		mock.FailOn("bad sentence.", boom)

		if _, err := mock.Synthesize(ctx, "bad sentence.", "v1", "en"); !errors.Is(err, boom) {
			t.Errorf("expected injected error, got %v", err)
		}
		if _, err := mock.Synthesize(ctx, "good sentence.", "v1", "en"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		calls := mock.Calls()
		if len(calls) != 3 {
			t.Fatalf("expected 3 calls, got %d", len(calls))
		}
		if calls[0].VoiceID != "v1" || calls[0].Language != "en" {
			t.Errorf("unexpected call %+v", calls[0])
		}
	})
}

func TestMockWithError(t *testing.T) {
	expectedErr := errors.New("test error")
	mock := tts.WithError(expectedErr)

	_, err := mock.Synthesize(context.Background(), "test", "", "en")
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	start := time.Now()
	if _, err := mock.Synthesize(context.Background(), "test", "", "en"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("expected latency to be applied")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := mock.Synthesize(ctx, "test", "", "en"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCostIsLinear(t *testing.T) {
	p, err := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithPricePerChar(0.05/1_000_000))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	if got := p.Cost(200); math.Abs(got-0.00001) > 1e-12 {
		t.Errorf("Cost(200) = %v, want 0.00001", got)
	}
	if got := p.Cost(400); math.Abs(got-2*p.Cost(200)) > 1e-15 {
		t.Errorf("Cost not linear: %v", got)
	}
	if p.Cost(0) != 0 {
		t.Error("Cost(0) should be zero")
	}
}

func TestVoicesFor(t *testing.T) {
	v := tts.Voices{"en": "alloy", "es": "nova"}

	tests := map[string]string{
		"en": "alloy",
		"es": "nova",
		"ES": "nova",
		"fr": "alloy",
	}
	for lang, want := range tests {
		if got := v.VoiceFor(lang); got != want {
			t.Errorf("VoiceFor(%q) = %q, want %q", lang, got, want)
		}
	}
}

func TestResolveElevenLabsVoice(t *testing.T) {
	if got := tts.ResolveElevenLabsVoice("charlotte"); got != "XB0fDUnXU5powFXDhCwa" {
		t.Errorf("preset not resolved: %q", got)
	}
	if got := tts.ResolveElevenLabsVoice("rawVoiceID123"); got != "rawVoiceID123" {
		t.Errorf("raw ID changed: %q", got)
	}
}

func TestOpenAISynthesize(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte("mp3-bytes"))
	}))
	defer server.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("test-key"), tts.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	defer p.Close()

	result, err := p.Synthesize(context.Background(), "Hola.", tts.VoiceNova, "es")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != "mp3-bytes" {
		t.Errorf("unexpected audio %q", result.Audio)
	}
	if payload["voice"] != "nova" || payload["input"] != "Hola." || payload["model"] != tts.ModelTTS1 {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var (
		path    string
		payload map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("unexpected key %q", r.Header.Get("xi-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte("audio"))
	}))
	defer server.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("test-key"), tts.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}

	result, err := p.Synthesize(context.Background(), "Hola, ¿qué tal?", "aria", "es")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != "audio" {
		t.Errorf("unexpected audio %q", result.Audio)
	}
	if path != "/v1/text-to-speech/9BWtsMINqrJLrRacOk9x" {
		t.Errorf("unexpected path %s", path)
	}
	if payload["language_code"] != "es" {
		t.Errorf("language_code = %v, want es", payload["language_code"])
	}
	if result.Format.SampleRate != 44100 {
		t.Errorf("sample rate = %d", result.Format.SampleRate)
	}
}

func TestUpstreamErrorCarriesBody(t *testing.T) {
	body := `{"detail":{"status":"quota_exceeded","message":"out of credits"}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(body))
	}))
	defer server.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}

	_, err = p.Synthesize(context.Background(), "Hi.", "rachel", "en")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Message != body {
		t.Errorf("message = %q, want raw body", apiErr.Message)
	}
	if apiErr.Code != "quota_exceeded" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestGoogleSynthesize(t *testing.T) {
	var req struct {
		Input struct {
			Text string `json:"text"`
		} `json:"input"`
		Voice struct {
			LanguageCode string `json:"languageCode"`
			Name         string `json:"name"`
		} `json:"voice"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "text:synthesize") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"audioContent": base64.StdEncoding.EncodeToString([]byte("google-audio")),
		})
	}))
	defer server.Close()

	p, err := tts.NewGoogle(context.Background(),
		tts.WithAPIKey("test-key"),
		tts.WithBaseURL(server.URL),
	)
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}

	result, err := p.Synthesize(context.Background(), "Buenos días.", "es-US-Neural2-A", "es")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != "google-audio" {
		t.Errorf("unexpected audio %q", result.Audio)
	}
	if req.Voice.LanguageCode != "es-US" || req.Voice.Name != "es-US-Neural2-A" {
		t.Errorf("unexpected voice %+v", req.Voice)
	}
	if req.Input.Text != "Buenos días." {
		t.Errorf("unexpected text %q", req.Input.Text)
	}
}

func TestGoogleUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"Invalid voice","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	p, err := tts.NewGoogle(context.Background(), tts.WithAPIKey("k"), tts.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}

	_, err = p.Synthesize(context.Background(), "Hi.", "xx-Nope-1", "en")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Message, "Invalid voice") {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := tts.NewElevenLabs(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestEmptyTextRejected(t *testing.T) {
	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"))
	if _, err := p.Synthesize(context.Background(), "   ", "alloy", "en"); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("inner")
	err := tts.WrapError("openai", inner)

	var pe *tts.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "openai" {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !errors.Is(err, inner) {
		t.Error("expected unwrap to inner error")
	}
	if tts.WrapError("x", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
}
