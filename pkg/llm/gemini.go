package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"google.golang.org/genai"

	"github.com/teslashibe/voxturn/internal/httpc"
)

const providerGemini = "gemini"

// Gemini streams replies from Google's Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini provider. WithBaseURL points the SDK at a
// different endpoint (used by tests).
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = ""
	cfg.Model = "gemini-2.0-flash"
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpc.NewStreamClient(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: cfg.Logger.With("component", "llm.gemini"),
	}, nil
}

// Name returns the provider name.
func (g *Gemini) Name() string {
	return providerGemini
}

// Close is a no-op; the SDK client holds no resources of its own.
func (g *Gemini) Close() error {
	return nil
}

// Stream starts one streaming generation.
func (g *Gemini) Stream(ctx context.Context, req *Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = g.config.Model
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = g.config.Temperature
	}

	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(float32(temperature)),
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}

	next, stop := iter.Pull2(g.client.Models.GenerateContentStream(ctx, model, contents, gc))
	return &geminiStream{next: next, stop: stop}, nil
}

type geminiStream struct {
	next func() (*genai.GenerateContentResponse, error, bool)
	stop func()
}

// Recv returns the next chunk. Gemini repeats cumulative usage metadata on
// each response, so the last one seen wins.
func (s *geminiStream) Recv() (*Chunk, error) {
	for {
		resp, err, ok := s.next()
		if !ok {
			return &Chunk{Done: true}, nil
		}
		if err != nil {
			return nil, convertGenaiError(err)
		}
		if resp == nil {
			continue
		}

		chunk := &Chunk{Delta: resp.Text()}
		if um := resp.UsageMetadata; um != nil {
			chunk.Usage = &Usage{
				PromptTokens:     int(um.PromptTokenCount),
				CompletionTokens: int(um.CandidatesTokenCount),
			}
		}
		if chunk.Delta == "" && chunk.Usage == nil {
			continue
		}
		return chunk, nil
	}
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

func convertGenaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Code:       apiErr.Status,
			Provider:   providerGemini,
		}
	}
	return WrapError(providerGemini, err)
}

var _ Provider = (*Gemini)(nil)
