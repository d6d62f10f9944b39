package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/teslashibe/voxturn/internal/httpc"
)

const providerOpenAI = "openai"

// OpenAI streams chat completions from any OpenAI-compatible API
// (OpenAI, Groq, Together, vLLM, Ollama, ...).
type OpenAI struct {
	baseURL string
	apiKey  string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	return &OpenAI{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		config:  cfg,
		http:    httpc.NewStreamClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "llm.openai"),
	}, nil
}

// Name returns the provider name.
func (c *OpenAI) Name() string {
	return providerOpenAI
}

// Close releases idle connections.
func (c *OpenAI) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Stream starts one streaming chat completion.
func (c *OpenAI) Stream(ctx context.Context, req *Request) (Stream, error) {
	body, err := json.Marshal(c.buildPayload(req))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("stream request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.parseError(resp)
	}

	return &sseStream{
		reader: bufio.NewReader(resp.Body),
		body:   resp.Body,
		logger: c.logger,
	}, nil
}

type chatPayload struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (c *OpenAI) buildPayload(req *Request) chatPayload {
	p := chatPayload{
		Model:         req.Model,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	if p.Model == "" {
		p.Model = c.config.Model
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = c.config.MaxTokens
	}
	if p.Temperature == 0 {
		p.Temperature = c.config.Temperature
	}

	p.Messages = make([]Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		p.Messages = append(p.Messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	p.Messages = append(p.Messages, req.Messages...)
	return p
}

// parseError reports the raw response body as the message. The error code
// is lifted from an OpenAI-style error object when present.
func (c *OpenAI) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Code any `json:"code"`
		} `json:"error"`
	}

	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Code != nil {
		code = fmt.Sprint(errResp.Error.Code)
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

// sseStream implements Stream for server-sent event responses.
type sseStream struct {
	reader *bufio.Reader
	body   io.ReadCloser
	logger *slog.Logger
}

// Recv returns the next chunk carrying text or usage. A body that ends
// without the [DONE] sentinel is reported as ErrStreamTruncated, so a cut
// connection never looks like a complete reply.
func (s *sseStream) Recv() (*Chunk, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, WrapError(providerOpenAI, fmt.Errorf("read stream: %w", err))
		}

		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return &Chunk{Done: true}, nil
			}

			var event streamEvent
			if jerr := json.Unmarshal([]byte(data), &event); jerr != nil {
				s.logger.Debug("skipping malformed stream event", "error", jerr)
			} else {
				chunk := &Chunk{Usage: event.Usage}
				if len(event.Choices) > 0 {
					chunk.Delta = event.Choices[0].Delta.Content
				}
				if chunk.Delta != "" || chunk.Usage != nil {
					// At EOF the next Recv reports the truncation.
					return chunk, nil
				}
			}
		}

		if err == io.EOF {
			return nil, WrapError(providerOpenAI, ErrStreamTruncated)
		}
	}
}

// Close stops the stream.
func (s *sseStream) Close() error {
	return s.body.Close()
}

// streamEvent is the SSE event format.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

var _ Provider = (*OpenAI)(nil)
