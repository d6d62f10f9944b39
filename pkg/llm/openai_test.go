package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestOpenAIStream(t *testing.T) {
	var got chatPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"choices":[{"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"delta":{"content":"Hello"}}]}`,
			`not json at all`,
			`{"choices":[{"delta":{"content":" there. How"}}]}`,
			`{"choices":[{"delta":{"content":" are you?"},"finish_reason":"stop"}]}`,
			`{"choices":[],"usage":{"prompt_tokens":21,"completion_tokens":7,"total_tokens":28}}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
		}
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewOpenAI(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
		WithModel("gpt-4o-mini"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	req := &Request{
		SystemPrompt: "Be brief.",
		Messages:     []Message{{Role: RoleUser, Content: "Hi"}},
	}
	res, sentences, err := collect(t, client, req)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if !reflect.DeepEqual(sentences, []string{"Hello there.", "How are you?"}) {
		t.Errorf("sentences = %q", sentences)
	}
	if res.Text != "Hello there. How are you?" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Estimated || res.Usage.PromptTokens != 21 || res.Usage.CompletionTokens != 7 {
		t.Errorf("Usage = %+v (estimated=%v), want upstream {21 7}", res.Usage, res.Estimated)
	}

	if !got.Stream || got.StreamOptions == nil || !got.StreamOptions.IncludeUsage {
		t.Errorf("payload did not request streamed usage: %+v", got)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	wantMsgs := []Message{{Role: "system", Content: "Be brief."}, {Role: RoleUser, Content: "Hi"}}
	if !reflect.DeepEqual(got.Messages, wantMsgs) {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOpenAIStreamWithoutUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Okay\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := NewOpenAI(WithBaseURL(server.URL), WithAPIKey("k"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	res, sentences, err := collect(t, client, &Request{Messages: []Message{{Role: RoleUser, Content: "abcd"}}})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !reflect.DeepEqual(sentences, []string{"Okay"}) {
		t.Errorf("sentences = %q", sentences)
	}
	if !res.Estimated || res.Usage.PromptTokens != 1 || res.Usage.CompletionTokens != 1 {
		t.Errorf("Usage = %+v (estimated=%v)", res.Usage, res.Estimated)
	}
}

func TestOpenAIStreamTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Half a sentence. And\"}}]}\n\n")
		// Connection closes without [DONE].
	}))
	defer server.Close()

	client, err := NewOpenAI(WithBaseURL(server.URL), WithAPIKey("k"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	res, sentences, err := collect(t, client, &Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrStreamTruncated) {
		t.Fatalf("Generate() error = %v, want ErrStreamTruncated", err)
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil for a truncated reply", res)
	}
	if !reflect.DeepEqual(sentences, []string{"Half a sentence."}) {
		t.Errorf("sentences = %q", sentences)
	}
}

func TestOpenAIStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"Rate limit exceeded","code":"rate_limit"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAI(WithBaseURL(server.URL), WithAPIKey("k"))
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.Stream(context.Background(), &Request{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if !apiErr.IsRateLimited() {
		t.Errorf("StatusCode = %d, want 429", apiErr.StatusCode)
	}
	if apiErr.Code != "rate_limit" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Message != `{"error":{"message":"Rate limit exceeded","code":"rate_limit"}}` {
		t.Errorf("Message = %q, want raw body", apiErr.Message)
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAI()
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewOpenAI() error = %v, want ErrNoAPIKey", err)
	}
}
