// Package llm streams conversational replies from a chat model and splits
// them into sentences as they arrive.
//
// Providers implement a single streaming call. Generate drives one call,
// pushes each completed sentence to a channel in order, and reports the full
// reply with token usage once the stream ends.
//
// Basic usage:
//
//	p, _ := llm.NewOpenAI(llm.WithAPIKey(key))
//	out := make(chan string)
//	go func() { for s := range out { speak(s) } }()
//	res, err := llm.Generate(ctx, p, &llm.Request{SystemPrompt: "...", Messages: history}, out)
//	close(out)
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes a single chat completion.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Model        string  // Overrides the provider default when set
	MaxTokens    int     // Zero uses the provider default
	Temperature  float64 // Zero uses the provider default
}

// Usage is the token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Chunk is one streamed piece of a reply.
type Chunk struct {
	Delta string
	Usage *Usage // Set on the chunk that carries upstream usage, if any
	Done  bool
}

// Stream yields chunks until a chunk with Done is returned.
type Stream interface {
	Recv() (*Chunk, error)
	Close() error
}

// Provider is a streaming chat model backend.
type Provider interface {
	Stream(ctx context.Context, req *Request) (Stream, error)
	Name() string
	Close() error
}
