package port

import "context"

// Message is one chat turn sent to a language model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Prompt is a fully assembled request for a language model.
type Prompt struct {
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stop        []string  `json:"stop,omitempty"`
}

// LLM represents a language model for text generation.
type LLM interface {
	// Generate produces the assistant reply for the prompt.
	Generate(ctx context.Context, prompt Prompt) (string, error)

	// ProviderName returns the provider identifier (e.g. "openai").
	ProviderName() string

	// ModelName returns the name of the model.
	ModelName() string
}
