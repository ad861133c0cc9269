package llm

import (
	"context"
	"fmt"
	"sync"

	"charrag/internal/port"
)

// Mock answers without a network call. It records the prompts it saw.
type Mock struct {
	mu      sync.Mutex
	Reply   string
	Err     error
	prompts []port.Prompt
}

var _ port.LLM = (*Mock)(nil)

func NewMock(reply string) *Mock {
	return &Mock{Reply: reply}
}

func (m *Mock) Generate(ctx context.Context, p port.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	var last string
	if n := len(p.Messages); n > 0 {
		last = p.Messages[n-1].Content
	}
	return fmt.Sprintf("[mock] %s", last), nil
}

// Prompts returns the prompts received so far.
func (m *Mock) Prompts() []port.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]port.Prompt(nil), m.prompts...)
}

func (m *Mock) ProviderName() string { return "mock" }
func (m *Mock) ModelName() string    { return "mock" }
