package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"charrag/internal/port"
)

// Gemini calls Google's Gemini models through the genai SDK. The client is
// created on first use because construction needs a context.
type Gemini struct {
	apiKey string
	model  string

	once      sync.Once
	client    *genai.Client
	clientErr error
}

var _ port.LLM = (*Gemini)(nil)

func NewGemini(apiKey, model string) *Gemini {
	return &Gemini{apiKey: apiKey, model: model}
}

func (g *Gemini) Generate(ctx context.Context, p port.Prompt) (string, error) {
	g.once.Do(func() {
		g.client, g.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if g.clientErr != nil {
		return "", fmt.Errorf("genai client: %w", g.clientErr)
	}

	cfg := &genai.GenerateContentConfig{}
	if p.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(p.System)}}
	}
	if p.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.MaxTokens)
	}
	if p.Temperature > 0 {
		t := float32(p.Temperature)
		cfg.Temperature = &t
	}
	if len(p.Stop) > 0 {
		cfg.StopSequences = p.Stop
	}

	contents := make([]*genai.Content, 0, len(p.Messages))
	for _, m := range p.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini: prompt has no messages")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func (g *Gemini) ProviderName() string { return "gemini" }
func (g *Gemini) ModelName() string    { return g.model }
