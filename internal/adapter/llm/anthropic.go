package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"charrag/internal/port"
)

// Anthropic serves Claude models through the Messages API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

var _ port.LLM = (*Anthropic)(nil)

// NewAnthropic creates a client. baseURL is the API root without the /v1
// suffix; empty uses the public endpoint.
func NewAnthropic(apiKey, model, baseURL string) *Anthropic {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{client: &client, model: model}
}

func (a *Anthropic) Generate(ctx context.Context, p port.Prompt) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(p.Messages))
	for _, m := range p.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := int64(p.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 500
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(a.model),
		MaxTokens:     maxTokens,
		Messages:      messages,
		StopSequences: p.Stop,
	}
	if p.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: p.System}}
	}
	if p.Temperature > 0 {
		params.Temperature = anthropic.Float(p.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (a *Anthropic) ProviderName() string { return "anthropic" }
func (a *Anthropic) ModelName() string    { return a.model }
