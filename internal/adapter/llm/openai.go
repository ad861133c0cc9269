// Package llm holds the language model backends the chat pipeline hands
// assembled prompts to.
package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"charrag/internal/port"
)

// OpenAIChat serves OpenAI and any OpenAI-compatible chat endpoint
// (DeepSeek uses the same wire format).
type OpenAIChat struct {
	client   *openai.Client
	provider string
	model    string
}

var _ port.LLM = (*OpenAIChat)(nil)

func NewOpenAIChat(provider, apiKey, model, baseURL string) *OpenAIChat {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAIChat{client: &client, provider: provider, model: model}
}

func (c *OpenAIChat) Generate(ctx context.Context, p port.Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.Messages)+1)
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	for _, m := range p.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if p.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(p.MaxTokens))
	}
	if p.Temperature > 0 {
		params.Temperature = openai.Float(p.Temperature)
	}
	if len(p.Stop) > 0 {
		// The API accepts at most four stop sequences.
		stop := p.Stop
		if len(stop) > 4 {
			stop = stop[:4]
		}
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: stop}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat: empty response", c.provider)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIChat) ProviderName() string { return c.provider }
func (c *OpenAIChat) ModelName() string    { return c.model }
