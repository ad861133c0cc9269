package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"charrag/internal/port"
)

const maxBatch = 100

// OpenAIEmbedder talks to any OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	// sendDimensions is set for models that accept a requested size.
	sendDimensions bool
	batchSize      int
}

var _ port.Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(apiKeyEnv, model string, dimension int) (*OpenAIEmbedder, error) {
	return NewOpenAICompatibleEmbedder(apiKeyEnv, model, "https://api.openai.com/v1", dimension)
}

func NewOllamaEmbedder(model, baseURL string) (*OpenAIEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}

	dimension := 768
	switch model {
	case "nomic-embed-text":
		dimension = 768
	case "mxbai-embed-large":
		dimension = 1024
	case "all-minilm":
		dimension = 384
	}

	return newEmbedder("ollama", model, baseURL, dimension, false, 120*time.Second), nil
}

func NewOpenAICompatibleEmbedder(apiKeyEnv, model, baseURL string, dimension int) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	native := 1536
	switch model {
	case "text-embedding-3-small":
		native = 1536
	case "text-embedding-3-large":
		native = 3072
	case "text-embedding-ada-002":
		native = 1536
	}
	if dimension <= 0 {
		dimension = native
	}
	// Only the v3 models can shorten their output.
	shorten := strings.HasPrefix(model, "text-embedding-3") && dimension != native
	if !shorten && dimension != native && strings.HasPrefix(model, "text-embedding-") {
		return nil, fmt.Errorf("model %s produces %d dimensions, configured %d", model, native, dimension)
	}

	return newEmbedder(apiKey, model, baseURL, dimension, shorten, 60*time.Second), nil
}

func newEmbedder(apiKey, model, baseURL string, dimension int, sendDimensions bool, timeout time.Duration) *OpenAIEmbedder {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	)
	return &OpenAIEmbedder{
		client:         &client,
		model:          model,
		dimension:      dimension,
		sendDimensions: sendDimensions,
		batchSize:      maxBatch,
	}
}

// WithBatchSize overrides the number of texts sent per request.
func (e *OpenAIEmbedder) WithBatchSize(n int) *OpenAIEmbedder {
	if n > 0 {
		e.batchSize = n
	}
	return e
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          e.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.sendDimensions {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts))
		}
		embeddings[idx] = toFloat32(item.Embedding)
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d", i, len(v), e.dimension)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func toFloat32(f64 []float64) []float32 {
	out := make([]float32, len(f64))
	for i, v := range f64 {
		out[i] = float32(v)
	}
	return out
}
