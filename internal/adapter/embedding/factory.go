package embedding

import (
	"fmt"

	"charrag/config"
	"charrag/internal/port"
)

// New builds the embedder selected by cfg.
func New(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		base := cfg.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		e, err := NewOpenAICompatibleEmbedder(cfg.APIKeyEnv, cfg.Model, base, cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return e.WithBatchSize(cfg.BatchSize), nil
	case "ollama":
		e, err := NewOllamaEmbedder(cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		return e.WithBatchSize(cfg.BatchSize), nil
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama, mock)", cfg.Provider)
	}
}
