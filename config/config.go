package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"charrag/internal/domain"
)

// DataDirName is the per-project state directory.
const DataDirName = ".charrag"

// Config holds all configuration for charrag.
type Config struct {
	Characters CharactersConfig `yaml:"characters"`
	Index      IndexConfig      `yaml:"index"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Episodic   EpisodicConfig   `yaml:"episodic"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CharactersConfig locates character definition files.
type CharactersConfig struct {
	Dir      string   `yaml:"dir"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// IndexConfig holds index construction settings.
type IndexConfig struct {
	Type   string     `yaml:"type"`   // "flat" or "hnsw"
	Metric string     `yaml:"metric"` // "cosine", "dot" or "euclidean"
	HNSW   HNSWConfig `yaml:"hnsw"`
	// Reset drops persisted indexes before building.
	Reset       bool `yaml:"reset"`
	LoreChunk   int  `yaml:"lore_chunk_tokens"`
	LoreOverlap int  `yaml:"lore_chunk_overlap"`
	Parallelism int  `yaml:"parallelism"`
}

// HNSWConfig holds graph parameters. They are fixed at build time.
type HNSWConfig struct {
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	EfSearch       int    `yaml:"ef_search"`
	Seed           uint64 `yaml:"seed"` // 0 = random
}

// RetrieveConfig holds retrieval and relevance settings.
type RetrieveConfig struct {
	TopK            int     `yaml:"top_k"`
	RelevanceMethod string  `yaml:"relevance_method"`
	MinRelevance    float64 `yaml:"min_relevance"`
	Steepness       float64 `yaml:"sigmoid_steepness"`
	Midpoint        float64 `yaml:"sigmoid_midpoint"`
}

// PromptConfig holds prompt assembly settings.
type PromptConfig struct {
	Style       string `yaml:"style"` // "low", "medium" or "high"
	TokenBudget int    `yaml:"token_budget"`
	MaxTokens   int    `yaml:"max_tokens"`
	NoMemory    bool   `yaml:"no_memory"`
	MaxHistory  int    `yaml:"max_history"` // conversation messages kept, 0 keeps all
	// DedupJaccard drops a memory whose content words overlap a more
	// relevant one above this ratio. 0 disables.
	DedupJaccard float64 `yaml:"dedup_jaccard"`
}

// EpisodicConfig bounds and weights memories added with remember.
type EpisodicConfig struct {
	MaxMemories      int     `yaml:"max_memories"` // per character, 0 = unbounded
	Reweight         bool    `yaml:"reweight"`
	SemanticWeight   float64 `yaml:"semantic_weight"`
	ImportanceWeight float64 `yaml:"importance_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"`
	DecayRate        float64 `yaml:"decay_rate"` // importance multiplier per 30 days
	MinImportance    float64 `yaml:"min_importance"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "openai", "ollama" or "mock"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"` // Environment variable for API key
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"` // query embedding LRU entries, 0 disables
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "openai", "deepseek", "anthropic", "gemini" or "mock"
	Model     string `yaml:"model"`    // empty uses the provider default
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"` // empty uses the provider default
}

// ServerConfig holds HTTP front end settings.
type ServerConfig struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Characters: CharactersConfig{
			Dir:      "characters",
			Includes: []string{"**/*.yaml", "**/*.yml", "**/*.json"},
			Excludes: []string{"**/.*/**", "**/_*"},
		},
		Index: IndexConfig{
			Type:   "flat",
			Metric: "cosine",
			HNSW: HNSWConfig{
				M:              16,
				EfConstruction: 200,
				EfSearch:       64,
			},
			LoreChunk:   120,
			LoreOverlap: 20,
			Parallelism: 4,
		},
		Retrieve: RetrieveConfig{
			TopK:            3,
			RelevanceMethod: "sigmoid",
			MinRelevance:    0.2,
			Steepness:       5,
			Midpoint:        0,
		},
		Prompt: PromptConfig{
			Style:        "high",
			TokenBudget:  1500,
			MaxTokens:    500,
			MaxHistory:   10,
			DedupJaccard: 0.8,
		},
		Episodic: EpisodicConfig{
			MaxMemories:      100,
			Reweight:         true,
			SemanticWeight:   0.6,
			ImportanceWeight: 0.7,
			RecencyWeight:    0.3,
			DecayRate:        0.95,
			MinImportance:    0.1,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 1536,
			BatchSize: 100,
			CacheSize: 256,
		},
		LLM: LLMConfig{
			Provider: "openai",
		},
		Server: ServerConfig{
			Addr:    ":8080",
			Timeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for charrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "charrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	if _, err := domain.ParseIndexKind(c.Index.Type); err != nil {
		return fmt.Errorf("index.type: %w", err)
	}
	if _, err := domain.ParseMetricKind(c.Index.Metric); err != nil {
		return fmt.Errorf("index.metric: %w", err)
	}
	if _, err := domain.ParseRelevanceMethod(c.Retrieve.RelevanceMethod); err != nil {
		return fmt.Errorf("retrieve.relevance_method: %w", err)
	}
	if _, err := domain.ParseStyleLevel(c.Prompt.Style); err != nil {
		return fmt.Errorf("prompt.style: %w", err)
	}
	if c.Retrieve.TopK <= 0 {
		return fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK)
	}
	if c.Retrieve.MinRelevance < 0 || c.Retrieve.MinRelevance > 1 {
		return fmt.Errorf("retrieve.min_relevance must be in [0,1], got %v", c.Retrieve.MinRelevance)
	}
	if c.Prompt.DedupJaccard < 0 || c.Prompt.DedupJaccard > 1 {
		return fmt.Errorf("prompt.dedup_jaccard must be in [0,1], got %v", c.Prompt.DedupJaccard)
	}
	if c.Prompt.MaxHistory < 0 {
		return fmt.Errorf("prompt.max_history must not be negative, got %d", c.Prompt.MaxHistory)
	}
	if c.Episodic.MaxMemories < 0 {
		return fmt.Errorf("episodic.max_memories must not be negative, got %d", c.Episodic.MaxMemories)
	}
	for name, w := range map[string]float64{
		"episodic.semantic_weight":   c.Episodic.SemanticWeight,
		"episodic.importance_weight": c.Episodic.ImportanceWeight,
		"episodic.recency_weight":    c.Episodic.RecencyWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, w)
		}
	}
	if c.Episodic.Reweight && c.Episodic.SemanticWeight+c.Episodic.ImportanceWeight+c.Episodic.RecencyWeight == 0 {
		return fmt.Errorf("episodic weights must not all be zero when episodic.reweight is set")
	}
	if c.Episodic.DecayRate <= 0 || c.Episodic.DecayRate > 1 {
		return fmt.Errorf("episodic.decay_rate must be in (0,1], got %v", c.Episodic.DecayRate)
	}
	if c.Episodic.MinImportance < 0 || c.Episodic.MinImportance > 1 {
		return fmt.Errorf("episodic.min_importance must be in [0,1], got %v", c.Episodic.MinImportance)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Index.LoreOverlap >= c.Index.LoreChunk && c.Index.LoreChunk > 0 {
		return fmt.Errorf("index.lore_chunk_overlap (%d) must be smaller than index.lore_chunk_tokens (%d)",
			c.Index.LoreOverlap, c.Index.LoreChunk)
	}
	return nil
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DataDirName, "index.db")
}

// CharactersDir resolves the character directory against the project dir.
func (c *Config) CharactersDir(dir string) string {
	if filepath.IsAbs(c.Characters.Dir) {
		return c.Characters.Dir
	}
	return filepath.Join(dir, c.Characters.Dir)
}

// EnsureDataDir ensures the .charrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
