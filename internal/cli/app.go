package cli

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"charrag/config"
	"charrag/internal/adapter/analyzer"
	"charrag/internal/adapter/cache"
	"charrag/internal/adapter/chunker"
	"charrag/internal/adapter/embedding"
	"charrag/internal/adapter/fs"
	"charrag/internal/adapter/relevance"
	"charrag/internal/adapter/retriever"
	"charrag/internal/adapter/store"
	"charrag/internal/adapter/vector"
	"charrag/internal/domain"
	"charrag/internal/metrics"
	"charrag/internal/port"
	"charrag/internal/usecase"
)

// queryCacheTTL bounds how long a query embedding is reused.
const queryCacheTTL = 30 * time.Minute

// app holds the components shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	store     *store.BoltStore
	embedder  port.Embedder
	cache     *cache.QueryCache
	walker    *fs.Walker
	tokenizer *analyzer.Tokenizer
	catalog   *usecase.CharacterCatalog
	registry  *usecase.Registry
}

// newApp opens the index database and loads the character directory.
// m may be nil when no metrics are exported.
func newApp(m *metrics.Metrics) (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()

	if err := config.EnsureDataDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
	}
	st, err := store.NewBoltStore(config.IndexDBPath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		store:     st,
		embedder:  embedder,
		walker:    fs.NewWalker(cfg.Characters.Includes, cfg.Characters.Excludes),
		tokenizer: analyzer.NewTokenizer(),
	}
	if cfg.Embedding.CacheSize > 0 {
		a.cache = cache.NewQueryCache(cfg.Embedding.CacheSize, queryCacheTTL)
	}

	charDir := cfg.CharactersDir(dir)
	a.catalog, err = usecase.NewCharacterCatalog(func() ([]*domain.Character, error) {
		return fs.LoadCharacters(a.walker, charDir)
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load characters: %w", err)
	}

	kind, _ := domain.ParseIndexKind(cfg.Index.Type)
	metric, _ := domain.ParseMetricKind(cfg.Index.Metric)
	a.registry, err = usecase.NewRegistry(usecase.RegistryOptions{
		Index: vector.Options{
			Kind:   kind,
			Metric: metric,
			HNSW: vector.HNSWConfig{
				M:              cfg.Index.HNSW.M,
				EfConstruction: cfg.Index.HNSW.EfConstruction,
				EfSearch:       cfg.Index.HNSW.EfSearch,
				Seed:           cfg.Index.HNSW.Seed,
			},
		},
		Parallelism: cfg.Index.Parallelism,
		Chunker:     chunker.NewLoreChunker(cfg.Index.LoreChunk, cfg.Index.LoreOverlap, a.tokenizer),
		Logger:      logger,
		Metrics:     m,
		Episodic:    a.episodicPolicy(),
		OnSwap:      a.invalidateCache,
	}, st, embedder)
	if err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

// invalidateCache drops cached query embeddings whenever an index changes
// generation.
func (a *app) invalidateCache(character string) {
	if a.cache != nil {
		a.cache.Invalidate()
	}
}

func (a *app) Close() error {
	return a.registry.Close()
}

func (a *app) retriever() *usecase.Retriever {
	var emb port.Embedder = a.embedder
	if a.cache != nil {
		emb = cache.NewCachedEmbedder(a.embedder, a.cache).WithMetrics(a.metrics)
	}
	scorer := relevance.Scorer{
		Steepness: a.cfg.Retrieve.Steepness,
		Midpoint:  a.cfg.Retrieve.Midpoint,
	}.WithDefaults()
	return usecase.NewRetriever(a.registry, emb, scorer, a.metrics, a.logger).
		WithEpisodic(a.episodicPolicy())
}

func (a *app) episodicPolicy() usecase.EpisodicPolicy {
	e := a.cfg.Episodic
	return usecase.EpisodicPolicy{
		MaxMemories:      e.MaxMemories,
		Reweight:         e.Reweight,
		SemanticWeight:   e.SemanticWeight,
		ImportanceWeight: e.ImportanceWeight,
		RecencyWeight:    e.RecencyWeight,
		DecayRate:        e.DecayRate,
		MinImportance:    e.MinImportance,
	}
}

func (a *app) responder(ret *usecase.Retriever, model port.LLM) *usecase.Responder {
	return usecase.NewResponder(a.catalog, ret, usecase.NewPromptAssembler(a.tokenizer), model, a.metrics, a.logger).
		WithDeduper(retriever.NewDeduper(a.cfg.Prompt.DedupJaccard, a.tokenizer))
}

// query builds a query from config defaults and command flag overrides.
// Zero flag values keep the configured default.
func (a *app) query(text string, topK int, minRelevance float64, method string, kinds []string) (domain.Query, error) {
	q := domain.Query{
		Text:         text,
		TopK:         a.cfg.Retrieve.TopK,
		MinRelevance: a.cfg.Retrieve.MinRelevance,
	}
	if topK != 0 {
		q.TopK = topK
	}
	if minRelevance >= 0 {
		q.MinRelevance = minRelevance
	}
	if method == "" {
		method = a.cfg.Retrieve.RelevanceMethod
	}
	m, err := domain.ParseRelevanceMethod(method)
	if err != nil {
		return q, err
	}
	q.RelevanceMethod = m
	for _, k := range kinds {
		kind, err := domain.ParseMemoryKind(k)
		if err != nil {
			return q, err
		}
		q.Kinds = append(q.Kinds, kind)
	}
	return q, nil
}

func (a *app) promptOptions(style string) (usecase.PromptOptions, error) {
	if style == "" {
		style = a.cfg.Prompt.Style
	}
	level, err := domain.ParseStyleLevel(style)
	if err != nil {
		return usecase.PromptOptions{}, err
	}
	return usecase.PromptOptions{
		Style:       level,
		TokenBudget: a.cfg.Prompt.TokenBudget,
		MaxTokens:   a.cfg.Prompt.MaxTokens,
		MaxHistory:  a.cfg.Prompt.MaxHistory,
	}, nil
}
