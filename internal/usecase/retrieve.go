package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"charrag/internal/adapter/relevance"
	"charrag/internal/domain"
	"charrag/internal/metrics"
	"charrag/internal/port"
)

// Retriever embeds a query, searches a character's ready index and scores
// the hits.
type Retriever struct {
	registry *Registry
	embedder port.Embedder
	scorer   relevance.Scorer
	episodic EpisodicPolicy
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRetriever creates a retriever. A nil embedder uses the registry's, so
// pass a caching wrapper here to reuse query embeddings.
func NewRetriever(registry *Registry, embedder port.Embedder, scorer relevance.Scorer, m *metrics.Metrics, logger *zap.Logger) *Retriever {
	if embedder == nil {
		embedder = registry.Embedder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		registry: registry,
		embedder: embedder,
		scorer:   scorer,
		metrics:  m,
		logger:   logger,
	}
}

// WithEpisodic reranks retrieved episodic memories by importance and
// recency when p.Reweight is set.
func (r *Retriever) WithEpisodic(p EpisodicPolicy) *Retriever {
	r.episodic = p
	return r
}

// Candidates returns raw hits for q, most similar first. TopK larger than
// the corpus is clamped. With q.Kinds set only records of those kinds are
// returned; the search over-fetches until enough of them are found.
func (r *Retriever) Candidates(ctx context.Context, character string, q domain.Query) ([]domain.Candidate, *Handle, error) {
	if q.TopK <= 0 {
		return nil, nil, fmt.Errorf("top_k must be positive, got %d", q.TopK)
	}
	h, err := r.registry.Handle(ctx, character)
	if err != nil {
		return nil, nil, err
	}
	if q.Metric != "" && q.Metric != h.Index.Metric() {
		return nil, nil, &domain.IndexConfigMismatchError{
			Character: h.Character,
			Field:     "metric",
			Stored:    string(h.Index.Metric()),
			Requested: string(q.Metric),
		}
	}

	vecs, err := r.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &domain.EmbeddingUnavailableError{Model: r.embedder.ModelName(), Err: err}
	}
	if len(vecs) != 1 {
		return nil, nil, &domain.EmbeddingUnavailableError{
			Model: r.embedder.ModelName(),
			Err:   fmt.Errorf("got %d embeddings for one query", len(vecs)),
		}
	}

	n := h.Corpus.Len()
	topK := min(q.TopK, n)
	if topK == 0 {
		return []domain.Candidate{}, h, nil
	}

	kinds := make(map[domain.MemoryKind]bool, len(q.Kinds))
	for _, k := range q.Kinds {
		kinds[k] = true
	}

	fetch := topK
	if len(kinds) > 0 {
		fetch = min(topK*4, n)
	}
	for {
		hits, err := h.Index.Search(vecs[0], fetch)
		if err != nil {
			return nil, nil, err
		}
		out := make([]domain.Candidate, 0, topK)
		for _, hit := range hits {
			rec := h.Corpus.Records[hit.Position]
			if len(kinds) > 0 && !kinds[rec.Kind()] {
				continue
			}
			out = append(out, domain.Candidate{Record: rec, RawScore: hit.RawScore})
			if len(out) == topK {
				break
			}
		}
		if len(out) == topK || fetch >= n {
			return out, h, nil
		}
		fetch = min(fetch*2, n)
	}
}

// Retrieve runs the full pipeline for q: candidates, relevance scoring,
// episodic reranking and the min relevance cutoff. An empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, character string, q domain.Query) (domain.RetrievalResult, error) {
	start := time.Now()
	method := q.RelevanceMethod
	if method == "" {
		method = domain.RelevanceSigmoid
	}

	candidates, h, err := r.Candidates(ctx, character, q)
	var result domain.RetrievalResult
	if err == nil {
		result, err = r.scorer.ScoreAndFilter(candidates, method, h.Index.Metric(), q.MinRelevance)
	}
	if err == nil {
		result = r.episodic.Rerank(result, q.MinRelevance)
	}

	kind := ""
	if h != nil {
		kind = string(h.Index.Kind())
	}
	key := CharacterKey(character)
	r.metrics.ObserveRetrieval(key, kind, string(method), len(result), start, err)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("retrieved",
		zap.String("character", key),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(result)),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}
