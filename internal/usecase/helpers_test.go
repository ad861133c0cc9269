package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"charrag/internal/adapter/analyzer"
	"charrag/internal/adapter/chunker"
	"charrag/internal/adapter/memstore"
	"charrag/internal/adapter/relevance"
	"charrag/internal/adapter/store"
	"charrag/internal/adapter/vector"
	"charrag/internal/domain"
	"charrag/internal/port"
)

var testVocab = []string{
	"violin", "baker", "watson", "doctor", "observant",
	"deductive", "arrogant", "elementary", "moriarty", "tobacco",
}

// vocabEmbedder gives every vocabulary word its own axis plus a small bias
// axis, so similarity is fully predictable in tests.
type vocabEmbedder struct {
	model string
	calls atomic.Int32

	mu  sync.Mutex
	err error
}

func newVocabEmbedder() *vocabEmbedder {
	return &vocabEmbedder{model: "vocab"}
}

func (e *vocabEmbedder) failWith(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *vocabEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, len(testVocab)+1)
		lower := strings.ToLower(text)
		for j, w := range testVocab {
			if strings.Contains(lower, w) {
				v[j] = 1
			}
		}
		v[len(testVocab)] = 0.1
		out[i] = v
	}
	return out, nil
}

func (e *vocabEmbedder) Dimension() int    { return len(testVocab) + 1 }
func (e *vocabEmbedder) ModelName() string { return e.model }

var _ port.Embedder = (*vocabEmbedder)(nil)

func holmes() *domain.Character {
	return &domain.Character{
		Name:        "Sherlock Holmes",
		Description: "The world's only consulting detective.",
		Era:         "Victorian London",
		Data: map[domain.MemoryKind][]string{
			domain.KindFacts: {
				"He plays the violin when thinking",
				"He lives at 221B Baker Street",
				"His friend is Watson the doctor",
			},
			domain.KindTraits: {
				"Observant and deductive",
				"Arrogant about his intellect",
			},
			domain.KindSpeechPatterns: {
				"Elementary, my dear Watson",
			},
		},
		Lore:           "Moriarty is his nemesis. Tobacco is kept in a Persian slipper.",
		SystemTemplate: "You are Sherlock Holmes.\n\n{character_info}\n\nHistory:\n{conversation_history}",
		StyleExamples: []domain.StyleExample{
			{User: "Who are you?", Character: "A consulting detective."},
			{User: "How did you know?", Character: "I observed."},
			{User: "Is it dangerous?", Character: "Most certainly."},
			{User: "Tea?", Character: "Later."},
		},
		Source: "characters/holmes.yaml",
	}
}

func watson() *domain.Character {
	return &domain.Character{
		Name: "Dr. Watson",
		Data: map[domain.MemoryKind][]string{
			domain.KindFacts: {"A doctor who served in the army", "Lives at Baker Street with Holmes"},
		},
	}
}

type registryConfig struct {
	kind     domain.IndexKind
	metric   domain.MetricKind
	store    port.IndexStore
	episodic EpisodicPolicy
}

func newTestRegistry(t *testing.T, emb port.Embedder, cfg registryConfig) *Registry {
	t.Helper()
	if cfg.store == nil {
		cfg.store = memstore.NewMemoryStore()
	}
	reg, err := NewRegistry(RegistryOptions{
		Index: vector.Options{
			Kind:   cfg.kind,
			Metric: cfg.metric,
			HNSW:   vector.HNSWConfig{M: 8, EfConstruction: 64, EfSearch: 32, Seed: 7},
		},
		Parallelism: 2,
		Chunker:     chunker.NewLoreChunker(120, 0, analyzer.NewTokenizer()),
		Episodic:    cfg.episodic,
	}, cfg.store, emb)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func openBolt(t *testing.T, path string) *store.BoltStore {
	t.Helper()
	s, err := store.NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func boltPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "index.db")
}

func newTestRetriever(reg *Registry) *Retriever {
	return NewRetriever(reg, nil, relevance.NewScorer(), nil, nil)
}

func query(text string, topK int, minRelevance float64) domain.Query {
	return domain.Query{
		Text:            text,
		TopK:            topK,
		MinRelevance:    minRelevance,
		RelevanceMethod: domain.RelevanceSigmoid,
	}
}

func ids(result domain.RetrievalResult) []string {
	out := make([]string, len(result))
	for i, sr := range result {
		out[i] = sr.Record.ID
	}
	return out
}

func mustBuild(t *testing.T, reg *Registry, c *domain.Character) domain.IndexStats {
	t.Helper()
	st, err := reg.Build(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	return st
}

var errEmbedDown = errors.New("embedding service down")

// zeroEmbedder returns zero vectors, which cosine rejects.
type zeroEmbedder struct{}

func (zeroEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 4)
	}
	return out, nil
}

func (zeroEmbedder) Dimension() int    { return 4 }
func (zeroEmbedder) ModelName() string { return "zero" }

// gatedStore holds LoadArtifact until release is closed.
type gatedStore struct {
	port.IndexStore
	entered chan struct{}
	release chan struct{}
	loads   atomic.Int32
}

func newGatedStore(inner port.IndexStore) *gatedStore {
	return &gatedStore{IndexStore: inner, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (s *gatedStore) LoadArtifact(character string) (port.Artifact, error) {
	s.loads.Add(1)
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.IndexStore.LoadArtifact(character)
}

func newMemoryStore() port.IndexStore {
	return memstore.NewMemoryStore()
}
