package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"charrag/internal/adapter/vector"
	"charrag/internal/domain"
	"charrag/internal/metrics"
	"charrag/internal/port"
)

// Handle is an immutable, queryable snapshot of one character's index.
// A reader that loaded a Handle keeps a consistent corpus and index even if
// a rebuild swaps in a newer one meanwhile.
type Handle struct {
	Character  string
	Corpus     *domain.Corpus
	Index      port.Index
	Header     port.ArtifactHeader
	Generation uint64
}

func (h *Handle) Stats() domain.IndexStats {
	return domain.IndexStats{
		Character: h.Character,
		Kind:      h.Index.Kind(),
		Metric:    h.Index.Metric(),
		Records:   h.Corpus.Len(),
		Dimension: h.Corpus.Dimension,
		BuiltAt:   h.Header.BuiltAt,
	}
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Index       vector.Options
	Parallelism int // concurrent character builds in BuildAll
	Chunker     port.Chunker
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Episodic caps episodic memories on build and append.
	Episodic EpisodicPolicy

	// OnSwap runs after a character's ready handle changes or is dropped.
	OnSwap func(character string)
}

type entry struct {
	mu    sync.Mutex // serialises build, append, reset and first load
	ready atomic.Pointer[Handle]
}

// Registry owns every character's index. Builds and resets of one
// character are serialised; readers never block on them and always see
// either the previous or the next complete handle.
type Registry struct {
	opts     RegistryOptions
	store    port.IndexStore
	embedder port.Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	loads   singleflight.Group
	gen     atomic.Uint64
}

func NewRegistry(opts RegistryOptions, store port.IndexStore, embedder port.Embedder) (*Registry, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("registry: store and embedder are required")
	}
	kind, err := domain.ParseIndexKind(string(opts.Index.Kind))
	if err != nil {
		return nil, err
	}
	metric, err := domain.ParseMetricKind(string(opts.Index.Metric))
	if err != nil {
		return nil, err
	}
	opts.Index.Kind, opts.Index.Metric = kind, metric
	opts.Index.HNSW = opts.Index.HNSW.WithDefaults()
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		opts:     opts,
		store:    store,
		embedder: embedder,
		logger:   logger,
		entries:  make(map[string]*entry),
	}, nil
}

// CharacterKey normalises a character name for lookups and storage.
func CharacterKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) entry(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	return e
}

// Handle returns the ready index for character, loading a persisted
// artifact on first use. Concurrent first loads share one disk read; a
// caller whose ctx ends stops waiting but the shared load completes.
func (r *Registry) Handle(ctx context.Context, character string) (*Handle, error) {
	key := CharacterKey(character)
	e := r.entry(key)
	if h := e.ready.Load(); h != nil {
		return h, nil
	}

	// The shared load outlives a caller that gives up; others may wait on it.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.loads.DoChan(key, func() (any, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if h := e.ready.Load(); h != nil {
			return h, nil
		}
		h, err := r.loadLocked(loadCtx, key)
		if err != nil {
			return nil, err
		}
		e.ready.Store(h)
		r.logger.Debug("loaded index",
			zap.String("character", key),
			zap.Int("records", h.Corpus.Len()),
		)
		return h, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

func (r *Registry) loadLocked(ctx context.Context, key string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := r.store.LoadArtifact(key)
	if err != nil {
		return nil, err
	}
	if err := r.checkHeader(a.Header); err != nil {
		return nil, err
	}

	corpus := &domain.Corpus{
		Character: key,
		Dimension: a.Header.Dimension,
		Records:   a.Records,
	}
	if err := corpus.Validate(); err != nil {
		return nil, fmt.Errorf("stored index for %s: %w", key, err)
	}

	idx, err := vector.NewIndex(r.opts.Index)
	if err != nil {
		return nil, err
	}
	if err := idx.Restore(corpus, a.Payload); err != nil {
		return nil, fmt.Errorf("restore index for %s: %w", key, err)
	}
	return &Handle{
		Character:  key,
		Corpus:     corpus,
		Index:      idx,
		Header:     a.Header,
		Generation: r.gen.Add(1),
	}, nil
}

// checkHeader rejects an artifact built with a configuration other than
// the one requested now.
func (r *Registry) checkHeader(h port.ArtifactHeader) error {
	want := r.header(h.Character)
	mismatch := func(field, stored, requested string) error {
		return &domain.IndexConfigMismatchError{
			Character: h.Character,
			Field:     field,
			Stored:    stored,
			Requested: requested,
		}
	}
	switch {
	case h.Kind != want.Kind:
		return mismatch("index type", string(h.Kind), string(want.Kind))
	case h.Metric != want.Metric:
		return mismatch("metric", string(h.Metric), string(want.Metric))
	case h.Dimension != want.Dimension:
		return mismatch("dimension", strconv.Itoa(h.Dimension), strconv.Itoa(want.Dimension))
	case h.EmbeddingModel != want.EmbeddingModel:
		return mismatch("embedding model", h.EmbeddingModel, want.EmbeddingModel)
	}
	if want.Kind == domain.IndexHNSW {
		switch {
		case h.M != want.M:
			return mismatch("hnsw.m", strconv.Itoa(h.M), strconv.Itoa(want.M))
		case h.EfConstruction != want.EfConstruction:
			return mismatch("hnsw.ef_construction", strconv.Itoa(h.EfConstruction), strconv.Itoa(want.EfConstruction))
		case h.EfSearch != want.EfSearch:
			return mismatch("hnsw.ef_search", strconv.Itoa(h.EfSearch), strconv.Itoa(want.EfSearch))
		}
	}
	return nil
}

func (r *Registry) header(key string) port.ArtifactHeader {
	h := port.ArtifactHeader{
		Character:      key,
		Kind:           r.opts.Index.Kind,
		Metric:         r.opts.Index.Metric,
		Dimension:      r.embedder.Dimension(),
		EmbeddingModel: r.embedder.ModelName(),
	}
	if h.Kind == domain.IndexHNSW {
		h.M = r.opts.Index.HNSW.M
		h.EfConstruction = r.opts.Index.HNSW.EfConstruction
		h.EfSearch = r.opts.Index.HNSW.EfSearch
	}
	return h
}

// Build indexes a character definition from scratch and swaps it in.
// Episodic memories of the current index survive the rebuild; call Reset
// first to drop them. On failure the previous handle stays ready.
func (r *Registry) Build(ctx context.Context, c *domain.Character) (domain.IndexStats, error) {
	key := CharacterKey(c.Name)
	e := r.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	h, err := r.buildLocked(ctx, key, e, c)
	r.opts.Metrics.ObserveBuild(key, "build", string(r.opts.Index.Kind), recordsOf(h), start, err)
	if err != nil {
		r.logger.Warn("index build failed", zap.String("character", key), zap.Error(err))
		return domain.IndexStats{}, err
	}

	r.logger.Info("index built",
		zap.String("character", key),
		zap.String("kind", string(h.Index.Kind())),
		zap.Int("records", h.Corpus.Len()),
		zap.Duration("took", time.Since(start)),
	)
	return h.Stats(), nil
}

func (r *Registry) buildLocked(ctx context.Context, key string, e *entry, c *domain.Character) (*Handle, error) {
	snippets := CharacterSnippets(c, r.opts.Chunker)
	snippets = append(snippets, r.episodicLocked(key, e)...)

	records, err := r.embed(ctx, snippets)
	if err != nil {
		return nil, err
	}
	records = r.pruneEpisodic(key, records)
	corpus, err := domain.NewCorpus(key, r.embedder.Dimension())
	if err != nil {
		return nil, err
	}
	if err := corpus.Add(records...); err != nil {
		return nil, err
	}

	idx, err := vector.NewIndex(r.opts.Index)
	if err != nil {
		return nil, err
	}
	if err := idx.Build(ctx, corpus); err != nil {
		return nil, fmt.Errorf("build index for %s: %w", key, err)
	}

	header := r.header(key)
	header.BuiltAt = time.Now().UTC()
	return r.commitLocked(e, &Handle{Character: key, Corpus: corpus, Index: idx, Header: header})
}

// episodicLocked collects episodic memories from the ready handle, or from
// the stored artifact when nothing is loaded. They are re-embedded on
// rebuild, so a model change does not strand them.
func (r *Registry) episodicLocked(key string, e *entry) []domain.Snippet {
	var records []domain.VectorRecord
	if h := e.ready.Load(); h != nil {
		records = h.Corpus.Records
	} else if a, err := r.store.LoadArtifact(key); err == nil {
		records = a.Records
	} else if !errors.Is(err, domain.ErrIndexNotFound) {
		r.logger.Warn("could not read stored episodic memories", zap.String("character", key), zap.Error(err))
	}

	var out []domain.Snippet
	for _, rec := range records {
		if rec.Kind() != domain.KindEpisodic {
			continue
		}
		meta := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		out = append(out, domain.Snippet{ID: rec.ID, Text: rec.Text, Metadata: meta})
	}
	return out
}

// Append embeds snippets and adds them to the character's ready index
// without rebuilding it.
func (r *Registry) Append(ctx context.Context, character string, snippets ...domain.Snippet) (domain.IndexStats, error) {
	key := CharacterKey(character)
	if _, err := r.Handle(ctx, key); err != nil {
		return domain.IndexStats{}, err
	}

	e := r.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	h, err := r.appendLocked(ctx, key, e, snippets)
	r.opts.Metrics.ObserveBuild(key, "append", string(r.opts.Index.Kind), recordsOf(h), start, err)
	if err != nil {
		return domain.IndexStats{}, err
	}
	r.logger.Info("index extended",
		zap.String("character", key),
		zap.Int("added", len(snippets)),
		zap.Int("records", h.Corpus.Len()),
	)
	return h.Stats(), nil
}

func (r *Registry) appendLocked(ctx context.Context, key string, e *entry, snippets []domain.Snippet) (*Handle, error) {
	cur := e.ready.Load()
	if cur == nil {
		// Reset raced with us.
		return nil, &domain.IndexNotFoundError{Character: key}
	}
	records, err := r.embed(ctx, snippets)
	if err != nil {
		return nil, err
	}

	corpus := cur.Corpus.Clone()
	from := corpus.Len()
	if err := corpus.Add(records...); err != nil {
		return nil, err
	}

	var idx port.Index
	if kept := r.pruneEpisodic(key, corpus.Records); len(kept) < corpus.Len() {
		// Indexes cannot delete, so eviction rebuilds from the kept vectors.
		corpus, err = domain.NewCorpus(key, cur.Corpus.Dimension)
		if err != nil {
			return nil, err
		}
		if err := corpus.Add(kept...); err != nil {
			return nil, err
		}
		if idx, err = vector.NewIndex(r.opts.Index); err != nil {
			return nil, err
		}
		if err := idx.Build(ctx, corpus); err != nil {
			return nil, fmt.Errorf("rebuild index for %s: %w", key, err)
		}
	} else if idx, err = cur.Index.Extend(ctx, corpus, from); err != nil {
		return nil, fmt.Errorf("extend index for %s: %w", key, err)
	}

	header := cur.Header
	header.BuiltAt = time.Now().UTC()
	return r.commitLocked(e, &Handle{Character: key, Corpus: corpus, Index: idx, Header: header})
}

func (r *Registry) pruneEpisodic(key string, records []domain.VectorRecord) []domain.VectorRecord {
	kept, dropped := r.opts.Episodic.Prune(records)
	if dropped > 0 {
		r.logger.Info("evicted episodic memories",
			zap.String("character", key),
			zap.Int("evicted", dropped),
			zap.Int("max", r.opts.Episodic.MaxMemories),
		)
	}
	return kept
}

// Remember stores an episodic memory for character. Beyond the configured
// cap the least important and oldest memories are evicted.
func (r *Registry) Remember(ctx context.Context, character string, ep Episode) (domain.IndexStats, error) {
	s, err := EpisodicSnippet(character, ep)
	if err != nil {
		return domain.IndexStats{}, err
	}
	return r.Append(ctx, character, s)
}

// commitLocked persists h and makes it the ready handle.
func (r *Registry) commitLocked(e *entry, h *Handle) (*Handle, error) {
	payload, err := h.Index.Snapshot()
	if err != nil {
		return nil, err
	}
	h.Header.Records = h.Corpus.Len()
	err = r.store.SaveArtifact(port.Artifact{
		Header:  h.Header,
		Records: h.Corpus.Records,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("persist index for %s: %w", h.Character, err)
	}
	h.Generation = r.gen.Add(1)
	e.ready.Store(h)
	r.swapped(h.Character)
	return h, nil
}

// Reset drops the in-memory and persisted index. Resetting a character
// without an index is a no-op.
func (r *Registry) Reset(character string) error {
	key := CharacterKey(character)
	e := r.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	had := e.ready.Swap(nil) != nil
	if err := r.store.DeleteArtifact(key); err != nil {
		return fmt.Errorf("delete index for %s: %w", key, err)
	}
	r.opts.Metrics.ObserveReset(key)
	r.swapped(key)
	r.logger.Info("index reset", zap.String("character", key), zap.Bool("was_loaded", had))
	return nil
}

// BuildAll builds the given characters concurrently. onDone, when set, is
// called from the building goroutine after each character finishes. The
// first failure cancels builds that have not started yet.
func (r *Registry) BuildAll(ctx context.Context, chars []*domain.Character, onDone func(name string, st domain.IndexStats, err error)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for _, c := range chars {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, err := r.Build(ctx, c)
			if onDone != nil {
				onDone(c.Name, st, err)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Headers lists persisted artifacts.
func (r *Registry) Headers() ([]port.ArtifactHeader, error) {
	return r.store.ListHeaders()
}

// Options returns the effective options after defaults.
func (r *Registry) Options() RegistryOptions {
	return r.opts
}

func (r *Registry) Embedder() port.Embedder {
	return r.embedder
}

// Close drops every handle and closes the store.
func (r *Registry) Close() error {
	r.mu.Lock()
	for _, e := range r.entries {
		e.ready.Store(nil)
	}
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	return r.store.Close()
}

func (r *Registry) embed(ctx context.Context, snippets []domain.Snippet) ([]domain.VectorRecord, error) {
	if len(snippets) == 0 {
		return nil, nil
	}
	texts := make([]string, len(snippets))
	for i, s := range snippets {
		texts[i] = s.Text
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.EmbeddingUnavailableError{Model: r.embedder.ModelName(), Err: err}
	}
	if len(vecs) != len(snippets) {
		return nil, &domain.EmbeddingUnavailableError{
			Model: r.embedder.ModelName(),
			Err:   fmt.Errorf("got %d embeddings for %d texts", len(vecs), len(snippets)),
		}
	}

	records := make([]domain.VectorRecord, len(snippets))
	for i, s := range snippets {
		records[i] = domain.VectorRecord{ID: s.ID, Vector: vecs[i], Text: s.Text, Metadata: s.Metadata}
	}
	return records, nil
}

func (r *Registry) swapped(key string) {
	if r.opts.OnSwap != nil {
		r.opts.OnSwap(key)
	}
}

func recordsOf(h *Handle) int {
	if h == nil {
		return 0
	}
	return h.Corpus.Len()
}
