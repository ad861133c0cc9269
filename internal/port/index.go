package port

import (
	"context"

	"charrag/internal/domain"
)

// Hit is a search result pointing into the corpus the index was built from.
type Hit struct {
	Position int     // index into Corpus.Records
	RawScore float64 // metric score, higher is more similar
}

// Index is a nearest-neighbour structure over one corpus snapshot.
//
// Build and Extend never mutate a structure that is already being searched:
// Build is only called on a fresh instance and Extend returns a new one.
// Search is read-only and safe for concurrent use.
type Index interface {
	Kind() domain.IndexKind
	Metric() domain.MetricKind

	// Build indexes every record of corpus.
	Build(ctx context.Context, corpus *domain.Corpus) error

	// Extend returns a new index over corpus, where the receiver already
	// covers corpus.Records[:from].
	Extend(ctx context.Context, corpus *domain.Corpus, from int) (Index, error)

	// Search returns up to topK hits ordered most similar first.
	Search(query []float32, topK int) ([]Hit, error)

	// Len returns the number of indexed vectors.
	Len() int

	// Snapshot encodes backend-specific state (graph topology). Vectors are
	// not included; Restore takes them from the corpus.
	Snapshot() ([]byte, error)

	// Restore rebuilds in-memory state from a corpus and a Snapshot payload.
	Restore(corpus *domain.Corpus, payload []byte) error
}
