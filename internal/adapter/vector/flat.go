package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"charrag/internal/domain"
	"charrag/internal/port"
)

// FlatIndex is an exact index: every query is scored against every record.
// Ties keep insertion order, so results are reproducible.
type FlatIndex struct {
	metric    Metric
	dimension int
	vectors   [][]float32
}

var _ port.Index = (*FlatIndex)(nil)

// NewFlatIndex creates an empty flat index for metric.
func NewFlatIndex(metric Metric) *FlatIndex {
	return &FlatIndex{metric: metric}
}

func (f *FlatIndex) Kind() domain.IndexKind    { return domain.IndexFlat }
func (f *FlatIndex) Metric() domain.MetricKind { return f.metric.Kind() }
func (f *FlatIndex) Len() int                  { return len(f.vectors) }

func (f *FlatIndex) Build(ctx context.Context, corpus *domain.Corpus) error {
	vecs, err := prepareRecords(ctx, f.metric, corpus.Records)
	if err != nil {
		return err
	}
	f.dimension = corpus.Dimension
	f.vectors = vecs
	return nil
}

func (f *FlatIndex) Extend(ctx context.Context, corpus *domain.Corpus, from int) (port.Index, error) {
	if from < 0 || from != len(f.vectors) || from > corpus.Len() {
		return nil, fmt.Errorf("flat index: cannot extend from %d, index holds %d", from, len(f.vectors))
	}
	added, err := prepareRecords(ctx, f.metric, corpus.Records[from:])
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, 0, corpus.Len())
	vecs = append(vecs, f.vectors[:from]...)
	vecs = append(vecs, added...)
	return &FlatIndex{metric: f.metric, dimension: corpus.Dimension, vectors: vecs}, nil
}

func (f *FlatIndex) Search(query []float32, topK int) ([]port.Hit, error) {
	q, err := prepareQuery(f.metric, f.dimension, query)
	if err != nil {
		return nil, err
	}
	if topK <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}

	hits := make([]port.Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = port.Hit{Position: i, RawScore: f.metric.compare(q, v)}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].RawScore > hits[j].RawScore
	})

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Snapshot returns nil: a flat index is fully determined by its corpus.
func (f *FlatIndex) Snapshot() ([]byte, error) { return nil, nil }

func (f *FlatIndex) Restore(corpus *domain.Corpus, _ []byte) error {
	return f.Build(context.Background(), corpus)
}

// prepareRecords applies the metric preparation to every record vector,
// attributing degenerate vectors to their record.
func prepareRecords(ctx context.Context, metric Metric, records []domain.VectorRecord) ([][]float32, error) {
	out := make([][]float32, len(records))
	for i, r := range records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		v, err := metric.prepare(r.Vector)
		if err != nil {
			var degen *domain.DegenerateVectorError
			if errors.As(err, &degen) {
				return nil, &domain.DegenerateVectorError{RecordID: r.ID}
			}
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func prepareQuery(metric Metric, dimension int, query []float32) ([]float32, error) {
	if dimension > 0 && len(query) != dimension {
		return nil, &domain.CorpusDimensionMismatchError{RecordID: "query", Want: dimension, Got: len(query)}
	}
	return metric.prepare(query)
}
