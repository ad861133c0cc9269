package vector

import (
	"fmt"

	"charrag/internal/domain"
	"charrag/internal/port"
)

// Options selects a backend and its parameters.
type Options struct {
	Kind   domain.IndexKind
	Metric domain.MetricKind
	HNSW   HNSWConfig
}

// NewIndex creates an empty index of the requested kind and metric.
// Adding a backend means one new case here; callers only see port.Index.
func NewIndex(opts Options) (port.Index, error) {
	metric, err := NewMetric(opts.Metric)
	if err != nil {
		return nil, err
	}
	switch opts.Kind {
	case domain.IndexFlat, "":
		return NewFlatIndex(metric), nil
	case domain.IndexHNSW:
		return NewHNSWIndex(metric, opts.HNSW), nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: flat, hnsw)", opts.Kind)
	}
}
