// Package vector implements similarity metrics and nearest-neighbour
// backends over character corpora.
package vector

import (
	"fmt"
	"math"

	"charrag/internal/domain"
)

// Metric scores a pair of vectors. Every metric is oriented so that a
// higher score means more similar, which lets the backends rank uniformly.
//
// Backends work on prepared vectors: prepare is applied once per record at
// build time and once per query, and compare is only valid on its output.
type Metric interface {
	Kind() domain.MetricKind

	// Score compares two raw vectors of equal length.
	Score(a, b []float32) (float64, error)

	prepare(v []float32) ([]float32, error)
	compare(a, b []float32) float64
}

// NewMetric returns the metric for kind.
func NewMetric(kind domain.MetricKind) (Metric, error) {
	switch kind {
	case domain.MetricCosine:
		return cosineMetric{}, nil
	case domain.MetricDot:
		return dotMetric{}, nil
	case domain.MetricEuclidean:
		return euclideanMetric{}, nil
	default:
		return nil, fmt.Errorf("unknown metric: %s", kind)
	}
}

// cosineMetric: normalized dot product in [-1, 1].
type cosineMetric struct{}

func (cosineMetric) Kind() domain.MetricKind { return domain.MetricCosine }

func (m cosineMetric) Score(a, b []float32) (float64, error) {
	if err := sameLen(a, b); err != nil {
		return 0, err
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0, &domain.DegenerateVectorError{}
	}
	return clampUnit(Dot(a, b) / (na * nb)), nil
}

func (cosineMetric) prepare(v []float32) ([]float32, error) {
	n := Norm(v)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, &domain.DegenerateVectorError{}
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out, nil
}

func (cosineMetric) compare(a, b []float32) float64 {
	return clampUnit(Dot(a, b))
}

// dotMetric: raw inner product.
type dotMetric struct{}

func (dotMetric) Kind() domain.MetricKind { return domain.MetricDot }

func (dotMetric) Score(a, b []float32) (float64, error) {
	if err := sameLen(a, b); err != nil {
		return 0, err
	}
	return Dot(a, b), nil
}

func (dotMetric) prepare(v []float32) ([]float32, error) { return copyVec(v), nil }

func (dotMetric) compare(a, b []float32) float64 { return Dot(a, b) }

// euclideanMetric: negative L2 distance, so 0 is an exact match.
type euclideanMetric struct{}

func (euclideanMetric) Kind() domain.MetricKind { return domain.MetricEuclidean }

func (m euclideanMetric) Score(a, b []float32) (float64, error) {
	if err := sameLen(a, b); err != nil {
		return 0, err
	}
	return m.compare(a, b), nil
}

func (euclideanMetric) prepare(v []float32) ([]float32, error) { return copyVec(v), nil }

func (euclideanMetric) compare(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return -math.Sqrt(sum)
}

// Dot returns the inner product accumulated in float64.
func Dot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Norm returns the L2 norm of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func sameLen(a, b []float32) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: vectors have %d and %d dimensions", domain.ErrCorpusDimensionMismatch, len(a), len(b))
	}
	return nil
}

// clampUnit absorbs floating point drift past +-1.
func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

func copyVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
