// Package relevance turns raw similarity scores into bounded relevance
// values and applies the minimum relevance cutoff.
package relevance

import (
	"fmt"
	"math"
	"sort"

	"charrag/internal/domain"
)

const (
	// DefaultSteepness maps a raw cosine of 1 to ~0.993 and -1 to ~0.007.
	DefaultSteepness = 5.0
	// DefaultMidpoint makes a raw cosine of 0 score exactly 0.5.
	DefaultMidpoint = 0.0

	// maxExponent bounds the sigmoid exponent so math.Exp never overflows.
	maxExponent = 500.0
)

// Scorer computes relevance for a batch of candidates.
type Scorer struct {
	Steepness float64
	Midpoint  float64
}

// NewScorer returns a scorer with the default sigmoid constants.
func NewScorer() Scorer {
	return Scorer{Steepness: DefaultSteepness, Midpoint: DefaultMidpoint}
}

// WithDefaults fills an unset steepness. The midpoint is kept as given
// since zero is a valid midpoint.
func (s Scorer) WithDefaults() Scorer {
	if s.Steepness <= 0 || math.IsNaN(s.Steepness) {
		s.Steepness = DefaultSteepness
	}
	return s
}

// Sigmoid returns 1/(1+e^(-k(raw-mid))). The result is in [0,1] for every
// finite input and NaN maps to 0.
func (s Scorer) Sigmoid(raw float64) float64 {
	if math.IsNaN(raw) {
		return 0
	}
	z := s.Steepness * (raw - s.Midpoint)
	if math.IsNaN(z) {
		return 0
	}
	z = math.Max(-maxExponent, math.Min(maxExponent, z))
	return 1 / (1 + math.Exp(-z))
}

// Relevances maps raw scores to relevance with method. The metric is needed
// by the distance based methods to recover a distance from the raw score.
func (s Scorer) Relevances(raws []float64, method domain.RelevanceMethod, metric domain.MetricKind) ([]float64, error) {
	out := make([]float64, len(raws))
	switch method {
	case domain.RelevanceSigmoid, "":
		for i, r := range raws {
			out[i] = s.Sigmoid(r)
		}
	case domain.RelevanceLinear:
		linear(raws, out)
	case domain.RelevanceInverse:
		for i, r := range raws {
			out[i] = 1 / (1 + distance(r, metric))
		}
	case domain.RelevanceExponential:
		for i, r := range raws {
			out[i] = math.Exp(-distance(r, metric))
		}
	default:
		return nil, fmt.Errorf("unknown relevance method: %s", method)
	}
	for i, v := range out {
		out[i] = clamp01(v)
	}
	return out, nil
}

// ScoreAndFilter scores candidates, drops those below minRelevance and
// orders the rest by descending relevance. Ties keep the candidate order.
// An empty result means nothing was relevant enough; it is not an error.
func (s Scorer) ScoreAndFilter(candidates []domain.Candidate, method domain.RelevanceMethod, metric domain.MetricKind, minRelevance float64) (domain.RetrievalResult, error) {
	if math.IsNaN(minRelevance) || minRelevance < 0 || minRelevance > 1 {
		return nil, fmt.Errorf("min relevance must be in [0,1], got %v", minRelevance)
	}

	raws := make([]float64, len(candidates))
	for i, c := range candidates {
		raws[i] = c.RawScore
	}
	rel, err := s.Relevances(raws, method, metric)
	if err != nil {
		return nil, err
	}

	result := make(domain.RetrievalResult, 0, len(candidates))
	for i, c := range candidates {
		if rel[i] < minRelevance {
			continue
		}
		result = append(result, domain.ScoredRecord{
			Record:    c.Record,
			RawScore:  c.RawScore,
			Relevance: rel[i],
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Relevance > result[j].Relevance
	})
	return result, nil
}

// linear min-max normalizes over the batch. A batch of equal scores is
// fully relevant.
func linear(raws, out []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range raws {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	span := hi - lo
	for i, r := range raws {
		switch {
		case math.IsNaN(r):
			out[i] = 0
		case math.IsInf(r, 1):
			out[i] = 1
		case math.IsInf(r, -1):
			out[i] = 0
		case span == 0 || math.IsInf(span, 0) || math.IsNaN(span):
			out[i] = 1
		default:
			out[i] = (r - lo) / span
		}
	}
}

// distance recovers a non-negative distance from a raw score. Cosine and
// dot scores are similarities with 1 as a perfect match; euclidean scores
// are negated L2 distances.
func distance(raw float64, metric domain.MetricKind) float64 {
	if math.IsNaN(raw) {
		return math.Inf(1)
	}
	var d float64
	if metric == domain.MetricEuclidean {
		d = -raw
	} else {
		d = 1 - raw
	}
	return math.Max(d, 0)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
