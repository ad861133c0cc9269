package domain

import (
	"fmt"
	"strings"
)

// IndexKind selects the nearest-neighbour backend.
type IndexKind string

const (
	IndexFlat IndexKind = "flat"
	IndexHNSW IndexKind = "hnsw"
)

// ParseIndexKind validates an index type name.
func ParseIndexKind(s string) (IndexKind, error) {
	switch k := IndexKind(strings.ToLower(strings.TrimSpace(s))); k {
	case IndexFlat, IndexHNSW:
		return k, nil
	case "":
		return IndexFlat, nil
	default:
		return "", fmt.Errorf("unknown index type: %s (supported: flat, hnsw)", s)
	}
}

// MetricKind selects the similarity function.
type MetricKind string

const (
	MetricCosine    MetricKind = "cosine"
	MetricDot       MetricKind = "dot"
	MetricEuclidean MetricKind = "euclidean"
)

// ParseMetricKind validates a metric name.
func ParseMetricKind(s string) (MetricKind, error) {
	switch k := MetricKind(strings.ToLower(strings.TrimSpace(s))); k {
	case MetricCosine, MetricDot, MetricEuclidean:
		return k, nil
	case "":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown metric: %s (supported: cosine, dot, euclidean)", s)
	}
}

// RelevanceMethod selects the raw score to relevance transform.
type RelevanceMethod string

const (
	RelevanceSigmoid     RelevanceMethod = "sigmoid"
	RelevanceLinear      RelevanceMethod = "linear"
	RelevanceInverse     RelevanceMethod = "inverse"
	RelevanceExponential RelevanceMethod = "exponential"
)

// ParseRelevanceMethod validates a relevance method name.
func ParseRelevanceMethod(s string) (RelevanceMethod, error) {
	switch m := RelevanceMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case RelevanceSigmoid, RelevanceLinear, RelevanceInverse, RelevanceExponential:
		return m, nil
	case "":
		return RelevanceSigmoid, nil
	default:
		return "", fmt.Errorf("unknown relevance method: %s (supported: sigmoid, linear, inverse, exponential)", s)
	}
}

// MemoryKind tags what a snippet describes.
type MemoryKind string

const (
	KindFacts          MemoryKind = "facts"
	KindTraits         MemoryKind = "traits"
	KindSpeechPatterns MemoryKind = "speech_patterns"
	KindEpisodic       MemoryKind = "episodic"
	KindLore           MemoryKind = "lore"
)

// AllMemoryKinds lists kinds in prompt section order.
var AllMemoryKinds = []MemoryKind{KindFacts, KindTraits, KindSpeechPatterns, KindLore, KindEpisodic}

// ParseMemoryKind validates a memory kind name.
func ParseMemoryKind(s string) (MemoryKind, error) {
	k := MemoryKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllMemoryKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown memory kind: %s", s)
}

// StyleLevel controls how strongly the prompt conditions on the persona.
type StyleLevel string

const (
	StyleLow    StyleLevel = "low"
	StyleMedium StyleLevel = "medium"
	StyleHigh   StyleLevel = "high"
)

// ParseStyleLevel validates a style level name.
func ParseStyleLevel(s string) (StyleLevel, error) {
	switch l := StyleLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case StyleLow, StyleMedium, StyleHigh:
		return l, nil
	case "":
		return StyleHigh, nil
	default:
		return "", fmt.Errorf("unknown style level: %s (supported: low, medium, high)", s)
	}
}
