// Package retriever post-processes retrieval results before they reach the
// prompt.
package retriever

import (
	"charrag/internal/domain"
	"charrag/internal/port"
)

// Deduper drops memories that repeat a more relevant one. Two memories are
// duplicates when the Jaccard similarity of their content words exceeds the
// threshold.
type Deduper struct {
	threshold float64
	tokenizer port.Tokenizer
}

// NewDeduper creates a deduper. A threshold outside (0,1) disables it.
func NewDeduper(threshold float64, tokenizer port.Tokenizer) *Deduper {
	return &Deduper{threshold: threshold, tokenizer: tokenizer}
}

// Dedup keeps the first of every group of near-duplicates. result must be
// ordered by descending relevance; the order is preserved.
func (d *Deduper) Dedup(result domain.RetrievalResult) domain.RetrievalResult {
	if d == nil || d.threshold <= 0 || d.threshold >= 1 || len(result) < 2 {
		return result
	}

	kept := make(domain.RetrievalResult, 0, len(result))
	keptTokens := make([][]string, 0, len(result))
	for _, sr := range result {
		tokens := d.tokenizer.Tokenize(sr.Record.Text)
		duplicate := false
		for _, prev := range keptTokens {
			if jaccardSimilarity(tokens, prev) > d.threshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, sr)
		keptTokens = append(keptTokens, tokens)
	}
	return kept
}

// jaccardSimilarity computes the Jaccard similarity between two token sets.
func jaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	intersection := 0
	for t := range setA {
		if _, exists := setB[t]; exists {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
