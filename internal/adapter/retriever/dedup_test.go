package retriever

import (
	"testing"

	"charrag/internal/adapter/analyzer"
	"charrag/internal/domain"
)

func memory(id, text string, rel float64) domain.ScoredRecord {
	return domain.ScoredRecord{
		Record:    domain.VectorRecord{ID: id, Text: text},
		Relevance: rel,
	}
}

func TestDedupDropsRepeatedMemories(t *testing.T) {
	d := NewDeduper(0.6, analyzer.NewTokenizer())

	result := domain.RetrievalResult{
		memory("e1", "Watson brought a new case about a stolen violin", 0.9),
		memory("e2", "Watson brought the new case about the stolen violin", 0.8),
		memory("f1", "Moriarty is his nemesis", 0.7),
	}

	got := d.Dedup(result)
	if len(got) != 2 {
		t.Fatalf("expected 2 memories after dedup, got %d", len(got))
	}
	if got[0].Record.ID != "e1" || got[1].Record.ID != "f1" {
		t.Errorf("expected e1 then f1, got %s then %s", got[0].Record.ID, got[1].Record.ID)
	}
}

func TestDedupDisabled(t *testing.T) {
	result := domain.RetrievalResult{
		memory("a", "same words here", 0.9),
		memory("b", "same words here", 0.8),
	}
	for _, threshold := range []float64{0, 1, -0.5} {
		if got := NewDeduper(threshold, analyzer.NewTokenizer()).Dedup(result); len(got) != 2 {
			t.Errorf("threshold %v: expected dedup disabled, got %d results", threshold, len(got))
		}
	}

	var nilDeduper *Deduper
	if got := nilDeduper.Dedup(result); len(got) != 2 {
		t.Errorf("nil deduper should pass results through")
	}
}

func TestDedupEmpty(t *testing.T) {
	d := NewDeduper(0.8, analyzer.NewTokenizer())
	if got := d.Dedup(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected float64
	}{
		{
			name:     "identical",
			a:        []string{"a", "b", "c"},
			b:        []string{"a", "b", "c"},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        []string{"a", "b", "c"},
			b:        []string{"d", "e", "f"},
			expected: 0.0,
		},
		{
			name:     "half overlap",
			a:        []string{"a", "b"},
			b:        []string{"b", "c"},
			expected: 1.0 / 3.0,
		},
		{
			name:     "empty a",
			a:        []string{},
			b:        []string{"a", "b"},
			expected: 0.0,
		},
		{
			name:     "both empty",
			a:        []string{},
			b:        []string{},
			expected: 1.0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := jaccardSimilarity(tc.a, tc.b)
			if !floatEquals(result, tc.expected, 0.001) {
				t.Errorf("jaccardSimilarity(%v, %v) = %f, expected %f", tc.a, tc.b, result, tc.expected)
			}
		})
	}
}

func floatEquals(a, b, tolerance float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < tolerance
}
