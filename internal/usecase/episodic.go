package usecase

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"charrag/internal/domain"
)

// DefaultImportance is stored for an episode that does not set one.
const DefaultImportance = 0.5

// recencyHalfLife is the age at which recency drops to one half, and the
// period over which DecayRate applies once.
const recencyHalfLife = 30 * 24 * time.Hour

// EpisodicPolicy weights and bounds a character's episodic memories.
// Importance decays with age, so an old memory needs to have been more
// important to outrank a fresh one.
type EpisodicPolicy struct {
	// MaxMemories caps episodic memories per character. 0 disables the cap.
	MaxMemories int
	// Reweight blends importance and recency into the relevance of
	// retrieved episodic memories.
	Reweight         bool
	SemanticWeight   float64
	ImportanceWeight float64
	RecencyWeight    float64
	// DecayRate multiplies importance once per 30 days of age.
	DecayRate     float64
	MinImportance float64

	Now func() time.Time
}

func DefaultEpisodicPolicy() EpisodicPolicy {
	return EpisodicPolicy{
		MaxMemories:      100,
		Reweight:         true,
		SemanticWeight:   0.6,
		ImportanceWeight: 0.7,
		RecencyWeight:    0.3,
		DecayRate:        0.95,
		MinImportance:    0.1,
	}
}

// Validate rejects negative weights and rates outside (0,1].
func (p EpisodicPolicy) Validate() error {
	if p.MaxMemories < 0 {
		return fmt.Errorf("episodic max memories must not be negative, got %d", p.MaxMemories)
	}
	weights := []struct {
		name string
		w    float64
	}{
		{"semantic", p.SemanticWeight},
		{"importance", p.ImportanceWeight},
		{"recency", p.RecencyWeight},
	}
	for _, w := range weights {
		if math.IsNaN(w.w) || w.w < 0 {
			return fmt.Errorf("episodic %s weight must not be negative, got %v", w.name, w.w)
		}
	}
	if p.Reweight && p.SemanticWeight+p.ImportanceWeight+p.RecencyWeight == 0 {
		return fmt.Errorf("episodic weights must not all be zero")
	}
	if p.DecayRate <= 0 || p.DecayRate > 1 {
		return fmt.Errorf("episodic decay rate must be in (0,1], got %v", p.DecayRate)
	}
	if p.MinImportance < 0 || p.MinImportance > 1 {
		return fmt.Errorf("episodic min importance must be in [0,1], got %v", p.MinImportance)
	}
	return nil
}

func (p EpisodicPolicy) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Importance returns the decayed importance of an episodic record. Decay is
// computed from the stored value at read time, never written back.
func (p EpisodicPolicy) Importance(rec domain.VectorRecord, now time.Time) float64 {
	imp := storedImportance(rec)
	months := episodeAge(rec, now).Hours() / recencyHalfLife.Hours()
	if p.DecayRate > 0 && p.DecayRate < 1 {
		imp *= math.Pow(p.DecayRate, months)
	}
	return math.Max(p.MinImportance, imp)
}

// Recency is 1 for a fresh memory and 1/2 after 30 days.
func Recency(rec domain.VectorRecord, now time.Time) float64 {
	return 1 / (1 + episodeAge(rec, now).Hours()/recencyHalfLife.Hours())
}

// Rerank blends semantic relevance with importance and recency for
// episodic records, drops those that fall below minRelevance and restores
// descending order. Other records keep their relevance. Blended relevance
// stays in [0,1] because it is a weighted mean of values in [0,1].
func (p EpisodicPolicy) Rerank(result domain.RetrievalResult, minRelevance float64) domain.RetrievalResult {
	if !p.Reweight || len(result) == 0 {
		return result
	}
	total := p.SemanticWeight + p.ImportanceWeight + p.RecencyWeight
	if total <= 0 {
		return result
	}
	now := p.now()

	out := make(domain.RetrievalResult, 0, len(result))
	for _, sr := range result {
		if sr.Record.Kind() == domain.KindEpisodic {
			sr.Relevance = (p.SemanticWeight*sr.Relevance +
				p.ImportanceWeight*p.Importance(sr.Record, now) +
				p.RecencyWeight*Recency(sr.Record, now)) / total
			if sr.Relevance < minRelevance {
				continue
			}
		}
		out = append(out, sr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Relevance > out[j].Relevance
	})
	return out
}

// retention ranks episodic memories for eviction; the lowest goes first.
func (p EpisodicPolicy) retention(rec domain.VectorRecord, now time.Time) float64 {
	return 0.7*p.Importance(rec, now) + 0.2*Recency(rec, now)
}

// Prune drops the least retained episodic records beyond MaxMemories.
// Other records and the order of the survivors are kept.
func (p EpisodicPolicy) Prune(records []domain.VectorRecord) ([]domain.VectorRecord, int) {
	if p.MaxMemories <= 0 {
		return records, 0
	}
	var episodic []int
	for i, rec := range records {
		if rec.Kind() == domain.KindEpisodic {
			episodic = append(episodic, i)
		}
	}
	excess := len(episodic) - p.MaxMemories
	if excess <= 0 {
		return records, 0
	}

	now := p.now()
	score := make(map[int]float64, len(episodic))
	for _, i := range episodic {
		score[i] = p.retention(records[i], now)
	}
	// Ties evict the older record first.
	sort.SliceStable(episodic, func(a, b int) bool {
		ia, ib := episodic[a], episodic[b]
		if score[ia] != score[ib] {
			return score[ia] < score[ib]
		}
		return createdAt(records[ia]).Before(createdAt(records[ib]))
	})
	drop := make(map[int]bool, excess)
	for _, i := range episodic[:excess] {
		drop[i] = true
	}

	kept := make([]domain.VectorRecord, 0, len(records)-excess)
	for i, rec := range records {
		if !drop[i] {
			kept = append(kept, rec)
		}
	}
	return kept, excess
}

func storedImportance(rec domain.VectorRecord) float64 {
	v, ok := rec.Metadata[MetaImportance]
	if !ok {
		return DefaultImportance
	}
	imp, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(imp) {
		return DefaultImportance
	}
	return math.Max(0, math.Min(1, imp))
}

func createdAt(rec domain.VectorRecord) time.Time {
	t, err := time.Parse(time.RFC3339, rec.Metadata[MetaCreatedAt])
	if err != nil {
		return time.Time{}
	}
	return t
}

// episodeAge is zero for a missing timestamp or one in the future.
func episodeAge(rec domain.VectorRecord, now time.Time) time.Duration {
	t := createdAt(rec)
	if t.IsZero() || t.After(now) {
		return 0
	}
	return now.Sub(t)
}
