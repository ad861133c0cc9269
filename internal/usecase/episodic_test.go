package usecase

import (
	"context"
	"math"
	"slices"
	"strconv"
	"testing"
	"time"

	"charrag/internal/domain"
)

var policyNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedPolicy() EpisodicPolicy {
	p := DefaultEpisodicPolicy()
	p.Now = func() time.Time { return policyNow }
	return p
}

func episodicRecord(id string, importance float64, age time.Duration) domain.VectorRecord {
	return domain.VectorRecord{
		ID:   id,
		Text: id,
		Metadata: map[string]string{
			domain.MetaKind: string(domain.KindEpisodic),
			MetaImportance:  strconv.FormatFloat(importance, 'f', -1, 64),
			MetaCreatedAt:   policyNow.Add(-age).Format(time.RFC3339),
		},
	}
}

func factRecord(id string) domain.VectorRecord {
	return domain.VectorRecord{ID: id, Text: id, Metadata: map[string]string{domain.MetaKind: string(domain.KindFacts)}}
}

const day = 24 * time.Hour

func TestEpisodicImportanceDecays(t *testing.T) {
	p := fixedPolicy()
	tests := []struct {
		name string
		rec  domain.VectorRecord
		want float64
	}{
		{"fresh", episodicRecord("a", 0.8, 0), 0.8},
		{"two months", episodicRecord("b", 0.8, 60*day), 0.8 * 0.95 * 0.95},
		{"floored", episodicRecord("c", 0.2, 3650*day), 0.1},
		{"missing importance", domain.VectorRecord{Metadata: map[string]string{domain.MetaKind: "episodic"}}, DefaultImportance},
		{"future timestamp", episodicRecord("d", 0.7, -10*day), 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Importance(tt.rec, policyNow); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if got := Recency(episodicRecord("e", 0.5, 30*day), policyNow); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("recency after 30 days: got %v, want 0.5", got)
	}
}

func TestRerankBlendsEpisodicAndKeepsOrder(t *testing.T) {
	p := fixedPolicy()
	result := domain.RetrievalResult{
		{Record: factRecord("fact-high"), Relevance: 0.9},
		{Record: episodicRecord("faded", 0.1, 300*day), Relevance: 0.85},
		{Record: factRecord("fact-low"), Relevance: 0.6},
		{Record: episodicRecord("vivid", 1, 0), Relevance: 0.5},
	}

	got := p.Rerank(result, 0.5)
	if want := []string{"fact-high", "vivid", "fact-low"}; !slices.Equal(ids(got), want) {
		t.Fatalf("order: got %v, want %v", ids(got), want)
	}
	// (0.6*0.5 + 0.7*1 + 0.3*1) / 1.6
	if rel := got[1].Relevance; math.Abs(rel-1.3/1.6) > 1e-9 {
		t.Errorf("vivid relevance: got %v, want %v", rel, 1.3/1.6)
	}
	for i, sr := range got {
		if sr.Relevance < 0 || sr.Relevance > 1 {
			t.Errorf("relevance out of range at %d: %v", i, sr.Relevance)
		}
		if i > 0 && sr.Relevance > got[i-1].Relevance {
			t.Errorf("relevance increases at %d", i)
		}
	}
	if result[3].Relevance != 0.5 {
		t.Error("rerank modified its input")
	}

	p.Reweight = false
	if off := p.Rerank(result, 0.5); !slices.Equal(ids(off), ids(result)) {
		t.Errorf("disabled rerank changed the result: %v", ids(off))
	}
}

func TestPruneEvictsLeastRetained(t *testing.T) {
	p := fixedPolicy()
	p.MaxMemories = 2
	records := []domain.VectorRecord{
		factRecord("fact"),
		episodicRecord("old-minor", 0.3, 90*day),
		episodicRecord("new-major", 0.9, 0),
		episodicRecord("new-minor", 0.3, 0),
	}

	kept, dropped := p.Prune(records)
	if dropped != 1 {
		t.Fatalf("expected 1 eviction, got %d", dropped)
	}
	var got []string
	for _, r := range kept {
		got = append(got, r.ID)
	}
	if want := []string{"fact", "new-major", "new-minor"}; !slices.Equal(got, want) {
		t.Errorf("kept %v, want %v", got, want)
	}

	p.MaxMemories = 0
	if _, dropped := p.Prune(records); dropped != 0 {
		t.Errorf("uncapped policy evicted %d", dropped)
	}
}

func TestEpisodicPolicyValidate(t *testing.T) {
	if err := DefaultEpisodicPolicy().Validate(); err != nil {
		t.Fatalf("default policy: %v", err)
	}
	bad := []func(*EpisodicPolicy){
		func(p *EpisodicPolicy) { p.MaxMemories = -1 },
		func(p *EpisodicPolicy) { p.RecencyWeight = -0.1 },
		func(p *EpisodicPolicy) { p.SemanticWeight, p.ImportanceWeight, p.RecencyWeight = 0, 0, 0 },
		func(p *EpisodicPolicy) { p.DecayRate = 0 },
		func(p *EpisodicPolicy) { p.DecayRate = 1.2 },
		func(p *EpisodicPolicy) { p.MinImportance = 2 },
	}
	for i, mutate := range bad {
		p := DefaultEpisodicPolicy()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: expected an error", i)
		}
	}
}

func TestRetrieveReranksEpisodicMemories(t *testing.T) {
	reg := newTestRegistry(t, newVocabEmbedder(), registryConfig{})
	mustBuild(t, reg, holmes())
	ctx := context.Background()
	if _, err := reg.Remember(ctx, "Sherlock Holmes", Episode{Text: "Moriarty sent a letter", Importance: 1, At: time.Now()}); err != nil {
		t.Fatal(err)
	}

	q := query("moriarty", 3, 0)
	plain, err := newTestRetriever(reg).Retrieve(ctx, "Sherlock Holmes", q)
	if err != nil {
		t.Fatal(err)
	}
	ranked, err := newTestRetriever(reg).WithEpisodic(DefaultEpisodicPolicy()).Retrieve(ctx, "Sherlock Holmes", q)
	if err != nil {
		t.Fatal(err)
	}

	episodicRel := func(res domain.RetrievalResult) float64 {
		for _, sr := range res {
			if sr.Record.Kind() == domain.KindEpisodic {
				return sr.Relevance
			}
		}
		t.Fatalf("no episodic memory in %v", ids(res))
		return 0
	}
	want := (0.6*episodicRel(plain) + 0.7 + 0.3) / 1.6
	if got := episodicRel(ranked); math.Abs(got-want) > 1e-3 {
		t.Errorf("reranked relevance: got %v, want %v", got, want)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Relevance > ranked[i-1].Relevance {
			t.Errorf("relevance increases at %d: %v", i, ids(ranked))
		}
	}
}
