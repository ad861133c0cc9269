package usecase

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"charrag/internal/adapter/analyzer"
	"charrag/internal/domain"
	"charrag/internal/port"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestAssembler() *PromptAssembler {
	a := NewPromptAssembler(analyzer.NewTokenizer())
	a.now = func() time.Time { return fixedNow }
	return a
}

func scored(id string, kind domain.MemoryKind, text string, rel float64) domain.ScoredRecord {
	return domain.ScoredRecord{
		Record: domain.VectorRecord{
			ID:       id,
			Text:     text,
			Metadata: map[string]string{domain.MetaKind: string(kind)},
		},
		Relevance: rel,
	}
}

func TestStars(t *testing.T) {
	tests := []struct {
		rel  float64
		want int
	}{
		{0, 0}, {0.19, 0}, {0.2, 1}, {0.55, 2}, {0.9, 4}, {1, 5}, {1.4, 5}, {-0.2, 0},
	}
	for _, tt := range tests {
		if got := len([]rune(Stars(tt.rel))); got != tt.want {
			t.Errorf("Stars(%v) = %d stars, want %d", tt.rel, got, tt.want)
		}
	}
}

func TestAssembleStyleLevels(t *testing.T) {
	a := newTestAssembler()
	result := domain.RetrievalResult{scored("facts-0", domain.KindFacts, "He plays the violin", 0.9)}

	tests := []struct {
		style    domain.StyleLevel
		examples int
		temp     float64
		stars    bool
	}{
		{domain.StyleLow, 1, 0.5, false},
		{domain.StyleMedium, 2, 0.7, false},
		{domain.StyleHigh, 3, 0.85, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			p := a.Assemble(holmes(), result, nil, "Hello", PromptOptions{Style: tt.style})
			if got := strings.Count(p.System, "You (Sherlock Holmes):"); got != tt.examples {
				t.Errorf("expected %d examples, got %d", tt.examples, got)
			}
			if p.Temperature != tt.temp {
				t.Errorf("temperature = %v, want %v", p.Temperature, tt.temp)
			}
			if got := strings.Contains(p.System, "★★★★"); got != tt.stars {
				t.Errorf("stars present = %v, want %v", got, tt.stars)
			}
			if !strings.Contains(p.System, "FACTS ABOUT YOU:\n- He plays the violin") {
				t.Errorf("missing facts section:\n%s", p.System)
			}
		})
	}
}

func TestAssembleDefaults(t *testing.T) {
	p := newTestAssembler().Assemble(holmes(), nil, nil, "Hello", PromptOptions{})
	if p.Temperature != 0.85 || p.MaxTokens != 500 {
		t.Errorf("unexpected defaults: temp %v max %d", p.Temperature, p.MaxTokens)
	}
	if len(p.Stop) == 0 {
		t.Error("expected stop sequences")
	}
	if len(p.Messages) != 1 || p.Messages[0].Role != "user" || p.Messages[0].Content != "Hello" {
		t.Errorf("unexpected messages %+v", p.Messages)
	}
}

func TestAssembleEmptyResultHasNoMemorySection(t *testing.T) {
	p := newTestAssembler().Assemble(holmes(), nil, nil, "Hello", PromptOptions{Style: domain.StyleHigh})
	for _, title := range sectionTitles {
		if strings.Contains(p.System, title) {
			t.Errorf("unexpected section %q in:\n%s", title, p.System)
		}
	}
	if !strings.HasPrefix(p.System, "You are Sherlock Holmes.") {
		t.Errorf("expected the character template, got:\n%s", p.System)
	}
}

func TestAssembleTemplateAndHistory(t *testing.T) {
	history := []port.Message{
		{Role: "user", Content: "Good morning"},
		{Role: "assistant", Content: "Indeed it is"},
	}
	p := newTestAssembler().Assemble(holmes(), nil, history, "Hello", PromptOptions{Style: domain.StyleLow})
	want := "History:\nUser: Good morning\nSherlock Holmes: Indeed it is"
	if !strings.Contains(p.System, want) {
		t.Errorf("history not rendered into template:\n%s", p.System)
	}
	if strings.Contains(p.System, placeholderInfo) || strings.Contains(p.System, placeholderHistory) {
		t.Errorf("placeholders left in prompt:\n%s", p.System)
	}
}

func TestAssembleKeepsRecentHistory(t *testing.T) {
	var history []port.Message
	for i := range 6 {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, port.Message{Role: role, Content: fmt.Sprintf("line-%d", i)})
	}
	p := newTestAssembler().Assemble(holmes(), nil, history, "Hello", PromptOptions{MaxHistory: 4})
	for i, m := range history {
		if want := i >= 2; strings.Contains(p.System, m.Content) != want {
			t.Errorf("%s in prompt: want %v", m.Content, want)
		}
	}

	if got := RecentHistory(history, 0); len(got) != 6 {
		t.Errorf("limit 0 should keep all, got %d", len(got))
	}
	if got := RecentHistory(history, 10); len(got) != 6 {
		t.Errorf("limit above length should keep all, got %d", len(got))
	}
	if got := RecentHistory(history, 1); len(got) != 1 || got[0].Content != "line-5" {
		t.Errorf("limit 1: got %v", got)
	}
}

func TestAssembleDefaultTemplate(t *testing.T) {
	c := holmes()
	c.SystemTemplate = ""
	result := domain.RetrievalResult{scored("traits-0", domain.KindTraits, "Observant", 0.8)}

	p := newTestAssembler().Assemble(c, result, nil, "Hello", PromptOptions{Style: domain.StyleLow})
	for _, want := range []string{
		"You are Sherlock Holmes. The world's only consulting detective.",
		"You live in Victorian London",
		"YOUR CHARACTER TRAITS:\n- Observant",
		"Style level: Answer briefly",
	} {
		if !strings.Contains(p.System, want) {
			t.Errorf("missing %q in:\n%s", want, p.System)
		}
	}
}

func TestAssembleTokenBudgetDropsLeastRelevantFirst(t *testing.T) {
	result := domain.RetrievalResult{
		scored("facts-0", domain.KindFacts, "Violin", 0.9),
		scored("facts-1", domain.KindFacts, "He has lived at Baker Street for many long years with his friend", 0.8),
		scored("facts-2", domain.KindFacts, "Tea", 0.7),
	}
	p := newTestAssembler().Assemble(holmes(), result, nil, "Hello", PromptOptions{Style: domain.StyleLow, TokenBudget: 5})
	if !strings.Contains(p.System, "- Violin") || !strings.Contains(p.System, "- Tea") {
		t.Errorf("short memories should fit the budget:\n%s", p.System)
	}
	if strings.Contains(p.System, "Baker Street") {
		t.Errorf("long memory should be dropped:\n%s", p.System)
	}
}

func TestAssembleEpisodicMetadata(t *testing.T) {
	ep := scored("episodic-1", domain.KindEpisodic, "Watson was injured", 0.6)
	ep.Record.Metadata[MetaCreatedAt] = fixedNow.Add(-3 * 24 * time.Hour).Format(time.RFC3339)
	ep.Record.Metadata[MetaCategory] = "case"
	ep.Record.Metadata[MetaEmotion] = "alarm"
	result := domain.RetrievalResult{ep}
	a := newTestAssembler()

	high := a.Assemble(holmes(), result, nil, "Hello", PromptOptions{Style: domain.StyleHigh})
	want := "IMPORTANT MEMORIES:\n- Watson was injured ★★★ (happened 3 days ago), category: case, emotion: alarm"
	if !strings.Contains(high.System, want) {
		t.Errorf("missing episodic line %q in:\n%s", want, high.System)
	}

	low := a.Assemble(holmes(), result, nil, "Hello", PromptOptions{Style: domain.StyleLow})
	if !strings.Contains(low.System, "- Watson was injured ★★★") {
		t.Errorf("episodic memories always carry stars:\n%s", low.System)
	}
	if strings.Contains(low.System, "happened") {
		t.Errorf("age is only shown at high style:\n%s", low.System)
	}
}

func TestDescribeAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Hour, "today"},
		{30 * time.Hour, "yesterday"},
		{4 * 24 * time.Hour, "4 days ago"},
		{15 * 24 * time.Hour, "2 weeks ago"},
		{65 * 24 * time.Hour, "2 months ago"},
	}
	for _, tt := range tests {
		if got := describeAge(tt.d); got != tt.want {
			t.Errorf("describeAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
