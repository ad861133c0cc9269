package analyzer

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTokenizeDropsStopwordsAndShortWords(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("The violin is a comfort, I find")
	want := []string{"violin", "comfort", "find"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: expected %s, got %s", i, want[i], tokens[i])
		}
	}
}

func TestCountTokens(t *testing.T) {
	tok := NewTokenizer()

	if n := tok.CountTokens(""); n != 0 {
		t.Errorf("expected 0 for empty input, got %d", n)
	}
	if n := tok.CountTokens("   \n\t"); n != 0 {
		t.Errorf("expected 0 for whitespace, got %d", n)
	}

	// 10 words -> 13, plus one period.
	if n := tok.CountTokens("one two three four five six seven eight nine ten."); n != 14 {
		t.Errorf("expected 14, got %d", n)
	}

	if n := tok.CountTokens("福尔摩斯"); n != 4 {
		t.Errorf("expected one token per ideograph, got %d", n)
	}
}

func TestCountTokensGrowsWithText(t *testing.T) {
	tok := NewTokenizer()
	short := tok.CountTokens("Elementary, my dear Watson")
	long := tok.CountTokens(strings.Repeat("Elementary, my dear Watson. ", 10))
	if long <= short {
		t.Errorf("expected longer text to cost more: %d vs %d", long, short)
	}
}

func TestTruncate(t *testing.T) {
	tok := NewTokenizer()
	text := strings.Repeat("word ", 100)

	cut := tok.Truncate(text, 20)
	if tok.CountTokens(cut) > 21 {
		t.Errorf("truncated text too long: %d tokens", tok.CountTokens(cut))
	}
	if !strings.HasSuffix(cut, "…") {
		t.Error("expected ellipsis on truncated text")
	}

	if got := tok.Truncate("short text", 20); got != "short text" {
		t.Errorf("expected text within budget unchanged, got %q", got)
	}
	if got := tok.Truncate("anything", 0); got != "" {
		t.Errorf("expected empty result for zero budget, got %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tok := NewTokenizer()
	tests := []struct {
		name string
		text string
	}{
		{"cyrillic words", strings.Repeat("Холмс играет на скрипке ", 80)},
		{"unspaced han", strings.Repeat("福尔摩斯在贝克街", 60)},
		{"accented", strings.Repeat("café naïve déjà ", 90)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cut := tok.Truncate(tt.text, 40)
			if !utf8.ValidString(cut) {
				t.Fatalf("truncation split a rune: %q", cut)
			}
			if cut == "" || !strings.HasSuffix(cut, "…") {
				t.Errorf("expected a non-empty cut with ellipsis, got %q", cut)
			}
			if n := tok.CountTokens(cut); n > 41 {
				t.Errorf("truncated text too long: %d tokens", n)
			}
		})
	}
}
