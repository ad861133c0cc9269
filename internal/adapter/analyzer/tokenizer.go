package analyzer

import (
	"sort"
	"strings"
	"unicode"

	"charrag/internal/port"
)

// Tokenizer estimates LLM token counts and extracts content words. It has
// no model vocabulary, so counts are approximations good enough for prompt
// budgeting.
type Tokenizer struct {
	stopwords map[string]struct{}
}

var _ port.Tokenizer = (*Tokenizer)(nil)

func NewTokenizer() *Tokenizer {
	return &Tokenizer{stopwords: defaultStopwords()}
}

// Tokenize returns lowercased content words with stopwords and single
// letters removed.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.ToLower(word)
		if len([]rune(word)) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// CountTokens approximates the token count: a word is about 1.3 tokens,
// every ideograph is one, and punctuation marks count individually.
func (t *Tokenizer) CountTokens(text string) int {
	var words, ideographs, punct int
	inWord := false
	for _, r := range text {
		switch {
		case isIdeograph(r):
			ideographs++
			inWord = false
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'':
			if !inWord {
				words++
			}
			inWord = true
		default:
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				punct++
			}
			inWord = false
		}
	}
	if words == 0 && ideographs == 0 && punct == 0 {
		return 0
	}
	return int(float64(words)*1.3+0.5) + ideographs + punct
}

// Truncate cuts text to roughly maxTokens, breaking at a word boundary.
// A leading run without spaces, as in CJK text, is cut between runes.
// Text already within budget is returned unchanged.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if t.CountTokens(text) <= maxTokens {
		return text
	}
	fields := strings.Fields(text)
	lo, hi := 0, len(fields)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.CountTokens(strings.Join(fields[:mid], " ")) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		runes := []rune(fields[0])
		n := sort.Search(len(runes)+1, func(i int) bool {
			return t.CountTokens(string(runes[:i])) > maxTokens
		}) - 1
		if n <= 0 {
			return ""
		}
		return string(runes[:n]) + "…"
	}
	return strings.Join(fields[:lo], " ") + "…"
}

func isIdeograph(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

// splitWords splits text on anything that is not a letter, digit or underscore.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}

func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"have", "had", "but", "not", "you", "your", "we", "our",
		"they", "their", "she", "her", "his", "if", "or", "so",
		"no", "can", "do", "does", "did", "been", "being", "would",
		"could", "should", "may", "might", "must", "shall", "which",
		"who", "whom", "what", "when", "where", "why", "how", "all",
		"each", "every", "both", "few", "more", "most", "other",
		"some", "such", "than", "too", "very", "just", "also",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
