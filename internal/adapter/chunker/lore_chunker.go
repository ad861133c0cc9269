package chunker

import (
	"strings"
	"unicode"

	"charrag/internal/port"
)

// LoreChunker packs free-form lore into pieces of at most maxTokens,
// breaking between sentences. Consecutive pieces repeat trailing sentences
// worth up to overlap tokens so a fact split across a boundary survives in
// one of them.
type LoreChunker struct {
	maxTokens int
	overlap   int
	tokenizer port.Tokenizer
}

var _ port.Chunker = (*LoreChunker)(nil)

func NewLoreChunker(maxTokens, overlap int, tokenizer port.Tokenizer) *LoreChunker {
	if maxTokens <= 0 {
		maxTokens = 120
	}
	if overlap < 0 || overlap >= maxTokens {
		overlap = 0
	}
	return &LoreChunker{
		maxTokens: maxTokens,
		overlap:   overlap,
		tokenizer: tokenizer,
	}
}

func (c *LoreChunker) Chunk(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(sentences) {
		end := start
		tokens := 0
		for end < len(sentences) {
			n := c.tokenizer.CountTokens(sentences[end])
			if tokens > 0 && tokens+n > c.maxTokens {
				break
			}
			tokens += n
			end++
		}
		// An oversized sentence still becomes its own chunk.
		if end == start {
			end++
		}

		chunks = append(chunks, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}

		next := end - c.overlapSentences(sentences, start, end)
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

func (c *LoreChunker) overlapSentences(sentences []string, start, end int) int {
	if c.overlap == 0 {
		return 0
	}
	count, tokens := 0, 0
	for i := end - 1; i > start; i-- {
		tokens += c.tokenizer.CountTokens(sentences[i])
		if tokens > c.overlap {
			break
		}
		count++
	}
	return count
}

// splitSentences breaks on sentence-final punctuation and blank-line
// paragraph boundaries. Whitespace inside a sentence is collapsed.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		s := strings.Join(strings.Fields(cur.String()), " ")
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		cur.WriteRune(r)
		switch {
		case r == '。' || r == '！' || r == '？':
			flush()
		case r == '.' || r == '!' || r == '?':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		case r == '\n' && i+1 < len(runes) && runes[i+1] == '\n':
			flush()
		}
	}
	flush()
	return out
}
