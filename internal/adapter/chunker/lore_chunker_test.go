package chunker

import (
	"strings"
	"testing"

	"charrag/internal/adapter/analyzer"
)

const lore = `Holmes keeps his tobacco in the toe of a Persian slipper. He plays the violin late at night.

Mrs. Hudson tolerates the chemical experiments. The rooms at 221B are cluttered with papers!
Is Moriarty truly dead? Nobody can say.`

func TestLoreChunkerSingleChunkWhenSmall(t *testing.T) {
	c := NewLoreChunker(500, 0, analyzer.NewTokenizer())
	chunks := c.Chunk(lore)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if strings.Contains(chunks[0], "\n") {
		t.Error("expected whitespace to be collapsed")
	}
}

func TestLoreChunkerCoversEverySentence(t *testing.T) {
	c := NewLoreChunker(20, 0, analyzer.NewTokenizer())
	chunks := c.Chunk(lore)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, s := range splitSentences(lore) {
		found := false
		for _, ch := range chunks {
			if strings.Contains(ch, s) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("sentence %q not in any chunk", s)
		}
	}
}

func TestLoreChunkerOverlap(t *testing.T) {
	text := "Alpha one. Beta two. Gamma three. Delta four. Epsilon five. Zeta six."
	c := NewLoreChunker(8, 4, analyzer.NewTokenizer())
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected overlap to produce several chunks, got %v", chunks)
	}
	for i := 0; i < len(chunks)-1; i++ {
		prev := splitSentences(chunks[i])
		last := prev[len(prev)-1]
		if len(prev) > 1 && !strings.HasPrefix(chunks[i+1], last) {
			t.Errorf("chunk %d does not start with the overlap sentence %q: %q", i+1, last, chunks[i+1])
		}
	}
}

func TestLoreChunkerOversizedSentence(t *testing.T) {
	long := strings.Repeat("word ", 50) + "end."
	c := NewLoreChunker(5, 0, analyzer.NewTokenizer())
	chunks := c.Chunk(long)
	if len(chunks) != 1 || !strings.HasSuffix(chunks[0], "end.") {
		t.Errorf("expected the whole sentence in one chunk, got %v", chunks)
	}
}

func TestLoreChunkerEmpty(t *testing.T) {
	c := NewLoreChunker(50, 10, analyzer.NewTokenizer())
	if chunks := c.Chunk("  \n\n "); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %v", chunks)
	}
}

func TestSplitSentencesKeepsDecimals(t *testing.T) {
	got := splitSentences("It cost 2.5 guineas. Expensive!")
	if len(got) != 2 || got[0] != "It cost 2.5 guineas." {
		t.Errorf("unexpected split %q", got)
	}
}
