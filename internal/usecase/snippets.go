package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"charrag/internal/domain"
	"charrag/internal/port"
)

// Episodic metadata keys.
const (
	MetaCreatedAt  = "created_at"
	MetaCategory   = "category"
	MetaEmotion    = "emotion"
	MetaImportance = "importance"
)

// CharacterSnippets turns a definition into the snippets to embed: one per
// data item, plus the lore split by chunker. Ids are derived from kind and
// position so rebuilding an unchanged file yields the same ids.
func CharacterSnippets(c *domain.Character, chunker port.Chunker) []domain.Snippet {
	var out []domain.Snippet
	for _, kind := range domain.AllMemoryKinds {
		for i, text := range c.Data[kind] {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			out = append(out, newSnippet(c, kind, fmt.Sprintf("%s-%d", kind, i), text))
		}
	}
	if chunker != nil && strings.TrimSpace(c.Lore) != "" {
		for i, text := range chunker.Chunk(c.Lore) {
			out = append(out, newSnippet(c, domain.KindLore, fmt.Sprintf("lore-chunk-%d", i), text))
		}
	}
	return out
}

func newSnippet(c *domain.Character, kind domain.MemoryKind, id, text string) domain.Snippet {
	return domain.Snippet{
		ID:   id,
		Text: text,
		Metadata: map[string]string{
			domain.MetaCharacter: c.Name,
			domain.MetaKind:      string(kind),
			domain.MetaSource:    c.Source,
		},
	}
}

// Episode is a memory formed during conversation.
type Episode struct {
	Text     string
	Category string
	Emotion  string
	// Importance is in [0,1]; zero stores DefaultImportance.
	Importance float64
	At         time.Time
}

// EpisodicSnippet builds a snippet with a fresh random id.
func EpisodicSnippet(character string, e Episode) (domain.Snippet, error) {
	text := strings.TrimSpace(e.Text)
	if text == "" {
		return domain.Snippet{}, fmt.Errorf("episodic memory text is empty")
	}
	imp := e.Importance
	if math.IsNaN(imp) || imp < 0 || imp > 1 {
		return domain.Snippet{}, fmt.Errorf("episodic importance must be in [0,1], got %v", imp)
	}
	if imp == 0 {
		imp = DefaultImportance
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	meta := map[string]string{
		domain.MetaCharacter: character,
		domain.MetaKind:      string(domain.KindEpisodic),
		domain.MetaSource:    "remember",
		MetaCreatedAt:        at.UTC().Format(time.RFC3339),
		MetaImportance:       strconv.FormatFloat(imp, 'f', -1, 64),
	}
	if e.Category != "" {
		meta[MetaCategory] = e.Category
	}
	if e.Emotion != "" {
		meta[MetaEmotion] = e.Emotion
	}
	return domain.Snippet{
		ID:       "episodic-" + uuid.NewString(),
		Text:     text,
		Metadata: meta,
	}, nil
}
