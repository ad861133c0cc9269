package domain

import "time"

// Metadata keys every indexed record carries.
const (
	MetaCharacter = "character"
	MetaKind      = "kind"
	MetaSource    = "source"
)

// VectorRecord is one indexed snippet of a character's memory.
// Records are immutable once inserted into a Corpus.
type VectorRecord struct {
	ID       string            `msgpack:"id" json:"id"`
	Vector   []float32         `msgpack:"v" json:"-"`
	Text     string            `msgpack:"t" json:"text"`
	Metadata map[string]string `msgpack:"m,omitempty" json:"metadata,omitempty"`
}

// Kind returns the memory kind stored in the record metadata.
func (r VectorRecord) Kind() MemoryKind {
	return MemoryKind(r.Metadata[MetaKind])
}

// Snippet is a text waiting to be embedded and turned into a VectorRecord.
type Snippet struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Query is built once per incoming user message and never persisted.
type Query struct {
	Text            string
	TopK            int
	MinRelevance    float64
	Metric          MetricKind
	RelevanceMethod RelevanceMethod
	Kinds           []MemoryKind
}

// Candidate is a raw search hit before relevance scoring.
type Candidate struct {
	Record   VectorRecord
	RawScore float64
}

// ScoredRecord is one entry of a RetrievalResult.
type ScoredRecord struct {
	Record    VectorRecord `json:"record"`
	RawScore  float64      `json:"raw_score"`
	Relevance float64      `json:"relevance"`
}

// RetrievalResult is ordered by descending relevance. An empty result means
// nothing cleared the relevance cutoff; it is not an error.
type RetrievalResult []ScoredRecord

// ByKind groups the result by memory kind, keeping order within each group.
func (r RetrievalResult) ByKind() map[MemoryKind][]ScoredRecord {
	out := make(map[MemoryKind][]ScoredRecord)
	for _, sr := range r {
		k := sr.Record.Kind()
		out[k] = append(out[k], sr)
	}
	return out
}

// StyleExample is a few-shot dialogue sample in the character's voice.
type StyleExample struct {
	User      string `yaml:"user" json:"user"`
	Character string `yaml:"character" json:"character"`
}

// Character is a role-play persona loaded from a definition file.
type Character struct {
	Name           string                  `yaml:"name" json:"name"`
	Description    string                  `yaml:"description" json:"description"`
	Era            string                  `yaml:"era" json:"era"`
	Data           map[MemoryKind][]string `yaml:"data" json:"data"`
	Lore           string                  `yaml:"lore" json:"lore"`
	SystemTemplate string                  `yaml:"system_template" json:"system_template"`
	StyleExamples  []StyleExample          `yaml:"style_examples" json:"style_examples"`
	Source         string                  `yaml:"-" json:"-"`
}

// IndexStats summarises a built index for status output.
type IndexStats struct {
	Character string     `json:"character"`
	Kind      IndexKind  `json:"kind"`
	Metric    MetricKind `json:"metric"`
	Records   int        `json:"records"`
	Dimension int        `json:"dimension"`
	BuiltAt   time.Time  `json:"built_at"`
}
