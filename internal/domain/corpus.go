package domain

import "fmt"

// Corpus is the ordered set of records indexed for exactly one character.
// All vectors share Dimension; ids are unique.
type Corpus struct {
	Character string
	Dimension int
	Records   []VectorRecord

	ids map[string]struct{}
}

// NewCorpus creates an empty corpus. Dimension must be positive.
func NewCorpus(character string, dimension int) (*Corpus, error) {
	if character == "" {
		return nil, fmt.Errorf("corpus: character name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("corpus: dimension must be positive, got %d", dimension)
	}
	return &Corpus{
		Character: character,
		Dimension: dimension,
		ids:       make(map[string]struct{}),
	}, nil
}

// Add appends records after validating dimension and id uniqueness.
// Nothing is appended if any record is invalid.
func (c *Corpus) Add(records ...VectorRecord) error {
	if c.ids == nil {
		c.reindex()
	}
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("corpus %s: record id is required", c.Character)
		}
		if len(r.Vector) != c.Dimension {
			return &CorpusDimensionMismatchError{RecordID: r.ID, Want: c.Dimension, Got: len(r.Vector)}
		}
		if _, dup := c.ids[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	for _, r := range records {
		c.Records = append(c.Records, cloneRecord(r))
		c.ids[r.ID] = struct{}{}
	}
	return nil
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	return len(c.Records)
}

// Clone returns a deep copy safe to hand to a concurrent builder.
func (c *Corpus) Clone() *Corpus {
	out := &Corpus{
		Character: c.Character,
		Dimension: c.Dimension,
		Records:   make([]VectorRecord, len(c.Records)),
		ids:       make(map[string]struct{}, len(c.Records)),
	}
	for i, r := range c.Records {
		out.Records[i] = cloneRecord(r)
		out.ids[r.ID] = struct{}{}
	}
	return out
}

// Validate re-checks the corpus invariants, e.g. after decoding from disk.
func (c *Corpus) Validate() error {
	ids := make(map[string]struct{}, len(c.Records))
	for _, r := range c.Records {
		if len(r.Vector) != c.Dimension {
			return &CorpusDimensionMismatchError{RecordID: r.ID, Want: c.Dimension, Got: len(r.Vector)}
		}
		if _, dup := ids[r.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, r.ID)
		}
		ids[r.ID] = struct{}{}
	}
	c.ids = ids
	return nil
}

func (c *Corpus) reindex() {
	c.ids = make(map[string]struct{}, len(c.Records))
	for _, r := range c.Records {
		c.ids[r.ID] = struct{}{}
	}
}

func cloneRecord(r VectorRecord) VectorRecord {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	var meta map[string]string
	if r.Metadata != nil {
		meta = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
	}
	return VectorRecord{ID: r.ID, Vector: vec, Text: r.Text, Metadata: meta}
}
