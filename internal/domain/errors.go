package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The typed errors below match them.
var (
	ErrDegenerateVector        = errors.New("degenerate vector")
	ErrIndexNotFound           = errors.New("index not found")
	ErrIndexConfigMismatch     = errors.New("index config mismatch")
	ErrEmbeddingUnavailable    = errors.New("embedding unavailable")
	ErrCorpusDimensionMismatch = errors.New("corpus dimension mismatch")
	ErrDuplicateRecord         = errors.New("duplicate record id")
	ErrCharacterNotFound       = errors.New("character not found")
)

// DegenerateVectorError reports a zero-magnitude vector under cosine.
type DegenerateVectorError struct {
	RecordID string // empty for the query vector
}

func (e *DegenerateVectorError) Error() string {
	if e.RecordID == "" {
		return "degenerate vector: query has zero magnitude"
	}
	return fmt.Sprintf("degenerate vector: record %s has zero magnitude", e.RecordID)
}

func (e *DegenerateVectorError) Is(target error) bool { return target == ErrDegenerateVector }

// IndexNotFoundError reports a query against a character with no ready index.
type IndexNotFoundError struct {
	Character string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index not found for character %q: build it first", e.Character)
}

func (e *IndexNotFoundError) Is(target error) bool { return target == ErrIndexNotFound }

// IndexConfigMismatchError reports a persisted or loaded index whose build
// configuration disagrees with the requested one.
type IndexConfigMismatchError struct {
	Character string
	Field     string
	Stored    string
	Requested string
}

func (e *IndexConfigMismatchError) Error() string {
	return fmt.Sprintf("index config mismatch for character %q: %s is %s, requested %s",
		e.Character, e.Field, e.Stored, e.Requested)
}

func (e *IndexConfigMismatchError) Is(target error) bool { return target == ErrIndexConfigMismatch }

// EmbeddingUnavailableError wraps a failure of the embedding collaborator.
type EmbeddingUnavailableError struct {
	Model string
	Err   error
}

func (e *EmbeddingUnavailableError) Error() string {
	return fmt.Sprintf("embedding unavailable (model %s): %v", e.Model, e.Err)
}

func (e *EmbeddingUnavailableError) Unwrap() error { return e.Err }

func (e *EmbeddingUnavailableError) Is(target error) bool { return target == ErrEmbeddingUnavailable }

// CorpusDimensionMismatchError reports a vector whose length differs from
// the corpus dimension.
type CorpusDimensionMismatchError struct {
	RecordID string
	Want     int
	Got      int
}

func (e *CorpusDimensionMismatchError) Error() string {
	return fmt.Sprintf("corpus dimension mismatch: record %s has %d dimensions, expected %d",
		e.RecordID, e.Got, e.Want)
}

func (e *CorpusDimensionMismatchError) Is(target error) bool {
	return target == ErrCorpusDimensionMismatch
}
