package port

import (
	"time"

	"charrag/internal/domain"
)

// ArtifactHeader records how a persisted index was built. A query whose
// configuration disagrees with it is rejected.
type ArtifactHeader struct {
	SchemaVersion  int               `json:"schema_version"`
	Character      string            `json:"character"`
	Kind           domain.IndexKind  `json:"kind"`
	Metric         domain.MetricKind `json:"metric"`
	Dimension      int               `json:"dimension"`
	EmbeddingModel string            `json:"embedding_model"`
	M              int               `json:"m,omitempty"`
	EfConstruction int               `json:"ef_construction,omitempty"`
	EfSearch       int               `json:"ef_search,omitempty"`
	Records        int               `json:"records"`
	ConfigHash     string            `json:"config_hash"`
	BuiltAt        time.Time         `json:"built_at"`
}

// Artifact is the durable form of one character's index.
type Artifact struct {
	Header  ArtifactHeader
	Records []domain.VectorRecord
	Payload []byte
}

// IndexStore persists one artifact per character, keyed by character name.
type IndexStore interface {
	// SaveArtifact atomically replaces the character's artifact.
	SaveArtifact(a Artifact) error

	// LoadArtifact returns domain.ErrIndexNotFound when nothing is stored.
	LoadArtifact(character string) (Artifact, error)

	// LoadHeader reads only the header.
	LoadHeader(character string) (ArtifactHeader, error)

	// DeleteArtifact removes the artifact. Missing artifacts are not an error.
	DeleteArtifact(character string) error

	ListHeaders() ([]ArtifactHeader, error)

	Close() error
}
