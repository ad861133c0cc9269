package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"charrag/internal/port"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaVersion = []byte("schema_version")

// ComputeConfigHash hashes the build parameters that shape an index.
// Two artifacts with the same hash answer queries the same way.
func ComputeConfigHash(h port.ArtifactHeader) string {
	relevant := struct {
		Kind           string `json:"kind"`
		Metric         string `json:"metric"`
		Dimension      int    `json:"dimension"`
		EmbeddingModel string `json:"embedding_model"`
		M              int    `json:"m"`
		EfConstruction int    `json:"ef_construction"`
		EfSearch       int    `json:"ef_search"`
	}{
		Kind:           string(h.Kind),
		Metric:         string(h.Metric),
		Dimension:      h.Dimension,
		EmbeddingModel: h.EmbeddingModel,
		M:              h.M,
		EfConstruction: h.EfConstruction,
		EfSearch:       h.EfSearch,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// SchemaVersion returns the stored database schema version, 0 if unset.
func (s *BoltStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaVersion)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &version)
	})
	return version, err
}

// Migrate brings the database to CurrentSchemaVersion. A database written
// by a newer version is rejected rather than downgraded.
func (s *BoltStore) Migrate() error {
	version, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("database created by newer version (v%d > v%d)", version, CurrentSchemaVersion)
	}
	if version == CurrentSchemaVersion {
		return nil
	}

	// v0 is an unstamped database; its buckets are created on open, so
	// reaching v1 only needs the stamp.
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(CurrentSchemaVersion)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
	})
}

// Clear removes every stored artifact.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketIndexes)
		var names [][]byte
		if err := root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			names = append(names, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		for _, name := range names {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
