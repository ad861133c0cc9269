package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"charrag/internal/domain"
	"charrag/internal/port"
)

var (
	bucketIndexes = []byte("indexes")
	bucketMeta    = []byte("meta")

	keyHeader  = []byte("header")
	keyRecords = []byte("records")
	keyPayload = []byte("payload")
)

// BoltStore persists index artifacts in bbolt. Each character gets its own
// bucket under "indexes" holding a JSON header, msgpack records and the
// backend payload, so one transaction replaces an artifact atomically.
type BoltStore struct {
	db *bbolt.DB
}

var _ port.IndexStore = (*BoltStore)(nil)

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketIndexes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltStore) SaveArtifact(a port.Artifact) error {
	if a.Header.Character == "" {
		return fmt.Errorf("artifact has no character")
	}
	h := a.Header
	if h.SchemaVersion == 0 {
		h.SchemaVersion = CurrentSchemaVersion
	}
	h.Records = len(a.Records)
	if h.ConfigHash == "" {
		h.ConfigHash = ComputeConfigHash(h)
	}

	headerData, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	recordData, err := msgpack.Marshal(a.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketIndexes)
		name := []byte(h.Character)
		if root.Bucket(name) != nil {
			if err := root.DeleteBucket(name); err != nil {
				return err
			}
		}
		b, err := root.CreateBucket(name)
		if err != nil {
			return fmt.Errorf("create bucket for %s: %w", h.Character, err)
		}
		if err := b.Put(keyHeader, headerData); err != nil {
			return err
		}
		if err := b.Put(keyRecords, recordData); err != nil {
			return err
		}
		if len(a.Payload) > 0 {
			return b.Put(keyPayload, a.Payload)
		}
		return nil
	})
}

func (s *BoltStore) LoadArtifact(character string) (port.Artifact, error) {
	var a port.Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIndexes).Bucket([]byte(character))
		if b == nil {
			return &domain.IndexNotFoundError{Character: character}
		}
		h, err := decodeHeader(character, b.Get(keyHeader))
		if err != nil {
			return err
		}
		a.Header = h

		if err := msgpack.Unmarshal(b.Get(keyRecords), &a.Records); err != nil {
			return fmt.Errorf("decode records for %s: %w", character, err)
		}
		if len(a.Records) != h.Records {
			return fmt.Errorf("artifact for %s is corrupt: header lists %d records, found %d",
				character, h.Records, len(a.Records))
		}
		// bbolt memory is only valid inside the transaction.
		if p := b.Get(keyPayload); p != nil {
			a.Payload = append([]byte(nil), p...)
		}
		return nil
	})
	return a, err
}

func (s *BoltStore) LoadHeader(character string) (port.ArtifactHeader, error) {
	var h port.ArtifactHeader
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIndexes).Bucket([]byte(character))
		if b == nil {
			return &domain.IndexNotFoundError{Character: character}
		}
		var err error
		h, err = decodeHeader(character, b.Get(keyHeader))
		return err
	})
	return h, err
}

func (s *BoltStore) DeleteArtifact(character string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketIndexes)
		if root.Bucket([]byte(character)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(character))
	})
}

func (s *BoltStore) ListHeaders() ([]port.ArtifactHeader, error) {
	var headers []port.ArtifactHeader
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketIndexes)
		return root.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil // not a bucket
			}
			h, err := decodeHeader(string(k), root.Bucket(k).Get(keyHeader))
			if err != nil {
				return err
			}
			headers = append(headers, h)
			return nil
		})
	})
	return headers, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decodeHeader(character string, data []byte) (port.ArtifactHeader, error) {
	var h port.ArtifactHeader
	if data == nil {
		return h, fmt.Errorf("artifact for %s has no header", character)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("decode header for %s: %w", character, err)
	}
	if h.SchemaVersion > CurrentSchemaVersion {
		return h, fmt.Errorf("artifact for %s was written by a newer version (v%d > v%d)",
			character, h.SchemaVersion, CurrentSchemaVersion)
	}
	return h, nil
}
