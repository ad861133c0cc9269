package vector

import (
	"context"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"charrag/internal/domain"
)

const hnswSnapshotVersion = 1

// hnswSnapshot is the persisted graph topology. Vectors are not part of it;
// they are re-derived from the corpus records stored next to the snapshot.
type hnswSnapshot struct {
	Version        int          `msgpack:"version"`
	Metric         string       `msgpack:"metric"`
	Dimension      int          `msgpack:"dim"`
	M              int          `msgpack:"m"`
	EfConstruction int          `msgpack:"ef_construction"`
	EfSearch       int          `msgpack:"ef_search"`
	Seed           uint64       `msgpack:"seed"`
	EntryID        int32        `msgpack:"entry"`
	MaxLevel       int          `msgpack:"max_level"`
	Levels         []int        `msgpack:"levels"`
	Friends        [][][]uint32 `msgpack:"friends"`
}

// Snapshot encodes the graph with msgpack.
func (h *HNSWIndex) Snapshot() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := hnswSnapshot{
		Version:        hnswSnapshotVersion,
		Metric:         string(h.metric.Kind()),
		Dimension:      h.dimension,
		M:              h.cfg.M,
		EfConstruction: h.cfg.EfConstruction,
		EfSearch:       h.cfg.EfSearch,
		Seed:           h.cfg.Seed,
		EntryID:        h.entryID,
		MaxLevel:       h.maxLevel,
		Levels:         h.levels,
		Friends:        h.friends,
	}
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("hnsw snapshot: %w", err)
	}
	return data, nil
}

// Restore decodes a snapshot and attaches the corpus vectors. The graph
// parameters recorded in the snapshot win over the receiver's config.
func (h *HNSWIndex) Restore(corpus *domain.Corpus, payload []byte) error {
	var snap hnswSnapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("hnsw restore: decode: %w", err)
	}
	if snap.Version != hnswSnapshotVersion {
		return fmt.Errorf("hnsw restore: unsupported snapshot version %d", snap.Version)
	}
	if snap.Metric != string(h.metric.Kind()) {
		return &domain.IndexConfigMismatchError{
			Character: corpus.Character,
			Field:     "metric",
			Stored:    snap.Metric,
			Requested: string(h.metric.Kind()),
		}
	}
	n := corpus.Len()
	if len(snap.Levels) != n || len(snap.Friends) != n {
		return fmt.Errorf("hnsw restore: snapshot covers %d nodes, corpus has %d records", len(snap.Levels), n)
	}
	if n > 0 && (snap.EntryID < 0 || int(snap.EntryID) >= n) {
		return fmt.Errorf("hnsw restore: entry point %d out of range", snap.EntryID)
	}
	for i, layers := range snap.Friends {
		if len(layers) != snap.Levels[i]+1 {
			return fmt.Errorf("hnsw restore: node %d has %d layers, level is %d", i, len(layers), snap.Levels[i])
		}
		for _, fs := range layers {
			for _, f := range fs {
				if int(f) >= n {
					return fmt.Errorf("hnsw restore: node %d links to missing node %d", i, f)
				}
			}
		}
	}

	vecs, err := prepareRecords(context.Background(), h.metric, corpus.Records)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = HNSWConfig{
		M:              snap.M,
		EfConstruction: snap.EfConstruction,
		EfSearch:       snap.EfSearch,
		Seed:           snap.Seed,
	}.WithDefaults()
	h.levelMul = 1.0 / math.Log(float64(h.cfg.M))
	h.dimension = corpus.Dimension
	h.vectors = vecs
	h.levels = snap.Levels
	h.friends = snap.Friends
	h.entryID = snap.EntryID
	h.maxLevel = snap.MaxLevel
	if n == 0 {
		h.entryID = -1
		h.maxLevel = 0
	}
	h.rng = newLevelRNG(h.cfg.Seed, uint64(n))
	return nil
}
