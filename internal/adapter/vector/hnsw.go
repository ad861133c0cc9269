package vector

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"charrag/internal/domain"
	"charrag/internal/port"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// HNSWConfig configures an [HNSWIndex]. All parameters are fixed when the
// graph is built; there is no per-query override because the topology is
// shaped by them.
type HNSWConfig struct {
	// M is the maximum number of connections per node per layer (layer 0
	// allows 2*M). Default: 16.
	M int `yaml:"m"`

	// EfConstruction is the candidate list size while inserting.
	// Default: 200.
	EfConstruction int `yaml:"ef_construction"`

	// EfSearch is the candidate list size while querying. It is raised to
	// topK when smaller. Default: 64.
	EfSearch int `yaml:"ef_search"`

	// Seed drives level assignment. Zero picks a random seed, so two builds
	// of the same corpus may produce different graphs of equivalent quality.
	Seed uint64 `yaml:"seed"`
}

// WithDefaults fills unset parameters.
func (c HNSWConfig) WithDefaults() HNSWConfig {
	if c.M < 2 {
		c.M = 16
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch <= 0 {
		c.EfSearch = 64
	}
	return c
}

// maxConns returns the maximum number of connections at the given layer.
func (c HNSWConfig) maxConns(layer int) int {
	if layer == 0 {
		return c.M * 2
	}
	return c.M
}

// ---------------------------------------------------------------------------
// Priority queues for beam search
// ---------------------------------------------------------------------------

// distItem pairs a node with its distance to the query. Distance is the
// negated metric score, so smaller is closer for every metric.
type distItem struct {
	id   uint32
	dist float64
}

// minDistHeap pops the closest item first.
type minDistHeap []distItem

func (h minDistHeap) Len() int           { return len(h) }
func (h minDistHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h minDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minDistHeap) Push(x any)        { *h = append(*h, x.(distItem)) }
func (h *minDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// maxDistHeap pops the farthest item first.
type maxDistHeap []distItem

func (h maxDistHeap) Len() int           { return len(h) }
func (h maxDistHeap) Less(i, j int) bool { return h[i].dist > h[j].dist }
func (h maxDistHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x any)        { *h = append(*h, x.(distItem)) }
func (h *maxDistHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// ---------------------------------------------------------------------------
// HNSW
// ---------------------------------------------------------------------------

// HNSWIndex is a Hierarchical Navigable Small World graph over a corpus.
//
// Search is approximate: the greedy descent can settle in a neighbourhood
// that misses a true top-k neighbour. Recall against [FlatIndex] stays high
// for the default parameters; raise EfSearch to trade latency for recall.
//
// Node ids are corpus positions, so hits map straight back to records.
type HNSWIndex struct {
	mu        sync.RWMutex
	cfg       HNSWConfig
	metric    Metric
	dimension int
	vectors   [][]float32  // prepared vectors by position
	levels    []int        // highest layer per node
	friends   [][][]uint32 // friends[node][layer]
	entryID   int32        // -1 when empty
	maxLevel  int
	levelMul  float64
	rng       *rand.Rand
}

var _ port.Index = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty graph index.
func NewHNSWIndex(metric Metric, cfg HNSWConfig) *HNSWIndex {
	cfg = cfg.WithDefaults()
	return &HNSWIndex{
		cfg:      cfg,
		metric:   metric,
		entryID:  -1,
		levelMul: 1.0 / math.Log(float64(cfg.M)),
	}
}

func (h *HNSWIndex) Kind() domain.IndexKind    { return domain.IndexHNSW }
func (h *HNSWIndex) Metric() domain.MetricKind { return h.metric.Kind() }

// Config returns the build parameters.
func (h *HNSWIndex) Config() HNSWConfig { return h.cfg }

func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.vectors)
}

// Build inserts every corpus record in order.
func (h *HNSWIndex) Build(ctx context.Context, corpus *domain.Corpus) error {
	vecs, err := prepareRecords(ctx, h.metric, corpus.Records)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.dimension = corpus.Dimension
	h.vectors = nil
	h.levels = nil
	h.friends = nil
	h.entryID = -1
	h.maxLevel = 0
	h.rng = newLevelRNG(h.cfg.Seed, 0)

	for i, v := range vecs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		h.insertLocked(v)
	}
	return nil
}

// Extend copies the graph and inserts corpus.Records[from:]. The receiver is
// left untouched so concurrent searches on it stay valid.
func (h *HNSWIndex) Extend(ctx context.Context, corpus *domain.Corpus, from int) (port.Index, error) {
	if from < 0 || from > corpus.Len() {
		return nil, fmt.Errorf("hnsw index: extend offset %d out of range for %d records", from, corpus.Len())
	}
	added, err := prepareRecords(ctx, h.metric, corpus.Records[from:])
	if err != nil {
		return nil, err
	}

	h.mu.RLock()
	if from != len(h.vectors) {
		h.mu.RUnlock()
		return nil, fmt.Errorf("hnsw index: cannot extend from %d, index holds %d", from, len(h.vectors))
	}
	next := &HNSWIndex{
		cfg:       h.cfg,
		metric:    h.metric,
		dimension: corpus.Dimension,
		vectors:   append(make([][]float32, 0, corpus.Len()), h.vectors...),
		levels:    append(make([]int, 0, corpus.Len()), h.levels...),
		friends:   make([][][]uint32, len(h.friends), corpus.Len()),
		entryID:   h.entryID,
		maxLevel:  h.maxLevel,
		levelMul:  h.levelMul,
		rng:       newLevelRNG(h.cfg.Seed, uint64(from)),
	}
	for i, layers := range h.friends {
		cp := make([][]uint32, len(layers))
		for l, fs := range layers {
			cp[l] = append([]uint32(nil), fs...)
		}
		next.friends[i] = cp
	}
	h.mu.RUnlock()

	for i, v := range added {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		next.insertLocked(v)
	}
	return next, nil
}

// Search returns up to topK hits, most similar first.
func (h *HNSWIndex) Search(query []float32, topK int) ([]port.Hit, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	q, err := prepareQuery(h.metric, h.dimension, query)
	if err != nil {
		return nil, err
	}
	if len(h.vectors) == 0 || topK <= 0 {
		return nil, nil
	}

	ef := h.cfg.EfSearch
	if ef < topK {
		ef = topK
	}

	// Asking for the whole corpus makes the graph walk pointless.
	if topK >= len(h.vectors) {
		return h.scanLocked(q, topK), nil
	}

	// Phase 1: greedy descent from the top layer to layer 1.
	cur := uint32(h.entryID)
	cur = h.greedyDescend(q, cur, h.maxLevel, 0)

	// Phase 2: beam search at layer 0.
	candidates := h.searchLayer(q, []uint32{cur}, ef, 0)
	if len(candidates) < topK {
		// The walk reached fewer nodes than requested; answer exactly
		// rather than return a short list.
		return h.scanLocked(q, topK), nil
	}

	items := make([]distItem, 0, len(candidates))
	for _, id := range candidates {
		items = append(items, distItem{id: id, dist: h.dist(q, id)})
	}
	sortItems(items)
	if len(items) > topK {
		items = items[:topK]
	}

	hits := make([]port.Hit, len(items))
	for i, it := range items {
		hits[i] = port.Hit{Position: int(it.id), RawScore: -it.dist}
	}
	return hits, nil
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// insertLocked appends one prepared vector as a new node. Caller holds the
// write lock or owns the index exclusively.
func (h *HNSWIndex) insertLocked(vec []float32) {
	idx := uint32(len(h.vectors))
	level := h.randomLevel()

	h.vectors = append(h.vectors, vec)
	h.levels = append(h.levels, level)
	h.friends = append(h.friends, make([][]uint32, level+1))

	if h.entryID < 0 {
		h.entryID = int32(idx)
		h.maxLevel = level
		return
	}

	// Greedy walk down to the layer just above the new node's level.
	cur := h.greedyDescend(vec, uint32(h.entryID), h.maxLevel, level)

	topInsert := level
	if topInsert > h.maxLevel {
		topInsert = h.maxLevel
	}

	ep := []uint32{cur}
	for lev := topInsert; lev >= 0; lev-- {
		candidates := h.searchLayer(vec, ep, h.cfg.EfConstruction, lev)

		maxC := h.cfg.maxConns(lev)
		neighbors := h.selectNeighbors(vec, candidates, maxC)
		h.friends[idx][lev] = neighbors

		for _, nID := range neighbors {
			if lev >= len(h.friends[nID]) {
				continue
			}
			h.friends[nID][lev] = append(h.friends[nID][lev], idx)
			if len(h.friends[nID][lev]) > maxC {
				h.friends[nID][lev] = h.selectNeighbors(h.vectors[nID], h.friends[nID][lev], maxC)
			}
		}

		ep = candidates
	}

	if level > h.maxLevel {
		h.entryID = int32(idx)
		h.maxLevel = level
	}
}

// greedyDescend walks layers top..stop+1 keeping only the single closest
// node per layer.
func (h *HNSWIndex) greedyDescend(q []float32, cur uint32, top, stop int) uint32 {
	curDist := h.dist(q, cur)
	for lev := top; lev > stop; lev-- {
		changed := true
		for changed {
			changed = false
			if lev >= len(h.friends[cur]) {
				break
			}
			for _, fID := range h.friends[cur][lev] {
				if d := h.dist(q, fID); d < curDist {
					cur = fID
					curDist = d
					changed = true
				}
			}
		}
	}
	return cur
}

func (h *HNSWIndex) dist(q []float32, id uint32) float64 {
	return -h.metric.compare(q, h.vectors[id])
}

// randomLevel draws from an exponential distribution so that higher layers
// are exponentially rarer.
func (h *HNSWIndex) randomLevel() int {
	r := max(h.rng.Float64(), math.SmallestNonzeroFloat64)
	level := int(-math.Log(r) * h.levelMul)
	if level > 31 {
		level = 31
	}
	return level
}

// searchLayer performs a beam search on one layer and returns up to ef
// node ids closest to the query.
func (h *HNSWIndex) searchLayer(q []float32, entryPoints []uint32, ef int, layer int) []uint32 {
	visited := make(map[uint32]struct{}, ef*2)

	var candidates minDistHeap
	var results maxDistHeap

	for _, ep := range entryPoints {
		if _, seen := visited[ep]; seen {
			continue
		}
		visited[ep] = struct{}{}
		d := h.dist(q, ep)
		heap.Push(&candidates, distItem{id: ep, dist: d})
		heap.Push(&results, distItem{id: ep, dist: d})
		if results.Len() > ef {
			heap.Pop(&results)
		}
	}

	for candidates.Len() > 0 {
		closest := heap.Pop(&candidates).(distItem)
		if results.Len() >= ef && closest.dist > results[0].dist {
			break
		}
		if layer >= len(h.friends[closest.id]) {
			continue
		}

		for _, fID := range h.friends[closest.id][layer] {
			if _, seen := visited[fID]; seen {
				continue
			}
			visited[fID] = struct{}{}

			d := h.dist(q, fID)
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&candidates, distItem{id: fID, dist: d})
				heap.Push(&results, distItem{id: fID, dist: d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint32, results.Len())
	for i := range out {
		out[i] = results[i].id
	}
	return out
}

// selectNeighbors picks up to maxN links for a node at base using the
// diversity heuristic: a candidate is skipped when an already selected
// node is closer to it than base is, or holds the same vector. Skipped
// candidates then fill the remaining slots nearest first. Equal vectors
// count as covered, so a cluster of duplicates still links outward.
func (h *HNSWIndex) selectNeighbors(base []float32, candidates []uint32, maxN int) []uint32 {
	items := make([]distItem, len(candidates))
	for i, id := range candidates {
		items[i] = distItem{id: id, dist: h.dist(base, id)}
	}
	sortItems(items)

	selected := make([]uint32, 0, maxN)
	var pruned []uint32
	for _, it := range items {
		if len(selected) >= maxN {
			break
		}
		if h.diverse(it, selected) {
			selected = append(selected, it.id)
		} else {
			pruned = append(pruned, it.id)
		}
	}
	for _, id := range pruned {
		if len(selected) >= maxN {
			break
		}
		selected = append(selected, id)
	}
	return selected
}

// diverse reports whether candidate adds a direction not already covered
// by selected.
func (h *HNSWIndex) diverse(candidate distItem, selected []uint32) bool {
	v := h.vectors[candidate.id]
	for _, r := range selected {
		if sameVector(v, h.vectors[r]) || h.dist(v, r) < candidate.dist {
			return false
		}
	}
	return true
}

func sameVector(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// scanLocked ranks every node exactly, as the flat index does.
func (h *HNSWIndex) scanLocked(q []float32, topK int) []port.Hit {
	items := make([]distItem, len(h.vectors))
	for i := range h.vectors {
		items[i] = distItem{id: uint32(i), dist: h.dist(q, uint32(i))}
	}
	sortItems(items)
	if len(items) > topK {
		items = items[:topK]
	}
	hits := make([]port.Hit, len(items))
	for i, it := range items {
		hits[i] = port.Hit{Position: int(it.id), RawScore: -it.dist}
	}
	return hits
}

// sortItems orders by distance, then by node id so ties are deterministic.
func sortItems(items []distItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].id < items[j].id
	})
}

func newLevelRNG(seed, stream uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, stream))
}
