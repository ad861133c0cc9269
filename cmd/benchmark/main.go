// Command benchmark measures hnsw recall and latency against the exact flat
// index, on random vectors or on a stored character corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strings"
	"time"

	"charrag/config"
	"charrag/internal/adapter/store"
	"charrag/internal/adapter/vector"
	"charrag/internal/domain"
	"charrag/internal/port"
	"charrag/internal/usecase"
)

func main() {
	n := flag.Int("n", 5000, "number of random vectors")
	dim := flag.Int("dim", 128, "dimension of random vectors")
	queries := flag.Int("queries", 200, "number of queries")
	topK := flag.Int("k", 10, "neighbours per query")
	metric := flag.String("metric", "cosine", "cosine, dot or euclidean")
	m := flag.Int("m", 16, "hnsw M")
	efc := flag.Int("ef-construction", 200, "hnsw efConstruction")
	efs := flag.Int("ef-search", 64, "hnsw efSearch")
	seed := flag.Uint64("seed", 42, "random seed")
	dir := flag.String("dir", "", "project directory holding .charrag/index.db (use a stored corpus)")
	character := flag.String("character", "", "character whose stored corpus to use (with -dir)")
	flag.Parse()

	metricKind, err := domain.ParseMetricKind(*metric)
	if err != nil {
		fail(err)
	}
	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	var corpus *domain.Corpus
	if *dir != "" {
		corpus, err = loadCorpus(*dir, *character)
	} else {
		corpus, err = randomCorpus(rng, *n, *dim)
	}
	if err != nil {
		fail(err)
	}
	qs := makeQueries(rng, corpus, *queries)

	fmt.Println("HNSW RECALL BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Corpus:  %s, %d vectors, dim %d, metric %s\n", corpus.Character, corpus.Len(), corpus.Dimension, metricKind)
	fmt.Printf("Queries: %d, k=%d, M=%d, efConstruction=%d, efSearch=%d\n\n", len(qs), *topK, *m, *efc, *efs)

	ctx := context.Background()
	flat, flatBuild := build(ctx, corpus, vector.Options{Kind: domain.IndexFlat, Metric: metricKind})
	hnsw, hnswBuild := build(ctx, corpus, vector.Options{
		Kind:   domain.IndexHNSW,
		Metric: metricKind,
		HNSW:   vector.HNSWConfig{M: *m, EfConstruction: *efc, EfSearch: *efs, Seed: *seed},
	})

	truth, flatLat := searchAll(flat, qs, *topK)
	approx, hnswLat := searchAll(hnsw, qs, *topK)

	var recall float64
	for i := range qs {
		recall += overlap(truth[i], approx[i])
	}
	recall /= float64(len(qs))

	fmt.Printf("%-6s build %-10s p50 %-10s p99 %s\n", "flat", round(flatBuild), round(percentile(flatLat, 50)), round(percentile(flatLat, 99)))
	fmt.Printf("%-6s build %-10s p50 %-10s p99 %s\n", "hnsw", round(hnswBuild), round(percentile(hnswLat, 50)), round(percentile(hnswLat, 99)))
	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("Recall@%d: %.4f\n", *topK, recall)

	switch {
	case recall >= 0.95:
		fmt.Println("Status: GOOD")
	case recall >= 0.9:
		fmt.Println("Status: OK - consider a larger efSearch")
	default:
		fmt.Println("Status: POOR - raise efSearch, efConstruction or M")
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func randomCorpus(rng *rand.Rand, n, dim int) (*domain.Corpus, error) {
	corpus, err := domain.NewCorpus("random", dim)
	if err != nil {
		return nil, err
	}
	records := make([]domain.VectorRecord, n)
	for i := range records {
		records[i] = domain.VectorRecord{ID: fmt.Sprintf("r%d", i), Vector: randomUnit(rng, dim)}
	}
	return corpus, corpus.Add(records...)
}

func loadCorpus(dir, character string) (*domain.Corpus, error) {
	if character == "" {
		return nil, fmt.Errorf("-character is required with -dir")
	}
	st, err := store.NewBoltStore(config.IndexDBPath(dir))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	a, err := st.LoadArtifact(usecase.CharacterKey(character))
	if err != nil {
		return nil, err
	}
	corpus, err := domain.NewCorpus(a.Header.Character, a.Header.Dimension)
	if err != nil {
		return nil, err
	}
	return corpus, corpus.Add(a.Records...)
}

// makeQueries perturbs corpus vectors so every query has close neighbours.
func makeQueries(rng *rand.Rand, corpus *domain.Corpus, n int) [][]float32 {
	qs := make([][]float32, n)
	for i := range qs {
		base := corpus.Records[rng.IntN(corpus.Len())].Vector
		noise := randomUnit(rng, corpus.Dimension)
		q := make([]float32, len(base))
		for j := range q {
			q[j] = base[j] + 0.3*noise[j]
		}
		qs[i] = q
	}
	return qs
}

func randomUnit(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		x := rng.NormFloat64()
		v[i] = float32(x)
		norm += x * x
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func build(ctx context.Context, corpus *domain.Corpus, opts vector.Options) (port.Index, time.Duration) {
	idx, err := vector.NewIndex(opts)
	if err != nil {
		fail(err)
	}
	start := time.Now()
	if err := idx.Build(ctx, corpus); err != nil {
		fail(err)
	}
	return idx, time.Since(start)
}

func searchAll(idx port.Index, qs [][]float32, k int) ([][]port.Hit, []time.Duration) {
	hits := make([][]port.Hit, len(qs))
	lat := make([]time.Duration, len(qs))
	for i, q := range qs {
		start := time.Now()
		h, err := idx.Search(q, k)
		lat[i] = time.Since(start)
		if err != nil {
			fail(err)
		}
		hits[i] = h
	}
	return hits, lat
}

func overlap(truth, approx []port.Hit) float64 {
	if len(truth) == 0 {
		return 1
	}
	want := make(map[int]bool, len(truth))
	for _, h := range truth {
		want[h.Position] = true
	}
	found := 0
	for _, h := range approx {
		if want[h.Position] {
			found++
		}
	}
	return float64(found) / float64(len(truth))
}

func percentile(d []time.Duration, p int) time.Duration {
	if len(d) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[(len(sorted)-1)*p/100]
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}
