package embedding

import (
	"context"
	"math"
	"testing"

	"charrag/config"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestMockEmbedderDeterministicAndUnit(t *testing.T) {
	e := NewMockEmbedder(32)
	vecs, err := e.Embed(context.Background(), []string{"The violin at Baker Street", "The violin at Baker Street", ""})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 32 {
			t.Errorf("vector %d has %d dims", i, len(v))
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("vector %d not unit length: %f", i, norm)
		}
	}
	for j := range vecs[0] {
		if vecs[0][j] != vecs[1][j] {
			t.Fatal("same text produced different vectors")
		}
	}
}

func TestMockEmbedderSharedWordsAreCloser(t *testing.T) {
	e := NewMockEmbedder(256)
	vecs, _ := e.Embed(context.Background(), []string{
		"I play the violin when thinking",
		"violin thinking",
		"the weather in the colonies is hot",
	})
	if cosine(vecs[0], vecs[1]) <= cosine(vecs[0], vecs[2]) {
		t.Errorf("expected texts sharing words to be closer: %f vs %f",
			cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
	}
}

func TestMockEmbedderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(8).Embed(ctx, []string{"x"}); err == nil {
		t.Error("expected context error")
	}
}

func TestNewFromConfig(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "mock", Dimension: 16})
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 16 || e.ModelName() != "mock" {
		t.Errorf("unexpected embedder %s/%d", e.ModelName(), e.Dimension())
	}

	if _, err := New(config.EmbeddingConfig{Provider: "voyage"}); err == nil {
		t.Error("expected error for unknown provider")
	}

	t.Setenv("CHARRAG_TEST_MISSING_KEY", "")
	if _, err := New(config.EmbeddingConfig{Provider: "openai", APIKeyEnv: "CHARRAG_TEST_MISSING_KEY", Model: "text-embedding-3-small"}); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestOpenAIDimensionRules(t *testing.T) {
	t.Setenv("CHARRAG_TEST_KEY", "sk-test")

	e, err := NewOpenAIEmbedder("CHARRAG_TEST_KEY", "text-embedding-3-small", 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 1536 || e.sendDimensions {
		t.Errorf("expected native 1536 without override, got %d (send=%v)", e.Dimension(), e.sendDimensions)
	}

	e, err = NewOpenAIEmbedder("CHARRAG_TEST_KEY", "text-embedding-3-large", 256)
	if err != nil {
		t.Fatal(err)
	}
	if e.Dimension() != 256 || !e.sendDimensions {
		t.Errorf("expected shortened 256 dims, got %d (send=%v)", e.Dimension(), e.sendDimensions)
	}

	if _, err := NewOpenAIEmbedder("CHARRAG_TEST_KEY", "text-embedding-ada-002", 256); err == nil {
		t.Error("expected error: ada-002 cannot shorten")
	}
}
