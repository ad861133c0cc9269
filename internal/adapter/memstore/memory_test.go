package memstore

import (
	"errors"
	"testing"

	"charrag/internal/domain"
	"charrag/internal/port"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	in := port.Artifact{
		Header:  port.ArtifactHeader{Character: "holmes", Kind: domain.IndexFlat, Metric: domain.MetricDot},
		Records: []domain.VectorRecord{{ID: "a", Vector: []float32{1, 2}}},
		Payload: []byte("p"),
	}
	if err := s.SaveArtifact(in); err != nil {
		t.Fatal(err)
	}

	// Mutating the input must not leak into the store.
	in.Records[0].Vector[0] = 99

	out, err := s.LoadArtifact("holmes")
	if err != nil {
		t.Fatal(err)
	}
	if out.Records[0].Vector[0] != 1 {
		t.Errorf("expected stored copy to be isolated, got %v", out.Records[0].Vector)
	}
	if out.Header.Records != 1 {
		t.Errorf("expected record count 1, got %d", out.Header.Records)
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.LoadArtifact("x"); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
	if err := s.DeleteArtifact("x"); err != nil {
		t.Errorf("expected no-op delete, got %v", err)
	}
}

func TestMemoryStoreListHeadersSorted(t *testing.T) {
	s := NewMemoryStore()
	s.SaveArtifact(port.Artifact{Header: port.ArtifactHeader{Character: "b"}})
	s.SaveArtifact(port.Artifact{Header: port.ArtifactHeader{Character: "a"}})

	headers, _ := s.ListHeaders()
	if len(headers) != 2 || headers[0].Character != "a" {
		t.Errorf("expected sorted headers, got %+v", headers)
	}
}
