package memstore

import (
	"sort"
	"sync"

	"charrag/internal/domain"
	"charrag/internal/port"
)

// MemoryStore keeps artifacts in process memory. It backs tests and
// ephemeral runs where nothing should touch disk.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]port.Artifact
}

var _ port.IndexStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[string]port.Artifact),
	}
}

func (s *MemoryStore) SaveArtifact(a port.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Header.Records = len(a.Records)
	s.artifacts[a.Header.Character] = cloneArtifact(a)
	return nil
}

func (s *MemoryStore) LoadArtifact(character string) (port.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[character]
	if !ok {
		return port.Artifact{}, &domain.IndexNotFoundError{Character: character}
	}
	return cloneArtifact(a), nil
}

func (s *MemoryStore) LoadHeader(character string) (port.ArtifactHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[character]
	if !ok {
		return port.ArtifactHeader{}, &domain.IndexNotFoundError{Character: character}
	}
	return a.Header, nil
}

func (s *MemoryStore) DeleteArtifact(character string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, character)
	return nil
}

func (s *MemoryStore) ListHeaders() ([]port.ArtifactHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	headers := make([]port.ArtifactHeader, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		headers = append(headers, a.Header)
	}
	sort.Slice(headers, func(i, j int) bool {
		return headers[i].Character < headers[j].Character
	})
	return headers, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// cloneArtifact copies slices so callers cannot mutate stored state.
func cloneArtifact(a port.Artifact) port.Artifact {
	out := port.Artifact{Header: a.Header}
	if a.Records != nil {
		out.Records = make([]domain.VectorRecord, len(a.Records))
		for i, r := range a.Records {
			r.Vector = append([]float32(nil), r.Vector...)
			if r.Metadata != nil {
				md := make(map[string]string, len(r.Metadata))
				for k, v := range r.Metadata {
					md[k] = v
				}
				r.Metadata = md
			}
			out.Records[i] = r
		}
	}
	if a.Payload != nil {
		out.Payload = append([]byte(nil), a.Payload...)
	}
	return out
}
