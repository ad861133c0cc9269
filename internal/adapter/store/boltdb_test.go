package store

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.etcd.io/bbolt"

	"charrag/internal/domain"
	"charrag/internal/port"
)

func openStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleArtifact(character string) port.Artifact {
	return port.Artifact{
		Header: port.ArtifactHeader{
			Character:      character,
			Kind:           domain.IndexHNSW,
			Metric:         domain.MetricCosine,
			Dimension:      3,
			EmbeddingModel: "mock",
			M:              16,
			EfConstruction: 200,
			EfSearch:       64,
			BuiltAt:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		Records: []domain.VectorRecord{
			{ID: "a", Vector: []float32{1, 0, 0}, Text: "first", Metadata: map[string]string{domain.MetaKind: "facts"}},
			{ID: "b", Vector: []float32{0, 1, 0}, Text: "second", Metadata: map[string]string{domain.MetaKind: "traits"}},
		},
		Payload: []byte{0x01, 0x02, 0x03},
	}
}

func TestSaveAndLoadArtifact(t *testing.T) {
	s := openStore(t)

	in := sampleArtifact("Sherlock Holmes")
	if err := s.SaveArtifact(in); err != nil {
		t.Fatal(err)
	}

	out, err := s.LoadArtifact("Sherlock Holmes")
	if err != nil {
		t.Fatal(err)
	}
	if out.Header.Kind != domain.IndexHNSW || out.Header.Metric != domain.MetricCosine {
		t.Errorf("unexpected header %+v", out.Header)
	}
	if out.Header.Records != 2 {
		t.Errorf("expected record count 2, got %d", out.Header.Records)
	}
	if out.Header.SchemaVersion != CurrentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", CurrentSchemaVersion, out.Header.SchemaVersion)
	}
	if out.Header.ConfigHash != ComputeConfigHash(in.Header) {
		t.Errorf("expected config hash to be filled in")
	}
	if !out.Header.BuiltAt.Equal(in.Header.BuiltAt) {
		t.Errorf("expected built at %v, got %v", in.Header.BuiltAt, out.Header.BuiltAt)
	}
	if len(out.Records) != 2 || out.Records[1].Text != "second" || out.Records[1].Vector[1] != 1 {
		t.Errorf("records not preserved: %+v", out.Records)
	}
	if out.Records[0].Kind() != domain.KindFacts {
		t.Errorf("metadata not preserved: %+v", out.Records[0].Metadata)
	}
	if string(out.Payload) != string(in.Payload) {
		t.Errorf("payload not preserved")
	}
}

func TestSaveReplacesArtifact(t *testing.T) {
	s := openStore(t)

	first := sampleArtifact("watson")
	s.SaveArtifact(first)

	second := sampleArtifact("watson")
	second.Header.Kind = domain.IndexFlat
	second.Records = second.Records[:1]
	second.Payload = nil
	if err := s.SaveArtifact(second); err != nil {
		t.Fatal(err)
	}

	out, err := s.LoadArtifact("watson")
	if err != nil {
		t.Fatal(err)
	}
	if out.Header.Kind != domain.IndexFlat || len(out.Records) != 1 {
		t.Errorf("expected replaced artifact, got %+v", out.Header)
	}
	if out.Payload != nil {
		t.Errorf("expected stale payload to be gone, got %v", out.Payload)
	}
}

func TestLoadMissingArtifact(t *testing.T) {
	s := openStore(t)

	_, err := s.LoadArtifact("nobody")
	if !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
	_, err = s.LoadHeader("nobody")
	if !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound from LoadHeader, got %v", err)
	}
}

func TestDeleteArtifact(t *testing.T) {
	s := openStore(t)

	if err := s.DeleteArtifact("nobody"); err != nil {
		t.Errorf("deleting a missing artifact must be a no-op, got %v", err)
	}

	s.SaveArtifact(sampleArtifact("moriarty"))
	if err := s.DeleteArtifact("moriarty"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadArtifact("moriarty"); !errors.Is(err, domain.ErrIndexNotFound) {
		t.Errorf("expected artifact to be gone, got %v", err)
	}
}

func TestListHeadersAndClear(t *testing.T) {
	s := openStore(t)
	s.SaveArtifact(sampleArtifact("a"))
	s.SaveArtifact(sampleArtifact("b"))

	headers, err := s.ListHeaders()
	if err != nil {
		t.Fatal(err)
	}
	if len(headers) != 2 || headers[0].Character != "a" || headers[1].Character != "b" {
		t.Errorf("unexpected headers %+v", headers)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	headers, _ = s.ListHeaders()
	if len(headers) != 0 {
		t.Errorf("expected no headers after clear, got %d", len(headers))
	}
}

func TestReopenKeepsArtifacts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s.SaveArtifact(sampleArtifact("irene"))
	s.Close()

	s, err = NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	version, err := s.SchemaVersion()
	if err != nil {
		t.Fatal(err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", CurrentSchemaVersion, version)
	}
	if _, err := s.LoadHeader("irene"); err != nil {
		t.Errorf("expected artifact to survive reopen, got %v", err)
	}
}

func TestMigrateStampsAndRejectsNewerSchema(t *testing.T) {
	s := openStore(t)

	setVersion := func(v int) {
		t.Helper()
		err := s.db.Update(func(tx *bbolt.Tx) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			return tx.Bucket(bucketMeta).Put(keySchemaVersion, data)
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	setVersion(0)
	if err := s.Migrate(); err != nil {
		t.Fatalf("migrate from v0: %v", err)
	}
	if v, _ := s.SchemaVersion(); v != CurrentSchemaVersion {
		t.Errorf("expected v%d after migrate, got v%d", CurrentSchemaVersion, v)
	}
	if err := s.Migrate(); err != nil {
		t.Errorf("migrate at current version: %v", err)
	}

	setVersion(CurrentSchemaVersion + 1)
	if err := s.Migrate(); err == nil {
		t.Error("expected a newer schema to be rejected")
	}
}

func TestConfigHashTracksBuildParameters(t *testing.T) {
	h := sampleArtifact("x").Header
	base := ComputeConfigHash(h)

	same := h
	same.BuiltAt = time.Now()
	same.Records = 99
	if ComputeConfigHash(same) != base {
		t.Error("hash must ignore build time and record count")
	}

	changed := h
	changed.EfSearch = 128
	if ComputeConfigHash(changed) == base {
		t.Error("hash must change with ef_search")
	}
	changed = h
	changed.Metric = domain.MetricDot
	if ComputeConfigHash(changed) == base {
		t.Error("hash must change with metric")
	}
}
