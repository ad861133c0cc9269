package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBuildAndRetrieval(t *testing.T) {
	m := New()
	start := time.Now()

	m.ObserveBuild("holmes", "build", "flat", 12, start, nil)
	m.ObserveBuild("holmes", "build", "flat", 0, start, errors.New("boom"))
	m.ObserveRetrieval("holmes", "flat", "sigmoid", 3, start, nil)

	if got := testutil.ToFloat64(m.IndexBuildTotal.WithLabelValues("holmes", "build", "ok")); got != 1 {
		t.Errorf("expected 1 successful build, got %v", got)
	}
	if got := testutil.ToFloat64(m.IndexBuildTotal.WithLabelValues("holmes", "build", "error")); got != 1 {
		t.Errorf("expected 1 failed build, got %v", got)
	}
	if got := testutil.ToFloat64(m.IndexRecords.WithLabelValues("holmes")); got != 12 {
		t.Errorf("expected records gauge 12, got %v", got)
	}
	if got := testutil.ToFloat64(m.RetrievalTotal.WithLabelValues("holmes", "ok")); got != 1 {
		t.Errorf("expected 1 retrieval, got %v", got)
	}

	m.ObserveReset("holmes")
	if n := testutil.CollectAndCount(m.IndexRecords); n != 0 {
		t.Errorf("expected records gauge to be dropped after reset, got %d series", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBuild("x", "build", "flat", 1, time.Now(), nil)
	m.ObserveRetrieval("x", "flat", "sigmoid", 1, time.Now(), nil)
	m.ObserveLLM("mock", "mock", time.Now(), nil)
	m.ObserveHTTP("GET", "/health", 200, time.Now())
	m.ObserveReset("x")
	m.ObserveQueryCache(true)
}

func TestObserveQueryCache(t *testing.T) {
	m := New()
	m.ObserveQueryCache(true)
	m.ObserveQueryCache(false)
	m.ObserveQueryCache(false)

	if got := testutil.ToFloat64(m.QueryCacheTotal.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.QueryCacheTotal.WithLabelValues("miss")); got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveLLM("mock", "mock", time.Now(), nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "charrag_llm_call_total") {
		t.Error("expected llm counter in exposition output")
	}
}
