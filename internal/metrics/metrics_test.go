package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheHit("players")
	m.CacheHit("players")
	m.CacheMiss("weather")
	m.CacheFetch("weather", nil)
	m.CacheFetch("weather", errors.New("boom"))
	m.CacheInvalidated("terrains")
	m.ForcedLogout()

	if got := testutil.ToFloat64(m.cacheHits.WithLabelValues("players")); got != 2 {
		t.Errorf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheFetches.WithLabelValues("weather")); got != 2 {
		t.Errorf("expected 2 fetches, got %v", got)
	}
	if got := testutil.ToFloat64(m.cacheFetchErrors.WithLabelValues("weather")); got != 1 {
		t.Errorf("expected 1 fetch error, got %v", got)
	}
	if got := testutil.ToFloat64(m.forcedLogouts); got != 1 {
		t.Errorf("expected 1 forced logout, got %v", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheHit("players")
	m.CacheFetch("players", nil)
	m.ObserveRequest("GET", 200, time.Millisecond)
	m.ForcedLogout()
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRequest("GET", 200, 20*time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "novorio_api_request_duration_seconds") {
		t.Errorf("expected request histogram in output, got:\n%s", body)
	}
}
