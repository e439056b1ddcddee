package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAppearsInHandlerOutput(t *testing.T) {
	m := New()
	m.ObserveRequest("index", 200, 15*time.Millisecond)
	m.ObserveRequest("crate", 404, 2*time.Millisecond)

	body := scrape(t, m)

	if !strings.Contains(body, `crates_io_proxy_requests_total{kind="index",status="2xx"} 1`) {
		t.Errorf("missing 2xx counter:\n%s", body)
	}
	if !strings.Contains(body, `crates_io_proxy_requests_total{kind="crate",status="4xx"} 1`) {
		t.Errorf("missing 4xx counter:\n%s", body)
	}
}

func TestObserveCacheHitAndMiss(t *testing.T) {
	m := New()
	m.ObserveCacheHit("crate")
	m.ObserveCacheHit("crate")
	m.ObserveCacheMiss("index")

	body := scrape(t, m)

	if !strings.Contains(body, `crates_io_proxy_cache_hits_total{kind="crate"} 2`) {
		t.Errorf("missing cache hit counter:\n%s", body)
	}
	if !strings.Contains(body, `crates_io_proxy_cache_misses_total{kind="index"} 1`) {
		t.Errorf("missing cache miss counter:\n%s", body)
	}
}

func TestObserveUpstreamFetchAndError(t *testing.T) {
	m := New()
	m.ObserveUpstreamFetch("crate", 250*time.Millisecond)
	m.ObserveUpstreamError("index", "transport")

	body := scrape(t, m)

	if !strings.Contains(body, "crates_io_proxy_upstream_fetch_duration_seconds") {
		t.Errorf("missing upstream fetch duration histogram:\n%s", body)
	}
	if !strings.Contains(body, `crates_io_proxy_upstream_errors_total{error_type="transport",kind="index"} 1`) {
		t.Errorf("missing upstream error counter:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("index", 200, time.Millisecond)
	m.ObserveCacheHit("crate")
	m.ObserveCacheMiss("crate")
	m.ObserveUpstreamFetch("crate", time.Millisecond)
	m.ObserveUpstreamError("crate", "upstream")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Errorf("nil Metrics Handler() status = %d, want 404", rec.Code)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"}, {201, "2xx"}, {304, "304"}, {404, "4xx"}, {500, "5xx"}, {100, "other"},
	}
	for _, tc := range tests {
		if got := statusLabel(tc.status); got != tc.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tc.status, got, tc.want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("metrics handler status = %d", rec.Code)
	}
	return rec.Body.String()
}
