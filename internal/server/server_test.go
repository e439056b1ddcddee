package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ravenexp/crates-io-proxy/internal/config"
)

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.UpstreamURL = upstreamURL
	cfg.IndexURL = upstreamURL
	cfg.ProxyURL = "http://localhost:3080/"
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.CacheTTL = config.Duration(time.Hour)
	cfg.Stats.Driver = "sqlite"
	cfg.Stats.Path = filepath.Join(dir, "stats.db")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func TestHealthz(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL)
	defer func() { _ = srv.ledger.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL)
	defer func() { _ = srv.ledger.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatsEndpointServesJSON(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL)
	defer func() { _ = srv.ledger.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TotalEvents != 0 {
		t.Errorf("TotalEvents = %d, want 0 for a fresh ledger", resp.TotalEvents)
	}
}

func TestDashboardRendersHTML(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL)
	defer func() { _ = srv.ledger.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestCargoRoutesAreMounted(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"name":"serde"}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL)
	defer func() { _ = srv.ledger.Close() }()

	req := httptest.NewRequest(http.MethodGet, "/index/se/rd/serde", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"name":"serde"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMetricsListenSeparatesObservabilityRoutes(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.UpstreamURL = upstream.URL
	cfg.IndexURL = upstream.URL
	cfg.ProxyURL = "http://localhost:3080/"
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.CacheTTL = config.Duration(time.Hour)
	cfg.Stats.Driver = "sqlite"
	cfg.Stats.Path = filepath.Join(dir, "stats.db")
	cfg.MetricsListen = "127.0.0.1:0"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(cfg, logger)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer func() { _ = srv.ledger.Close() }()

	if srv.metricsHTTP == nil {
		t.Fatal("metricsHTTP is nil, want a dedicated server when MetricsListen is set")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("main router /metrics status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	srv.metricsHTTP.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics router /metrics status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec = httptest.NewRecorder()
	srv.metricsHTTP.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics router /stats status = %d, want 200", rec.Code)
	}
}

func TestNonGETIsRejected(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	srv := newTestServer(t, upstream.URL)
	defer func() { _ = srv.ledger.Close() }()

	req := httptest.NewRequest(http.MethodPost, "/index/se/rd/serde", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
