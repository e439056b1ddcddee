// Package dispatcher routes inbound cargo sparse-registry requests against
// the two-tier cache, deciding between a direct cache-hit response and a
// detached upstream-fetch worker.
package dispatcher

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ravenexp/crates-io-proxy/internal/cargo"
	"github.com/ravenexp/crates-io-proxy/internal/filecache"
	"github.com/ravenexp/crates-io-proxy/internal/metadatacache"
	"github.com/ravenexp/crates-io-proxy/internal/metrics"
	"github.com/ravenexp/crates-io-proxy/internal/response"
	"github.com/ravenexp/crates-io-proxy/internal/stats"
	"github.com/ravenexp/crates-io-proxy/internal/upstream"
)

const (
	indexPrefix    = "/index/"
	downloadPrefix = "/api/v1/crates/"
	configJSONURL  = "config.json"
)

// Dispatcher implements http.Handler for the proxy's cargo surface.
type Dispatcher struct {
	files    *filecache.FileCache
	meta     *metadatacache.Cache
	client   *upstream.Client
	upstream string // upstream crates.io origin, trailing slash trimmed
	index    string // sparse index origin, ending in exactly one slash
	proxyURL string

	cacheTTL time.Duration

	fetchSem *semaphore.Weighted

	metrics *metrics.Metrics
	stats   *stats.Ledger

	logger *slog.Logger
}

// Config bundles the fixed settings a Dispatcher needs at construction.
type Config struct {
	UpstreamURL string
	IndexURL    string
	ProxyURL    string
	CacheTTL    time.Duration
	MaxInflight int64
	Metrics     *metrics.Metrics
	Stats       *stats.Ledger
	Logger      *slog.Logger
}

// New builds a Dispatcher wired to its caches and upstream client.
func New(files *filecache.FileCache, meta *metadatacache.Cache, client *upstream.Client, cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxInflight := cfg.MaxInflight
	if maxInflight <= 0 {
		maxInflight = 64
	}
	return &Dispatcher{
		files:    files,
		meta:     meta,
		client:   client,
		upstream: strings.TrimSuffix(cfg.UpstreamURL, "/"),
		index:    strings.TrimSuffix(cfg.IndexURL, "/") + "/",
		proxyURL: cfg.ProxyURL,
		cacheTTL: cfg.CacheTTL,
		fetchSem: semaphore.NewWeighted(maxInflight),
		metrics:  cfg.Metrics,
		stats:    cfg.Stats,
		logger:   logger,
	}
}

// ServeHTTP implements the dispatch contract of spec §4.6: method filter,
// path classification, cache lookup, and serve/refresh/forward decision.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Reject(w, http.StatusForbidden)
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, downloadPrefix):
		d.serveDownload(w, r, strings.TrimPrefix(r.URL.Path, downloadPrefix))
	case strings.HasPrefix(r.URL.Path, indexPrefix):
		d.serveIndex(w, r, strings.TrimPrefix(r.URL.Path, indexPrefix))
	default:
		response.Reject(w, http.StatusNotFound)
	}
}

func (d *Dispatcher) serveDownload(w http.ResponseWriter, r *http.Request, remainder string) {
	id, ok := cargo.CrateIDFromDownloadURL(remainder)
	if !ok {
		response.Reject(w, http.StatusNotFound)
		return
	}

	if data, ok := d.files.FetchCrate(id); ok {
		d.metrics.ObserveCacheHit("crate")
		d.recordStat(r.Context(), "crate", id.Name(), id.Version(), stats.OutcomeCacheHit, int64(len(data)), "")
		response.Crate(w, data)
		return
	}
	d.metrics.ObserveCacheMiss("crate")

	d.spawnDownloadWorker(w, r, id)
}

func (d *Dispatcher) serveIndex(w http.ResponseWriter, r *http.Request, remainder string) {
	if remainder == configJSONURL {
		body := cargo.GenConfigJSON(d.proxyURL, d.upstream)
		response.ConfigJSON(w, body)
		return
	}

	key, ok := cargo.IndexKeyFromIndexURL(remainder)
	if !ok {
		response.Reject(w, http.StatusNotFound)
		return
	}

	requested := key
	if etag := r.Header.Get("If-None-Match"); etag != "" {
		requested.SetETag(etag)
	}
	if lastModified := r.Header.Get("If-Modified-Since"); lastModified != "" {
		if t, ok := cargo.ParseHTTPTime(lastModified); ok {
			requested.SetLastModified(t)
		}
	}

	cached, hasCached := d.meta.Fetch(key.Name())
	if hasCached {
		if cached.Expired(time.Now(), d.cacheTTL) {
			d.metrics.ObserveCacheMiss("index")
			d.spawnIndexWorker(w, r, requested, cached)
			return
		}
		if cached.Equivalent(requested) {
			d.metrics.ObserveCacheHit("index")
			d.recordStat(r.Context(), "index", key.Name(), "", stats.OutcomeCacheHit, 0, "")
			response.IndexNotModified(w, cached)
			return
		}
		if data, ok := d.files.FetchIndexEntry(cached); ok {
			d.metrics.ObserveCacheHit("index")
			d.recordStat(r.Context(), "index", key.Name(), "", stats.OutcomeCacheHit, int64(len(data)), "")
			response.IndexEntry(w, cached, data)
			return
		}
	}

	d.metrics.ObserveCacheMiss("index")

	basis := key
	if hasCached {
		basis = cached
	} else if recovered, ok := d.files.RecoverIndexEntry(key.Name()); ok {
		basis = recovered
	}
	d.spawnIndexWorker(w, r, requested, basis)
}
