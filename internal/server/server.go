// Package server wires the dispatcher into an HTTP server: the cargo
// sparse-registry surface plus /metrics, /stats, /, and /healthz.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ravenexp/crates-io-proxy/internal/config"
	"github.com/ravenexp/crates-io-proxy/internal/dispatcher"
	"github.com/ravenexp/crates-io-proxy/internal/filecache"
	"github.com/ravenexp/crates-io-proxy/internal/metadatacache"
	"github.com/ravenexp/crates-io-proxy/internal/metrics"
	"github.com/ravenexp/crates-io-proxy/internal/stats"
	"github.com/ravenexp/crates-io-proxy/internal/upstream"
)

// Server is the proxy's HTTP front end.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	ledger  *stats.Ledger

	http *http.Server

	// metricsHTTP serves /metrics and /stats on a distinct listener when
	// cfg.MetricsListen is set; nil when they are mounted on http instead.
	metricsHTTP *http.Server
}

// New builds a Server wired to its cache, upstream client, and observability
// stack, per the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	files := filecache.New(cfg.CacheDir, logger)
	meta := metadatacache.New()
	client := upstream.New(version(), nil)

	m := metrics.New()

	ledger, err := stats.Open(cfg.Stats.Driver, statsDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening stats ledger: %w", err)
	}

	d := dispatcher.New(files, meta, client, dispatcher.Config{
		UpstreamURL: cfg.UpstreamURL,
		IndexURL:    cfg.IndexURL,
		ProxyURL:    cfg.ProxyURL,
		CacheTTL:    time.Duration(cfg.CacheTTL),
		MaxInflight: cfg.MaxInflightFetches,
		Metrics:     m,
		Stats:       ledger,
		Logger:      logger,
	})

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger, m))

	router.Get("/healthz", handleHealthz)
	router.Get("/", newDashboardHandler(ledger, logger))
	router.Handle("/index/*", d)
	router.Handle("/api/v1/crates/*", d)

	var metricsHTTP *http.Server
	if cfg.MetricsListen != "" {
		metricsRouter := chi.NewRouter()
		metricsRouter.Use(middleware.Recoverer)
		metricsRouter.Use(requestLogger(logger, m))
		metricsRouter.Handle("/metrics", m.Handler())
		metricsRouter.Get("/stats", newStatsHandler(ledger, logger))

		metricsHTTP = &http.Server{
			Handler:      metricsRouter,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		}
	} else {
		router.Handle("/metrics", m.Handler())
		router.Get("/stats", newStatsHandler(ledger, logger))
	}

	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		ledger:  ledger,
		http: &http.Server{
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		metricsHTTP: metricsHTTP,
	}, nil
}

func statsDSN(cfg *config.Config) string {
	if cfg.Stats.Driver == "postgres" {
		return cfg.Stats.URL
	}
	return cfg.Stats.Path
}

// ListenAndServe binds the configured listener (TCP or Unix-domain socket,
// UDS winning when both are set) and serves until Shutdown is called. When
// cfg.MetricsListen is set, /metrics and /stats are served concurrently on
// their own TCP listener; ListenAndServe then returns only once both servers
// have stopped, with the first error either one reported. A failure of one
// server does not stop the other.
func (s *Server) ListenAndServe() error {
	ln, err := s.listen()
	if err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	s.logger.Info("starting server",
		"listen", s.cfg.Listen,
		"listen_unix", s.cfg.ListenUnix,
		"upstream_url", s.cfg.UpstreamURL,
		"cache_dir", s.cfg.CacheDir,
	)

	var g errgroup.Group
	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if s.metricsHTTP != nil {
		metricsLn, err := net.Listen("tcp", s.cfg.MetricsListen)
		if err != nil {
			return fmt.Errorf("binding metrics listener: %w", err)
		}
		s.logger.Info("starting metrics server", "metrics_listen", s.cfg.MetricsListen)

		g.Go(func() error {
			if err := s.metricsHTTP.Serve(metricsLn); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.UsesUnixSocket() {
		if _, err := os.Stat(s.cfg.ListenUnix); err == nil {
			if err := os.Remove(s.cfg.ListenUnix); err != nil {
				return nil, fmt.Errorf("removing stale socket file: %w", err)
			}
		}
		return net.Listen("unix", s.cfg.ListenUnix)
	}
	return net.Listen("tcp", s.cfg.Listen)
}

// Shutdown gracefully stops the HTTP server and closes the stats ledger.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var firstErr error
	if err := s.http.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}
	if s.metricsHTTP != nil {
		if err := s.metricsHTTP.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("metrics http shutdown: %w", err)
		}
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stats ledger close: %w", err)
		}
	}
	return firstErr
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// requestLogger logs each request's method, path, status, and duration at
// info level, in the teacher's structured-logging style, and records the
// request in the Prometheus counters/histogram exposed at /metrics.
func requestLogger(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			duration := time.Since(start)

			m.ObserveRequest(classifyKind(r.URL.Path), ww.Status(), duration)

			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", duration,
			)
		})
	}
}

// classifyKind labels a request path for the per-request metrics, per
// spec.md §6's route table.
func classifyKind(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/crates/"):
		return "crate"
	case strings.HasPrefix(path, "/index/"):
		return "index"
	case path == "/metrics":
		return "metrics"
	case path == "/stats":
		return "stats"
	case path == "/healthz":
		return "healthz"
	case path == "/":
		return "dashboard"
	default:
		return "other"
	}
}

// buildVersion is the proxy's User-Agent version string. Overridden at build time
// via -ldflags in production builds; "dev" otherwise.
var buildVersion = "dev"

func version() string {
	return buildVersion
}
