// Command proxy runs the crates.io sparse-registry caching proxy.
//
// Usage:
//
//	proxy [flags]
//
// Flags:
//
//	-config string
//	      Path to a YAML configuration file
//	-listen string
//	      TCP address to listen on (default "0.0.0.0:3080")
//	-listen-unix string
//	      Unix-domain socket path (wins over -listen if set)
//	-upstream-url string
//	      Crate download origin (default "https://crates.io/")
//	-index-url string
//	      Sparse-index origin (default "https://index.crates.io/")
//	-proxy-url string
//	      Public URL baked into config.json
//	-cache-dir string
//	      On-disk cache root
//	-log-format string
//	      Log format: text, json (default "text")
//	-version
//	      Print version and exit
//
// Environment Variables:
//
//	CRATES_IO_PROXY_LISTEN
//	CRATES_IO_PROXY_LISTEN_UNIX
//	CRATES_IO_PROXY_UPSTREAM_URL
//	CRATES_IO_PROXY_INDEX_URL
//	CRATES_IO_PROXY_PROXY_URL
//	CRATES_IO_PROXY_CACHE_DIR
//	CRATES_IO_PROXY_CACHE_TTL
//	CRATES_IO_PROXY_VERBOSE
//	CRATES_IO_PROXY_STATS_DB_DRIVER
//	CRATES_IO_PROXY_STATS_DB_PATH
//	CRATES_IO_PROXY_STATS_DB_URL
//	CRATES_IO_PROXY_MAX_INFLIGHT_FETCHES
//	CRATES_IO_PROXY_METRICS_LISTEN
//	CRATES_IO_PROXY_LOG_FORMAT
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ravenexp/crates-io-proxy/internal/config"
	"github.com/ravenexp/crates-io-proxy/internal/server"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	fs := flag.NewFlagSet("proxy", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML configuration file")
	listen := fs.String("listen", "", "TCP address to listen on")
	listenUnix := fs.String("listen-unix", "", "Unix-domain socket path")
	upstreamURL := fs.String("upstream-url", "", "Crate download origin")
	indexURL := fs.String("index-url", "", "Sparse-index origin")
	proxyURL := fs.String("proxy-url", "", "Public URL baked into config.json")
	cacheDir := fs.String("cache-dir", "", "On-disk cache root")
	logFormat := fs.String("log-format", "", "Log format: text, json")
	showVersion := fs.Bool("version", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "crates-io-proxy - Cargo sparse-registry caching proxy\n\n")
		fmt.Fprintf(os.Stderr, "Usage: proxy [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("crates-io-proxy %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error applying environment overrides: %v\n", err)
		os.Exit(1)
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *listenUnix != "" {
		cfg.ListenUnix = *listenUnix
	}
	if *upstreamURL != "" {
		cfg.UpstreamURL = *upstreamURL
	}
	if *indexURL != "" {
		cfg.IndexURL = *indexURL
	}
	if *proxyURL != "" {
		cfg.ProxyURL = *proxyURL
	}
	if *cacheDir != "" {
		cfg.CacheDir = *cacheDir
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Verbose, cfg.LogFormat)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

const shutdownGrace = 30 * time.Second

func setupLogger(verbose int, format string) *slog.Logger {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
