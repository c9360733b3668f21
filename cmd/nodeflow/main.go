package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/scheduler"
	"github.com/rendis/nodeflow/internal/session"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/mcp"
)

func main() {
	cmd := "serve"
	var args []string
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		runServe()
	case "install":
		runInstall(args)
	case "version", "--version", "-v":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "usage: nodeflow [serve|install|version]\n")
		os.Exit(2)
	}
}

func runServe() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the MCP stream; logs go to stderr.
	logger := logging.New(os.Stderr, level)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("nodeflow stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	var cache store.SnapshotCache
	if cfg.RedisURL != "" {
		rc, err := store.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL.Duration)
		if err != nil {
			return err
		}
		defer rc.Close()
		cache = rc
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := streaming.NewMemoryHub()
	manager, err := session.NewManager(session.Config{
		RedactionMarker:  cfg.RedactionMarker,
		CompactThreshold: cfg.CompactThreshold,
		IdleTTL:          cfg.SessionTTL.Duration,
		Store:            st,
		Cache:            cache,
		Hub:              hub,
		Metrics:          session.NewMetrics(reg),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	reaper, err := scheduler.NewReaper(manager, cfg.SweepSchedule, logger)
	if err != nil {
		return err
	}
	if err := reaper.Start(ctx); err != nil {
		return err
	}
	defer reaper.Stop()

	if cfg.MetricsAddr != "" {
		metricsSrv := newMetricsServer(cfg.MetricsAddr, reg)
		go func() {
			logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	srv, err := mcp.NewNodeflowServer(mcp.ServerDeps{
		Manager: manager,
		Hub:     hub,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	logger.Info("nodeflow serving on stdio",
		slog.String("version", version),
		slog.String("db_path", cfg.DBPath),
		slog.Bool("redis_cache", cache != nil),
	)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
