package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/metricsmith/routeros_exporter/internal/config"
	"github.com/metricsmith/routeros_exporter/internal/pool"
	"github.com/metricsmith/routeros_exporter/internal/registry"
	"github.com/metricsmith/routeros_exporter/internal/replycache"
	"github.com/metricsmith/routeros_exporter/internal/scheduler"
	"github.com/metricsmith/routeros_exporter/internal/server"
)

var (
	version = "0.1.0"
	commit  = "unknown"
)

// schedulerHealth adapts *scheduler.Scheduler to server.HealthSource; the
// two packages define independent RouterHealth types so neither depends
// on the other's internals.
type schedulerHealth struct {
	sched *scheduler.Scheduler
}

func (h schedulerHealth) Health() []server.RouterHealth {
	src := h.sched.Health()
	out := make([]server.RouterHealth, len(src))
	for i, r := range src {
		out[i] = server.RouterHealth{
			Name:                r.Name,
			Status:              r.Status,
			ConsecutiveErrors:   r.ConsecutiveErrors,
			HasSuccessfulScrape: r.HasSuccessfulScrape,
		}
	}
	return out
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if cfg.ShowVersion {
		fmt.Printf("routeros_exporter v%s\ncommit: %s\nbuilt with: %s\n", version, commit, runtime.Version())
		os.Exit(0)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting routeros exporter",
		"listen_address", cfg.ListenAddress,
		"metrics_path", cfg.MetricsPath,
		"health_path", cfg.HealthPath,
		"collection_interval", cfg.CollectionInterval.String(),
		"targets", len(cfg.Targets),
	)

	targets := make([]pool.Target, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets = append(targets, pool.Target{
			Name:    t.Name,
			Address: t.Address,
			User:    t.User,
			Secret:  pool.Secret(t.Password),
		})
	}

	connPool := pool.New(nil, logger)
	reg := registry.New()
	cache := replycache.New()
	sched := scheduler.New(targets, connPool, reg, cache, cfg.CollectionInterval, logger)

	srv := server.New(server.Options{
		ListenAddress: cfg.ListenAddress,
		MetricsPath:   cfg.MetricsPath,
		HealthPath:    cfg.HealthPath,
		Version:       version,
		ScrapeTimeout: cfg.ScrapeTimeout,
	}, reg, schedulerHealth{sched: sched}, logger)

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)

	errCh := make(chan error, 1)
	go func() {
		if serveErr := srv.ListenAndServe(); serveErr != nil {
			errCh <- serveErr
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", "signal", sig.String())
	case serveErr := <-errCh:
		logger.Error("server exited with error", "err", serveErr)
		cancelSched()
		connPool.Shutdown()
		os.Exit(1)
	}

	cancelSched()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	connPool.Shutdown()

	logger.Info("shutdown complete")
}

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
