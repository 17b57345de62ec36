package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoBeromsu/My-awesome-RA/internal/bootstrap"
	"github.com/GoBeromsu/My-awesome-RA/internal/config"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/bibliography"
	"github.com/GoBeromsu/My-awesome-RA/internal/observability/logging"
	"github.com/GoBeromsu/My-awesome-RA/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus, closeBus, err := bootstrap.NewSignalBus(cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer closeBus()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	onChange := func(ctx context.Context, project, path string) {
		sig, err := domain.NewSignal(domain.SignalBibliographyChanged, project, domain.BibliographyChanged{Path: path})
		if err == nil {
			err = bus.Publish(ctx, sig)
		}
		workerMetrics.RecordChange(err)
		if err != nil {
			logger.Warn("bibliography_change_publish_failed", "project", project, "path", path, "error", err)
			return
		}
		logger.Info("bibliography_changed", "project", project, "path", path)
	}

	watcher, err := bibliography.NewWatcher(cfg.ProjectsRoot, cfg.WatchDebounce, onChange, logger)
	if err != nil {
		logger.Error("watcher_init_failed", "root", cfg.ProjectsRoot, "error", err)
		os.Exit(1)
	}

	logger.Info("worker_watching", "root", cfg.ProjectsRoot, "signal_bus", cfg.SignalBus)
	workerMetrics.WatchStarted()
	defer workerMetrics.WatchStopped()
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("watcher_failed", "error", err)
	}
}
