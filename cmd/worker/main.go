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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/dokeep/internal/bootstrap"
	"github.com/kirillkom/dokeep/internal/config"
	"github.com/kirillkom/dokeep/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("worker_queue", "queue_path", cfg.QueuePath, "stale_after", cfg.StaleProcessingAfter.String())
		return app.Worker.Run(gctx)
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(app),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if app.Notifier != nil {
		g.Go(func() error {
			logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
			err := app.Notifier.SubscribeQueued(gctx, func(documentID int64) {
				logger.Debug("worker_wake", "document_id", documentID)
				app.Worker.Wake()
			})
			if err != nil {
				// Wake-ups are optional; polling keeps draining the queue.
				logger.Warn("worker_wakeups_unavailable", "subject", cfg.NATSSubject, "error", err)
			}
			return nil
		})
	} else {
		watcher, err := app.Queue.Watch(logger)
		if err != nil {
			logger.Warn("worker_queue_watch_unavailable", "queue_path", cfg.QueuePath, "error", err)
		} else {
			g.Go(func() error {
				logger.Info("worker_queue_watching", "queue_path", cfg.QueuePath)
				return watcher.Run(gctx, app.Worker.Wake)
			})
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}

func metricsMux(app *bootstrap.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", app.WorkerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
