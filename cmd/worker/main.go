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

	"github.com/kirillkom/legal-assistant/internal/bootstrap"
	"github.com/kirillkom/legal-assistant/internal/config"
	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/observability/logging"
	"github.com/kirillkom/legal-assistant/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSTraceSubject, "queue_group", cfg.NATSQueueGroup)
	err = worker.Subscriber.SubscribeTraces(ctx, func(handlerCtx context.Context, event domain.TraceEvent) error {
		saveCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		if !event.CreatedAt.IsZero() {
			workerMetrics.ObserveTraceLag(time.Since(event.CreatedAt))
		}
		start := time.Now()
		workerMetrics.StartTrace()
		err := worker.RecordUC.Record(saveCtx, event)
		workerMetrics.FinishTrace(time.Since(start), err)
		if err == nil {
			slog.Info("trace_recorded", "trace_id", event.ID, "status", event.Status)
		}
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
