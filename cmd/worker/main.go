package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/brand-soul/internal/bootstrap"
	"github.com/kirillkom/brand-soul/internal/config"
	"github.com/kirillkom/brand-soul/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("brand-soul-worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "worker", logger)
	if err != nil {
		logger.Error("bootstrap error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.WorkerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		err := app.Notifier.SubscribeEnqueued(ctx, func(jobID string) {
			logger.Debug("job enqueued notification", slog.String("job_id", jobID))
			app.Worker.Wake()
		})
		if err != nil && ctx.Err() == nil {
			// Polling still picks jobs up without wake-ups.
			logger.Warn("job notification subscription stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("worker subscribed", slog.String("subject", cfg.NATSSubject))
	if err := app.Worker.Run(ctx); err != nil {
		logger.Error("worker stopped with error", slog.String("error", err.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
