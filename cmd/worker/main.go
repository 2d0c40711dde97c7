package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vdstech/sacom/internal/app"
	"github.com/vdstech/sacom/internal/observability"
	"github.com/vdstech/sacom/internal/platform/db"
	"github.com/vdstech/sacom/internal/sessions"
	"github.com/vdstech/sacom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	sessionRepo := sessions.NewRepository(pool)
	sessionManager := sessions.NewManager(sessionRepo, nil, logger)
	purgeJob := jobs.NewSessionsPurgeJob(sessionManager, metrics, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSessionsPurge, Handler: purgeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 3 * * *", Task: jobs.NewSessionsPurgeTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	// Kick off one sweep at startup so expired rows accumulated while the
	// worker was down do not wait for the next cron slot.
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("init queue client", slog.Any("error", err))
	} else {
		if _, err := client.EnqueueSessionsPurge(ctx); err != nil {
			logger.Warn("enqueue startup purge", slog.Any("error", err))
		}
		if err := client.Close(); err != nil {
			logger.Warn("close queue client", slog.Any("error", err))
		}
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
