package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"attendx/internal/attendance"
	"attendx/internal/config"
	"attendx/internal/logging"
	"attendx/internal/queue"
	"attendx/internal/store"
)

// Worker drains audit events from the Redis queue into the Postgres ledger.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.QueueBackend != "redis" {
		logger.Fatal("worker needs QUEUE_BACKEND=redis; the in-memory queue is drained by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("migrate audit ledger", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr, "", 0)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet; consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	logger.Info("worker started", zap.String("queue", queue.DefaultKey))
	if err := attendance.ConsumeAudit(ctx, q, repo, logger); err != nil {
		logger.Fatal("consume", zap.Error(err))
	}
	logger.Info("worker stopped")
}
