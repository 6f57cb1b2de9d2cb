package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/standards-desk/backend/internal/config"
	"github.com/DeafMist/standards-desk/backend/internal/elasticsearch"
	"github.com/DeafMist/standards-desk/backend/internal/logger"
)

const (
	connectAttempts   = 10
	connectBaseDelay  = 2 * time.Second
	connectMaxDelay   = 30 * time.Second
	retentionDeadline = 2 * time.Minute
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	esClient, err := connect(ctx, log, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("connect elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("retention job running",
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
		slog.String("index", cfg.ElasticsearchIndex),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runOnce(ctx, log, esClient, cfg)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, esClient, cfg)
		}
	}
}

// connect builds the client and waits for the cluster to answer a ping,
// backing off between attempts.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Retention) (*elasticsearch.Client, error) {
	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return nil, err
	}

	delay := connectBaseDelay
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := esClient.Ping(pingCtx)
		cancel()
		if err == nil {
			log.Info("connected to elasticsearch", slog.Int("attempt", attempt))
			return esClient, nil
		}
		if attempt == connectAttempts {
			return nil, fmt.Errorf("elasticsearch unreachable after %d attempts: %w", attempt, err)
		}

		log.Warn("elasticsearch ping failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", connectAttempts),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = min(delay*2, connectMaxDelay)
	}
}

type pruner interface {
	DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// runOnce deletes collections fetched more than MaxAge ago. Failures are
// logged and retried on the next tick.
func runOnce(ctx context.Context, log *slog.Logger, store pruner, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, retentionDeadline)
	defer cancel()

	deleted, err := store.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("stale standards collections removed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no stale collections found")
	}
	return deleted
}
