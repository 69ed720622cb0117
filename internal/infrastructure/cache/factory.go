package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/academy/billing/internal/domain/billing"
	"github.com/academy/billing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewSubscriptionLocker returns a RedisLocker when Redis is configured
// and reachable, and an in-memory locker otherwise. The returned close
// func is always non-nil.
func NewSubscriptionLocker(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (billing.SubscriptionLocker, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		logger.Info("Redis not configured, using in-memory subscription locks")
		return NewInMemoryLocker(), func() error { return nil }, nil
	}
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	logger.Info("Using Redis subscription locks", zap.String("addr", cfg.Addr()))
	return NewRedisLocker(client, cfg.LockTTL, logger), client.Close, nil
}
