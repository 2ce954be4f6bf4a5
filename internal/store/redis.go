// Package store owns the key-value backend connection and key layout shared by
// the chat services.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/config"
)

// NewRedisClient builds the pooled backend client. The caller owns Close.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})
}

// Ping verifies the backend is reachable.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
