// Package cache holds read-through caches in front of the inventory store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/warp/inventory-engine/inventory"
)

const (
	historyKey        = "inventory:adjustments:history"
	historyVersionKey = historyKey + ":version"
)

var errStaleFill = errors.New("history changed during fill")

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string
}

// RedisHistory caches the adjustment history list in Redis.
// It implements inventory.HistoryCache.
type RedisHistory struct {
	client     *redis.Client
	key        string
	versionKey string
	ttl        time.Duration
}

// NewRedisHistory connects and pings Redis.
func NewRedisHistory(ctx context.Context, opts Options, logger *slog.Logger) (*RedisHistory, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if logger != nil {
		logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	}

	return newRedisHistory(client, opts), nil
}

func newRedisHistory(client *redis.Client, opts Options) *RedisHistory {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisHistory{
		client:     client,
		key:        opts.Prefix + historyKey,
		versionKey: opts.Prefix + historyVersionKey,
		ttl:        ttl,
	}
}

func (c *RedisHistory) GetHistory(ctx context.Context) ([]inventory.AdjustmentRecord, bool, error) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var records []inventory.AdjustmentRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		// A payload from an older shape is as good as a miss.
		return nil, false, nil
	}
	return records, true, nil
}

// HistoryVersion reads the shared invalidation counter; an unset counter is 0.
func (c *RedisHistory) HistoryVersion(ctx context.Context) (int64, error) {
	v, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version: %w", err)
	}
	return v, nil
}

// SetHistory stores records only while the counter still equals version.
// A lost race is not an error: the list is simply not cached.
func (c *RedisHistory) SetHistory(ctx context.Context, version int64, records []inventory.AdjustmentRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, c.versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.key, raw, c.ttl)
			return nil
		})
		return err
	}, c.versionKey)

	switch {
	case err == nil, errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("redis set: %w", err)
	}
}

// InvalidateHistory bumps the counter and drops the list in one transaction.
func (c *RedisHistory) InvalidateHistory(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey)
		pipe.Del(ctx, c.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisHistory) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisHistory) Close() error {
	return c.client.Close()
}
