// Package redisclient provides the Redis-backed availability cache. A CLI
// invocation is short-lived, so an in-process 10 second cache rarely helps;
// a shared Redis entry lets consecutive invocations and co-located clients
// reuse settled results.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

// ResultCache implements availability.Cache on top of Redis using plain
// SET-with-TTL / GET. Values are "1" / "0".
type ResultCache struct {
	client *redis.Client
}

func NewResultCache(client *redis.Client) *ResultCache {
	return &ResultCache{client: client}
}

func (c *ResultCache) Get(ctx context.Context, key string) (bool, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get availability result: %w", err)
	}
	return v == "1", true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, available bool, ttl time.Duration) error {
	v := "0"
	if available {
		v = "1"
	}
	if err := c.client.Set(ctx, key, v, ttl).Err(); err != nil {
		return fmt.Errorf("store availability result: %w", err)
	}
	return nil
}
