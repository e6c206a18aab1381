// internal/common/database/redis.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"renter-wizard/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client
type RedisClient struct {
	Client *redis.Client
}

func NewRedis(cfg config.RedisConfig) *RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	return &RedisClient{Client: rdb}
}

// NewRedisFromClient wraps an existing client, such as one pointed at
// miniredis.
func NewRedisFromClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{Client: rdb}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// GetBytes returns the value at key. A missing key yields redis.Nil.
func (c *RedisClient) GetBytes(ctx context.Context, key string) ([]byte, error) {
	return c.Client.Get(ctx, key).Bytes()
}

func (c *RedisClient) GetString(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// SetIfUnchanged writes values only while guardKey still holds expected. A
// missing guard key reads as "". It reports false without writing when the
// guard changed, including a change that lands between the check and EXEC.
func (c *RedisClient) SetIfUnchanged(ctx context.Context, guardKey, expected string, values map[string]interface{}, expiration time.Duration) (bool, error) {
	err := c.Client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, guardKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != expected {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for k, v := range values {
				pipe.Set(ctx, k, v, expiration)
			}
			return nil
		})
		return err
	}, guardKey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IncrAndDel bumps counterKey and deletes keys in one transaction. The
// counter keeps counterTTL.
func (c *RedisClient) IncrAndDel(ctx context.Context, counterKey string, counterTTL time.Duration, keys ...string) error {
	_, err := c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, counterKey)
		pipe.Expire(ctx, counterKey, counterTTL)
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	return err
}
