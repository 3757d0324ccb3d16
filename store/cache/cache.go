// Package cache wraps the Redis client used as a distributed job lock for
// the message-translation job variant.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/doujins-org/polyglotkit/config"
	"github.com/doujins-org/polyglotkit/errs"
)

// Client wraps a pooled Redis client.
type Client struct {
	rdb *redis.Client
}

// New builds a pooled client from cfg.
func New(cfg config.Redis) *Client {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	minIdle := 1
	if maxConns > 10 {
		minIdle = maxConns / 10
	}
	return &Client{rdb: redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username:        cfg.Username,
		Password:        cfg.Password,
		PoolSize:        maxConns,
		MinIdleConns:    minIdle,
		ConnMaxIdleTime: 10 * time.Minute,
	})}
}

func (c *Client) Close() error { return c.rdb.Close() }

// MessageTranslatingKey builds the MT:{id}:{lang}:{version} lock key.
func MessageTranslatingKey(id, lang639_3 string, version int) string {
	return fmt.Sprintf("MT:%s:%s:%d", id, lang639_3, version)
}

// DefaultTTL is the lock lifetime for a message-translation job.
const DefaultTTL = 10 * time.Minute

// NewData atomically creates key with value if absent, acting as the job
// lock. It reports whether the lock was acquired.
func (c *Client) NewData(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, DefaultTTL).Result()
	if err != nil {
		return false, errs.Wrap(errs.Upstream, "cache: setnx", err)
	}
	return ok, nil
}

// UpdateData overwrites an existing key's value without touching its TTL,
// failing if the key does not already exist.
func (c *Client) UpdateData(ctx context.Context, key string, value []byte) error {
	ok, err := c.rdb.SetXX(ctx, key, value, redis.KeepTTL).Result()
	if err != nil {
		return errs.Wrap(errs.Upstream, "cache: setxx", err)
	}
	if !ok {
		return errs.New(errs.NotFound, fmt.Sprintf("cache key %q does not exist", key))
	}
	return nil
}

// GetData reads a key, erroring if it does not exist.
func (c *Client) GetData(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, errs.New(errs.NotFound, fmt.Sprintf("cache key %q does not exist", key))
	}
	if err != nil {
		return nil, errs.Wrap(errs.Upstream, "cache: get", err)
	}
	return b, nil
}
