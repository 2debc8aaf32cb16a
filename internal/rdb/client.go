// Package rdb provides the Redis connection this backplane's distributed
// lock, circuit breaker, and admission cache all share, following the
// Sentinel-first-fallback-standalone dial pattern used elsewhere in this
// codebase's storage clients.
package rdb

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	MasterName    string
	SentinelAddrs []string

	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a default configuration pointed at addr.
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:         addr,
		PoolSize:     100,
		MinIdleConns: 10,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Client wraps redis.UniversalClient for MoneyBee's lock/breaker/cache use.
type Client struct {
	rdb redis.UniversalClient
}

// NewClient dials Redis, preferring Sentinel when configured, falling back
// to a standalone connection otherwise.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	var r redis.UniversalClient

	if len(cfg.SentinelAddrs) > 0 && cfg.MasterName != "" {
		r = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	} else {
		r = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rdb: failed to connect to redis: %w", err)
	}

	return &Client{rdb: r}, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// Raw exposes the underlying client for packages that build on top of it.
func (c *Client) Raw() redis.UniversalClient { return c.rdb }
