// Package cache implements the Admission Filter's TTL key-validation
// cache: hash of the API key maps to a cached boolean, valid entries
// living 5 minutes and invalid ones 1 minute, following the same
// Redis-Set-with-expiry idiom this codebase's circuit breaker persists
// state with.
package cache

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when there is no cached entry for the key.
var ErrMiss = errors.New("cache: miss")

// APIKeyCache is the narrow capability interface the Admission Filter
// depends on, so tests can supply an in-memory double.
type APIKeyCache interface {
	Get(ctx context.Context, apiKey string) (valid bool, err error)
	Set(ctx context.Context, apiKey string, valid bool, validTTL, invalidTTL time.Duration) error
}

// RedisCache is the production implementation.
type RedisCache struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedis(rdb redis.UniversalClient) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "moneybee:apikey:"}
}

func hashKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, apiKey string) (bool, error) {
	v, err := c.rdb.Get(ctx, c.prefix+hashKey(apiKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, ErrMiss
		}
		return false, err
	}
	// Constant-time compare against the single-byte sentinel avoids a
	// timing signature on how the stored flag is read back.
	return subtle.ConstantTimeCompare([]byte(v), []byte("1")) == 1, nil
}

func (c *RedisCache) Set(ctx context.Context, apiKey string, valid bool, validTTL, invalidTTL time.Duration) error {
	ttl := invalidTTL
	val := "0"
	if valid {
		ttl = validTTL
		val = "1"
	}
	return c.rdb.Set(ctx, c.prefix+hashKey(apiKey), val, ttl).Err()
}

// InMemory is a test double with the same TTL semantics, no Redis needed.
type InMemory struct {
	entries map[string]inMemEntry
}

type inMemEntry struct {
	valid   bool
	expires time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]inMemEntry)}
}

func (m *InMemory) Get(ctx context.Context, apiKey string) (bool, error) {
	e, ok := m.entries[hashKey(apiKey)]
	if !ok || time.Now().After(e.expires) {
		return false, ErrMiss
	}
	return e.valid, nil
}

func (m *InMemory) Set(ctx context.Context, apiKey string, valid bool, validTTL, invalidTTL time.Duration) error {
	ttl := invalidTTL
	if valid {
		ttl = validTTL
	}
	m.entries[hashKey(apiKey)] = inMemEntry{valid: valid, expires: time.Now().Add(ttl)}
	return nil
}
