// Package breaker wraps outbound collaborator calls in a distributed
// circuit breaker backed by Redis, adapted from this codebase's
// storage/redis circuit breaker: same closed/open/half-open state machine
// and sliding-window failure counting, generalized from a single named
// circuit per mesh node to one circuit per collaborator.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config parameterizes one named circuit (one per collaborator).
type Config struct {
	Name             string
	FailureThreshold int64
	SuccessThreshold int64
	Timeout          time.Duration
	FailureWindow    time.Duration
}

func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		FailureWindow:    60 * time.Second,
	}
}

type circuitState struct {
	State           State     `json:"state"`
	Failures        int64     `json:"failures"`
	Successes       int64     `json:"successes"`
	LastFailure     time.Time `json:"last_failure"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Breaker implements a distributed circuit breaker using Redis.
type Breaker struct {
	rdb    redis.UniversalClient
	mu     sync.RWMutex
	prefix string
}

var ErrOpen = errors.New("breaker: circuit is open")

func New(rdb redis.UniversalClient) *Breaker {
	return &Breaker{rdb: rdb, prefix: "moneybee:breaker:"}
}

func (b *Breaker) key(name string) string         { return b.prefix + name }
func (b *Breaker) failuresKey(name string) string { return b.prefix + name + ":failures" }

func (b *Breaker) getState(ctx context.Context, cfg *Config) (*circuitState, error) {
	data, err := b.rdb.Get(ctx, b.key(cfg.Name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &circuitState{State: StateClosed, LastStateChange: time.Now()}, nil
		}
		return nil, fmt.Errorf("breaker: get state: %w", err)
	}

	var state circuitState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("breaker: unmarshal state: %w", err)
	}

	if state.State == StateOpen && time.Since(state.LastStateChange) >= cfg.Timeout {
		state.State = StateHalfOpen
		state.Successes = 0
		state.LastStateChange = time.Now()
		if err := b.saveState(ctx, cfg.Name, &state); err != nil {
			return nil, err
		}
	}

	return &state, nil
}

func (b *Breaker) saveState(ctx context.Context, name string, state *circuitState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("breaker: marshal state: %w", err)
	}
	return b.rdb.Set(ctx, b.key(name), data, 24*time.Hour).Err()
}

func (b *Breaker) allow(ctx context.Context, cfg *Config) error {
	state, err := b.getState(ctx, cfg)
	if err != nil {
		return err
	}
	if state.State == StateOpen {
		return ErrOpen
	}
	return nil
}

func (b *Breaker) recordSuccess(ctx context.Context, cfg *Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := b.getState(ctx, cfg)
	if err != nil {
		return err
	}
	if state.State == StateHalfOpen {
		state.Successes++
		if state.Successes >= cfg.SuccessThreshold {
			state.State = StateClosed
			state.Failures = 0
			state.Successes = 0
			state.LastStateChange = time.Now()
		}
		return b.saveState(ctx, cfg.Name, state)
	}
	return nil
}

func (b *Breaker) recordFailure(ctx context.Context, cfg *Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := b.getState(ctx, cfg)
	if err != nil {
		return err
	}

	now := time.Now()
	state.LastFailure = now
	state.Failures++

	count, err := b.incrementFailureCount(ctx, cfg)
	if err != nil {
		return err
	}

	if state.State == StateHalfOpen {
		state.State = StateOpen
		state.LastStateChange = now
		state.Successes = 0
	} else if state.State == StateClosed && count >= cfg.FailureThreshold {
		state.State = StateOpen
		state.LastStateChange = now
	}

	return b.saveState(ctx, cfg.Name, state)
}

func (b *Breaker) incrementFailureCount(ctx context.Context, cfg *Config) (int64, error) {
	key := b.failuresKey(cfg.Name)
	now := time.Now()
	windowStart := now.Add(-cfg.FailureWindow).UnixMilli()

	pipe := b.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: fmt.Sprintf("%d", now.UnixNano())})
	countCmd := pipe.ZCard(ctx, key)
	pipe.PExpire(ctx, key, cfg.FailureWindow)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("breaker: record failure: %w", err)
	}
	return countCmd.Val(), nil
}

// Reset clears a circuit back to closed.
func (b *Breaker) Reset(ctx context.Context, cfg *Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pipe := b.rdb.Pipeline()
	pipe.Del(ctx, b.key(cfg.Name))
	pipe.Del(ctx, b.failuresKey(cfg.Name))
	_, err := pipe.Exec(ctx)
	return err
}

// Call runs fn only if the circuit is closed or half-open, recording the
// outcome. Retries for transient errors belong to the caller (see
// internal/collaborators); this wraps a single attempt.
func (b *Breaker) Call(ctx context.Context, cfg *Config, fn func(ctx context.Context) error) error {
	if err := b.allow(ctx, cfg); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		if recErr := b.recordFailure(ctx, cfg); recErr != nil {
			return fmt.Errorf("%w (and failed to record breaker failure: %v)", err, recErr)
		}
		return err
	}
	return b.recordSuccess(ctx, cfg)
}
