// Package lock implements the distributed mutual-exclusion primitive the
// daily-limit critical section needs: atomic set-if-absent acquire with a
// lease, nonce-tagged compare-and-delete release, and an execute-with-lock
// helper that always releases on any exit path. Acquire is a single
// SET NX with an expiry; release is built the way rate_limiter.go builds
// its sliding window — a single embedded Lua script executed atomically
// via Eval, so the compare-and-delete can never race with another holder.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/selcukyavuz/moneybee/internal/merr"
)

// releaseScript deletes key only if its value still matches the nonce the
// caller acquired it with, preventing a holder from releasing a lease that
// has since expired and been re-acquired by someone else.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
else
    return 0
end
`

// Locker is a distributed advisory mutex over named keys.
type Locker struct {
	rdb    redis.UniversalClient
	prefix string
}

func New(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb, prefix: "moneybee:lock:"}
}

// Handle is the proof of ownership returned by Acquire; Release needs it.
type Handle struct {
	key   string
	nonce string
}

// Acquire attempts a single set-if-absent with the given lease. It does not
// retry; callers wanting retry-with-backoff should use AcquireWithRetry.
func (l *Locker) Acquire(ctx context.Context, name string, lease time.Duration) (*Handle, bool, error) {
	nonce, err := randomNonce()
	if err != nil {
		return nil, false, fmt.Errorf("lock: generate nonce: %w", err)
	}

	key := l.prefix + name
	ok, err := l.rdb.SetNX(ctx, key, nonce, lease).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock: acquire %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Handle{key: key, nonce: nonce}, true, nil
}

// AcquireWithRetry retries Acquire with capped exponential backoff up to
// maxAttempts times, surfacing Unavailable("lock busy") on exhaustion.
func (l *Locker) AcquireWithRetry(ctx context.Context, name string, lease time.Duration, maxAttempts int) (*Handle, error) {
	backoff := 25 * time.Millisecond
	const cap_ = 500 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		h, ok, err := l.Acquire(ctx, name, lease)
		if err != nil {
			return nil, merr.NewUnavailable("lock: %v", err)
		}
		if ok {
			return h, nil
		}

		select {
		case <-ctx.Done():
			return nil, merr.NewUnavailable("lock: context cancelled waiting for %s", name)
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > cap_ {
			backoff = cap_
		}
	}
	return nil, merr.NewUnavailable("lock busy")
}

// Release compares-and-deletes the lock, a no-op if the lease already
// expired and was taken by someone else.
func (l *Locker) Release(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	_, err := l.rdb.Eval(ctx, releaseScript, []string{h.key}, h.nonce).Result()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", h.key, err)
	}
	return nil
}

// WithLock acquires the named lock, runs fn, and always releases — on
// success, on error, and on panic — before returning.
func (l *Locker) WithLock(ctx context.Context, name string, lease time.Duration, maxAttempts int, fn func(ctx context.Context) error) error {
	h, err := l.AcquireWithRetry(ctx, name, lease, maxAttempts)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, h)
	}()

	return fn(ctx)
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
