package lock

import (
	"context"
	"sync"
	"time"
)

// InProcess is a single-process stand-in for Locker, backed by a map of
// named sync.Mutex, used by engine and reactor unit tests that don't run
// against Redis.
type InProcess struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewInProcess() *InProcess {
	return &InProcess{locks: make(map[string]*sync.Mutex)}
}

func (l *InProcess) mutexFor(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

// WithLock matches the signature of Locker.WithLock so InProcess can stand
// in wherever engine.Locker is required; lease and maxAttempts are unused
// since an in-process mutex never expires or loses a race to a crash.
func (l *InProcess) WithLock(ctx context.Context, name string, lease time.Duration, maxAttempts int, fn func(ctx context.Context) error) error {
	m := l.mutexFor(name)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
