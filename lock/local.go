package lock

import (
	"context"
	"sync"
	"time"
)

var _ Locker = (*Local)(nil)

// Local is an in process Locker.
type Local struct {
	mu      sync.Mutex
	leases  map[string]lease
	nextID  uint64
	nowTime func() time.Time
}

type lease struct {
	id        uint64
	expiresAt time.Time
}

type LocalOption func(*Local)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) LocalOption {
	return func(l *Local) {
		l.nowTime = nowFunc
	}
}

func NewLocal(options ...LocalOption) *Local {
	l := &Local{leases: make(map[string]lease), nowTime: time.Now}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	if held, ok := l.leases[key]; ok && now.Before(held.expiresAt) {
		return func() {}, false, nil
	}
	l.nextID++
	id := l.nextID
	l.leases[key] = lease{id: id, expiresAt: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if held, ok := l.leases[key]; ok && held.id == id {
				delete(l.leases, key)
			}
		})
	}, true, nil
}
