// Package ratelimit throttles authentication attempts per identifier.
//
// State is process local and is lost on restart. It exists to slow down repeated attempts
// in the client; the identity provider enforces its own limits.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
)

type record struct {
	count       int
	windowStart time.Time
}

// Limiter allows at most maxAttempts attempts per identifier within a fixed window that
// starts at the first attempt. Denied attempts are not counted and never move the window.
type Limiter struct {
	mu          sync.Mutex
	records     map[string]*record
	maxAttempts int
	window      time.Duration
	nowTime     func() time.Time
}

type Option func(*Limiter)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(l *Limiter) {
		l.nowTime = nowFunc
	}
}

func New(maxAttempts int, window time.Duration, options ...Option) *Limiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		records:     make(map[string]*record),
		maxAttempts: maxAttempts,
		window:      window,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Allow reports whether another attempt is permitted for identifier and, if so, counts it.
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	r := l.current(identifier, now)
	if r == nil {
		l.records[identifier] = &record{count: 1, windowStart: now}
		return true
	}
	if r.count >= l.maxAttempts {
		return false
	}
	r.count++
	return true
}

// ResetTime returns when the current window for identifier ends. Identifiers without an
// active window are already allowed, so the current time is returned.
func (l *Limiter) ResetTime(identifier string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	r := l.current(identifier, now)
	if r == nil {
		return now
	}
	return r.windowStart.Add(l.window)
}

// Remaining is the time left until identifier's window resets.
func (l *Limiter) Remaining(identifier string) time.Duration {
	remaining := l.ResetTime(identifier).Sub(l.nowTime())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingMinutes rounds Remaining up to whole minutes, never below one.
func (l *Limiter) RemainingMinutes(identifier string) int {
	minutes := int(math.Ceil(l.Remaining(identifier).Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Attempts returns the number of counted attempts in identifier's current window.
func (l *Limiter) Attempts(identifier string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r := l.current(identifier, l.nowTime()); r != nil {
		return r.count
	}
	return 0
}

func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, identifier)
}

// Sweep drops records whose window has elapsed.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	for id, r := range l.records {
		if !now.Before(r.windowStart.Add(l.window)) {
			delete(l.records, id)
		}
	}
}

// current returns the live record for identifier, discarding an expired one. Caller holds mu.
func (l *Limiter) current(identifier string, now time.Time) *record {
	r, ok := l.records[identifier]
	if !ok {
		return nil
	}
	if !now.Before(r.windowStart.Add(l.window)) {
		delete(l.records, identifier)
		return nil
	}
	return r
}
