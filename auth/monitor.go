package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-advisor-auth/lock"
)

const (
	refreshLockPrefix = "refresh:"
	refreshLockTTL    = 30 * time.Second
)

// Monitor refreshes the cached session shortly before its access token expires. It is the
// only timer in the auth layer.
type Monitor struct {
	service *Service
	locker  lock.Locker

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newMonitor(service *Service, locker lock.Locker) *Monitor {
	return &Monitor{service: service, locker: locker}
}

// Start runs Tick every check interval until Stop. Starting a running monitor does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.service.cfg.CheckInterval, m.done)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}

func (m *Monitor) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.service.logger.Warn().Err(err).Msg("scheduled session refresh failed")
			}
		}
	}
}

// Tick checks the cached session once. When it expires within the refresh threshold the
// client holding the refresh lock refreshes it; the others pick up the session the lock
// holder persists. refreshed reports whether this call refreshed.
func (m *Monitor) Tick(ctx context.Context) (refreshed bool, err error) {
	session := m.due()
	if session == nil {
		return false, nil
	}

	release, ok, err := m.locker.TryLock(ctx, refreshLockPrefix+session.User.ID, refreshLockTTL)
	if err != nil {
		m.service.logger.Warn().Err(err).Msg("refresh lock unavailable, refreshing without it")
		release, ok = func() {}, true
	}
	if !ok {
		m.service.syncPersisted(ctx)
		return false, nil
	}
	defer release()

	// The previous lock holder may already have refreshed.
	m.service.syncPersisted(ctx)
	if m.due() == nil {
		return false, nil
	}
	if _, err := m.service.RefreshSession(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// due returns the cached session when it needs refreshing and nil otherwise.
func (m *Monitor) due() *Session {
	session := m.service.CurrentSession()
	if session == nil || !session.NeedsRefresh(m.service.nowTime(), m.service.cfg.RefreshThreshold) {
		return nil
	}
	return session
}
