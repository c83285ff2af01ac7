package provider

import "sync"

type EventType string

const (
	SignedIn       EventType = "SIGNED_IN"
	SignedOut      EventType = "SIGNED_OUT"
	TokenRefreshed EventType = "TOKEN_REFRESHED"
	UserUpdated    EventType = "USER_UPDATED"
)

// AuthEvent is pushed to subscribers when the provider's auth state changes. Session is
// nil for SignedOut.
type AuthEvent struct {
	Type    EventType
	Session *Session
}

// Emitter fans AuthEvents out to registered callbacks. Providers embed it to implement
// OnAuthStateChange.
type Emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(AuthEvent)
}

func (e *Emitter) OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subs == nil {
		e.subs = make(map[int]func(AuthEvent))
	}
	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
		})
	}
}

// Emit calls every subscriber synchronously, outside the emitter lock.
func (e *Emitter) Emit(event AuthEvent) {
	e.mu.RLock()
	subs := make([]func(AuthEvent), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}
