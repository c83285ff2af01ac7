package auth

import (
	"sync"

	"github.com/jrsteele09/go-advisor-auth/users"
)

type EventType string

const (
	EventSignedIn       EventType = "signed_in"
	EventSignedOut      EventType = "signed_out"
	EventTokenRefreshed EventType = "token_refreshed"
	EventUserUpdated    EventType = "user_updated"
)

// Event is a normalized auth state change. User is a copy of the cached profile and is nil
// for EventSignedOut.
type Event struct {
	Type EventType
	User *users.User
}

type broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func (b *broadcaster) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(Event))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

func (b *broadcaster) publish(eventType EventType, user *users.User) {
	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(Event{Type: eventType, User: user.Clone()})
	}
}
