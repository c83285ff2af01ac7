// Package lock provides short lived exclusive leases. The session monitor takes one before
// refreshing so that only one process sharing a session refreshes it at a time.
package lock

import (
	"context"
	"time"
)

type Locker interface {
	// TryLock acquires key for ttl without waiting. ok is false when another holder has it.
	// release is safe to call more than once and never frees a lease taken over by someone else.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
