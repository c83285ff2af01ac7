// Package storage provides the key/value stores the auth layer persists client state in:
// a long lived local store and a per session store.
package storage

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Keys(ctx context.Context) ([]string, error)
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// ClearExcept removes every key of store not listed in keep.
func ClearExcept(ctx context.Context, store Store, keep ...string) error {
	keys, err := store.Keys(ctx)
	if err != nil {
		return errors.Wrap(err, "[ClearExcept] keys")
	}
	preserved := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		preserved[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := preserved[k]; ok {
			continue
		}
		if err := store.Remove(ctx, k); err != nil {
			return errors.Wrapf(err, "[ClearExcept] remove %s", k)
		}
	}
	return nil
}
