package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-advisor-auth/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, prefix string, options ...storage.RedisOption) (*storage.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedis(client, prefix, options...), mr
}

func TestStores(t *testing.T) {
	redisStore, _ := newRedisStore(t, "tab")
	stores := map[string]storage.Store{
		"memory": storage.NewMemory(),
		"redis":  redisStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, store.Set(ctx, "theme", "dark"))
			require.NoError(t, store.Set(ctx, "language", "ar"))
			require.NoError(t, store.Set(ctx, "draft", "{}"))
			require.NoError(t, store.Set(ctx, "auth.session", "token"))

			v, err := store.Get(ctx, "theme")
			require.NoError(t, err)
			require.Equal(t, "dark", v)

			t.Run("clear except allow list", func(t *testing.T) {
				require.NoError(t, storage.ClearExcept(ctx, store, "theme", "language"))
				keys, err := store.Keys(ctx)
				require.NoError(t, err)
				require.Equal(t, []string{"language", "theme"}, keys)
			})

			t.Run("clear", func(t *testing.T) {
				require.NoError(t, store.Clear(ctx))
				keys, err := store.Keys(ctx)
				require.NoError(t, err)
				require.Empty(t, keys)
			})
		})
	}
}

func TestRedisPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	local := storage.NewRedis(client, "local")
	session := storage.NewRedis(client, "session:")
	require.NoError(t, local.Set(ctx, "theme", "dark"))
	require.NoError(t, session.Set(ctx, "pkce", "verifier"))

	require.NoError(t, session.Clear(ctx))
	v, err := local.Get(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "dark", v)
	require.True(t, mr.Exists("local:theme"))
}

func TestRedisTTL(t *testing.T) {
	store, mr := newRedisStore(t, "tab", storage.WithTTL(time.Hour))
	require.NoError(t, store.Set(context.Background(), "auth.session", "token"))

	mr.FastForward(2 * time.Hour)
	_, err := store.Get(context.Background(), "auth.session")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
