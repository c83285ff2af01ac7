package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

// Redis is a Store shared by every process using the same prefix, so several clients of
// one user observe the same persisted state.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type RedisOption func(*Redis)

// WithTTL expires keys ttl after their last write. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

func NewRedis(client redis.UniversalClient, prefix string, options ...RedisOption) *Redis {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	r := &Redis{client: client, prefix: prefix}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// ConnectRedis parses url, applies pool settings and checks the server is reachable.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "[ConnectRedis] parse url")
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[ConnectRedis] ping")
	}
	return client, nil
}

func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "[Redis.Keys]")
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "[Redis.Get]")
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(), "[Redis.Set]")
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, r.prefix+key).Err(), "[Redis.Remove]")
}

// Clear removes every key under the prefix.
func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.Keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	return errors.Wrap(r.client.Del(ctx, full...).Err(), "[Redis.Clear]")
}
