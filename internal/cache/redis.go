package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// RedisHashKey is the hash holding every threat intel entry
const RedisHashKey = "riskflow:ti_cache"

// RedisStore shares the cache between scanner hosts through a Redis hash
type RedisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore connects to addr and verifies the server answers
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 3 * time.Second,
		MaxRetries:  1,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis %s", addr)
	}

	return &RedisStore{rdb: rdb, key: RedisHashKey}, nil
}

// Get implements Store. Redis errors are reported as misses.
func (r *RedisStore) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	v, err := r.rdb.HGet(ctx, r.key, key).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(v), true
}

// Set implements Store
func (r *RedisStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := r.rdb.HSet(ctx, r.key, key, []byte(value)).Err(); err != nil {
		return errors.Wrapf(err, "store %s", key)
	}
	return nil
}

// Flush is a no-op, every Set is already durable on the server
func (r *RedisStore) Flush(context.Context) error {
	return nil
}

// Close releases the connection pool
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
