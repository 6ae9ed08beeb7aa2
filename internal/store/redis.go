package store

// redis.go implements Store on top of a shared Redis instance.  Keys
// are namespaced under a per-session prefix and carry the session TTL
// so abandoned sessions evaporate on their own.  Every write refreshes
// the TTL, which keeps an active session alive indefinitely.

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a session store backed by a Redis hashless key namespace.
// SessionID must be stable for the lifetime of the interactive
// session; it becomes part of every key.
type Redis struct {
	client    *redis.Client
	sessionID string
	ttl       time.Duration
}

// NewRedis wraps an existing client.  ttl bounds how long a dormant
// session's state survives; zero disables expiry.
func NewRedis(client *redis.Client, sessionID string, ttl time.Duration) *Redis {
	return &Redis{client: client, sessionID: sessionID, ttl: ttl}
}

func (r *Redis) key(k string) string {
	return "session:" + r.sessionID + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key(key), value, r.ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Clear removes every key under the session prefix.  SCAN is used
// rather than KEYS so a busy shared instance is not blocked.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
