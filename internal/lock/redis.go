package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "docgloss:lock:"

// Redis is a Locker shared across instances through SETNX with a TTL. The
// owner id keeps one instance from releasing another's lock.
type Redis struct {
	client  *redis.Client
	ownerID string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, ownerID: newOwnerID()}
}

// Open connects to the server named by a redis:// URL and checks it responds.
func Open(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	r := NewRedis(redis.NewClient(opts))
	if err := r.Ping(ctx); err != nil {
		r.client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return r, nil
}

// hostname:uuid
func newOwnerID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return hostname + ":" + uuid.NewString()
}

func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+name, r.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (r *Redis) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, r.client, []string{keyPrefix + name}, r.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (r *Redis) Extend(ctx context.Context, name string, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, r.client, []string{keyPrefix + name}, r.ownerID, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n == 0 {
		return errNotHeld(name)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) OwnerID() string { return r.ownerID }

func (r *Redis) Close() error { return r.client.Close() }

var ErrNotHeld = errors.New("lock not held by this owner")

func errNotHeld(name string) error {
	return fmt.Errorf("%s: %w", name, ErrNotHeld)
}
