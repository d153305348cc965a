package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/warp/scheme-engine/frame"
)

const (
	lockTTL     = 2 * time.Minute
	lockBackoff = 100 * time.Millisecond
)

// RedisTier shares frame snapshots across processes. A nil *RedisTier is a
// valid tier that always misses.
type RedisTier struct {
	client *redis.Client
	locker *redislock.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTier returns nil when client is nil.
func NewRedisTier(client *redis.Client, ttl time.Duration) *RedisTier {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTier{
		client: client,
		locker: redislock.New(client),
		ttl:    ttl,
		prefix: "scheme-engine:frame:",
	}
}

func (r *RedisTier) key(k Key) string { return r.prefix + k.String() }

// Get reads a snapshot.
func (r *RedisTier) Get(ctx context.Context, k Key) (*frame.Frame, bool, error) {
	if r == nil {
		return nil, false, nil
	}
	b, err := r.client.Get(ctx, r.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	fr := new(frame.Frame)
	if err := json.Unmarshal(b, fr); err != nil {
		return nil, false, err
	}
	return fr, true, nil
}

// Put writes a snapshot with the tier's TTL.
func (r *RedisTier) Put(ctx context.Context, k Key, fr *frame.Frame) error {
	if r == nil {
		return nil
	}
	b, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(k), b, r.ttl).Err()
}

// Lock obtains the load lock for k, waiting up to the lock TTL. The returned
// func releases it.
func (r *RedisTier) Lock(ctx context.Context, k Key) (func(), error) {
	if r == nil {
		return func() {}, nil
	}
	lock, err := r.locker.Obtain(ctx, r.key(k)+":lock", lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(lockBackoff), int(lockTTL/lockBackoff)),
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

// Ping checks the connection.
func (r *RedisTier) Ping(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.client.Ping(ctx).Err()
}
