// Package identitystore implements a bounded-retry KV client mapping
// (app_id, ifa) -> entity_id, backed by
// github.com/go-redis/redis/v8.
package identitystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sdkgateway/ingress/internal/metrics"
)

// NilIFA is the sentinel the SDK sends when a user has opted out of
// tracking.
const NilIFA = "00000000-0000-0000-0000-000000000000"

// maxAttempts and backoffSchedule bound every retry loop in this
// package: up to 5 attempts, with additive 1,2,3,4,5 ms back-off.
const maxAttempts = 5

var backoffSchedule = []time.Duration{
	1 * time.Millisecond,
	2 * time.Millisecond,
	3 * time.Millisecond,
	4 * time.Millisecond,
	5 * time.Millisecond,
}

// ErrExhausted is returned by Put when every retry attempt failed.
// The HTTP front-end aborts the process on this error, since a store
// rejecting idempotent writes risks duplicate identities downstream.
var ErrExhausted = errors.New("identitystore: retry budget exhausted")

// redisClient is the narrow slice of *redis.Client this package needs.
// Declaring it as an interface lets tests substitute a fake without
// standing up a real redis instance or miniredis container.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Client is the bounded-retry KV wrapper.
type Client struct {
	rdb redisClient
	log *zap.Logger
}

// New wraps an already-connected redis.Client. The connection pool is
// shared with any other caller; this type adds only retry/back-off
// semantics around it.
func New(rdb *redis.Client, log *zap.Logger) *Client {
	return &Client{rdb: rdb, log: log}
}

// NewWithClient wraps any redisClient implementation; used by tests.
func NewWithClient(rdb redisClient, log *zap.Logger) *Client {
	return &Client{rdb: rdb, log: log}
}

func key(appID, ifa string) string {
	return fmt.Sprintf("identity:%s:%s", appID, ifa)
}

// Get looks up the entity-id for (appID, ifa). It returns ("", nil)
// immediately — without touching the store — when tracking is
// disabled or ifa is empty/the nil UUID. On retry exhaustion it logs a
// warning and returns ("", nil) rather than failing the request.
func (c *Client) Get(ctx context.Context, appID, ifa string, trackingEnabled bool) (string, error) {
	if !trackingEnabled || ifa == "" || ifa == NilIFA {
		return "", nil
	}

	k := key(appID, ifa)
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		entityID, err := c.rdb.Get(ctx, k).Result()
		switch {
		case err == nil:
			return entityID, nil
		case errors.Is(err, redis.Nil):
			return "", nil
		default:
			lastErr = err
			metrics.IdentityStoreRetries.WithLabelValues("get").Inc()
			c.sleep(attempt)
		}
	}

	if c.log != nil {
		c.log.Warn("identitystore: get retry budget exhausted", zap.String("app_id", appID), zap.Error(lastErr))
	}
	return "", nil
}

// Put idempotently stores entityID for (appID, ifa). It is a no-op
// when tracking is disabled or ifa is empty/the nil UUID. On retry
// exhaustion it returns ErrExhausted, which callers treat as fatal.
func (c *Client) Put(ctx context.Context, appID, entityID, ifa string, trackingEnabled bool) error {
	if !trackingEnabled || ifa == "" || ifa == NilIFA {
		return nil
	}

	k := key(appID, ifa)
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.rdb.Set(ctx, k, entityID, 0).Err(); err != nil {
			lastErr = err
			metrics.IdentityStoreRetries.WithLabelValues("put").Inc()
			c.sleep(attempt)
			continue
		}
		return nil
	}

	if c.log != nil {
		c.log.Error("identitystore: put retry budget exhausted", zap.String("app_id", appID), zap.Error(lastErr))
	}
	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

func (c *Client) sleep(attempt int) {
	time.Sleep(backoffSchedule[attempt])
}

// IsNilUUID reports whether s is the all-zero UUID, independent of
// redis-store round trips (used by the resolver's own boundary check).
func IsNilUUID(s string) bool {
	return s == NilIFA || s == uuid.Nil.String()
}
