package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucket is a single leaky/token bucket scoped to one key (one user, or the
// shared global ceiling). The refill-then-spend shape is the standard
// token-bucket algorithm, restated here in terms of a capacity and a
// per-second refill rate rather than markcallen's rate/burst naming.
type bucket struct {
	refillPerSecond float64
	capacity        float64
	available       float64
	refilledAt      time.Time
	touchedAt       time.Time
}

func newBucket(refillPerSecond float64, capacity int, now time.Time) *bucket {
	return &bucket{
		refillPerSecond: refillPerSecond,
		capacity:        float64(capacity),
		available:       float64(capacity),
		refilledAt:      now,
		touchedAt:       now,
	}
}

// refill tops up available tokens for the time elapsed since the last call,
// capped at capacity.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.refilledAt).Seconds()
	if elapsed <= 0 {
		return
	}
	b.available = min(b.capacity, b.available+elapsed*b.refillPerSecond)
	b.refilledAt = now
}

// take spends one token if available, reporting whether the caller may
// proceed.
func (b *bucket) take(now time.Time) bool {
	b.refill(now)
	b.touchedAt = now
	if b.available < 1 {
		return false
	}
	b.available--
	return true
}

// Limiter gates requests per user with an overall ceiling (spec §4.5).
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// MemoryLimiter is an in-process per-user bucket plus a shared
// global-ceiling bucket (spec §4.5). Grounded on markcallen's
// internal/server/ratelimit.go keyedLimiter, restructured around bucket's
// capacity/refill naming above and a locally-owned global bucket instead of
// a second keyedLimiter instance.
type MemoryLimiter struct {
	mu             sync.Mutex
	perUserRefill  float64
	perUserBurst   int
	perUser        map[string]*bucket
	global         *bucket
	idleEvictAfter time.Duration
}

// NewMemoryLimiter builds a limiter with perMinute requests/user/minute and
// a globalCeiling requests/minute shared ceiling.
func NewMemoryLimiter(perMinute, globalCeiling int) *MemoryLimiter {
	now := time.Now()
	return &MemoryLimiter{
		perUserRefill:  float64(perMinute) / 60.0,
		perUserBurst:   perMinute,
		perUser:        make(map[string]*bucket),
		global:         newBucket(float64(globalCeiling)/60.0, globalCeiling, now),
		idleEvictAfter: time.Hour,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, userID string) (bool, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.global.take(now) {
		return false, nil
	}

	b, ok := l.perUser[userID]
	if !ok {
		b = newBucket(l.perUserRefill, l.perUserBurst, now)
		l.perUser[userID] = b
	}
	allowed := b.take(now)
	l.evictIdleLocked(now)
	return allowed, nil
}

// evictIdleLocked drops per-user buckets that have not been touched
// recently, so a churn of one-off callers doesn't grow the map forever.
func (l *MemoryLimiter) evictIdleLocked(now time.Time) {
	for key, b := range l.perUser {
		if now.Sub(b.touchedAt) > l.idleEvictAfter {
			delete(l.perUser, key)
		}
	}
}

// RedisLimiter implements the same per-user + global-ceiling policy with a
// shared Redis backend, so multiple pyhostd instances agree on rate state.
type RedisLimiter struct {
	client        *redis.Client
	perMinute     int
	globalCeiling int
}

// NewRedisLimiter builds a limiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client, perMinute, globalCeiling int) *RedisLimiter {
	return &RedisLimiter{client: client, perMinute: perMinute, globalCeiling: globalCeiling}
}

// Allow implements a fixed-window counter per current UTC minute, which is
// simpler than a distributed token bucket and adequate for the coarse
// per-minute policy specified (spec §4.5).
func (l *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	window := time.Now().UTC().Format("200601021504")

	globalKey := fmt.Sprintf("pyhostd:rate:global:%s", window)
	globalCount, err := l.incrWithExpiry(ctx, globalKey)
	if err != nil {
		return false, err
	}
	if globalCount > int64(l.globalCeiling) {
		return false, nil
	}

	userKey := fmt.Sprintf("pyhostd:rate:user:%s:%s", userID, window)
	userCount, err := l.incrWithExpiry(ctx, userKey)
	if err != nil {
		return false, err
	}
	return userCount <= int64(l.perMinute), nil
}

func (l *RedisLimiter) incrWithExpiry(ctx context.Context, key string) (int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
