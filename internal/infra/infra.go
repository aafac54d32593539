// Package infra provides the shared plumbing used by the listing client and
// the scheduler: a TTL cache for search pages, a token-bucket pacer between
// requests, and a fixed-window request quota.
package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// --- TTL cache ---

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe in-memory cache with a default TTL.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache whose entries expire after ttl. A ttl of zero
// disables caching: Set becomes a no-op.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush removes all entries.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}

// Cleanup removes expired entries.
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	now := c.now()
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// --- Pacer ---

// RateLimiter is a token bucket used to space out consecutive requests.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter allows maxTokens requests per refillRate. A non-positive
// refillRate disables pacing.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	if maxTokens < 1 {
		maxTokens = 1
	}
	return &RateLimiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil || rl.refillRate <= 0 {
		return err
	}
	for {
		rl.mu.Lock()
		rl.refill()
		if rl.tokens > 0 {
			rl.tokens--
			rl.mu.Unlock()
			return nil
		}
		wait := rl.refillRate - time.Since(rl.lastRefill)
		rl.mu.Unlock()

		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill must be called with mu held.
func (rl *RateLimiter) refill() {
	elapsed := time.Since(rl.lastRefill)
	if elapsed < rl.refillRate {
		return
	}
	periods := int(elapsed / rl.refillRate)
	rl.tokens = min(rl.tokens+periods, rl.maxTokens)
	rl.lastRefill = rl.lastRefill.Add(time.Duration(periods) * rl.refillRate)
}

// --- Request quota ---

// ErrQuotaExceeded is returned by Quota.Acquire when the window is used up.
var ErrQuotaExceeded = errors.New("request quota exceeded")

// QuotaError reports how long until the quota window resets.
type QuotaError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v: %d requests per window, wait %d seconds",
		ErrQuotaExceeded, e.Limit, int((e.RetryAfter+time.Second-1)/time.Second))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Quota counts requests in a fixed window. Unlike RateLimiter it never
// blocks: once the window's allowance is spent, Acquire fails until reset.
type Quota struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	count   int
	resetAt time.Time
	now     func() time.Time
}

// NewQuota allows limit requests per window. A non-positive limit means unlimited.
func NewQuota(limit int, window time.Duration) *Quota {
	return newQuotaWithClock(limit, window, time.Now)
}

func newQuotaWithClock(limit int, window time.Duration, now func() time.Time) *Quota {
	return &Quota{limit: limit, window: window, now: now, resetAt: now()}
}

// roll starts a new window if the current one has elapsed. Must be called with mu held.
func (q *Quota) roll(now time.Time) {
	if now.Sub(q.resetAt) >= q.window {
		q.count = 0
		q.resetAt = now
	}
}

// Acquire takes one request from the current window.
func (q *Quota) Acquire() error {
	if q.limit <= 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.roll(now)
	if q.count >= q.limit {
		return &QuotaError{Limit: q.limit, RetryAfter: q.window - now.Sub(q.resetAt)}
	}
	q.count++
	return nil
}

// Used returns the requests taken in the current window.
func (q *Quota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.now())
	return q.count
}

// Remaining returns the requests left in the current window, or -1 when unlimited.
func (q *Quota) Remaining() int {
	if q.limit <= 0 {
		return -1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.roll(q.now())
	return max(0, q.limit-q.count)
}

// TimeUntilReset returns how long until the current window ends.
func (q *Quota) TimeUntilReset() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	q.roll(now)
	return max(0, q.window-now.Sub(q.resetAt))
}

// Limit returns the configured allowance per window.
func (q *Quota) Limit() int { return q.limit }
