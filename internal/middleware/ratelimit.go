// Package middleware provides HTTP middleware for recall.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/recall/internal/metrics"
)

const (
	// maxBuckets caps tracked clients so a spray of source addresses cannot
	// grow the table without bound.
	maxBuckets = 100_000

	bucketIdleTTL   = 10 * time.Minute
	cleanupInterval = 5 * time.Minute
)

// RateLimiter is a per-client-IP token bucket. Tokens refill continuously at
// rate per second up to burst.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter creates a RateLimiter with the given requests per second and
// burst size. Idle buckets are evicted in the background until ctx is done.
func NewRateLimiter(ctx context.Context, ratePerSec, burst int) *RateLimiter {
	rl := newRateLimiter(ratePerSec, burst, time.Now)
	go rl.cleanupLoop(ctx)

	return rl
}

func newRateLimiter(ratePerSec, burst int, now func() time.Time) *RateLimiter {
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(ratePerSec),
		burst:   float64(burst),
		now:     now,
	}
}

// take spends one token for client. When none is left it returns false and
// the wait until the next token.
func (rl *RateLimiter) take(client string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	b, ok := rl.buckets[client]
	if !ok {
		if len(rl.buckets) >= maxBuckets {
			return false, time.Second
		}

		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[client] = b
	}

	b.tokens = math.Min(rl.burst, b.tokens+now.Sub(b.seen).Seconds()*rl.rate)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--

		return true, 0
	}

	if rl.rate <= 0 {
		return false, bucketIdleTTL
	}

	return false, time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
}

func (rl *RateLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-bucketIdleTTL)
	for client, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, client)
		}
	}
}

// Handler returns Gin middleware that applies rate limiting per client IP.
// Rejections carry a Retry-After header in whole seconds.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP ignores forwarding headers: the router trusts no proxies.
		allowed, wait := rl.take(c.ClientIP())
		if !allowed {
			secs := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", strconv.Itoa(max(secs, 1)))
			metrics.ErrorsTotal.WithLabelValues("rate_limited").Inc()
			respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")

			return
		}

		c.Next()
	}
}
