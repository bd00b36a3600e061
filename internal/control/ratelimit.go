package control

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RPS   int // requests per second
	Burst int // burst size
}

type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*tokenBucket
	rps     int
	burst   int
	now     func() time.Time
}

type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(rps, burst int, now time.Time) *tokenBucket {
	if burst < 1 {
		burst = rps
	}
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(rps),
		lastRefill: now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (rl *rateLimiter) allow(key string) bool {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	bucket, ok := rl.clients[key]
	if !ok {
		bucket = newTokenBucket(rl.rps, rl.burst, now)
		rl.clients[key] = bucket
	}
	return bucket.allow(now)
}

func (rl *rateLimiter) sweep(maxIdle time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, v := range rl.clients {
		if now.Sub(v.lastRefill) > maxIdle {
			delete(rl.clients, k)
		}
	}
}

// NewRateLimitMiddleware returns a per-client token-bucket rate limiter. Stale
// buckets are swept until ctx is done.
func NewRateLimitMiddleware(ctx context.Context, cfg RateLimitConfig) fiber.Handler {
	rl := &rateLimiter{
		clients: make(map[string]*tokenBucket),
		rps:     cfg.RPS,
		burst:   cfg.Burst,
		now:     time.Now,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.sweep(10 * time.Minute)
			}
		}
	}()

	return func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}

		if !rl.allow(c.IP()) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		}

		return c.Next()
	}
}
