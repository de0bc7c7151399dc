package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ──────────────────────────────────────────────────────────────────────────────
// Per-IP Rate Limiter
// ──────────────────────────────────────────────────────────────────────────────

// callerLimiter is the token bucket for one caller key.
type callerLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter holds one limiter per caller key and the shared lock.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters: make(map[string]*callerLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// allow returns true when the given key may proceed and consumes one token.
func (rl *rateLimiter) allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	l, ok := rl.limiters[key]
	if !ok {
		l = &callerLimiter{lim: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = l
	}
	l.lastSeen = now
	rl.mu.Unlock()

	return l.lim.AllowN(now, 1)
}

// evict drops limiters idle since before cutoff.
func (rl *rateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.limiters {
		if l.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// RateLimitMiddleware enforces a token bucket of rps requests per second with
// the given burst for each caller. Behind JWTMiddleware the caller is the
// token subject, so producers sharing a gateway IP keep separate budgets;
// otherwise it is the client IP. Callers over the limit receive 429. Idle
// limiters are evicted every 5 minutes until ctx is cancelled.
func RateLimitMiddleware(ctx context.Context, rps float64, burst int) gin.HandlerFunc {
	rl := newRateLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evict(rl.now().Add(-10 * time.Minute))
			}
		}
	}()

	return func(c *gin.Context) {
		if !rl.allow(callerKey(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, slow down",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

func callerKey(c *gin.Context) string {
	if sub := GetSubject(c); sub != "" {
		return "sub:" + sub
	}
	return "ip:" + c.ClientIP()
}
