package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := newRateLimiter(1, 2)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.allow("10.0.0.2"), "buckets are per key")

	now = now.Add(time.Second)
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	// 10.0.0.2 stays active; 10.0.0.1 goes idle.
	now = now.Add(10 * time.Minute)
	assert.True(t, rl.allow("10.0.0.2"))
	rl.evict(now.Add(-time.Minute))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "10.0.0.2")
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.POST("/w", RateLimitMiddleware(ctx, 0.001, 1), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/w", nil))
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/w", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRateLimitMiddleware_KeysBySubject(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.POST("/w", func(c *gin.Context) {
		if sub := c.GetHeader("X-Test-Subject"); sub != "" {
			c.Set(CtxSubject, sub)
		}
	}, RateLimitMiddleware(ctx, 0.001, 1), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(subject string) int {
		req := httptest.NewRequest(http.MethodPost, "/w", nil)
		if subject != "" {
			req.Header.Set("X-Test-Subject", subject)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	// All requests share the recorder's remote address.
	assert.Equal(t, http.StatusNoContent, send("risk-engine-1"))
	assert.Equal(t, http.StatusTooManyRequests, send("risk-engine-1"))
	assert.Equal(t, http.StatusNoContent, send("breaker-controller-1"))
	assert.Equal(t, http.StatusNoContent, send(""), "anonymous callers fall back to the client IP")
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		role domain.CallerRole
		want int
	}{
		{domain.RoleRiskEngine, http.StatusOK},
		{domain.RoleAdmin, http.StatusOK},
		{domain.RoleBreakerController, http.StatusForbidden},
		{domain.RoleReader, http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			r := gin.New()
			r.GET("/x", func(c *gin.Context) {
				if tc.role != "" {
					c.Set(CtxRole, tc.role)
				}
			}, RiskWriterMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}
