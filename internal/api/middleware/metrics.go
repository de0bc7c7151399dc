package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records served requests. *metrics.MetricsCollector satisfies it.
type HTTPObserver interface {
	ObserveHTTP(path, method, status string, d time.Duration)
}

// MetricsMiddleware records request counts and durations per route template.
func MetricsMiddleware(obs HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		obs.ObserveHTTP(path, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
