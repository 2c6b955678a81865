package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver records one finished request
type HTTPObserver interface {
	ObserveHTTP(method, route, status string, elapsed time.Duration)
}

// unmatchedRoute labels requests that hit no registered route
const unmatchedRoute = "unmatched"

// HTTPMetrics returns a middleware that reports every request to obs.
// Routes are labelled by their pattern, never the raw path, which keeps
// label cardinality bounded.
func HTTPMetrics(obs HTTPObserver) gin.HandlerFunc {
	if obs == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		obs.ObserveHTTP(
			c.Request.Method,
			getRoutePattern(c),
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

// getRoutePattern returns the matched route pattern (e.g. "/api/v1/sales-plan/records")
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
