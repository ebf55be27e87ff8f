package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kcls-dev/circulation-api/internal/service"
)

// Metrics records per-request method, route, status and latency. Routes are
// reported by their registered pattern so path parameters do not explode the
// label cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
