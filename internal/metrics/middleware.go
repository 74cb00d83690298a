package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/relayguard/relayguard/internal/logging"
)

// proxyEndpoint is the endpoint label for requests that fall through to the
// proxy catch-all. Those carry caller-chosen upstream paths, which must not
// become metric labels.
const proxyEndpoint = "proxy"

// Middleware records latency, request counts, and the in-flight gauge per
// request. Matched management routes keep their route template as the
// endpoint label; everything proxied is folded into one label value.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.IncHTTPRequestsInFlight()
		c.Next()
		m.DecHTTPRequestsInFlight()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = proxyEndpoint
		}
		status := strconv.Itoa(c.Writer.Status())
		elapsed := time.Since(start).Seconds()

		m.RecordRequestLatency(endpoint, c.Request.Method, status, elapsed)
		m.RecordHTTPRequest(endpoint, c.Request.Method, status)

		if len(c.Errors) > 0 {
			logger.ErrorWithContext(c.Request.Context(), "request error",
				"endpoint", endpoint, "error", c.Errors.String())
		}
	}
}
