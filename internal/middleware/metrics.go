package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const unmatchedRoute = "unmatched"

// RequestObserver receives one observation per finished request.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Metrics records request counts and latency labelled by route template.
// Progress streams stay open for the life of a job, so they are counted with
// a zero duration to keep the latency histogram meaningful.
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		duration := time.Since(start)
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			duration = 0
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), duration)
	}
}
