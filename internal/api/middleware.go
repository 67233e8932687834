package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sla-monitor/internal/logging"
)

const requestIDHeader = "X-Request-ID"

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		logger.WithField("request_id", requestID).
			Infof("Request: %s %s, Status: %d, Latency: %v", method, path, status, latency)
	}
}
