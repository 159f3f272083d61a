package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/usageline/usageline/internal/logger"
	"github.com/usageline/usageline/internal/types"
)

func RequestIDMiddleware(c *gin.Context) {
	// Create a new context from the request context
	ctx := c.Request.Context()

	// Add request ID
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// Create new context with values
	ctx = context.WithValue(ctx, types.CtxRequestID, requestID)
	ctx = context.WithValue(ctx, types.CtxClientIP, c.ClientIP())
	ctx = context.WithValue(ctx, types.CtxUserAgent, c.Request.UserAgent())

	// Replace request context
	c.Request = c.Request.WithContext(ctx)

	// Add headers for response
	c.Header("X-Request-ID", requestID)

	c.Next()
}

// processTimeWriter stamps X-Process-Time (in seconds) just before the
// response headers are committed.
type processTimeWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *processTimeWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	elapsed := time.Since(w.start).Seconds()
	w.Header().Set("X-Process-Time", strconv.FormatFloat(elapsed, 'f', 6, 64))
}

func (w *processTimeWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *processTimeWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *processTimeWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// RequestLogger logs one line per request with its latency.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Writer = &processTimeWriter{ResponseWriter: c.Writer, start: start}
		c.Next()

		log.Infow("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", types.GetRequestID(c.Request.Context()),
			"tenant_id", types.GetTenantID(c.Request.Context()),
		)
	}
}
