package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/mdpublish/internal/logger"
)

// Logging logs every HTTP request and its result.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// HandleHTTP logs route, duration and status for each request.
func (l *Logging) HandleHTTP(c *gin.Context) {
	start := time.Now()
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}

	c.Next()

	status := c.Writer.Status()
	attrs := []any{
		"method", c.Request.Method,
		"route", route,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	}

	switch {
	case status >= 500:
		l.logger.Error("HTTP request failed", append(attrs, "error", c.Errors.String())...)
	case status >= 400:
		l.logger.Warn("HTTP request rejected", attrs...)
	default:
		l.logger.Info("HTTP request completed", attrs...)
	}
}
