package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	loggerKey       = "logger"
	RequestIDHeader = "X-Request-ID"
)

// Logging attaches a request-scoped logger carrying the trace and request
// ids, and writes one access line per request once the handler returns.
// Paths in quiet are served without the access line.
func Logging(base *slog.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(RequestIDHeader, requestID)

		sc := trace.SpanFromContext(c.Request.Context()).SpanContext()
		logger := base.With(
			slog.String("request_id", requestID),
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
		c.Set(loggerKey, logger)

		c.Next()

		if skip[c.FullPath()] {
			return
		}
		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if user, ok := GetAuth0ID(c); ok {
			attrs = append(attrs, slog.String("user", user))
		}
		logger.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}

// GetLogger returns the request logger, or the default logger outside a
// request.
func GetLogger(c *gin.Context) *slog.Logger {
	if logger, ok := c.Get(loggerKey); ok {
		return logger.(*slog.Logger)
	}
	return slog.Default()
}
