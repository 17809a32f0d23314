package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ThomasChan/Farm-Land/internal/logger"
)

const loggerKey = "logger"

// Logger stores a request-scoped logger in the context and logs every
// completed request. Paths in quiet are served but only logged on errors,
// which keeps probes and scrapes out of the log.
func Logger(log *logger.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, path := range quiet {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := log.WithRequestID(GetRequestID(c))
		if sessionID := GetSessionID(c); sessionID != "" {
			requestLogger = requestLogger.WithSession(sessionID)
		}
		c.Set(loggerKey, requestLogger)

		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok && status < 400 {
			return
		}

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if len(c.Request.URL.RawQuery) > 0 {
			fields["query"] = c.Request.URL.RawQuery
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case isUpgrade(c):
			// The socket lived for the whole duration
			requestLogger.Info("Map socket finished", fields)
		case status >= 500:
			requestLogger.Error("Request completed with server error", nil, fields)
		case status >= 400:
			requestLogger.Warn("Request completed with client error", fields)
		default:
			requestLogger.Info("Request completed", fields)
		}
	}
}

// GetLogger retrieves the logger from the Gin context.
// Returns nil if not found.
func GetLogger(c *gin.Context) *logger.Logger {
	if value, exists := c.Get(loggerKey); exists {
		if l, ok := value.(*logger.Logger); ok {
			return l
		}
	}
	return nil
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
