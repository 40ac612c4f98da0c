package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

const loggerKey = "logger"

// requestID tags every request with an identifier, honoring one supplied
// by the caller, and stashes a request-scoped logger in the gin context.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Set(loggerKey, s.logger.With().Str("request_id", id).Logger())
		c.Next()
	}
}

// accessLog logs every request on completion.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger := requestLogger(c, s.logger)
		event := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request completed")
	}
}

// requestLogger returns the request-scoped logger, or fallback when the
// middleware has not run.
func requestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if logger, ok := v.(zerolog.Logger); ok {
			return logger
		}
	}
	return fallback
}
