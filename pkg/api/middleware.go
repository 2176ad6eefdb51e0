package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// requestLogger logs one line per request and feeds the HTTP metrics.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		elapsed := s.now().Sub(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveRequest(c.Request.Method, route, status, elapsed)
		}

		attrs := []any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("request failed", attrs...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("request rejected", attrs...)
		default:
			s.logger.Debug("request served", attrs...)
		}
	}
}

// recovery converts handler panics into 500 responses and records them on the active span.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				trace.SpanFromContext(c.Request.Context()).RecordError(err)
				s.logger.Error("handler panic", "route", c.FullPath(), "error", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "internal error"})
			}
		}()
		c.Next()
	}
}
