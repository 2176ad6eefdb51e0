package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultChangeLimit = 50
	defaultTrendWindow = 24
)

func (s *Server) getSPOFs(c *gin.Context) {
	if s.deps.Monitor == nil {
		fail(c, fmt.Errorf("spof monitor: %w", errUnavailable))
		return
	}
	snap, ok := s.deps.Monitor.GetCurrentSPOFs()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"status":  s.deps.Monitor.State(),
			"message": "no scan has completed yet",
			"spofs":   []any{},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   s.deps.Monitor.State(),
		"snapshot": snap,
	})
}

func (s *Server) getChanges(c *gin.Context) {
	if s.deps.Monitor == nil {
		fail(c, fmt.Errorf("spof monitor: %w", errUnavailable))
		return
	}
	limit, err := intQuery(c, "limit", defaultChangeLimit)
	if err != nil {
		fail(c, err)
		return
	}
	changes := s.deps.Monitor.GetRecentChanges(limit)
	c.JSON(http.StatusOK, gin.H{"changes": changes, "count": len(changes)})
}

func (s *Server) getStatistics(c *gin.Context) {
	if s.deps.Monitor == nil {
		fail(c, fmt.Errorf("spof monitor: %w", errUnavailable))
		return
	}
	c.JSON(http.StatusOK, s.deps.Monitor.GetStatistics())
}

// postScan runs a scan synchronously. A scan already in flight yields 409.
func (s *Server) postScan(c *gin.Context) {
	if s.deps.Monitor == nil {
		fail(c, fmt.Errorf("spof monitor: %w", errUnavailable))
		return
	}
	snap, changes, err := s.deps.Monitor.Scan(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshot": snap,
		"changes":  changes,
	})
}

func (s *Server) getTrends(c *gin.Context) {
	if s.deps.Trends == nil {
		fail(c, fmt.Errorf("snapshot history: %w", errUnavailable))
		return
	}
	window, err := intQuery(c, "window", defaultTrendWindow)
	if err != nil {
		fail(c, err)
		return
	}
	trend, err := s.deps.Trends.Trends(c.Request.Context(), window)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

// intQuery reads a positive integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errBadRequest, name)
	}
	return n, nil
}
