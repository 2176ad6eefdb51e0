package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/timectx"
)

type riskResponse struct {
	risk.Assessment
	TimeContext *timectx.Adjustment `json:"time_context,omitempty"`
}

func (s *Server) getRisk(c *gin.Context) {
	if s.deps.Store == nil || s.deps.Scorer == nil {
		fail(c, fmt.Errorf("risk scorer: %w", errUnavailable))
		return
	}
	r, err := s.deps.Store.GetResource(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	resp := riskResponse{Assessment: s.deps.Scorer.Assess(r)}
	if s.deps.Adjuster != nil {
		at, err := timeQuery(c, "at", s.now())
		if err != nil {
			fail(c, err)
			return
		}
		adj := s.deps.Adjuster.Adjust(resp.Score, at)
		resp.TimeContext = &adj
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getBlastRadius(c *gin.Context) {
	if s.deps.Store == nil || s.deps.Analyzer == nil {
		fail(c, fmt.Errorf("impact analyzer: %w", errUnavailable))
		return
	}
	ctx := c.Request.Context()
	r, err := s.deps.Store.GetResource(ctx, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	br, err := s.deps.Analyzer.CalculateBlastRadius(ctx, r.ID, r.Name)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, br)
}

func (s *Server) getTimeContext(c *gin.Context) {
	if s.deps.Adjuster == nil {
		fail(c, fmt.Errorf("time context: %w", errUnavailable))
		return
	}
	at, err := timeQuery(c, "at", s.now())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.deps.Adjuster.Context(at))
}

func (s *Server) getDeploymentWindows(c *gin.Context) {
	if s.deps.Adjuster == nil {
		fail(c, fmt.Errorf("time context: %w", errUnavailable))
		return
	}
	from, err := timeQuery(c, "from", s.now())
	if err != nil {
		fail(c, err)
		return
	}
	days, err := intQuery(c, "days", 7)
	if err != nil {
		fail(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 10)
	if err != nil {
		fail(c, err)
		return
	}
	windows := s.deps.Adjuster.SuggestDeploymentWindows(from, days)
	if len(windows) > limit {
		windows = windows[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows, "count": len(windows)})
}

// timeQuery parses an RFC 3339 timestamp.
func timeQuery(c *gin.Context, name string, def time.Time) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC 3339", errBadRequest, name)
	}
	return ts, nil
}
