package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type decayRequest struct {
	Rate          *float64 `json:"rate" validate:"omitempty,gte=0,lte=1"`
	DaysThreshold *int     `json:"days_threshold" validate:"omitempty,gte=0"`
}

func (s *Server) getVerify(c *gin.Context) {
	if s.deps.Verifier == nil {
		fail(c, fmt.Errorf("verifier: %w", errUnavailable))
		return
	}
	source, target := c.Query("source"), c.Query("target")
	if source == "" || target == "" {
		fail(c, fmt.Errorf("%w: source and target are required", errBadRequest))
		return
	}
	v, err := s.deps.Verifier.CrossValidate(c.Request.Context(), source, target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) getStale(c *gin.Context) {
	if s.deps.Verifier == nil {
		fail(c, fmt.Errorf("verifier: %w", errUnavailable))
		return
	}
	maxAge, err := intQuery(c, "max_age_days", s.deps.VerifierConfig.StaleAfterDays)
	if err != nil {
		fail(c, err)
		return
	}
	stale, err := s.deps.Verifier.ValidateStaleDependencies(c.Request.Context(), maxAge)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stale": stale, "count": len(stale), "max_age_days": maxAge})
}

// postDecay applies confidence decay. Omitted fields fall back to the verifier config.
func (s *Server) postDecay(c *gin.Context) {
	if s.deps.Verifier == nil {
		fail(c, fmt.Errorf("verifier: %w", errUnavailable))
		return
	}
	var req decayRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		fail(c, err)
		return
	}
	rate := s.deps.VerifierConfig.DecayRate
	if req.Rate != nil {
		rate = *req.Rate
	}
	days := s.deps.VerifierConfig.DecayAfterDays
	if req.DaysThreshold != nil {
		days = *req.DaysThreshold
	}

	n, err := s.deps.Verifier.ApplyConfidenceDecay(c.Request.Context(), rate, days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n, "rate": rate, "days_threshold": days})
}

func (s *Server) getDependencyAccuracy(c *gin.Context) {
	if s.deps.Verifier == nil {
		fail(c, fmt.Errorf("verifier: %w", errUnavailable))
		return
	}
	window, err := parseRange(c.Query("range"))
	if err != nil {
		fail(c, err)
		return
	}
	report, err := s.deps.Verifier.GetDependencyAccuracyMetrics(c.Request.Context(), window)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// parseRange accepts Go durations plus a whole-day form such as "30d". Empty means all time.
func parseRange(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: invalid range %q", errBadRequest, raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: invalid range %q", errBadRequest, raw)
	}
	return d, nil
}
