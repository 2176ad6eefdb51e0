package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DrSkyle/faultline/pkg/engine/accuracy"
)

type validationRequest struct {
	ActualOutcome string `json:"actual_outcome" validate:"required"`
}

func (s *Server) postPrediction(c *gin.Context) {
	if s.deps.Tracker == nil {
		fail(c, fmt.Errorf("prediction tracker: %w", errUnavailable))
		return
	}
	var in accuracy.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.validate.Struct(in); err != nil {
		fail(c, err)
		return
	}
	p, err := s.deps.Tracker.RecordPrediction(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) listPredictions(c *gin.Context) {
	if s.deps.Tracker == nil {
		fail(c, fmt.Errorf("prediction tracker: %w", errUnavailable))
		return
	}
	f, err := s.predictionFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	f.Status = accuracy.Status(c.Query("status"))
	list, err := s.deps.Tracker.ListPredictions(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": list, "count": len(list)})
}

func (s *Server) postValidation(c *gin.Context) {
	if s.deps.Tracker == nil {
		fail(c, fmt.Errorf("prediction tracker: %w", errUnavailable))
		return
	}
	var req validationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		fail(c, err)
		return
	}
	outcome, err := accuracy.ParseOutcome(req.ActualOutcome)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := s.deps.Tracker.ValidatePrediction(c.Request.Context(), c.Param("id"), outcome)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getPredictionAccuracy(c *gin.Context) {
	if s.deps.Tracker == nil {
		fail(c, fmt.Errorf("prediction tracker: %w", errUnavailable))
		return
	}
	f, err := s.predictionFilter(c)
	if err != nil {
		fail(c, err)
		return
	}
	report, err := s.deps.Tracker.GetAccuracyMetrics(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// predictionFilter reads resource_id and since. since is RFC 3339 or a range such as "7d".
func (s *Server) predictionFilter(c *gin.Context) (accuracy.Filter, error) {
	f := accuracy.Filter{ResourceID: c.Query("resource_id")}
	raw := c.Query("since")
	if raw == "" {
		return f, nil
	}
	if d, err := parseRange(raw); err == nil {
		f.Since = s.now().Add(-d)
		return f, nil
	}
	ts, err := timeQuery(c, "since", s.now())
	if err != nil {
		return f, err
	}
	f.Since = ts
	return f, nil
}
