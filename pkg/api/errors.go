package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/DrSkyle/faultline/pkg/engine/accuracy"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/topology"
)

// errBadRequest marks malformed query parameters and bodies.
var errBadRequest = errors.New("bad request")

// errUnavailable marks an engine that is not configured.
var errUnavailable = errors.New("not configured")

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, topology.ErrNotFound), errors.Is(err, accuracy.ErrPredictionNotFound):
		return http.StatusNotFound
	case errors.Is(err, spof.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, accuracy.ErrInvalidPrediction),
		errors.Is(err, accuracy.ErrInvalidOutcome),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, errUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope and aborts the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), gin.H{"status": "error", "error": err.Error()})
}
