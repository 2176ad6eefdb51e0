// Package api exposes the analysis engines over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/accuracy"
	"github.com/DrSkyle/faultline/pkg/engine/history"
	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/engine/timectx"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
	"github.com/DrSkyle/faultline/pkg/telemetry"
	"github.com/DrSkyle/faultline/pkg/topology"
	"github.com/DrSkyle/faultline/pkg/version"
)

// TrendSource reports SPOF trends over the last n snapshots.
type TrendSource interface {
	Trends(ctx context.Context, n int) (history.Trend, error)
}

// Deps are the engines served by the API. Trends and Metrics are optional.
type Deps struct {
	Store    topology.Store
	Scorer   *risk.Scorer
	Analyzer *impact.Analyzer
	Monitor  *spof.Monitor
	Verifier *verify.Verifier
	Tracker  *accuracy.Tracker
	Adjuster *timectx.Adjuster
	Trends   TrendSource
	Metrics  *telemetry.Metrics

	VerifierConfig config.VerifierConfig
}

type Server struct {
	deps     Deps
	engine   *gin.Engine
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer builds the router. mode is a gin mode (debug, release, test).
func NewServer(deps Deps, mode string, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()
	r.Use(s.recovery(), s.requestLogger())
	s.routes(r)
	s.engine = r
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.health)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/spofs", s.getSPOFs)
		v1.GET("/spofs/changes", s.getChanges)
		v1.GET("/spofs/statistics", s.getStatistics)
		v1.GET("/spofs/trends", s.getTrends)
		v1.POST("/spofs/scan", s.postScan)

		v1.GET("/resources/:id/risk", s.getRisk)
		v1.GET("/resources/:id/blast-radius", s.getBlastRadius)

		v1.GET("/dependencies/verify", s.getVerify)
		v1.GET("/dependencies/stale", s.getStale)
		v1.POST("/dependencies/decay", s.postDecay)
		v1.GET("/dependencies/accuracy", s.getDependencyAccuracy)

		v1.GET("/predictions", s.listPredictions)
		v1.POST("/predictions", s.postPrediction)
		v1.POST("/predictions/:id/validate", s.postValidation)
		v1.GET("/predictions/accuracy", s.getPredictionAccuracy)

		v1.GET("/time-context", s.getTimeContext)
		v1.GET("/deployment-windows", s.getDeploymentWindows)
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains for up to 10 seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"version": version.Current,
	}
	if s.deps.Monitor != nil {
		status["spof_monitor"] = s.deps.Monitor.State()
		status["scanning"] = s.deps.Monitor.Scanning()
	}
	c.JSON(http.StatusOK, status)
}
