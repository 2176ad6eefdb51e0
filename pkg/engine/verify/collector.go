package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DrSkyle/faultline/pkg/engine/swarm"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// ErrPartialCollection means at least one source failed. Evidence from the
// sources that succeeded has still been recorded.
var ErrPartialCollection = errors.New("evidence collection incomplete")

// Source is an independent detector of dependency edges.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]resource.Evidence, error)
}

// Recorder persists evidence; topology.Store satisfies it.
type Recorder interface {
	RecordEvidence(ctx context.Context, ev resource.Evidence) error
}

// CollectionResult is the outcome of one collection round.
type CollectionResult struct {
	Recorded  map[string]int    `json:"recorded"`
	Failed    map[string]string `json:"failed,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Collector fans sources out over the worker pool and records what they find.
type Collector struct {
	sources []Source
	rec     Recorder
	pool    *swarm.Engine
	logger  *slog.Logger
	now     func() time.Time
}

type CollectorOption func(*Collector)

func WithPool(p *swarm.Engine) CollectorOption {
	return func(c *Collector) { c.pool = p }
}

func WithCollectorLogger(l *slog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

func NewCollector(rec Recorder, sources []Source, opts ...CollectorOption) *Collector {
	c := &Collector{
		sources: sources,
		rec:     rec,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = swarm.NewEngine(swarm.WithLimits(len(sources), 1, max(len(sources), 1)))
	}
	return c
}

// Sources returns the configured source names.
func (c *Collector) Sources() []string {
	out := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		out = append(out, s.Name())
	}
	return out
}

// Collect runs every source once. Sources do not retry; a failing source is
// reported in the result and in the returned ErrPartialCollection.
func (c *Collector) Collect(ctx context.Context) (CollectionResult, error) {
	ctx, span := otel.Tracer("faultline/verify").Start(ctx, "Collect")
	defer span.End()

	res := CollectionResult{
		Recorded:  make(map[string]int, len(c.sources)),
		Failed:    make(map[string]string),
		StartedAt: c.now(),
	}
	var mu sync.Mutex

	tasks := make([]swarm.Task, 0, len(c.sources))
	for _, src := range c.sources {
		src := src
		tasks = append(tasks, func(ctx context.Context) error {
			n, err := c.collectOne(ctx, src)
			mu.Lock()
			res.Recorded[src.Name()] = n
			if err != nil {
				res.Failed[src.Name()] = err.Error()
			}
			mu.Unlock()
			return err
		})
	}

	err := c.pool.RunBatch(ctx, tasks)
	res.Duration = c.now().Sub(res.StartedAt)
	span.SetAttributes(attribute.Int("sources", len(c.sources)), attribute.Int("failed", len(res.Failed)))

	if err != nil {
		span.RecordError(err)
		c.logger.Warn("evidence collection incomplete", "failed", len(res.Failed), "error", err)
		return res, errors.Join(ErrPartialCollection, err)
	}
	c.logger.Info("evidence collected", "sources", len(c.sources), "duration", res.Duration)
	return res, nil
}

func (c *Collector) collectOne(ctx context.Context, src Source) (int, error) {
	found, err := src.Collect(ctx)
	if err != nil {
		return 0, fmt.Errorf("source %s: %w", src.Name(), err)
	}
	recorded := 0
	for _, ev := range found {
		if ev.Source == "" {
			ev.Source = src.Name()
		}
		if ev.DetectedAt.IsZero() {
			ev.DetectedAt = c.now()
		}
		if err := c.rec.RecordEvidence(ctx, ev); err != nil {
			return recorded, fmt.Errorf("source %s: record %s -> %s: %w", src.Name(), ev.SourceID, ev.TargetID, err)
		}
		recorded++
	}
	c.logger.Debug("source collected", "source", src.Name(), "edges", recorded)
	return recorded, nil
}
