// Package app assembles the engines from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/DrSkyle/faultline/pkg/api"
	"github.com/DrSkyle/faultline/pkg/cloud"
	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/accuracy"
	"github.com/DrSkyle/faultline/pkg/engine/history"
	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/notifier"
	"github.com/DrSkyle/faultline/pkg/engine/policy"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/spof"
	"github.com/DrSkyle/faultline/pkg/engine/swarm"
	"github.com/DrSkyle/faultline/pkg/engine/timectx"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
	"github.com/DrSkyle/faultline/pkg/evidence"
	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/storage"
	"github.com/DrSkyle/faultline/pkg/telemetry"
	"github.com/DrSkyle/faultline/pkg/topology"
	"github.com/DrSkyle/faultline/pkg/version"
)

// App holds every engine built from one configuration.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store     topology.Store
	Scorer    *risk.Scorer
	Analyzer  *impact.Analyzer
	Monitor   *spof.Monitor
	Verifier  *verify.Verifier
	Tracker   *accuracy.Tracker
	Adjuster  *timectx.Adjuster
	Ledger    *history.Ledger
	Collector *verify.Collector
	Notifier  *notifier.SlackClient
	Metrics   *telemetry.Metrics
	Pool      *swarm.Engine
	AWS       *cloud.Client

	closers []func(context.Context) error
}

type Option func(*options)

type options struct {
	logger *slog.Logger
	store  topology.Store
	demo   bool
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithStore replaces the configured topology backend.
func WithStore(s topology.Store) Option { return func(o *options) { o.store = s } }

// WithDemo serves the built-in demo topology.
func WithDemo(on bool) Option { return func(o *options) { o.demo = on } }

// New builds the application. Call Close to release clients and stop the pool.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = NewLogger(cfg.Log, os.Stderr)
	}
	a := &App{Config: cfg, Logger: o.logger}

	if err := a.build(ctx, o); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.Config
	logger := a.Logger

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version.Current)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	} else {
		a.closers = append(a.closers, shutdown)
	}
	a.Metrics = telemetry.NewMetrics()

	if needsAWS(cfg) {
		client, err := cloud.NewClient(ctx, cfg.AWS, logger)
		if err != nil {
			return err
		}
		a.AWS = client
		idCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if id, err := client.VerifyIdentity(idCtx); err != nil {
			logger.Warn("aws credentials could not be verified", "error", err)
		} else {
			logger.Debug("aws identity", "account", id.Account, "arn", id.ARN)
		}
		cancel()
	}

	if err := a.openStore(ctx, o); err != nil {
		return err
	}

	a.Pool = swarm.NewEngine(
		swarm.WithLimits(cfg.Evidence.Concurrency, 1, max(cfg.Evidence.Concurrency*4, 8)),
		swarm.WithThrottle(cloud.IsThrottle),
	)
	a.Pool.Start(ctx)
	a.closers = append(a.closers, func(context.Context) error {
		a.Pool.Stop()
		return nil
	})

	scorer, err := risk.NewFromConfig(cfg.Risk)
	if err != nil {
		return err
	}
	a.Scorer = scorer
	a.Analyzer = impact.New(a.Store, cfg.Impact)
	a.Verifier = verify.New(a.Store, cfg.Verifier, verify.WithLogger(logger))

	adjuster, err := timectx.NewFromConfig(cfg.TimeContext)
	if err != nil {
		return err
	}
	a.Adjuster = adjuster

	if err := a.openTracker(ctx); err != nil {
		return err
	}
	if err := a.openLedger(); err != nil {
		return err
	}

	monitorOpts := []spof.Option{
		spof.WithLogger(logger),
		spof.WithMetrics(a.Metrics),
		spof.WithPool(a.Pool),
	}
	if a.Ledger != nil {
		monitorOpts = append(monitorOpts, spof.WithLedger(a.Ledger))
	}
	if cfg.Notifier.SlackWebhook != "" {
		a.Notifier = notifier.NewSlackClient(cfg.Notifier.SlackWebhook, cfg.Notifier.Channel)
		monitorOpts = append(monitorOpts, spof.WithNotifier(a.Notifier))
	}
	advisor, err := policy.NewFromConfig(cfg.Policy, scorer.Model(), logger)
	if err != nil {
		return err
	}
	if advisor != nil {
		monitorOpts = append(monitorOpts, spof.WithAdvisor(advisor))
	}
	a.Monitor = spof.New(a.Store, scorer, a.Analyzer, cfg.Monitor, monitorOpts...)

	var s3 evidence.S3Getter
	if a.AWS != nil {
		s3 = a.AWS.S3()
	}
	sources, err := evidence.FromConfig(cfg.Evidence, s3, logger)
	if err != nil {
		return err
	}
	a.Collector = verify.NewCollector(a.Store, sources, verify.WithPool(a.Pool), verify.WithCollectorLogger(logger))
	return nil
}

func (a *App) openStore(ctx context.Context, o options) error {
	cfg := a.Config.Topology
	switch {
	case o.store != nil:
		a.Store = o.store
	case o.demo:
		a.Store = DemoTopology()
	case cfg.Backend == "neo4j":
		store, err := topology.NewNeo4jStore(ctx, cfg.Neo4j, topology.WithNeo4jLogger(a.Logger))
		if err != nil {
			return err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	case cfg.FixtureFile != "":
		g, err := graph.LoadFixtureFile(cfg.FixtureFile)
		if err != nil {
			return err
		}
		a.Store = g
	default:
		g := graph.NewGraph()
		g.Sync()
		a.Store = g
	}
	if g, ok := a.Store.(*graph.Graph); ok {
		a.describeGraph(g)
	}
	return nil
}

// describeGraph logs the shape of an in-memory topology and warns about cycles.
func (a *App) describeGraph(g *graph.Graph) {
	s := g.Summarize()
	a.Logger.Info("topology loaded",
		"resources", s.Resources,
		"dependencies", s.Dependencies,
		"failure_domains", s.FailureDomains,
		"spof_candidates", s.SPOFCandidates)

	ids := make([]string, 0, s.Resources)
	for _, domain := range g.FailureDomains() {
		ids = append(ids, domain...)
	}
	if _, err := g.TopologicalSort(ids); errors.Is(err, graph.ErrCycle) {
		a.Logger.Warn("topology contains a dependency cycle; critical paths follow the first visit", "error", err)
	}
}

func (a *App) openTracker(ctx context.Context) error {
	cfg := a.Config.Predictions
	var store accuracy.Store = accuracy.NewMemoryStore()
	if cfg.Backend == "dynamodb" {
		ds := accuracy.NewDynamoStoreFromConfig(a.AWS.Config, cfg.Table)
		if err := ds.EnsureTable(ctx); err != nil {
			return err
		}
		store = ds
	}
	a.Tracker = accuracy.NewTracker(store, accuracy.WithLogger(a.Logger))
	return nil
}

func (a *App) openLedger() error {
	cfg := a.Config.History
	var backend history.Backend
	switch cfg.Backend {
	case "none":
		return nil
	case "s3":
		b, err := history.NewS3Backend(a.AWS.Config, cfg.S3URL, cfg.Retain, cloud.S3Options(a.AWS.Config)...)
		if err != nil {
			return err
		}
		backend = b
	case "redis":
		b, err := history.NewRedisBackend(cfg.RedisURL, cfg.RedisKey, cfg.Retain)
		if err != nil {
			return err
		}
		backend = b
		a.closers = append(a.closers, func(context.Context) error { return b.Close() })
	default:
		path := cfg.Path
		if path == "" {
			p, err := history.GetLedgerPath()
			if err != nil {
				return fmt.Errorf("ledger path: %w", err)
			}
			path = p
		}
		backend = history.NewLocalBackend(path, cfg.Retain)
	}
	a.Ledger = history.NewLedger(backend, a.Logger)
	return nil
}

// needsAWS reports whether any configured backend talks to AWS.
func needsAWS(cfg *config.Config) bool {
	return cfg.History.Backend == "s3" ||
		cfg.Predictions.Backend == "dynamodb" ||
		storage.IsS3(cfg.Export.Target) ||
		storage.IsS3(cfg.Evidence.TerraformState) ||
		isDir(cfg.Evidence.TerraformState)
}

// A terraform root directory may declare an s3 backend.
func isDir(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// APIDeps exposes the engines to the HTTP server.
func (a *App) APIDeps() api.Deps {
	deps := api.Deps{
		Store:          a.Store,
		Scorer:         a.Scorer,
		Analyzer:       a.Analyzer,
		Monitor:        a.Monitor,
		Verifier:       a.Verifier,
		Tracker:        a.Tracker,
		Adjuster:       a.Adjuster,
		Metrics:        a.Metrics,
		VerifierConfig: a.Config.Verifier,
	}
	if a.Ledger != nil {
		deps.Trends = a.Ledger
	}
	return deps
}

// ExportStore opens the export target.
func (a *App) ExportStore(ctx context.Context, target string) (storage.BlobStore, error) {
	if target == "" {
		target = a.Config.Export.Target
	}
	if storage.IsS3(target) && a.AWS == nil {
		client, err := cloud.NewClient(ctx, a.Config.AWS, a.Logger)
		if err != nil {
			return nil, err
		}
		a.AWS = client
	}
	if a.AWS == nil {
		return storage.Open(target, aws.Config{})
	}
	return storage.Open(target, a.AWS.Config, cloud.S3Options(a.AWS.Config)...)
}

// CollectEvidence runs every evidence source once and records the results.
func (a *App) CollectEvidence(ctx context.Context) (verify.CollectionResult, error) {
	res, err := a.Collector.Collect(ctx)
	a.Metrics.ObserveCollection(res)
	return res, err
}

// RunEvidence collects on every interval until ctx is cancelled.
func (a *App) RunEvidence(ctx context.Context, interval time.Duration) {
	if len(a.Collector.Sources()) == 0 {
		return
	}
	if interval <= 0 {
		interval = a.Config.Evidence.Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := a.CollectEvidence(ctx); err != nil {
			a.Logger.Warn("evidence collection incomplete", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// CheckTrends analyzes the last window snapshots and posts any alerts to Slack.
func (a *App) CheckTrends(ctx context.Context, window int) (history.Trend, error) {
	if a.Ledger == nil {
		return history.Trend{}, nil
	}
	trend, err := a.Ledger.Trends(ctx, window)
	if err != nil {
		if errors.Is(err, history.ErrEmptyLedger) {
			return history.Trend{}, nil
		}
		return history.Trend{}, err
	}
	for _, alert := range trend.Alerts {
		a.Logger.Warn("spof trend alert", "alert", alert, "velocity", trend.Velocity)
	}
	if a.Notifier != nil {
		if err := a.Notifier.SendTrendAlert(ctx, trend); err != nil {
			a.Logger.Warn("failed to send trend alert", "error", err)
		}
	}
	return trend, nil
}

// Close releases clients in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
