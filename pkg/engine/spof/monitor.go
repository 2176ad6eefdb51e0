// Package spof tracks single points of failure across scans.
//
// The Monitor is the only stateful engine: it owns the last published snapshot
// and the change log. Scan is the single writer; readers receive copies.
package spof

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/impact"
	"github.com/DrSkyle/faultline/pkg/engine/risk"
	"github.com/DrSkyle/faultline/pkg/engine/swarm"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// Inventory lists the current resources.
type Inventory interface {
	ListResources(ctx context.Context) ([]resource.Resource, error)
}

// BlastCalculator computes the blast radius of one resource.
type BlastCalculator interface {
	CalculateBlastRadius(ctx context.Context, resourceID, resourceName string) (*impact.BlastRadius, error)
}

// Ledger persists published snapshots.
type Ledger interface {
	Append(ctx context.Context, snap Snapshot) error
	Latest(ctx context.Context) (Snapshot, bool, error)
}

// Notifier is told about changes after a snapshot is published.
type Notifier interface {
	NotifyChanges(ctx context.Context, snap Snapshot, changes []Change) error
}

// MetricsSink receives scan telemetry.
type MetricsSink interface {
	ObserveScan(d time.Duration, err error)
	SetSPOFs(total, highRisk int)
	CountChanges(newCount, resolvedCount int)
}

type Monitor struct {
	inv      Inventory
	scorer   *risk.Scorer
	blast    BlastCalculator
	cfg      config.MonitorConfig
	pool     *swarm.Engine
	advisor  Advisor
	ledger   Ledger
	notifier Notifier
	metrics  MetricsSink
	logger   *slog.Logger
	now      func() time.Time

	busy    atomic.Bool
	trigger chan struct{}

	mu       sync.RWMutex
	state    State
	last     *Snapshot
	changes  []Change
	scans    int
	restored bool
}

type Option func(*Monitor)

func WithAdvisor(a Advisor) Option     { return func(m *Monitor) { m.advisor = a } }
func WithLedger(l Ledger) Option       { return func(m *Monitor) { m.ledger = l } }
func WithNotifier(n Notifier) Option   { return func(m *Monitor) { m.notifier = n } }
func WithMetrics(s MetricsSink) Option { return func(m *Monitor) { m.metrics = s } }
func WithPool(p *swarm.Engine) Option  { return func(m *Monitor) { m.pool = p } }
func WithLogger(l *slog.Logger) Option { return func(m *Monitor) { m.logger = l } }

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func New(inv Inventory, scorer *risk.Scorer, blast BlastCalculator, cfg config.MonitorConfig, opts ...Option) *Monitor {
	d := config.DefaultMonitorConfig()
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = d.HighRiskThreshold
	}
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	m := &Monitor{
		inv:     inv,
		scorer:  scorer,
		blast:   blast,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
		state:   StateNotScanned,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pool == nil {
		m.pool = swarm.NewEngine(swarm.WithLimits(8, 1, 32))
	}
	return m
}

// Scan computes a fresh snapshot, diffs it against the previous one and publishes
// both. A concurrent call returns ErrScanInProgress. On any collaborator failure
// nothing is published and the previous snapshot stays current.
func (m *Monitor) Scan(ctx context.Context) (Snapshot, []Change, error) {
	if !m.busy.CompareAndSwap(false, true) {
		return Snapshot{}, nil, ErrScanInProgress
	}
	defer m.busy.Store(false)

	if m.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ScanTimeout)
		defer cancel()
	}
	ctx, span := otel.Tracer("faultline/spof").Start(ctx, "Scan")
	defer span.End()

	start := m.now()
	snap, err := m.build(ctx)
	if m.metrics != nil {
		m.metrics.ObserveScan(m.now().Sub(start), err)
	}
	if err != nil {
		span.RecordError(err)
		m.logger.Error("spof scan failed", "error", err)
		return Snapshot{}, nil, err
	}
	snap.ScanDuration = m.now().Sub(start)

	m.mu.Lock()
	var prev Snapshot
	if m.last != nil {
		prev = *m.last
	}
	changes := Diff(prev, snap, snap.Timestamp)
	published := snap.Clone()
	m.last = &published
	m.changes = append(m.changes, changes...)
	m.state = StateActive
	m.scans++
	m.mu.Unlock()

	newCount, resolvedCount := countChanges(changes)
	span.SetAttributes(
		attribute.String("scan_id", snap.ScanID),
		attribute.Int("spof_count", snap.TotalCount),
		attribute.Int("changes", len(changes)),
	)
	m.logger.Info("spof scan complete",
		"scan_id", snap.ScanID,
		"spof_count", snap.TotalCount,
		"high_risk", snap.HighRiskCount,
		"new", newCount,
		"resolved", resolvedCount,
		"duration", snap.ScanDuration,
	)
	if m.metrics != nil {
		m.metrics.SetSPOFs(snap.TotalCount, snap.HighRiskCount)
		m.metrics.CountChanges(newCount, resolvedCount)
	}

	// Side effects run after publishing; their failure does not undo the scan.
	if m.ledger != nil {
		if err := m.ledger.Append(ctx, snap); err != nil {
			m.logger.Warn("failed to persist snapshot", "error", err)
		}
	}
	if m.notifier != nil && len(changes) > 0 {
		if err := m.notifier.NotifyChanges(ctx, snap, changes); err != nil {
			m.logger.Warn("failed to send spof notification", "error", err)
		}
	}
	return snap, changes, nil
}

func (m *Monitor) build(ctx context.Context) (Snapshot, error) {
	resources, err := m.inv.ListResources(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list resources: %w", err)
	}

	var candidates []resource.Resource
	for _, r := range resources {
		if r.IsSPOF {
			candidates = append(candidates, r)
		}
	}

	entries := make([]Entry, len(candidates))
	tasks := make([]swarm.Task, len(candidates))
	for i, r := range candidates {
		i, r := i, r
		tasks[i] = func(ctx context.Context) error {
			e, err := m.evaluate(ctx, r)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		}
	}
	if err := m.pool.RunBatch(ctx, tasks); err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RiskScore != entries[j].RiskScore {
			return entries[i].RiskScore > entries[j].RiskScore
		}
		return entries[i].ResourceID < entries[j].ResourceID
	})

	snap := Snapshot{
		ScanID:         uuid.NewString(),
		Timestamp:      m.now().UTC(),
		SPOFs:          entries,
		TotalCount:     len(entries),
		ByResourceType: make(map[string]int),
	}
	for _, e := range entries {
		if e.RiskScore > m.cfg.HighRiskThreshold {
			snap.HighRiskCount++
		}
		snap.ByResourceType[e.ResourceType]++
	}
	return snap, nil
}

func (m *Monitor) evaluate(ctx context.Context, r resource.Resource) (Entry, error) {
	br, err := m.blast.CalculateBlastRadius(ctx, r.ID, r.DisplayName())
	if err != nil {
		return Entry{}, fmt.Errorf("blast radius for %s: %w", r.ID, err)
	}
	a := m.scorer.Assess(r)

	typ := string(r.Type)
	if typ == "" {
		typ = impact.UnknownBucket
	}
	e := Entry{
		ResourceID:      r.ID,
		ResourceName:    r.DisplayName(),
		ResourceType:    typ,
		DependentsCount: r.DependentsCount,
		BlastRadius:     br.TotalAffected,
		UserImpact:      br.UserImpact,
		DowntimeSeconds: br.EstimatedDowntimeSeconds,
		CriticalPath:    br.CriticalPath,
		RiskScore:       a.Score,
		RiskLevel:       a.Level,
	}
	e.Recommendations = builtinRecommendations(m.scorer.Model(), e)
	if m.advisor != nil {
		e.Recommendations = mergeRecommendations(e.Recommendations, m.advisor.Recommend(e))
	}
	return e, nil
}

// Run scans immediately, then on every interval tick and on every Trigger,
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.runOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx, "schedule")
		case <-m.trigger:
			m.runOnce(ctx, "manual")
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context, reason string) {
	if _, _, err := m.Scan(ctx); err != nil {
		m.logger.Debug("scan skipped or failed", "reason", reason, "error", err)
	}
}

// Trigger asks Run for a scan. Requests made while one is pending coalesce;
// it reports whether a new request was queued.
func (m *Monitor) Trigger() bool {
	select {
	case m.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Scanning reports whether a scan is in flight.
func (m *Monitor) Scanning() bool {
	return m.busy.Load()
}

// Restore loads the latest persisted snapshot so the first scan after a restart
// diffs against it. It is a no-op without a ledger or after a scan has run.
// The state stays not_scanned until this process completes a scan.
func (m *Monitor) Restore(ctx context.Context) (bool, error) {
	if m.ledger == nil {
		return false, nil
	}
	snap, ok, err := m.ledger.Latest(ctx)
	if err != nil {
		return false, fmt.Errorf("restore snapshot: %w", err)
	}
	if !ok {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last != nil {
		return false, nil
	}
	restored := snap.Clone()
	m.last = &restored
	m.restored = true
	m.logger.Info("restored spof snapshot", "spof_count", snap.TotalCount, "taken_at", snap.Timestamp)
	return true, nil
}

// State returns the monitor state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// GetCurrentSPOFs returns a copy of the latest snapshot, or false before any scan.
func (m *Monitor) GetCurrentSPOFs() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Snapshot{SPOFs: []Entry{}, ByResourceType: map[string]int{}}, false
	}
	return m.last.Clone(), true
}

// GetRecentChanges returns up to limit changes, most recent first.
// limit <= 0 returns the whole log.
func (m *Monitor) GetRecentChanges(limit int) []Change {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.changes)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Change, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.changes[i])
	}
	return out
}

// GetStatistics summarizes the latest snapshot and the change log.
func (m *Monitor) GetStatistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Statistics{
		Status:         m.state,
		ScanCount:      m.scans,
		Restored:       m.restored,
		ByResourceType: map[string]int{},
		ByRiskLevel:    map[string]int{},
		TotalChanges:   len(m.changes),
	}
	st.NewCount, st.ResolvedCount = countChanges(m.changes)
	if m.last == nil {
		return st
	}

	ts := m.last.Timestamp
	st.LastScan = &ts
	st.TotalSPOFs = m.last.TotalCount
	st.HighRiskCount = m.last.HighRiskCount
	var sum float64
	for _, e := range m.last.SPOFs {
		sum += e.RiskScore
		st.ByResourceType[e.ResourceType]++
		st.ByRiskLevel[string(e.RiskLevel)]++
		if e.BlastRadius > st.MaxBlastRadius {
			st.MaxBlastRadius = e.BlastRadius
		}
	}
	if len(m.last.SPOFs) > 0 {
		st.AverageRiskScore = math.Round(sum/float64(len(m.last.SPOFs))*100) / 100
	}
	return st
}

func countChanges(changes []Change) (newCount, resolvedCount int) {
	for _, c := range changes {
		if c.ChangeType == ChangeNew {
			newCount++
		} else {
			resolvedCount++
		}
	}
	return newCount, resolvedCount
}
