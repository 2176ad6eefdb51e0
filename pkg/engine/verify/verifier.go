// Package verify classifies dependency edges by how well independent evidence
// sources corroborate them, and ages out edges nobody re-confirms.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// EdgeStore is the slice of the topology store the verifier needs.
type EdgeStore interface {
	GetDependency(ctx context.Context, sourceID, targetID string) (resource.Dependency, bool, error)
	ListDependencies(ctx context.Context) ([]resource.Dependency, error)
	UpdateConfidence(ctx context.Context, sourceID, targetID string, confidence float64) error
}

type Verifier struct {
	store  EdgeStore
	cfg    config.VerifierConfig
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

func New(store EdgeStore, cfg config.VerifierConfig, opts ...Option) *Verifier {
	d := config.DefaultVerifierConfig()
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = d.FreshnessWindow
	}
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = d.HighConfidence
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = d.LowConfidence
	}
	if cfg.MinSources < 1 {
		cfg.MinSources = d.MinSources
	}
	if cfg.StaleAfterDays <= 0 {
		cfg.StaleAfterDays = d.StaleAfterDays
	}
	v := &Verifier{store: store, cfg: cfg, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Classify derives the verdict for an edge as of now. It does no I/O.
func (v *Verifier) Classify(dep resource.Dependency) Verification {
	sources := dep.Sources()
	out := Verification{
		SourceID:           dep.SourceID,
		TargetID:           dep.TargetID,
		DetectedConfidence: resource.ClampUnit(dep.Confidence),
		EvidenceSources:    sources,
		Status:             v.status(len(sources), dep.LastSeen),
		IsCorrect:          v.correctness(len(sources), dep.Confidence),
	}
	if !dep.LastSeen.IsZero() {
		ls := dep.LastSeen
		out.LastSeen = &ls
	}

	switch out.Status {
	case StatusValidated:
		out.Notes = fmt.Sprintf("corroborated by %d sources", len(sources))
	case StatusExpired:
		out.Notes = v.notSeenSince(dep.LastSeen)
	default:
		if len(sources) == 0 {
			out.Notes = "no evidence recorded"
		} else {
			out.Notes = fmt.Sprintf("%d of %d required sources", len(sources), v.cfg.MinSources)
		}
	}
	return out
}

// status: fresh and corroborated is VALIDATED, too old is EXPIRED whatever the
// source count, everything else (never seen included) is PENDING.
func (v *Verifier) status(sources int, lastSeen time.Time) Status {
	if lastSeen.IsZero() {
		return StatusPending
	}
	if v.now().Sub(lastSeen) > v.cfg.FreshnessWindow {
		return StatusExpired
	}
	if sources >= v.cfg.MinSources {
		return StatusValidated
	}
	return StatusPending
}

// correctness needs both the source count and the confidence to agree.
func (v *Verifier) correctness(sources int, confidence float64) Correctness {
	switch {
	case sources >= v.cfg.MinSources && confidence > v.cfg.HighConfidence:
		return Correct
	case sources <= 1 && confidence < v.cfg.LowConfidence:
		return Incorrect
	}
	return Unknown
}

func (v *Verifier) notSeenSince(lastSeen time.Time) string {
	days := int(v.now().Sub(lastSeen).Hours() / 24)
	return fmt.Sprintf("not seen since %s (%d days)", lastSeen.UTC().Format(time.RFC3339), days)
}

// CrossValidate looks up source -> target and classifies it. An edge the store
// does not know is PENDING with no sources and an unknown verdict.
func (v *Verifier) CrossValidate(ctx context.Context, sourceID, targetID string) (Verification, error) {
	ctx, span := otel.Tracer("faultline/verify").Start(ctx, "CrossValidate")
	defer span.End()

	dep, ok, err := v.store.GetDependency(ctx, sourceID, targetID)
	if err != nil {
		span.RecordError(err)
		return Verification{}, fmt.Errorf("lookup %s -> %s: %w", sourceID, targetID, err)
	}
	if !ok {
		return Verification{
			SourceID:        sourceID,
			TargetID:        targetID,
			EvidenceSources: []string{},
			Status:          StatusPending,
			IsCorrect:       Unknown,
			Notes:           "no evidence found",
		}, nil
	}

	out := v.Classify(dep)
	span.SetAttributes(
		attribute.String("status", string(out.Status)),
		attribute.Int("sources", len(out.EvidenceSources)),
	)
	return out, nil
}

// ApplyConfidenceDecay multiplies the confidence of every edge not re-confirmed
// within daysThreshold by (1 - rate). It returns the number of edges written.
// A zero rate writes nothing.
func (v *Verifier) ApplyConfidenceDecay(ctx context.Context, rate float64, daysThreshold int) (int, error) {
	ctx, span := otel.Tracer("faultline/verify").Start(ctx, "ApplyConfidenceDecay")
	defer span.End()

	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return 0, fmt.Errorf("decay rate %v outside [0,1]", rate)
	}
	if daysThreshold < 0 {
		daysThreshold = 0
	}

	deps, err := v.store.ListDependencies(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list dependencies: %w", err)
	}

	cutoff := v.now().Add(-time.Duration(daysThreshold) * 24 * time.Hour)
	updated := 0
	for _, dep := range deps {
		if !dep.LastSeen.IsZero() && dep.LastSeen.After(cutoff) {
			continue
		}
		next := resource.ClampUnit(dep.Confidence * (1 - rate))
		if next == dep.Confidence {
			continue
		}
		if err := v.store.UpdateConfidence(ctx, dep.SourceID, dep.TargetID, next); err != nil {
			span.RecordError(err)
			return updated, fmt.Errorf("decay %s -> %s: %w", dep.SourceID, dep.TargetID, err)
		}
		updated++
	}

	span.SetAttributes(attribute.Int("updated", updated))
	v.logger.Info("confidence decay applied", "rate", rate, "days_threshold", daysThreshold, "updated", updated)
	return updated, nil
}

// ValidateStaleDependencies lists edges last seen more than maxAgeDays ago, oldest first.
// Edges that were never observed are not stale, they are pending.
func (v *Verifier) ValidateStaleDependencies(ctx context.Context, maxAgeDays int) ([]Verification, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = v.cfg.StaleAfterDays
	}
	deps, err := v.store.ListDependencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}

	cutoff := v.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	out := []Verification{}
	for _, dep := range deps {
		if dep.LastSeen.IsZero() || !dep.LastSeen.Before(cutoff) {
			continue
		}
		ver := v.Classify(dep)
		ver.Status = StatusExpired
		ver.IsCorrect = Incorrect
		ver.Notes = v.notSeenSince(dep.LastSeen)
		out = append(out, ver)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastSeen.Before(*out[j].LastSeen) })
	return out, nil
}

// EdgeReportDetails qualifies an edge accuracy report.
type EdgeReportDetails struct {
	StaleCount  int       `json:"stale_count"`
	Total       int       `json:"total"`
	Since       time.Time `json:"since,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Note        string    `json:"note"`
}

// AccuracyReport summarizes edge verification over a time range.
type AccuracyReport struct {
	ValidatedCount int               `json:"validated_count"`
	PendingCount   int               `json:"pending_count"`
	Details        EdgeReportDetails `json:"details"`
	Metrics        Metrics           `json:"metrics"`
}

// GetDependencyAccuracyMetrics aggregates edges first seen within timeRange (all edges
// when timeRange <= 0). Validated edges count as true positives and expired ones as
// false positives. Without ground truth there are no negatives, so recall and F1 are 0.
func (v *Verifier) GetDependencyAccuracyMetrics(ctx context.Context, timeRange time.Duration) (AccuracyReport, error) {
	deps, err := v.store.ListDependencies(ctx)
	if err != nil {
		return AccuracyReport{}, fmt.Errorf("list dependencies: %w", err)
	}

	now := v.now()
	var since time.Time
	if timeRange > 0 {
		since = now.Add(-timeRange)
	}

	var r AccuracyReport
	for _, dep := range deps {
		if !since.IsZero() && dep.FirstSeen.Before(since) {
			continue
		}
		r.Details.Total++
		switch v.status(len(dep.Evidence), dep.LastSeen) {
		case StatusValidated:
			r.ValidatedCount++
		case StatusExpired:
			r.Details.StaleCount++
		default:
			r.PendingCount++
		}
	}

	r.Metrics = ComputeMetrics(r.ValidatedCount, 0, r.Details.StaleCount, 0)
	r.Metrics.Recall = 0
	r.Metrics.F1Score = 0
	r.Details.Since = since
	r.Details.GeneratedAt = now
	r.Details.Note = "recall requires labelled ground truth and is not computed for edges"
	return r, nil
}
