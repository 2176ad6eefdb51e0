// Package accuracy records failure predictions and scores them once the real
// outcome is known.
package accuracy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DrSkyle/faultline/pkg/engine/verify"
)

var (
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrInvalidPrediction  = errors.New("invalid prediction")
	ErrInvalidOutcome     = errors.New("invalid outcome")
)

// FailureThreshold: a probability at or above it predicts a failure.
const FailureThreshold = 0.5

type Outcome string

const (
	OutcomeFailed    Outcome = "failed"
	OutcomeNoFailure Outcome = "no_failure"
)

func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "failed", "failure":
		return OutcomeFailed, nil
	case "no_failure", "no-failure", "ok":
		return OutcomeNoFailure, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

type OutcomeType string

const (
	TruePositive  OutcomeType = "TRUE_POSITIVE"
	FalsePositive OutcomeType = "FALSE_POSITIVE"
	TrueNegative  OutcomeType = "TRUE_NEGATIVE"
	FalseNegative OutcomeType = "FALSE_NEGATIVE"
)

// Classify compares a predicted probability with what happened.
func Classify(probability float64, actual Outcome) OutcomeType {
	predicted := probability >= FailureThreshold
	failed := actual == OutcomeFailed
	switch {
	case predicted && failed:
		return TruePositive
	case predicted:
		return FalsePositive
	case failed:
		return FalseNegative
	default:
		return TrueNegative
	}
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
)

type Prediction struct {
	ID                 string      `json:"id" dynamodbav:"id"`
	ResourceID         string      `json:"resource_id" dynamodbav:"resource_id"`
	FailureProbability float64     `json:"failure_probability" dynamodbav:"failure_probability"`
	Model              string      `json:"model,omitempty" dynamodbav:"model,omitempty"`
	Horizon            string      `json:"horizon,omitempty" dynamodbav:"horizon,omitempty"`
	Notes              string      `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	Status             Status      `json:"status" dynamodbav:"status"`
	CreatedAt          time.Time   `json:"created_at" dynamodbav:"created_at"`
	ActualOutcome      Outcome     `json:"actual_outcome,omitempty" dynamodbav:"outcome,omitempty"`
	OutcomeType        OutcomeType `json:"outcome_type,omitempty" dynamodbav:"outcome_type,omitempty"`
	ValidatedAt        *time.Time  `json:"validated_at,omitempty" dynamodbav:"validated_at,omitempty"`
}

// PredictedFailure reports whether the prediction called a failure.
func (p Prediction) PredictedFailure() bool {
	return p.FailureProbability >= FailureThreshold
}

// Input is what a caller supplies to RecordPrediction.
type Input struct {
	ResourceID         string  `json:"resource_id" validate:"required"`
	FailureProbability float64 `json:"failure_probability" validate:"gte=0,lte=1"`
	Model              string  `json:"model,omitempty"`
	Horizon            string  `json:"horizon,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// Filter narrows List and metric queries. Zero values match everything.
type Filter struct {
	ResourceID string
	Since      time.Time
	Status     Status
}

func (f Filter) Match(p Prediction) bool {
	if f.ResourceID != "" && p.ResourceID != f.ResourceID {
		return false
	}
	if !f.Since.IsZero() && p.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	return true
}

// Store persists predictions. Get returns ErrPredictionNotFound for unknown ids.
type Store interface {
	Put(ctx context.Context, p Prediction) error
	Get(ctx context.Context, id string) (Prediction, error)
	List(ctx context.Context, f Filter) ([]Prediction, error)
}

// Report aggregates validated predictions.
type Report struct {
	ValidatedCount int            `json:"validated_count"`
	PendingCount   int            `json:"pending_count"`
	Details        ReportDetails  `json:"details"`
	Metrics        verify.Metrics `json:"metrics"`
}

type ReportDetails struct {
	Total       int            `json:"total"`
	ByModel     map[string]int `json:"by_model,omitempty"`
	Since       time.Time      `json:"since,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type Tracker struct {
	store  Store
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type Option func(*Tracker)

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(t *Tracker) { t.newID = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, now: time.Now, newID: uuid.NewString, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordPrediction stores a pending prediction under a fresh id.
// Out-of-range probabilities are clamped into [0,1].
func (t *Tracker) RecordPrediction(ctx context.Context, in Input) (Prediction, error) {
	if strings.TrimSpace(in.ResourceID) == "" {
		return Prediction{}, fmt.Errorf("%w: resource id is required", ErrInvalidPrediction)
	}
	prob := in.FailureProbability
	if math.IsNaN(prob) {
		return Prediction{}, fmt.Errorf("%w: failure probability is NaN", ErrInvalidPrediction)
	}
	prob = math.Max(0, math.Min(1, prob))

	p := Prediction{
		ID:                 t.newID(),
		ResourceID:         in.ResourceID,
		FailureProbability: prob,
		Model:              in.Model,
		Horizon:            in.Horizon,
		Notes:              in.Notes,
		Status:             StatusPending,
		CreatedAt:          t.now().UTC(),
	}
	if err := t.store.Put(ctx, p); err != nil {
		return Prediction{}, fmt.Errorf("store prediction: %w", err)
	}
	t.logger.Debug("prediction recorded", "prediction_id", p.ID, "resource_id", p.ResourceID, "probability", prob)
	return p, nil
}

// ValidatePrediction attaches the observed outcome. Validating again replaces the
// earlier outcome.
func (t *Tracker) ValidatePrediction(ctx context.Context, id string, actual Outcome) (Prediction, error) {
	if actual != OutcomeFailed && actual != OutcomeNoFailure {
		return Prediction{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, actual)
	}
	p, err := t.store.Get(ctx, id)
	if err != nil {
		return Prediction{}, err
	}

	at := t.now().UTC()
	p.ActualOutcome = actual
	p.OutcomeType = Classify(p.FailureProbability, actual)
	p.Status = StatusValidated
	p.ValidatedAt = &at

	if err := t.store.Put(ctx, p); err != nil {
		return Prediction{}, fmt.Errorf("store prediction: %w", err)
	}
	t.logger.Info("prediction validated", "prediction_id", id, "outcome", p.OutcomeType)
	return p, nil
}

// GetAccuracyMetrics scores validated predictions matching f. With nothing
// validated every ratio is 0.
func (t *Tracker) GetAccuracyMetrics(ctx context.Context, f Filter) (Report, error) {
	f.Status = ""
	preds, err := t.store.List(ctx, f)
	if err != nil {
		return Report{}, fmt.Errorf("list predictions: %w", err)
	}

	var tp, tn, fp, fn int
	r := Report{Details: ReportDetails{Total: len(preds), Since: f.Since, GeneratedAt: t.now().UTC()}}
	for _, p := range preds {
		if p.Status != StatusValidated {
			r.PendingCount++
			continue
		}
		r.ValidatedCount++
		if p.Model != "" {
			if r.Details.ByModel == nil {
				r.Details.ByModel = map[string]int{}
			}
			r.Details.ByModel[p.Model]++
		}
		switch p.OutcomeType {
		case TruePositive:
			tp++
		case TrueNegative:
			tn++
		case FalsePositive:
			fp++
		case FalseNegative:
			fn++
		}
	}
	r.Metrics = verify.ComputeMetrics(tp, tn, fp, fn)
	return r, nil
}

// ListPredictions returns predictions matching f, newest first.
func (t *Tracker) ListPredictions(ctx context.Context, f Filter) ([]Prediction, error) {
	preds, err := t.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].CreatedAt.After(preds[j].CreatedAt) })
	return preds, nil
}
