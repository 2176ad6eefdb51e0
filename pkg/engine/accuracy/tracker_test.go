package accuracy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker() *Tracker {
	n := 0
	clock := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	return NewTracker(NewMemoryStore(),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("pred-%03d", n) }),
		WithClock(func() time.Time { clock = clock.Add(time.Minute); return clock }),
	)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		p      float64
		actual Outcome
		want   OutcomeType
	}{
		{0.9, OutcomeFailed, TruePositive},
		{0.5, OutcomeFailed, TruePositive},
		{0.5, OutcomeNoFailure, FalsePositive},
		{0.49, OutcomeNoFailure, TrueNegative},
		{0.1, OutcomeFailed, FalseNegative},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.p, c.actual), "p=%v actual=%s", c.p, c.actual)
	}
}

func TestRecordAndValidate(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	p, err := tr.RecordPrediction(ctx, Input{ResourceID: "orders-db", FailureProbability: 0.72, Model: "baseline"})
	require.NoError(t, err)
	assert.Equal(t, "pred-001", p.ID)
	assert.Equal(t, StatusPending, p.Status)
	assert.True(t, p.PredictedFailure())

	v, err := tr.ValidatePrediction(ctx, p.ID, OutcomeNoFailure)
	require.NoError(t, err)
	assert.Equal(t, FalsePositive, v.OutcomeType)
	assert.Equal(t, StatusValidated, v.Status)
	require.NotNil(t, v.ValidatedAt)

	_, err = tr.ValidatePrediction(ctx, "pred-999", OutcomeFailed)
	assert.ErrorIs(t, err, ErrPredictionNotFound)

	_, err = tr.ValidatePrediction(ctx, p.ID, Outcome("exploded"))
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

func TestRecordPrediction_Input(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()

	_, err := tr.RecordPrediction(ctx, Input{FailureProbability: 0.3})
	assert.ErrorIs(t, err, ErrInvalidPrediction)

	p, err := tr.RecordPrediction(ctx, Input{ResourceID: "x", FailureProbability: 4})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.FailureProbability)

	p, err = tr.RecordPrediction(ctx, Input{ResourceID: "x", FailureProbability: -1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.FailureProbability)
}

func seed(t *testing.T, tr *Tracker, n int, prob float64, actual Outcome) {
	t.Helper()
	for i := 0; i < n; i++ {
		p, err := tr.RecordPrediction(context.Background(), Input{ResourceID: "svc", FailureProbability: prob})
		require.NoError(t, err)
		_, err = tr.ValidatePrediction(context.Background(), p.ID, actual)
		require.NoError(t, err)
	}
}

func TestGetAccuracyMetrics(t *testing.T) {
	tr := newTracker()
	seed(t, tr, 20, 0.9, OutcomeFailed)
	seed(t, tr, 30, 0.1, OutcomeNoFailure)
	seed(t, tr, 5, 0.8, OutcomeNoFailure)
	seed(t, tr, 3, 0.2, OutcomeFailed)
	_, err := tr.RecordPrediction(context.Background(), Input{ResourceID: "svc", FailureProbability: 0.6})
	require.NoError(t, err)

	r, err := tr.GetAccuracyMetrics(context.Background(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, 58, r.ValidatedCount)
	assert.Equal(t, 1, r.PendingCount)
	assert.Equal(t, 59, r.Details.Total)
	assert.Equal(t, 20, r.Metrics.TruePositives)
	assert.Equal(t, 3, r.Metrics.FalseNegatives)
	assert.InDelta(t, 0.80, r.Metrics.Precision, 0.005)
	assert.InDelta(t, 0.87, r.Metrics.Recall, 0.005)
	assert.InDelta(t, 0.86, r.Metrics.Accuracy, 0.005)
}

func TestGetAccuracyMetrics_NothingValidated(t *testing.T) {
	tr := newTracker()
	_, err := tr.RecordPrediction(context.Background(), Input{ResourceID: "svc", FailureProbability: 0.6})
	require.NoError(t, err)

	r, err := tr.GetAccuracyMetrics(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0, r.ValidatedCount)
	assert.Equal(t, 0.0, r.Metrics.Precision)
	assert.Equal(t, 0.0, r.Metrics.Recall)
	assert.Equal(t, 0.0, r.Metrics.Accuracy)
}

func TestListPredictions_Filter(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()
	a, _ := tr.RecordPrediction(ctx, Input{ResourceID: "a", FailureProbability: 0.1})
	b, _ := tr.RecordPrediction(ctx, Input{ResourceID: "b", FailureProbability: 0.1})
	_, _ = tr.ValidatePrediction(ctx, b.ID, OutcomeNoFailure)

	onlyA, err := tr.ListPredictions(ctx, Filter{ResourceID: "a"})
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, a.ID, onlyA[0].ID)

	validated, err := tr.ListPredictions(ctx, Filter{Status: StatusValidated})
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.Equal(t, b.ID, validated[0].ID)

	recent, err := tr.ListPredictions(ctx, Filter{Since: b.CreatedAt})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	all, err := tr.ListPredictions(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, b.ID, all[0].ID, "newest first")
}

func TestParseOutcome(t *testing.T) {
	o, err := ParseOutcome(" FAILED ")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, o)

	_, err = ParseOutcome("maybe")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}
