package verify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/resource"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newVerifier(store EdgeStore) *Verifier {
	return New(store, config.DefaultVerifierConfig(), WithClock(func() time.Time { return now }))
}

func edge(confidence float64, lastSeen time.Time, sources ...string) resource.Dependency {
	d := resource.Dependency{SourceID: "api", TargetID: "db", Confidence: confidence, LastSeen: lastSeen}
	if len(sources) > 0 {
		d.Evidence = map[string]resource.SourceEvidence{}
		for _, s := range sources {
			d.Evidence[s] = resource.SourceEvidence{Confidence: confidence, DetectedAt: lastSeen}
		}
	}
	return d
}

func TestClassify_Correctness(t *testing.T) {
	v := newVerifier(nil)
	fresh := now.Add(-time.Hour)

	cases := []struct {
		name string
		dep  resource.Dependency
		want Correctness
	}{
		{"three strong sources", edge(0.85, fresh, "trace", "metrics", "code-scan"), Correct},
		{"one weak source", edge(0.35, fresh, "trace"), Incorrect},
		{"one middling source", edge(0.6, fresh, "trace"), Unknown},
		{"many sources low confidence", edge(0.3, fresh, "trace", "metrics"), Unknown},
		{"one source high confidence", edge(0.95, fresh, "trace"), Unknown},
		{"exactly high threshold", edge(0.8, fresh, "trace", "metrics"), Unknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, v.Classify(c.dep).IsCorrect, c.name)
	}
}

func TestClassify_Status(t *testing.T) {
	v := newVerifier(nil)

	validated := v.Classify(edge(0.9, now, "trace", "metrics"))
	assert.Equal(t, StatusValidated, validated.Status)
	assert.Equal(t, []string{"metrics", "trace"}, validated.EvidenceSources)

	expired := v.Classify(edge(0.9, now.Add(-10*24*time.Hour), "trace"))
	assert.Equal(t, StatusExpired, expired.Status)
	assert.Contains(t, expired.Notes, "not seen since")

	expiredMany := v.Classify(edge(0.9, now.Add(-10*24*time.Hour), "trace", "metrics", "code-scan"))
	assert.Equal(t, StatusExpired, expiredMany.Status)

	pending := v.Classify(edge(0, time.Time{}))
	assert.Equal(t, StatusPending, pending.Status)
	assert.Empty(t, pending.EvidenceSources)
	assert.Nil(t, pending.LastSeen)

	single := v.Classify(edge(0.9, now, "trace"))
	assert.Equal(t, StatusPending, single.Status)
}

func TestCrossValidate(t *testing.T) {
	g := graph.NewMockFactory().
		AddResource("api", "api_gateway", false).
		AddResource("db", "database", false).
		Observe("api", "db", resource.SourceTrace, 0.7, time.Hour).
		Observe("api", "db", resource.SourceCodeScan, 0.6, 2*time.Hour).
		Build()
	v := New(g, config.DefaultVerifierConfig())

	got, err := v.CrossValidate(context.Background(), "api", "db")
	require.NoError(t, err)
	assert.Equal(t, StatusValidated, got.Status)
	assert.Equal(t, Correct, got.IsCorrect)
	assert.InDelta(t, 0.88, got.DetectedConfidence, 1e-9)

	missing, err := v.CrossValidate(context.Background(), "db", "api")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, missing.Status)
	assert.Equal(t, 0.0, missing.DetectedConfidence)
	assert.NotNil(t, missing.EvidenceSources)
	assert.Empty(t, missing.EvidenceSources)
	assert.Equal(t, Unknown, missing.IsCorrect)
}

func TestCrossValidate_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	v := newVerifier(failingStore{err: boom})

	_, err := v.CrossValidate(context.Background(), "a", "b")
	assert.ErrorIs(t, err, boom)
}

func decayGraph() *graph.Graph {
	return graph.NewMockFactory().
		AddResource("api", "api_gateway", false).
		AddResource("db", "database", false).
		AddResource("cache", "cache", false).
		AddResource("queue", "queue", false).
		Observe("api", "db", resource.SourceTrace, 0.6, time.Hour).
		Observe("api", "cache", resource.SourceMetrics, 0.6, 20*24*time.Hour).
		Observe("api", "queue", resource.SourceCodeScan, 0.5, 40*24*time.Hour).
		DependsOn("db", "queue").
		Build()
}

func TestApplyConfidenceDecay(t *testing.T) {
	g := decayGraph()
	v := New(g, config.DefaultVerifierConfig())
	ctx := context.Background()

	n, err := v.ApplyConfidenceDecay(ctx, 0.1, 14)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fresh, _, _ := g.GetDependency(ctx, "api", "db")
	old, _, _ := g.GetDependency(ctx, "api", "cache")
	assert.InDelta(t, 0.6, fresh.Confidence, 1e-9)
	assert.InDelta(t, 0.54, old.Confidence, 1e-9)

	n, err = v.ApplyConfidenceDecay(ctx, 0, 14)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	again, _, _ := g.GetDependency(ctx, "api", "cache")
	assert.InDelta(t, 0.54, again.Confidence, 1e-9)

	_, err = v.ApplyConfidenceDecay(ctx, 1.5, 14)
	assert.Error(t, err)
}

func TestValidateStaleDependencies(t *testing.T) {
	v := New(decayGraph(), config.DefaultVerifierConfig())

	stale, err := v.ValidateStaleDependencies(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, stale, 2)

	assert.Equal(t, "queue", stale[0].TargetID)
	assert.Equal(t, "cache", stale[1].TargetID)
	for _, s := range stale {
		assert.Equal(t, StatusExpired, s.Status)
		assert.Equal(t, Incorrect, s.IsCorrect)
		assert.Contains(t, s.Notes, "not seen since")
	}

	none, err := v.ValidateStaleDependencies(context.Background(), 90)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestGetDependencyAccuracyMetrics(t *testing.T) {
	g := graph.NewMockFactory().
		Observe("a", "b", resource.SourceTrace, 0.9, time.Hour).
		Observe("a", "b", resource.SourceMetrics, 0.9, time.Hour).
		Observe("c", "d", resource.SourceTrace, 0.9, time.Hour).
		Observe("c", "d", resource.SourceCodeScan, 0.9, time.Hour).
		Observe("e", "f", resource.SourceTrace, 0.9, 30*24*time.Hour).
		Observe("g", "h", resource.SourceTrace, 0.9, time.Hour).
		Build()
	v := New(g, config.DefaultVerifierConfig())

	all, err := v.GetDependencyAccuracyMetrics(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, all.ValidatedCount)
	assert.Equal(t, 1, all.PendingCount)
	assert.Equal(t, 1, all.Details.StaleCount)
	assert.Equal(t, 4, all.Details.Total)
	assert.InDelta(t, 0.6667, all.Metrics.Precision, 1e-4)
	assert.Equal(t, 0.0, all.Metrics.Recall)

	recent, err := v.GetDependencyAccuracyMetrics(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, recent.Details.Total)
	assert.Equal(t, 0, recent.Details.StaleCount)
	assert.Equal(t, 1.0, recent.Metrics.Precision)

	empty, err := New(graph.NewGraph(), config.DefaultVerifierConfig()).GetDependencyAccuracyMetrics(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, empty.Metrics.Precision)
}

func TestCorrectness_JSON(t *testing.T) {
	b, err := json.Marshal(Verification{SourceID: "a", TargetID: "b", Status: StatusPending})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"is_correct":null`)

	var back Verification
	require.NoError(t, json.Unmarshal([]byte(`{"is_correct":false}`), &back))
	assert.Equal(t, Incorrect, back.IsCorrect)
	v, ok := back.IsCorrect.Bool()
	assert.True(t, ok)
	assert.False(t, v)

	assert.Error(t, json.Unmarshal([]byte(`{"is_correct":"maybe"}`), &back))
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(20, 30, 5, 3)
	assert.InDelta(t, 0.80, m.Precision, 0.005)
	assert.InDelta(t, 0.87, m.Recall, 0.005)
	assert.InDelta(t, 0.86, m.Accuracy, 0.005)
	assert.InDelta(t, 0.833, m.F1Score, 0.005)
	assert.Equal(t, 58, m.Total())

	zero := ComputeMetrics(0, 0, 0, 0)
	assert.Equal(t, 0.0, zero.Precision)
	assert.Equal(t, 0.0, zero.Recall)
	assert.Equal(t, 0.0, zero.Accuracy)
	assert.Equal(t, 0.0, zero.F1Score)
}

type failingStore struct{ err error }

func (f failingStore) GetDependency(context.Context, string, string) (resource.Dependency, bool, error) {
	return resource.Dependency{}, false, f.err
}

func (f failingStore) ListDependencies(context.Context) ([]resource.Dependency, error) {
	return nil, f.err
}

func (f failingStore) UpdateConfidence(context.Context, string, string, float64) error {
	return f.err
}
