package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/resource"
)

type staticSource struct {
	name string
	ev   []resource.Evidence
	err  error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Collect(context.Context) ([]resource.Evidence, error) {
	return s.ev, s.err
}

func TestCollector_RecordsFromAllSources(t *testing.T) {
	g := graph.NewGraph()
	c := NewCollector(g, []Source{
		staticSource{name: resource.SourceTrace, ev: []resource.Evidence{
			{SourceID: "api", TargetID: "db", Confidence: 0.7},
			{SourceID: "api", TargetID: "cache", Confidence: 0.5},
		}},
		staticSource{name: resource.SourceCodeScan, ev: []resource.Evidence{
			{SourceID: "api", TargetID: "db", Confidence: 0.6, Items: []string{"main.tf:12"}},
		}},
	})

	res, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{resource.SourceTrace: 2, resource.SourceCodeScan: 1}, res.Recorded)
	assert.Empty(t, res.Failed)

	dep, ok, err := g.GetDependency(context.Background(), "api", "db")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{resource.SourceCodeScan, resource.SourceTrace}, dep.Sources())
	assert.WithinDuration(t, time.Now(), dep.LastSeen, time.Minute)
}

func TestCollector_PartialFailure(t *testing.T) {
	boom := errors.New("prometheus unreachable")
	g := graph.NewGraph()
	c := NewCollector(g, []Source{
		staticSource{name: resource.SourceMetrics, err: boom},
		staticSource{name: resource.SourceTrace, ev: []resource.Evidence{{SourceID: "a", TargetID: "b", Confidence: 0.9}}},
	})

	res, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, ErrPartialCollection)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, res.Failed, resource.SourceMetrics)
	assert.Equal(t, 1, res.Recorded[resource.SourceTrace])

	_, ok, _ := g.GetDependency(context.Background(), "a", "b")
	assert.True(t, ok, "healthy sources are still recorded")
}

func TestCollector_NoSources(t *testing.T) {
	c := NewCollector(graph.NewGraph(), nil)
	res, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Recorded)
	assert.Empty(t, c.Sources())
}
