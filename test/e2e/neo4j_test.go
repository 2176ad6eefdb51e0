//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/DrSkyle/faultline/internal/app"
	"github.com/DrSkyle/faultline/pkg/config"
	"github.com/DrSkyle/faultline/pkg/engine/verify"
	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/resource"
	"github.com/DrSkyle/faultline/pkg/topology"
)

const fixtureYAML = `
resources:
  - {id: gateway, type: api_gateway}
  - {id: checkout, type: web_app}
  - {id: billing, type: web_app}
  - {id: orders-db, type: database}
  - {id: cache, type: cache, has_redundancy: true}
dependencies:
  - {source: gateway, target: checkout}
  - {source: gateway, target: billing}
  - source: checkout
    target: orders-db
    evidence:
      - {source: infrastructure-topology, confidence: 0.9, seen_at: 2024-03-04T09:00:00Z}
      - {source: trace, confidence: 0.8, seen_at: 2024-03-04T09:30:00Z}
  - {source: billing, target: orders-db}
  - {source: checkout, target: cache}
`

func openNeo4j(t *testing.T) *topology.Neo4jStore {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default().Topology.Neo4j
	cfg.URI = neo4jURI
	cfg.Username = "neo4j"
	cfg.Password = neo4jPassword

	store, err := topology.NewNeo4jStore(ctx, cfg, topology.WithNeo4jLogger(quiet()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	var fx graph.Fixture
	require.NoError(t, yaml.Unmarshal([]byte(fixtureYAML), &fx))
	require.NoError(t, store.ImportFixture(ctx, fx))
	return store
}

func TestNeo4jTopology(t *testing.T) {
	ctx := context.Background()
	store := openNeo4j(t)

	r, err := store.GetResource(ctx, "orders-db")
	require.NoError(t, err)
	assert.Equal(t, resource.Type("database"), r.Type)
	assert.Equal(t, 2, r.DependentsCount)

	_, err = store.GetResource(ctx, "nope")
	assert.ErrorIs(t, err, topology.ErrNotFound)

	direct, indirect, err := store.AffectedResources(ctx, "orders-db")
	require.NoError(t, err)
	assert.Len(t, direct, 2)
	assert.Len(t, indirect, 1)

	path, err := store.FindCriticalPath(ctx, "orders-db")
	require.NoError(t, err)
	assert.Equal(t, "orders-db", path[0])
	assert.Equal(t, "gateway", path[len(path)-1])
}

func TestNeo4jScanAndVerify(t *testing.T) {
	ctx := context.Background()
	store := openNeo4j(t)

	cfg := config.Default()
	cfg.History.Backend = "none"
	a, err := app.New(ctx, &cfg, app.WithStore(store), app.WithLogger(quiet()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	snap, _, err := a.Monitor.Scan(ctx)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, e := range snap.SPOFs {
		ids[e.ResourceID] = true
	}
	assert.True(t, ids["orders-db"])
	assert.False(t, ids["cache"])

	v, err := a.Verifier.CrossValidate(ctx, "checkout", "orders-db")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{resource.SourceInfrastructure, resource.SourceTrace}, v.EvidenceSources)

	require.NoError(t, store.RecordEvidence(ctx, resource.Evidence{
		Source:     resource.SourceMetrics,
		SourceID:   "billing",
		TargetID:   "orders-db",
		Confidence: 0.6,
		DetectedAt: time.Now(),
	}))
	dep, ok, err := store.GetDependency(ctx, "billing", "orders-db")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"metrics"}, dep.Sources())

	stale, err := a.Verifier.ValidateStaleDependencies(ctx, 30)
	require.NoError(t, err)
	for _, s := range stale {
		assert.NotEqual(t, verify.StatusPending, s.Status)
	}
}
