package graph

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DrSkyle/faultline/pkg/resource"
)

func TestGraph_AutoVivifiesEdgeEndpoints(t *testing.T) {
	g := NewGraph()
	g.AddEdge("orders-api", "orders-db")
	g.AddNode("orders-db", "Database")
	g.CloseAndWait()

	db, ok := g.GetNode("orders-db")
	if !ok {
		t.Fatal("orders-db should exist")
	}
	if db.Type != "database" {
		t.Errorf("Type should be upgraded from unknown, got %s", db.Type)
	}
	api, _ := g.GetNode("orders-api")
	if api.Type != resource.TypeUnknown {
		t.Errorf("Vivified node should be unknown, got %s", api.Type)
	}
}

func TestGraph_DerivedCounts(t *testing.T) {
	g := NewMockFactory().
		AddResource("db", "database", false).
		AddResource("cache", "cache", true).
		FanIn("db", "web_app", 3).
		FanIn("cache", "web_app", 2).
		Build()

	ctx := context.Background()
	db, err := g.GetResource(ctx, "db")
	if err != nil {
		t.Fatal(err)
	}
	if db.DependentsCount != 3 || db.DependencyCount != 0 {
		t.Errorf("Unexpected counts %+v", db)
	}
	if !db.IsSPOF {
		t.Error("db has dependents and no redundancy, it should be a SPOF")
	}

	cache, _ := g.GetResource(ctx, "cache")
	if cache.IsSPOF {
		t.Error("redundant cache should not be a SPOF")
	}

	leaf, _ := g.GetResource(ctx, "db-dep-0")
	if leaf.IsSPOF || leaf.DependencyCount != 1 {
		t.Errorf("leaf should depend on one resource and not be a SPOF: %+v", leaf)
	}

	if _, err := g.GetResource(ctx, "nope"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("Expected ErrResourceNotFound, got %v", err)
	}
}

func TestGraph_SPOFOverride(t *testing.T) {
	no := false
	g := NewGraph()
	g.AddResource(NodeSpec{ID: "db", Type: "database", SPOF: &no})
	g.AddEdge("api", "db")
	g.Sync()

	db, _ := g.GetResource(context.Background(), "db")
	if db.IsSPOF {
		t.Error("explicit is_spof=false must win over derivation")
	}
}

func TestAffectedResources_Distances(t *testing.T) {
	// web -> api -> db, worker -> db, report -> worker
	g := NewMockFactory().
		Chain("service", "db", "api", "web").
		AddResource("worker", "function_app", false).
		AddResource("report", "function_app", false).
		DependsOn("worker", "db").
		DependsOn("report", "worker").
		Build()

	direct, indirect, err := g.AffectedResources(context.Background(), "db")
	if err != nil {
		t.Fatal(err)
	}

	if ids(direct) != "api,worker" {
		t.Errorf("Unexpected direct set %s", ids(direct))
	}
	if ids(indirect) != "report,web" {
		t.Errorf("Unexpected indirect set %s", ids(indirect))
	}
	for _, a := range indirect {
		if a.Distance != 2 {
			t.Errorf("%s should be two hops away, got %d", a.ID, a.Distance)
		}
	}

	direct, indirect, err = g.AffectedResources(context.Background(), "web")
	if err != nil || len(direct) != 0 || len(indirect) != 0 {
		t.Errorf("nothing depends on web: %v %v %v", direct, indirect, err)
	}
}

func TestAffectedResources_MaxHops(t *testing.T) {
	g := NewMockFactory().Chain("service", "a", "b", "c", "d").Build()
	g.MaxHops = 2

	direct, indirect, _ := g.AffectedResources(context.Background(), "a")
	if len(direct)+len(indirect) != 2 {
		t.Errorf("Expected traversal to stop after 2 hops, got %v %v", direct, indirect)
	}
}

func TestCriticalPath_LongestChain(t *testing.T) {
	// db <- api <- web <- cdn ; db <- worker
	g := NewMockFactory().
		Chain("service", "db", "api", "web", "cdn").
		AddResource("worker", "service", false).
		DependsOn("worker", "db").
		Build()

	path, err := g.FindCriticalPath(context.Background(), "db")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(path, []string{"db", "api", "web", "cdn"}) {
		t.Errorf("Unexpected critical path %v", path)
	}

	// A shortcut edge does not shorten the longest chain.
	g.AddEdge("cdn", "db")
	g.Sync()
	path, _ = g.FindCriticalPath(context.Background(), "db")
	if len(path) != 4 {
		t.Errorf("Expected 4-element path, got %v", path)
	}
}

func TestCriticalPath_CycleFallsBackToBFS(t *testing.T) {
	g := NewGraph()
	g.AddEdge("b", "a")
	g.AddEdge("c", "b")
	g.AddEdge("b", "c")
	g.Sync()

	path, err := g.CriticalPath("a")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(path, []string{"a", "b", "c"}) {
		t.Errorf("Unexpected path %v", path)
	}
}

func TestCriticalPath_Isolated(t *testing.T) {
	g := NewMockFactory().AddResource("solo", "vnet", false).Build()

	path, err := g.CriticalPath("solo")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(path, []string{"solo"}) {
		t.Errorf("Expected [solo], got %v", path)
	}
}

func TestDependencies_EvidenceAndConfidence(t *testing.T) {
	ctx := context.Background()
	g := NewMockFactory().
		Observe("api", "db", resource.SourceInfrastructure, 0.5, time.Hour).
		Observe("api", "db", resource.SourceMetrics, 0.5, 2*time.Hour).
		Build()

	dep, ok, err := g.GetDependency(ctx, "api", "db")
	if err != nil || !ok {
		t.Fatalf("edge should exist: %v", err)
	}
	if len(dep.Sources()) != 2 {
		t.Errorf("Expected 2 sources, got %v", dep.Sources())
	}
	if dep.Confidence != 0.75 {
		t.Errorf("Expected noisy-or confidence 0.75, got %f", dep.Confidence)
	}

	if err := g.UpdateConfidence(ctx, "api", "db", 0.3); err != nil {
		t.Fatal(err)
	}
	dep, _, _ = g.GetDependency(ctx, "api", "db")
	if dep.Confidence != 0.3 {
		t.Errorf("Expected 0.3 after update, got %f", dep.Confidence)
	}

	if err := g.UpdateConfidence(ctx, "db", "api", 0.3); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("reverse edge does not exist, got %v", err)
	}

	if _, ok, _ := g.GetDependency(ctx, "ghost", "db"); ok {
		t.Error("unknown source should not resolve")
	}
}

func TestRecordEvidence_CreatesEdge(t *testing.T) {
	ctx := context.Background()
	g := NewGraph()
	g.CloseAndWait()

	err := g.RecordEvidence(ctx, resource.Evidence{Source: resource.SourceTrace, SourceID: "checkout", TargetID: "payments", Confidence: 0.9})
	if err != nil {
		t.Fatal(err)
	}

	deps, _ := g.ListDependencies(ctx)
	if len(deps) != 1 || deps[0].LastSeen.IsZero() {
		t.Fatalf("Expected one freshly seen edge, got %+v", deps)
	}

	if err := g.RecordEvidence(ctx, resource.Evidence{Source: resource.SourceTrace, SourceID: "checkout"}); err == nil {
		t.Error("evidence without a target should be rejected")
	}
}

func TestSummarize(t *testing.T) {
	g := NewMockFactory().
		FanIn("db", "service", 2).
		AddResource("db", "database", false).
		AddResource("island", "vnet", false).
		Build()

	s := g.Summarize()
	if s.Resources != 4 || s.Dependencies != 2 || s.FailureDomains != 2 || s.SPOFCandidates != 1 {
		t.Errorf("Unexpected summary %+v", s)
	}
}

func ids(list []resource.AffectedResource) string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return strings.Join(out, ",")
}

func TestGraph_WritesRacingCloseDoNotPanic(t *testing.T) {
	for round := 0; round < 20; round++ {
		g := NewGraph()
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					g.AddNode(fmt.Sprintf("n-%d-%d", w, i), "database")
					g.AddEdge(fmt.Sprintf("n-%d-%d", w, i), "shared")
					if i%50 == 0 {
						g.Sync()
					}
				}
			}(w)
		}
		g.CloseAndWait()
		wg.Wait()

		// Writes after close are dropped.
		g.AddNode("late", "cache")
		g.Sync()
		if _, ok := g.GetNode("late"); ok {
			t.Fatal("write after CloseAndWait must be dropped")
		}
	}
}
