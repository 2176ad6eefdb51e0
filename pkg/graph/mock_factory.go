package graph

import (
	"fmt"
	"time"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// MockFactory constructs topology scenarios for tests and demos.
type MockFactory struct {
	Graph *Graph
}

func NewMockFactory() *MockFactory {
	return &MockFactory{
		Graph: NewGraph(),
	}
}

// AddResource adds a node of the given type.
func (m *MockFactory) AddResource(id, resourceType string, redundant bool) *MockFactory {
	m.Graph.AddResource(NodeSpec{ID: id, Name: id, Type: resourceType, HasRedundancy: redundant})
	return m
}

// DependsOn adds "source depends on target".
func (m *MockFactory) DependsOn(source, target string) *MockFactory {
	m.Graph.AddEdge(source, target)
	return m
}

// Observe records evidence for source -> target seen `age` ago.
func (m *MockFactory) Observe(source, target, evidenceSource string, confidence float64, age time.Duration) *MockFactory {
	m.Graph.AddEvidence(resource.Evidence{
		Source:     evidenceSource,
		SourceID:   source,
		TargetID:   target,
		Confidence: confidence,
		DetectedAt: time.Now().Add(-age),
	})
	return m
}

// FanIn makes n resources of dependentType depend on target.
func (m *MockFactory) FanIn(target, dependentType string, n int) *MockFactory {
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-dep-%d", target, i)
		m.AddResource(id, dependentType, false)
		m.DependsOn(id, target)
	}
	return m
}

// Chain builds ids[0] <- ids[1] <- ... so each id depends on its predecessor.
func (m *MockFactory) Chain(resourceType string, ids ...string) *MockFactory {
	for i, id := range ids {
		m.AddResource(id, resourceType, false)
		if i > 0 {
			m.DependsOn(id, ids[i-1])
		}
	}
	return m
}

// Build flushes the builder and returns the graph.
func (m *MockFactory) Build() *Graph {
	m.Graph.Sync()
	return m.Graph
}
