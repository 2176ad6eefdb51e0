// Package topology defines the contract between the analysis engines and the
// graph-backed topology store, and provides the Neo4j implementation.
package topology

import (
	"context"

	"github.com/DrSkyle/faultline/pkg/graph"
	"github.com/DrSkyle/faultline/pkg/resource"
)

// ErrNotFound is returned for unknown resources and edges.
var ErrNotFound = graph.ErrResourceNotFound

// Store is everything the engines read from, and the few writes they make to, the topology.
type Store interface {
	ListResources(ctx context.Context) ([]resource.Resource, error)
	GetResource(ctx context.Context, id string) (resource.Resource, error)
	AffectedResources(ctx context.Context, id string) (direct, indirect []resource.AffectedResource, err error)
	FindCriticalPath(ctx context.Context, id string) ([]string, error)

	GetDependency(ctx context.Context, sourceID, targetID string) (resource.Dependency, bool, error)
	ListDependencies(ctx context.Context) ([]resource.Dependency, error)
	UpdateConfidence(ctx context.Context, sourceID, targetID string, confidence float64) error
	RecordEvidence(ctx context.Context, ev resource.Evidence) error
}

var (
	_ Store = (*graph.Graph)(nil)
	_ Store = (*Neo4jStore)(nil)
)
