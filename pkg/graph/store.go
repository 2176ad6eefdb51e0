package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// The methods below satisfy topology.Store so the in-memory graph can stand in
// for the graph database. They never block on I/O; ctx is honoured only for cancellation.

// ListResources returns every resource with derived dependents/dependency counts.
func (g *Graph) ListResources(ctx context.Context) ([]resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	out := make([]resource.Resource, 0, len(g.Nodes))
	for i := range g.Nodes {
		out = append(out, g.toResource(uint32(i)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetResource looks up a single resource.
func (g *Graph) GetResource(ctx context.Context, id string) (resource.Resource, error) {
	if err := ctx.Err(); err != nil {
		return resource.Resource{}, err
	}
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	idx, ok := g.idMap[id]
	if !ok {
		return resource.Resource{}, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	return g.toResource(idx), nil
}

// AffectedResources splits the dependents of id into direct (distance 1) and indirect.
func (g *Graph) AffectedResources(ctx context.Context, id string) ([]resource.AffectedResource, []resource.AffectedResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	report, err := g.AnalyzeImpact(id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", err, id)
	}
	return report.Direct, report.Indirect, nil
}

// FindCriticalPath adapts CriticalPath to the store contract.
func (g *Graph) FindCriticalPath(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := g.CriticalPath(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, id)
	}
	return path, nil
}

// GetDependency returns a copy of the edge source -> target.
func (g *Graph) GetDependency(ctx context.Context, sourceID, targetID string) (resource.Dependency, bool, error) {
	if err := ctx.Err(); err != nil {
		return resource.Dependency{}, false, err
	}
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	src, ok := g.idMap[sourceID]
	if !ok {
		return resource.Dependency{}, false, nil
	}
	dst, ok := g.idMap[targetID]
	if !ok {
		return resource.Dependency{}, false, nil
	}
	dep, ok := g.deps[edgeKey{src, dst}]
	if !ok {
		return resource.Dependency{}, false, nil
	}
	return dep.Clone(), true, nil
}

// ListDependencies returns copies of every edge, ordered by source then target.
func (g *Graph) ListDependencies(ctx context.Context) ([]resource.Dependency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	out := make([]resource.Dependency, 0, len(g.deps))
	for _, dep := range g.deps {
		out = append(out, dep.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

// UpdateConfidence overwrites the stored confidence of an edge.
// The write happens under the graph lock, so readers see either value, never a mix.
func (g *Graph) UpdateConfidence(ctx context.Context, sourceID, targetID string, confidence float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()

	src, ok := g.idMap[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, sourceID)
	}
	dst, ok := g.idMap[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, targetID)
	}
	dep, ok := g.deps[edgeKey{src, dst}]
	if !ok {
		return fmt.Errorf("%w: edge %s -> %s", ErrResourceNotFound, sourceID, targetID)
	}
	dep.Confidence = resource.ClampUnit(confidence)
	return nil
}

// RecordEvidence merges an observation, creating the edge and nodes if needed.
func (g *Graph) RecordEvidence(ctx context.Context, ev resource.Evidence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.SourceID == "" || ev.TargetID == "" {
		return fmt.Errorf("evidence from %s is missing an endpoint", ev.Source)
	}
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now().UTC()
	}
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.unsafeAddEdge(ev.SourceID, ev.TargetID, EdgeTypeDependsOn, &ev)
	return nil
}
