// Package graph is the in-memory topology store: resources as nodes,
// "depends on" relations as edges, evidence and confidence on each edge.
package graph

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// ErrResourceNotFound is returned for ids the graph has never seen.
var ErrResourceNotFound = errors.New("resource not found")

type EdgeType string

const (
	EdgeTypeDependsOn EdgeType = "DependsOn"
	EdgeTypeUnknown   EdgeType = "Unknown"
)

// Edge is an adjacency entry. Edge attributes live in Graph.deps.
type Edge struct {
	TargetID uint32
	Type     EdgeType
}

type Node struct {
	Index         uint32
	ID            string
	Name          string
	Type          resource.Type
	Properties    map[string]string
	HasRedundancy bool
	// SPOF overrides the derived single-point-of-failure flag when set.
	SPOF          *bool
	FailureRate   float64
	LastChangedAt time.Time
}

// NodeSpec describes a resource to upsert.
type NodeSpec struct {
	ID            string
	Name          string
	Type          string
	Properties    map[string]string
	HasRedundancy bool
	SPOF          *bool
	FailureRate   float64
	LastChangedAt time.Time
}

type opKind int

const (
	opNode opKind = iota
	opEdge
	opBarrier
)

type GraphOp struct {
	Kind     opKind
	Node     NodeSpec
	SourceID string
	TargetID string
	EdgeType EdgeType
	Evidence *resource.Evidence
	done     chan struct{}
}

type edgeKey struct {
	src, dst uint32
}

type Graph struct {
	Mu           sync.RWMutex
	Nodes        []*Node
	Edges        [][]Edge
	ReverseEdges [][]Edge
	idMap        map[string]uint32
	deps         map[edgeKey]*resource.Dependency

	// MaxHops bounds affected-resource traversal. Zero means unbounded.
	MaxHops int

	// Pipeline Architecture
	opChan    chan GraphOp
	buildDone chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	// sendMu orders queue sends before close(opChan).
	sendMu sync.RWMutex
}

func NewGraph() *Graph {
	g := &Graph{
		Nodes:        make([]*Node, 0, 256),
		Edges:        make([][]Edge, 0, 256),
		ReverseEdges: make([][]Edge, 0, 256),
		idMap:        make(map[string]uint32),
		deps:         make(map[edgeKey]*resource.Dependency),
		opChan:       make(chan GraphOp, 10000),
		buildDone:    make(chan struct{}),
	}

	// Single-threaded builder (the actor).
	g.StartBuilder()
	return g
}

func (g *Graph) StartBuilder() {
	go func() {
		defer close(g.buildDone)
		for op := range g.opChan {
			if op.Kind == opBarrier {
				close(op.done)
				continue
			}
			g.Mu.Lock()
			switch op.Kind {
			case opNode:
				g.unsafeAddNode(op.Node)
			case opEdge:
				g.unsafeAddEdge(op.SourceID, op.TargetID, op.EdgeType, op.Evidence)
			}
			g.Mu.Unlock()
		}
	}()
}

// enqueue hands op to the builder. It reports false once the pipeline is sealed.
func (g *Graph) enqueue(op GraphOp) bool {
	g.sendMu.RLock()
	defer g.sendMu.RUnlock()
	if g.closed.Load() {
		return false
	}
	g.opChan <- op
	return true
}

// Sync blocks until every operation queued before the call has been applied.
func (g *Graph) Sync() {
	done := make(chan struct{})
	if !g.enqueue(GraphOp{Kind: opBarrier, done: done}) {
		return
	}
	<-done
}

// CloseAndWait seals the ingestion pipeline and waits for the builder to finish.
// Direct writes (RecordEvidence, UpdateConfidence) remain available afterwards.
func (g *Graph) CloseAndWait() {
	g.closeOnce.Do(func() {
		g.sendMu.Lock()
		g.closed.Store(true)
		close(g.opChan)
		g.sendMu.Unlock()
	})
	<-g.buildDone
}

// AddResource queues a node upsert.
func (g *Graph) AddResource(spec NodeSpec) {
	if spec.ID == "" {
		return
	}
	g.enqueue(GraphOp{Kind: opNode, Node: spec})
}

// AddNode is shorthand for AddResource with only id and type.
func (g *Graph) AddNode(id, resourceType string) {
	g.AddResource(NodeSpec{ID: id, Type: resourceType})
}

// AddEdge queues "sourceID depends on targetID" without evidence.
func (g *Graph) AddEdge(sourceID, targetID string) {
	g.AddTypedEdge(sourceID, targetID, EdgeTypeDependsOn)
}

func (g *Graph) AddTypedEdge(sourceID, targetID string, edgeType EdgeType) {
	if sourceID == "" || targetID == "" {
		return
	}
	g.enqueue(GraphOp{Kind: opEdge, SourceID: sourceID, TargetID: targetID, EdgeType: edgeType})
}

// AddEvidence queues an edge observation.
func (g *Graph) AddEvidence(ev resource.Evidence) {
	if ev.SourceID == "" || ev.TargetID == "" {
		return
	}
	g.enqueue(GraphOp{Kind: opEdge, SourceID: ev.SourceID, TargetID: ev.TargetID, EdgeType: EdgeTypeDependsOn, Evidence: &ev})
}

// GetID returns the internal integer ID for a given resource id.
func (g *Graph) GetID(id string) (uint32, bool) {
	g.Mu.RLock()
	idx, ok := g.idMap[id]
	g.Mu.RUnlock()
	return idx, ok
}

// GetNode returns a copy of the node for a given resource id.
func (g *Graph) GetNode(id string) (Node, bool) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()
	idx, ok := g.idMap[id]
	if !ok {
		return Node{}, false
	}
	return *g.Nodes[idx], true
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.Mu.RLock()
	defer g.Mu.RUnlock()
	return len(g.Nodes)
}

func (g *Graph) unsafeAddNode(spec NodeSpec) {
	t := resource.NormalizeType(spec.Type)
	idx, exists := g.idMap[spec.ID]
	if !exists {
		idx = g.unsafeVivify(spec.ID)
	}
	node := g.Nodes[idx]
	if t != resource.TypeUnknown {
		node.Type = t
	}
	if spec.Name != "" {
		node.Name = spec.Name
	}
	for k, v := range spec.Properties {
		if node.Properties == nil {
			node.Properties = make(map[string]string)
		}
		node.Properties[k] = v
	}
	node.HasRedundancy = spec.HasRedundancy
	if spec.SPOF != nil {
		v := *spec.SPOF
		node.SPOF = &v
	}
	if spec.FailureRate > 0 {
		node.FailureRate = spec.FailureRate
	}
	if !spec.LastChangedAt.IsZero() {
		node.LastChangedAt = spec.LastChangedAt
	}
}

// unsafeVivify creates an "unknown" node. Edges may arrive before their nodes.
func (g *Graph) unsafeVivify(id string) uint32 {
	idx := uint32(len(g.Nodes))
	g.idMap[id] = idx
	g.Nodes = append(g.Nodes, &Node{Index: idx, ID: id, Type: resource.TypeUnknown})
	g.Edges = append(g.Edges, nil)
	g.ReverseEdges = append(g.ReverseEdges, nil)
	return idx
}

func (g *Graph) unsafeAddEdge(sourceID, targetID string, edgeType EdgeType, ev *resource.Evidence) {
	if sourceID == targetID {
		return
	}
	srcIdx, ok := g.idMap[sourceID]
	if !ok {
		srcIdx = g.unsafeVivify(sourceID)
	}
	dstIdx, ok := g.idMap[targetID]
	if !ok {
		dstIdx = g.unsafeVivify(targetID)
	}

	key := edgeKey{srcIdx, dstIdx}
	dep, exists := g.deps[key]
	if !exists {
		dep = &resource.Dependency{SourceID: sourceID, TargetID: targetID}
		g.deps[key] = dep
		g.Edges[srcIdx] = append(g.Edges[srcIdx], Edge{TargetID: dstIdx, Type: edgeType})
		g.ReverseEdges[dstIdx] = append(g.ReverseEdges[dstIdx], Edge{TargetID: srcIdx, Type: edgeType})
	}
	if ev != nil {
		dep.Merge(*ev)
	}
}

// isSPOF applies the override or derives the flag: dependents and no redundancy.
func (g *Graph) isSPOF(idx uint32) bool {
	n := g.Nodes[idx]
	if n.SPOF != nil {
		return *n.SPOF
	}
	return len(g.ReverseEdges[idx]) > 0 && !n.HasRedundancy
}

func (g *Graph) toResource(idx uint32) resource.Resource {
	n := g.Nodes[idx]
	props := make(map[string]string, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	return resource.Resource{
		ID:                    n.ID,
		Name:                  n.Name,
		Type:                  n.Type,
		DependentsCount:       len(g.ReverseEdges[idx]),
		DependencyCount:       len(g.Edges[idx]),
		HasRedundancy:         n.HasRedundancy,
		IsSPOF:                g.isSPOF(idx),
		DeploymentFailureRate: n.FailureRate,
		LastChangedAt:         n.LastChangedAt,
		Properties:            props,
	}
}

// Summary is a cheap overview of the graph shape.
type Summary struct {
	Resources      int `json:"resources"`
	Dependencies   int `json:"dependencies"`
	FailureDomains int `json:"failure_domains"`
	SPOFCandidates int `json:"spof_candidates"`
}

// Summarize counts nodes, edges, failure domains and derived SPOFs.
func (g *Graph) Summarize() Summary {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	s := Summary{Resources: len(g.Nodes), Dependencies: len(g.deps)}
	for i := range g.Nodes {
		if g.isSPOF(uint32(i)) {
			s.SPOFCandidates++
		}
	}
	s.FailureDomains = len(g.unsafeFailureDomains())
	return s
}
