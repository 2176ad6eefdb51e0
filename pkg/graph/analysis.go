package graph

import (
	"errors"
	"sort"

	"github.com/DrSkyle/faultline/pkg/resource"
)

// ImpactReport details what will be affected if a resource fails.
type ImpactReport struct {
	Target   resource.Resource
	Direct   []resource.AffectedResource // Resources depending on the target
	Indirect []resource.AffectedResource // Resources depending on it transitively
}

// AnalyzeImpact walks dependents breadth-first and records hop distance.
func (g *Graph) AnalyzeImpact(id string) (*ImpactReport, error) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	targetIdx, ok := g.idMap[id]
	if !ok {
		return nil, ErrResourceNotFound
	}

	report := &ImpactReport{Target: g.toResource(targetIdx)}
	dist := g.unsafeDependentDistances(targetIdx)

	for idx, d := range dist {
		if idx == targetIdx {
			continue
		}
		n := g.Nodes[idx]
		ar := resource.AffectedResource{ID: n.ID, Name: n.Name, Type: n.Type, Distance: d}
		if d == 1 {
			report.Direct = append(report.Direct, ar)
		} else {
			report.Indirect = append(report.Indirect, ar)
		}
	}

	sortAffected(report.Direct)
	sortAffected(report.Indirect)
	return report, nil
}

// unsafeDependentDistances runs BFS over reverse edges from start.
func (g *Graph) unsafeDependentDistances(start uint32) map[uint32]int {
	dist := map[uint32]int{start: 0}
	queue := []uint32{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.MaxHops > 0 && dist[cur] >= g.MaxHops {
			continue
		}
		for _, e := range g.ReverseEdges[cur] {
			if _, seen := dist[e.TargetID]; seen {
				continue
			}
			dist[e.TargetID] = dist[cur] + 1
			queue = append(queue, e.TargetID)
		}
	}
	return dist
}

func sortAffected(list []resource.AffectedResource) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Distance != list[j].Distance {
			return list[i].Distance < list[j].Distance
		}
		return list[i].ID < list[j].ID
	})
}

// CriticalPath returns the longest chain of dependents starting at id,
// ordered from the failing resource outward.
func (g *Graph) CriticalPath(id string) ([]string, error) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	start, ok := g.idMap[id]
	if !ok {
		return nil, ErrResourceNotFound
	}

	dist := g.unsafeDependentDistances(start)
	subset := make(map[uint32]bool, len(dist))
	for idx := range dist {
		subset[idx] = true
	}

	parent := make(map[uint32]uint32, len(dist))
	depth := map[uint32]int{start: 0}

	order, err := g.unsafeTopoSort(subset)
	if err != nil {
		if !errors.Is(err, ErrCycle) {
			return nil, err
		}
		// Cycles make "longest" undefined; fall back to the deepest BFS layer.
		return g.unsafeBFSPath(start), nil
	}

	for _, cur := range order {
		d, reached := depth[cur]
		if !reached {
			continue
		}
		for _, e := range g.ReverseEdges[cur] {
			if !subset[e.TargetID] {
				continue
			}
			if old, ok := depth[e.TargetID]; !ok || d+1 > old {
				depth[e.TargetID] = d + 1
				parent[e.TargetID] = cur
			}
		}
	}

	return g.unsafeTrace(start, depth, parent), nil
}

func (g *Graph) unsafeBFSPath(start uint32) []string {
	depth := map[uint32]int{start: 0}
	parent := make(map[uint32]uint32)
	queue := []uint32{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.MaxHops > 0 && depth[cur] >= g.MaxHops {
			continue
		}
		for _, e := range g.ReverseEdges[cur] {
			if _, seen := depth[e.TargetID]; seen {
				continue
			}
			depth[e.TargetID] = depth[cur] + 1
			parent[e.TargetID] = cur
			queue = append(queue, e.TargetID)
		}
	}
	return g.unsafeTrace(start, depth, parent)
}

// unsafeTrace picks the deepest node (ties by id) and walks parents back to start.
func (g *Graph) unsafeTrace(start uint32, depth map[uint32]int, parent map[uint32]uint32) []string {
	end := start
	for idx, d := range depth {
		best := depth[end]
		if d > best || (d == best && d > 0 && g.Nodes[idx].ID < g.Nodes[end].ID) {
			end = idx
		}
	}

	var rev []string
	for cur := end; ; cur = parent[cur] {
		rev = append(rev, g.Nodes[cur].ID)
		if cur == start {
			break
		}
	}
	path := make([]string, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}
