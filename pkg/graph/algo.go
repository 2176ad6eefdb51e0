package graph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when a subset cannot be ordered.
var ErrCycle = errors.New("dependency cycle detected")

// TopologicalSort resolves dependency order for the given resource ids.
// Every resource appears after the resources it depends on (restore order).
// Unknown ids are ignored.
func (g *Graph) TopologicalSort(ids []string) ([]string, error) {
	g.Mu.RLock()
	defer g.Mu.RUnlock()

	subset := make(map[uint32]bool, len(ids))
	for _, id := range ids {
		if idx, ok := g.idMap[id]; ok {
			subset[idx] = true
		}
	}

	order, err := g.unsafeTopoSort(subset)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = g.Nodes[idx].ID
	}
	return out, nil
}

// unsafeTopoSort runs Kahn's algorithm over subset. Caller holds Mu.
func (g *Graph) unsafeTopoSort(subset map[uint32]bool) ([]uint32, error) {
	pending := make(map[uint32]int, len(subset))
	queue := make([]uint32, 0, len(subset))

	keys := make([]uint32, 0, len(subset))
	for idx := range subset {
		keys = append(keys, idx)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, idx := range keys {
		n := 0
		for _, e := range g.Edges[idx] {
			if subset[e.TargetID] {
				n++
			}
		}
		pending[idx] = n
		if n == 0 {
			queue = append(queue, idx)
		}
	}

	order := make([]uint32, 0, len(subset))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		for _, e := range g.ReverseEdges[cur] {
			if !subset[e.TargetID] {
				continue
			}
			pending[e.TargetID]--
			if pending[e.TargetID] == 0 {
				queue = append(queue, e.TargetID)
			}
		}
	}

	if len(order) != len(subset) {
		for _, idx := range keys {
			if pending[idx] > 0 {
				return nil, fmt.Errorf("%w involving %s", ErrCycle, g.Nodes[idx].ID)
			}
		}
		return nil, ErrCycle
	}
	return order, nil
}
