package graph

import (
	"sort"
	"sync"
)

// UnionFind implements concurrent DSU.
// Supports amortized O(1) checks.
type UnionFind struct {
	parent []int
	rank   []int
	mu     sync.Mutex
}

// NewUnionFind initializes DSU.
func NewUnionFind(n int) *UnionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := 0; i < n; i++ {
		parent[i] = i
	}
	return &UnionFind{parent: parent, rank: rank}
}

// Find returns set representative.
func (uf *UnionFind) Find(i int) int {
	uf.mu.Lock() // Lock for path compression
	defer uf.mu.Unlock()
	return uf.findInternal(i)
}

func (uf *UnionFind) findInternal(i int) int {
	if i < 0 || i >= len(uf.parent) {
		return -1
	}
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

// Union merges sets.
func (uf *UnionFind) Union(i, j int) {
	uf.mu.Lock()
	defer uf.mu.Unlock()

	rootI := uf.findInternal(i)
	rootJ := uf.findInternal(j)

	if rootI == -1 || rootJ == -1 || rootI == rootJ {
		return
	}

	// Union by rank
	switch {
	case uf.rank[rootI] < uf.rank[rootJ]:
		uf.parent[rootI] = rootJ
	case uf.rank[rootI] > uf.rank[rootJ]:
		uf.parent[rootJ] = rootI
	default:
		uf.parent[rootJ] = rootI
		uf.rank[rootI]++
	}
}

// Connected reports whether i and j share a set.
func (uf *UnionFind) Connected(i, j int) bool {
	uf.mu.Lock()
	defer uf.mu.Unlock()
	ri := uf.findInternal(i)
	return ri != -1 && ri == uf.findInternal(j)
}

// FailureDomains groups resources connected by any dependency, ignoring direction.
// A failure can only propagate inside its domain.
func (g *Graph) FailureDomains() [][]string {
	g.Mu.RLock()
	defer g.Mu.RUnlock()
	return g.unsafeFailureDomains()
}

func (g *Graph) unsafeFailureDomains() [][]string {
	uf := NewUnionFind(len(g.Nodes))
	for src, edges := range g.Edges {
		for _, e := range edges {
			uf.Union(src, int(e.TargetID))
		}
	}

	groups := make(map[int][]string)
	for i, n := range g.Nodes {
		root := uf.Find(i)
		groups[root] = append(groups[root], n.ID)
	}

	out := make([][]string, 0, len(groups))
	for _, ids := range groups {
		sort.Strings(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}
