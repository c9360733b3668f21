package graph

import (
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// TopologicalOrder sorts the whole graph with Kahn's algorithm and groups nodes
// into levels: every node's predecessors sit in earlier levels.
// Ties are broken by node ID for deterministic output.
func (g *Graph) TopologicalOrder() ([]string, [][]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		inDegree[id] = len(g.incoming[id])
	}

	queue := make([]string, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	sorted := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		dependents := append([]string(nil), g.outgoing[node]...)
		sort.Strings(dependents)
		for _, dep := range dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, nil, schema.NewError(schema.ErrCodeCycleDetected, "graph contains a cycle").
			WithDetails(map[string]any{"nodes": stuck})
	}

	return sorted, g.levels(sorted), nil
}

// levels groups sorted nodes by depth (max predecessor depth + 1).
func (g *Graph) levels(sorted []string) [][]string {
	depth := make(map[string]int, len(sorted))
	maxLevel := 0
	for _, id := range sorted {
		d := 0
		for _, src := range g.incoming[id] {
			if depth[src]+1 > d {
				d = depth[src] + 1
			}
		}
		depth[id] = d
		if d > maxLevel {
			maxLevel = d
		}
	}

	if len(sorted) == 0 {
		return nil
	}
	levels := make([][]string, maxLevel+1)
	for _, id := range sorted {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}

// Reachable returns the set of nodes reachable forward from any of the given roots.
func (g *Graph) Reachable(roots []string) map[string]bool {
	reachable := make(map[string]bool, len(g.nodes))
	queue := make([]string, 0, len(roots))
	for _, r := range roots {
		if _, ok := g.nodes[r]; ok && !reachable[r] {
			reachable[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range g.outgoing[node] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}
