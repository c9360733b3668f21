package graph

import "github.com/rendis/nodeflow/pkg/schema"

// DFS colours.
const (
	white = iota
	gray
	black
)

// TransitivePredecessors returns every node reachable from target by following
// edges backward, in discovery order. target itself is only included when it
// sits on a cycle, which is reported as an error instead.
//
// The walk is a three-colour DFS: meeting a node that is still on the stack
// means a cycle, and the error carries its path.
func (g *Graph) TransitivePredecessors(target string) ([]string, error) {
	if err := g.requireNode(target); err != nil {
		return nil, err
	}

	color := make(map[string]int, len(g.nodes))
	var stack []string
	var result []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		stack = append(stack, id)
		for _, src := range g.incoming[id] {
			switch color[src] {
			case gray:
				return schema.NewCyclicGraphError(cyclePath(stack, src))
			case white:
				result = append(result, src)
				if err := visit(src); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}
	return result, nil
}

// cyclePath returns the slice of stack from the first occurrence of repeat,
// closed with repeat again. The walk runs against edge direction, so the path
// is reversed to read in edge order.
func cyclePath(stack []string, repeat string) []string {
	start := 0
	for i, id := range stack {
		if id == repeat {
			start = i
			break
		}
	}
	backward := append(append([]string(nil), stack[start:]...), repeat)
	path := make([]string, len(backward))
	for i, id := range backward {
		path[len(backward)-1-i] = id
	}
	return path
}

// DirectPredecessors returns the distinct sources of edges into target, in edge
// order, minus those whose type is excluded for target's type.
func (g *Graph) DirectPredecessors(target string) ([]string, error) {
	if err := g.requireNode(target); err != nil {
		return nil, err
	}
	targetType := g.nodes[target].Type

	preds := make([]string, 0, len(g.incoming[target]))
	for _, src := range g.incoming[target] {
		if g.exclusions.Excludes(targetType, g.nodes[src].Type) {
			continue
		}
		preds = append(preds, src)
	}
	return preds, nil
}

// HasPredecessors reports whether any edge points into target.
func (g *Graph) HasPredecessors(target string) bool {
	return len(g.incoming[target]) > 0
}
