package graph

// ancestorDepth counts parent hops from g to a root. A cycle or a dangling
// parent ends the walk at the depth reached so far.
func ancestorDepth(g Goal, lookup func(id string) (Goal, bool)) int {
	visited := map[string]struct{}{g.ID: {}}
	depth := 0
	parent := g.ParentID
	for parent != "" && depth < maxAncestorWalk {
		if _, seen := visited[parent]; seen {
			break
		}
		visited[parent] = struct{}{}
		depth++
		p, ok := lookup(parent)
		if !ok {
			break
		}
		parent = p.ParentID
	}
	return depth
}

// ComputeDepths returns the depth of every goal in nodes, keyed by id.
// Roots are depth 0. Backend-supplied levels are ignored here so the result
// reflects the parent links actually present.
func ComputeDepths(nodes []Node) map[string]int {
	goals := make(map[string]Goal)
	for _, n := range nodes {
		if g, ok := n.(Goal); ok {
			goals[g.ID] = g
		}
	}
	lookup := func(id string) (Goal, bool) {
		g, ok := goals[id]
		return g, ok
	}

	depths := make(map[string]int, len(goals))
	for id, g := range goals {
		depths[id] = ancestorDepth(g, lookup)
	}
	return depths
}

// WithComputedLevels returns copies of nodes where goals lacking a level get
// the computed one. Useful before SetNodes when the backend omits levels.
func WithComputedLevels(nodes []Node) []Node {
	depths := ComputeDepths(nodes)
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		g, ok := n.(Goal)
		if !ok || g.Level != nil {
			out = append(out, Clone(n))
			continue
		}
		g = g.clone().(Goal)
		lvl := depths[g.ID]
		g.Level = &lvl
		out = append(out, g)
	}
	return out
}
