package graph

import "strings"

// maxAncestorWalk caps parent-chain traversal when backend data is cyclic.
const maxAncestorWalk = 1024

// FilterState selects which goals are visible. Non-goal nodes ignore it.
type FilterState struct {
	ShowPending bool
	ShowActive  bool
	ShowDone    bool
	ShowBlocked bool

	Search   string
	MinDepth *int
	MaxDepth *int

	ShowOnlyRoots  bool
	ShowOnlyAtomic bool

	// CollapseChildren is a tree-view hint for the rendering layer; the
	// filter pipeline does not read it.
	CollapseChildren bool
}

// DefaultFilters shows every status and applies no other restriction.
func DefaultFilters() FilterState {
	return FilterState{ShowPending: true, ShowActive: true, ShowDone: true, ShowBlocked: true}
}

func (f FilterState) clone() FilterState {
	if f.MinDepth != nil {
		v := *f.MinDepth
		f.MinDepth = &v
	}
	if f.MaxDepth != nil {
		v := *f.MaxDepth
		f.MaxDepth = &v
	}
	return f
}

// statusVisible reports whether goals with status s pass the toggles.
// Failed goals have no toggle of their own and travel with blocked.
func (f FilterState) statusVisible(s GoalStatus) bool {
	switch s {
	case StatusPending:
		return f.ShowPending
	case StatusActive:
		return f.ShowActive
	case StatusDone:
		return f.ShowDone
	case StatusBlocked, StatusFailed:
		return f.ShowBlocked
	}
	return true
}

// FilteredNodes materializes the visible node set from the current filters,
// collapse set and node map. For goals, in order:
//
//  1. hidden if any ancestor is collapsed
//  2. ShowOnlyRoots drops goals with a parent
//  3. ShowOnlyAtomic drops non-atomic goals
//  4. status toggles
//  5. search: non-matching goals are dropped; matching goals are kept
//     without consulting the depth bounds
//  6. depth bounds
//
// Other node types are always kept.
func (e *Engine) FilteredNodes() []Node {
	return e.load().filtered()
}

func (s *state) filtered() []Node {
	f := s.filters
	query := strings.ToLower(f.Search)

	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		n := s.nodes[id]
		g, ok := n.(Goal)
		if !ok {
			out = append(out, n.clone())
			continue
		}
		if s.keepGoal(g, f, query) {
			out = append(out, g.clone())
		}
	}
	return out
}

func (s *state) keepGoal(g Goal, f FilterState, query string) bool {
	if len(s.collapsed) > 0 && s.hasCollapsedAncestor(g) {
		return false
	}
	if f.ShowOnlyRoots && g.ParentID != "" {
		return false
	}
	if f.ShowOnlyAtomic && !g.Atomic {
		return false
	}
	if !f.statusVisible(g.Status) {
		return false
	}
	if query != "" {
		return strings.Contains(strings.ToLower(g.Intent), query) ||
			strings.Contains(strings.ToLower(string(g.Category)), query)
	}
	if f.MinDepth != nil || f.MaxDepth != nil {
		depth := s.depthOf(g)
		if f.MinDepth != nil && depth < *f.MinDepth {
			return false
		}
		if f.MaxDepth != nil && depth > *f.MaxDepth {
			return false
		}
	}
	return true
}

// hasCollapsedAncestor walks parent links with a visited set.
func (s *state) hasCollapsedAncestor(g Goal) bool {
	visited := map[string]struct{}{g.ID: {}}
	parent := g.ParentID
	for steps := 0; parent != "" && steps < maxAncestorWalk; steps++ {
		if _, seen := visited[parent]; seen {
			return false
		}
		visited[parent] = struct{}{}
		if _, collapsed := s.collapsed[parent]; collapsed {
			return true
		}
		next, ok := s.nodes[parent].(Goal)
		if !ok {
			return false
		}
		parent = next.ParentID
	}
	return false
}

// depthOf prefers the backend-supplied level and otherwise counts ancestors.
func (s *state) depthOf(g Goal) int {
	if g.Level != nil {
		return *g.Level
	}
	return ancestorDepth(g, func(id string) (Goal, bool) {
		p, ok := s.nodes[id].(Goal)
		return p, ok
	})
}

// VisibleEdges returns the edges whose endpoints are both in FilteredNodes.
// Dangling edges are dropped here rather than rejected on insert.
func (e *Engine) VisibleEdges() []Edge {
	s := e.load()
	visible := make(map[string]struct{})
	for _, n := range s.filtered() {
		visible[n.NodeID()] = struct{}{}
	}

	var out []Edge
	for _, ed := range s.edges {
		_, src := visible[ed.Source]
		_, dst := visible[ed.Target]
		if src && dst {
			out = append(out, ed)
		}
	}
	return out
}
