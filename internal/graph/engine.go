package graph

import (
	"sync"
	"sync/atomic"

	"goaldeck/internal/logging"
)

// ApplyResult counts what a diff actually changed.
type ApplyResult struct {
	Added        int // nodes inserted or replaced
	Updated      int // patches merged into existing nodes
	Removed      int // nodes deleted
	Skipped      int // patches or removals naming unknown ids
	EdgesAdded   int
	EdgesRemoved int
}

// state is an immutable view of the graph. Writers build a new state and
// publish it atomically, so a reader sees either all of a diff or none of it.
type state struct {
	nodes     map[string]Node
	order     []string // insertion order, for stable output
	edges     []Edge
	filters   FilterState
	collapsed map[string]struct{}
}

func (s *state) copyNodes() (map[string]Node, []string) {
	nodes := make(map[string]Node, len(s.nodes))
	for id, n := range s.nodes {
		nodes[id] = n
	}
	return nodes, append([]string(nil), s.order...)
}

// Engine owns the canonical node and edge set.
type Engine struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[state]
	log     *logging.Logger
}

// NewEngine creates an empty engine with the given initial filters.
// A nil logger falls back to the graph category logger.
func NewEngine(filters FilterState, log *logging.Logger) *Engine {
	e := &Engine{log: logging.OrDefault(log, logging.CategoryGraph)}
	e.current.Store(&state{
		nodes:     make(map[string]Node),
		filters:   filters.clone(),
		collapsed: make(map[string]struct{}),
	})
	return e
}

func (e *Engine) load() *state {
	return e.current.Load()
}

// SetNodes replaces the whole node set. Used for the initial load only;
// edges, filters and the collapse set are kept.
func (e *Engine) SetNodes(nodes []Node) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.load()
	next := &state{
		nodes:     make(map[string]Node, len(nodes)),
		edges:     cur.edges,
		filters:   cur.filters,
		collapsed: cur.collapsed,
	}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		id := n.NodeID()
		if _, dup := next.nodes[id]; !dup {
			next.order = append(next.order, id)
		}
		next.nodes[id] = n.clone()
	}
	e.current.Store(next)
	e.log.Info("Loaded %d nodes", len(next.nodes))
}

// SetEdges replaces the whole edge set.
func (e *Engine) SetEdges(edges []Edge) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.load()
	next := *cur
	next.edges = append([]Edge(nil), edges...)
	e.current.Store(&next)
}

// ApplyDiff applies an incremental diff: insert added nodes, merge patches
// into existing nodes, delete removed nodes, append added edges, drop removed
// edges. Patches and removals naming unknown ids are skipped, never fatal.
func (e *Engine) ApplyDiff(d Diff) ApplyResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	var res ApplyResult
	cur := e.load()
	nodes, order := cur.copyNodes()

	for _, n := range d.AddedNodes {
		if n == nil {
			continue
		}
		id := n.NodeID()
		if _, exists := nodes[id]; !exists {
			order = append(order, id)
		}
		nodes[id] = n.clone()
		res.Added++
	}

	for _, p := range d.UpdatedNodes {
		existing, ok := nodes[p.ID]
		if !ok {
			e.log.Debug("Skipping update for unknown node %s", p.ID)
			res.Skipped++
			continue
		}
		nodes[p.ID] = p.Apply(existing)
		res.Updated++
	}

	if len(d.RemovedNodes) > 0 {
		removed := make(map[string]struct{}, len(d.RemovedNodes))
		for _, id := range d.RemovedNodes {
			if _, ok := nodes[id]; !ok {
				e.log.Debug("Skipping removal of unknown node %s", id)
				res.Skipped++
				continue
			}
			delete(nodes, id)
			removed[id] = struct{}{}
			res.Removed++
		}
		kept := order[:0]
		for _, id := range order {
			if _, gone := removed[id]; !gone {
				kept = append(kept, id)
			}
		}
		order = kept
	}

	edges := cur.edges
	if len(d.AddedEdges) > 0 || len(d.RemovedEdges) > 0 {
		edges = append([]Edge(nil), cur.edges...)
		index := make(map[string]int, len(edges))
		for i, ed := range edges {
			index[ed.ID] = i
		}
		for _, ed := range d.AddedEdges {
			if i, exists := index[ed.ID]; exists {
				edges[i] = ed
			} else {
				index[ed.ID] = len(edges)
				edges = append(edges, ed)
			}
			res.EdgesAdded++
		}
		if len(d.RemovedEdges) > 0 {
			drop := make(map[string]struct{}, len(d.RemovedEdges))
			for _, id := range d.RemovedEdges {
				drop[id] = struct{}{}
			}
			kept := edges[:0]
			for _, ed := range edges {
				if _, gone := drop[ed.ID]; gone {
					res.EdgesRemoved++
					continue
				}
				kept = append(kept, ed)
			}
			edges = kept
		}
	}

	e.current.Store(&state{
		nodes:     nodes,
		order:     order,
		edges:     edges,
		filters:   cur.filters,
		collapsed: cur.collapsed,
	})

	if res.Skipped > 0 {
		e.log.Warn("Diff applied with %d skipped entries (added=%d updated=%d removed=%d)",
			res.Skipped, res.Added, res.Updated, res.Removed)
	}
	return res
}

// Node returns a copy of the node with the given id.
func (e *Engine) Node(id string) (Node, bool) {
	n, ok := e.load().nodes[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (e *Engine) Nodes() []Node {
	s := e.load()
	out := make([]Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id].clone())
	}
	return out
}

// Len returns the number of nodes.
func (e *Engine) Len() int {
	return len(e.load().nodes)
}

// Edges returns all edges, including ones whose endpoints were removed.
func (e *Engine) Edges() []Edge {
	return append([]Edge(nil), e.load().edges...)
}

// SetFilters replaces the filter state.
func (e *Engine) SetFilters(f FilterState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := *e.load()
	next.filters = f.clone()
	e.current.Store(&next)
}

// Filters returns the current filter state.
func (e *Engine) Filters() FilterState {
	return e.load().filters.clone()
}

// ToggleCollapse flips the collapsed flag of nodeID and returns the new value.
// It is independent of the filter state and of whether the node exists.
func (e *Engine) ToggleCollapse(nodeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.load()
	collapsed := make(map[string]struct{}, len(cur.collapsed)+1)
	for id := range cur.collapsed {
		collapsed[id] = struct{}{}
	}
	_, was := collapsed[nodeID]
	if was {
		delete(collapsed, nodeID)
	} else {
		collapsed[nodeID] = struct{}{}
	}

	next := *cur
	next.collapsed = collapsed
	e.current.Store(&next)
	return !was
}

// IsCollapsed reports whether nodeID is in the collapse set.
func (e *Engine) IsCollapsed(nodeID string) bool {
	_, ok := e.load().collapsed[nodeID]
	return ok
}
