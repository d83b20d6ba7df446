package graph

// Stats summarizes the current graph for status screens and snapshots.
type Stats struct {
	Goals         int
	Agents        int
	Skills        int
	Memories      int
	Tests         int
	ByStatus      map[GoalStatus]int
	Edges         int
	DanglingEdges int
}

// ActiveGoals returns the number of goals in the active status.
func (s Stats) ActiveGoals() int {
	return s.ByStatus[StatusActive]
}

type statsCounter struct {
	stats *Stats
}

func (c statsCounter) VisitGoal(g Goal) {
	c.stats.Goals++
	c.stats.ByStatus[g.Status]++
}
func (c statsCounter) VisitAgent(Agent)   { c.stats.Agents++ }
func (c statsCounter) VisitSkill(Skill)   { c.stats.Skills++ }
func (c statsCounter) VisitMemory(Memory) { c.stats.Memories++ }
func (c statsCounter) VisitTest(Test)     { c.stats.Tests++ }

// Stats counts nodes by variant and goals by status over the full node map.
func (e *Engine) Stats() Stats {
	s := e.load()
	st := Stats{ByStatus: make(map[GoalStatus]int), Edges: len(s.edges)}
	counter := statsCounter{stats: &st}
	for _, id := range s.order {
		s.nodes[id].Accept(counter)
	}
	for _, ed := range s.edges {
		_, src := s.nodes[ed.Source]
		_, dst := s.nodes[ed.Target]
		if !src || !dst {
			st.DanglingEdges++
		}
	}
	return st
}
