package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"goaldeck/internal/events"
	"goaldeck/internal/graph"
	"goaldeck/internal/session"
	"goaldeck/internal/uistate"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	focusStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))

	statusStyles = map[graph.GoalStatus]lipgloss.Style{
		graph.StatusPending: lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		graph.StatusActive:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00AFFF")),
		graph.StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")),
		graph.StatusBlocked: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAF00")),
		graph.StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
	}
)

// renderSession writes the UI state header, the visible goal tree and the
// remaining visible nodes.
func renderSession(w io.Writer, s *session.Session) {
	st := s.State()
	fmt.Fprintln(w, titleStyle.Render("goaldeck session "+s.ID()))
	fmt.Fprintln(w, renderState(st))

	visible := s.Graph().FilteredNodes()
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Visible nodes (%d of %d)", len(visible), s.Graph().Len())))
	for _, line := range goalTree(visible, st.Focus.NodeID) {
		fmt.Fprintln(w, line)
	}
	for _, n := range visible {
		if n.Type() == graph.NodeTypeGoal {
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("["+string(n.Type())+"]"), markFocus(n.NodeID(), st.Focus.NodeID))
	}

	stats := s.Graph().Stats()
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderStats(stats, len(s.Graph().VisibleEdges())))

	if v := s.Violations(); len(v) > 0 {
		fmt.Fprintln(w, warnStyle.Render("invariant violations: "+strings.Join(v, ", ")))
	}
}

func renderState(st uistate.State) string {
	cursor := "live"
	if st.TimelineCursor != nil {
		cursor = st.TimelineCursor.Format("2006-01-02T15:04:05Z07:00")
	}
	focus := "-"
	if !st.Focus.IsEmpty() {
		focus = fmt.Sprintf("%s (%s)", st.Focus.NodeID, st.Focus.NodeType)
	}
	pairs := []string{
		kv("mode", string(st.Mode)),
		kv("view", string(st.View)),
		kv("overlay", string(st.Overlay)),
		kv("focus", focus),
		kv("timeline", cursor),
	}
	if st.Override.Enabled {
		pairs = append(pairs, warnStyle.Render("override "+st.Override.DecisionID))
	}
	return strings.Join(pairs, "  ")
}

func renderStats(st graph.Stats, visibleEdges int) string {
	statuses := []graph.GoalStatus{graph.StatusPending, graph.StatusActive, graph.StatusDone, graph.StatusBlocked, graph.StatusFailed}
	parts := []string{kv("goals", fmt.Sprint(st.Goals))}
	for _, s := range statuses {
		if n := st.ByStatus[s]; n > 0 {
			parts = append(parts, statusStyles[s].Render(fmt.Sprintf("%s=%d", s, n)))
		}
	}
	parts = append(parts,
		kv("agents", fmt.Sprint(st.Agents)),
		kv("skills", fmt.Sprint(st.Skills)),
		kv("memories", fmt.Sprint(st.Memories)),
		kv("tests", fmt.Sprint(st.Tests)),
		kv("edges", fmt.Sprintf("%d/%d", visibleEdges, st.Edges)),
	)
	if st.DanglingEdges > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("dangling=%d", st.DanglingEdges)))
	}
	return strings.Join(parts, "  ")
}

func kv(k, v string) string {
	return labelStyle.Render(k+":") + " " + v
}

func markFocus(id, focus string) string {
	if id == focus {
		return focusStyle.Render(id)
	}
	return id
}

// goalTree lays out visible goals under their visible parents. Goals whose
// parent is hidden or absent are printed as roots.
func goalTree(visible []graph.Node, focus string) []string {
	goals := make(map[string]graph.Goal)
	var order []string
	for _, n := range visible {
		if g, ok := graph.AsGoal(n); ok {
			goals[g.ID] = g
			order = append(order, g.ID)
		}
	}

	children := make(map[string][]string)
	var roots []string
	for _, id := range order {
		g := goals[id]
		if _, ok := goals[g.ParentID]; ok && g.ParentID != id {
			children[g.ParentID] = append(children[g.ParentID], id)
		} else {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	var lines []string
	seen := make(map[string]bool)
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		if seen[id] {
			return
		}
		seen[id] = true
		g := goals[id]
		style, ok := statusStyles[g.Status]
		if !ok {
			style = lipgloss.NewStyle()
		}
		line := fmt.Sprintf("%s- %s %s %s",
			strings.Repeat("  ", depth+1),
			style.Render(fmt.Sprintf("[%-7s]", g.Status)),
			markFocus(g.ID, focus),
			g.Intent)
		if g.Progress > 0 {
			line += labelStyle.Render(fmt.Sprintf(" %3.0f%%", g.Progress*100))
		}
		lines = append(lines, line)
		kids := children[id]
		sort.Strings(kids)
		for _, c := range kids {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	// Cycles among visible goals leave members unreached from any root.
	for _, id := range order {
		walk(id, 0)
	}
	return lines
}

// eventLine is the one-line form of a system event used by watch.
func eventLine(ev events.SystemEvent, out session.Outcome) string {
	desc := describer{}
	if err := events.VisitSystem(ev, &desc); err != nil {
		desc.text = err.Error()
	}
	line := labelStyle.Render(fmt.Sprintf("%-20s", ev.Kind())) + " " + desc.text
	if out.Graph.Skipped > 0 {
		line += warnStyle.Render(fmt.Sprintf(" (skipped %d)", out.Graph.Skipped))
	}
	if out.OverlayChanged {
		line += " " + titleStyle.Render("overlay changed")
	}
	return line
}

type describer struct {
	text string
}

func (d *describer) GraphUpdated(e events.GraphUpdated) error {
	d.text = fmt.Sprintf("+%d nodes ~%d -%d, +%d edges -%d",
		len(e.Diff.AddedNodes), len(e.Diff.UpdatedNodes), len(e.Diff.RemovedNodes),
		len(e.Diff.AddedEdges), len(e.Diff.RemovedEdges))
	return nil
}

func (d *describer) GoalStatusChanged(e events.GoalStatusChanged) error {
	d.text = fmt.Sprintf("%s %s -> %s", e.GoalID, e.OldStatus, statusStyles[e.NewStatus].Render(string(e.NewStatus)))
	return nil
}

func (d *describer) ConflictDetected(e events.ConflictDetected) error {
	d.text = fmt.Sprintf("%s vs %s severity %.2f %s", e.GoalA, e.GoalB, e.Severity, e.Description)
	return nil
}

func (d *describer) SimulationResult(e events.SimulationResult) error {
	d.text = fmt.Sprintf("%s success=%v score=%.2f in %v", e.SimulationID, e.Success, e.Score, e.Duration)
	return nil
}

func (d *describer) ExecutionProgress(e events.ExecutionProgress) error {
	d.text = fmt.Sprintf("%s %.0f%% %s", e.NodeID, e.Progress*100, e.Phase)
	return nil
}

func (d *describer) Error(e events.Error) error {
	d.text = warnStyle.Render(e.Reason)
	return nil
}
