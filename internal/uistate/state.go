// Package uistate implements the session-level UI state machine.
//
// A Machine owns one State. The only mutators are Dispatch (user intents),
// HandleSystemEvent (backend facts with UI side effects) and RestoreSnapshot
// (timeline scrubbing). Each Machine is an explicit handle; there is no
// package-level state, so independent sessions never share anything.
package uistate

import (
	"time"

	"goaldeck/internal/events"
	"goaldeck/internal/graph"
)

// Focus is the selected node. NodeID and NodeType are both empty or both set.
type Focus struct {
	NodeID   string         `json:"nodeId,omitempty"`
	NodeType graph.NodeType `json:"nodeType,omitempty"`
}

// IsEmpty reports whether nothing is focused.
func (f Focus) IsEmpty() bool {
	return f.NodeID == "" && f.NodeType == ""
}

// Constraints bound what the backend may plan.
type Constraints struct {
	Ethics      []string `json:"ethics"`
	Budget      *float64 `json:"budget,omitempty"`
	TimeHorizon *string  `json:"timeHorizon,omitempty"`
}

// Override records an operator takeover of a backend decision.
type Override struct {
	Enabled    bool   `json:"enabled"`
	DecisionID string `json:"decisionId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Point is a viewport coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GraphView is the viewport of the graph screen.
type GraphView struct {
	Zoom            float64 `json:"zoom"`
	Center          Point   `json:"center"`
	CollapsedLevels []int   `json:"collapsedLevels"`
}

// State is the whole session UI state.
type State struct {
	Mode           events.Mode    `json:"mode"`
	View           events.View    `json:"view"`
	Focus          Focus          `json:"focus"`
	Overlay        events.Overlay `json:"overlay"`
	TimelineCursor *time.Time     `json:"timelineCursor"` // nil means live
	Constraints    Constraints    `json:"constraints"`
	Override       Override       `json:"override"`
	Graph          GraphView      `json:"graph"`
}

// DefaultState is the state every session starts from absent configuration.
func DefaultState() State {
	return State{
		Mode:    events.ModeExplore,
		View:    events.ViewGraph,
		Overlay: events.OverlayNone,
		Constraints: Constraints{
			Ethics: []string{},
		},
		Graph: GraphView{
			Zoom:            1,
			CollapsedLevels: []int{},
		},
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	if s.TimelineCursor != nil {
		c := *s.TimelineCursor
		out.TimelineCursor = &c
	}
	if s.Constraints.Ethics != nil {
		out.Constraints.Ethics = append([]string{}, s.Constraints.Ethics...)
	}
	if s.Constraints.Budget != nil {
		b := *s.Constraints.Budget
		out.Constraints.Budget = &b
	}
	if s.Constraints.TimeHorizon != nil {
		h := *s.Constraints.TimeHorizon
		out.Constraints.TimeHorizon = &h
	}
	if s.Graph.CollapsedLevels != nil {
		out.Graph.CollapsedLevels = append([]int{}, s.Graph.CollapsedLevels...)
	}
	return out
}

// IsLive reports whether the timeline cursor is at the present.
func (s State) IsLive() bool {
	return s.TimelineCursor == nil
}
