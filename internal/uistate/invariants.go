package uistate

import "goaldeck/internal/events"

// Invariant is a named predicate over State.
type Invariant struct {
	Name  string
	Check func(State) bool
}

// Invariants is the fixed list Validate runs after every mutation.
var Invariants = []Invariant{
	{
		Name: "focus_pairing",
		Check: func(s State) bool {
			return (s.Focus.NodeID == "") == (s.Focus.NodeType == "")
		},
	},
	{
		Name:  "known_mode",
		Check: func(s State) bool { return s.Mode.Valid() },
	},
	{
		Name:  "known_overlay",
		Check: func(s State) bool { return s.Overlay.Valid() },
	},
	{
		Name:  "known_view",
		Check: func(s State) bool { return s.View.Valid() },
	},
	{
		Name: "override_has_decision",
		Check: func(s State) bool {
			return !s.Override.Enabled || s.Override.DecisionID != ""
		},
	},
	{
		Name:  "positive_zoom",
		Check: func(s State) bool { return s.Graph.Zoom > 0 },
	},
}

// Validate runs every invariant and returns the names of the failing ones.
func Validate(s State) []string {
	var failed []string
	for _, inv := range Invariants {
		if !inv.Check(s) {
			failed = append(failed, inv.Name)
		}
	}
	return failed
}

// overlayActive reports whether an overlay other than none is showing.
func overlayActive(o events.Overlay) bool {
	return o != "" && o != events.OverlayNone
}
