// Package events defines the two closed event vocabularies exchanged between
// the operator and the goal execution backend.
//
// UIEvent values are user intents flowing toward the system. SystemEvent values
// are facts pushed by the backend. Both are sealed: only this package can add
// variants, and every variant has a method on the matching handler interface
// (UIHandler, SystemHandler). Adding a variant therefore breaks compilation of
// every consumer until it handles the new case.
//
// Events are immutable values built with the New* factories; they carry no
// behavior beyond identifying their kind.
package events

import (
	"errors"
	"fmt"
)

// Mode is the operator's working mode.
type Mode string

const (
	ModeExplore Mode = "explore" // Exploratory planning (decompose, simulate)
	ModeExploit Mode = "exploit" // Read/execute only
	ModeReflect Mode = "reflect" // Post-hoc review
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeExplore, ModeExploit, ModeReflect:
		return true
	}
	return false
}

// Overlay is a visualization layered on top of the base graph view.
type Overlay string

const (
	OverlayNone         Overlay = "none"
	OverlayHeatmap      Overlay = "heatmap"
	OverlayConflicts    Overlay = "conflicts"
	OverlayMemoryTraces Overlay = "memory_traces"
	OverlaySimulation   Overlay = "simulation"
)

// Valid reports whether o is one of the known overlays.
func (o Overlay) Valid() bool {
	switch o {
	case OverlayNone, OverlayHeatmap, OverlayConflicts, OverlayMemoryTraces, OverlaySimulation:
		return true
	}
	return false
}

// View is the active dashboard screen.
type View string

const (
	ViewGraph       View = "graph"
	ViewTimeline    View = "timeline"
	ViewTree        View = "tree"
	ViewSkills      View = "skills"
	ViewDeployments View = "deployments"
	ViewAdmin       View = "admin"
)

// Valid reports whether v is one of the known views.
func (v View) Valid() bool {
	switch v {
	case ViewGraph, ViewTimeline, ViewTree, ViewSkills, ViewDeployments, ViewAdmin:
		return true
	}
	return false
}

// ConstraintType names the constraint a CONSTRAINT_UPDATE targets.
type ConstraintType string

const (
	ConstraintEthics      ConstraintType = "ethics"       // []string of ethical rules
	ConstraintBudget      ConstraintType = "budget"       // float64, nil clears
	ConstraintTimeHorizon ConstraintType = "time_horizon" // string such as "2w", nil clears
)

// ErrUnknownEventType is returned when a wire envelope carries a tag outside
// the closed vocabularies.
var ErrUnknownEventType = errors.New("unknown event type")

// ContractError describes a violated event contract inside the process.
type ContractError struct {
	What  string
	Value interface{}
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("event contract violation: %s (%T)", e.What, e.Value)
}

// ContractViolation aborts the current operation. It is reserved for states
// that the type system should have made unreachable, such as a nil event.
func ContractViolation(what string, v interface{}) {
	panic(&ContractError{What: what, Value: v})
}

// Event is implemented by every UIEvent and SystemEvent.
type Event interface {
	// Type returns the wire tag, e.g. "SELECT_NODE".
	Type() string
}

// IsUIEvent reports whether e is a user intent.
func IsUIEvent(e Event) bool {
	_, ok := e.(UIEvent)
	return ok
}

// IsSystemEvent reports whether e is a backend fact.
func IsSystemEvent(e Event) bool {
	_, ok := e.(SystemEvent)
	return ok
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func copyOptions(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
