package uistate

import (
	"errors"
	"fmt"
	"time"

	"goaldeck/internal/config"
	"goaldeck/internal/events"
	"goaldeck/internal/graph"
	"goaldeck/internal/logging"
)

// Guard rejections. Dispatch wraps them in a *RejectionError.
var (
	// ErrExploreGuard rejects exploratory requests while in exploit mode.
	ErrExploreGuard = errors.New("exploratory request rejected in exploit mode")
	// ErrFocusLocked rejects focus changes while an override is active.
	ErrFocusLocked = errors.New("focus is locked while an override is active")
	// ErrModeTransition rejects the direct exploit -> explore transition.
	ErrModeTransition = errors.New("mode transition not allowed")
	// ErrInvalidValue rejects events carrying values outside their vocabulary.
	ErrInvalidValue = errors.New("invalid event value")
)

// RejectionError reports which event a guard rejected and why.
type RejectionError struct {
	Kind   events.UIKind
	Reason error
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s rejected: %v (%s)", e.Kind, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s rejected: %v", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// Result describes the outcome of one Dispatch.
type Result struct {
	Kind       events.UIKind
	Accepted   bool
	Err        error    // *RejectionError when a guard rejected the event
	Forward    bool     // the intent should be sent to the backend
	Violations []string // invariants failing after the mutation
	RolledBack bool     // the mutation was undone under the enforce policy
}

// SnapshotSource supplies past captures for TIMELINE_JUMP.
type SnapshotSource interface {
	// Lookup returns the latest snapshot taken at or before at.
	Lookup(at time.Time) (Snapshot, bool)
	// StashLive keeps the present state while the cursor is in the past.
	StashLive(s Snapshot)
	// TakeLive returns and clears the stashed present state.
	TakeLive() (Snapshot, bool)
}

// Options configures a Machine.
type Options struct {
	// CONFLICT_DETECTED above this severity switches the overlay to conflicts.
	ConflictSeverity float64
	Policy           config.InvariantPolicy
	Snapshots        SnapshotSource
	// ActiveGoals feeds snapshot metadata; nil reports zero.
	ActiveGoals func() int
	Log         *logging.Logger
	Now         func() time.Time
}

// Machine is the UI state machine for one session.
type Machine struct {
	state      State
	violations []string
	// missed holds system events that reacted while the cursor was in the
	// past; they are reapplied to the live state on return.
	missed []events.SystemEvent
	opts   Options
	log        *logging.Logger
}

// New creates a machine starting at initial.
func New(initial State, opts Options) *Machine {
	if opts.Policy == "" {
		opts.Policy = config.InvariantAdvisory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Machine{
		state: initial.Clone(),
		opts:  opts,
		log:   logging.OrDefault(opts.Log, logging.CategoryStateMachine),
	}
	m.violations = Validate(m.state)
	return m
}

// FromConfig builds the initial state and options from configuration.
func FromConfig(cfg *config.Config, opts Options) *Machine {
	s := DefaultState()
	s.Mode = events.Mode(cfg.Session.Mode)
	s.View = events.View(cfg.Session.View)
	s.Overlay = events.Overlay(cfg.Session.Overlay)
	if cfg.Session.Zoom > 0 {
		s.Graph.Zoom = cfg.Session.Zoom
	}
	if opts.ConflictSeverity == 0 {
		opts.ConflictSeverity = cfg.Thresholds.ConflictOverlaySeverity
	}
	if opts.Policy == "" {
		opts.Policy = cfg.Invariants.Policy
	}
	return New(s, opts)
}

// State returns a deep copy of the live state.
func (m *Machine) State() State {
	return m.state.Clone()
}

// Violations returns the invariants that failed after the last mutation.
func (m *Machine) Violations() []string {
	return append([]string(nil), m.violations...)
}

// Dispatch applies a user intent: guards first, then the field mutation,
// then invariant validation.
func (m *Machine) Dispatch(ev events.UIEvent) Result {
	if ev == nil {
		events.ContractViolation("nil UIEvent dispatched", ev)
	}
	res := Result{Kind: ev.Kind()}
	prev := m.state.Clone()

	h := &dispatcher{m: m}
	if err := events.VisitUI(ev, h); err != nil {
		m.state = prev
		res.Err = err
		m.log.Warn("Rejected %s: %v", ev.Kind(), err)
		return res
	}
	res.Accepted = true
	res.Forward = h.forward

	res.Violations = m.revalidate(prev, &res.RolledBack)
	return res
}

// revalidate runs the invariants and applies the configured policy.
func (m *Machine) revalidate(prev State, rolledBack *bool) []string {
	failed := Validate(m.state)
	if len(failed) > 0 {
		m.log.Warn("Invariant violations: %v", failed)
		if m.opts.Policy == config.InvariantEnforce {
			m.state = prev
			*rolledBack = true
		}
	}
	m.violations = failed
	return failed
}

// HandleSystemEvent applies the UI side effects of a backend fact and
// reports whether the state changed.
func (m *Machine) HandleSystemEvent(ev events.SystemEvent) bool {
	before := m.state.Overlay
	prev := m.state.Clone()
	r := &reactor{m: m}
	if err := events.VisitSystem(ev, r); err != nil {
		m.state = prev
		m.log.Error("Failed to react to %s: %v", ev.Kind(), err)
		return false
	}
	if r.reacted && !m.state.IsLive() {
		m.missed = append(m.missed, ev)
	}
	changed := m.state.Overlay != before
	if changed {
		var rolledBack bool
		m.revalidate(prev, &rolledBack)
	}
	return changed
}

// replayMissed runs the reactions received during a scrub against the
// restored live state.
func (m *Machine) replayMissed() {
	if len(m.missed) == 0 {
		return
	}
	m.log.Info("Reapplying %d system reactions received while scrubbing", len(m.missed))
	for _, ev := range m.missed {
		if err := events.VisitSystem(ev, &reactor{m: m}); err != nil {
			m.log.Error("Failed to reapply %s: %v", ev.Kind(), err)
		}
	}
}

// setOverlay clears any active overlay before applying the next one.
func (m *Machine) setOverlay(o events.Overlay) {
	if overlayActive(m.state.Overlay) && m.state.Overlay != o {
		m.log.Debug("Clearing overlay %s before applying %s", m.state.Overlay, o)
		m.state.Overlay = events.OverlayNone
	}
	m.state.Overlay = o
}

func reject(kind events.UIKind, reason error, detail string) error {
	return &RejectionError{Kind: kind, Reason: reason, Detail: detail}
}

// dispatcher implements the guards and mutations for each user intent.
type dispatcher struct {
	m       *Machine
	forward bool
}

func (d *dispatcher) SelectNode(e events.SelectNode) error {
	s := &d.m.state
	if s.Override.Enabled {
		return reject(e.Kind(), ErrFocusLocked, "decision "+s.Override.DecisionID)
	}
	s.Focus = Focus{NodeID: e.NodeID, NodeType: e.NodeType}
	return nil
}

func (d *dispatcher) ChangeMode(e events.ChangeMode) error {
	s := &d.m.state
	if !e.Mode.Valid() {
		return reject(e.Kind(), ErrInvalidValue, string(e.Mode))
	}
	if s.Mode == events.ModeExploit && e.Mode == events.ModeExplore {
		return reject(e.Kind(), ErrModeTransition, "exploit -> explore requires reflect first")
	}
	s.Mode = e.Mode
	return nil
}

func (d *dispatcher) ChangeView(e events.ChangeView) error {
	if !e.View.Valid() {
		return reject(e.Kind(), ErrInvalidValue, string(e.View))
	}
	d.m.state.View = e.View
	return nil
}

func (d *dispatcher) ApplyOverlay(e events.ApplyOverlay) error {
	if !e.Overlay.Valid() {
		return reject(e.Kind(), ErrInvalidValue, string(e.Overlay))
	}
	d.m.setOverlay(e.Overlay)
	return nil
}

func (d *dispatcher) ClearOverlay(events.ClearOverlay) error {
	d.m.state.Overlay = events.OverlayNone
	return nil
}

func (d *dispatcher) TimelineJump(e events.TimelineJump) error {
	m := d.m
	src := m.opts.Snapshots

	if e.At.IsZero() {
		if src != nil {
			if live, ok := src.TakeLive(); ok {
				m.state = live.State()
				m.replayMissed()
			}
		}
		m.missed = nil
		m.state.TimelineCursor = nil
		return nil
	}

	if src != nil {
		if m.state.IsLive() {
			src.StashLive(m.CreateSnapshot())
		}
		if snap, ok := src.Lookup(e.At); ok {
			m.state = snap.State()
		}
	}
	at := e.At
	m.state.TimelineCursor = &at
	return nil
}

func (d *dispatcher) RequestDecompose(e events.RequestDecompose) error {
	if d.m.state.Mode == events.ModeExploit {
		return reject(e.Kind(), ErrExploreGuard, "goal "+e.GoalID)
	}
	d.forward = true
	return nil
}

func (d *dispatcher) RequestSimulation(e events.RequestSimulation) error {
	if d.m.state.Mode == events.ModeExploit {
		return reject(e.Kind(), ErrExploreGuard, "node "+e.NodeID)
	}
	d.forward = true
	return nil
}

func (d *dispatcher) OverrideDecision(e events.OverrideDecision) error {
	d.m.state.Override = Override{Enabled: true, DecisionID: e.DecisionID, Reason: e.Reason}
	d.forward = true
	return nil
}

func (d *dispatcher) CancelOverride(events.CancelOverride) error {
	d.m.state.Override = Override{}
	return nil
}

func (d *dispatcher) ConstraintUpdate(e events.ConstraintUpdate) error {
	c := &d.m.state.Constraints
	switch e.ConstraintType {
	case events.ConstraintEthics:
		rules, ok := stringList(e.Value)
		if !ok {
			return reject(e.Kind(), ErrInvalidValue, "ethics expects a list of strings")
		}
		c.Ethics = rules
	case events.ConstraintBudget:
		if e.Value == nil {
			c.Budget = nil
			break
		}
		b, ok := number(e.Value)
		if !ok || b < 0 {
			return reject(e.Kind(), ErrInvalidValue, "budget expects a non-negative number")
		}
		c.Budget = &b
	case events.ConstraintTimeHorizon:
		if e.Value == nil {
			c.TimeHorizon = nil
			break
		}
		h, ok := e.Value.(string)
		if !ok {
			return reject(e.Kind(), ErrInvalidValue, "time_horizon expects a string")
		}
		c.TimeHorizon = &h
	default:
		return reject(e.Kind(), ErrInvalidValue, "unknown constraint "+string(e.ConstraintType))
	}
	d.forward = true
	return nil
}

// stringList accepts []string and the []interface{} JSON decoding produces.
func stringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case nil:
		return []string{}, true
	case []string:
		return append([]string{}, list...), true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// reactor applies the UI side effects of system events. Events without a
// UI reaction update read models owned elsewhere.
type reactor struct {
	m       *Machine
	reacted bool
}

func (r *reactor) GraphUpdated(events.GraphUpdated) error { return nil }

func (r *reactor) GoalStatusChanged(e events.GoalStatusChanged) error {
	if e.NewStatus == graph.StatusFailed || e.NewStatus == graph.StatusBlocked {
		r.m.log.Info("Goal %s moved %s -> %s", e.GoalID, e.OldStatus, e.NewStatus)
	}
	return nil
}

func (r *reactor) ConflictDetected(e events.ConflictDetected) error {
	if e.Severity > r.m.opts.ConflictSeverity {
		r.m.log.Info("Conflict %s (%s vs %s) severity %.2f, showing conflicts overlay",
			e.ConflictID, e.GoalA, e.GoalB, e.Severity)
		r.m.setOverlay(events.OverlayConflicts)
		r.reacted = true
	}
	return nil
}

func (r *reactor) SimulationResult(e events.SimulationResult) error {
	r.m.log.Info("Simulation %s finished (success=%v score=%.2f)", e.SimulationID, e.Success, e.Score)
	r.m.setOverlay(events.OverlaySimulation)
	r.reacted = true
	return nil
}

func (r *reactor) ExecutionProgress(events.ExecutionProgress) error { return nil }

func (r *reactor) Error(e events.Error) error {
	r.m.log.Error("Backend error: %s %v", e.Reason, e.Context)
	return nil
}
