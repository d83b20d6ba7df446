// Package session wires one goaldeck session: the graph engine, the UI state
// machine and its timeline, plus the optional journal, forwarder and metrics.
//
// A Session is an explicit handle. Several sessions can live in one process
// without sharing state.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goaldeck/internal/config"
	"goaldeck/internal/events"
	"goaldeck/internal/graph"
	"goaldeck/internal/logging"
	"goaldeck/internal/metrics"
	"goaldeck/internal/timeline"
	"goaldeck/internal/uistate"
)

// Forwarder delivers accepted intents to the backend.
type Forwarder interface {
	Forward(ctx context.Context, ev events.UIEvent) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(ctx context.Context, ev events.UIEvent) error

func (f ForwarderFunc) Forward(ctx context.Context, ev events.UIEvent) error { return f(ctx, ev) }

// Source yields the backend's system events in order. Next returns io.EOF
// when the stream ends.
type Source interface {
	Next(ctx context.Context) (events.SystemEvent, error)
}

// Journal persists system events before they are applied.
type Journal interface {
	Append(ctx context.Context, sessionID string, ev events.SystemEvent) (int64, error)
}

// Outcome summarizes what one system event changed.
type Outcome struct {
	Kind           events.SystemKind
	Seq            int64             // journal sequence, 0 without a journal
	Graph          graph.ApplyResult // zero for events that do not touch the graph
	OverlayChanged bool
}

// Options configures a Session. Every field is optional.
type Options struct {
	ID        string
	Forwarder Forwarder
	Journal   Journal
	Metrics   *metrics.Metrics
	Log       *logging.Logger
	Now       func() time.Time

	// OnSystemEvent runs after each system event is fully applied, before
	// the next one starts. It must not call back into the session's
	// system event handling.
	OnSystemEvent func(ev events.SystemEvent, out Outcome)

	// DisableCapture stops the session from recording a timeline snapshot
	// after every state change.
	DisableCapture bool
}

// Session is safe for concurrent use. System events are handled one at a
// time from journal append through the UI reaction, so the journal order
// is the order the graph and state saw.
type Session struct {
	id       string
	engine   *graph.Engine
	machine  *uistate.Machine
	timeline *timeline.Timeline
	opts     Options
	log      *logging.Logger

	applyMu sync.Mutex // held across a whole system event, and Load
	mu      sync.Mutex // guards machine
}

// New builds a session from configuration.
func New(cfg *config.Config, opts Options) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrDefault(opts.Log, logging.CategorySession).With("session", opts.ID)

	s := &Session{
		id:   opts.ID,
		opts: opts,
		log:  log,
	}
	s.engine = graph.NewEngine(FiltersFromConfig(cfg.Filters), nil)
	s.timeline = timeline.New(cfg.Timeline.MaxSnapshots, nil)
	s.machine = uistate.FromConfig(cfg, uistate.Options{
		Snapshots:   s.timeline,
		ActiveGoals: func() int { return s.engine.Stats().ActiveGoals() },
		Now:         opts.Now,
	})

	log.Info("Session created (mode=%s view=%s policy=%s)",
		cfg.Session.Mode, cfg.Session.View, cfg.Invariants.Policy)
	if v := s.machine.Violations(); len(v) > 0 {
		log.Warn("Initial state violates %v", v)
	}
	return s
}

// FiltersFromConfig converts the filters section into engine filters.
func FiltersFromConfig(fc config.FilterConfig) graph.FilterState {
	return graph.FilterState{
		ShowPending:      fc.ShowPending,
		ShowActive:       fc.ShowActive,
		ShowDone:         fc.ShowDone,
		ShowBlocked:      fc.ShowBlocked,
		ShowOnlyRoots:    fc.ShowOnlyRoots,
		ShowOnlyAtomic:   fc.ShowOnlyAtomic,
		CollapseChildren: fc.CollapseChildren,
		MinDepth:         fc.MinDepth,
		MaxDepth:         fc.MaxDepth,
	}
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Graph() *graph.Engine        { return s.engine }
func (s *Session) Timeline() *timeline.Timeline { return s.timeline }

// State returns a copy of the current UI state.
func (s *Session) State() uistate.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Violations returns the invariants failing after the last mutation.
func (s *Session) Violations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Violations()
}

// Load replaces the graph with a full node and edge set. Goals missing a
// level get one computed from their parent chain.
func (s *Session) Load(nodes []graph.Node, edges []graph.Edge) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.engine.SetNodes(graph.WithComputedLevels(nodes))
	s.engine.SetEdges(edges)
	s.opts.Metrics.SetVisibleNodes(len(s.engine.FilteredNodes()))
	s.log.Info("Loaded %d nodes and %d edges", len(nodes), len(edges))
}

// Dispatch runs a user intent through the state machine. Accepted intents
// that need the backend are handed to the forwarder; a forward failure is
// returned but does not undo the local state change.
func (s *Session) Dispatch(ctx context.Context, ev events.UIEvent) (uistate.Result, error) {
	s.mu.Lock()
	res := s.machine.Dispatch(ev)
	if res.Accepted {
		s.captureLocked()
	}
	s.mu.Unlock()

	s.opts.Metrics.RecordDispatch(string(res.Kind), res.Accepted)
	s.opts.Metrics.RecordViolations(res.Violations)

	if !res.Forward || s.opts.Forwarder == nil {
		return res, nil
	}
	if err := s.opts.Forwarder.Forward(ctx, ev); err != nil {
		s.opts.Metrics.RecordForwardError(string(res.Kind))
		s.log.Error("Failed to forward %s: %v", res.Kind, err)
		return res, fmt.Errorf("failed to forward %s: %w", res.Kind, err)
	}
	s.log.Debug("Forwarded %s", res.Kind)
	return res, nil
}

// HandleSystemEvent journals ev, applies its graph effects and then its UI
// side effects.
func (s *Session) HandleSystemEvent(ctx context.Context, ev events.SystemEvent) (Outcome, error) {
	if ev == nil {
		events.ContractViolation("nil SystemEvent handled", ev)
	}
	out := Outcome{Kind: ev.Kind()}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if s.opts.Journal != nil {
		seq, err := s.opts.Journal.Append(ctx, s.id, ev)
		if err != nil {
			return out, fmt.Errorf("failed to journal %s: %w", ev.Kind(), err)
		}
		out.Seq = seq
	}

	r := &router{engine: s.engine, now: s.opts.Now}
	if err := events.VisitSystem(ev, r); err != nil {
		return out, fmt.Errorf("failed to apply %s: %w", ev.Kind(), err)
	}
	out.Graph = r.result
	if r.touched {
		s.opts.Metrics.RecordDiff(r.result.Added, r.result.Updated, r.result.Removed, r.result.Skipped)
		s.opts.Metrics.SetVisibleNodes(len(s.engine.FilteredNodes()))
	}

	s.mu.Lock()
	out.OverlayChanged = s.machine.HandleSystemEvent(ev)
	if out.OverlayChanged {
		s.opts.Metrics.RecordViolations(s.machine.Violations())
		s.captureLocked()
	}
	s.mu.Unlock()

	s.opts.Metrics.RecordSystemEvent(string(ev.Kind()))
	if s.opts.OnSystemEvent != nil {
		s.opts.OnSystemEvent(ev, out)
	}
	return out, nil
}

// Run consumes src until it ends, ctx is cancelled or an event fails to
// apply. Events are applied strictly in the order src yields them.
func (s *Session) Run(ctx context.Context, src Source) error {
	g, ctx := errgroup.WithContext(ctx)
	stream := make(chan events.SystemEvent)

	g.Go(func() error {
		defer close(stream)
		for {
			ev, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read system event: %w", err)
			}
			select {
			case stream <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		n := 0
		for ev := range stream {
			if _, err := s.HandleSystemEvent(ctx, ev); err != nil {
				return err
			}
			n++
		}
		s.log.Info("Event stream drained after %d events", n)
		return nil
	})

	return g.Wait()
}

// Snapshot captures the live UI state into the timeline.
func (s *Session) Snapshot() uistate.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Capture(s.machine)
}

// captureLocked records the state after a change while the cursor is live.
func (s *Session) captureLocked() {
	if s.opts.DisableCapture || !s.machine.State().IsLive() {
		return
	}
	s.timeline.Capture(s.machine)
}

// router maps system events onto graph mutations.
type router struct {
	engine  *graph.Engine
	now     func() time.Time
	result  graph.ApplyResult
	touched bool
}

func (r *router) apply(d graph.Diff) {
	r.result = r.engine.ApplyDiff(d)
	r.touched = true
}

func (r *router) GraphUpdated(e events.GraphUpdated) error {
	r.apply(e.Diff)
	return nil
}

func (r *router) GoalStatusChanged(e events.GoalStatusChanged) error {
	at := e.Timestamp
	if at.IsZero() {
		at = r.now()
	}
	r.apply(graph.Diff{UpdatedNodes: []graph.NodePatch{graph.StatusPatch(e.GoalID, e.NewStatus, at)}})
	return nil
}

func (r *router) ExecutionProgress(e events.ExecutionProgress) error {
	r.apply(graph.Diff{UpdatedNodes: []graph.NodePatch{graph.ProgressPatch(e.NodeID, e.Progress)}})
	return nil
}

func (r *router) ConflictDetected(events.ConflictDetected) error { return nil }
func (r *router) SimulationResult(events.SimulationResult) error { return nil }
func (r *router) Error(events.Error) error                       { return nil }
