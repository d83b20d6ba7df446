package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goaldeck/internal/config"
	"goaldeck/internal/events"
	"goaldeck/internal/graph"
	"goaldeck/internal/logging"
	"goaldeck/internal/metrics"
	"goaldeck/internal/uistate"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var clock = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type recordingForwarder struct {
	mu   sync.Mutex
	sent []events.UIKind
	err  error
}

func (f *recordingForwarder) Forward(_ context.Context, ev events.UIEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, ev.Kind())
	return f.err
}

type memJournal struct {
	mu     sync.Mutex
	events []events.SystemEvent
	err    error
}

func (j *memJournal) Append(_ context.Context, _ string, ev events.SystemEvent) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return 0, j.err
	}
	j.events = append(j.events, ev)
	return int64(len(j.events)), nil
}

// gatedJournal parks the first append until release is closed.
type gatedJournal struct {
	memJournal
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedJournal() *gatedJournal {
	return &gatedJournal{entered: make(chan struct{}), release: make(chan struct{})}
}

func (j *gatedJournal) Append(ctx context.Context, id string, ev events.SystemEvent) (int64, error) {
	seq, err := j.memJournal.Append(ctx, id, ev)
	first := false
	j.once.Do(func() { first = true })
	if first {
		close(j.entered)
		<-j.release
	}
	return seq, err
}

// sliceSource yields a fixed stream then io.EOF.
type sliceSource struct {
	events []events.SystemEvent
	i      int
}

func (s *sliceSource) Next(ctx context.Context) (events.SystemEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.i >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

// blockingSource never yields until ctx is cancelled.
type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) (events.SystemEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.Log == nil {
		opts.Log = logging.Nop(logging.CategorySession)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return clock }
	}
	return New(config.DefaultConfig(), opts)
}

func goalNode(id, parent string, status graph.GoalStatus) graph.Goal {
	g := graph.Goal{ID: id, Intent: "goal " + id, Status: status, ParentID: parent}
	return g
}

func TestDispatchForwardsOnlyAcceptedIntents(t *testing.T) {
	fwd := &recordingForwarder{}
	s := newSession(t, Options{Forwarder: fwd})
	ctx := context.Background()

	_, err := s.Dispatch(ctx, events.NewSelectNode("g1", graph.NodeTypeGoal))
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, events.NewRequestDecompose("g1", nil))
	require.NoError(t, err)
	_, err = s.Dispatch(ctx, events.NewChangeMode(events.ModeExploit))
	require.NoError(t, err)

	res, err := s.Dispatch(ctx, events.NewRequestSimulation("g1", nil))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.ErrorIs(t, res.Err, uistate.ErrExploreGuard)

	_, err = s.Dispatch(ctx, events.NewOverrideDecision("d1", "manual"))
	require.NoError(t, err)

	assert.Equal(t, []events.UIKind{events.KindRequestDecompose, events.KindOverrideDecision}, fwd.sent)
}

func TestDispatchReportsForwardFailure(t *testing.T) {
	boom := errors.New("backend down")
	s := newSession(t, Options{Forwarder: &recordingForwarder{err: boom}})

	res, err := s.Dispatch(context.Background(), events.NewConstraintUpdate(events.ConstraintBudget, 10.0))
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.Accepted)
	require.NotNil(t, s.State().Constraints.Budget)
}

func TestHandleSystemEventRoutesGraphChanges(t *testing.T) {
	j := &memJournal{}
	s := newSession(t, Options{Journal: j})
	ctx := context.Background()

	out, err := s.HandleSystemEvent(ctx, events.NewGraphUpdated(graph.Diff{
		AddedNodes: []graph.Node{
			goalNode("root", "", graph.StatusPending),
			goalNode("child", "root", graph.StatusPending),
		},
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Graph.Added)
	assert.Equal(t, int64(1), out.Seq)

	_, err = s.HandleSystemEvent(ctx, events.NewGoalStatusChanged("child", graph.StatusPending, graph.StatusActive, clock))
	require.NoError(t, err)
	_, err = s.HandleSystemEvent(ctx, events.NewExecutionProgress("child", 0.25, "build"))
	require.NoError(t, err)
	out, err = s.HandleSystemEvent(ctx, events.NewExecutionProgress("ghost", 0.5, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Graph.Skipped)

	n, ok := s.Graph().Node("child")
	require.True(t, ok)
	g, _ := graph.AsGoal(n)
	assert.Equal(t, graph.StatusActive, g.Status)
	assert.Equal(t, 0.25, g.Progress)
	assert.Equal(t, clock, g.UpdatedAt)
	assert.Len(t, j.events, 4)
}

func TestHandleSystemEventAppliesUISideEffects(t *testing.T) {
	var seen []events.SystemKind
	s := newSession(t, Options{
		OnSystemEvent: func(ev events.SystemEvent, _ Outcome) { seen = append(seen, ev.Kind()) },
	})
	ctx := context.Background()

	out, err := s.HandleSystemEvent(ctx, events.NewConflictDetected("c", "a", "b", 0.95, ""))
	require.NoError(t, err)
	assert.True(t, out.OverlayChanged)
	assert.Equal(t, events.OverlayConflicts, s.State().Overlay)

	out, err = s.HandleSystemEvent(ctx, events.NewConflictDetected("c", "a", "b", 0.1, ""))
	require.NoError(t, err)
	assert.False(t, out.OverlayChanged)

	assert.Equal(t, []events.SystemKind{events.KindConflictDetected, events.KindConflictDetected}, seen)
}

func TestHandleSystemEventStopsOnJournalFailure(t *testing.T) {
	s := newSession(t, Options{Journal: &memJournal{err: errors.New("disk full")}})

	_, err := s.HandleSystemEvent(context.Background(), events.NewGraphUpdated(graph.Diff{
		AddedNodes: []graph.Node{goalNode("g", "", graph.StatusPending)},
	}))
	require.Error(t, err)
	assert.Equal(t, 0, s.Graph().Len())
}

func TestConcurrentSystemEventsMatchJournalOrder(t *testing.T) {
	j := newGatedJournal()
	s := newSession(t, Options{Journal: j})
	s.Load([]graph.Node{goalNode("g", "", graph.StatusActive)}, nil)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.HandleSystemEvent(ctx, events.NewExecutionProgress("g", 0.2, ""))
		firstDone <- err
	}()
	<-j.entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := s.HandleSystemEvent(ctx, events.NewExecutionProgress("g", 0.9, ""))
		secondDone <- err
	}()

	select {
	case <-secondDone:
		t.Fatal("second event applied while the first was still journaling")
	case <-time.After(50 * time.Millisecond):
	}
	close(j.release)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	replayed := newSession(t, Options{})
	replayed.Load([]graph.Node{goalNode("g", "", graph.StatusActive)}, nil)
	for _, ev := range j.events {
		_, err := replayed.HandleSystemEvent(ctx, ev)
		require.NoError(t, err)
	}

	progress := func(s *Session) float64 {
		n, ok := s.Graph().Node("g")
		require.True(t, ok)
		g, _ := graph.AsGoal(n)
		return g.Progress
	}
	assert.Equal(t, 0.9, progress(s))
	require.Equal(t, progress(replayed), progress(s), "live state diverges from journal replay")
}

func TestReactionDuringScrubSurvivesReturnToLive(t *testing.T) {
	now := clock
	s := newSession(t, Options{Now: func() time.Time { return now }})
	ctx := context.Background()

	_, err := s.Dispatch(ctx, events.NewChangeView(events.ViewTree))
	require.NoError(t, err)
	now = now.Add(time.Minute)

	_, err = s.Dispatch(ctx, events.NewTimelineJump(clock))
	require.NoError(t, err)
	require.False(t, s.State().IsLive())

	_, err = s.HandleSystemEvent(ctx, events.NewConflictDetected("c", "a", "b", 0.95, ""))
	require.NoError(t, err)
	assert.Equal(t, events.OverlayConflicts, s.State().Overlay)

	_, err = s.Dispatch(ctx, events.NewReturnToLive())
	require.NoError(t, err)
	st := s.State()
	assert.True(t, st.IsLive())
	assert.Equal(t, events.ViewTree, st.View)
	assert.Equal(t, events.OverlayConflicts, st.Overlay)
}

func TestRunAppliesStreamInOrder(t *testing.T) {
	s := newSession(t, Options{})
	src := &sliceSource{events: []events.SystemEvent{
		events.NewGraphUpdated(graph.Diff{AddedNodes: []graph.Node{goalNode("g", "", graph.StatusPending)}}),
		events.NewGoalStatusChanged("g", graph.StatusPending, graph.StatusActive, clock),
		events.NewGoalStatusChanged("g", graph.StatusActive, graph.StatusDone, clock.Add(time.Minute)),
		events.NewSimulationResult("sim", nil, 1, time.Second, true, nil),
	}}

	require.NoError(t, s.Run(context.Background(), src))

	n, ok := s.Graph().Node("g")
	require.True(t, ok)
	g, _ := graph.AsGoal(n)
	assert.Equal(t, graph.StatusDone, g.Status)
	assert.Equal(t, events.OverlaySimulation, s.State().Overlay)
}

func TestRunStopsOnCancel(t *testing.T) {
	s := newSession(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, blockingSource{}) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReturnsJournalError(t *testing.T) {
	s := newSession(t, Options{Journal: &memJournal{err: errors.New("locked")}})
	src := &sliceSource{events: []events.SystemEvent{
		events.NewError("a", nil),
		events.NewError("b", nil),
	}}
	assert.Error(t, s.Run(context.Background(), src))
}

func TestLoadComputesLevels(t *testing.T) {
	s := newSession(t, Options{})
	s.Load([]graph.Node{
		goalNode("a", "", graph.StatusPending),
		goalNode("b", "a", graph.StatusPending),
		goalNode("c", "b", graph.StatusPending),
	}, []graph.Edge{{ID: "e1", Source: "a", Target: "b"}})

	n, _ := s.Graph().Node("c")
	g, _ := graph.AsGoal(n)
	require.NotNil(t, g.Level)
	assert.Equal(t, 2, *g.Level)
	assert.Len(t, s.Graph().Edges(), 1)
}

func TestTimelineCapturedOnChanges(t *testing.T) {
	now := clock
	s := newSession(t, Options{Now: func() time.Time { return now }})
	s.Load([]graph.Node{goalNode("a", "", graph.StatusActive)}, nil)
	ctx := context.Background()

	_, _ = s.Dispatch(ctx, events.NewSelectNode("a", graph.NodeTypeGoal))
	now = now.Add(time.Minute)
	_, _ = s.Dispatch(ctx, events.NewApplyOverlay(events.OverlayHeatmap))
	now = now.Add(time.Minute)

	require.Equal(t, 2, s.Timeline().Len())
	assert.Equal(t, 1, s.Timeline().List()[0].Metadata.ActiveGoals)

	_, _ = s.Dispatch(ctx, events.NewTimelineJump(clock.Add(30*time.Second)))
	assert.Equal(t, events.OverlayNone, s.State().Overlay)
	assert.Equal(t, 2, s.Timeline().Len(), "scrubbing must not record history")

	_, _ = s.Dispatch(ctx, events.NewReturnToLive())
	assert.Equal(t, events.OverlayHeatmap, s.State().Overlay)
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newSession(t, Options{Metrics: metrics.New(reg)})
	ctx := context.Background()

	_, _ = s.Dispatch(ctx, events.NewChangeMode(events.ModeExploit))
	_, _ = s.Dispatch(ctx, events.NewChangeMode(events.ModeExplore))
	_, err := s.HandleSystemEvent(ctx, events.NewGraphUpdated(graph.Diff{RemovedNodes: []string{"missing"}}))
	require.NoError(t, err)

	// accepted and rejected CHANGE_MODE
	n, err := testutil.GatherAndCount(reg, "goaldeck_statemachine_dispatches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "goaldeck_session_system_events_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFiltersFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Filters.ShowDone = false
	depth := 2
	cfg.Filters.MaxDepth = &depth

	f := FiltersFromConfig(cfg.Filters)
	assert.True(t, f.ShowPending)
	assert.False(t, f.ShowDone)
	require.NotNil(t, f.MaxDepth)
	assert.Equal(t, 2, *f.MaxDepth)
}

func TestSessionsAreIndependent(t *testing.T) {
	a := newSession(t, Options{})
	b := newSession(t, Options{})
	assert.NotEqual(t, a.ID(), b.ID())

	_, _ = a.Dispatch(context.Background(), events.NewApplyOverlay(events.OverlayHeatmap))
	assert.Equal(t, events.OverlayNone, b.State().Overlay)
}
