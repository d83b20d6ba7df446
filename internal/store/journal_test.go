package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goaldeck/internal/events"
	"goaldeck/internal/graph"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestAppendAndReplayInOrder(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	at := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	stream := []events.SystemEvent{
		events.NewGraphUpdated(graph.Diff{
			AddedNodes: []graph.Node{graph.Goal{ID: "g1", Intent: "ship it", Status: graph.StatusPending}},
		}),
		events.NewGoalStatusChanged("g1", graph.StatusPending, graph.StatusActive, at),
		events.NewConflictDetected("c1", "g1", "g2", 0.9, "shared budget"),
		events.NewExecutionProgress("g1", 0.5, "build"),
	}
	for i, ev := range stream {
		seq, err := j.Append(ctx, "s1", ev)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), seq)
	}
	_, err := j.Append(ctx, "s2", events.NewError("other session", nil))
	require.NoError(t, err)

	var got []Record
	require.NoError(t, j.Replay(ctx, "s1", func(r Record) error {
		got = append(got, r)
		return nil
	}))

	require.Len(t, got, len(stream))
	for i, r := range got {
		assert.Equal(t, int64(i+1), r.Seq)
		assert.Equal(t, stream[i].Kind(), r.Kind)
		assert.Equal(t, stream[i].Kind(), r.Event.Kind())
		assert.Equal(t, "s1", r.SessionID)
		assert.NotEmpty(t, r.ID)
	}

	gu := got[0].Event.(events.GraphUpdated)
	require.Len(t, gu.Diff.AddedNodes, 1)
	g, ok := graph.AsGoal(gu.Diff.AddedNodes[0])
	require.True(t, ok)
	assert.Equal(t, "ship it", g.Intent)

	sc := got[1].Event.(events.GoalStatusChanged)
	assert.True(t, at.Equal(sc.Timestamp))
	assert.Equal(t, graph.StatusActive, sc.NewStatus)
}

func TestReplayStopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	for i := 0; i < 3; i++ {
		_, err := j.Append(ctx, "s", events.NewExecutionProgress("g", 0.1, ""))
		require.NoError(t, err)
	}

	stop := errors.New("stop")
	calls := 0
	err := j.Replay(ctx, "s", func(Record) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestSessionsAndCount(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for _, s := range []string{"a", "a", "b"} {
		_, err := j.Append(ctx, s, events.NewError("x", nil))
		require.NoError(t, err)
	}

	n, err := j.Count(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "b", sessions[0].SessionID)
	assert.Equal(t, "a", sessions[1].SessionID)
	assert.Equal(t, 2, sessions[1].Events)
	assert.True(t, sessions[1].LastAt.After(sessions[1].FirstAt))
}

func TestReopenKeepsEvents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := OpenJournal(path)
	require.NoError(t, err)
	_, err = j.Append(ctx, "s", events.NewError("persisted", nil))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	seq, err := j.Append(ctx, "s", events.NewError("second", nil))
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)
}

func TestClosedJournal(t *testing.T) {
	j := openTestJournal(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err := j.Append(context.Background(), "s", events.NewError("x", nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.Replay(context.Background(), "s", func(Record) error { return nil }), ErrClosed)
}
