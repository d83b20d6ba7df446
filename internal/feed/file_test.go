package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"goaldeck/internal/events"
	"goaldeck/internal/graph"
	"goaldeck/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() Options {
	return Options{Log: logging.Nop(logging.CategoryFeed)}
}

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func encodeLines(t *testing.T, evs ...events.SystemEvent) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, evs...))
	return buf.String()
}

func TestReadAll(t *testing.T) {
	content := "# recorded stream\n\n" + encodeLines(t,
		events.NewGraphUpdated(graph.Diff{AddedNodes: []graph.Node{graph.Goal{ID: "g1", Status: graph.StatusPending}}}),
		events.NewExecutionProgress("g1", 0.3, "plan"),
	)
	path := writeFeed(t, content)

	evs, err := ReadAll(context.Background(), path, quiet())
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, events.KindGraphUpdated, evs[0].Kind())
	assert.Equal(t, events.ExecutionProgress{NodeID: "g1", Progress: 0.3, Phase: "plan"}, evs[1])
}

func TestLastLineWithoutNewline(t *testing.T) {
	path := writeFeed(t, `{"type":"ERROR","payload":{"reason":"tail"}}`)

	evs, err := ReadAll(context.Background(), path, quiet())
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.Error{Reason: "tail"}, evs[0])
}

func TestMalformedLines(t *testing.T) {
	content := `{"type":"NOT_A_THING","payload":{}}` + "\n" +
		"not json\n" +
		`{"type":"ERROR","payload":{"reason":"ok"}}` + "\n"
	path := writeFeed(t, content)

	src, err := Open(path, quiet())
	require.NoError(t, err)
	defer src.Close()

	ev, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, events.KindError, ev.Kind())
	assert.Equal(t, 2, src.Skipped())

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	strict := quiet()
	strict.Strict = true
	_, err = ReadAll(context.Background(), path, strict)
	assert.ErrorIs(t, err, events.ErrUnknownEventType)
}

func TestFollowPicksUpAppends(t *testing.T) {
	path := writeFeed(t, encodeLines(t, events.NewError("first", nil)))

	opts := quiet()
	opts.Follow = true
	src, err := Open(path, opts)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", ev.(events.Error).Reason)

	got := make(chan events.SystemEvent, 1)
	errc := make(chan error, 1)
	go func() {
		ev, err := src.Next(ctx)
		if err != nil {
			errc <- err
			return
		}
		got <- ev
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	line := encodeLines(t, events.NewError("second", nil))
	// Split the write so the reader sees a partial line first.
	_, err = f.WriteString(line[:10])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = f.WriteString(line[10:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-got:
		assert.Equal(t, "second", ev.(events.Error).Reason)
	case err := <-errc:
		t.Fatalf("Next failed: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for appended event")
	}
}

func TestFollowStopsOnCancel(t *testing.T) {
	path := writeFeed(t, "")
	opts := quiet()
	opts.Follow = true
	src, err := Open(path, opts)
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = src.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.jsonl"), quiet())
	assert.Error(t, err)
}
