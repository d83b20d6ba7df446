// Package timeline keeps a bounded, time-ordered history of UI state
// snapshots and serves TIMELINE_JUMP lookups for a uistate.Machine.
package timeline

import (
	"sort"
	"sync"
	"time"

	"goaldeck/internal/logging"
	"goaldeck/internal/uistate"
)

// DefaultMaxSnapshots bounds history when no limit is configured.
const DefaultMaxSnapshots = 256

// Entry is the listing form of a snapshot.
type Entry struct {
	ID        string                   `json:"id"`
	Timestamp time.Time                `json:"timestamp"`
	Metadata  uistate.SnapshotMetadata `json:"metadata"`
}

// Timeline is safe for concurrent use.
type Timeline struct {
	mu    sync.RWMutex
	snaps []uistate.Snapshot // ascending by timestamp
	max   int
	live  *uistate.Snapshot
	log   *logging.Logger
}

var _ uistate.SnapshotSource = (*Timeline)(nil)

// New creates a timeline holding at most max snapshots. The oldest are
// evicted first.
func New(max int, log *logging.Logger) *Timeline {
	if max <= 0 {
		max = DefaultMaxSnapshots
	}
	return &Timeline{
		max: max,
		log: logging.OrDefault(log, logging.CategoryTimeline),
	}
}

// Capture snapshots the machine's live state and records it.
func (t *Timeline) Capture(m *uistate.Machine) uistate.Snapshot {
	s := m.CreateSnapshot()
	t.Add(s)
	return s
}

// Add inserts s keeping timestamp order. Snapshots sharing a timestamp keep
// insertion order, so Lookup returns the latest one recorded.
func (t *Timeline) Add(s uistate.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sort.Search(len(t.snaps), func(i int) bool {
		return t.snaps[i].Timestamp().After(s.Timestamp())
	})
	t.snaps = append(t.snaps, uistate.Snapshot{})
	copy(t.snaps[i+1:], t.snaps[i:])
	t.snaps[i] = s

	if over := len(t.snaps) - t.max; over > 0 {
		t.log.Debug("Evicting %d snapshot(s), history bound %d", over, t.max)
		t.snaps = append([]uistate.Snapshot(nil), t.snaps[over:]...)
	}
}

// Lookup returns the latest snapshot taken at or before at.
func (t *Timeline) Lookup(at time.Time) (uistate.Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i := sort.Search(len(t.snaps), func(i int) bool {
		return t.snaps[i].Timestamp().After(at)
	})
	if i == 0 {
		t.log.Debug("No snapshot at or before %s", at.Format(time.RFC3339Nano))
		return uistate.Snapshot{}, false
	}
	return t.snaps[i-1], true
}

// StashLive holds the present state while the cursor is in the past.
func (t *Timeline) StashLive(s uistate.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = &s
}

// TakeLive returns and clears the stashed present state.
func (t *Timeline) TakeLive() (uistate.Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.live == nil {
		return uistate.Snapshot{}, false
	}
	s := *t.live
	t.live = nil
	return s, true
}

// List returns the recorded snapshots oldest first.
func (t *Timeline) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.snaps))
	for i, s := range t.snaps {
		out[i] = Entry{ID: s.ID(), Timestamp: s.Timestamp(), Metadata: s.Metadata()}
	}
	return out
}

// Len returns the number of recorded snapshots.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.snaps)
}
