package uistate

import (
	"time"

	"github.com/google/uuid"

	"goaldeck/internal/events"
)

// SnapshotMetadata summarizes a snapshot for timeline listings.
type SnapshotMetadata struct {
	Mode        events.Mode    `json:"mode"`
	Focus       Focus          `json:"focus"`
	Overlay     events.Overlay `json:"overlay"`
	ActiveGoals int            `json:"activeGoals"`
}

// Snapshot is an immutable, timestamped deep copy of a State.
type Snapshot struct {
	id        string
	timestamp time.Time
	state     State
	metadata  SnapshotMetadata
}

// NewSnapshot captures s at the given time.
func NewSnapshot(s State, at time.Time, activeGoals int) Snapshot {
	return Snapshot{
		id:        uuid.NewString(),
		timestamp: at.UTC(),
		state:     s.Clone(),
		metadata: SnapshotMetadata{
			Mode:        s.Mode,
			Focus:       s.Focus,
			Overlay:     s.Overlay,
			ActiveGoals: activeGoals,
		},
	}
}

func (s Snapshot) ID() string                 { return s.id }
func (s Snapshot) Timestamp() time.Time       { return s.timestamp }
func (s Snapshot) Metadata() SnapshotMetadata { return s.metadata }

// State returns a deep copy of the captured state.
func (s Snapshot) State() State {
	return s.state.Clone()
}

// CreateSnapshot deep-copies the live state and timestamps it.
func (m *Machine) CreateSnapshot() Snapshot {
	active := 0
	if m.opts.ActiveGoals != nil {
		active = m.opts.ActiveGoals()
	}
	return NewSnapshot(m.state, m.opts.Now(), active)
}

// RestoreSnapshot replaces the whole live state with the snapshot's copy.
func (m *Machine) RestoreSnapshot(s Snapshot) {
	m.state = s.State()
	m.violations = Validate(m.state)
	if len(m.violations) > 0 {
		m.log.Warn("Restored snapshot %s violates %v", s.id, m.violations)
	}
}
