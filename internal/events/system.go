package events

import (
	"time"

	"goaldeck/internal/graph"
)

// SystemKind is the tag of a backend fact.
type SystemKind string

const (
	KindGraphUpdated      SystemKind = "GRAPH_UPDATED"
	KindGoalStatusChanged SystemKind = "GOAL_STATUS_CHANGED"
	KindConflictDetected  SystemKind = "CONFLICT_DETECTED"
	KindSimulationResult  SystemKind = "SIMULATION_RESULT"
	KindExecutionProgress SystemKind = "EXECUTION_PROGRESS"
	KindError             SystemKind = "ERROR"
)

// SystemEvent is a fact pushed by the backend. The interface is sealed.
type SystemEvent interface {
	Event
	Kind() SystemKind
	acceptSystem(h SystemHandler) error
}

// SystemHandler has one method per SystemEvent variant.
type SystemHandler interface {
	GraphUpdated(GraphUpdated) error
	GoalStatusChanged(GoalStatusChanged) error
	ConflictDetected(ConflictDetected) error
	SimulationResult(SimulationResult) error
	ExecutionProgress(ExecutionProgress) error
	Error(Error) error
}

// VisitSystem routes ev to the handler method for its variant.
func VisitSystem(ev SystemEvent, h SystemHandler) error {
	if ev == nil {
		ContractViolation("nil SystemEvent", ev)
	}
	return ev.acceptSystem(h)
}

// GraphUpdated carries an incremental graph diff.
type GraphUpdated struct {
	Diff graph.Diff `json:"diff"`
}

// GoalStatusChanged reports a goal lifecycle transition.
type GoalStatusChanged struct {
	GoalID    string           `json:"goalId"`
	OldStatus graph.GoalStatus `json:"oldStatus"`
	NewStatus graph.GoalStatus `json:"newStatus"`
	Timestamp time.Time        `json:"timestamp"`
}

// ConflictDetected reports a conflict between two goals.
type ConflictDetected struct {
	ConflictID  string  `json:"conflictId"`
	GoalA       string  `json:"goalA"`
	GoalB       string  `json:"goalB"`
	Severity    float64 `json:"severity"`
	Description string  `json:"description"`
}

// SimulationResult reports the outcome of a requested simulation.
type SimulationResult struct {
	SimulationID string        `json:"simulationId"`
	Path         []string      `json:"path"`
	Score        float64       `json:"score"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	Result       interface{}   `json:"result,omitempty"`
}

// ExecutionProgress reports progress on a node.
type ExecutionProgress struct {
	NodeID   string  `json:"nodeId"`
	Progress float64 `json:"progress"`
	Phase    string  `json:"phase,omitempty"`
}

// Error reports a backend or stream failure.
type Error struct {
	Reason  string                 `json:"reason"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (GraphUpdated) Type() string      { return string(KindGraphUpdated) }
func (GoalStatusChanged) Type() string { return string(KindGoalStatusChanged) }
func (ConflictDetected) Type() string  { return string(KindConflictDetected) }
func (SimulationResult) Type() string  { return string(KindSimulationResult) }
func (ExecutionProgress) Type() string { return string(KindExecutionProgress) }
func (Error) Type() string             { return string(KindError) }

func (GraphUpdated) Kind() SystemKind      { return KindGraphUpdated }
func (GoalStatusChanged) Kind() SystemKind { return KindGoalStatusChanged }
func (ConflictDetected) Kind() SystemKind  { return KindConflictDetected }
func (SimulationResult) Kind() SystemKind  { return KindSimulationResult }
func (ExecutionProgress) Kind() SystemKind { return KindExecutionProgress }
func (Error) Kind() SystemKind             { return KindError }

func (e GraphUpdated) acceptSystem(h SystemHandler) error      { return h.GraphUpdated(e) }
func (e GoalStatusChanged) acceptSystem(h SystemHandler) error { return h.GoalStatusChanged(e) }
func (e ConflictDetected) acceptSystem(h SystemHandler) error  { return h.ConflictDetected(e) }
func (e SimulationResult) acceptSystem(h SystemHandler) error  { return h.SimulationResult(e) }
func (e ExecutionProgress) acceptSystem(h SystemHandler) error { return h.ExecutionProgress(e) }
func (e Error) acceptSystem(h SystemHandler) error             { return h.Error(e) }

func NewGraphUpdated(diff graph.Diff) GraphUpdated {
	return GraphUpdated{Diff: diff}
}

func NewGoalStatusChanged(goalID string, oldStatus, newStatus graph.GoalStatus, at time.Time) GoalStatusChanged {
	return GoalStatusChanged{GoalID: goalID, OldStatus: oldStatus, NewStatus: newStatus, Timestamp: at.UTC()}
}

// NewConflictDetected clamps severity to [0,1].
func NewConflictDetected(conflictID, goalA, goalB string, severity float64, description string) ConflictDetected {
	return ConflictDetected{
		ConflictID:  conflictID,
		GoalA:       goalA,
		GoalB:       goalB,
		Severity:    clamp01(severity),
		Description: description,
	}
}

func NewSimulationResult(simulationID string, path []string, score float64, duration time.Duration, success bool, result interface{}) SimulationResult {
	return SimulationResult{
		SimulationID: simulationID,
		Path:         append([]string(nil), path...),
		Score:        score,
		Duration:     duration,
		Success:      success,
		Result:       result,
	}
}

// NewExecutionProgress clamps progress to [0,1].
func NewExecutionProgress(nodeID string, progress float64, phase string) ExecutionProgress {
	return ExecutionProgress{NodeID: nodeID, Progress: clamp01(progress), Phase: phase}
}

func NewError(reason string, context map[string]interface{}) Error {
	return Error{Reason: reason, Context: copyOptions(context)}
}
