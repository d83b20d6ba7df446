package events

import (
	"time"

	"goaldeck/internal/graph"
)

// UIKind is the tag of a user intent.
type UIKind string

const (
	KindSelectNode        UIKind = "SELECT_NODE"
	KindChangeMode        UIKind = "CHANGE_MODE"
	KindChangeView        UIKind = "CHANGE_VIEW"
	KindApplyOverlay      UIKind = "APPLY_OVERLAY"
	KindClearOverlay      UIKind = "CLEAR_OVERLAY"
	KindTimelineJump      UIKind = "TIMELINE_JUMP"
	KindRequestDecompose  UIKind = "REQUEST_DECOMPOSE"
	KindRequestSimulation UIKind = "REQUEST_SIMULATION"
	KindOverrideDecision  UIKind = "OVERRIDE_DECISION"
	KindCancelOverride    UIKind = "CANCEL_OVERRIDE"
	KindConstraintUpdate  UIKind = "CONSTRAINT_UPDATE"
)

// UIEvent is a user intent. The interface is sealed.
type UIEvent interface {
	Event
	Kind() UIKind
	acceptUI(h UIHandler) error
}

// UIHandler has one method per UIEvent variant.
type UIHandler interface {
	SelectNode(SelectNode) error
	ChangeMode(ChangeMode) error
	ChangeView(ChangeView) error
	ApplyOverlay(ApplyOverlay) error
	ClearOverlay(ClearOverlay) error
	TimelineJump(TimelineJump) error
	RequestDecompose(RequestDecompose) error
	RequestSimulation(RequestSimulation) error
	OverrideDecision(OverrideDecision) error
	CancelOverride(CancelOverride) error
	ConstraintUpdate(ConstraintUpdate) error
}

// VisitUI routes ev to the handler method for its variant.
func VisitUI(ev UIEvent, h UIHandler) error {
	if ev == nil {
		ContractViolation("nil UIEvent", ev)
	}
	return ev.acceptUI(h)
}

// SelectNode focuses a node. An empty NodeID clears focus.
type SelectNode struct {
	NodeID   string         `json:"nodeId"`
	NodeType graph.NodeType `json:"nodeType"`
}

// ChangeMode switches the operator mode.
type ChangeMode struct {
	Mode Mode `json:"mode"`
}

// ChangeView switches the active screen.
type ChangeView struct {
	View View `json:"view"`
}

// ApplyOverlay activates an overlay, replacing any active one.
type ApplyOverlay struct {
	Overlay Overlay `json:"overlayType"`
}

// ClearOverlay removes the active overlay.
type ClearOverlay struct{}

// TimelineJump moves the timeline cursor. A zero At returns to live.
type TimelineJump struct {
	At time.Time `json:"timestamp"`
}

// RequestDecompose asks the backend to decompose a goal.
type RequestDecompose struct {
	GoalID  string                 `json:"goalId"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// RequestSimulation asks the backend to simulate from a node.
type RequestSimulation struct {
	NodeID  string                 `json:"nodeId"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// OverrideDecision puts the operator in control of a backend decision.
type OverrideDecision struct {
	DecisionID string `json:"decisionId"`
	Reason     string `json:"reason,omitempty"`
}

// CancelOverride releases an active override.
type CancelOverride struct{}

// ConstraintUpdate replaces one constraint value.
type ConstraintUpdate struct {
	ConstraintType ConstraintType `json:"constraintType"`
	Value          interface{}    `json:"value"`
}

func (SelectNode) Type() string        { return string(KindSelectNode) }
func (ChangeMode) Type() string        { return string(KindChangeMode) }
func (ChangeView) Type() string        { return string(KindChangeView) }
func (ApplyOverlay) Type() string      { return string(KindApplyOverlay) }
func (ClearOverlay) Type() string      { return string(KindClearOverlay) }
func (TimelineJump) Type() string      { return string(KindTimelineJump) }
func (RequestDecompose) Type() string  { return string(KindRequestDecompose) }
func (RequestSimulation) Type() string { return string(KindRequestSimulation) }
func (OverrideDecision) Type() string  { return string(KindOverrideDecision) }
func (CancelOverride) Type() string    { return string(KindCancelOverride) }
func (ConstraintUpdate) Type() string  { return string(KindConstraintUpdate) }

func (SelectNode) Kind() UIKind        { return KindSelectNode }
func (ChangeMode) Kind() UIKind        { return KindChangeMode }
func (ChangeView) Kind() UIKind        { return KindChangeView }
func (ApplyOverlay) Kind() UIKind      { return KindApplyOverlay }
func (ClearOverlay) Kind() UIKind      { return KindClearOverlay }
func (TimelineJump) Kind() UIKind      { return KindTimelineJump }
func (RequestDecompose) Kind() UIKind  { return KindRequestDecompose }
func (RequestSimulation) Kind() UIKind { return KindRequestSimulation }
func (OverrideDecision) Kind() UIKind  { return KindOverrideDecision }
func (CancelOverride) Kind() UIKind    { return KindCancelOverride }
func (ConstraintUpdate) Kind() UIKind  { return KindConstraintUpdate }

func (e SelectNode) acceptUI(h UIHandler) error        { return h.SelectNode(e) }
func (e ChangeMode) acceptUI(h UIHandler) error        { return h.ChangeMode(e) }
func (e ChangeView) acceptUI(h UIHandler) error        { return h.ChangeView(e) }
func (e ApplyOverlay) acceptUI(h UIHandler) error      { return h.ApplyOverlay(e) }
func (e ClearOverlay) acceptUI(h UIHandler) error      { return h.ClearOverlay(e) }
func (e TimelineJump) acceptUI(h UIHandler) error      { return h.TimelineJump(e) }
func (e RequestDecompose) acceptUI(h UIHandler) error  { return h.RequestDecompose(e) }
func (e RequestSimulation) acceptUI(h UIHandler) error { return h.RequestSimulation(e) }
func (e OverrideDecision) acceptUI(h UIHandler) error  { return h.OverrideDecision(e) }
func (e CancelOverride) acceptUI(h UIHandler) error    { return h.CancelOverride(e) }
func (e ConstraintUpdate) acceptUI(h UIHandler) error  { return h.ConstraintUpdate(e) }

// NewSelectNode focuses nodeID of the given type.
func NewSelectNode(nodeID string, nodeType graph.NodeType) SelectNode {
	return SelectNode{NodeID: nodeID, NodeType: nodeType}
}

// NewClearFocus builds a SELECT_NODE that clears focus.
func NewClearFocus() SelectNode {
	return SelectNode{}
}

func NewChangeMode(mode Mode) ChangeMode {
	return ChangeMode{Mode: mode}
}

func NewChangeView(view View) ChangeView {
	return ChangeView{View: view}
}

func NewApplyOverlay(overlay Overlay) ApplyOverlay {
	return ApplyOverlay{Overlay: overlay}
}

func NewClearOverlay() ClearOverlay {
	return ClearOverlay{}
}

// NewTimelineJump moves the cursor to at, normalized to UTC.
func NewTimelineJump(at time.Time) TimelineJump {
	if at.IsZero() {
		return TimelineJump{}
	}
	return TimelineJump{At: at.UTC()}
}

// NewReturnToLive builds a TIMELINE_JUMP back to the present.
func NewReturnToLive() TimelineJump {
	return TimelineJump{}
}

func NewRequestDecompose(goalID string, options map[string]interface{}) RequestDecompose {
	return RequestDecompose{GoalID: goalID, Options: copyOptions(options)}
}

func NewRequestSimulation(nodeID string, options map[string]interface{}) RequestSimulation {
	return RequestSimulation{NodeID: nodeID, Options: copyOptions(options)}
}

func NewOverrideDecision(decisionID, reason string) OverrideDecision {
	return OverrideDecision{DecisionID: decisionID, Reason: reason}
}

func NewCancelOverride() CancelOverride {
	return CancelOverride{}
}

// NewConstraintUpdate copies slice values so the event stays immutable.
func NewConstraintUpdate(constraintType ConstraintType, value interface{}) ConstraintUpdate {
	if rules, ok := value.([]string); ok {
		value = append([]string(nil), rules...)
	}
	return ConstraintUpdate{ConstraintType: constraintType, Value: value}
}
