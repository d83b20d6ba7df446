package events

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire form of an event: {"type": TAG, "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode serializes an event into its envelope.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("failed to encode event: nil event")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", ev.Type(), err)
	}
	return json.Marshal(Envelope{Type: ev.Type(), Payload: payload})
}

// DecodeUI parses a UIEvent envelope.
func DecodeUI(data []byte) (UIEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse event envelope: %w", err)
	}

	switch UIKind(env.Type) {
	case KindSelectNode:
		return decodeUI[SelectNode](env)
	case KindChangeMode:
		return decodeUI[ChangeMode](env)
	case KindChangeView:
		return decodeUI[ChangeView](env)
	case KindApplyOverlay:
		return decodeUI[ApplyOverlay](env)
	case KindClearOverlay:
		return decodeUI[ClearOverlay](env)
	case KindTimelineJump:
		return decodeUI[TimelineJump](env)
	case KindRequestDecompose:
		return decodeUI[RequestDecompose](env)
	case KindRequestSimulation:
		return decodeUI[RequestSimulation](env)
	case KindOverrideDecision:
		return decodeUI[OverrideDecision](env)
	case KindCancelOverride:
		return decodeUI[CancelOverride](env)
	case KindConstraintUpdate:
		return decodeUI[ConstraintUpdate](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
}

// DecodeSystem parses a SystemEvent envelope.
func DecodeSystem(data []byte) (SystemEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse event envelope: %w", err)
	}

	switch SystemKind(env.Type) {
	case KindGraphUpdated:
		return decodeSystem[GraphUpdated](env)
	case KindGoalStatusChanged:
		return decodeSystem[GoalStatusChanged](env)
	case KindConflictDetected:
		return decodeSystem[ConflictDetected](env)
	case KindSimulationResult:
		return decodeSystem[SimulationResult](env)
	case KindExecutionProgress:
		return decodeSystem[ExecutionProgress](env)
	case KindError:
		return decodeSystem[Error](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
}

func decodeUI[T UIEvent](env Envelope) (UIEvent, error) {
	var v T
	if err := decodePayload(env, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeSystem[T SystemEvent](env Envelope) (SystemEvent, error) {
	var v T
	if err := decodePayload(env, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodePayload treats a missing payload as the zero value, which is how
// payload-less events such as CLEAR_OVERLAY travel.
func decodePayload(env Envelope, v interface{}) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return nil
}
