package graph

import (
	"encoding/json"
	"fmt"
	"time"
)

// Diff is the unit of incremental synchronization.
type Diff struct {
	AddedNodes   []Node      `json:"addedNodes"`
	UpdatedNodes []NodePatch `json:"updatedNodes"`
	RemovedNodes []string    `json:"removedNodes"`
	AddedEdges   []Edge      `json:"addedEdges"`
	RemovedEdges []string    `json:"removedEdges"`
}

// IsEmpty reports whether the diff changes nothing.
func (d Diff) IsEmpty() bool {
	return len(d.AddedNodes) == 0 && len(d.UpdatedNodes) == 0 && len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 && len(d.RemovedEdges) == 0
}

// NodePatch is a partial node keyed by id. Nil fields are left untouched;
// fields that do not exist on the target variant are ignored.
type NodePatch struct {
	ID        string     `json:"id"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`

	// Goal fields
	Intent   *string       `json:"intent,omitempty"`
	Category *GoalCategory `json:"goalType,omitempty"`
	Progress *float64      `json:"progress,omitempty"`
	Risk     *RiskScores   `json:"risk,omitempty"`
	ParentID *string       `json:"parentId,omitempty"` // "" detaches to root
	Children *[]string     `json:"children,omitempty"`
	Level    *int          `json:"level,omitempty"`
	Atomic   *bool         `json:"isAtomic,omitempty"`

	// Goal and Agent
	Status *string `json:"status,omitempty"`

	// Agent, Skill and Test
	Name *string `json:"name,omitempty"`

	// Agent
	Role *string `json:"role,omitempty"`

	// Skill
	Description *string `json:"description,omitempty"`

	// Memory
	Content *string  `json:"content,omitempty"`
	Kind    *string  `json:"kind,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`

	// Test
	Passed *bool `json:"passed,omitempty"`
}

// Apply shallow-merges p into n and returns the merged copy.
func (p NodePatch) Apply(n Node) Node {
	m := &patchApplier{patch: p}
	n.clone().Accept(m)
	return m.out
}

type patchApplier struct {
	patch NodePatch
	out   Node
}

func (m *patchApplier) touch(l *Lifecycle) {
	if m.patch.UpdatedAt != nil {
		l.UpdatedAt = *m.patch.UpdatedAt
	}
}

func (m *patchApplier) VisitGoal(g Goal) {
	p := m.patch
	m.touch(&g.Lifecycle)
	if p.Intent != nil {
		g.Intent = *p.Intent
	}
	if p.Category != nil {
		g.Category = *p.Category
	}
	if p.Status != nil {
		g.Status = GoalStatus(*p.Status)
	}
	if p.Progress != nil {
		g.Progress = *p.Progress
	}
	if p.Risk != nil {
		g.Risk = *p.Risk
	}
	if p.ParentID != nil {
		g.ParentID = *p.ParentID
	}
	if p.Children != nil {
		g.Children = append([]string(nil), (*p.Children)...)
	}
	if p.Level != nil {
		lvl := *p.Level
		g.Level = &lvl
	}
	if p.Atomic != nil {
		g.Atomic = *p.Atomic
	}
	m.out = g
}

func (m *patchApplier) VisitAgent(a Agent) {
	p := m.patch
	m.touch(&a.Lifecycle)
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	m.out = a
}

func (m *patchApplier) VisitSkill(s Skill) {
	p := m.patch
	m.touch(&s.Lifecycle)
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	m.out = s
}

func (m *patchApplier) VisitMemory(mem Memory) {
	p := m.patch
	m.touch(&mem.Lifecycle)
	if p.Content != nil {
		mem.Content = *p.Content
	}
	if p.Kind != nil {
		mem.Kind = *p.Kind
	}
	if p.Weight != nil {
		mem.Weight = *p.Weight
	}
	m.out = mem
}

func (m *patchApplier) VisitTest(t Test) {
	p := m.patch
	m.touch(&t.Lifecycle)
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Passed != nil {
		t.Passed = *p.Passed
	}
	m.out = t
}

// StatusPatch builds a patch that only changes status.
func StatusPatch(id string, status GoalStatus, at time.Time) NodePatch {
	s := string(status)
	p := NodePatch{ID: id, Status: &s}
	if !at.IsZero() {
		p.UpdatedAt = &at
	}
	return p
}

// ProgressPatch builds a patch that only changes progress.
func ProgressPatch(id string, progress float64) NodePatch {
	return NodePatch{ID: id, Progress: &progress}
}

// MarshalNode encodes a node with its "type" discriminator.
func MarshalNode(n Node) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("failed to marshal node: nil node")
	}
	enc := &nodeEncoder{}
	n.Accept(enc)
	return enc.data, enc.err
}

type nodeEncoder struct {
	data []byte
	err  error
}

// flatten adds the "type" key to the variant's own JSON object.
func flatten(t NodeType, v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(t)
	fields["type"] = typ
	return json.Marshal(fields)
}

func (e *nodeEncoder) VisitGoal(g Goal)     { e.data, e.err = flatten(NodeTypeGoal, g) }
func (e *nodeEncoder) VisitAgent(a Agent)   { e.data, e.err = flatten(NodeTypeAgent, a) }
func (e *nodeEncoder) VisitSkill(s Skill)   { e.data, e.err = flatten(NodeTypeSkill, s) }
func (e *nodeEncoder) VisitMemory(m Memory) { e.data, e.err = flatten(NodeTypeMemory, m) }
func (e *nodeEncoder) VisitTest(t Test)     { e.data, e.err = flatten(NodeTypeTest, t) }

// UnmarshalNode decodes a node using its "type" discriminator.
func UnmarshalNode(data []byte) (Node, error) {
	var head struct {
		Type NodeType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to parse node: %w", err)
	}

	var (
		n   Node
		err error
	)
	switch head.Type {
	case NodeTypeGoal:
		var g Goal
		err = json.Unmarshal(data, &g)
		n = g
	case NodeTypeAgent:
		var a Agent
		err = json.Unmarshal(data, &a)
		n = a
	case NodeTypeSkill:
		var s Skill
		err = json.Unmarshal(data, &s)
		n = s
	case NodeTypeMemory:
		var m Memory
		err = json.Unmarshal(data, &m)
		n = m
	case NodeTypeTest:
		var t Test
		err = json.Unmarshal(data, &t)
		n = t
	default:
		return nil, fmt.Errorf("unknown node type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s node: %w", head.Type, err)
	}
	return n, nil
}

type diffWire struct {
	AddedNodes   []json.RawMessage `json:"addedNodes"`
	UpdatedNodes []NodePatch       `json:"updatedNodes"`
	RemovedNodes []string          `json:"removedNodes"`
	AddedEdges   []Edge            `json:"addedEdges"`
	RemovedEdges []string          `json:"removedEdges"`
}

// MarshalJSON encodes added nodes with their type discriminator.
func (d Diff) MarshalJSON() ([]byte, error) {
	w := diffWire{
		UpdatedNodes: d.UpdatedNodes,
		RemovedNodes: d.RemovedNodes,
		AddedEdges:   d.AddedEdges,
		RemovedEdges: d.RemovedEdges,
	}
	for _, n := range d.AddedNodes {
		raw, err := MarshalNode(n)
		if err != nil {
			return nil, err
		}
		w.AddedNodes = append(w.AddedNodes, raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes added nodes by their type discriminator.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var w diffWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Diff{
		UpdatedNodes: w.UpdatedNodes,
		RemovedNodes: w.RemovedNodes,
		AddedEdges:   w.AddedEdges,
		RemovedEdges: w.RemovedEdges,
	}
	for _, raw := range w.AddedNodes {
		n, err := UnmarshalNode(raw)
		if err != nil {
			return err
		}
		out.AddedNodes = append(out.AddedNodes, n)
	}
	*d = out
	return nil
}
