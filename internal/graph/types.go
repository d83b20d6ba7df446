// Package graph holds the canonical goal/agent/skill/memory graph mirrored
// from the goal execution backend.
//
// The Engine owns the node map exclusively. Nodes are replaced whole or
// shallow-merged through a Diff; callers never receive a value that aliases
// engine storage. Every render asks the engine for FilteredNodes, which runs
// the collapse/status/search/depth pipeline over the current map.
package graph

import "time"

// NodeType discriminates the Node variants.
type NodeType string

const (
	NodeTypeGoal   NodeType = "goal"
	NodeTypeAgent  NodeType = "agent"
	NodeTypeSkill  NodeType = "skill"
	NodeTypeMemory NodeType = "memory"
	NodeTypeTest   NodeType = "test"
)

// GoalStatus is a goal's lifecycle status.
type GoalStatus string

const (
	StatusPending GoalStatus = "pending"
	StatusActive  GoalStatus = "active"
	StatusDone    GoalStatus = "done"
	StatusBlocked GoalStatus = "blocked"
	StatusFailed  GoalStatus = "failed"
)

// GoalCategory classifies how a goal relates to completion.
type GoalCategory string

const (
	CategoryAchievable    GoalCategory = "achievable"
	CategoryUnachievable  GoalCategory = "unachievable"
	CategoryPhilosophical GoalCategory = "philosophical"
)

// RelationKind is the meaning of an edge.
type RelationKind string

const (
	RelationCausal        RelationKind = "causal"
	RelationDependency    RelationKind = "dependency"
	RelationConflict      RelationKind = "conflict"
	RelationReinforcement RelationKind = "reinforcement"
)

// Lifecycle carries the timestamps shared by all node variants.
type Lifecycle struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Node is one of Goal, Agent, Skill, Memory or Test. The interface is sealed;
// use Accept with a NodeVisitor to handle every variant.
type Node interface {
	NodeID() string
	Type() NodeType
	Times() Lifecycle
	Accept(v NodeVisitor)
	clone() Node
}

// NodeVisitor has one method per Node variant.
type NodeVisitor interface {
	VisitGoal(Goal)
	VisitAgent(Agent)
	VisitSkill(Skill)
	VisitMemory(Memory)
	VisitTest(Test)
}

// RiskScores are backend estimates in [0,1].
type RiskScores struct {
	Feasibility float64 `json:"feasibility"`
	Conflict    float64 `json:"conflict"`
	Uncertainty float64 `json:"uncertainty"`
}

// Goal is a unit of work in the backend's planning hierarchy.
type Goal struct {
	ID string `json:"id"`
	Lifecycle
	Intent   string       `json:"intent"`
	Category GoalCategory `json:"goalType"`
	Status   GoalStatus   `json:"status"`
	Progress float64      `json:"progress"`
	Risk     RiskScores   `json:"risk"`
	ParentID string       `json:"parentId,omitempty"` // empty for roots
	Children []string     `json:"children,omitempty"`
	Level    *int         `json:"level,omitempty"` // computed depth, when the backend supplies one
	Atomic   bool         `json:"isAtomic,omitempty"`
}

// Agent is an executor working on goals.
type Agent struct {
	ID string `json:"id"`
	Lifecycle
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

// Skill is a capability an agent can apply.
type Skill struct {
	ID string `json:"id"`
	Lifecycle
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Memory is a stored trace the backend consults.
type Memory struct {
	ID string `json:"id"`
	Lifecycle
	Content string  `json:"content"`
	Kind    string  `json:"kind,omitempty"`
	Weight  float64 `json:"weight,omitempty"`
}

// Test is a verification attached to a goal.
type Test struct {
	ID string `json:"id"`
	Lifecycle
	Name   string `json:"name"`
	GoalID string `json:"goalId,omitempty"`
	Passed bool   `json:"passed"`
}

func (g Goal) NodeID() string   { return g.ID }
func (a Agent) NodeID() string  { return a.ID }
func (s Skill) NodeID() string  { return s.ID }
func (m Memory) NodeID() string { return m.ID }
func (t Test) NodeID() string   { return t.ID }

func (Goal) Type() NodeType   { return NodeTypeGoal }
func (Agent) Type() NodeType  { return NodeTypeAgent }
func (Skill) Type() NodeType  { return NodeTypeSkill }
func (Memory) Type() NodeType { return NodeTypeMemory }
func (Test) Type() NodeType   { return NodeTypeTest }

func (g Goal) Times() Lifecycle   { return g.Lifecycle }
func (a Agent) Times() Lifecycle  { return a.Lifecycle }
func (s Skill) Times() Lifecycle  { return s.Lifecycle }
func (m Memory) Times() Lifecycle { return m.Lifecycle }
func (t Test) Times() Lifecycle   { return t.Lifecycle }

func (g Goal) Accept(v NodeVisitor)   { v.VisitGoal(g) }
func (a Agent) Accept(v NodeVisitor)  { v.VisitAgent(a) }
func (s Skill) Accept(v NodeVisitor)  { v.VisitSkill(s) }
func (m Memory) Accept(v NodeVisitor) { v.VisitMemory(m) }
func (t Test) Accept(v NodeVisitor)   { v.VisitTest(t) }

func (g Goal) clone() Node {
	if g.Children != nil {
		g.Children = append([]string(nil), g.Children...)
	}
	if g.Level != nil {
		lvl := *g.Level
		g.Level = &lvl
	}
	return g
}

func (a Agent) clone() Node  { return a }
func (s Skill) clone() Node  { return s }
func (m Memory) clone() Node { return m }
func (t Test) clone() Node   { return t }

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	if n == nil {
		return nil
	}
	return n.clone()
}

// AsGoal returns n as a Goal when it is one.
func AsGoal(n Node) (Goal, bool) {
	g, ok := n.(Goal)
	return g, ok
}

// Edge connects two nodes by id. Endpoints may dangle after removals.
type Edge struct {
	ID       string       `json:"id"`
	Source   string       `json:"source"`
	Target   string       `json:"target"`
	Relation RelationKind `json:"type"`
	Strength float64      `json:"strength"`
	Label    string       `json:"label,omitempty"`
}
