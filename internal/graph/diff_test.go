package graph

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffJSONCarriesNodeTypes(t *testing.T) {
	lvl := 1
	child := goal("c", "r", StatusPending)
	child.Level = &lvl
	child.Children = []string{"leaf"}

	in := Diff{
		AddedNodes:   []Node{goal("r", "", StatusActive), child, Agent{ID: "ag", Name: "planner", Role: "lead"}, Test{ID: "t", Name: "smoke", Passed: true}},
		UpdatedNodes: []NodePatch{ProgressPatch("r", 0.5)},
		RemovedNodes: []string{"old"},
		AddedEdges:   []Edge{{ID: "e", Source: "r", Target: "c", Relation: RelationDependency, Strength: 0.4}},
		RemovedEdges: []string{"e-old"},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"agent"`)

	var out Diff
	require.NoError(t, json.Unmarshal(data, &out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("diff changed over the wire (-in +out):\n%s", diff)
	}
}

func TestUnmarshalNodeRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalNode([]byte(`{"type":"planet","id":"p"}`))
	require.Error(t, err)

	var d Diff
	err = json.Unmarshal([]byte(`{"addedNodes":[{"type":"planet","id":"p"}]}`), &d)
	require.Error(t, err)
}

func TestPatchIgnoresFieldsOfOtherVariants(t *testing.T) {
	progress := 0.9
	name := "renamed"
	p := NodePatch{ID: "s", Progress: &progress, Name: &name}

	out := p.Apply(Skill{ID: "s", Name: "old", Description: "d"})
	assert.Equal(t, Skill{ID: "s", Name: "renamed", Description: "d"}, out)
}

func TestPatchDetachesParent(t *testing.T) {
	root := ""
	out := NodePatch{ID: "c", ParentID: &root}.Apply(goal("c", "r", StatusActive))
	assert.Empty(t, out.(Goal).ParentID)
}

func TestComputeDepths(t *testing.T) {
	nodes := []Node{
		goal("r", "", StatusActive),
		goal("a", "r", StatusActive),
		goal("b", "a", StatusActive),
		goal("orphan", "missing", StatusActive),
		goal("x", "y", StatusActive),
		goal("y", "x", StatusActive),
		Memory{ID: "m"},
	}

	depths := ComputeDepths(nodes)
	assert.Equal(t, 0, depths["r"])
	assert.Equal(t, 1, depths["a"])
	assert.Equal(t, 2, depths["b"])
	assert.Equal(t, 1, depths["orphan"])
	assert.Equal(t, 1, depths["x"])
	_, hasMemory := depths["m"]
	assert.False(t, hasMemory)

	leveled := WithComputedLevels(nodes)
	b, ok := AsGoal(leveled[2])
	require.True(t, ok)
	require.NotNil(t, b.Level)
	assert.Equal(t, 2, *b.Level)
	_, stillMemory := leveled[6].(Memory)
	assert.True(t, stillMemory)
}
