package evaluator

import (
	"testing"

	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

func recursiveRelType() *types.LogicalType {
	return &types.LogicalType{ID: types.TypeRecursiveRel, Fields: []types.StructField{
		{Name: "nodes", Type: types.NewVarListType(types.NewNodeType())},
		{Name: "rels", Type: types.NewVarListType(types.NewRelType())},
	}}
}

func setNodeAt(v *vector.ValueVector, pos uint32, id types.InternalID, label string) {
	v.SetNull(pos, false)
	idField, _ := v.FieldByName("_id")
	idField.SetNull(pos, false)
	idField.SetID(pos, id)
	labelField, _ := v.FieldByName("_label")
	labelField.SetNull(pos, false)
	labelField.SetStr(pos, label)
}

// A path over NODE, RECURSIVE_REL, NODE children: list sizes sum the
// contributions (single NODE adds one, RECURSIVE_REL adds its list
// sizes), and field vectors route by name.
func TestPathEvaluatorAssemblesLists(t *testing.T) {
	ctx := NewContext()
	chunk := vector.NewDataChunk(3)
	chunk.SetSize(1)

	left := vector.New(types.NewNodeType(), chunk.State)
	setNodeAt(left, 0, types.InternalID{TableID: 1, Offset: 10}, "T")

	recursive := vector.New(recursiveRelType(), chunk.State)
	recursive.SetNull(0, false)
	rnodes, _ := recursive.FieldByName("nodes")
	entry := rnodes.AddList(0, 2)
	rnodes.SetNull(0, false)
	setNodeAt(rnodes.ListData(), uint32(entry.Offset), types.InternalID{TableID: 1, Offset: 11}, "T")
	setNodeAt(rnodes.ListData(), uint32(entry.Offset+1), types.InternalID{TableID: 1, Offset: 12}, "T")
	rrels, _ := recursive.FieldByName("rels")
	relEntry := rrels.AddList(0, 1)
	rrels.SetNull(0, false)
	rrels.ListData().SetNull(uint32(relEntry.Offset), false)

	right := vector.New(types.NewNodeType(), chunk.State)
	setNodeAt(right, 0, types.InternalID{TableID: 1, Offset: 13}, "T")

	chunk.Insert(0, left)
	chunk.Insert(1, recursive)
	chunk.Insert(2, right)
	rs := vector.NewResultSet(chunk)

	path := NewPath(expression.PathType(), []Evaluator{
		NewReference(0, 0), NewReference(0, 1), NewReference(0, 2),
	})
	if err := path.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := path.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	result := path.ResultVector()
	nodesField, _ := result.FieldByName("nodes")
	relsField, _ := result.FieldByName("rels")
	nodesEntry := nodesField.ListEntryAt(0)
	relsEntry := relsField.ListEntryAt(0)
	if nodesEntry.Size != 4 {
		t.Fatalf("nodes size = %d, want 4 (1 + 2 recursive + 1)", nodesEntry.Size)
	}
	if relsEntry.Size != 1 {
		t.Fatalf("rels size = %d, want 1", relsEntry.Size)
	}
	// Node ids arrive in path order.
	idField, _ := nodesField.ListData().FieldByName("_id")
	wantOffsets := []types.Offset{10, 11, 12, 13}
	for i, w := range wantOffsets {
		got := idField.ID(uint32(nodesEntry.Offset) + uint32(i))
		if got.Offset != w {
			t.Errorf("node %d offset = %d, want %d", i, got.Offset, w)
		}
	}
}

// A null recursive child contributes nothing.
func TestPathEvaluatorNullRecursive(t *testing.T) {
	ctx := NewContext()
	chunk := vector.NewDataChunk(2)
	chunk.SetSize(1)
	node := vector.New(types.NewNodeType(), chunk.State)
	setNodeAt(node, 0, types.InternalID{TableID: 1, Offset: 1}, "T")
	recursive := vector.New(recursiveRelType(), chunk.State)
	recursive.SetNull(0, true)
	chunk.Insert(0, node)
	chunk.Insert(1, recursive)
	rs := vector.NewResultSet(chunk)

	path := NewPath(expression.PathType(), []Evaluator{NewReference(0, 0), NewReference(0, 1)})
	if err := path.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := path.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	nodesField, _ := path.ResultVector().FieldByName("nodes")
	if nodesField.ListEntryAt(0).Size != 1 {
		t.Errorf("nodes size = %d, want 1", nodesField.ListEntryAt(0).Size)
	}
}
