package vector

import (
	"testing"

	"github.com/untoldecay/kuzugo/internal/types"
)

func TestSelectionVectorModes(t *testing.T) {
	sel := NewSelectionVector(DefaultCapacity)
	sel.SetToUnfiltered(5)
	if !sel.IsUnfiltered() {
		t.Fatal("expected unfiltered mode")
	}
	for i := uint32(0); i < 5; i++ {
		if sel.Pos(i) != i {
			t.Fatalf("identity Pos(%d) = %d", i, sel.Pos(i))
		}
	}
	buf := sel.MutableBuffer()
	buf[0], buf[1] = 3, 7
	sel.SetToFiltered()
	sel.SelectedSize = 2
	if sel.Pos(0) != 3 || sel.Pos(1) != 7 {
		t.Errorf("filtered positions = %d,%d, want 3,7", sel.Pos(0), sel.Pos(1))
	}
}

func TestNullMask(t *testing.T) {
	v := New(types.NewType(types.TypeInt64), NewUnflatState(4))
	if v.IsNull(2) {
		t.Fatal("fresh vector should not be null")
	}
	v.SetNull(2, true)
	if !v.IsNull(2) || v.IsNull(1) {
		t.Error("null mask mismatch")
	}
	v.SetNull(2, false)
	if v.IsNull(2) {
		t.Error("null bit survived clear")
	}
}

func TestAddListGrowsAmortized(t *testing.T) {
	state := NewUnflatState(4)
	v := New(types.NewVarListType(types.NewType(types.TypeInt64)), state)
	e1 := v.AddList(0, 3)
	e2 := v.AddList(1, 2)
	if e1.Offset != 0 || e1.Size != 3 {
		t.Errorf("first entry = %+v", e1)
	}
	if e2.Offset != 3 || e2.Size != 2 {
		t.Errorf("second entry = %+v, want offset 3", e2)
	}
	for i := uint64(0); i < 3; i++ {
		v.ListData().SetInt64(uint32(e1.Offset+i), int64(i))
	}
	got := v.ListEntryAt(0)
	if got != e1 {
		t.Errorf("stored entry = %+v, want %+v", got, e1)
	}
}

func TestCopyFromVectorDataDeepCopiesLists(t *testing.T) {
	state := NewUnflatState(4)
	listType := types.NewVarListType(types.NewType(types.TypeString))
	src := New(listType, state)
	entry := src.AddList(0, 2)
	src.ListData().SetStr(uint32(entry.Offset), "a")
	src.ListData().SetStr(uint32(entry.Offset+1), "b")
	src.SetNull(0, false)

	dst := New(listType, state)
	dst.CopyFromVectorData(0, src, 0)
	got := dst.GetAsValue(0)
	if len(got.ListVal) != 2 || got.ListVal[0].StringVal != "a" || got.ListVal[1].StringVal != "b" {
		t.Errorf("deep copy = %v", got)
	}

	// Mutating the source payload afterwards must not change the copy.
	src.ListData().SetStr(uint32(entry.Offset), "mutated")
	got = dst.GetAsValue(0)
	if got.ListVal[0].StringVal != "a" {
		t.Error("copy aliases source payload")
	}
}

func TestStructVectorRoundTrip(t *testing.T) {
	structType := types.NewStructType(
		types.StructField{Name: "x", Type: types.NewType(types.TypeInt64)},
		types.StructField{Name: "s", Type: types.NewType(types.TypeString)},
	)
	v := New(structType, NewUnflatState(2))
	val := types.Value{Type: structType, StructVal: []types.Value{
		types.NewInt64Value(9), types.NewStringValue("hi"),
	}}
	v.SetFromValue(1, val)
	got := v.GetAsValue(1)
	if !got.Equals(val) {
		t.Errorf("round trip = %v, want %v", got, val)
	}
	// Field lookup is case-insensitive.
	if f, ok := v.FieldByName("X"); !ok || f.Int64(1) != 9 {
		t.Error("case-insensitive field lookup failed")
	}
	if _, ok := v.FieldByName("missing"); ok {
		t.Error("unexpected field hit")
	}
}

func TestResetAuxiliaryBufferRewindsLists(t *testing.T) {
	v := New(types.NewVarListType(types.NewType(types.TypeInt64)), NewUnflatState(2))
	v.AddList(0, 100)
	v.ResetAuxiliaryBuffer()
	e := v.AddList(0, 1)
	if e.Offset != 0 {
		t.Errorf("offset after reset = %d, want 0", e.Offset)
	}
}

func TestFlatStateBroadcast(t *testing.T) {
	s := NewFlatState()
	if !s.IsFlat() || s.FlatPos() != 0 {
		t.Errorf("flat state pos = %d", s.FlatPos())
	}
	u := NewUnflatState(10)
	if u.IsFlat() {
		t.Error("unflat state reports flat")
	}
}
