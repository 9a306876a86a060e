package vector

import (
	"fmt"

	"github.com/untoldecay/kuzugo/internal/types"
)

// ListEntry addresses a slice of a list vector's data vector.
type ListEntry struct {
	Offset uint64
	Size   uint64
}

// ValueVector is one column of a data chunk. Payload storage is selected
// by the logical type: fixed-width slots for scalars, a child data vector
// for lists, and per-field child vectors for structs. Variable-length
// payloads (strings, list data) live in Go-managed buffers that are
// reclaimed per batch via ResetAuxiliaryBuffer.
type ValueVector struct {
	Type  *types.LogicalType
	State *State
	Nulls NullMask

	bools     []bool
	ints      []int64
	floats    []float64
	strs      []string
	ids       []types.InternalID
	intervals []types.Interval

	listEntries []ListEntry
	listData    *ValueVector
	listSize    uint64

	fields []*ValueVector
}

// New allocates a vector of the given type with DefaultCapacity slots.
// Struct-typed vectors allocate one child vector per field sharing the
// parent's state.
func New(t *types.LogicalType, state *State) *ValueVector {
	v := &ValueVector{Type: t, State: state, Nulls: NewNullMask(DefaultCapacity)}
	switch t.ID {
	case types.TypeBool:
		v.bools = make([]bool, DefaultCapacity)
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial,
		types.TypeDate, types.TypeTimestamp:
		v.ints = make([]int64, DefaultCapacity)
	case types.TypeDouble, types.TypeFloat:
		v.floats = make([]float64, DefaultCapacity)
	case types.TypeString:
		v.strs = make([]string, DefaultCapacity)
	case types.TypeInternalID:
		v.ids = make([]types.InternalID, DefaultCapacity)
	case types.TypeInterval:
		v.intervals = make([]types.Interval, DefaultCapacity)
	case types.TypeVarList, types.TypeFixedList:
		v.listEntries = make([]ListEntry, DefaultCapacity)
		v.listData = New(t.Child, state)
	case types.TypeStruct, types.TypeNode, types.TypeRel, types.TypeRecursiveRel:
		v.fields = make([]*ValueVector, len(t.Fields))
		for i, f := range t.Fields {
			v.fields[i] = New(f.Type, state)
		}
	}
	return v
}

func (v *ValueVector) SetState(s *State) {
	v.State = s
	for _, f := range v.fields {
		f.SetState(s)
	}
	if v.listData != nil {
		v.listData.SetState(s)
	}
}

func (v *ValueVector) IsNull(pos uint32) bool        { return v.Nulls.IsNull(pos) }
func (v *ValueVector) SetNull(pos uint32, null bool) { v.Nulls.SetNull(pos, null) }

func (v *ValueVector) Bool(pos uint32) bool               { return v.bools[pos] }
func (v *ValueVector) Int64(pos uint32) int64             { return v.ints[pos] }
func (v *ValueVector) Float64(pos uint32) float64         { return v.floats[pos] }
func (v *ValueVector) Str(pos uint32) string              { return v.strs[pos] }
func (v *ValueVector) ID(pos uint32) types.InternalID     { return v.ids[pos] }
func (v *ValueVector) Interval(pos uint32) types.Interval { return v.intervals[pos] }
func (v *ValueVector) ListEntryAt(pos uint32) ListEntry   { return v.listEntries[pos] }

func (v *ValueVector) SetBool(pos uint32, val bool)               { v.bools[pos] = val }
func (v *ValueVector) SetInt64(pos uint32, val int64)             { v.ints[pos] = val }
func (v *ValueVector) SetFloat64(pos uint32, val float64)         { v.floats[pos] = val }
func (v *ValueVector) SetStr(pos uint32, val string)              { v.strs[pos] = val }
func (v *ValueVector) SetID(pos uint32, val types.InternalID)     { v.ids[pos] = val }
func (v *ValueVector) SetInterval(pos uint32, val types.Interval) { v.intervals[pos] = val }

// Fields returns the struct child vectors.
func (v *ValueVector) Fields() []*ValueVector { return v.fields }

// FieldByName returns the struct child for a case-insensitive field name.
func (v *ValueVector) FieldByName(name string) (*ValueVector, bool) {
	i := v.Type.FieldIndex(name)
	if i < 0 {
		return nil, false
	}
	return v.fields[i], true
}

// ListData is the backing data vector of a list vector.
func (v *ValueVector) ListData() *ValueVector { return v.listData }

// AddList appends capacity for size elements in the data vector and
// records the entry at pos. Data-vector capacity grows amortized.
func (v *ValueVector) AddList(pos uint32, size uint64) ListEntry {
	entry := ListEntry{Offset: v.listSize, Size: size}
	v.listSize += size
	v.listData.reserve(v.listSize)
	v.listEntries[pos] = entry
	return entry
}

func (v *ValueVector) reserve(n uint64) {
	grow := func(cur int) int {
		c := cur
		if c == 0 {
			c = int(DefaultCapacity)
		}
		for uint64(c) < n {
			c *= 2
		}
		return c
	}
	switch v.Type.ID {
	case types.TypeBool:
		if uint64(len(v.bools)) < n {
			nb := make([]bool, grow(len(v.bools)))
			copy(nb, v.bools)
			v.bools = nb
		}
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial,
		types.TypeDate, types.TypeTimestamp:
		if uint64(len(v.ints)) < n {
			ni := make([]int64, grow(len(v.ints)))
			copy(ni, v.ints)
			v.ints = ni
		}
	case types.TypeDouble, types.TypeFloat:
		if uint64(len(v.floats)) < n {
			nf := make([]float64, grow(len(v.floats)))
			copy(nf, v.floats)
			v.floats = nf
		}
	case types.TypeString:
		if uint64(len(v.strs)) < n {
			ns := make([]string, grow(len(v.strs)))
			copy(ns, v.strs)
			v.strs = ns
		}
	case types.TypeInternalID:
		if uint64(len(v.ids)) < n {
			ni := make([]types.InternalID, grow(len(v.ids)))
			copy(ni, v.ids)
			v.ids = ni
		}
	case types.TypeInterval:
		if uint64(len(v.intervals)) < n {
			ni := make([]types.Interval, grow(len(v.intervals)))
			copy(ni, v.intervals)
			v.intervals = ni
		}
	case types.TypeVarList, types.TypeFixedList:
		if uint64(len(v.listEntries)) < n {
			ne := make([]ListEntry, grow(len(v.listEntries)))
			copy(ne, v.listEntries)
			v.listEntries = ne
		}
	case types.TypeStruct, types.TypeNode, types.TypeRel, types.TypeRecursiveRel:
		for _, f := range v.fields {
			f.reserve(n)
		}
	}
}

// ResetAuxiliaryBuffer reclaims the per-batch arena: list sizes rewind and
// child null masks clear. Fixed-width payloads are overwritten in place.
func (v *ValueVector) ResetAuxiliaryBuffer() {
	v.listSize = 0
	if v.listData != nil {
		v.listData.Nulls.Reset()
		v.listData.ResetAuxiliaryBuffer()
	}
	for _, f := range v.fields {
		f.ResetAuxiliaryBuffer()
	}
}

// CopyFromVectorData deep-copies one slot, including variable-length
// payloads and nested children.
func (v *ValueVector) CopyFromVectorData(dstPos uint32, src *ValueVector, srcPos uint32) {
	if src.IsNull(srcPos) {
		v.SetNull(dstPos, true)
		return
	}
	v.SetNull(dstPos, false)
	switch v.Type.ID {
	case types.TypeBool:
		v.bools[dstPos] = src.bools[srcPos]
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial,
		types.TypeDate, types.TypeTimestamp:
		v.ints[dstPos] = src.ints[srcPos]
	case types.TypeDouble, types.TypeFloat:
		v.floats[dstPos] = src.floats[srcPos]
	case types.TypeString:
		v.strs[dstPos] = src.strs[srcPos]
	case types.TypeInternalID:
		v.ids[dstPos] = src.ids[srcPos]
	case types.TypeInterval:
		v.intervals[dstPos] = src.intervals[srcPos]
	case types.TypeVarList, types.TypeFixedList:
		srcEntry := src.listEntries[srcPos]
		dstEntry := v.AddList(dstPos, srcEntry.Size)
		for i := uint64(0); i < srcEntry.Size; i++ {
			v.listData.CopyFromVectorData(uint32(dstEntry.Offset+i), src.listData, uint32(srcEntry.Offset+i))
		}
	case types.TypeStruct, types.TypeNode, types.TypeRel, types.TypeRecursiveRel:
		for i, f := range v.fields {
			f.CopyFromVectorData(dstPos, src.fields[i], srcPos)
		}
	default:
		panic(fmt.Sprintf("vector: copy of unsupported type %s", v.Type))
	}
}

// SetFromValue writes a boxed value into a slot, casting is the caller's
// concern.
func (v *ValueVector) SetFromValue(pos uint32, val types.Value) {
	if val.IsNull {
		v.SetNull(pos, true)
		return
	}
	v.SetNull(pos, false)
	switch v.Type.ID {
	case types.TypeBool:
		v.bools[pos] = val.BoolVal
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial:
		v.ints[pos] = val.Int64Val
	case types.TypeDate:
		v.ints[pos] = int64(val.DateVal)
	case types.TypeTimestamp:
		v.ints[pos] = int64(val.TimestampVal)
	case types.TypeDouble, types.TypeFloat:
		v.floats[pos] = val.DoubleVal
	case types.TypeString:
		v.strs[pos] = val.StringVal
	case types.TypeInternalID:
		v.ids[pos] = val.IDVal
	case types.TypeInterval:
		v.intervals[pos] = val.IntervalVal
	case types.TypeVarList, types.TypeFixedList:
		entry := v.AddList(pos, uint64(len(val.ListVal)))
		for i, e := range val.ListVal {
			v.listData.SetFromValue(uint32(entry.Offset)+uint32(i), e)
		}
	case types.TypeStruct, types.TypeNode, types.TypeRel, types.TypeRecursiveRel:
		for i, f := range v.fields {
			f.SetFromValue(pos, val.StructVal[i])
		}
	default:
		panic(fmt.Sprintf("vector: set of unsupported type %s", v.Type))
	}
}

// GetAsValue boxes one slot into a types.Value.
func (v *ValueVector) GetAsValue(pos uint32) types.Value {
	if v.IsNull(pos) {
		return types.NewNullValue(v.Type)
	}
	out := types.Value{Type: v.Type}
	switch v.Type.ID {
	case types.TypeBool:
		out.BoolVal = v.bools[pos]
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial:
		out.Int64Val = v.ints[pos]
	case types.TypeDate:
		out.DateVal = types.Date(v.ints[pos])
	case types.TypeTimestamp:
		out.TimestampVal = types.Timestamp(v.ints[pos])
	case types.TypeDouble, types.TypeFloat:
		out.DoubleVal = v.floats[pos]
	case types.TypeString:
		out.StringVal = v.strs[pos]
	case types.TypeInternalID:
		out.IDVal = v.ids[pos]
	case types.TypeInterval:
		out.IntervalVal = v.intervals[pos]
	case types.TypeVarList, types.TypeFixedList:
		entry := v.listEntries[pos]
		out.ListVal = make([]types.Value, 0, entry.Size)
		for i := uint64(0); i < entry.Size; i++ {
			out.ListVal = append(out.ListVal, v.listData.GetAsValue(uint32(entry.Offset+i)))
		}
	case types.TypeStruct, types.TypeNode, types.TypeRel, types.TypeRecursiveRel:
		out.StructVal = make([]types.Value, 0, len(v.fields))
		for _, f := range v.fields {
			out.StructVal = append(out.StructVal, f.GetAsValue(pos))
		}
	}
	return out
}
