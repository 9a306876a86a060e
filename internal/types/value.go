package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is days since the Unix epoch.
type Date int32

// Timestamp is microseconds since the Unix epoch.
type Timestamp int64

// Interval is the calendar interval triple. Months and days do not reduce
// to a fixed number of microseconds.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

func (d Date) String() string {
	return time.Unix(int64(d)*86400, 0).UTC().Format("2006-01-02")
}

func (ts Timestamp) String() string {
	return time.UnixMicro(int64(ts)).UTC().Format("2006-01-02 15:04:05.999999")
}

func (iv Interval) String() string {
	return fmt.Sprintf("%d months %d days %d us", iv.Months, iv.Days, iv.Micros)
}

// Value is a tagged runtime value used for literals, parameters, and
// default expressions. Exactly one payload field is meaningful, selected
// by Type.ID; a null Value carries only its type.
type Value struct {
	Type   *LogicalType
	IsNull bool

	BoolVal      bool
	Int64Val     int64
	DoubleVal    float64
	StringVal    string
	DateVal      Date
	TimestampVal Timestamp
	IntervalVal  Interval
	IDVal        InternalID
	// ListVal holds VAR_LIST and FIXED_LIST elements; StructVal holds
	// STRUCT/NODE/REL fields in declaration order.
	ListVal   []Value
	StructVal []Value
}

func NewNullValue(t *LogicalType) Value { return Value{Type: t, IsNull: true} }
func NewBoolValue(v bool) Value         { return Value{Type: NewType(TypeBool), BoolVal: v} }
func NewInt64Value(v int64) Value       { return Value{Type: NewType(TypeInt64), Int64Val: v} }
func NewInt32Value(v int32) Value       { return Value{Type: NewType(TypeInt32), Int64Val: int64(v)} }
func NewDoubleValue(v float64) Value    { return Value{Type: NewType(TypeDouble), DoubleVal: v} }
func NewStringValue(v string) Value     { return Value{Type: NewType(TypeString), StringVal: v} }
func NewDateValue(v Date) Value         { return Value{Type: NewType(TypeDate), DateVal: v} }
func NewTimestampValue(v Timestamp) Value {
	return Value{Type: NewType(TypeTimestamp), TimestampVal: v}
}
func NewInternalIDValue(id InternalID) Value {
	return Value{Type: NewType(TypeInternalID), IDVal: id}
}

func NewListValue(child *LogicalType, elems []Value) Value {
	return Value{Type: NewVarListType(child), ListVal: elems}
}

func (v Value) String() string {
	if v.IsNull {
		return ""
	}
	switch v.Type.ID {
	case TypeBool:
		return strconv.FormatBool(v.BoolVal)
	case TypeInt64, TypeInt32, TypeInt16, TypeSerial:
		return strconv.FormatInt(v.Int64Val, 10)
	case TypeDouble, TypeFloat:
		return strconv.FormatFloat(v.DoubleVal, 'g', -1, 64)
	case TypeString:
		return v.StringVal
	case TypeDate:
		return v.DateVal.String()
	case TypeTimestamp:
		return v.TimestampVal.String()
	case TypeInterval:
		return v.IntervalVal.String()
	case TypeInternalID:
		return fmt.Sprintf("%d:%d", v.IDVal.TableID, v.IDVal.Offset)
	case TypeVarList, TypeFixedList:
		parts := make([]string, len(v.ListVal))
		for i, e := range v.ListVal {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case TypeStruct, TypeNode, TypeRel:
		parts := make([]string, len(v.StructVal))
		for i, e := range v.StructVal {
			parts[i] = e.String()
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return ""
	}
}

// Equals is deep value equality including null and type.
func (v Value) Equals(other Value) bool {
	if !v.Type.Equals(other.Type) || v.IsNull != other.IsNull {
		return false
	}
	if v.IsNull {
		return true
	}
	switch v.Type.ID {
	case TypeBool:
		return v.BoolVal == other.BoolVal
	case TypeInt64, TypeInt32, TypeInt16, TypeSerial:
		return v.Int64Val == other.Int64Val
	case TypeDouble, TypeFloat:
		return v.DoubleVal == other.DoubleVal
	case TypeString:
		return v.StringVal == other.StringVal
	case TypeDate:
		return v.DateVal == other.DateVal
	case TypeTimestamp:
		return v.TimestampVal == other.TimestampVal
	case TypeInterval:
		return v.IntervalVal == other.IntervalVal
	case TypeInternalID:
		return v.IDVal == other.IDVal
	case TypeVarList, TypeFixedList:
		if len(v.ListVal) != len(other.ListVal) {
			return false
		}
		for i := range v.ListVal {
			if !v.ListVal[i].Equals(other.ListVal[i]) {
				return false
			}
		}
		return true
	case TypeStruct, TypeNode, TypeRel:
		if len(v.StructVal) != len(other.StructVal) {
			return false
		}
		for i := range v.StructVal {
			if !v.StructVal[i].Equals(other.StructVal[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// CastTo converts the value to the target logical type following the
// implicit-cast rules. The bool result reports whether the cast applied.
func (v Value) CastTo(target *LogicalType) (Value, bool) {
	if v.Type.Equals(target) {
		return v, true
	}
	if v.IsNull {
		return NewNullValue(target), true
	}
	switch target.ID {
	case TypeInt64, TypeInt32, TypeInt16:
		switch v.Type.ID {
		case TypeInt64, TypeInt32, TypeInt16, TypeSerial:
			out := v
			out.Type = NewType(target.ID)
			return out, true
		case TypeDouble, TypeFloat:
			return Value{Type: NewType(target.ID), Int64Val: int64(v.DoubleVal)}, true
		case TypeString:
			i, err := strconv.ParseInt(strings.TrimSpace(v.StringVal), 10, 64)
			if err != nil {
				return Value{}, false
			}
			return Value{Type: NewType(target.ID), Int64Val: i}, true
		}
	case TypeDouble, TypeFloat:
		switch v.Type.ID {
		case TypeInt64, TypeInt32, TypeInt16, TypeSerial:
			return Value{Type: NewType(target.ID), DoubleVal: float64(v.Int64Val)}, true
		case TypeDouble, TypeFloat:
			out := v
			out.Type = NewType(target.ID)
			return out, true
		case TypeString:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.StringVal), 64)
			if err != nil {
				return Value{}, false
			}
			return Value{Type: NewType(target.ID), DoubleVal: f}, true
		}
	case TypeBool:
		if v.Type.ID == TypeString {
			b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v.StringVal)))
			if err != nil {
				return Value{}, false
			}
			return NewBoolValue(b), true
		}
	case TypeDate:
		if v.Type.ID == TypeString {
			t, err := time.Parse("2006-01-02", strings.TrimSpace(v.StringVal))
			if err != nil {
				return Value{}, false
			}
			return NewDateValue(Date(t.Unix() / 86400)), true
		}
	case TypeTimestamp:
		if v.Type.ID == TypeString {
			s := strings.TrimSpace(v.StringVal)
			for _, layout := range []string{"2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999", "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					return NewTimestampValue(Timestamp(t.UnixMicro())), true
				}
			}
			return Value{}, false
		}
	case TypeString:
		return NewStringValue(v.String()), true
	case TypeVarList, TypeFixedList:
		if v.Type.ID == TypeString {
			inner := strings.TrimSpace(v.StringVal)
			if !strings.HasPrefix(inner, "[") || !strings.HasSuffix(inner, "]") {
				return Value{}, false
			}
			inner = strings.TrimSpace(inner[1 : len(inner)-1])
			var elems []Value
			if inner != "" {
				for _, part := range strings.Split(inner, ",") {
					e, ok := NewStringValue(strings.TrimSpace(part)).CastTo(target.Child)
					if !ok {
						return Value{}, false
					}
					elems = append(elems, e)
				}
			}
			if target.ID == TypeFixedList && uint32(len(elems)) != target.NumElements {
				return Value{}, false
			}
			return Value{Type: target, ListVal: elems}, true
		}
		if v.Type.ID == TypeVarList || v.Type.ID == TypeFixedList {
			out := make([]Value, len(v.ListVal))
			for i, e := range v.ListVal {
				c, ok := e.CastTo(target.Child)
				if !ok {
					return Value{}, false
				}
				out[i] = c
			}
			return Value{Type: target, ListVal: out}, true
		}
	}
	return Value{}, false
}
