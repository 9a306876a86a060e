package types

import (
	"fmt"
	"strings"
)

// LogicalTypeID discriminates the logical type union.
type LogicalTypeID uint8

const (
	TypeAny LogicalTypeID = iota
	TypeBool
	TypeInt64
	TypeInt32
	TypeInt16
	TypeDouble
	TypeFloat
	TypeDate
	TypeTimestamp
	TypeInterval
	TypeString
	TypeStruct
	TypeFixedList
	TypeVarList
	TypeInternalID
	TypeNode
	TypeRel
	TypeRecursiveRel
	TypeSerial
)

var typeNames = map[LogicalTypeID]string{
	TypeAny:          "ANY",
	TypeBool:         "BOOL",
	TypeInt64:        "INT64",
	TypeInt32:        "INT32",
	TypeInt16:        "INT16",
	TypeDouble:       "DOUBLE",
	TypeFloat:        "FLOAT",
	TypeDate:         "DATE",
	TypeTimestamp:    "TIMESTAMP",
	TypeInterval:     "INTERVAL",
	TypeString:       "STRING",
	TypeStruct:       "STRUCT",
	TypeFixedList:    "FIXED_LIST",
	TypeVarList:      "VAR_LIST",
	TypeInternalID:   "INTERNAL_ID",
	TypeNode:         "NODE",
	TypeRel:          "REL",
	TypeRecursiveRel: "RECURSIVE_REL",
	TypeSerial:       "SERIAL",
}

func (id LogicalTypeID) String() string {
	if s, ok := typeNames[id]; ok {
		return s
	}
	return fmt.Sprintf("LogicalTypeID(%d)", uint8(id))
}

// ParseLogicalTypeID resolves a type name as written in DDL. Returns TypeAny
// and false for unknown names.
func ParseLogicalTypeID(name string) (LogicalTypeID, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for id, s := range typeNames {
		if s == upper {
			return id, true
		}
	}
	return TypeAny, false
}

// StructField is one ordered named field of a STRUCT type.
type StructField struct {
	Name string
	Type *LogicalType
}

// LogicalType is the discriminated union of engine types. Compound types
// carry child type(s); STRUCT additionally carries ordered named fields.
type LogicalType struct {
	ID LogicalTypeID
	// Child is set for FIXED_LIST and VAR_LIST.
	Child *LogicalType
	// NumElements is set for FIXED_LIST.
	NumElements uint32
	// Fields is set for STRUCT, NODE, REL.
	Fields []StructField
}

func NewType(id LogicalTypeID) *LogicalType { return &LogicalType{ID: id} }

func NewVarListType(child *LogicalType) *LogicalType {
	return &LogicalType{ID: TypeVarList, Child: child}
}

func NewFixedListType(child *LogicalType, numElements uint32) *LogicalType {
	return &LogicalType{ID: TypeFixedList, Child: child, NumElements: numElements}
}

func NewStructType(fields ...StructField) *LogicalType {
	return &LogicalType{ID: TypeStruct, Fields: fields}
}

// NewNodeType builds the struct-shaped NODE type with the given property
// fields appended after the implicit _id and _label fields.
func NewNodeType(fields ...StructField) *LogicalType {
	all := append([]StructField{
		{Name: "_id", Type: NewType(TypeInternalID)},
		{Name: "_label", Type: NewType(TypeString)},
	}, fields...)
	return &LogicalType{ID: TypeNode, Fields: all}
}

// NewRelType builds the struct-shaped REL type: src/dst internal ids, the
// rel's own internal id, label, then property fields.
func NewRelType(fields ...StructField) *LogicalType {
	all := append([]StructField{
		{Name: "_src", Type: NewType(TypeInternalID)},
		{Name: "_dst", Type: NewType(TypeInternalID)},
		{Name: "_id", Type: NewType(TypeInternalID)},
		{Name: "_label", Type: NewType(TypeString)},
	}, fields...)
	return &LogicalType{ID: TypeRel, Fields: all}
}

// Equals is deep structural equality.
func (t *LogicalType) Equals(other *LogicalType) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.ID != other.ID || t.NumElements != other.NumElements {
		return false
	}
	if (t.Child == nil) != (other.Child == nil) {
		return false
	}
	if t.Child != nil && !t.Child.Equals(other.Child) {
		return false
	}
	if len(t.Fields) != len(other.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != other.Fields[i].Name {
			return false
		}
		if !t.Fields[i].Type.Equals(other.Fields[i].Type) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (t *LogicalType) Clone() *LogicalType {
	if t == nil {
		return nil
	}
	c := &LogicalType{ID: t.ID, NumElements: t.NumElements, Child: t.Child.Clone()}
	if t.Fields != nil {
		c.Fields = make([]StructField, len(t.Fields))
		for i, f := range t.Fields {
			c.Fields[i] = StructField{Name: f.Name, Type: f.Type.Clone()}
		}
	}
	return c
}

func (t *LogicalType) String() string {
	switch t.ID {
	case TypeVarList:
		return fmt.Sprintf("%s[]", t.Child)
	case TypeFixedList:
		return fmt.Sprintf("%s[%d]", t.Child, t.NumElements)
	case TypeStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = fmt.Sprintf("%s %s", f.Name, f.Type)
		}
		return fmt.Sprintf("STRUCT(%s)", strings.Join(parts, ", "))
	default:
		return t.ID.String()
	}
}

// FieldIndex returns the position of a struct field by case-insensitive
// name, or -1 when absent.
func (t *LogicalType) FieldIndex(name string) int {
	for i, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// IsNumeric reports whether values of this type order and cast numerically.
func (t *LogicalType) IsNumeric() bool {
	switch t.ID {
	case TypeInt64, TypeInt32, TypeInt16, TypeDouble, TypeFloat, TypeSerial:
		return true
	}
	return false
}

// CanCastTo reports whether an implicit cast from t to target is permitted.
// Any numeric-to-numeric cast, SERIAL to INT64, STRING to numeric, BOOL,
// temporal and list types, any type to STRING, list-to-list casts whose
// element types cast, and ANY in either direction are allowed.
func (t *LogicalType) CanCastTo(target *LogicalType) bool {
	if t.Equals(target) {
		return true
	}
	if t.ID == TypeAny || target.ID == TypeAny {
		return true
	}
	if t.ID == TypeSerial && target.ID == TypeInt64 {
		return true
	}
	if t.IsNumeric() && target.IsNumeric() {
		return true
	}
	if t.ID == TypeString {
		switch target.ID {
		case TypeDate, TypeTimestamp, TypeInterval, TypeInt64, TypeInt32, TypeInt16, TypeDouble, TypeFloat, TypeBool,
			TypeVarList, TypeFixedList:
			return true
		}
	}
	if target.ID == TypeString {
		return true
	}
	if t.ID == TypeVarList && target.ID == TypeVarList {
		return t.Child.CanCastTo(target.Child)
	}
	if t.ID == TypeVarList && target.ID == TypeFixedList {
		return t.Child.CanCastTo(target.Child)
	}
	return false
}
