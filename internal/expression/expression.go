// Package expression is the bound expression model: a typed tree with
// sum-typed variants, stable unique names for hashing/equality, and a
// children-collection function that understands the composite kinds whose
// logical children live in typed subfields.
package expression

import (
	"fmt"

	"github.com/untoldecay/kuzugo/internal/types"
)

// Kind discriminates the expression union.
type Kind uint8

const (
	KindLiteral Kind = iota
	KindParameter
	KindVariable
	KindProperty
	KindPattern
	KindPath
	KindCaseElse
	KindSubquery
	KindFunction
	KindAggregateFunction
	KindMacro
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "LITERAL"
	case KindParameter:
		return "PARAMETER"
	case KindVariable:
		return "VARIABLE"
	case KindProperty:
		return "PROPERTY"
	case KindPattern:
		return "PATTERN"
	case KindPath:
		return "PATH"
	case KindCaseElse:
		return "CASE_ELSE"
	case KindSubquery:
		return "SUBQUERY"
	case KindFunction:
		return "FUNCTION"
	case KindAggregateFunction:
		return "AGGREGATE_FUNCTION"
	case KindMacro:
		return "MACRO"
	}
	return "UNKNOWN"
}

// Expression is a node of the bound tree. Equality is by UniqueName: two
// independently constructed expressions compare equal iff the deterministic
// name-generation pipeline emitted the same string.
type Expression interface {
	Kind() Kind
	DataType() *types.LogicalType
	// Children returns the generic child list. Composite kinds (CASE,
	// SUBQUERY, pattern NODE/REL) keep logical children in typed
	// subfields instead; use CollectChildren to see those.
	Children() []Expression
	UniqueName() string
	// Alias is the user-facing name; empty when none was given.
	Alias() string
	SetAlias(string)
}

// Base carries the fields shared by every variant; variants embed it.
type Base struct {
	kind       Kind
	dataType   *types.LogicalType
	children   []Expression
	uniqueName string
	alias      string
}

func NewBase(kind Kind, dataType *types.LogicalType, uniqueName string, children ...Expression) Base {
	return Base{kind: kind, dataType: dataType, uniqueName: uniqueName, children: children}
}

func (b *Base) Kind() Kind                       { return b.kind }
func (b *Base) DataType() *types.LogicalType     { return b.dataType }
func (b *Base) Children() []Expression           { return b.children }
func (b *Base) UniqueName() string               { return b.uniqueName }
func (b *Base) Alias() string                    { return b.alias }
func (b *Base) SetAlias(a string)                { b.alias = a }
func (b *Base) SetDataType(t *types.LogicalType) { b.dataType = t }

// Equal compares two expressions by unique name.
func Equal(a, b Expression) bool {
	return a.UniqueName() == b.UniqueName()
}

// Literal is a constant value.
type Literal struct {
	Base
	Value types.Value
}

func NewLiteral(v types.Value, uniqueName string) *Literal {
	return &Literal{Base: NewBase(KindLiteral, v.Type, uniqueName), Value: v}
}

// Parameter reads its backing value through a shared pointer updated
// between statements.
type Parameter struct {
	Base
	Name  string
	Value *types.Value
}

func NewParameter(name string, v *types.Value) *Parameter {
	return &Parameter{
		Base:  NewBase(KindParameter, v.Type, "$"+name),
		Name:  name,
		Value: v,
	}
}

// Variable is a named binding introduced by the query or injected by the
// binder (e.g. internal row-offset columns).
type Variable struct {
	Base
	Name string
}

func NewVariable(name string, dataType *types.LogicalType) *Variable {
	return &Variable{Base: NewBase(KindVariable, dataType, name), Name: name}
}

// Property reads a property of a pattern variable. PropertyIDs maps each
// candidate table of the variable to the property's id in that table.
type Property struct {
	Base
	PropertyName string
	VariableName string
	PropertyIDs  map[types.TableID]types.PropertyID
}

func NewProperty(propertyName, variableName string, dataType *types.LogicalType,
	propertyIDs map[types.TableID]types.PropertyID) *Property {
	return &Property{
		Base:         NewBase(KindProperty, dataType, variableName+"."+propertyName),
		PropertyName: propertyName,
		VariableName: variableName,
		PropertyIDs:  propertyIDs,
	}
}

// UniqueNameForInternal builds the name of a binder-injected expression.
// The prefix keeps injected names out of the user namespace.
func UniqueNameForInternal(op string, seq uint64) string {
	return fmt.Sprintf("_%s_%d", op, seq)
}
