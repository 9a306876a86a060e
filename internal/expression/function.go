package expression

import (
	"strings"

	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// ScalarFunc populates result for the current batch from the evaluated
// parameter vectors.
type ScalarFunc func(params []*vector.ValueVector, result *vector.ValueVector) error

// SelectFunc is the short-circuiting predicate form: it fills sel with the
// passing positions and reports whether any row passed.
type SelectFunc func(params []*vector.ValueVector, sel *vector.SelectionVector) (bool, error)

// Function is a bound scalar function call.
type Function struct {
	Base
	FuncName string
	Exec     ScalarFunc
	Select   SelectFunc
}

// functionUniqueName is deterministic given normalized children, which is
// what makes name-based expression equality sound.
func functionUniqueName(name string, children []Expression) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.UniqueName()
	}
	return strings.ToUpper(name) + "(" + strings.Join(parts, ",") + ")"
}

func NewFunction(name string, dataType *types.LogicalType, exec ScalarFunc, sel SelectFunc,
	children ...Expression) *Function {
	return &Function{
		Base:     NewBase(KindFunction, dataType, functionUniqueName(name, children), children...),
		FuncName: strings.ToUpper(name),
		Exec:     exec,
		Select:   sel,
	}
}

// AggregateFunction is a bound aggregate call. DistinctFlag mirrors the
// DISTINCT keyword.
type AggregateFunction struct {
	Base
	FuncName     string
	DistinctFlag bool
}

func NewAggregateFunction(name string, dataType *types.LogicalType, distinct bool,
	children ...Expression) *AggregateFunction {
	unique := functionUniqueName(name, children)
	if distinct {
		unique = "DISTINCT_" + unique
	}
	return &AggregateFunction{
		Base:         NewBase(KindAggregateFunction, dataType, unique, children...),
		FuncName:     strings.ToUpper(name),
		DistinctFlag: distinct,
	}
}

// CountStar builds the synthetic count(*) aggregate used by subquery
// rewrites. uniqueName is supplied by the caller so a subquery and its
// projection can share one name.
func CountStar(uniqueName string) *AggregateFunction {
	agg := &AggregateFunction{
		Base:     NewBase(KindAggregateFunction, types.NewType(types.TypeInt64), uniqueName),
		FuncName: "COUNT_STAR",
	}
	return agg
}

// Macro is a macro invocation prior to expansion.
type Macro struct {
	Base
	MacroName string
}

func NewMacro(name string, dataType *types.LogicalType, children ...Expression) *Macro {
	return &Macro{
		Base:      NewBase(KindMacro, dataType, functionUniqueName(name, children), children...),
		MacroName: name,
	}
}
