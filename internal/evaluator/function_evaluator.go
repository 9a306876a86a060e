package evaluator

import (
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// Function evaluates a scalar function over its child evaluators. Implicit
// casts were already inserted at binding time, so parameter vectors are
// passed to the exec function as-is.
type Function struct {
	dataType *types.LogicalType
	exec     expression.ScalarFunc
	selFunc  expression.SelectFunc
	children []Evaluator
	params   []*vector.ValueVector
	result   *vector.ValueVector
}

func NewFunction(dataType *types.LogicalType, exec expression.ScalarFunc,
	selFunc expression.SelectFunc, children ...Evaluator) *Function {
	return &Function{dataType: dataType, exec: exec, selFunc: selFunc, children: children}
}

func (f *Function) Init(rs *vector.ResultSet) error {
	f.params = f.params[:0]
	for _, c := range f.children {
		if err := c.Init(rs); err != nil {
			return err
		}
		f.params = append(f.params, c.ResultVector())
	}
	f.result = vector.New(f.dataType, resolveResultStateFromChildren(f.children))
	return nil
}

func (f *Function) Evaluate(ctx *Context) error {
	for _, c := range f.children {
		if err := c.Evaluate(ctx); err != nil {
			return err
		}
	}
	f.result.ResetAuxiliaryBuffer()
	return f.exec(f.params, f.result)
}

func (f *Function) Select(sel *vector.SelectionVector, ctx *Context) (bool, error) {
	if f.selFunc != nil {
		for _, c := range f.children {
			if err := c.Evaluate(ctx); err != nil {
				return false, err
			}
		}
		return f.selFunc(f.params, sel)
	}
	if err := f.Evaluate(ctx); err != nil {
		return false, err
	}
	return selectBoolResult(f.result, sel), nil
}

func (f *Function) ResultVector() *vector.ValueVector { return f.result }

func (f *Function) IsResultFlat() bool { return f.result.State.IsFlat() }
