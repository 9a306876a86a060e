package evaluator

import (
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// ValuePos addresses a materialized vector inside a ResultSet.
type ValuePos struct {
	ChunkPos  int
	VectorPos int
}

// Build maps a bound expression to its evaluator tree. resolved maps
// expression unique names to materialized vector positions; any expression
// found there becomes a plain reference, which is also how a subquery is
// substituted by its aggregated projection column (they share a name).
func Build(e expression.Expression, resolved map[string]ValuePos) (Evaluator, error) {
	if pos, ok := resolved[e.UniqueName()]; ok {
		return NewReference(pos.ChunkPos, pos.VectorPos), nil
	}
	switch v := e.(type) {
	case *expression.Literal:
		return NewLiteral(v.Value), nil
	case *expression.Parameter:
		return NewParameter(v.Name, v.Value), nil
	case *expression.Function:
		children := make([]Evaluator, 0, len(v.Children()))
		for _, c := range v.Children() {
			child, err := Build(c, resolved)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return NewFunction(v.DataType(), v.Exec, v.Select, children...), nil
	case *expression.Case:
		alternatives := make([]*CaseAlternative, 0, len(v.Alternatives))
		for _, alt := range v.Alternatives {
			when, err := Build(alt.When, resolved)
			if err != nil {
				return nil, err
			}
			then, err := Build(alt.Then, resolved)
			if err != nil {
				return nil, err
			}
			alternatives = append(alternatives, &CaseAlternative{When: when, Then: then})
		}
		elseEval, err := Build(v.Else, resolved)
		if err != nil {
			return nil, err
		}
		return NewCase(v.DataType(), alternatives, elseEval), nil
	case *expression.Node:
		return buildPattern(v.DataType(), collectPatternChildren(v), resolved)
	case *expression.Rel:
		children := collectPatternChildren(v)
		if !v.Directed {
			dirName := v.UniqueName() + "._direction"
			dirPos, ok := resolved[dirName]
			if !ok {
				return nil, types.NewRuntimeError(
					"undirected rel %s has no materialized direction column", v.UniqueName())
			}
			pattern, err := buildPatternChildren(children, resolved)
			if err != nil {
				return nil, err
			}
			return NewUndirectedRel(v.DataType(), pattern, patternIDFieldIdx(v.DataType()),
				NewReference(dirPos.ChunkPos, dirPos.VectorPos)), nil
		}
		return buildPattern(v.DataType(), children, resolved)
	case *expression.Path:
		children := make([]Evaluator, 0, len(v.Children()))
		for _, c := range v.Children() {
			child, err := Build(c, resolved)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return NewPath(v.DataType(), children), nil
	case *expression.Subquery:
		// A subquery that was not substituted means the planner never
		// materialized its aggregate; that is an invariant violation.
		return nil, types.NewRuntimeError(
			"subquery %s was not materialized before evaluation", v.UniqueName())
	}
	return nil, types.NewNotImplementedError("evaluator for expression kind " + e.Kind().String())
}

// collectPatternChildren lists a pattern's struct-field expressions in
// field order: ids and label first, then properties, mirroring the NODE
// and REL struct layouts.
func collectPatternChildren(e expression.Expression) []expression.Expression {
	switch v := e.(type) {
	case *expression.Node:
		out := []expression.Expression{v.InternalID(), labelExpr(v.UniqueName())}
		for _, p := range v.PropertyExprs() {
			out = append(out, p)
		}
		return out
	case *expression.Rel:
		out := []expression.Expression{
			v.Src.InternalID(), v.Dst.InternalID(), v.InternalID(), labelExpr(v.UniqueName()),
		}
		for _, p := range v.PropertyExprs() {
			out = append(out, p)
		}
		return out
	}
	return nil
}

func labelExpr(variableName string) expression.Expression {
	return expression.NewProperty("_label", variableName, types.NewType(types.TypeString), nil)
}

func patternIDFieldIdx(t *types.LogicalType) int {
	return t.FieldIndex("_id")
}

func buildPatternChildren(children []expression.Expression, resolved map[string]ValuePos) ([]Evaluator, error) {
	out := make([]Evaluator, 0, len(children))
	for _, c := range children {
		child, err := Build(c, resolved)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

func buildPattern(dataType *types.LogicalType, children []expression.Expression,
	resolved map[string]ValuePos) (Evaluator, error) {
	evals, err := buildPatternChildren(children, resolved)
	if err != nil {
		return nil, err
	}
	return NewPattern(dataType, evals, patternIDFieldIdx(dataType)), nil
}

// EvaluateToValues runs an evaluator over a ResultSet and boxes the result
// rows; a convenience used by the embedded executor's RETURN-only queries.
func EvaluateToValues(e Evaluator, rs *vector.ResultSet, ctx *Context) ([]types.Value, error) {
	if err := e.Init(rs); err != nil {
		return nil, err
	}
	if err := e.Evaluate(ctx); err != nil {
		return nil, err
	}
	result := e.ResultVector()
	if result.State.IsFlat() {
		return []types.Value{result.GetAsValue(result.State.FlatPos())}, nil
	}
	sel := result.State.Sel
	out := make([]types.Value, 0, sel.SelectedSize)
	for i := uint32(0); i < sel.SelectedSize; i++ {
		out = append(out, result.GetAsValue(sel.Pos(i)))
	}
	return out, nil
}
