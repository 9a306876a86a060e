package expression

import (
	"strings"

	"github.com/untoldecay/kuzugo/internal/types"
)

// CaseAlternative is one WHEN/THEN arm of a CASE expression.
type CaseAlternative struct {
	When Expression
	Then Expression
}

// Case is CASE WHEN ... THEN ... [ELSE ...] END. Alternatives and the else
// branch are typed subfields, not generic children.
type Case struct {
	Base
	Alternatives []*CaseAlternative
	Else         Expression
}

func NewCase(dataType *types.LogicalType, alternatives []*CaseAlternative, elseExpr Expression) *Case {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, alt := range alternatives {
		sb.WriteString(" WHEN ")
		sb.WriteString(alt.When.UniqueName())
		sb.WriteString(" THEN ")
		sb.WriteString(alt.Then.UniqueName())
	}
	if elseExpr != nil {
		sb.WriteString(" ELSE ")
		sb.WriteString(elseExpr.UniqueName())
	}
	sb.WriteString(" END")
	return &Case{
		Base:         NewBase(KindCaseElse, dataType, sb.String()),
		Alternatives: alternatives,
		Else:         elseExpr,
	}
}

// SubqueryType distinguishes COUNT and EXISTS subqueries.
type SubqueryType uint8

const (
	SubqueryCount SubqueryType = iota
	SubqueryExists
)

// QueryGraph is one connected pattern of a subquery.
type QueryGraph struct {
	Nodes []*Node
	Rels  []*Rel
}

// Subquery owns a query-graph collection and an optional WHERE predicate.
// The projection expression (count(*) or count(*) > 0) shares the
// subquery's unique name so the evaluator can substitute one for the other.
type Subquery struct {
	Base
	SubqueryType SubqueryType
	QueryGraphs  []*QueryGraph
	Where        Expression
	// CountExpr is the synthetic count(*) aggregate; Projection is the
	// expression the subquery evaluates to (count for COUNT, count > 0
	// for EXISTS).
	CountExpr  Expression
	Projection Expression
}

func NewSubquery(subqueryType SubqueryType, uniqueName string, graphs []*QueryGraph, where Expression) *Subquery {
	dt := types.NewType(types.TypeInt64)
	if subqueryType == SubqueryExists {
		dt = types.NewType(types.TypeBool)
	}
	return &Subquery{
		Base:         NewBase(KindSubquery, dt, uniqueName),
		SubqueryType: subqueryType,
		QueryGraphs:  graphs,
		Where:        where,
	}
}

func (s *Subquery) HasWhere() bool { return s.Where != nil }
