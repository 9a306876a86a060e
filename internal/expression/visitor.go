package expression

// CollectChildren returns every logical child of an expression, including
// the ones composite kinds keep in typed subfields: CASE alternatives,
// subquery pattern internal ids and WHERE, pattern property expressions
// and endpoint ids. Visitors use this instead of Children() so they never
// need to know a variant's internal layout.
func CollectChildren(e Expression) []Expression {
	switch e.Kind() {
	case KindCaseElse:
		return collectCaseChildren(e.(*Case))
	case KindSubquery:
		return collectSubqueryChildren(e.(*Subquery))
	case KindPattern:
		switch v := e.(type) {
		case *Node:
			return collectNodeChildren(v)
		case *Rel:
			return collectRelChildren(v)
		default:
			return nil
		}
	default:
		return e.Children()
	}
}

func collectCaseChildren(c *Case) []Expression {
	var result []Expression
	for _, alt := range c.Alternatives {
		result = append(result, alt.When, alt.Then)
	}
	if c.Else != nil {
		result = append(result, c.Else)
	}
	return result
}

func collectSubqueryChildren(s *Subquery) []Expression {
	var result []Expression
	for _, g := range s.QueryGraphs {
		for _, n := range g.Nodes {
			result = append(result, n.InternalID())
		}
	}
	if s.HasWhere() {
		result = append(result, s.Where)
	}
	return result
}

func collectNodeChildren(n *Node) []Expression {
	var result []Expression
	for _, p := range n.PropertyExprs() {
		result = append(result, p)
	}
	result = append(result, n.InternalID())
	return result
}

func collectRelChildren(r *Rel) []Expression {
	result := []Expression{r.Src.InternalID(), r.Dst.InternalID()}
	for _, p := range r.PropertyExprs() {
		result = append(result, p)
	}
	return result
}

// IsConstant reports whether every leaf is a literal. Aggregates are never
// constant: there is no framework to fold an aggregated constant.
func IsConstant(e Expression) bool {
	if e.Kind() == KindAggregateFunction {
		return false
	}
	children := CollectChildren(e)
	if len(children) == 0 {
		return e.Kind() == KindLiteral
	}
	for _, c := range children {
		if !IsConstant(c) {
			return false
		}
	}
	return true
}

// SatisfyAny reports whether the condition holds anywhere in the subtree.
func SatisfyAny(e Expression, condition func(Expression) bool) bool {
	if condition(e) {
		return true
	}
	for _, c := range CollectChildren(e) {
		if SatisfyAny(c, condition) {
			return true
		}
	}
	return false
}

func HasAggregate(e Expression) bool {
	return SatisfyAny(e, func(x Expression) bool { return x.Kind() == KindAggregateFunction })
}

func HasSubquery(e Expression) bool {
	return SatisfyAny(e, func(x Expression) bool { return x.Kind() == KindSubquery })
}

// Collect gathers every subtree matching the condition. Matching nodes are
// not descended into, mirroring the planner's pushdown collection.
func Collect(e Expression, condition func(Expression) bool) []Expression {
	var out []Expression
	var walk func(Expression)
	walk = func(x Expression) {
		if condition(x) {
			out = append(out, x)
			return
		}
		for _, c := range CollectChildren(x) {
			walk(c)
		}
	}
	walk(e)
	return out
}

// CollectProperties returns every property expression of the subtree.
func CollectProperties(e Expression) []*Property {
	matches := Collect(e, func(x Expression) bool { return x.Kind() == KindProperty })
	out := make([]*Property, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.(*Property))
	}
	return out
}

// DependentVariableNames returns the variable names a predicate depends
// on; the planner uses this to decide pushdown.
func DependentVariableNames(e Expression) map[string]struct{} {
	matches := Collect(e, func(x Expression) bool {
		switch x.Kind() {
		case KindProperty, KindPattern, KindVariable:
			return true
		}
		return false
	})
	result := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if p, ok := m.(*Property); ok {
			result[p.VariableName] = struct{}{}
		} else {
			result[m.UniqueName()] = struct{}{}
		}
	}
	return result
}
