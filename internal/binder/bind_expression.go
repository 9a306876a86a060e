package binder

import (
	"fmt"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

// scope maps variable names to the expressions they resolve to, in
// declaration order.
type scope struct {
	exprs map[string]expression.Expression
	order []string
}

func newScope() *scope {
	return &scope{exprs: make(map[string]expression.Expression)}
}

func (s *scope) add(name string, e expression.Expression) {
	if _, exists := s.exprs[name]; !exists {
		s.order = append(s.order, name)
	}
	s.exprs[name] = e
}

func (s *scope) lookup(name string) (expression.Expression, bool) {
	e, ok := s.exprs[name]
	return e, ok
}

func (s *scope) clone() *scope {
	n := newScope()
	for _, name := range s.order {
		n.add(name, s.exprs[name])
	}
	return n
}

// BindExpression resolves a parsed expression in the current scope.
func (b *Binder) BindExpression(p *parser.ParsedExpression) (expression.Expression, error) {
	switch p.Type {
	case parser.ParsedLiteral:
		return expression.NewLiteral(p.Literal, p.Literal.String()+":"+p.Literal.Type.String()), nil
	case parser.ParsedParameter:
		v, ok := b.params[p.Name]
		if !ok {
			return nil, types.NewBinderError("Parameter %s not found.", p.Name)
		}
		return expression.NewParameter(p.Name, v), nil
	case parser.ParsedVariable:
		e, ok := b.scope.lookup(p.Name)
		if !ok {
			return nil, types.NewBinderError("Variable %s is not in scope.", p.Name)
		}
		return e, nil
	case parser.ParsedProperty_:
		return b.bindPropertyExpression(p)
	case parser.ParsedFunction:
		return b.bindFunctionExpression(p)
	case parser.ParsedCase:
		return b.bindCaseExpression(p)
	case parser.ParsedSubquery:
		return b.bindSubqueryExpression(p)
	}
	return nil, types.NewNotImplementedError(fmt.Sprintf("expression type %d", p.Type))
}

func (b *Binder) bindPropertyExpression(p *parser.ParsedExpression) (expression.Expression, error) {
	bound, ok := b.scope.lookup(p.Variable)
	if !ok {
		return nil, types.NewBinderError("Variable %s is not in scope.", p.Variable)
	}
	pattern, ok := bound.(interface {
		SortedTableIDs() []types.TableID
		GetPropertyExpr(string) (*expression.Property, bool)
	})
	if !ok {
		return nil, types.NewBinderError("%s has data type %s but NODE or REL was expected.",
			p.Variable, bound.DataType())
	}
	if e, ok := pattern.GetPropertyExpr(p.Name); ok {
		return e, nil
	}
	return nil, types.NewBinderError("Cannot find property %s for %s.", p.Name, p.Variable)
}

func (b *Binder) bindFunctionExpression(p *parser.ParsedExpression) (expression.Expression, error) {
	children := make([]expression.Expression, 0, len(p.Children))
	argTypes := make([]*types.LogicalType, 0, len(p.Children))
	for _, c := range p.Children {
		bound, err := b.BindExpression(c)
		if err != nil {
			return nil, err
		}
		children = append(children, bound)
		argTypes = append(argTypes, bound.DataType())
	}
	if macro, ok := b.cat.GetMacro(p.FuncName); ok {
		return expression.NewMacro(macro.Name, types.NewType(types.TypeAny), children...), nil
	}
	def, ok := expression.LookupScalar(p.FuncName)
	if !ok {
		return nil, types.NewBinderError("Function %s does not exist.", p.FuncName)
	}
	return expression.NewFunction(p.FuncName, def.ReturnType(argTypes), def.Exec, nil, children...), nil
}

func (b *Binder) bindCaseExpression(p *parser.ParsedExpression) (expression.Expression, error) {
	alternatives := make([]*expression.CaseAlternative, 0, len(p.CaseWhens))
	var resultType *types.LogicalType
	for i := range p.CaseWhens {
		when, err := b.BindExpression(p.CaseWhens[i])
		if err != nil {
			return nil, err
		}
		if when.DataType().ID != types.TypeBool {
			return nil, types.NewBinderError("WHEN expression must be of type BOOL but got %s.",
				when.DataType())
		}
		then, err := b.BindExpression(p.CaseThens[i])
		if err != nil {
			return nil, err
		}
		if resultType == nil {
			resultType = then.DataType()
		}
		alternatives = append(alternatives, &expression.CaseAlternative{When: when, Then: then})
	}
	var elseExpr expression.Expression
	if p.CaseElse != nil {
		var err error
		elseExpr, err = b.BindExpression(p.CaseElse)
		if err != nil {
			return nil, err
		}
	} else {
		// A missing ELSE yields NULL of the result type.
		elseExpr = expression.NewLiteral(types.NewNullValue(resultType), b.nextUniqueName("case_else"))
	}
	return expression.NewCase(resultType, alternatives, elseExpr), nil
}

// bindSubqueryExpression rewrites a parsed COUNT/EXISTS subquery into a
// bound subquery plus its synthetic aggregate projection. The projection
// shares the subquery's unique name so the evaluator substitutes the
// aggregated column for the subquery expression.
func (b *Binder) bindSubqueryExpression(p *parser.ParsedExpression) (expression.Expression, error) {
	outer := b.scope
	b.scope = outer.clone()
	defer func() { b.scope = outer }()

	graphs, err := b.bindPatterns(p.Pattern)
	if err != nil {
		return nil, err
	}
	var where expression.Expression
	if p.Where != nil {
		where, err = b.BindExpression(p.Where)
		if err != nil {
			return nil, err
		}
	}
	subqueryType := expression.SubqueryCount
	if p.SubqueryType == parser.SubqueryExists {
		subqueryType = expression.SubqueryExists
	}
	uniqueName := b.nextUniqueName("subquery")
	sub := expression.NewSubquery(subqueryType, uniqueName, graphs, where)
	countStar := expression.CountStar(uniqueName)
	sub.CountExpr = countStar
	switch subqueryType {
	case expression.SubqueryCount:
		sub.Projection = countStar
	case expression.SubqueryExists:
		zero := expression.NewLiteral(types.NewInt64Value(0), b.nextUniqueName("zero"))
		def, _ := expression.LookupScalar(">")
		sub.Projection = expression.NewFunction(">", types.NewType(types.TypeBool),
			def.Exec, nil, countStar, zero)
	}
	return sub, nil
}

// bindPatterns normalizes a linear pattern list into query graphs,
// registering node and rel variables in scope as they first appear.
func (b *Binder) bindPatterns(elements []*parser.PatternElement) ([]*expression.QueryGraph, error) {
	var graphs []*expression.QueryGraph
	for _, elem := range elements {
		graph := &expression.QueryGraph{}
		var prev *expression.Node
		for i, np := range elem.Nodes {
			node, err := b.bindNodePattern(np)
			if err != nil {
				return nil, err
			}
			graph.Nodes = append(graph.Nodes, node)
			if i > 0 {
				rel, err := b.bindRelPattern(elem.Rels[i-1], prev, node)
				if err != nil {
					return nil, err
				}
				graph.Rels = append(graph.Rels, rel)
			}
			prev = node
		}
		graphs = append(graphs, graph)
	}
	return graphs, nil
}

func (b *Binder) bindNodePattern(np *parser.NodePattern) (*expression.Node, error) {
	name := np.Variable
	if name == "" {
		name = b.nextUniqueName("node")
	}
	if existing, ok := b.scope.lookup(name); ok {
		node, isNode := existing.(*expression.Node)
		if !isNode {
			return nil, types.NewBinderError("Variable %s is not a node.", name)
		}
		return node, nil
	}
	tableIDs, err := b.resolveNodeTableIDs(np.TableNames)
	if err != nil {
		return nil, err
	}
	node := expression.NewNode(name, tableIDs)
	b.attachProperties(&node.PatternBase, tableIDs)
	b.scope.add(name, node)
	return node, nil
}

func (b *Binder) bindRelPattern(rp *parser.RelPattern, left, right *expression.Node) (*expression.Rel, error) {
	name := rp.Variable
	if name == "" {
		name = b.nextUniqueName("rel")
	}
	if _, ok := b.scope.lookup(name); ok {
		return nil, types.NewBinderError("Bind relationship %s to relationship with same name is not supported.", name)
	}
	tableIDs, err := b.resolveRelTableIDs(rp.TableNames)
	if err != nil {
		return nil, err
	}
	src, dst := left, right
	if rp.Direction == parser.ArrowLeft {
		src, dst = right, left
	}
	rel := expression.NewRel(name, tableIDs, src, dst, rp.Direction != parser.ArrowBoth)
	b.attachProperties(&rel.PatternBase, tableIDs)
	b.scope.add(name, rel)
	return rel, nil
}

// attachProperties registers a property expression for every property name
// defined in any candidate table, with the per-table property id map.
func (b *Binder) attachProperties(p *expression.PatternBase, tableIDs []types.TableID) {
	names := make(map[string]*types.LogicalType)
	idMaps := make(map[string]map[types.TableID]types.PropertyID)
	var order []string
	for _, id := range tableIDs {
		var props []catalog.Property
		switch e := b.cat.GetTableEntry(id).(type) {
		case *catalog.NodeTableEntry:
			props = e.Properties
		case *catalog.RelTableEntry:
			props = e.Properties
		}
		for i := range props {
			prop := &props[i]
			if _, seen := names[prop.Name]; !seen {
				names[prop.Name] = prop.Type
				idMaps[prop.Name] = make(map[types.TableID]types.PropertyID)
				order = append(order, prop.Name)
			}
			idMaps[prop.Name][id] = prop.ID
		}
	}
	for _, name := range order {
		p.AddPropertyExpr(expression.NewProperty(name, p.VariableName, names[name], idMaps[name]))
	}
}

func (b *Binder) resolveNodeTableIDs(tableNames []string) ([]types.TableID, error) {
	if len(tableNames) == 0 {
		return b.cat.NodeTableIDs(), nil
	}
	var ids []types.TableID
	for _, name := range tableNames {
		entry, err := b.resolveNodeTable(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, entry.ID)
	}
	return ids, nil
}

func (b *Binder) resolveRelTableIDs(tableNames []string) ([]types.TableID, error) {
	if len(tableNames) == 0 {
		return b.cat.RelTableIDs(), nil
	}
	var ids []types.TableID
	for _, name := range tableNames {
		id, ok := b.cat.GetTableID(name)
		if !ok {
			return nil, types.NewBinderError("Table %s does not exist.", name)
		}
		if group, isGroup := b.cat.GetRelGroupEntry(id); isGroup {
			ids = append(ids, group.RelTableIDs...)
			continue
		}
		if _, isRel := b.cat.GetRelTableEntry(id); !isRel {
			return nil, types.NewBinderError("Table %s is not a relationship table.", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Binder) bindQuery(q *parser.Query) (BoundStatement, error) {
	b.scope = newScope()
	graphs, err := b.bindPatterns(q.Match)
	if err != nil {
		return nil, err
	}
	bound := &BoundQuery{Graphs: graphs, SkipNum: q.SkipNum, LimitNum: q.LimitNum, HasLimit: q.HasLimit}
	if q.Where != nil {
		where, err := b.BindExpression(q.Where)
		if err != nil {
			return nil, err
		}
		if where.DataType().ID != types.TypeBool {
			return nil, types.NewBinderError("WHERE expression must be of type BOOL but got %s.",
				where.DataType())
		}
		bound.Where = where
	}
	for _, r := range q.Return {
		proj, err := b.BindExpression(r)
		if err != nil {
			return nil, err
		}
		bound.Projection = append(bound.Projection, proj)
	}
	for i, o := range q.OrderBy {
		ob, err := b.BindExpression(o)
		if err != nil {
			return nil, err
		}
		bound.OrderBy = append(bound.OrderBy, ob)
		if i < len(q.Ascending) {
			bound.Ascending = append(bound.Ascending, q.Ascending[i])
		} else {
			bound.Ascending = append(bound.Ascending, true)
		}
	}
	return bound, nil
}
