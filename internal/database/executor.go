package database

import (
	"sort"

	"github.com/untoldecay/kuzugo/internal/binder"
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/evaluator"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// executeQuery runs a bound read query. The full physical operator set
// (hash joins, aggregates) lives behind its own contracts; this executor
// covers expression-only RETURNs and single-node-pattern scans, reached
// through Connection.Execute.
func (c *Connection) executeQuery(q *parser.Query) (*QueryResult, error) {
	tx := c.db.tm.BeginRead()
	b := binder.New(tx.Catalog())
	bound, err := b.Bind(q)
	if err != nil {
		return nil, err
	}
	bq := bound.(*binder.BoundQuery)
	if len(bq.Graphs) == 0 {
		return c.evaluateProjectionOnly(bq)
	}
	if len(bq.Graphs) == 1 && len(bq.Graphs[0].Rels) == 0 && len(bq.Graphs[0].Nodes) == 1 {
		return c.scanSingleNode(tx.Catalog(), bq, bq.Graphs[0].Nodes[0])
	}
	return nil, types.NewNotImplementedError("multi-hop pattern execution in the embedded executor")
}

// evaluateProjectionOnly handles RETURN <expr, ...> with no MATCH: one
// output row over a flat dummy chunk.
func (c *Connection) evaluateProjectionOnly(bq *binder.BoundQuery) (*QueryResult, error) {
	rs := vector.NewResultSet()
	res := &QueryResult{}
	row := make([]types.Value, 0, len(bq.Projection))
	for _, proj := range bq.Projection {
		res.Columns = append(res.Columns, projectionName(proj))
		eval, err := evaluator.Build(proj, nil)
		if err != nil {
			return nil, err
		}
		vals, err := evaluator.EvaluateToValues(eval, rs, c.ctx)
		if err != nil {
			return nil, err
		}
		row = append(row, vals[0])
	}
	res.Rows = append(res.Rows, row)
	return res, nil
}

func projectionName(e expression.Expression) string {
	if e.Alias() != "" {
		return e.Alias()
	}
	return e.UniqueName()
}

// scanSingleNode scans every candidate table of a node pattern in morsels,
// materializing the property columns the query touches, substituting
// subqueries with their aggregated count columns, filtering with the WHERE
// evaluator's select pass, and projecting the survivors.
func (c *Connection) scanSingleNode(cat *catalog.Catalog, bq *binder.BoundQuery,
	node *expression.Node) (*QueryResult, error) {
	// Collect the property expressions the query reads plus any
	// subqueries to substitute.
	needed := make(map[string]*expression.Property)
	var subqueries []*expression.Subquery
	collect := func(e expression.Expression) {
		for _, p := range expression.CollectProperties(e) {
			needed[p.UniqueName()] = p
		}
		for _, s := range expression.Collect(e, func(x expression.Expression) bool {
			return x.Kind() == expression.KindSubquery
		}) {
			subqueries = append(subqueries, s.(*expression.Subquery))
		}
	}
	if bq.Where != nil {
		collect(bq.Where)
	}
	for _, p := range bq.Projection {
		collect(p)
	}
	for _, o := range bq.OrderBy {
		collect(o)
	}

	res := &QueryResult{}
	for _, proj := range bq.Projection {
		res.Columns = append(res.Columns, projectionName(proj))
	}

	type orderedRow struct {
		row  []types.Value
		keys []types.Value
	}
	var collected []orderedRow

	for _, tableID := range node.SortedTableIDs() {
		entry, ok := cat.GetNodeTableEntry(tableID)
		if !ok {
			continue
		}
		table, ok := c.db.sm.GetNodeTable(tableID)
		if !ok {
			continue
		}
		if err := c.scanTable(cat, entry, table, node, needed, subqueries, bq, func(row []types.Value, keys []types.Value) {
			collected = append(collected, orderedRow{row, keys})
		}); err != nil {
			return nil, err
		}
	}

	if len(bq.OrderBy) > 0 {
		sort.SliceStable(collected, func(i, j int) bool {
			for k := range collected[i].keys {
				cmp := compareValues(collected[i].keys[k], collected[j].keys[k])
				if cmp == 0 {
					continue
				}
				if k < len(bq.Ascending) && !bq.Ascending[k] {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	start := bq.SkipNum
	if start < 0 {
		start = 0
	}
	for i := start; i < int64(len(collected)); i++ {
		if bq.HasLimit && int64(len(res.Rows)) >= bq.LimitNum {
			break
		}
		res.Rows = append(res.Rows, collected[i].row)
	}
	return res, nil
}

func (c *Connection) scanTable(cat *catalog.Catalog, entry *catalog.NodeTableEntry,
	table *storage.NodeTable, node *expression.Node, needed map[string]*expression.Property,
	subqueries []*expression.Subquery, bq *binder.BoundQuery,
	emit func(row, keys []types.Value)) error {
	numRows := table.NumRows()
	for morselStart := uint64(0); morselStart < numRows || morselStart == 0; morselStart += vector.DefaultCapacity {
		if err := c.ctx.CheckInterrupt(); err != nil {
			return err
		}
		if morselStart >= numRows {
			break
		}
		morselEnd := morselStart + vector.DefaultCapacity
		if morselEnd > numRows {
			morselEnd = numRows
		}
		size := uint32(morselEnd - morselStart)

		chunk := vector.NewDataChunk(len(needed) + len(subqueries))
		chunk.SetSize(size)
		resolved := make(map[string]evaluator.ValuePos)
		vectorPos := 0
		addVector := func(name string, v *vector.ValueVector) {
			chunk.Insert(vectorPos, v)
			resolved[name] = evaluator.ValuePos{ChunkPos: 0, VectorPos: vectorPos}
			vectorPos++
		}

		for name, prop := range needed {
			if prop.VariableName != node.VariableName {
				continue
			}
			v := vector.New(prop.DataType(), chunk.State)
			for i := uint32(0); i < size; i++ {
				offset := types.Offset(morselStart + uint64(i))
				fillPropertyVector(entry, table, prop, v, i, offset)
			}
			addVector(name, v)
		}
		// Substitute each subquery with its materialized aggregate column:
		// both share one unique name, so the evaluator picks up the column
		// transparently.
		for _, sub := range subqueries {
			v := vector.New(sub.DataType(), chunk.State)
			for i := uint32(0); i < size; i++ {
				offset := types.Offset(morselStart + uint64(i))
				count, err := c.countSubqueryMatches(cat, sub, node, entry.ID, offset)
				if err != nil {
					return err
				}
				v.SetNull(i, false)
				if sub.SubqueryType == expression.SubqueryExists {
					v.SetBool(i, count > 0)
				} else {
					v.SetInt64(i, count)
				}
			}
			addVector(sub.UniqueName(), v)
		}

		sel := vector.NewSelectionVector(vector.DefaultCapacity)
		sel.SetToUnfiltered(size)
		if bq.Where != nil {
			whereEval, err := evaluator.Build(bq.Where, resolved)
			if err != nil {
				return err
			}
			rs := vector.NewResultSet(chunk)
			if err := whereEval.Init(rs); err != nil {
				return err
			}
			hasAny, err := whereEval.Select(sel, c.ctx)
			if err != nil {
				return err
			}
			if !hasAny {
				continue
			}
		}

		rs := vector.NewResultSet(chunk)
		projEvals := make([]evaluator.Evaluator, len(bq.Projection))
		for i, proj := range bq.Projection {
			eval, err := evaluator.Build(proj, resolved)
			if err != nil {
				return err
			}
			if err := eval.Init(rs); err != nil {
				return err
			}
			if err := eval.Evaluate(c.ctx); err != nil {
				return err
			}
			projEvals[i] = eval
		}
		orderEvals := make([]evaluator.Evaluator, len(bq.OrderBy))
		for i, ob := range bq.OrderBy {
			eval, err := evaluator.Build(ob, resolved)
			if err != nil {
				return err
			}
			if err := eval.Init(rs); err != nil {
				return err
			}
			if err := eval.Evaluate(c.ctx); err != nil {
				return err
			}
			orderEvals[i] = eval
		}

		for i := uint32(0); i < sel.SelectedSize; i++ {
			pos := sel.Pos(i)
			row := make([]types.Value, len(projEvals))
			for j, eval := range projEvals {
				row[j] = vectorValueAt(eval.ResultVector(), pos)
			}
			keys := make([]types.Value, len(orderEvals))
			for j, eval := range orderEvals {
				keys[j] = vectorValueAt(eval.ResultVector(), pos)
			}
			emit(row, keys)
		}
	}
	return nil
}

func vectorValueAt(v *vector.ValueVector, pos uint32) types.Value {
	if v.State.IsFlat() {
		return v.GetAsValue(v.State.FlatPos())
	}
	return v.GetAsValue(pos)
}

func fillPropertyVector(entry *catalog.NodeTableEntry, table *storage.NodeTable,
	prop *expression.Property, v *vector.ValueVector, pos uint32, offset types.Offset) {
	switch prop.PropertyName {
	case "_id":
		v.SetNull(pos, false)
		v.SetID(pos, types.InternalID{TableID: entry.ID, Offset: offset})
		return
	case "_label":
		v.SetNull(pos, false)
		v.SetStr(pos, entry.Name)
		return
	}
	pid, ok := prop.PropertyIDs[entry.ID]
	if !ok {
		v.SetNull(pos, true)
		return
	}
	var colID types.ColumnID
	found := false
	serial := false
	for i := range entry.Properties {
		if entry.Properties[i].ID == pid {
			colID = entry.Properties[i].ColumnID
			serial = entry.Properties[i].Type.ID == types.TypeSerial
			found = true
		}
	}
	if !found {
		v.SetNull(pos, true)
		return
	}
	if serial {
		// SERIAL is not materialized: the value is the offset itself.
		v.SetNull(pos, false)
		v.SetInt64(pos, int64(offset))
		return
	}
	col := table.Column(colID)
	if col == nil {
		v.SetNull(pos, true)
		return
	}
	v.SetFromValue(pos, col.Value(offset))
}

// countSubqueryMatches counts rel matches for one outer node row. The
// embedded executor covers one-hop subquery graphs anchored at the outer
// node, which is what EXISTS/COUNT predicates over neighborhoods need.
func (c *Connection) countSubqueryMatches(cat *catalog.Catalog, sub *expression.Subquery,
	outer *expression.Node, tableID types.TableID, offset types.Offset) (int64, error) {
	if sub.HasWhere() {
		return 0, types.NewNotImplementedError("WHERE inside a subquery in the embedded executor")
	}
	var total int64
	for _, graph := range sub.QueryGraphs {
		for _, rel := range graph.Rels {
			var dir types.RelDirection
			switch {
			case rel.Src.VariableName == outer.VariableName:
				dir = types.DirectionFwd
			case rel.Dst.VariableName == outer.VariableName:
				dir = types.DirectionBwd
			default:
				return 0, types.NewNotImplementedError(
					"subquery patterns not anchored at the outer node")
			}
			for relTableID := range rel.TableIDs {
				entry, ok := cat.GetRelTableEntry(relTableID)
				if !ok || entry.BoundTableID(dir) != tableID {
					continue
				}
				relTable, ok := c.db.sm.GetRelTable(relTableID)
				if !ok {
					continue
				}
				data := relTable.Direction(dir)
				if data.IsColumn {
					if !data.Columns[0].IsNull(offset) {
						total++
					}
					continue
				}
				start, end := data.ListBounds(offset)
				total += int64(end - start)
			}
		}
	}
	return total, nil
}

func compareValues(a, b types.Value) int {
	if a.IsNull || b.IsNull {
		switch {
		case a.IsNull && b.IsNull:
			return 0
		case a.IsNull:
			return 1
		default:
			return -1
		}
	}
	switch a.Type.ID {
	case types.TypeString:
		switch {
		case a.StringVal < b.StringVal:
			return -1
		case a.StringVal > b.StringVal:
			return 1
		}
		return 0
	case types.TypeBool:
		switch {
		case a.BoolVal == b.BoolVal:
			return 0
		case !a.BoolVal:
			return -1
		}
		return 1
	case types.TypeDate:
		switch {
		case a.DateVal < b.DateVal:
			return -1
		case a.DateVal > b.DateVal:
			return 1
		}
		return 0
	case types.TypeTimestamp:
		switch {
		case a.TimestampVal < b.TimestampVal:
			return -1
		case a.TimestampVal > b.TimestampVal:
			return 1
		}
		return 0
	case types.TypeDouble, types.TypeFloat:
		switch {
		case a.DoubleVal < b.DoubleVal:
			return -1
		case a.DoubleVal > b.DoubleVal:
			return 1
		}
		return 0
	default:
		switch {
		case a.Int64Val < b.Int64Val:
			return -1
		case a.Int64Val > b.Int64Val:
			return 1
		}
		return 0
	}
}
