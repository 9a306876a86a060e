package copier

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/kuzugo/internal/binder"
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/evaluator"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Copier runs bound COPY FROM statements against the storage manager.
// Ingest has at-most-once semantics per input row: the first per-row error
// aborts the whole copy and the transaction with it.
type Copier struct {
	sm  *storage.StorageManager
	cat *catalog.Catalog
}

// New binds a copier to the storage manager and the transaction's catalog
// view.
func New(sm *storage.StorageManager, cat *catalog.Catalog) *Copier {
	return &Copier{sm: sm, cat: cat}
}

func (c *Copier) nodeTableName(id types.TableID) string {
	if entry, ok := c.cat.GetNodeTableEntry(id); ok {
		return entry.Name
	}
	return "?"
}

// colPlan says how to produce one target column from an input row.
type colPlan struct {
	evalType     binder.ColumnEvaluateType
	srcIdx       int
	targetType   *types.LogicalType
	defaultValue types.Value
}

// sourceIndexOf resolves the scan column a reference/cast expression reads.
func sourceIndexOf(e expression.Expression, sourceColumns []binder.ScanColumn) int {
	name := ""
	switch v := e.(type) {
	case *expression.Variable:
		name = v.Name
	case *expression.Function:
		if child, ok := v.Children()[0].(*expression.Variable); ok {
			name = child.Name
		}
	}
	for i, c := range sourceColumns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// buildColPlans maps the bound column expressions (after any injected
// internal variables) onto the source row layout.
func buildColPlans(info *binder.BoundCopyFromInfo, columns []expression.Expression,
	evalTypes []binder.ColumnEvaluateType, targetTypes []*types.LogicalType) []colPlan {
	plans := make([]colPlan, len(columns))
	for i := range columns {
		p := colPlan{evalType: evalTypes[i], srcIdx: -1, targetType: targetTypes[i]}
		switch evalTypes[i] {
		case binder.EvaluateReference, binder.EvaluateCast:
			p.srcIdx = sourceIndexOf(columns[i], info.SourceColumns)
		case binder.EvaluateDefault:
			if lit, ok := columns[i].(*expression.Literal); ok {
				p.defaultValue = lit.Value
			}
		}
		plans[i] = p
	}
	return plans
}

// evalColumn produces one target value from an input row.
func evalColumn(p colPlan, row Row) (types.Value, error) {
	switch p.evalType {
	case binder.EvaluateDefault:
		return p.defaultValue, nil
	default:
		if p.srcIdx < 0 || p.srcIdx >= len(row.Fields) {
			return types.NewNullValue(p.targetType), nil
		}
		return parseField(row.Fields[p.srcIdx], p.targetType, row)
	}
}

// CopyFrom dispatches on the bound target and returns the number of rows
// ingested.
func (c *Copier) CopyFrom(ctx *evaluator.Context, bound *binder.BoundCopyFrom) (uint64, error) {
	if bound.Info.IsRelCopy() {
		return c.copyRel(ctx, &bound.Info)
	}
	return c.copyNode(ctx, &bound.Info)
}

func workers() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// copyNode ingests into a node table: one in-memory column per non-SERIAL
// property plus a primary-key index sized to the expected row count, all
// populated by one parallel task per block.
func (c *Copier) copyNode(ctx *evaluator.Context, info *binder.BoundCopyFromInfo) (uint64, error) {
	entry := info.TableEntry.(*catalog.NodeTableEntry)
	table, ok := c.sm.GetNodeTable(entry.ID)
	if !ok {
		return 0, types.NewRuntimeError("storage for table %s was never created", entry.Name)
	}
	blocks, err := readBlocks(info.Source, info.Options)
	if err != nil {
		return 0, err
	}
	var totalRows uint64
	for _, b := range blocks {
		totalRows += uint64(len(b.Rows))
	}

	pk := entry.PrimaryKey()
	keyType := pk.Type.ID
	if keyType == types.TypeSerial {
		keyType = types.TypeInt64
	}
	index := storage.NewPrimaryKeyIndex(keyType, totalRows)

	// Target columns pair with the bound column expressions: the binder
	// walked the materialized properties in catalog order.
	var targetProps []*catalog.Property
	for i := range entry.Properties {
		if entry.Properties[i].Type.ID != types.TypeSerial {
			targetProps = append(targetProps, &entry.Properties[i])
		}
	}
	targetTypes := make([]*types.LogicalType, len(targetProps))
	for i, p := range targetProps {
		targetTypes[i] = p.Type
	}
	plans := buildColPlans(info, info.Columns, info.EvaluateTypes, targetTypes)

	columns := make(map[types.ColumnID]*storage.ColumnChunk, len(targetProps))
	for _, p := range targetProps {
		chunk := storage.NewColumnChunk(p.Type, totalRows)
		chunk.Resize(totalRows)
		columns[p.ColumnID] = chunk
	}

	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers())
	for _, block := range blocks {
		b := block
		g.Go(func() error {
			if err := ctx.CheckInterrupt(); err != nil {
				return err
			}
			keys := make([]types.Value, 0, len(b.Rows))
			for rowIdx, row := range b.Rows {
				offset := types.Offset(b.StartRowIdx + uint64(rowIdx))
				for i, p := range targetProps {
					v, err := evalColumn(plans[i], row)
					if err != nil {
						return err
					}
					columns[p.ColumnID].SetValue(offset, v)
				}
				var key types.Value
				if pk.Type.ID == types.TypeSerial {
					key = types.NewInt64Value(int64(offset))
				} else {
					key = columns[pk.ColumnID].Value(offset)
				}
				if key.IsNull {
					return types.NewCopyError(
						"NULL around L%d in file %s violates the non-null constraint of the primary key column.",
						row.Line, row.File)
				}
				keys = append(keys, key)
			}
			if dup := index.InsertBatch(keys, types.Offset(b.StartRowIdx)); dup >= 0 {
				return types.NewCopyError("PK value %s violates uniqueness.", keys[dup])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	staged := storage.NewNodeTable(entry)
	staged.SetContent(totalRows, columns, index)
	table.Stage(staged)
	c.sm.NodesStatistics().SetNumRows(entry.ID, totalRows)
	if err := c.sm.WAL().LogCopyNode(entry.ID); err != nil {
		return 0, err
	}
	return totalRows, nil
}
