package copier

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/kuzugo/internal/binder"
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/evaluator"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
)

// relDirectionBuild is the in-flight state of one direction during a rel
// copy: single-multiplicity directions write adjacency columns directly in
// phase A; multi-multiplicity directions count in phase A and place in
// phase B.
type relDirectionBuild struct {
	dir      types.RelDirection
	single   bool
	numBound uint64

	// Single-multiplicity: one slot per bound node, guarded by mu since
	// violation checks must read-then-write.
	mu      sync.Mutex
	columns map[types.ColumnID]*storage.ColumnChunk

	// Multi-multiplicity.
	builder *storage.ListMetadataBuilder
	csrData map[types.ColumnID]*storage.ColumnChunk
}

// NeighborColumnID is the reserved column 0 of a rel table.
const NeighborColumnID types.ColumnID = 0

func newRelDirectionBuild(entry *catalog.RelTableEntry, dir types.RelDirection,
	numBound uint64) *relDirectionBuild {
	b := &relDirectionBuild{
		dir:      dir,
		single:   entry.IsSingleMultiplicity(dir),
		numBound: numBound,
	}
	newColumns := func() map[types.ColumnID]*storage.ColumnChunk {
		m := make(map[types.ColumnID]*storage.ColumnChunk)
		m[NeighborColumnID] = storage.NewColumnChunk(types.NewType(types.TypeInt64), numBound)
		for i := range entry.Properties {
			p := &entry.Properties[i]
			m[p.ColumnID] = storage.NewColumnChunk(p.Type, numBound)
		}
		return m
	}
	if b.single {
		b.columns = newColumns()
		for _, c := range b.columns {
			c.Resize(numBound)
		}
	} else {
		b.builder = storage.NewListMetadataBuilder(numBound)
		b.builder.PreTouch()
		b.csrData = newColumns()
	}
	return b
}

// boundAndNbr picks the bound-node offset and neighbor offset for this
// direction.
func (b *relDirectionBuild) boundAndNbr(srcOffset, dstOffset types.Offset) (types.Offset, types.Offset) {
	if b.dir == types.DirectionFwd {
		return srcOffset, dstOffset
	}
	return dstOffset, srcOffset
}

// placeSingle writes one relationship into the adjacency column; the slot
// must still be null, otherwise the bound node has a second neighbor.
func (b *relDirectionBuild) placeSingle(entry *catalog.RelTableEntry, bound, nbr types.Offset,
	relID int64, props map[types.ColumnID]types.Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.columns[NeighborColumnID].IsNull(bound) {
		return types.NewCopyError(
			"RelTable %s is single-multiplicity but node %d has more than one neighbour in direction %s.",
			entry.Name, bound, b.dir)
	}
	b.columns[NeighborColumnID].SetValue(bound, types.NewInt64Value(int64(nbr)))
	for colID, v := range props {
		b.columns[colID].SetValue(bound, v)
	}
	return nil
}

// finishCounting freezes CSR offsets and allocates the dense payload.
func (b *relDirectionBuild) finishCounting() {
	if b.single {
		return
	}
	b.builder.BuildOffsets()
	total := b.builder.TotalRels()
	for _, c := range b.csrData {
		c.Resize(total)
	}
}

// placeList drops one relationship into the bound node's slot, back to
// front; positions are disjoint across tasks so no lock is needed.
func (b *relDirectionBuild) placeList(bound, nbr types.Offset, relID int64,
	props map[types.ColumnID]types.Value) {
	pos := types.Offset(b.builder.DecrementListSize(bound))
	b.csrData[NeighborColumnID].SetValue(pos, types.NewInt64Value(int64(nbr)))
	for colID, v := range props {
		b.csrData[colID].SetValue(pos, v)
	}
}

func (b *relDirectionBuild) intoDirectedData() *storage.DirectedRelData {
	out := storage.NewDirectedRelData(b.single)
	if b.single {
		out.Columns = b.columns
		return out
	}
	out.CSROffsets = b.builder.CSROffsets()
	out.CSRData = b.csrData
	return out
}

// copyRel ingests into a relationship table in two phases: phase A
// populates single-multiplicity columns and counts list sizes, phase B
// re-scans the input and places list tuples at decrementListSize
// positions. A global barrier separates the phases.
func (c *Copier) copyRel(ctx *evaluator.Context, info *binder.BoundCopyFromInfo) (uint64, error) {
	entry := info.TableEntry.(*catalog.RelTableEntry)
	table, ok := c.sm.GetRelTable(entry.ID)
	if !ok {
		return 0, types.NewRuntimeError("storage for table %s was never created", entry.Name)
	}
	srcTable, ok := c.sm.GetNodeTable(entry.SrcTableID)
	if !ok {
		return 0, types.NewRuntimeError("node table %d has no storage", entry.SrcTableID)
	}
	dstTable, ok := c.sm.GetNodeTable(entry.DstTableID)
	if !ok {
		return 0, types.NewRuntimeError("node table %d has no storage", entry.DstTableID)
	}

	blocks, err := readBlocks(info.Source, info.Options)
	if err != nil {
		return 0, err
	}

	// Columns 0 and 1 of the scan are the endpoint keys; properties start
	// at bound column 3 (after the injected src/dst/row offsets).
	srcKeyType := info.ExpectedColumnTypes[0]
	dstKeyType := info.ExpectedColumnTypes[1]
	var propPlans []colPlan
	var propColumnIDs []types.ColumnID
	{
		var boundCols = info.Columns[3:]
		var evalTypes = info.EvaluateTypes[3:]
		var targetTypes []*types.LogicalType
		for i := 1; i < len(entry.Properties); i++ {
			p := &entry.Properties[i]
			targetTypes = append(targetTypes, p.Type)
			propColumnIDs = append(propColumnIDs, p.ColumnID)
		}
		propPlans = buildColPlans(info, boundCols, evalTypes, targetTypes)
	}
	relIDColumnID := entry.Properties[0].ColumnID

	fwd := newRelDirectionBuild(entry, types.DirectionFwd, srcTable.NumRows())
	bwd := newRelDirectionBuild(entry, types.DirectionBwd, dstTable.NumRows())

	lookupEndpoint := func(field string, keyType *types.LogicalType, nodeTable *storage.NodeTable,
		tableName string, row Row) (types.Offset, error) {
		key, err := parseField(field, keyType, row)
		if err != nil {
			return 0, err
		}
		if key.IsNull {
			return 0, types.NewCopyError(
				"NULL around L%d in file %s violates the non-null constraint of the primary key column.",
				row.Line, row.File)
		}
		offset, found := nodeTable.PKIndex().Lookup(key)
		if !found {
			return 0, types.NewCopyError(
				"Unable to find primary key value %s in table %s around L%d in file %s.",
				key, tableName, row.Line, row.File)
		}
		return offset, nil
	}
	srcName := c.nodeTableName(entry.SrcTableID)
	dstName := c.nodeTableName(entry.DstTableID)

	processRow := func(row Row, relID int64, place bool) error {
		if len(row.Fields) < 2 {
			return types.NewCopyError(
				"Too few fields around L%d in file %s.", row.Line, row.File)
		}
		srcOffset, err := lookupEndpoint(row.Fields[0], srcKeyType, srcTable, srcName, row)
		if err != nil {
			return err
		}
		dstOffset, err := lookupEndpoint(row.Fields[1], dstKeyType, dstTable, dstName, row)
		if err != nil {
			return err
		}
		props := make(map[types.ColumnID]types.Value, len(propPlans)+1)
		props[relIDColumnID] = types.NewInt64Value(relID)
		for i, plan := range propPlans {
			v, err := evalColumn(plan, row)
			if err != nil {
				return err
			}
			props[propColumnIDs[i]] = v
		}
		for _, d := range []*relDirectionBuild{fwd, bwd} {
			bound, nbr := d.boundAndNbr(srcOffset, dstOffset)
			if d.single {
				if !place {
					if err := d.placeSingle(entry, bound, nbr, relID, props); err != nil {
						return err
					}
				}
			} else {
				if place {
					d.placeList(bound, nbr, relID, props)
				} else {
					d.builder.IncrementSize(bound)
				}
			}
		}
		return nil
	}

	runPhase := func(place bool) error {
		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(workers())
		for _, block := range blocks {
			b := block
			g.Go(func() error {
				if err := ctx.CheckInterrupt(); err != nil {
					return err
				}
				for rowIdx, row := range b.Rows {
					relID := int64(b.StartRowIdx + uint64(rowIdx))
					if err := processRow(row, relID, place); err != nil {
						return err
					}
				}
				return nil
			})
		}
		return g.Wait()
	}

	// Phase A: populate columns and count.
	if err := runPhase(false); err != nil {
		return 0, err
	}
	// Barrier, then list headers and placement.
	fwd.finishCounting()
	bwd.finishCounting()
	if !fwd.single || !bwd.single {
		if err := runPhase(true); err != nil {
			return 0, err
		}
	}

	var totalRows uint64
	for _, b := range blocks {
		totalRows += uint64(len(b.Rows))
	}
	staged := storage.NewRelTable(entry)
	staged.SetContent(totalRows, fwd.intoDirectedData(), bwd.intoDirectedData())
	table.Stage(staged)
	c.sm.RelsStatistics().SetNumRows(entry.ID, totalRows)
	if err := c.sm.WAL().LogCopyRel(entry.ID); err != nil {
		return 0, err
	}
	return totalRows, nil
}
