package hnsw

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/evaluator"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
)

// morselSize is the offset-range unit handed to build workers.
const morselSize = 512

// CreateSharedState is shared by the build workers of one
// _CREATE_HNSW_INDEX execution.
type CreateSharedState struct {
	IndexName string
	Entry     *catalog.NodeTableEntry
	Property  *catalog.Property
	Config    Config
	Index     *InMemIndex

	totalNodes    uint64
	insertedNodes atomic.Uint64
	nextMorsel    atomic.Uint64
}

// Progress reports insertedNodes / totalNodes in [0, 1].
func (st *CreateSharedState) Progress() float64 {
	if st.totalNodes == 0 {
		return 1
	}
	return float64(st.insertedNodes.Load()) / float64(st.totalNodes)
}

// validIndexColumn accepts FIXED_LIST<FLOAT|DOUBLE> of a fixed dimension.
func validIndexColumn(t *types.LogicalType) bool {
	if t.ID != types.TypeFixedList || t.NumElements == 0 {
		return false
	}
	return t.Child.ID == types.TypeFloat || t.Child.ID == types.TypeDouble
}

// BindCreate validates the call target and allocates the shared state.
func BindCreate(cat *catalog.Catalog, sm *storage.StorageManager,
	indexName, tableName, columnName string, params map[string]types.Value) (*CreateSharedState, error) {
	id, ok := cat.GetTableID(tableName)
	if !ok {
		return nil, types.NewBinderError("Table %s does not exist.", tableName)
	}
	entry, ok := cat.GetNodeTableEntry(id)
	if !ok {
		return nil, types.NewBinderError("Table %s is not a node table.", tableName)
	}
	prop, ok := entry.GetProperty(columnName)
	if !ok {
		return nil, types.NewBinderError("Table %s does not contain column %s.", tableName, columnName)
	}
	if !validIndexColumn(prop.Type) {
		return nil, types.NewBinderError(
			"Column %s has type %s but FIXED_LIST of FLOAT or DOUBLE is required for an HNSW index.",
			columnName, prop.Type)
	}
	if cat.ContainsIndex(id, indexName) {
		return nil, types.NewCatalogError("Index %s already exists in table %s.", indexName, tableName)
	}
	cfg, err := ConfigFromParams(params)
	if err != nil {
		return nil, err
	}
	table, ok := sm.GetNodeTable(id)
	if !ok {
		return nil, types.NewRuntimeError("storage for table %s was never created", tableName)
	}
	column := table.Column(prop.ColumnID)
	numNodes := table.NumRows()
	reader := func(offset types.Offset) []float64 {
		v := column.Value(offset)
		if v.IsNull {
			return nil
		}
		out := make([]float64, len(v.ListVal))
		for i, e := range v.ListVal {
			out[i] = e.DoubleVal
		}
		return out
	}
	return &CreateSharedState{
		IndexName:  indexName,
		Entry:      entry,
		Property:   prop,
		Config:     cfg,
		Index:      NewInMemIndex(cfg, numNodes, reader),
		totalNodes: numNodes,
	}, nil
}

// RewriteCreate expands the user-visible CREATE_HNSW_INDEX call into the
// internal statement sequence: create the two auxiliary rel tables, run
// the internal build call, and return the confirmation row.
func RewriteCreate(indexName, tableName, columnName string,
	params map[string]types.Value) []parser.Statement {
	relTable := func(name string) *parser.CreateRelTable {
		return &parser.CreateRelTable{
			Name:            name,
			SrcName:         tableName,
			DstName:         tableName,
			SrcMultiplicity: types.MultiplicityMany,
			DstMultiplicity: types.MultiplicityMany,
		}
	}
	return []parser.Statement{
		relTable(UpperRelTableName(indexName)),
		relTable(LowerRelTableName(indexName)),
		&parser.StandaloneCall{
			FuncName:       "_CREATE_HNSW_INDEX",
			Args:           []types.Value{types.NewStringValue(indexName), types.NewStringValue(tableName), types.NewStringValue(columnName)},
			OptionalParams: params,
		},
	}
}

// RewriteDrop expands DROP_HNSW_INDEX symmetrically: drop the index entry
// first, then both auxiliary rel tables.
func RewriteDrop(indexName, tableName string) []parser.Statement {
	return []parser.Statement{
		&parser.StandaloneCall{
			FuncName: "_DROP_HNSW_INDEX",
			Args:     []types.Value{types.NewStringValue(indexName), types.NewStringValue(tableName)},
		},
		&parser.DropTable{Name: UpperRelTableName(indexName)},
		&parser.DropTable{Name: LowerRelTableName(indexName)},
	}
}

// Execute inserts every node in parallel by morsel. Each worker owns a
// thread-local visited scratch; all insert calls complete before shrink
// and finalize run.
func (st *CreateSharedState) Execute(ctx *evaluator.Context, numWorkers int) error {
	if numWorkers < 1 {
		numWorkers = 1
	}
	g, _ := errgroup.WithContext(context.Background())
	for w := 0; w < numWorkers; w++ {
		g.Go(func() error {
			visited := NewVisitedSet()
			for {
				if err := ctx.CheckInterrupt(); err != nil {
					return err
				}
				start := st.nextMorsel.Add(morselSize) - morselSize
				if start >= st.totalNodes {
					return nil
				}
				end := start + morselSize
				if end > st.totalNodes {
					end = st.totalNodes
				}
				for offset := start; offset < end; offset++ {
					st.Index.Insert(types.Offset(offset), visited)
				}
				st.insertedNodes.Add(end - start)
			}
		})
	}
	return g.Wait()
}

// Finalize trims neighbor lists, writes the graph edges into the two rel
// tables, and registers the index entry. Runs single-threaded after the
// build barrier.
func (st *CreateSharedState) Finalize(cat *catalog.Catalog, sm *storage.StorageManager) error {
	st.Index.Shrink()

	upperID, ok := cat.GetTableID(UpperRelTableName(st.IndexName))
	if !ok {
		return types.NewRuntimeError("auxiliary table %s was never created", UpperRelTableName(st.IndexName))
	}
	lowerID, ok := cat.GetTableID(LowerRelTableName(st.IndexName))
	if !ok {
		return types.NewRuntimeError("auxiliary table %s was never created", LowerRelTableName(st.IndexName))
	}
	if err := st.writeLayer(cat, sm, upperID, true); err != nil {
		return err
	}
	if err := st.writeLayer(cat, sm, lowerID, false); err != nil {
		return err
	}

	aux := AuxInfo{
		UpperRelTableID: upperID,
		LowerRelTableID: lowerID,
		UpperEntryPoint: st.Index.UpperEntryPoint(),
		LowerEntryPoint: st.Index.LowerEntryPoint(),
		Config:          st.Config,
	}
	return cat.CreateIndex(&catalog.IndexEntry{
		TableID:     st.Entry.ID,
		Name:        st.IndexName,
		PropertyIDs: []types.PropertyID{st.Property.ID},
		AuxInfo:     aux.Encode(),
	})
}

// writeLayer batch-inserts one layer's adjacency into a rel table as a
// forward CSR plus its mirror.
func (st *CreateSharedState) writeLayer(cat *catalog.Catalog, sm *storage.StorageManager,
	relID types.TableID, upper bool) error {
	table, ok := sm.GetRelTable(relID)
	if !ok {
		return types.NewRuntimeError("storage for rel table %d was never created", relID)
	}
	entry, _ := cat.GetRelTableEntry(relID)
	numNodes := st.Index.NumNodes()

	counts := make([]uint64, numNodes)
	var numEdges uint64
	st.Index.Edges(upper, func(src, dst types.Offset) {
		counts[src]++
		numEdges++
	})
	makeDir := func(countsIn []uint64, swap bool) *storage.DirectedRelData {
		d := storage.NewDirectedRelData(false)
		d.CSROffsets = make([]uint64, numNodes+1)
		var total uint64
		for i, c := range countsIn {
			d.CSROffsets[i] = total
			total += c
		}
		d.CSROffsets[numNodes] = total
		nbr := storage.NewColumnChunk(types.NewType(types.TypeInt64), total)
		nbr.Resize(total)
		relIDs := storage.NewColumnChunk(types.NewType(types.TypeInt64), total)
		relIDs.Resize(total)
		cursor := append([]uint64(nil), d.CSROffsets[:numNodes]...)
		var edgeID int64
		st.Index.Edges(upper, func(src, dst types.Offset) {
			from, to := src, dst
			if swap {
				from, to = dst, src
			}
			pos := types.Offset(cursor[from])
			cursor[from]++
			nbr.SetValue(pos, types.NewInt64Value(int64(to)))
			relIDs.SetValue(pos, types.NewInt64Value(edgeID))
			edgeID++
		})
		d.CSRData = map[types.ColumnID]*storage.ColumnChunk{
			0:                            nbr,
			entry.Properties[0].ColumnID: relIDs,
		}
		return d
	}
	bwdCounts := make([]uint64, numNodes)
	st.Index.Edges(upper, func(src, dst types.Offset) { bwdCounts[dst]++ })

	staged := storage.NewRelTable(entry)
	staged.SetContent(numEdges, makeDir(counts, false), makeDir(bwdCounts, true))
	table.Stage(staged)
	sm.RelsStatistics().SetNumRows(relID, numEdges)
	return sm.WAL().LogCopyRel(relID)
}

// DropIndex removes the index entry; the caller drops the two rel tables
// through the regular DDL path.
func DropIndex(cat *catalog.Catalog, tableName, indexName string) error {
	id, ok := cat.GetTableID(tableName)
	if !ok {
		return types.NewBinderError("Table %s does not exist.", tableName)
	}
	if !cat.ContainsIndex(id, indexName) {
		return types.NewCatalogError("Index %s does not exist in table %s.", indexName, tableName)
	}
	return cat.DropIndex(id, indexName)
}
