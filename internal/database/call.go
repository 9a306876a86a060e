package database

import (
	"runtime"

	"github.com/untoldecay/kuzugo/internal/binder"
	"github.com/untoldecay/kuzugo/internal/config"
	"github.com/untoldecay/kuzugo/internal/hnsw"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

func (c *Connection) executeCall(s *parser.StandaloneCall) (*QueryResult, error) {
	// Standalone calls still go through the binder for name validation.
	b := binder.New(c.db.tm.CurrentCatalog())
	bound, err := b.Bind(s)
	if err != nil {
		return nil, err
	}
	call := bound.(*binder.BoundStandaloneCall)
	switch call.FuncName {
	case "CREATE_HNSW_INDEX":
		return c.createHNSWIndex(call)
	case "_CREATE_HNSW_INDEX":
		return c.createHNSWIndexInternal(call)
	case "DROP_HNSW_INDEX":
		return c.dropHNSWIndex(call)
	case "_DROP_HNSW_INDEX":
		return c.dropHNSWIndexInternal(call)
	case "QUERY_HNSW_INDEX":
		return c.queryHNSWIndex(call)
	case "SHOW_CONNECTION":
		return c.showConnection(call)
	}
	return nil, types.NewNotImplementedError("table function " + call.FuncName)
}

func callStringArgs(call *binder.BoundStandaloneCall, n int) ([]string, error) {
	if len(call.Args) < n {
		return nil, types.NewBinderError("%s requires %d arguments.", call.FuncName, n)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		if call.Args[i].Type.ID != types.TypeString {
			return nil, types.NewBinderError("Argument %d of %s must be a STRING.", i+1, call.FuncName)
		}
		out[i] = call.Args[i].StringVal
	}
	return out, nil
}

// createHNSWIndex rewrites the user-visible call into the internal
// statement sequence: create the two auxiliary rel tables, run the build,
// return the confirmation row.
func (c *Connection) createHNSWIndex(call *binder.BoundStandaloneCall) (*QueryResult, error) {
	args, err := callStringArgs(call, 3)
	if err != nil {
		return nil, err
	}
	// Validate the target before the rewrite creates any table.
	if _, err := hnsw.BindCreate(c.db.tm.CurrentCatalog(), c.db.sm,
		args[0], args[1], args[2], call.OptionalParams); err != nil {
		return nil, err
	}
	for _, stmt := range hnsw.RewriteCreate(args[0], args[1], args[2], call.OptionalParams) {
		if _, err := c.execute(stmt); err != nil {
			return nil, err
		}
	}
	return messageResult("Index " + args[0] + " has been created."), nil
}

func buildWorkers() int {
	if n := config.MaxThreads(); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func (c *Connection) createHNSWIndexInternal(call *binder.BoundStandaloneCall) (*QueryResult, error) {
	args, err := callStringArgs(call, 3)
	if err != nil {
		return nil, err
	}
	if err := c.db.checkWritable(); err != nil {
		return nil, err
	}
	tx, err := c.db.tm.BeginWrite()
	if err != nil {
		return nil, err
	}
	state, err := hnsw.BindCreate(tx.Catalog(), c.db.sm, args[0], args[1], args[2], call.OptionalParams)
	if err != nil {
		_ = c.db.tm.Rollback(tx)
		return nil, err
	}
	if err := state.Execute(c.ctx, buildWorkers()); err != nil {
		_ = c.db.tm.Rollback(tx)
		return nil, err
	}
	if err := state.Finalize(tx.Catalog(), c.db.sm); err != nil {
		_ = c.db.tm.Rollback(tx)
		return nil, err
	}
	c.db.sm.MarkCatalogDirty()
	if err := c.db.tm.Commit(tx); err != nil {
		return nil, err
	}
	return messageResult("Index " + args[0] + " has been built."), nil
}

func (c *Connection) dropHNSWIndex(call *binder.BoundStandaloneCall) (*QueryResult, error) {
	args, err := callStringArgs(call, 2)
	if err != nil {
		return nil, err
	}
	for _, stmt := range hnsw.RewriteDrop(args[0], args[1]) {
		if _, err := c.execute(stmt); err != nil {
			return nil, err
		}
	}
	return messageResult("Index " + args[0] + " has been dropped."), nil
}

func (c *Connection) dropHNSWIndexInternal(call *binder.BoundStandaloneCall) (*QueryResult, error) {
	args, err := callStringArgs(call, 2)
	if err != nil {
		return nil, err
	}
	if err := c.db.checkWritable(); err != nil {
		return nil, err
	}
	tx, err := c.db.tm.BeginWrite()
	if err != nil {
		return nil, err
	}
	if err := hnsw.DropIndex(tx.Catalog(), args[1], args[0]); err != nil {
		_ = c.db.tm.Rollback(tx)
		return nil, err
	}
	c.db.sm.MarkCatalogDirty()
	if err := c.db.tm.Commit(tx); err != nil {
		return nil, err
	}
	return messageResult("Index " + args[0] + " has been dropped."), nil
}

func (c *Connection) queryHNSWIndex(call *binder.BoundStandaloneCall) (*QueryResult, error) {
	args, err := callStringArgs(call, 2)
	if err != nil {
		return nil, err
	}
	if len(call.Args) < 4 {
		return nil, types.NewBinderError("QUERY_HNSW_INDEX requires 4 arguments.")
	}
	queryArg := call.Args[2]
	if queryArg.Type.ID != types.TypeVarList && queryArg.Type.ID != types.TypeFixedList {
		return nil, types.NewBinderError("Argument 3 of QUERY_HNSW_INDEX must be a list of floats.")
	}
	query := make([]float64, len(queryArg.ListVal))
	for i, e := range queryArg.ListVal {
		switch e.Type.ID {
		case types.TypeDouble, types.TypeFloat:
			query[i] = e.DoubleVal
		default:
			query[i] = float64(e.Int64Val)
		}
	}
	k := call.Args[3].Int64Val
	idx, err := hnsw.OpenIndex(c.db.tm.CurrentCatalog(), c.db.sm, args[1], args[0])
	if err != nil {
		return nil, err
	}
	efs := int64(0)
	if v, ok := call.OptionalParams["efs"]; ok {
		efs = v.Int64Val
	}
	results := idx.Search(query, int(k), efs)
	res := &QueryResult{Columns: []string{"offset", "distance"}}
	for _, r := range results {
		res.Rows = append(res.Rows, []types.Value{
			types.NewInt64Value(int64(r.Offset)),
			types.NewDoubleValue(r.Distance),
		})
	}
	return res, nil
}

// showConnection returns the four-column (src, dst, srcPk, dstPk) table of
// a rel table or group.
func (c *Connection) showConnection(call *binder.BoundStandaloneCall) (*QueryResult, error) {
	args, err := callStringArgs(call, 1)
	if err != nil {
		return nil, err
	}
	cat := c.db.tm.CurrentCatalog()
	id, ok := cat.GetTableID(args[0])
	if !ok {
		return nil, types.NewBinderError("Table %s does not exist.", args[0])
	}
	var relIDs []types.TableID
	if group, isGroup := cat.GetRelGroupEntry(id); isGroup {
		relIDs = group.RelTableIDs
	} else if _, isRel := cat.GetRelTableEntry(id); isRel {
		relIDs = []types.TableID{id}
	} else {
		return nil, types.NewBinderError(
			"Table %s is not a relationship table or a relationship group.", args[0])
	}
	res := &QueryResult{Columns: []string{
		"source table name", "destination table name",
		"source table primary key", "destination table primary key",
	}}
	for _, relID := range relIDs {
		rel, _ := cat.GetRelTableEntry(relID)
		src, _ := cat.GetNodeTableEntry(rel.SrcTableID)
		dst, _ := cat.GetNodeTableEntry(rel.DstTableID)
		res.Rows = append(res.Rows, []types.Value{
			types.NewStringValue(src.Name),
			types.NewStringValue(dst.Name),
			types.NewStringValue(src.PrimaryKey().Name),
			types.NewStringValue(dst.PrimaryKey().Name),
		})
	}
	return res, nil
}
