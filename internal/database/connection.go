package database

import (
	"errors"

	"github.com/untoldecay/kuzugo/internal/binder"
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/copier"
	"github.com/untoldecay/kuzugo/internal/evaluator"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
)

// QueryResult is the tabular output of one statement.
type QueryResult struct {
	Columns []string
	Rows    [][]types.Value
}

func messageResult(msg string) *QueryResult {
	return &QueryResult{
		Columns: []string{"result"},
		Rows:    [][]types.Value{{types.NewStringValue(msg)}},
	}
}

// Connection executes statements against a database. A connection is not
// safe for concurrent use; open one per goroutine.
type Connection struct {
	db  *Database
	ctx *evaluator.Context
}

func NewConnection(db *Database) *Connection {
	return &Connection{db: db, ctx: evaluator.NewContext()}
}

// Interrupt cancels the running statement at its next morsel boundary.
func (c *Connection) Interrupt() { c.ctx.Interrupt() }

// Execute binds and runs one parsed statement.
func (c *Connection) Execute(stmt parser.Statement) (*QueryResult, error) {
	res, err := c.execute(stmt)
	if err != nil && types.KindOf(err) == types.ErrRuntime {
		c.db.markReadOnly()
	}
	return res, err
}

func (c *Connection) execute(stmt parser.Statement) (*QueryResult, error) {
	switch s := stmt.(type) {
	case *parser.Query:
		return c.executeQuery(s)
	case *parser.StandaloneCall:
		return c.executeCall(s)
	default:
		return c.executeWrite(stmt)
	}
}

// executeWrite runs DDL and COPY under the single writer transaction.
// The binder never partially mutates the catalog: all catalog effects are
// applied to the writer's clone after binding succeeds, and installed only
// at commit.
func (c *Connection) executeWrite(stmt parser.Statement) (*QueryResult, error) {
	if err := c.db.checkWritable(); err != nil {
		return nil, err
	}
	tx, err := c.db.tm.BeginWrite()
	if err != nil {
		return nil, err
	}
	res, err := c.runWrite(tx, stmt)
	if err != nil {
		_ = c.db.tm.Rollback(tx)
		return nil, err
	}
	return res, nil
}

// tableCreation defers storage materialization to after the catalog
// commit.
type tableCreation struct {
	nodeIDs []types.TableID
	relIDs  []types.TableID
	dropIDs []types.TableID
}

func (c *Connection) runWrite(tx *storage.Transaction, stmt parser.Statement) (*QueryResult, error) {
	b := binder.New(tx.Catalog())
	b.SetSchemaSniffer(copier.CSVSchemaSniffer())
	bound, err := b.Bind(stmt)
	if err != nil {
		return nil, err
	}
	var created tableCreation
	var msg string
	switch bs := bound.(type) {
	case *binder.BoundCreateNodeTable:
		id, err := tx.Catalog().CreateNodeTable(bs.Info)
		if err != nil {
			return nil, err
		}
		created.nodeIDs = append(created.nodeIDs, id)
		msg = "Table " + bs.Info.Name + " has been created."
	case *binder.BoundCreateRelTable:
		id, err := tx.Catalog().CreateRelTable(bs.Info)
		if err != nil {
			return nil, err
		}
		created.relIDs = append(created.relIDs, id)
		msg = "Table " + bs.Info.Name + " has been created."
	case *binder.BoundCreateRelGroup:
		id, err := tx.Catalog().CreateRelGroup(bs.Info)
		if err != nil {
			return nil, err
		}
		group, _ := tx.Catalog().GetRelGroupEntry(id)
		created.relIDs = append(created.relIDs, group.RelTableIDs...)
		msg = "Table " + bs.Info.Name + " has been created."
	case *binder.BoundDropTable:
		if group, ok := tx.Catalog().GetRelGroupEntry(bs.TableID); ok {
			created.dropIDs = append(created.dropIDs, group.RelTableIDs...)
		}
		created.dropIDs = append(created.dropIDs, bs.TableID)
		tx.Catalog().DropTable(bs.TableID)
		if err := c.db.sm.WAL().LogDropTable(bs.TableID); err != nil {
			return nil, err
		}
		msg = "Table " + bs.Name + " has been dropped."
	case *binder.BoundAlter:
		if err := applyAlter(tx.Catalog(), bs); err != nil {
			return nil, err
		}
		msg = "Table has been altered."
	case *binder.BoundCreateMacro:
		if err := tx.Catalog().AddMacro(bs.Name, bs.Body); err != nil {
			return nil, err
		}
		msg = "Macro " + bs.Name + " has been created."
	case *binder.BoundCopyFrom:
		cp := copier.New(c.db.sm, tx.Catalog())
		rows, err := cp.CopyFrom(c.ctx, bs)
		if err != nil {
			return nil, err
		}
		c.db.sm.MarkCatalogDirty()
		if err := c.db.tm.Commit(tx); err != nil {
			return nil, err
		}
		return &QueryResult{
			Columns: []string{"result"},
			Rows: [][]types.Value{{
				types.NewInt64Value(int64(rows)),
			}},
		}, nil
	default:
		return nil, types.NewNotImplementedError("statement execution")
	}

	c.db.sm.MarkCatalogDirty()
	if len(created.nodeIDs)+len(created.relIDs) > 0 {
		for _, id := range append(created.nodeIDs, created.relIDs...) {
			if err := c.db.sm.WAL().LogCreateTable(id); err != nil {
				return nil, err
			}
		}
	}
	if err := c.db.tm.Commit(tx); err != nil {
		return nil, err
	}
	// Storage tables are created lazily after the catalog commit and
	// destroyed on drop.
	committed := c.db.tm.CurrentCatalog()
	for _, id := range created.nodeIDs {
		entry, _ := committed.GetNodeTableEntry(id)
		c.db.sm.CreateNodeTable(entry)
	}
	for _, id := range created.relIDs {
		entry, _ := committed.GetRelTableEntry(id)
		c.db.sm.CreateRelTable(entry)
	}
	for _, id := range created.dropIDs {
		c.db.sm.DropTable(id)
	}
	return messageResult(msg), nil
}

func applyAlter(cat *catalog.Catalog, bs *binder.BoundAlter) error {
	switch bs.Action {
	case parser.AlterRenameTable:
		return cat.RenameTable(bs.TableID, bs.NewName)
	case parser.AlterRenameProperty:
		return cat.RenameProperty(bs.TableID, bs.Property, bs.NewName)
	case parser.AlterAddProperty:
		return cat.AddProperty(bs.TableID, bs.AddedProp.Name, bs.AddedProp.Type, bs.AddedProp.DefaultValue)
	case parser.AlterDropProperty:
		return cat.DropProperty(bs.TableID, bs.Property)
	case parser.AlterComment:
		cat.SetComment(bs.TableID, bs.Comment)
		return nil
	}
	return types.NewNotImplementedError("alter action")
}

// IsBinderError reports whether an error should surface with exit code 2.
func IsBinderError(err error) bool {
	var ke *types.KuzuError
	if errors.As(err, &ke) {
		return ke.Kind == types.ErrBinder || ke.Kind == types.ErrCatalog
	}
	return false
}
