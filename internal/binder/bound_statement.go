// Package binder turns parse-tree statements into fully resolved bound
// statements: name resolution against the catalog, type inference and
// implicit casts, graph-pattern normalization, and injection of internal
// columns. The binder has read-only access to the catalog; DDL effects are
// applied only at commit time by the caller.
package binder

import (
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

// BoundStatementType tags the bound statement union.
type BoundStatementType uint8

const (
	BoundStmtCreateNodeTable BoundStatementType = iota
	BoundStmtCreateRelTable
	BoundStmtCreateRelGroup
	BoundStmtDropTable
	BoundStmtAlter
	BoundStmtCopyFrom
	BoundStmtStandaloneCall
	BoundStmtQuery
	BoundStmtCreateMacro
)

type BoundStatement interface {
	BoundType() BoundStatementType
}

type BoundCreateNodeTable struct {
	Info catalog.NodeTableInfo
}

func (*BoundCreateNodeTable) BoundType() BoundStatementType { return BoundStmtCreateNodeTable }

type BoundCreateRelTable struct {
	Info catalog.RelTableInfo
}

func (*BoundCreateRelTable) BoundType() BoundStatementType { return BoundStmtCreateRelTable }

type BoundCreateRelGroup struct {
	Info catalog.RelGroupInfo
}

func (*BoundCreateRelGroup) BoundType() BoundStatementType { return BoundStmtCreateRelGroup }

type BoundDropTable struct {
	TableID types.TableID
	Name    string
}

func (*BoundDropTable) BoundType() BoundStatementType { return BoundStmtDropTable }

type BoundAlter struct {
	Action    parser.AlterAction
	TableID   types.TableID
	NewName   string
	Property  string
	AddedProp *catalog.PropertyInfo
	Comment   string
}

func (*BoundAlter) BoundType() BoundStatementType { return BoundStmtAlter }

type BoundCreateMacro struct {
	Name string
	Body string
}

func (*BoundCreateMacro) BoundType() BoundStatementType { return BoundStmtCreateMacro }

// ColumnEvaluateType says how a target column of a COPY is produced from
// the scan source.
type ColumnEvaluateType uint8

const (
	// EvaluateReference reads the source column as-is.
	EvaluateReference ColumnEvaluateType = iota
	// EvaluateCast wraps the source column in an implicit cast.
	EvaluateCast
	// EvaluateDefault evaluates the property's default expression.
	EvaluateDefault
)

// IndexLookupInfo resolves a rel-copy endpoint key column against a node
// table's primary-key index.
type IndexLookupInfo struct {
	TableID types.TableID
	// OffsetExpr is the injected internal variable receiving the looked-up
	// internal offset.
	OffsetExpr expression.Expression
	// KeyExpr is the source column holding the endpoint key.
	KeyExpr expression.Expression
	// WarningColumns feed error reporting (file/line context columns).
	WarningColumns []expression.Expression
}

// ExtraCopyRelInfo is attached to rel copies only.
type ExtraCopyRelInfo struct {
	// InternalIDColumnIndices locates the rel's src-offset, dst-offset,
	// and row-offset columns inside Columns.
	InternalIDColumnIndices [3]int
	LookupInfos             [2]IndexLookupInfo
}

// BoundCopyFromInfo carries everything the copy engine needs.
type BoundCopyFromInfo struct {
	// TableEntry is *catalog.NodeTableEntry or *catalog.RelTableEntry.
	TableEntry    any
	Source        *parser.ScanSource
	RowOffsetExpr expression.Expression
	// Columns pairs with EvaluateTypes: one expression per target column.
	Columns       []expression.Expression
	EvaluateTypes []ColumnEvaluateType
	// ExpectedColumnNames/Types feed the scan source; SourceColumns is
	// what the reader actually exposes.
	ExpectedColumnNames []string
	ExpectedColumnTypes []*types.LogicalType
	SourceColumns       []ScanColumn
	Options             CopyOptions
	Extra               *ExtraCopyRelInfo
}

// IsRelCopy reports whether the target is a relationship table.
func (i *BoundCopyFromInfo) IsRelCopy() bool { return i.Extra != nil }

type BoundCopyFrom struct {
	Info BoundCopyFromInfo
}

func (*BoundCopyFrom) BoundType() BoundStatementType { return BoundStmtCopyFrom }

// CopyOptions is the validated option set of a COPY statement.
type CopyOptions struct {
	Header bool
	Delim  rune
	Quote  rune
	Escape rune
	From   string
	To     string
}

// BoundStandaloneCall is a bound CALL fn(...) statement.
type BoundStandaloneCall struct {
	FuncName       string
	Args           []types.Value
	OptionalParams map[string]types.Value
}

func (*BoundStandaloneCall) BoundType() BoundStatementType { return BoundStmtStandaloneCall }

// BoundQuery is a bound single-part read query.
type BoundQuery struct {
	Graphs     []*expression.QueryGraph
	Where      expression.Expression
	Projection []expression.Expression
	OrderBy    []expression.Expression
	Ascending  []bool
	SkipNum    int64
	LimitNum   int64
	HasLimit   bool
}

func (*BoundQuery) BoundType() BoundStatementType { return BoundStmtQuery }
