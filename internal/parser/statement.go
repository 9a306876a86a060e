// Package parser defines the parse-tree shapes the binder consumes. The
// surface parser that produces them from query text is an external
// collaborator; this package only pins the statement and expression data
// model plus small constructors used by the shell and tests.
package parser

import "github.com/untoldecay/kuzugo/internal/types"

// StatementType tags the statement union.
type StatementType uint8

const (
	StmtCreateNodeTable StatementType = iota
	StmtCreateRelTable
	StmtCreateRelGroup
	StmtDropTable
	StmtAlter
	StmtCopyFrom
	StmtStandaloneCall
	StmtQuery
	StmtCreateMacro
)

// Statement is a parsed statement prior to binding.
type Statement interface {
	StatementType() StatementType
}

// ParsedProperty is a property definition as written in DDL.
type ParsedProperty struct {
	Name string
	Type *types.LogicalType
	// Default is nil when DDL gave no DEFAULT clause.
	Default *ParsedExpression
}

type CreateNodeTable struct {
	Name       string
	Properties []ParsedProperty
	PrimaryKey string
}

func (*CreateNodeTable) StatementType() StatementType { return StmtCreateNodeTable }

type CreateRelTable struct {
	Name string
	// SrcName/DstName are node table names; multiplicity is parsed from the
	// ONE_ONE / ONE_MANY / MANY_ONE / MANY_MANY keyword.
	SrcName         string
	DstName         string
	SrcMultiplicity types.RelMultiplicity
	DstMultiplicity types.RelMultiplicity
	Properties      []ParsedProperty
}

func (*CreateRelTable) StatementType() StatementType { return StmtCreateRelTable }

type CreateRelGroup struct {
	Name            string
	SrcDstNames     [][2]string
	SrcMultiplicity types.RelMultiplicity
	DstMultiplicity types.RelMultiplicity
	Properties      []ParsedProperty
}

func (*CreateRelGroup) StatementType() StatementType { return StmtCreateRelGroup }

type DropTable struct {
	Name string
}

func (*DropTable) StatementType() StatementType { return StmtDropTable }

// AlterAction discriminates the ALTER statement family.
type AlterAction uint8

const (
	AlterRenameTable AlterAction = iota
	AlterRenameProperty
	AlterAddProperty
	AlterDropProperty
	AlterComment
)

type Alter struct {
	Action    AlterAction
	TableName string
	// NewName is the new table name (rename table) or new property name
	// (rename property).
	NewName      string
	PropertyName string
	Property     *ParsedProperty
	Comment      string
}

func (*Alter) StatementType() StatementType { return StmtAlter }

// ScanSourceType tags the file format of a COPY FROM source.
type ScanSourceType uint8

const (
	SourceCSV ScanSourceType = iota
	SourceParquet
	SourceNPY
)

// ScanSource describes the files feeding a COPY FROM. ByColumn is set when
// each file carries a single column (NPY only).
type ScanSource struct {
	Type      ScanSourceType
	FilePaths []string
	ByColumn  bool
}

// CopyFrom is COPY <table> FROM <source> (options) with an optional
// explicit column list.
type CopyFrom struct {
	TableName   string
	Source      *ScanSource
	ColumnNames []string
	// Options carries HEADER, DELIM, QUOTE, ESCAPE, FROM, TO.
	Options map[string]types.Value
}

func (*CopyFrom) StatementType() StatementType { return StmtCopyFrom }

// StandaloneCall is CALL fn(args...) outside a query.
type StandaloneCall struct {
	FuncName string
	Args     []types.Value
	// OptionalParams carries the trailing {key: value} config block.
	OptionalParams map[string]types.Value
}

func (*StandaloneCall) StatementType() StatementType { return StmtStandaloneCall }

type CreateMacro struct {
	Name string
	Body string
}

func (*CreateMacro) StatementType() StatementType { return StmtCreateMacro }
