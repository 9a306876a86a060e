// Package kuzugo provides a minimal public API for embedding the graph
// database engine.
//
// This package exports only the essential types and functions needed to
// open a database, run statements, and read results programmatically. The
// engine itself lives under internal/.
package kuzugo

import (
	"github.com/untoldecay/kuzugo/internal/config"
	"github.com/untoldecay/kuzugo/internal/database"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Database is an open database directory. It owns the storage,
// transaction, and buffer managers.
type Database = database.Database

// Connection executes statements against a database. Open one per
// goroutine.
type Connection = database.Connection

// QueryResult is the tabular output of one statement.
type QueryResult = database.QueryResult

// OpenDatabase locks and opens a database directory, running crash
// recovery if the previous process died mid-commit. An empty path falls
// back to KUZU_DB_PATH.
func OpenDatabase(path string) (*Database, error) {
	return database.Open(path)
}

// NewConnection opens a connection on a database.
func NewConnection(db *Database) *Connection {
	return database.NewConnection(db)
}

// InitConfig loads configuration from the environment and config.yaml.
// Call once at startup; OpenDatabase calls it implicitly when needed.
func InitConfig() error {
	return config.Initialize()
}

// Core value and schema types.
type (
	Value           = types.Value
	LogicalType     = types.LogicalType
	LogicalTypeID   = types.LogicalTypeID
	TableID         = types.TableID
	PropertyID      = types.PropertyID
	InternalID      = types.InternalID
	RelMultiplicity = types.RelMultiplicity
	KuzuError       = types.KuzuError
	ErrorKind       = types.ErrorKind
)

// Statement shapes consumed by Connection.Execute. The surface parser is
// an external collaborator; embedders construct these directly.
type (
	Statement       = parser.Statement
	CreateNodeTable = parser.CreateNodeTable
	CreateRelTable  = parser.CreateRelTable
	CreateRelGroup  = parser.CreateRelGroup
	DropTable       = parser.DropTable
	Alter           = parser.Alter
	CopyFrom        = parser.CopyFrom
	StandaloneCall  = parser.StandaloneCall
	Query           = parser.Query
	ScanSource      = parser.ScanSource
	ParsedProperty  = parser.ParsedProperty

	ParsedExpression = parser.ParsedExpression
	PatternElement   = parser.PatternElement
	NodePattern      = parser.NodePattern
	RelPattern       = parser.RelPattern
)

// Expression constructors for hand-built queries.
var (
	NewLiteralExpr  = parser.NewLiteralExpr
	NewVariableExpr = parser.NewVariableExpr
	NewPropertyExpr = parser.NewPropertyExpr
	NewFunctionExpr = parser.NewFunctionExpr
)

// Logical type constructors.
var (
	NewType          = types.NewType
	NewVarListType   = types.NewVarListType
	NewFixedListType = types.NewFixedListType
	NewStructType    = types.NewStructType
)

// Value constructors.
var (
	NewNullValue   = types.NewNullValue
	NewBoolValue   = types.NewBoolValue
	NewInt64Value  = types.NewInt64Value
	NewDoubleValue = types.NewDoubleValue
	NewStringValue = types.NewStringValue
)

// Logical type ids.
const (
	TypeBool      = types.TypeBool
	TypeInt64     = types.TypeInt64
	TypeInt32     = types.TypeInt32
	TypeInt16     = types.TypeInt16
	TypeDouble    = types.TypeDouble
	TypeFloat     = types.TypeFloat
	TypeDate      = types.TypeDate
	TypeTimestamp = types.TypeTimestamp
	TypeInterval  = types.TypeInterval
	TypeString    = types.TypeString
	TypeSerial    = types.TypeSerial
)

// Rel multiplicities.
const (
	MultiplicityOne  = types.MultiplicityOne
	MultiplicityMany = types.MultiplicityMany
)

// Error kinds.
const (
	ErrBinder         = types.ErrBinder
	ErrCatalog        = types.ErrCatalog
	ErrCopy           = types.ErrCopy
	ErrRuntime        = types.ErrRuntime
	ErrInterrupt      = types.ErrInterrupt
	ErrNotImplemented = types.ErrNotImplemented
)
