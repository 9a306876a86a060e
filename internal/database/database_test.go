package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/untoldecay/kuzugo/internal/hnsw"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

func setupDB(t *testing.T) (*Database, *Connection, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, NewConnection(db), dir
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}
	return path
}

func mustExec(t *testing.T, conn *Connection, stmt parser.Statement) *QueryResult {
	t.Helper()
	res, err := conn.Execute(stmt)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	return res
}

func createNodeStmt(name string, pkType types.LogicalTypeID) *parser.CreateNodeTable {
	return &parser.CreateNodeTable{
		Name: name,
		Properties: []parser.ParsedProperty{
			{Name: "id", Type: types.NewType(pkType)},
			{Name: "name", Type: types.NewType(types.TypeString)},
		},
		PrimaryKey: "id",
	}
}

func copyStmt(table, path string, header bool) *parser.CopyFrom {
	return &parser.CopyFrom{
		TableName: table,
		Source:    &parser.ScanSource{Type: parser.SourceCSV, FilePaths: []string{path}},
		Options:   map[string]types.Value{"HEADER": types.NewBoolValue(header)},
	}
}

// End-to-end node copy: CREATE, COPY, then scan back ordered ids.
func TestCopyAndScan(t *testing.T) {
	_, conn, dir := setupDB(t)
	mustExec(t, conn, createNodeStmt("T", types.TypeInt64))
	path := writeCSV(t, dir, "in.csv", "id,name\n3,c\n1,a\n2,b\n")
	mustExec(t, conn, copyStmt("T", path, true))

	res := mustExec(t, conn, &parser.Query{
		Match: []*parser.PatternElement{{
			Nodes: []*parser.NodePattern{{Variable: "t", TableNames: []string{"T"}}},
		}},
		Return:  []*parser.ParsedExpression{parser.NewPropertyExpr("t", "id")},
		OrderBy: []*parser.ParsedExpression{parser.NewPropertyExpr("t", "id")},
	})
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(res.Rows))
	}
	for i, want := range []int64{1, 2, 3} {
		if got := res.Rows[i][0].Int64Val; got != want {
			t.Errorf("row %d = %d, want %d", i, got, want)
		}
	}
}

// RETURN CASE WHEN 1<0 THEN 'x' WHEN 2<5 THEN 'y' ELSE 'z' END → 'y'.
func TestReturnCaseExpression(t *testing.T) {
	_, conn, _ := setupDB(t)
	lt := func(a, b int64) *parser.ParsedExpression {
		return parser.NewFunctionExpr("<",
			parser.NewLiteralExpr(types.NewInt64Value(a)),
			parser.NewLiteralExpr(types.NewInt64Value(b)))
	}
	caseExpr := &parser.ParsedExpression{
		Type:      parser.ParsedCase,
		CaseWhens: []*parser.ParsedExpression{lt(1, 0), lt(2, 5)},
		CaseThens: []*parser.ParsedExpression{
			parser.NewLiteralExpr(types.NewStringValue("x")),
			parser.NewLiteralExpr(types.NewStringValue("y")),
		},
		CaseElse: parser.NewLiteralExpr(types.NewStringValue("z")),
	}
	res := mustExec(t, conn, &parser.Query{Return: []*parser.ParsedExpression{caseExpr}})
	if len(res.Rows) != 1 || res.Rows[0][0].StringVal != "y" {
		t.Fatalf("rows = %v, want one row 'y'", res.Rows)
	}
}

// MATCH (p:P) WHERE EXISTS { MATCH (p)-[:K]->() } RETURN p.id → only 1.
func TestExistsSubquery(t *testing.T) {
	_, conn, dir := setupDB(t)
	mustExec(t, conn, createNodeStmt("P", types.TypeInt64))
	mustExec(t, conn, &parser.CreateRelTable{
		Name: "K", SrcName: "P", DstName: "P",
		SrcMultiplicity: types.MultiplicityMany, DstMultiplicity: types.MultiplicityMany,
	})
	mustExec(t, conn, copyStmt("P", writeCSV(t, dir, "p.csv", "1,a\n2,b\n3,c\n"), false))
	mustExec(t, conn, copyStmt("K", writeCSV(t, dir, "k.csv", "1,2\n1,3\n"), false))

	res := mustExec(t, conn, &parser.Query{
		Match: []*parser.PatternElement{{
			Nodes: []*parser.NodePattern{{Variable: "p", TableNames: []string{"P"}}},
		}},
		Where: &parser.ParsedExpression{
			Type:         parser.ParsedSubquery,
			SubqueryType: parser.SubqueryExists,
			Pattern: []*parser.PatternElement{{
				Nodes: []*parser.NodePattern{{Variable: "p"}, {}},
				Rels:  []*parser.RelPattern{{TableNames: []string{"K"}}},
			}},
		},
		Return:  []*parser.ParsedExpression{parser.NewPropertyExpr("p", "id")},
		OrderBy: []*parser.ParsedExpression{parser.NewPropertyExpr("p", "id")},
	})
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	if res.Rows[0][0].Int64Val != 1 {
		t.Errorf("id = %d, want 1", res.Rows[0][0].Int64Val)
	}
}

// Duplicate PK aborts the transaction: the table stays empty and the
// database remains writable.
func TestCopyAbortsTransaction(t *testing.T) {
	_, conn, dir := setupDB(t)
	mustExec(t, conn, createNodeStmt("T", types.TypeInt64))
	path := writeCSV(t, dir, "dup.csv", "1,a\n1,b\n")
	_, err := conn.Execute(copyStmt("T", path, false))
	if err == nil {
		t.Fatal("expected duplicate PK error")
	}
	if types.KindOf(err) != types.ErrCopy {
		t.Errorf("kind = %v, want copy", types.KindOf(err))
	}

	res := mustExec(t, conn, &parser.Query{
		Match: []*parser.PatternElement{{
			Nodes: []*parser.NodePattern{{Variable: "t", TableNames: []string{"T"}}},
		}},
		Return: []*parser.ParsedExpression{parser.NewPropertyExpr("t", "id")},
	})
	if len(res.Rows) != 0 {
		t.Errorf("rows after aborted copy = %d, want 0", len(res.Rows))
	}
}

// Data survives close and reopen, including the primary key index.
func TestPersistenceAcrossReopen(t *testing.T) {
	db, conn, dir := setupDB(t)
	mustExec(t, conn, createNodeStmt("T", types.TypeInt64))
	mustExec(t, conn, copyStmt("T", writeCSV(t, dir, "in.csv", "1,a\n2,b\n"), false))
	dbPath := db.Path()
	if err := db.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db2.Close()
	conn2 := NewConnection(db2)
	res := mustExec(t, conn2, &parser.Query{
		Match: []*parser.PatternElement{{
			Nodes: []*parser.NodePattern{{Variable: "t", TableNames: []string{"T"}}},
		}},
		Return:  []*parser.ParsedExpression{parser.NewPropertyExpr("t", "name")},
		OrderBy: []*parser.ParsedExpression{parser.NewPropertyExpr("t", "id")},
	})
	if len(res.Rows) != 2 || res.Rows[0][0].StringVal != "a" {
		t.Fatalf("rows = %v", res.Rows)
	}
}

func TestDirectoryLock(t *testing.T) {
	db, _, _ := setupDB(t)
	if _, err := Open(db.Path()); err == nil {
		t.Fatal("second open of a locked database should fail")
	}
}

// HNSW round trip: create leaves the index entry plus the two auxiliary
// rel tables; drop removes all three and leaves the node table intact.
func TestHNSWCreateAndDrop(t *testing.T) {
	_, conn, dir := setupDB(t)
	mustExec(t, conn, &parser.CreateNodeTable{
		Name: "V",
		Properties: []parser.ParsedProperty{
			{Name: "id", Type: types.NewType(types.TypeInt64)},
			{Name: "vec", Type: types.NewFixedListType(types.NewType(types.TypeFloat), 2)},
		},
		PrimaryKey: "id",
	})
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "%d,\"[%d.0,0.0]\"\n", i, i)
	}
	csv := sb.String()
	mustExec(t, conn, copyStmt("V", writeCSV(t, dir, "v.csv", csv), false))

	res := mustExec(t, conn, &parser.StandaloneCall{
		FuncName: "CREATE_HNSW_INDEX",
		Args: []types.Value{
			types.NewStringValue("vidx"), types.NewStringValue("V"), types.NewStringValue("vec"),
		},
		OptionalParams: map[string]types.Value{"distfunc": types.NewStringValue("l2")},
	})
	if len(res.Rows) != 1 || !strings.Contains(res.Rows[0][0].StringVal, "has been created") {
		t.Fatalf("create result = %v", res.Rows)
	}

	cat := conn.db.tm.CurrentCatalog()
	vID, _ := cat.GetTableID("V")
	if !cat.ContainsIndex(vID, "vidx") {
		t.Fatal("index entry missing after create")
	}
	if !cat.ContainsTable(hnsw.UpperRelTableName("vidx")) || !cat.ContainsTable(hnsw.LowerRelTableName("vidx")) {
		t.Fatal("auxiliary rel tables missing after create")
	}

	// Query the index: the nearest neighbor of [10.1, 0] is offset 10.
	qres := mustExec(t, conn, &parser.StandaloneCall{
		FuncName: "QUERY_HNSW_INDEX",
		Args: []types.Value{
			types.NewStringValue("vidx"), types.NewStringValue("V"),
			types.NewListValue(types.NewType(types.TypeDouble), []types.Value{
				types.NewDoubleValue(10.1), types.NewDoubleValue(0),
			}),
			types.NewInt64Value(1),
		},
		OptionalParams: map[string]types.Value{"efs": types.NewInt64Value(16)},
	})
	if len(qres.Rows) != 1 || qres.Rows[0][0].Int64Val != 10 {
		t.Fatalf("nearest = %v, want offset 10", qres.Rows)
	}

	mustExec(t, conn, &parser.StandaloneCall{
		FuncName: "DROP_HNSW_INDEX",
		Args: []types.Value{
			types.NewStringValue("vidx"), types.NewStringValue("V"),
		},
	})
	cat = conn.db.tm.CurrentCatalog()
	if cat.ContainsIndex(vID, "vidx") {
		t.Error("index entry survived drop")
	}
	if cat.ContainsTable(hnsw.UpperRelTableName("vidx")) || cat.ContainsTable(hnsw.LowerRelTableName("vidx")) {
		t.Error("auxiliary rel tables survived drop")
	}
	// The node table itself is unchanged.
	table, ok := conn.db.sm.GetNodeTable(vID)
	if !ok || table.NumRows() != 50 {
		t.Errorf("node table changed by index drop")
	}
}

func TestShowConnection(t *testing.T) {
	_, conn, _ := setupDB(t)
	mustExec(t, conn, createNodeStmt("A", types.TypeInt64))
	mustExec(t, conn, createNodeStmt("B", types.TypeString))
	mustExec(t, conn, &parser.CreateRelTable{
		Name: "R", SrcName: "A", DstName: "B",
		SrcMultiplicity: types.MultiplicityMany, DstMultiplicity: types.MultiplicityMany,
	})
	res := mustExec(t, conn, &parser.StandaloneCall{
		FuncName: "SHOW_CONNECTION",
		Args:     []types.Value{types.NewStringValue("R")},
	})
	if len(res.Columns) != 4 {
		t.Fatalf("columns = %v, want 4", res.Columns)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(res.Rows))
	}
	row := res.Rows[0]
	if row[0].StringVal != "A" || row[1].StringVal != "B" ||
		row[2].StringVal != "id" || row[3].StringVal != "id" {
		t.Errorf("row = %v", row)
	}
}

func TestBinderErrorClassification(t *testing.T) {
	_, conn, _ := setupDB(t)
	_, err := conn.Execute(&parser.DropTable{Name: "Missing"})
	if err == nil {
		t.Fatal("expected binder error")
	}
	if !IsBinderError(err) {
		t.Error("unknown table should classify as a binder error")
	}
}
