package binder

import (
	"strings"
	"testing"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

func setupCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New()
	if _, err := cat.CreateNodeTable(catalog.NodeTableInfo{
		Name: "A",
		Properties: []catalog.PropertyInfo{
			{Name: "id", Type: types.NewType(types.TypeInt64), DefaultValue: types.NewNullValue(types.NewType(types.TypeInt64))},
			{Name: "name", Type: types.NewType(types.TypeString), DefaultValue: types.NewNullValue(types.NewType(types.TypeString))},
			{Name: "age", Type: types.NewType(types.TypeInt64), DefaultValue: types.NewInt64Value(0)},
		},
		PrimaryKeyName: "id",
	}); err != nil {
		t.Fatalf("create A failed: %v", err)
	}
	if _, err := cat.CreateNodeTable(catalog.NodeTableInfo{
		Name: "B",
		Properties: []catalog.PropertyInfo{
			{Name: "id", Type: types.NewType(types.TypeString), DefaultValue: types.NewNullValue(types.NewType(types.TypeString))},
		},
		PrimaryKeyName: "id",
	}); err != nil {
		t.Fatalf("create B failed: %v", err)
	}
	aID, _ := cat.GetTableID("A")
	bID, _ := cat.GetTableID("B")
	if _, err := cat.CreateRelTable(catalog.RelTableInfo{
		Name: "R", SrcTableID: aID, DstTableID: bID,
		SrcMultiplicity: types.MultiplicityMany, DstMultiplicity: types.MultiplicityMany,
		Properties: []catalog.PropertyInfo{
			{Name: "since", Type: types.NewType(types.TypeInt64), DefaultValue: types.NewNullValue(types.NewType(types.TypeInt64))},
		},
	}); err != nil {
		t.Fatalf("create R failed: %v", err)
	}
	if _, err := cat.CreateRelGroup(catalog.RelGroupInfo{
		Name:        "G",
		SrcDstPairs: [][2]types.TableID{{aID, bID}, {aID, aID}},
	}); err != nil {
		t.Fatalf("create G failed: %v", err)
	}
	return cat
}

func copyStmt(table string, options map[string]types.Value) *parser.CopyFrom {
	if options == nil {
		options = map[string]types.Value{}
	}
	return &parser.CopyFrom{
		TableName: table,
		Source:    &parser.ScanSource{Type: parser.SourceCSV, FilePaths: []string{"in.csv"}},
		Options:   options,
	}
}

func TestBindCopyNodeExpectedColumns(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	bound, err := b.Bind(copyStmt("A", nil))
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	info := bound.(*BoundCopyFrom).Info
	if info.IsRelCopy() {
		t.Fatal("node copy flagged as rel copy")
	}
	wantNames := []string{"id", "name", "age"}
	if len(info.ExpectedColumnNames) != len(wantNames) {
		t.Fatalf("expected columns = %v", info.ExpectedColumnNames)
	}
	for i, w := range wantNames {
		if info.ExpectedColumnNames[i] != w {
			t.Errorf("column %d = %s, want %s", i, info.ExpectedColumnNames[i], w)
		}
	}
	// One bound column per materialized property, all plain references
	// when the source matches exactly.
	if len(info.Columns) != 3 {
		t.Fatalf("columns = %d, want 3", len(info.Columns))
	}
	for i, et := range info.EvaluateTypes {
		if et != EvaluateReference {
			t.Errorf("evaluate type %d = %v, want reference", i, et)
		}
	}
}

func TestBindCopyRelPrependsFromTo(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	bound, err := b.Bind(copyStmt("R", nil))
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	info := bound.(*BoundCopyFrom).Info
	if !info.IsRelCopy() {
		t.Fatal("rel copy not flagged")
	}
	if info.ExpectedColumnNames[0] != "from" || info.ExpectedColumnNames[1] != "to" {
		t.Fatalf("expected columns = %v", info.ExpectedColumnNames)
	}
	// from is typed by A's INT64 key, to by B's STRING key.
	if info.ExpectedColumnTypes[0].ID != types.TypeInt64 {
		t.Errorf("from type = %s, want INT64", info.ExpectedColumnTypes[0])
	}
	if info.ExpectedColumnTypes[1].ID != types.TypeString {
		t.Errorf("to type = %s, want STRING", info.ExpectedColumnTypes[1])
	}
	// The synthetic _id never scans; since does.
	if info.ExpectedColumnNames[2] != "since" {
		t.Errorf("third column = %s, want since", info.ExpectedColumnNames[2])
	}
	// Injected internal columns come first.
	extra := info.Extra
	if extra.InternalIDColumnIndices != [3]int{0, 1, 2} {
		t.Errorf("internal id indices = %v", extra.InternalIDColumnIndices)
	}
	aID, _ := cat.GetTableID("A")
	bID, _ := cat.GetTableID("B")
	if extra.LookupInfos[0].TableID != aID || extra.LookupInfos[1].TableID != bID {
		t.Errorf("lookup table ids = %d,%d", extra.LookupInfos[0].TableID, extra.LookupInfos[1].TableID)
	}
	if info.Columns[0].DataType().ID != types.TypeInt64 {
		t.Error("src offset variable must be INT64")
	}
}

func TestBindCopyRelGroupNeedsFromTo(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	_, err := b.Bind(copyStmt("G", nil))
	if err == nil {
		t.Fatal("expected FROM/TO requirement error")
	}
	if !strings.Contains(err.Error(), "multiple FROM and TO pairs") {
		t.Errorf("unexpected message: %v", err)
	}

	bound, err := b.Bind(copyStmt("G", map[string]types.Value{
		"FROM": types.NewStringValue("A"),
		"TO":   types.NewStringValue("B"),
	}))
	if err != nil {
		t.Fatalf("bind with FROM/TO failed: %v", err)
	}
	info := bound.(*BoundCopyFrom).Info
	entry := info.TableEntry.(*catalog.RelTableEntry)
	if entry.Name != "G_A_B" {
		t.Errorf("resolved child = %s, want G_A_B", entry.Name)
	}
}

func TestBindCopyRelGroupUnknownPair(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	_, err := b.Bind(copyStmt("G", map[string]types.Value{
		"FROM": types.NewStringValue("B"),
		"TO":   types.NewStringValue("B"),
	}))
	if err == nil {
		t.Fatal("expected missing child error")
	}
	if err.Error() != "Binder exception: REL GROUP G does not exist." {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestBindCopySingleChildGroup(t *testing.T) {
	cat := setupCatalog(t)
	aID, _ := cat.GetTableID("A")
	if _, err := cat.CreateRelGroup(catalog.RelGroupInfo{
		Name:        "Solo",
		SrcDstPairs: [][2]types.TableID{{aID, aID}},
	}); err != nil {
		t.Fatalf("create group failed: %v", err)
	}
	b := New(cat)
	bound, err := b.Bind(copyStmt("Solo", nil))
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	entry := bound.(*BoundCopyFrom).Info.TableEntry.(*catalog.RelTableEntry)
	if entry.Name != "Solo_A_A" {
		t.Errorf("resolved child = %s", entry.Name)
	}
}

func TestBindCopyUnknownTable(t *testing.T) {
	b := New(setupCatalog(t))
	_, err := b.Bind(copyStmt("Missing", nil))
	if err == nil || err.Error() != "Binder exception: Table Missing does not exist." {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBindCopyByColumnRestrictions(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	stmt := copyStmt("A", nil)
	stmt.Source.ByColumn = true
	if _, err := b.Bind(stmt); err == nil {
		t.Error("by-column CSV into a node table should fail")
	}
	stmt.Source.Type = parser.SourceNPY
	if _, err := b.Bind(stmt); err != nil {
		t.Errorf("by-column NPY into a node table should bind: %v", err)
	}
	relStmt := copyStmt("R", nil)
	relStmt.Source.Type = parser.SourceNPY
	relStmt.Source.ByColumn = true
	if _, err := b.Bind(relStmt); err == nil {
		t.Error("by-column into a rel table should always fail")
	}
}

func TestBindCopyDuplicateUserColumn(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	stmt := copyStmt("A", nil)
	stmt.ColumnNames = []string{"id", "id"}
	if _, err := b.Bind(stmt); err == nil {
		t.Error("duplicate user column should fail")
	}
	stmt.ColumnNames = []string{"id", "missing"}
	if _, err := b.Bind(stmt); err == nil {
		t.Error("unknown user column should fail")
	}
}

func TestBindCopyCastAndDefault(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	// The source exposes id as STRING (castable) and omits age entirely.
	b.SetSchemaSniffer(func(_ *parser.ScanSource, _ CopyOptions,
		names []string, colTypes []*types.LogicalType) ([]ScanColumn, error) {
		return []ScanColumn{
			{Name: "id", Type: types.NewType(types.TypeString)},
			{Name: "name", Type: types.NewType(types.TypeString)},
		}, nil
	})
	bound, err := b.Bind(copyStmt("A", nil))
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	info := bound.(*BoundCopyFrom).Info
	want := []ColumnEvaluateType{EvaluateCast, EvaluateReference, EvaluateDefault}
	for i, w := range want {
		if info.EvaluateTypes[i] != w {
			t.Errorf("evaluate type %d = %v, want %v", i, info.EvaluateTypes[i], w)
		}
	}
	// The default column is age's literal 0.
	lit, ok := info.Columns[2].(*expression.Literal)
	if !ok || !lit.Value.Equals(types.NewInt64Value(0)) {
		t.Errorf("default column = %v, want literal 0", info.Columns[2])
	}
}

func TestBindDropReferencedNodeTable(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	_, err := b.Bind(&parser.DropTable{Name: "A"})
	if err == nil {
		t.Fatal("dropping a referenced node table must fail")
	}
	if !strings.Contains(err.Error(), "referenced by relationship table") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestBindInvalidPKType(t *testing.T) {
	b := New(catalog.New())
	_, err := b.Bind(&parser.CreateNodeTable{
		Name: "T",
		Properties: []parser.ParsedProperty{
			{Name: "id", Type: types.NewType(types.TypeDouble)},
		},
		PrimaryKey: "id",
	})
	if err == nil {
		t.Fatal("DOUBLE primary key must fail")
	}
	if !strings.Contains(err.Error(), "Primary key must be INT64, STRING or SERIAL") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestBindSubqueryRewrite(t *testing.T) {
	cat := setupCatalog(t)
	b := New(cat)
	q := &parser.Query{
		Match: []*parser.PatternElement{{
			Nodes: []*parser.NodePattern{{Variable: "p", TableNames: []string{"A"}}},
		}},
		Where: &parser.ParsedExpression{
			Type:         parser.ParsedSubquery,
			SubqueryType: parser.SubqueryExists,
			Pattern: []*parser.PatternElement{{
				Nodes: []*parser.NodePattern{
					{Variable: "p"},
					{},
				},
				Rels: []*parser.RelPattern{{TableNames: []string{"R"}}},
			}},
		},
		Return: []*parser.ParsedExpression{parser.NewPropertyExpr("p", "id")},
	}
	bound, err := b.Bind(q)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	bq := bound.(*BoundQuery)
	sub, ok := bq.Where.(*expression.Subquery)
	if !ok {
		t.Fatalf("where = %T, want subquery", bq.Where)
	}
	if sub.SubqueryType != expression.SubqueryExists {
		t.Error("subquery type lost")
	}
	if sub.DataType().ID != types.TypeBool {
		t.Errorf("EXISTS type = %s, want BOOL", sub.DataType())
	}
	// The synthetic count(*) shares the subquery's unique name so the
	// evaluator can substitute one for the other.
	if sub.CountExpr.UniqueName() != sub.UniqueName() {
		t.Errorf("count name %q != subquery name %q",
			sub.CountExpr.UniqueName(), sub.UniqueName())
	}
	if sub.Projection == nil || sub.Projection.DataType().ID != types.TypeBool {
		t.Error("EXISTS projection must be count(*) > 0")
	}
}

func TestBindCaseExpression(t *testing.T) {
	b := New(catalog.New())
	parsed := &parser.ParsedExpression{
		Type: parser.ParsedCase,
		CaseWhens: []*parser.ParsedExpression{
			parser.NewLiteralExpr(types.NewBoolValue(false)),
		},
		CaseThens: []*parser.ParsedExpression{
			parser.NewLiteralExpr(types.NewStringValue("x")),
		},
	}
	bound, err := b.BindExpression(parsed)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	c, ok := bound.(*expression.Case)
	if !ok {
		t.Fatalf("bound = %T", bound)
	}
	// A missing ELSE binds to NULL of the result type.
	elseLit, ok := c.Else.(*expression.Literal)
	if !ok || !elseLit.Value.IsNull {
		t.Error("missing ELSE should bind to a NULL literal")
	}
}
