package kuzugo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFacadeOpenAndExecute(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenDatabase(filepath.Join(dir, "db"))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer db.Close()
	conn := NewConnection(db)

	if _, err := conn.Execute(&CreateNodeTable{
		Name: "Person",
		Properties: []ParsedProperty{
			{Name: "id", Type: NewType(TypeInt64)},
			{Name: "name", Type: NewType(TypeString)},
		},
		PrimaryKey: "id",
	}); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	csvPath := filepath.Join(dir, "people.csv")
	if err := os.WriteFile(csvPath, []byte("id,name\n1,alice\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := conn.Execute(&CopyFrom{
		TableName: "Person",
		Source:    &ScanSource{FilePaths: []string{csvPath}},
		Options:   map[string]Value{"HEADER": NewBoolValue(true)},
	})
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0].Int64Val != 1 {
		t.Errorf("copy result = %v, want 1 row loaded", res.Rows)
	}

	scan, err := conn.Execute(&Query{
		Match: []*PatternElement{{
			Nodes: []*NodePattern{{Variable: "p", TableNames: []string{"Person"}}},
		}},
		Return: []*ParsedExpression{NewPropertyExpr("p", "name")},
	})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(scan.Rows) != 1 || scan.Rows[0][0].StringVal != "alice" {
		t.Errorf("scan = %v", scan.Rows)
	}
}
