package catalog

import (
	"bytes"
	"testing"

	"github.com/untoldecay/kuzugo/internal/types"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	return New()
}

func mustCreateNodeTable(t *testing.T, c *Catalog, name string) types.TableID {
	t.Helper()
	id, err := c.CreateNodeTable(NodeTableInfo{
		Name: name,
		Properties: []PropertyInfo{
			{Name: "id", Type: types.NewType(types.TypeInt64), DefaultValue: types.NewNullValue(types.NewType(types.TypeInt64))},
			{Name: "name", Type: types.NewType(types.TypeString), DefaultValue: types.NewNullValue(types.NewType(types.TypeString))},
		},
		PrimaryKeyName: "id",
	})
	if err != nil {
		t.Fatalf("CreateNodeTable failed: %v", err)
	}
	return id
}

func TestCreateNodeTable(t *testing.T) {
	c := newTestCatalog(t)
	id := mustCreateNodeTable(t, c, "Person")

	entry, ok := c.GetNodeTableEntry(id)
	if !ok {
		t.Fatal("entry not found by id")
	}
	if entry.Name != "Person" {
		t.Errorf("name = %q, want Person", entry.Name)
	}
	if pk := entry.PrimaryKey(); pk == nil || pk.Name != "id" {
		t.Errorf("primary key = %v, want id", pk)
	}
	if got, _ := c.GetTableID("Person"); got != id {
		t.Errorf("GetTableID = %d, want %d", got, id)
	}
	// Column ids are dense; both properties are materialized.
	if entry.Properties[0].ColumnID != 0 || entry.Properties[1].ColumnID != 1 {
		t.Errorf("column ids = %d,%d, want 0,1",
			entry.Properties[0].ColumnID, entry.Properties[1].ColumnID)
	}
}

func TestDuplicateTableName(t *testing.T) {
	c := newTestCatalog(t)
	mustCreateNodeTable(t, c, "Person")
	_, err := c.CreateNodeTable(NodeTableInfo{Name: "Person", PrimaryKeyName: "id"})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
	if err.Error() != "Catalog exception: Table Person already exists." {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSerialSkipsColumnID(t *testing.T) {
	c := newTestCatalog(t)
	id, err := c.CreateNodeTable(NodeTableInfo{
		Name: "T",
		Properties: []PropertyInfo{
			{Name: "id", Type: types.NewType(types.TypeSerial), DefaultValue: types.NewNullValue(types.NewType(types.TypeSerial))},
			{Name: "name", Type: types.NewType(types.TypeString), DefaultValue: types.NewNullValue(types.NewType(types.TypeString))},
		},
		PrimaryKeyName: "id",
	})
	if err != nil {
		t.Fatalf("CreateNodeTable failed: %v", err)
	}
	entry, _ := c.GetNodeTableEntry(id)
	// SERIAL is not materialized, so name gets column 0.
	if entry.Properties[1].ColumnID != 0 {
		t.Errorf("name column id = %d, want 0", entry.Properties[1].ColumnID)
	}
}

func TestRelTableRegistersAdjacency(t *testing.T) {
	c := newTestCatalog(t)
	a := mustCreateNodeTable(t, c, "A")
	b := mustCreateNodeTable(t, c, "B")
	relID, err := c.CreateRelTable(RelTableInfo{
		Name: "R", SrcTableID: a, DstTableID: b,
		SrcMultiplicity: types.MultiplicityMany,
		DstMultiplicity: types.MultiplicityMany,
	})
	if err != nil {
		t.Fatalf("CreateRelTable failed: %v", err)
	}
	srcEntry, _ := c.GetNodeTableEntry(a)
	dstEntry, _ := c.GetNodeTableEntry(b)
	if _, ok := srcEntry.FwdRelTables[relID]; !ok {
		t.Error("rel id missing from src forward set")
	}
	if _, ok := dstEntry.BwdRelTables[relID]; !ok {
		t.Error("rel id missing from dst backward set")
	}
	rel, _ := c.GetRelTableEntry(relID)
	// The synthetic _id property comes first and property columns start
	// at 1 because column 0 is the neighbor id.
	if rel.Properties[0].Name != "_id" || rel.Properties[0].ColumnID != 1 {
		t.Errorf("synthetic _id = %q col %d, want _id col 1",
			rel.Properties[0].Name, rel.Properties[0].ColumnID)
	}
}

func TestRelGroupCascadeDrop(t *testing.T) {
	c := newTestCatalog(t)
	a := mustCreateNodeTable(t, c, "A")
	b := mustCreateNodeTable(t, c, "B")
	groupID, err := c.CreateRelGroup(RelGroupInfo{
		Name:        "Knows",
		SrcDstPairs: [][2]types.TableID{{a, b}, {b, a}},
	})
	if err != nil {
		t.Fatalf("CreateRelGroup failed: %v", err)
	}
	group, _ := c.GetRelGroupEntry(groupID)
	if len(group.RelTableIDs) != 2 {
		t.Fatalf("children = %d, want 2", len(group.RelTableIDs))
	}
	if !c.ContainsTable("Knows_A_B") || !c.ContainsTable("Knows_B_A") {
		t.Fatal("child tables not registered by synthesized name")
	}
	children := append([]types.TableID(nil), group.RelTableIDs...)
	c.DropTable(groupID)
	for _, child := range children {
		if _, ok := c.GetRelTableEntry(child); ok {
			t.Errorf("child %d survived group drop", child)
		}
	}
	if c.ContainsTable("Knows") {
		t.Error("group name survived drop")
	}
}

func TestNextTableIDMonotonic(t *testing.T) {
	c := newTestCatalog(t)
	id := mustCreateNodeTable(t, c, "T")
	before := c.NextTableID()
	c.DropTable(id)
	if c.NextTableID() != before {
		t.Errorf("nextTableID moved on drop: %d -> %d", before, c.NextTableID())
	}
	id2 := mustCreateNodeTable(t, c, "T")
	if id2 <= id {
		t.Errorf("table id reused: %d after %d", id2, id)
	}
}

func serializeToBytes(t *testing.T, c *Catalog) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Serialize(&buf); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	return buf.Bytes()
}

func TestCatalogRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	id := mustCreateNodeTable(t, c, "T")
	if err := c.DropProperty(id, "name"); err != nil {
		t.Fatalf("DropProperty failed: %v", err)
	}
	if err := c.AddProperty(id, "age", types.NewType(types.TypeInt64), types.NewInt64Value(0)); err != nil {
		t.Fatalf("AddProperty failed: %v", err)
	}
	if err := c.RenameTable(id, "U"); err != nil {
		t.Fatalf("RenameTable failed: %v", err)
	}

	first := serializeToBytes(t, c)
	restored, err := Deserialize(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	second := serializeToBytes(t, restored)
	if !bytes.Equal(first, second) {
		t.Fatal("serialize/deserialize/serialize is not byte-identical")
	}

	entry, ok := restored.GetNodeTableEntry(id)
	if !ok || entry.Name != "U" {
		t.Fatalf("restored entry = %v", entry)
	}
	if len(entry.Properties) != 2 {
		t.Fatalf("properties = %d, want 2", len(entry.Properties))
	}
	if entry.Properties[0].Name != "id" || entry.Properties[1].Name != "age" {
		t.Errorf("properties = %s,%s, want id,age",
			entry.Properties[0].Name, entry.Properties[1].Name)
	}
	// Column ids are unchanged from creation: id kept column 0, age got
	// the next dense column.
	if entry.Properties[0].ColumnID != 0 || entry.Properties[1].ColumnID != 2 {
		t.Errorf("column ids = %d,%d, want 0,2",
			entry.Properties[0].ColumnID, entry.Properties[1].ColumnID)
	}
	age, _ := entry.GetProperty("age")
	if !age.DefaultValue.Equals(types.NewInt64Value(0)) {
		t.Errorf("age default = %v, want literal 0", age.DefaultValue)
	}
}

func TestRoundTripWithRelGroupIndexAndMacro(t *testing.T) {
	c := newTestCatalog(t)
	a := mustCreateNodeTable(t, c, "A")
	b := mustCreateNodeTable(t, c, "B")
	if _, err := c.CreateRelGroup(RelGroupInfo{
		Name:        "E",
		SrcDstPairs: [][2]types.TableID{{a, b}},
	}); err != nil {
		t.Fatalf("CreateRelGroup failed: %v", err)
	}
	if err := c.CreateIndex(&IndexEntry{
		TableID: a, Name: "idx", PropertyIDs: []types.PropertyID{0}, AuxInfo: []byte{1, 2, 3},
	}); err != nil {
		t.Fatalf("CreateIndex failed: %v", err)
	}
	if err := c.AddMacro("plus1", "x + 1"); err != nil {
		t.Fatalf("AddMacro failed: %v", err)
	}
	c.SetComment(a, "node table A")

	first := serializeToBytes(t, c)
	restored, err := Deserialize(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if !bytes.Equal(first, serializeToBytes(t, restored)) {
		t.Fatal("round trip is not byte-identical")
	}
	if !restored.ContainsIndex(a, "idx") {
		t.Error("index lost in round trip")
	}
	if _, ok := restored.GetMacro("plus1"); !ok {
		t.Error("macro lost in round trip")
	}
	entry, _ := restored.GetNodeTableEntry(a)
	if entry.Comment != "node table A" {
		t.Errorf("comment = %q", entry.Comment)
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	_, err := Deserialize(bytes.NewReader([]byte("JUNKxxxxxxxxxxxx")))
	if err == nil {
		t.Fatal("expected magic validation error")
	}
}

func TestDeserializeRejectsVersionMismatch(t *testing.T) {
	c := newTestCatalog(t)
	raw := serializeToBytes(t, c)
	raw[4] = raw[4] + 1 // bump stored version
	_, err := Deserialize(bytes.NewReader(raw))
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
	ke, ok := err.(*types.KuzuError)
	if !ok || ke.Kind != types.ErrRuntime {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	c := newTestCatalog(t)
	id := mustCreateNodeTable(t, c, "T")
	clone := c.Clone()
	if err := clone.RenameTable(id, "U"); err != nil {
		t.Fatalf("RenameTable failed: %v", err)
	}
	if !c.ContainsTable("T") || c.ContainsTable("U") {
		t.Error("clone mutation leaked into original")
	}
}
