package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

func setupStorage(t *testing.T) (*StorageManager, *catalog.Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	bm := NewBufferManager(8 * 1024 * 1024)
	sm, cat, err := Open(dir, bm)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { sm.Close() })
	return sm, cat, dir
}

func createTestNodeEntry(t *testing.T, cat *catalog.Catalog, name string) *catalog.NodeTableEntry {
	t.Helper()
	id, err := cat.CreateNodeTable(catalog.NodeTableInfo{
		Name: name,
		Properties: []catalog.PropertyInfo{
			{Name: "id", Type: types.NewType(types.TypeInt64), DefaultValue: types.NewNullValue(types.NewType(types.TypeInt64))},
			{Name: "name", Type: types.NewType(types.TypeString), DefaultValue: types.NewNullValue(types.NewType(types.TypeString))},
		},
		PrimaryKeyName: "id",
	})
	if err != nil {
		t.Fatalf("CreateNodeTable failed: %v", err)
	}
	entry, _ := cat.GetNodeTableEntry(id)
	return entry
}

func stageRows(t *testing.T, sm *StorageManager, entry *catalog.NodeTableEntry, n int) {
	t.Helper()
	table, _ := sm.GetNodeTable(entry.ID)
	staged := NewNodeTable(entry)
	columns := map[types.ColumnID]*ColumnChunk{
		0: NewColumnChunk(types.NewType(types.TypeInt64), uint64(n)),
		1: NewColumnChunk(types.NewType(types.TypeString), uint64(n)),
	}
	index := NewPrimaryKeyIndex(types.TypeInt64, uint64(n))
	for i := 0; i < n; i++ {
		columns[0].Append(types.NewInt64Value(int64(i)))
		columns[1].Append(types.NewStringValue("row"))
		index.InsertInt(int64(i), types.Offset(i))
	}
	staged.SetContent(uint64(n), columns, index)
	table.Stage(staged)
	sm.NodesStatistics().SetNumRows(entry.ID, uint64(n))
	if err := sm.WAL().LogCopyNode(entry.ID); err != nil {
		t.Fatalf("LogCopyNode failed: %v", err)
	}
}

func TestCommitMakesDataDurable(t *testing.T) {
	sm, cat, dir := setupStorage(t)
	tm := NewTransactionManager(sm, cat)
	tx, err := tm.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite failed: %v", err)
	}
	entry := createTestNodeEntry(t, tx.Catalog(), "T")
	sm.CreateNodeTable(entry)
	stageRows(t, sm, entry, 10)
	sm.MarkCatalogDirty()
	if err := tm.Commit(tx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	sm.Close()

	// Reopen: the committed state must come back from disk.
	bm := NewBufferManager(8 * 1024 * 1024)
	sm2, cat2, err := Open(dir, bm)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer sm2.Close()
	id, ok := cat2.GetTableID("T")
	if !ok {
		t.Fatal("catalog lost table T")
	}
	table, ok := sm2.GetNodeTable(id)
	if !ok {
		t.Fatal("storage lost table T")
	}
	if table.NumRows() != 10 {
		t.Errorf("rows = %d, want 10", table.NumRows())
	}
	offset, ok := table.PKIndex().LookupInt(7)
	if !ok || offset != 7 {
		t.Errorf("pk lookup = (%d,%v)", offset, ok)
	}
	if sm2.NodesStatistics().NumRows(id) != 10 {
		t.Errorf("stats = %d, want 10", sm2.NodesStatistics().NumRows(id))
	}
}

func TestRollbackLeavesNoTrace(t *testing.T) {
	sm, cat, _ := setupStorage(t)
	tm := NewTransactionManager(sm, cat)

	tx, _ := tm.BeginWrite()
	entry := createTestNodeEntry(t, tx.Catalog(), "T")
	sm.CreateNodeTable(entry)
	sm.MarkCatalogDirty()
	if err := tm.Commit(tx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tx2, _ := tm.BeginWrite()
	stageRows(t, sm, entry, 5)
	if err := tm.Rollback(tx2); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	table, _ := sm.GetNodeTable(entry.ID)
	if table.NumRows() != 0 {
		t.Errorf("rows after rollback = %d, want 0", table.NumRows())
	}
	if table.HasStaged() {
		t.Error("staged buffer survived rollback")
	}
}

// prepareCommit; crash; recover must be equivalent to a full checkpoint.
func TestCrashAfterCommitRecordRecovers(t *testing.T) {
	sm, cat, dir := setupStorage(t)
	tm := NewTransactionManager(sm, cat)
	tx, _ := tm.BeginWrite()
	entry := createTestNodeEntry(t, tx.Catalog(), "T")
	sm.CreateNodeTable(entry)
	stageRows(t, sm, entry, 4)
	sm.MarkCatalogDirty()

	// Run prepare + WAL commit by hand, then "crash" before the
	// checkpoint by closing the handles.
	if err := sm.PrepareCommit(tx.Catalog()); err != nil {
		t.Fatalf("PrepareCommit failed: %v", err)
	}
	if err := sm.CommitWAL(tx.ID()); err != nil {
		t.Fatalf("CommitWAL failed: %v", err)
	}
	sm.Close()

	bm := NewBufferManager(8 * 1024 * 1024)
	sm2, cat2, err := Open(dir, bm)
	if err != nil {
		t.Fatalf("recovery open failed: %v", err)
	}
	defer sm2.Close()
	id, ok := cat2.GetTableID("T")
	if !ok {
		t.Fatal("recovery lost the committed catalog snapshot")
	}
	table, ok := sm2.GetNodeTable(id)
	if !ok || table.NumRows() != 4 {
		t.Fatalf("recovered table = %v", table)
	}
	// The WAL must be empty after recovery.
	if info, err := os.Stat(filepath.Join(dir, WALFileName)); err != nil || info.Size() != 0 {
		t.Errorf("wal not truncated after recovery: %v", info)
	}
}

func TestCrashWithoutCommitRecordDiscards(t *testing.T) {
	sm, cat, dir := setupStorage(t)
	tm := NewTransactionManager(sm, cat)
	tx, _ := tm.BeginWrite()
	entry := createTestNodeEntry(t, tx.Catalog(), "T")
	sm.CreateNodeTable(entry)
	stageRows(t, sm, entry, 4)
	sm.MarkCatalogDirty()
	if err := sm.PrepareCommit(tx.Catalog()); err != nil {
		t.Fatalf("PrepareCommit failed: %v", err)
	}
	// Crash before the commit record.
	sm.Close()

	bm := NewBufferManager(8 * 1024 * 1024)
	sm2, cat2, err := Open(dir, bm)
	if err != nil {
		t.Fatalf("recovery open failed: %v", err)
	}
	defer sm2.Close()
	if _, ok := cat2.GetTableID("T"); ok {
		t.Error("uncommitted catalog snapshot survived recovery")
	}
}

func TestSingleWriter(t *testing.T) {
	sm, cat, _ := setupStorage(t)
	tm := NewTransactionManager(sm, cat)
	tx, err := tm.BeginWrite()
	if err != nil {
		t.Fatalf("BeginWrite failed: %v", err)
	}
	if _, err := tm.BeginWrite(); err == nil {
		t.Fatal("second concurrent writer was allowed")
	}
	if err := tm.Rollback(tx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if _, err := tm.BeginWrite(); err != nil {
		t.Errorf("writer slot not released: %v", err)
	}
}

func TestReadersKeepSnapshot(t *testing.T) {
	sm, cat, _ := setupStorage(t)
	tm := NewTransactionManager(sm, cat)

	reader := tm.BeginRead()
	tx, _ := tm.BeginWrite()
	entry := createTestNodeEntry(t, tx.Catalog(), "T")
	sm.CreateNodeTable(entry)
	sm.MarkCatalogDirty()
	if err := tm.Commit(tx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	// A reader started before the commit record keeps the old snapshot.
	if reader.Catalog().ContainsTable("T") {
		t.Error("old reader sees the new snapshot")
	}
	if !tm.BeginRead().Catalog().ContainsTable("T") {
		t.Error("new reader misses the new snapshot")
	}
}

func TestListMetadataBuilder(t *testing.T) {
	b := NewListMetadataBuilder(5)
	b.PreTouch()
	// Node 0 has 2 rels, node 3 has 3 rels.
	b.IncrementSize(0)
	b.IncrementSize(0)
	for i := 0; i < 3; i++ {
		b.IncrementSize(3)
	}
	offsets := b.BuildOffsets()
	want := []uint64{0, 2, 2, 2, 5, 5}
	for i, w := range want {
		if offsets[i] != w {
			t.Fatalf("offsets[%d] = %d, want %d", i, offsets[i], w)
		}
	}
	if b.TotalRels() != 5 {
		t.Fatalf("total = %d, want 5", b.TotalRels())
	}
	// Placement is back to front and dense inside each node's slot.
	seen := map[uint64]bool{}
	for _, offset := range []types.Offset{0, 0, 3, 3, 3} {
		pos := b.DecrementListSize(offset)
		if seen[pos] {
			t.Fatalf("position %d handed out twice", pos)
		}
		seen[pos] = true
		lo, hi := offsets[offset], offsets[offset+1]
		if pos < lo || pos >= hi {
			t.Fatalf("position %d outside [%d,%d)", pos, lo, hi)
		}
	}
	if len(seen) != 5 {
		t.Fatalf("placements = %d, want 5", len(seen))
	}
}

func TestBufferManagerPinEvict(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenFileHandle(filepath.Join(dir, "data.kz"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer h.Close()
	page := make([]byte, PageSize)
	for i := 0; i < 4; i++ {
		page[0] = byte(i)
		if err := h.WritePage(uint64(i), page); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	// A pool of two pages forces eviction.
	bm := NewBufferManager(2 * PageSize)
	data, release, err := bm.Pin(h, 0)
	if err != nil {
		t.Fatalf("pin failed: %v", err)
	}
	if data[0] != 0 {
		t.Errorf("page 0 content = %d", data[0])
	}
	release()
	for i := uint64(1); i < 4; i++ {
		data, release, err := bm.Pin(h, i)
		if err != nil {
			t.Fatalf("pin %d failed: %v", i, err)
		}
		if data[0] != byte(i) {
			t.Errorf("page %d content = %d", i, data[0])
		}
		release()
	}
	// All frames pinned: the pool must refuse rather than evict.
	_, r1, err := bm.Pin(h, 0)
	if err != nil {
		t.Fatalf("pin failed: %v", err)
	}
	_, r2, err := bm.Pin(h, 1)
	if err != nil {
		t.Fatalf("pin failed: %v", err)
	}
	if _, _, err := bm.Pin(h, 2); err == nil {
		t.Error("pin beyond capacity with all frames pinned should fail")
	}
	r1()
	r2()
}

func TestShadowFileApplyAndClear(t *testing.T) {
	dir := t.TempDir()
	sf, err := OpenShadowFile(filepath.Join(dir, ShadowFileName))
	if err != nil {
		t.Fatalf("open shadow failed: %v", err)
	}
	defer sf.Close()
	data, err := OpenFileHandle(filepath.Join(dir, DataFileName))
	if err != nil {
		t.Fatalf("open data failed: %v", err)
	}
	defer data.Close()

	page := make([]byte, PageSize)
	page[0] = 42
	if err := sf.StagePage(3, page); err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	page[0] = 43
	if err := sf.StagePage(3, page); err != nil {
		t.Fatalf("restage failed: %v", err)
	}
	if sf.NumStaged() != 1 {
		t.Fatalf("staged = %d, want 1 (restage reuses the slot)", sf.NumStaged())
	}
	if err := sf.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if err := sf.Apply(data); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	buf := make([]byte, PageSize)
	if err := data.ReadPage(3, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if buf[0] != 43 {
		t.Errorf("applied page content = %d, want 43", buf[0])
	}
	if err := sf.Clear(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if sf.NumStaged() != 0 {
		t.Error("entries survived clear")
	}
}
