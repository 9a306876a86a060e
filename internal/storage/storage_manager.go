package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Database directory layout.
const (
	DataFileName    = "data.kz"
	CatalogFileName = "catalog.kz"
	StatsFileName   = "stats.kz"
	WALFileName     = "wal.kz"
	ShadowFileName  = "shadow.kz"
	// WALSuffix marks the catalog/stats companion snapshots written at
	// prepare-commit and installed at checkpoint.
	WALSuffix = ".wal"
)

// StorageManager hosts the table set, the WAL, the shadow-paging
// checkpointer, and the page buffer manager.
type StorageManager struct {
	dbPath   string
	dataFile *FileHandle
	shadow   *ShadowFile
	wal      *WAL
	bm       *BufferManager

	mu     sync.RWMutex
	tables map[types.TableID]Table

	nodesStats *TableStatistics
	relsStats  *TableStatistics

	catalogDirty bool
}

// Open initializes the storage manager for a database directory, running
// crash recovery first, then loading the catalog and data image.
func Open(dbPath string, bm *BufferManager) (*StorageManager, *catalog.Catalog, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	sm := &StorageManager{
		dbPath:     dbPath,
		bm:         bm,
		tables:     make(map[types.TableID]Table),
		nodesStats: NewTableStatistics(),
		relsStats:  NewTableStatistics(),
	}
	var err error
	sm.dataFile, err = OpenFileHandle(filepath.Join(dbPath, DataFileName))
	if err != nil {
		return nil, nil, err
	}
	sm.wal, err = OpenWAL(filepath.Join(dbPath, WALFileName))
	if err != nil {
		return nil, nil, err
	}
	sm.shadow, err = OpenShadowFile(filepath.Join(dbPath, ShadowFileName))
	if err != nil {
		return nil, nil, err
	}
	if err := sm.recover(); err != nil {
		return nil, nil, err
	}
	cat, err := sm.loadCatalog()
	if err != nil {
		return nil, nil, err
	}
	if err := sm.loadStats(); err != nil {
		return nil, nil, err
	}
	if err := sm.loadImage(); err != nil {
		return nil, nil, err
	}
	// Scans after open are read-mostly; serve them from a mapping.
	if err := sm.dataFile.MapReadOnly(); err != nil {
		return nil, nil, err
	}
	return sm, cat, nil
}

func (sm *StorageManager) path(name string) string { return filepath.Join(sm.dbPath, name) }

// recover replays the WAL against the shadow file. A commit record means
// the shadow pages and companion snapshots are the durable state; without
// one they are discarded.
func (sm *StorageManager) recover() error {
	walEmpty := fileEmpty(sm.path(WALFileName))
	shadowEmpty := sm.shadow.NumStaged() == 0
	if walEmpty && shadowEmpty {
		sm.removeCompanions()
		return nil
	}
	committed, err := sm.wal.ContainsCommit()
	if err != nil {
		return err
	}
	if committed {
		if err := sm.shadow.Apply(sm.dataFile); err != nil {
			return err
		}
		sm.installCompanions()
	} else {
		sm.removeCompanions()
	}
	if err := sm.wal.Truncate(); err != nil {
		return err
	}
	if err := sm.shadow.Clear(); err != nil {
		return err
	}
	sm.bm.EvictFilePages(sm.shadow.Handle())
	sm.bm.EvictFilePages(sm.dataFile)
	return nil
}

func fileEmpty(path string) bool {
	info, err := os.Stat(path)
	return err != nil || info.Size() == 0
}

func (sm *StorageManager) installCompanions() {
	for _, name := range []string{CatalogFileName, StatsFileName} {
		companion := sm.path(name + WALSuffix)
		if _, err := os.Stat(companion); err == nil {
			os.Rename(companion, sm.path(name))
		}
	}
}

func (sm *StorageManager) removeCompanions() {
	os.Remove(sm.path(CatalogFileName + WALSuffix))
	os.Remove(sm.path(StatsFileName + WALSuffix))
}

func (sm *StorageManager) loadCatalog() (*catalog.Catalog, error) {
	f, err := os.Open(sm.path(CatalogFileName))
	if os.IsNotExist(err) {
		return catalog.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()
	return catalog.Deserialize(f)
}

func (sm *StorageManager) loadStats() error {
	data, err := os.ReadFile(sm.path(StatsFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stats file: %w", err)
	}
	d := catalog.NewDeserializer(bytes.NewReader(data))
	sm.nodesStats = DeserializeTableStatistics(d)
	sm.relsStats = DeserializeTableStatistics(d)
	return d.Err()
}

// CreateNodeTable lazily materializes storage for a committed catalog
// entry.
func (sm *StorageManager) CreateNodeTable(entry *catalog.NodeTableEntry) *NodeTable {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	t := NewNodeTable(entry)
	sm.tables[entry.ID] = t
	sm.nodesStats.SetNumRows(entry.ID, 0)
	return t
}

func (sm *StorageManager) CreateRelTable(entry *catalog.RelTableEntry) *RelTable {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	t := NewRelTable(entry)
	sm.tables[entry.ID] = t
	sm.relsStats.SetNumRows(entry.ID, 0)
	return t
}

func (sm *StorageManager) DropTable(id types.TableID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.tables, id)
	sm.nodesStats.RemoveTable(id)
	sm.relsStats.RemoveTable(id)
}

func (sm *StorageManager) GetTable(id types.TableID) (Table, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	t, ok := sm.tables[id]
	return t, ok
}

func (sm *StorageManager) GetNodeTable(id types.TableID) (*NodeTable, bool) {
	t, ok := sm.GetTable(id)
	if !ok {
		return nil, false
	}
	nt, ok := t.(*NodeTable)
	return nt, ok
}

func (sm *StorageManager) GetRelTable(id types.TableID) (*RelTable, bool) {
	t, ok := sm.GetTable(id)
	if !ok {
		return nil, false
	}
	rt, ok := t.(*RelTable)
	return rt, ok
}

func (sm *StorageManager) NodesStatistics() *TableStatistics { return sm.nodesStats }
func (sm *StorageManager) RelsStatistics() *TableStatistics  { return sm.relsStats }
func (sm *StorageManager) WAL() *WAL                         { return sm.wal }
func (sm *StorageManager) BufferManager() *BufferManager     { return sm.bm }

// MarkCatalogDirty queues a catalog snapshot for the next prepare-commit.
func (sm *StorageManager) MarkCatalogDirty() { sm.catalogDirty = true }

// serializeImage renders the full data image, preferring staged table
// content: at prepare-commit time the staged buffers are the state being
// committed.
func (sm *StorageManager) serializeImage() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var buf bytes.Buffer
	s := catalog.NewSerializer(&buf)
	ids := make([]types.TableID, 0, len(sm.tables))
	for id := range sm.tables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.WriteU64(uint64(len(ids)))
	for _, id := range ids {
		switch t := sm.tables[id].(type) {
		case *NodeTable:
			if t.staged != nil {
				t.staged.id = t.id
				t.staged.serialize(s)
			} else {
				t.serialize(s)
			}
		case *RelTable:
			if t.staged != nil {
				t.staged.id = t.id
				t.staged.serialize(s)
			} else {
				t.serialize(s)
			}
		}
	}
	return buf.Bytes(), s.Err()
}

func (sm *StorageManager) loadImage() error {
	if sm.dataFile.NumPages() == 0 {
		return nil
	}
	raw := make([]byte, sm.dataFile.NumPages()*PageSize)
	for i := uint64(0); i < sm.dataFile.NumPages(); i++ {
		if err := sm.dataFile.ReadPage(i, raw[i*PageSize:(i+1)*PageSize]); err != nil {
			return err
		}
	}
	d := catalog.NewDeserializer(bytes.NewReader(raw))
	imageLen := d.ReadU64()
	if imageLen == 0 {
		return nil
	}
	n := d.ReadU64()
	for i := uint64(0); i < n; i++ {
		kind := d.ReadU8()
		switch kind {
		case 0:
			t := deserializeNodeTable(d)
			sm.tables[t.id] = t
		case 1:
			t := deserializeRelTable(d)
			sm.tables[t.id] = t
		default:
			return types.NewRuntimeError("corrupt data image: table kind %d", kind)
		}
	}
	return d.Err()
}

// PrepareCommit runs step one of the commit protocol: snapshot dirty
// statistics and catalog to their WAL companions, stage the new data image
// into the shadow file, and flush it.
func (sm *StorageManager) PrepareCommit(cat *catalog.Catalog) error {
	if sm.nodesStats.Dirty() || sm.relsStats.Dirty() {
		var buf bytes.Buffer
		s := catalog.NewSerializer(&buf)
		sm.nodesStats.Serialize(s)
		sm.relsStats.Serialize(s)
		if err := s.Err(); err != nil {
			return err
		}
		if err := os.WriteFile(sm.path(StatsFileName+WALSuffix), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write stats snapshot: %w", err)
		}
		if err := sm.wal.LogTableStatistics(0); err != nil {
			return err
		}
	}
	if sm.catalogDirty {
		var buf bytes.Buffer
		if err := cat.Serialize(&buf); err != nil {
			return err
		}
		if err := os.WriteFile(sm.path(CatalogFileName+WALSuffix), buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("failed to write catalog snapshot: %w", err)
		}
		if err := sm.wal.LogCatalog(); err != nil {
			return err
		}
	}
	image, err := sm.serializeImage()
	if err != nil {
		return err
	}
	header := make([]byte, 8)
	binary.LittleEndian.PutUint64(header, uint64(len(image)))
	full := append(header, image...)
	numPages := (uint64(len(full)) + PageSize - 1) / PageSize
	page := make([]byte, PageSize)
	for i := uint64(0); i < numPages; i++ {
		for j := range page {
			page[j] = 0
		}
		start := i * PageSize
		end := start + PageSize
		if end > uint64(len(full)) {
			end = uint64(len(full))
		}
		copy(page, full[start:end])
		if err := sm.shadow.StagePage(i, page); err != nil {
			return err
		}
	}
	return sm.shadow.Flush()
}

// CommitWAL writes the commit record and fsyncs: the durability point.
func (sm *StorageManager) CommitWAL(txID uint64) error {
	return sm.wal.LogCommitAndSync(txID)
}

// CheckpointInMemory runs step three: every updated table applies its
// in-memory buffer, the shadow pages land in the data file, and the
// companion snapshots become current.
func (sm *StorageManager) CheckpointInMemory() error {
	sm.mu.Lock()
	for _, t := range sm.tables {
		switch v := t.(type) {
		case *NodeTable:
			v.CommitStaged()
		case *RelTable:
			v.CommitStaged()
		}
	}
	sm.mu.Unlock()
	if err := sm.shadow.Apply(sm.dataFile); err != nil {
		return err
	}
	sm.installCompanions()
	sm.catalogDirty = false
	if err := sm.wal.Truncate(); err != nil {
		return err
	}
	if err := sm.shadow.Clear(); err != nil {
		return err
	}
	sm.bm.EvictFilePages(sm.shadow.Handle())
	sm.bm.EvictFilePages(sm.dataFile)
	return sm.dataFile.MapReadOnly()
}

// Rollback logs the rollback record and reverts in-memory buffers; the
// live file was never touched thanks to shadow paging.
func (sm *StorageManager) Rollback(txID uint64) error {
	if err := sm.wal.LogRollback(txID); err != nil {
		return err
	}
	sm.mu.Lock()
	for _, t := range sm.tables {
		switch v := t.(type) {
		case *NodeTable:
			v.RollbackStaged()
		case *RelTable:
			v.RollbackStaged()
		}
	}
	sm.mu.Unlock()
	sm.catalogDirty = false
	sm.removeCompanions()
	return sm.shadow.Clear()
}

func (sm *StorageManager) Close() error {
	var firstErr error
	for _, c := range []func() error{sm.wal.Close, sm.shadow.Close, sm.dataFile.Close} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
