package storage

import (
	"sync"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// TransactionType distinguishes readers from the single writer.
type TransactionType uint8

const (
	TransactionRead TransactionType = iota
	TransactionWrite
)

// Transaction is single-writer: only one read-write transaction may be
// active at a time. Readers are MVCC snapshots whose identifier is the
// last committed WAL timestamp.
type Transaction struct {
	id       uint64
	txType   TransactionType
	startTS  uint64
	catalog  *catalog.Catalog
	finished bool
}

func (t *Transaction) ID() uint64      { return t.id }
func (t *Transaction) IsWrite() bool   { return t.txType == TransactionWrite }
func (t *Transaction) StartTS() uint64 { return t.startTS }

// Catalog is the transaction's schema view: readers hold the immutable
// current catalog, the writer holds its private clone.
func (t *Transaction) Catalog() *catalog.Catalog { return t.catalog }

// TransactionManager enforces the single-writer-many-readers model and
// drives the prepare/commit/rollback protocol against the storage manager.
type TransactionManager struct {
	sm *StorageManager

	mu         sync.Mutex
	writerBusy bool
	nextTxID   uint64
	commitTS   uint64

	// current is the committed catalog readers snapshot. The writer
	// mutates a clone and installs it on commit (read-copy-update).
	current *catalog.Catalog
}

func NewTransactionManager(sm *StorageManager, cat *catalog.Catalog) *TransactionManager {
	return &TransactionManager{sm: sm, current: cat, nextTxID: 1}
}

// CurrentCatalog is the committed snapshot.
func (tm *TransactionManager) CurrentCatalog() *catalog.Catalog {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.current
}

// BeginRead starts an MVCC reader on the current snapshot.
func (tm *TransactionManager) BeginRead() *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tx := &Transaction{
		id:      tm.nextTxID,
		txType:  TransactionRead,
		startTS: tm.commitTS,
		catalog: tm.current,
	}
	tm.nextTxID++
	return tx
}

// BeginWrite starts the writer, cloning the catalog for read-copy-update.
// It fails when another writer is active.
func (tm *TransactionManager) BeginWrite() (*Transaction, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.writerBusy {
		return nil, types.NewRuntimeError(
			"another write transaction is active; only one writer is allowed")
	}
	tm.writerBusy = true
	tx := &Transaction{
		id:      tm.nextTxID,
		txType:  TransactionWrite,
		startTS: tm.commitTS,
		catalog: tm.current.Clone(),
	}
	tm.nextTxID++
	return tx, nil
}

// Commit runs the three-step protocol: prepare (snapshot side files and
// stage shadow pages), WAL commit record + fsync, then the in-memory
// checkpoint that swaps in the new snapshot. Readers started before the
// commit record keep the old snapshot until they finish.
func (tm *TransactionManager) Commit(tx *Transaction) error {
	if !tx.IsWrite() || tx.finished {
		return nil
	}
	tx.finished = true
	if err := tm.sm.PrepareCommit(tx.catalog); err != nil {
		tm.abort(tx)
		return err
	}
	if err := tm.sm.CommitWAL(tx.id); err != nil {
		tm.abort(tx)
		return err
	}
	if err := tm.sm.CheckpointInMemory(); err != nil {
		tm.mu.Lock()
		tm.writerBusy = false
		tm.mu.Unlock()
		return err
	}
	tm.mu.Lock()
	tm.current = tx.catalog
	tm.commitTS = tx.id
	tm.writerBusy = false
	tm.mu.Unlock()
	return nil
}

// Rollback reverts the writer; no on-disk effect because shadow paging
// kept the live file untouched.
func (tm *TransactionManager) Rollback(tx *Transaction) error {
	if !tx.IsWrite() || tx.finished {
		return nil
	}
	tx.finished = true
	err := tm.sm.Rollback(tx.id)
	tm.mu.Lock()
	tm.writerBusy = false
	tm.mu.Unlock()
	return err
}

func (tm *TransactionManager) abort(tx *Transaction) {
	_ = tm.sm.Rollback(tx.id)
	tm.mu.Lock()
	tm.writerBusy = false
	tm.mu.Unlock()
}
