// Package database wires the engine together: it owns the storage
// manager, transaction manager, and buffer manager for one database
// directory, and executes bound statements. The root kuzugo package
// re-exports the thin public surface.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/untoldecay/kuzugo/internal/config"
	"github.com/untoldecay/kuzugo/internal/debug"
	"github.com/untoldecay/kuzugo/internal/storage"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Database is the process-wide engine value for one database directory.
// There is no true global state: every operation reaches shared services
// through its connection.
type Database struct {
	path string
	lock *flock.Flock

	bm *storage.BufferManager
	sm *storage.StorageManager
	tm *storage.TransactionManager

	// readOnly is set after an unrecoverable runtime error; the session
	// must be reopened to write again.
	readOnly bool
}

// Open locks and opens a database directory, running crash recovery.
func Open(path string) (*Database, error) {
	if path == "" {
		path = config.DBPath()
	}
	if path == "" {
		return nil, types.NewRuntimeError("no database path given and KUZU_DB_PATH is not set")
	}
	poolSize, err := config.BufferPoolSize()
	if err != nil {
		return nil, err
	}
	// The directory lock enforces the single-writer-process rule and must
	// be held before recovery touches the WAL or shadow file.
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	lock := flock.New(filepath.Join(path, ".lock"))
	locked, lockErr := lock.TryLock()
	if lockErr != nil || !locked {
		return nil, types.NewRuntimeError("database %s is locked by another process", path)
	}
	bm := storage.NewBufferManager(poolSize)
	sm, cat, err := storage.Open(path, bm)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	debug.Logf("opened database at %s (pool %d bytes)", path, poolSize)
	return &Database{
		path: path,
		lock: lock,
		bm:   bm,
		sm:   sm,
		tm:   storage.NewTransactionManager(sm, cat),
	}, nil
}

func (db *Database) Path() string { return db.path }

func (db *Database) StorageManager() *storage.StorageManager { return db.sm }

func (db *Database) TransactionManager() *storage.TransactionManager { return db.tm }

// markReadOnly is called when a runtime error leaves storage state in
// doubt.
func (db *Database) markReadOnly() { db.readOnly = true }

func (db *Database) checkWritable() error {
	if db.readOnly {
		return types.NewRuntimeError(
			"database is read-only after a previous storage error; reopen it to write")
	}
	return nil
}

// Close releases the directory lock and file handles.
func (db *Database) Close() error {
	var firstErr error
	if err := db.sm.Close(); err != nil {
		firstErr = err
	}
	if err := db.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to unlock database: %w", err)
	}
	return firstErr
}
