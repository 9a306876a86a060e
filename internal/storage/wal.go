package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/untoldecay/kuzugo/internal/types"
)

// WALRecordType tags the tagged-union WAL records.
type WALRecordType uint8

const (
	WALCommit WALRecordType = iota + 1
	WALRollback
	WALCopyNode
	WALCopyRel
	WALTableStatistics
	WALCatalog
	WALCreateTable
	WALDropTable
)

// WALRecord is one framed record. Fields are populated per type.
type WALRecord struct {
	Type      WALRecordType
	TxID      uint64
	TableID   types.TableID
	TableType uint8 // 0 node, 1 rel (statistics records)
}

// WAL is the write-ahead log: length-framed records appended to a single
// file and fsynced on commit.
type WAL struct {
	path string
	file *os.File
}

func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal: %w", err)
	}
	return &WAL{path: path, file: f}, nil
}

func (w *WAL) append(rec WALRecord) error {
	var payload bytes.Buffer
	payload.WriteByte(byte(rec.Type))
	var scratch [8]byte
	binary.LittleEndian.PutUint64(scratch[:], rec.TxID)
	payload.Write(scratch[:])
	binary.LittleEndian.PutUint64(scratch[:], uint64(rec.TableID))
	payload.Write(scratch[:])
	payload.WriteByte(rec.TableType)

	var frame [4]byte
	binary.LittleEndian.PutUint32(frame[:], uint32(payload.Len()))
	if _, err := w.file.Write(frame[:]); err != nil {
		return fmt.Errorf("failed to write wal frame: %w", err)
	}
	if _, err := w.file.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("failed to write wal record: %w", err)
	}
	return nil
}

func (w *WAL) LogCopyNode(tableID types.TableID) error {
	return w.append(WALRecord{Type: WALCopyNode, TableID: tableID})
}

func (w *WAL) LogCopyRel(tableID types.TableID) error {
	return w.append(WALRecord{Type: WALCopyRel, TableID: tableID})
}

func (w *WAL) LogTableStatistics(tableType uint8) error {
	return w.append(WALRecord{Type: WALTableStatistics, TableType: tableType})
}

func (w *WAL) LogCatalog() error {
	return w.append(WALRecord{Type: WALCatalog})
}

func (w *WAL) LogCreateTable(tableID types.TableID) error {
	return w.append(WALRecord{Type: WALCreateTable, TableID: tableID})
}

func (w *WAL) LogDropTable(tableID types.TableID) error {
	return w.append(WALRecord{Type: WALDropTable, TableID: tableID})
}

// LogCommitAndSync writes the commit record and forces it to disk; this is
// the transaction's durability point.
func (w *WAL) LogCommitAndSync(txID uint64) error {
	if err := w.append(WALRecord{Type: WALCommit, TxID: txID}); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to fsync wal: %w", err)
	}
	return nil
}

func (w *WAL) LogRollback(txID uint64) error {
	return w.append(WALRecord{Type: WALRollback, TxID: txID})
}

// Replay streams every well-formed record to fn. A torn tail record is
// ignored: it belongs to a transaction that never committed.
func (w *WAL) Replay(fn func(WALRecord) error) error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek wal: %w", err)
	}
	defer w.file.Seek(0, io.SeekEnd)
	for {
		var frame [4]byte
		if _, err := io.ReadFull(w.file, frame[:]); err != nil {
			return nil // end of log or torn frame header
		}
		n := binary.LittleEndian.Uint32(frame[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(w.file, payload); err != nil {
			return nil // torn record
		}
		if len(payload) < 18 {
			return nil
		}
		rec := WALRecord{
			Type:      WALRecordType(payload[0]),
			TxID:      binary.LittleEndian.Uint64(payload[1:9]),
			TableID:   types.TableID(binary.LittleEndian.Uint64(payload[9:17])),
			TableType: payload[17],
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// ContainsCommit reports whether any commit record is present; recovery
// uses it to decide between applying and discarding the shadow file.
func (w *WAL) ContainsCommit() (bool, error) {
	found := false
	err := w.Replay(func(rec WALRecord) error {
		if rec.Type == WALCommit {
			found = true
		}
		return nil
	})
	return found, err
}

// Truncate clears the log after a checkpoint.
func (w *WAL) Truncate() error {
	if err := w.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate wal: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *WAL) Close() error { return w.file.Close() }
