package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/btree"
)

// shadowEntry maps an original data-file page to its shadow copy.
type shadowEntry struct {
	origPageIdx   uint64
	shadowPageIdx uint64
}

func (a shadowEntry) Less(b btree.Item) bool {
	return a.origPageIdx < b.(shadowEntry).origPageIdx
}

// ShadowFile implements shadow paging: a dirty page is written here first,
// keyed by its original page index, and only applied to the live data file
// at checkpoint. Until then the live file is untouched, which makes
// rollback free and crash recovery a replay of this file.
//
// Layout: page 0 is the header (entry count + entry table); shadow pages
// follow from page 1. The header is rewritten on every Flush so a crashed
// process can rebuild the page table.
type ShadowFile struct {
	mu      sync.Mutex
	handle  *FileHandle
	entries *btree.BTree
	next    uint64 // next shadow page index, page 0 is the header
}

const shadowHeaderCapacity = (PageSize - 8) / 16

func OpenShadowFile(path string) (*ShadowFile, error) {
	h, err := OpenFileHandle(path)
	if err != nil {
		return nil, err
	}
	sf := &ShadowFile{handle: h, entries: btree.New(8), next: 1}
	if h.NumPages() > 0 {
		if err := sf.loadHeader(); err != nil {
			h.Close()
			return nil, err
		}
	}
	return sf, nil
}

func (sf *ShadowFile) loadHeader() error {
	buf := make([]byte, PageSize)
	if err := sf.handle.ReadPage(0, buf); err != nil {
		return err
	}
	count := binary.LittleEndian.Uint64(buf[:8])
	if count > shadowHeaderCapacity {
		return fmt.Errorf("shadow file header corrupt: %d entries", count)
	}
	for i := uint64(0); i < count; i++ {
		off := 8 + i*16
		e := shadowEntry{
			origPageIdx:   binary.LittleEndian.Uint64(buf[off : off+8]),
			shadowPageIdx: binary.LittleEndian.Uint64(buf[off+8 : off+16]),
		}
		sf.entries.ReplaceOrInsert(e)
		if e.shadowPageIdx >= sf.next {
			sf.next = e.shadowPageIdx + 1
		}
	}
	return nil
}

func (sf *ShadowFile) writeHeader() error {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint64(buf[:8], uint64(sf.entries.Len()))
	i := uint64(0)
	sf.entries.Ascend(func(item btree.Item) bool {
		e := item.(shadowEntry)
		off := 8 + i*16
		binary.LittleEndian.PutUint64(buf[off:off+8], e.origPageIdx)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], e.shadowPageIdx)
		i++
		return true
	})
	return sf.handle.WritePage(0, buf)
}

// StagePage writes one dirty page into the shadow file. Re-staging the
// same original page reuses its slot.
func (sf *ShadowFile) StagePage(origPageIdx uint64, data []byte) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.entries.Len() >= shadowHeaderCapacity {
		return fmt.Errorf("shadow file is full: %d staged pages", sf.entries.Len())
	}
	e := shadowEntry{origPageIdx: origPageIdx}
	if existing := sf.entries.Get(e); existing != nil {
		e.shadowPageIdx = existing.(shadowEntry).shadowPageIdx
	} else {
		e.shadowPageIdx = sf.next
		sf.next++
		sf.entries.ReplaceOrInsert(e)
	}
	return sf.handle.WritePage(e.shadowPageIdx, data)
}

// Flush makes the staged pages durable before the commit record is
// written.
func (sf *ShadowFile) Flush() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	if sf.entries.Len() == 0 {
		return nil
	}
	if err := sf.writeHeader(); err != nil {
		return err
	}
	return sf.handle.Sync()
}

// Apply copies every staged page into the data file in ascending page
// order, then syncs it. Called at checkpoint and during crash recovery.
func (sf *ShadowFile) Apply(dataFile *FileHandle) error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	buf := make([]byte, PageSize)
	var applyErr error
	sf.entries.Ascend(func(item btree.Item) bool {
		e := item.(shadowEntry)
		if applyErr = sf.handle.ReadPage(e.shadowPageIdx, buf); applyErr != nil {
			return false
		}
		if applyErr = dataFile.WritePage(e.origPageIdx, buf); applyErr != nil {
			return false
		}
		return true
	})
	if applyErr != nil {
		return applyErr
	}
	return dataFile.Sync()
}

// Clear discards the staged pages and truncates the file.
func (sf *ShadowFile) Clear() error {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	sf.entries.Clear(false)
	sf.next = 1
	return sf.handle.Truncate()
}

func (sf *ShadowFile) NumStaged() int {
	sf.mu.Lock()
	defer sf.mu.Unlock()
	return sf.entries.Len()
}

func (sf *ShadowFile) Handle() *FileHandle { return sf.handle }

func (sf *ShadowFile) Close() error { return sf.handle.Close() }

// RemoveIfEmpty deletes the shadow file from disk when nothing is staged.
func (sf *ShadowFile) RemoveIfEmpty() {
	if sf.NumStaged() == 0 {
		os.Remove(sf.handle.Path())
	}
}

var _ io.Closer = (*ShadowFile)(nil)
