// Package storage hosts the table set, write-ahead log, shadow-paging
// checkpointer, buffer manager, primary-key indexes, and the transaction
// manager that coordinates them.
package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// PageSize is the unit of all file IO.
const PageSize = 4096

// FileHandle wraps a page-addressed file. Reads may be served from a
// read-only memory mapping when one is open; writes always go through the
// file descriptor and invalidate the mapping lazily.
type FileHandle struct {
	path string
	file *os.File

	mu       sync.Mutex
	numPages uint64
	mapped   mmap.MMap
}

func OpenFileHandle(path string) (*FileHandle, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return &FileHandle{
		path:     path,
		file:     f,
		numPages: uint64(info.Size()+PageSize-1) / PageSize,
	}, nil
}

func (h *FileHandle) Path() string { return h.path }

func (h *FileHandle) NumPages() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.numPages
}

// AppendPage reserves the next page index.
func (h *FileHandle) AppendPage() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.numPages
	h.numPages++
	return idx
}

func (h *FileHandle) ReadPage(pageIdx uint64, buf []byte) error {
	h.mu.Lock()
	mapped := h.mapped
	h.mu.Unlock()
	if mapped != nil && (pageIdx+1)*PageSize <= uint64(len(mapped)) {
		copy(buf, mapped[pageIdx*PageSize:(pageIdx+1)*PageSize])
		return nil
	}
	n, err := h.file.ReadAt(buf[:PageSize], int64(pageIdx*PageSize))
	if err != nil && n != PageSize {
		return fmt.Errorf("failed to read page %d of %s: %w", pageIdx, h.path, err)
	}
	return nil
}

func (h *FileHandle) WritePage(pageIdx uint64, buf []byte) error {
	h.dropMapping()
	if _, err := h.file.WriteAt(buf[:PageSize], int64(pageIdx*PageSize)); err != nil {
		return fmt.Errorf("failed to write page %d of %s: %w", pageIdx, h.path, err)
	}
	h.mu.Lock()
	if pageIdx >= h.numPages {
		h.numPages = pageIdx + 1
	}
	h.mu.Unlock()
	return nil
}

// MapReadOnly opens a read-only memory mapping for scan-heavy access.
// Safe to call on an empty file: the mapping is simply skipped.
func (h *FileHandle) MapReadOnly() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mapped != nil || h.numPages == 0 {
		return nil
	}
	m, err := mmap.Map(h.file, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap %s: %w", h.path, err)
	}
	h.mapped = m
	return nil
}

func (h *FileHandle) dropMapping() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mapped != nil {
		h.mapped.Unmap()
		h.mapped = nil
	}
}

func (h *FileHandle) Sync() error {
	if err := h.file.Sync(); err != nil {
		return fmt.Errorf("failed to fsync %s: %w", h.path, err)
	}
	return nil
}

// Truncate resets the file to zero pages.
func (h *FileHandle) Truncate() error {
	h.dropMapping()
	if err := h.file.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", h.path, err)
	}
	h.mu.Lock()
	h.numPages = 0
	h.mu.Unlock()
	return nil
}

func (h *FileHandle) Close() error {
	h.dropMapping()
	return h.file.Close()
}
