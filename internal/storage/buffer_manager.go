package storage

import (
	"container/list"
	"sync"

	"github.com/untoldecay/kuzugo/internal/types"
)

type pageKey struct {
	handle  *FileHandle
	pageIdx uint64
}

type frame struct {
	key     pageKey
	data    []byte
	pins    int
	dirty   bool
	lruElem *list.Element
}

// BufferManager caches file pages up to a byte budget. Pages are pinned
// with RAII-scoped acquisitions: Pin returns the page bytes plus a release
// function, and every exit path must call it. Eviction is LRU with pinned
// frames excluded.
type BufferManager struct {
	mu       sync.Mutex
	capacity uint64
	used     uint64
	frames   map[pageKey]*frame
	lru      *list.List // unpinned frames, front = coldest
}

func NewBufferManager(poolSize uint64) *BufferManager {
	if poolSize < PageSize {
		poolSize = PageSize
	}
	return &BufferManager{
		capacity: poolSize,
		frames:   make(map[pageKey]*frame),
		lru:      list.New(),
	}
}

// Pin loads a page and holds it resident until release is called.
func (bm *BufferManager) Pin(h *FileHandle, pageIdx uint64) (data []byte, release func(), err error) {
	key := pageKey{h, pageIdx}
	bm.mu.Lock()
	f, ok := bm.frames[key]
	if ok {
		if f.pins == 0 && f.lruElem != nil {
			bm.lru.Remove(f.lruElem)
			f.lruElem = nil
		}
		f.pins++
		bm.mu.Unlock()
		return f.data, bm.releaseFunc(f), nil
	}
	if err := bm.evictUntilLocked(PageSize); err != nil {
		bm.mu.Unlock()
		return nil, nil, err
	}
	f = &frame{key: key, data: make([]byte, PageSize), pins: 1}
	bm.frames[key] = f
	bm.used += PageSize
	bm.mu.Unlock()

	if err := h.ReadPage(pageIdx, f.data); err != nil {
		bm.mu.Lock()
		delete(bm.frames, key)
		bm.used -= PageSize
		bm.mu.Unlock()
		return nil, nil, err
	}
	return f.data, bm.releaseFunc(f), nil
}

func (bm *BufferManager) releaseFunc(f *frame) func() {
	released := false
	return func() {
		bm.mu.Lock()
		defer bm.mu.Unlock()
		if released {
			return
		}
		released = true
		f.pins--
		if f.pins == 0 {
			f.lruElem = bm.lru.PushBack(f)
		}
	}
}

// MarkDirty flags a pinned page so eviction writes it back first.
func (bm *BufferManager) MarkDirty(h *FileHandle, pageIdx uint64) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if f, ok := bm.frames[pageKey{h, pageIdx}]; ok {
		f.dirty = true
	}
}

// evictUntilLocked frees room for need bytes, skipping pinned frames.
func (bm *BufferManager) evictUntilLocked(need uint64) error {
	for bm.used+need > bm.capacity {
		elem := bm.lru.Front()
		if elem == nil {
			return types.NewRuntimeError(
				"buffer pool is full: all %d bytes are pinned", bm.capacity)
		}
		victim := elem.Value.(*frame)
		bm.lru.Remove(elem)
		victim.lruElem = nil
		if victim.dirty {
			if err := victim.key.handle.WritePage(victim.key.pageIdx, victim.data); err != nil {
				return err
			}
		}
		delete(bm.frames, victim.key)
		bm.used -= PageSize
	}
	return nil
}

// EvictFilePages drops every cached page of a handle, discarding dirty
// state. Used when a file is truncated during recovery.
func (bm *BufferManager) EvictFilePages(h *FileHandle) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	for key, f := range bm.frames {
		if key.handle != h {
			continue
		}
		if f.lruElem != nil {
			bm.lru.Remove(f.lruElem)
		}
		delete(bm.frames, key)
		bm.used -= PageSize
	}
}

// FlushDirty writes back every dirty unpinned page of a handle.
func (bm *BufferManager) FlushDirty(h *FileHandle) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	for key, f := range bm.frames {
		if key.handle != h || !f.dirty {
			continue
		}
		if err := h.WritePage(key.pageIdx, f.data); err != nil {
			return err
		}
		f.dirty = false
	}
	return nil
}
