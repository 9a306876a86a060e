package storage

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// TableStatistics tracks per-table row counts with atomic counters; the
// coarse mutex covers schema changes (table add/remove) only.
type TableStatistics struct {
	mu     sync.Mutex
	counts map[types.TableID]*atomic.Uint64
	dirty  atomic.Bool
}

func NewTableStatistics() *TableStatistics {
	return &TableStatistics{counts: make(map[types.TableID]*atomic.Uint64)}
}

func (s *TableStatistics) counter(id types.TableID) *atomic.Uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[id]
	if !ok {
		c = &atomic.Uint64{}
		s.counts[id] = c
	}
	return c
}

func (s *TableStatistics) SetNumRows(id types.TableID, n uint64) {
	s.counter(id).Store(n)
	s.dirty.Store(true)
}

func (s *TableStatistics) AddNumRows(id types.TableID, delta uint64) {
	s.counter(id).Add(delta)
	s.dirty.Store(true)
}

func (s *TableStatistics) NumRows(id types.TableID) uint64 {
	return s.counter(id).Load()
}

func (s *TableStatistics) RemoveTable(id types.TableID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, id)
	s.dirty.Store(true)
}

// Dirty reports whether a snapshot write is pending and clears the flag.
func (s *TableStatistics) Dirty() bool { return s.dirty.Swap(false) }

func (s *TableStatistics) Serialize(ser *catalog.Serializer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.TableID, 0, len(s.counts))
	for id := range s.counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	ser.WriteU64(uint64(len(ids)))
	for _, id := range ids {
		ser.WriteU64(uint64(id))
		ser.WriteU64(s.counts[id].Load())
	}
}

func DeserializeTableStatistics(d *catalog.Deserializer) *TableStatistics {
	s := NewTableStatistics()
	n := d.ReadU64()
	for i := uint64(0); i < n; i++ {
		id := types.TableID(d.ReadU64())
		c := &atomic.Uint64{}
		c.Store(d.ReadU64())
		s.counts[id] = c
	}
	return s
}
