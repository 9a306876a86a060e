package storage

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// PrimaryKeyIndex is the hash index mapping a primary-key value to the
// owning table's internal offset. Lookup is O(1) amortized. An internal
// read-write lock serializes writers; bulk builders take the write lock
// once per morsel batch via InsertBatch.
type PrimaryKeyIndex struct {
	mu      sync.RWMutex
	keyType types.LogicalTypeID
	buckets [][]pkSlot
	count   uint64
}

type pkSlot struct {
	hash   uint64
	intKey int64
	strKey string
	offset types.Offset
}

const pkInitialBuckets = 1 << 10

// NewPrimaryKeyIndex sizes the bucket table for the expected row count.
func NewPrimaryKeyIndex(keyType types.LogicalTypeID, expectedRows uint64) *PrimaryKeyIndex {
	n := uint64(pkInitialBuckets)
	for n < expectedRows {
		n <<= 1
	}
	return &PrimaryKeyIndex{
		keyType: keyType,
		buckets: make([][]pkSlot, n),
	}
}

func (idx *PrimaryKeyIndex) KeyType() types.LogicalTypeID { return idx.keyType }

func hashInt(k int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	return xxhash.Sum64(buf[:])
}

func hashStr(k string) uint64 { return xxhash.Sum64String(k) }

func (idx *PrimaryKeyIndex) bucketOf(h uint64) uint64 {
	return h & uint64(len(idx.buckets)-1)
}

func (idx *PrimaryKeyIndex) growLocked() {
	if idx.count < uint64(len(idx.buckets))*2 {
		return
	}
	old := idx.buckets
	idx.buckets = make([][]pkSlot, len(old)*2)
	for _, bucket := range old {
		for _, s := range bucket {
			b := idx.bucketOf(s.hash)
			idx.buckets[b] = append(idx.buckets[b], s)
		}
	}
}

func (idx *PrimaryKeyIndex) insertLocked(s pkSlot) bool {
	b := idx.bucketOf(s.hash)
	for _, existing := range idx.buckets[b] {
		if existing.hash != s.hash {
			continue
		}
		if idx.keyType == types.TypeString {
			if existing.strKey == s.strKey {
				return false
			}
		} else if existing.intKey == s.intKey {
			return false
		}
	}
	idx.buckets[b] = append(idx.buckets[b], s)
	idx.count++
	idx.growLocked()
	return true
}

// InsertInt adds an INT64 key. Returns false on duplicate.
func (idx *PrimaryKeyIndex) InsertInt(key int64, offset types.Offset) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.insertLocked(pkSlot{hash: hashInt(key), intKey: key, offset: offset})
}

// InsertStr adds a STRING key. Returns false on duplicate.
func (idx *PrimaryKeyIndex) InsertStr(key string, offset types.Offset) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.insertLocked(pkSlot{hash: hashStr(key), strKey: key, offset: offset})
}

// InsertBatch adds a batch under one lock acquisition. The returned index
// is the position of the first duplicate, or -1 when all inserted.
func (idx *PrimaryKeyIndex) InsertBatch(keys []types.Value, startOffset types.Offset) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, k := range keys {
		var s pkSlot
		if idx.keyType == types.TypeString {
			s = pkSlot{hash: hashStr(k.StringVal), strKey: k.StringVal}
		} else {
			s = pkSlot{hash: hashInt(k.Int64Val), intKey: k.Int64Val}
		}
		s.offset = startOffset + types.Offset(i)
		if !idx.insertLocked(s) {
			return i
		}
	}
	return -1
}

func (idx *PrimaryKeyIndex) LookupInt(key int64) (types.Offset, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h := hashInt(key)
	for _, s := range idx.buckets[idx.bucketOf(h)] {
		if s.hash == h && s.intKey == key {
			return s.offset, true
		}
	}
	return types.InvalidOffset, false
}

func (idx *PrimaryKeyIndex) LookupStr(key string) (types.Offset, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h := hashStr(key)
	for _, s := range idx.buckets[idx.bucketOf(h)] {
		if s.hash == h && s.strKey == key {
			return s.offset, true
		}
	}
	return types.InvalidOffset, false
}

// Lookup dispatches on the boxed key's type.
func (idx *PrimaryKeyIndex) Lookup(key types.Value) (types.Offset, bool) {
	if key.IsNull {
		return types.InvalidOffset, false
	}
	if idx.keyType == types.TypeString {
		return idx.LookupStr(key.StringVal)
	}
	return idx.LookupInt(key.Int64Val)
}

func (idx *PrimaryKeyIndex) Count() uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// Serialize writes the index image: key type, count, then (key, offset)
// pairs bucket by bucket.
func (idx *PrimaryKeyIndex) Serialize(s *catalog.Serializer) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s.WriteU8(uint8(idx.keyType))
	s.WriteU64(idx.count)
	for _, bucket := range idx.buckets {
		for _, slot := range bucket {
			if idx.keyType == types.TypeString {
				s.WriteString(slot.strKey)
			} else {
				s.WriteI64(slot.intKey)
			}
			s.WriteU64(uint64(slot.offset))
		}
	}
}

// DeserializePrimaryKeyIndex rebuilds an index from its image.
func DeserializePrimaryKeyIndex(d *catalog.Deserializer) *PrimaryKeyIndex {
	keyType := types.LogicalTypeID(d.ReadU8())
	count := d.ReadU64()
	idx := NewPrimaryKeyIndex(keyType, count)
	for i := uint64(0); i < count; i++ {
		var s pkSlot
		if keyType == types.TypeString {
			s.strKey = d.ReadString()
			s.hash = hashStr(s.strKey)
		} else {
			s.intKey = d.ReadI64()
			s.hash = hashInt(s.intKey)
		}
		s.offset = types.Offset(d.ReadU64())
		b := idx.bucketOf(s.hash)
		idx.buckets[b] = append(idx.buckets[b], s)
		idx.count++
		idx.growLocked()
	}
	return idx
}
