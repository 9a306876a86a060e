package storage

import (
	"sync/atomic"

	"github.com/untoldecay/kuzugo/internal/types"
)

// ListChunkSize is the CSR chunking unit: page lists grow per chunk of
// this many bound nodes.
const ListChunkSize = 512

// ListMetadataBuilder accumulates per-node list sizes in the counting
// phase of a rel copy, then freezes them into CSR offsets. Size counters
// are atomic so populate tasks cooperate without locks; placement in the
// second phase walks each node's slot back-to-front, which after counting
// leaves a dense list.
type ListMetadataBuilder struct {
	numNodes uint64
	// sizes is chunked at ListChunkSize nodes; chunks allocate on demand.
	chunks []*listChunk

	csrOffsets []uint64
	total      uint64
}

type listChunk struct {
	sizes [ListChunkSize]atomic.Uint64
}

func NewListMetadataBuilder(numNodes uint64) *ListMetadataBuilder {
	numChunks := (numNodes + ListChunkSize - 1) / ListChunkSize
	return &ListMetadataBuilder{
		numNodes: numNodes,
		chunks:   make([]*listChunk, numChunks),
	}
}

func (b *ListMetadataBuilder) chunkFor(offset types.Offset) *listChunk {
	i := uint64(offset) / ListChunkSize
	if b.chunks[i] == nil {
		b.chunks[i] = &listChunk{}
	}
	return b.chunks[i]
}

// IncrementSize counts one relationship bound at offset. Chunk allocation
// races are resolved by the caller pre-touching chunks; populate tasks
// touch disjoint offsets only through atomics.
func (b *ListMetadataBuilder) IncrementSize(offset types.Offset) {
	b.chunkFor(offset).sizes[uint64(offset)%ListChunkSize].Add(1)
}

// PreTouch allocates every chunk so concurrent IncrementSize calls never
// race on the chunk slice.
func (b *ListMetadataBuilder) PreTouch() {
	for i := range b.chunks {
		if b.chunks[i] == nil {
			b.chunks[i] = &listChunk{}
		}
	}
}

func (b *ListMetadataBuilder) sizeAt(offset types.Offset) uint64 {
	i := uint64(offset) / ListChunkSize
	if b.chunks[i] == nil {
		return 0
	}
	return b.chunks[i].sizes[uint64(offset)%ListChunkSize].Load()
}

// BuildOffsets computes CSR offsets from the collected sizes. After this
// the builder switches to placement mode.
func (b *ListMetadataBuilder) BuildOffsets() []uint64 {
	b.csrOffsets = make([]uint64, b.numNodes+1)
	var total uint64
	for i := uint64(0); i < b.numNodes; i++ {
		b.csrOffsets[i] = total
		total += b.sizeAt(types.Offset(i))
	}
	b.csrOffsets[b.numNodes] = total
	b.total = total
	return b.csrOffsets
}

// TotalRels is valid after BuildOffsets.
func (b *ListMetadataBuilder) TotalRels() uint64 { return b.total }

// CSROffsets exposes the frozen offsets; placement does not mutate them.
func (b *ListMetadataBuilder) CSROffsets() []uint64 { return b.csrOffsets }

// DecrementListSize hands out the next position inside a node's slot,
// back to front: posInList = csrOffset + (--size).
func (b *ListMetadataBuilder) DecrementListSize(offset types.Offset) uint64 {
	remaining := b.chunkFor(offset).sizes[uint64(offset)%ListChunkSize].Add(^uint64(0))
	return b.csrOffsets[offset] + remaining
}
