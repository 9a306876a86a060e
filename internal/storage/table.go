package storage

import (
	"sort"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Table is the storage-side view of a catalog table entry.
type Table interface {
	TableID() types.TableID
	NumRows() uint64
	serialize(s *catalog.Serializer)
}

// NodeTable owns one primary-key index and N column stores addressed by
// column id.
type NodeTable struct {
	id      types.TableID
	numRows uint64
	columns map[types.ColumnID]*ColumnChunk
	pkIndex *PrimaryKeyIndex

	// staged holds a pending bulk load; it replaces the live content at
	// commit and is discarded on rollback.
	staged *NodeTable
}

func NewNodeTable(entry *catalog.NodeTableEntry) *NodeTable {
	t := &NodeTable{
		id:      entry.ID,
		columns: make(map[types.ColumnID]*ColumnChunk),
	}
	keyType := entry.PrimaryKey().Type.ID
	if keyType == types.TypeSerial {
		keyType = types.TypeInt64
	}
	t.pkIndex = NewPrimaryKeyIndex(keyType, 0)
	for i := range entry.Properties {
		p := &entry.Properties[i]
		if p.Type.ID == types.TypeSerial {
			continue
		}
		t.columns[p.ColumnID] = NewColumnChunk(p.Type, 0)
	}
	return t
}

func (t *NodeTable) TableID() types.TableID { return t.id }
func (t *NodeTable) NumRows() uint64        { return t.numRows }

func (t *NodeTable) Column(id types.ColumnID) *ColumnChunk { return t.columns[id] }

func (t *NodeTable) PKIndex() *PrimaryKeyIndex { return t.pkIndex }

// Stage installs a pending bulk-load image.
func (t *NodeTable) Stage(staged *NodeTable) { t.staged = staged }

func (t *NodeTable) HasStaged() bool { return t.staged != nil }

// CommitStaged applies the in-memory buffer as the new live content.
func (t *NodeTable) CommitStaged() {
	if t.staged == nil {
		return
	}
	t.numRows = t.staged.numRows
	t.columns = t.staged.columns
	t.pkIndex = t.staged.pkIndex
	t.staged = nil
}

// RollbackStaged drops the pending buffer; the live content was never
// touched.
func (t *NodeTable) RollbackStaged() { t.staged = nil }

// SetContent installs bulk-load output directly; the copier uses this on
// its staged twin.
func (t *NodeTable) SetContent(numRows uint64, columns map[types.ColumnID]*ColumnChunk,
	pkIndex *PrimaryKeyIndex) {
	t.numRows = numRows
	t.columns = columns
	t.pkIndex = pkIndex
}

func (t *NodeTable) serialize(s *catalog.Serializer) {
	s.WriteU8(0)
	s.WriteU64(uint64(t.id))
	s.WriteU64(t.numRows)
	ids := make([]types.ColumnID, 0, len(t.columns))
	for id := range t.columns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.WriteU64(uint64(len(ids)))
	for _, id := range ids {
		s.WriteU64(uint64(id))
		t.columns[id].Serialize(s)
	}
	t.pkIndex.Serialize(s)
}

func deserializeNodeTable(d *catalog.Deserializer) *NodeTable {
	t := &NodeTable{columns: make(map[types.ColumnID]*ColumnChunk)}
	t.id = types.TableID(d.ReadU64())
	t.numRows = d.ReadU64()
	n := d.ReadU64()
	for i := uint64(0); i < n; i++ {
		id := types.ColumnID(d.ReadU64())
		t.columns[id] = DeserializeColumnChunk(d)
	}
	t.pkIndex = DeserializePrimaryKeyIndex(d)
	return t
}

// DirectedRelData is one direction of a rel table: either a column store
// (single multiplicity, one neighbor slot per bound node) or a CSR list
// store (multi multiplicity).
type DirectedRelData struct {
	IsColumn bool

	// Column layout: one slot per bound-node offset; a null slot means no
	// neighbor. Columns[0] is the neighbor id by convention, matching the
	// reserved column 0 of rel tables.
	Columns map[types.ColumnID]*ColumnChunk

	// CSR layout: per bound-node offsets into dense payload columns.
	CSROffsets []uint64
	CSRData    map[types.ColumnID]*ColumnChunk
}

func NewDirectedRelData(isColumn bool) *DirectedRelData {
	d := &DirectedRelData{IsColumn: isColumn}
	if isColumn {
		d.Columns = make(map[types.ColumnID]*ColumnChunk)
	} else {
		d.CSRData = make(map[types.ColumnID]*ColumnChunk)
	}
	return d
}

// ListBounds returns the CSR slice of one bound node.
func (d *DirectedRelData) ListBounds(offset types.Offset) (start, end uint64) {
	if int(offset)+1 >= len(d.CSROffsets) {
		return 0, 0
	}
	return d.CSROffsets[offset], d.CSROffsets[offset+1]
}

func (d *DirectedRelData) serialize(s *catalog.Serializer) {
	s.WriteBool(d.IsColumn)
	serializeColumnMap := func(m map[types.ColumnID]*ColumnChunk) {
		ids := make([]types.ColumnID, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		s.WriteU64(uint64(len(ids)))
		for _, id := range ids {
			s.WriteU64(uint64(id))
			m[id].Serialize(s)
		}
	}
	if d.IsColumn {
		serializeColumnMap(d.Columns)
		return
	}
	s.WriteU64(uint64(len(d.CSROffsets)))
	for _, o := range d.CSROffsets {
		s.WriteU64(o)
	}
	serializeColumnMap(d.CSRData)
}

func deserializeDirectedRelData(d *catalog.Deserializer) *DirectedRelData {
	out := NewDirectedRelData(d.ReadBool())
	readColumnMap := func() map[types.ColumnID]*ColumnChunk {
		n := d.ReadU64()
		m := make(map[types.ColumnID]*ColumnChunk, n)
		for i := uint64(0); i < n; i++ {
			id := types.ColumnID(d.ReadU64())
			m[id] = DeserializeColumnChunk(d)
		}
		return m
	}
	if out.IsColumn {
		out.Columns = readColumnMap()
		return out
	}
	n := d.ReadU64()
	out.CSROffsets = make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		out.CSROffsets = append(out.CSROffsets, d.ReadU64())
	}
	out.CSRData = readColumnMap()
	return out
}

// RelTable owns two directed data containers.
type RelTable struct {
	id      types.TableID
	numRows uint64
	Fwd     *DirectedRelData
	Bwd     *DirectedRelData

	staged *RelTable
}

func NewRelTable(entry *catalog.RelTableEntry) *RelTable {
	return &RelTable{
		id:  entry.ID,
		Fwd: NewDirectedRelData(entry.IsSingleMultiplicity(types.DirectionFwd)),
		Bwd: NewDirectedRelData(entry.IsSingleMultiplicity(types.DirectionBwd)),
	}
}

func (t *RelTable) TableID() types.TableID { return t.id }
func (t *RelTable) NumRows() uint64        { return t.numRows }

func (t *RelTable) Direction(dir types.RelDirection) *DirectedRelData {
	if dir == types.DirectionFwd {
		return t.Fwd
	}
	return t.Bwd
}

func (t *RelTable) Stage(staged *RelTable) { t.staged = staged }

func (t *RelTable) HasStaged() bool { return t.staged != nil }

func (t *RelTable) CommitStaged() {
	if t.staged == nil {
		return
	}
	t.numRows = t.staged.numRows
	t.Fwd = t.staged.Fwd
	t.Bwd = t.staged.Bwd
	t.staged = nil
}

func (t *RelTable) RollbackStaged() { t.staged = nil }

func (t *RelTable) SetContent(numRows uint64, fwd, bwd *DirectedRelData) {
	t.numRows = numRows
	t.Fwd = fwd
	t.Bwd = bwd
}

func (t *RelTable) serialize(s *catalog.Serializer) {
	s.WriteU8(1)
	s.WriteU64(uint64(t.id))
	s.WriteU64(t.numRows)
	t.Fwd.serialize(s)
	t.Bwd.serialize(s)
}

func deserializeRelTable(d *catalog.Deserializer) *RelTable {
	t := &RelTable{}
	t.id = types.TableID(d.ReadU64())
	t.numRows = d.ReadU64()
	t.Fwd = deserializeDirectedRelData(d)
	t.Bwd = deserializeDirectedRelData(d)
	return t
}
