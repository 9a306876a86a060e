package storage

import (
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/types"
)

// ColumnChunk is one in-memory column. Values are stored boxed; flushing
// serializes them into page-aligned runs of the data file.
type ColumnChunk struct {
	Type   *types.LogicalType
	values []types.Value
}

func NewColumnChunk(t *types.LogicalType, capacity uint64) *ColumnChunk {
	return &ColumnChunk{Type: t, values: make([]types.Value, 0, capacity)}
}

func (c *ColumnChunk) NumValues() uint64 { return uint64(len(c.values)) }

func (c *ColumnChunk) Append(v types.Value) { c.values = append(c.values, v) }

// SetValue writes at an absolute offset, growing with nulls as needed.
func (c *ColumnChunk) SetValue(offset types.Offset, v types.Value) {
	for uint64(len(c.values)) <= uint64(offset) {
		c.values = append(c.values, types.NewNullValue(c.Type))
	}
	c.values[offset] = v
}

func (c *ColumnChunk) Value(offset types.Offset) types.Value {
	if uint64(offset) >= uint64(len(c.values)) {
		return types.NewNullValue(c.Type)
	}
	return c.values[offset]
}

func (c *ColumnChunk) IsNull(offset types.Offset) bool {
	return c.Value(offset).IsNull
}

// Resize pads or truncates to exactly n values.
func (c *ColumnChunk) Resize(n uint64) {
	for uint64(len(c.values)) < n {
		c.values = append(c.values, types.NewNullValue(c.Type))
	}
	c.values = c.values[:n]
}

func (c *ColumnChunk) Serialize(s *catalog.Serializer) {
	catalog.SerializeType(s, c.Type)
	s.WriteU64(uint64(len(c.values)))
	for _, v := range c.values {
		catalog.SerializeValue(s, v)
	}
}

func DeserializeColumnChunk(d *catalog.Deserializer) *ColumnChunk {
	t := catalog.DeserializeType(d)
	n := d.ReadU64()
	c := NewColumnChunk(t, n)
	for i := uint64(0); i < n; i++ {
		c.values = append(c.values, catalog.DeserializeValue(d))
	}
	return c
}
