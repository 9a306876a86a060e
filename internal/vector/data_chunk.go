package vector

// DataChunk is a rectangular batch: columns sharing one state.
type DataChunk struct {
	Vectors []*ValueVector
	State   *State
}

func NewDataChunk(numVectors int) *DataChunk {
	return &DataChunk{
		Vectors: make([]*ValueVector, 0, numVectors),
		State:   NewUnflatState(0),
	}
}

// Insert places a vector at vectorPos, adopting the chunk's state.
func (c *DataChunk) Insert(vectorPos int, v *ValueVector) {
	for len(c.Vectors) <= vectorPos {
		c.Vectors = append(c.Vectors, nil)
	}
	v.SetState(c.State)
	c.Vectors[vectorPos] = v
}

// Size is the chunk's selected row count.
func (c *DataChunk) Size() uint32 { return c.State.Sel.SelectedSize }

// SetSize resets the selection to unfiltered of the given size.
func (c *DataChunk) SetSize(size uint32) { c.State.Sel.SetToUnfiltered(size) }

// ResultSet is the evaluator's runtime input: a list of data chunks
// addressed by (chunkPos, vectorPos) pairs.
type ResultSet struct {
	Chunks []*DataChunk
}

func NewResultSet(chunks ...*DataChunk) *ResultSet {
	return &ResultSet{Chunks: chunks}
}

// Vector resolves a (chunk, vector) position pair.
func (rs *ResultSet) Vector(chunkPos, vectorPos int) *ValueVector {
	return rs.Chunks[chunkPos].Vectors[vectorPos]
}
