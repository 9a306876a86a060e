package catalog

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/untoldecay/kuzugo/internal/types"
)

// Magic bytes and storage version of the on-disk catalog image. Bumping the
// version invalidates existing database files.
var magicBytes = [4]byte{'K', 'U', 'Z', 'U'}

const StorageVersion uint64 = 27

// Serializer writes the little-endian catalog image. Errors are sticky: the
// first write failure is reported once at the end.
type Serializer struct {
	w   io.Writer
	err error
}

func NewSerializer(w io.Writer) *Serializer { return &Serializer{w: w} }

func (s *Serializer) Err() error { return s.err }

func (s *Serializer) write(p []byte) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.Write(p)
}

func (s *Serializer) WriteU8(v uint8) { s.write([]byte{v}) }

func (s *Serializer) WriteU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	s.write(buf[:])
}

func (s *Serializer) WriteU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	s.write(buf[:])
}

func (s *Serializer) WriteI64(v int64) { s.WriteU64(uint64(v)) }

func (s *Serializer) WriteF64(v float64) {
	s.WriteU64(math.Float64bits(v))
}

func (s *Serializer) WriteBool(v bool) {
	if v {
		s.WriteU8(1)
	} else {
		s.WriteU8(0)
	}
}

// WriteString is u64 length + utf8 bytes.
func (s *Serializer) WriteString(v string) {
	s.WriteU64(uint64(len(v)))
	s.write([]byte(v))
}

func (s *Serializer) WriteBytes(v []byte) {
	s.WriteU64(uint64(len(v)))
	s.write(v)
}

// Deserializer reads the catalog image, validating lengths as it goes.
type Deserializer struct {
	r   io.Reader
	err error
}

func NewDeserializer(r io.Reader) *Deserializer { return &Deserializer{r: r} }

func (d *Deserializer) Err() error { return d.err }

func (d *Deserializer) read(p []byte) {
	if d.err != nil {
		return
	}
	_, d.err = io.ReadFull(d.r, p)
}

func (d *Deserializer) ReadU8() uint8 {
	var buf [1]byte
	d.read(buf[:])
	return buf[0]
}

func (d *Deserializer) ReadU32() uint32 {
	var buf [4]byte
	d.read(buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (d *Deserializer) ReadU64() uint64 {
	var buf [8]byte
	d.read(buf[:])
	return binary.LittleEndian.Uint64(buf[:])
}

func (d *Deserializer) ReadI64() int64 { return int64(d.ReadU64()) }

func (d *Deserializer) ReadF64() float64 { return math.Float64frombits(d.ReadU64()) }

func (d *Deserializer) ReadBool() bool { return d.ReadU8() != 0 }

func (d *Deserializer) ReadString() string {
	n := d.ReadU64()
	if d.err != nil {
		return ""
	}
	buf := make([]byte, n)
	d.read(buf)
	return string(buf)
}

func (d *Deserializer) ReadBytes() []byte {
	n := d.ReadU64()
	if d.err != nil {
		return nil
	}
	buf := make([]byte, n)
	d.read(buf)
	return buf
}

// SerializeType encodes a logical type recursively.
func SerializeType(s *Serializer, t *types.LogicalType) {
	s.WriteU8(uint8(t.ID))
	switch t.ID {
	case types.TypeVarList:
		SerializeType(s, t.Child)
	case types.TypeFixedList:
		SerializeType(s, t.Child)
		s.WriteU32(t.NumElements)
	case types.TypeStruct, types.TypeNode, types.TypeRel:
		s.WriteU64(uint64(len(t.Fields)))
		for _, f := range t.Fields {
			s.WriteString(f.Name)
			SerializeType(s, f.Type)
		}
	}
}

func DeserializeType(d *Deserializer) *types.LogicalType {
	t := &types.LogicalType{ID: types.LogicalTypeID(d.ReadU8())}
	switch t.ID {
	case types.TypeVarList:
		t.Child = DeserializeType(d)
	case types.TypeFixedList:
		t.Child = DeserializeType(d)
		t.NumElements = d.ReadU32()
	case types.TypeStruct, types.TypeNode, types.TypeRel:
		n := d.ReadU64()
		t.Fields = make([]types.StructField, 0, n)
		for i := uint64(0); i < n; i++ {
			name := d.ReadString()
			t.Fields = append(t.Fields, types.StructField{Name: name, Type: DeserializeType(d)})
		}
	}
	return t
}

// SerializeValue encodes a literal value: its type, null flag, and payload.
func SerializeValue(s *Serializer, v types.Value) {
	SerializeType(s, v.Type)
	s.WriteBool(v.IsNull)
	if v.IsNull {
		return
	}
	switch v.Type.ID {
	case types.TypeBool:
		s.WriteBool(v.BoolVal)
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial:
		s.WriteI64(v.Int64Val)
	case types.TypeDouble, types.TypeFloat:
		s.WriteF64(v.DoubleVal)
	case types.TypeString:
		s.WriteString(v.StringVal)
	case types.TypeDate:
		s.WriteU32(uint32(v.DateVal))
	case types.TypeTimestamp:
		s.WriteI64(int64(v.TimestampVal))
	case types.TypeInterval:
		s.WriteU32(uint32(v.IntervalVal.Months))
		s.WriteU32(uint32(v.IntervalVal.Days))
		s.WriteI64(v.IntervalVal.Micros)
	case types.TypeInternalID:
		s.WriteU64(uint64(v.IDVal.TableID))
		s.WriteU64(uint64(v.IDVal.Offset))
	case types.TypeVarList, types.TypeFixedList:
		s.WriteU64(uint64(len(v.ListVal)))
		for _, e := range v.ListVal {
			SerializeValue(s, e)
		}
	case types.TypeStruct, types.TypeNode, types.TypeRel:
		s.WriteU64(uint64(len(v.StructVal)))
		for _, e := range v.StructVal {
			SerializeValue(s, e)
		}
	}
}

func DeserializeValue(d *Deserializer) types.Value {
	t := DeserializeType(d)
	v := types.Value{Type: t, IsNull: d.ReadBool()}
	if v.IsNull {
		return v
	}
	switch t.ID {
	case types.TypeBool:
		v.BoolVal = d.ReadBool()
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial:
		v.Int64Val = d.ReadI64()
	case types.TypeDouble, types.TypeFloat:
		v.DoubleVal = d.ReadF64()
	case types.TypeString:
		v.StringVal = d.ReadString()
	case types.TypeDate:
		v.DateVal = types.Date(d.ReadU32())
	case types.TypeTimestamp:
		v.TimestampVal = types.Timestamp(d.ReadI64())
	case types.TypeInterval:
		v.IntervalVal.Months = int32(d.ReadU32())
		v.IntervalVal.Days = int32(d.ReadU32())
		v.IntervalVal.Micros = d.ReadI64()
	case types.TypeInternalID:
		v.IDVal.TableID = types.TableID(d.ReadU64())
		v.IDVal.Offset = types.Offset(d.ReadU64())
	case types.TypeVarList, types.TypeFixedList:
		n := d.ReadU64()
		v.ListVal = make([]types.Value, 0, n)
		for i := uint64(0); i < n; i++ {
			v.ListVal = append(v.ListVal, DeserializeValue(d))
		}
	case types.TypeStruct, types.TypeNode, types.TypeRel:
		n := d.ReadU64()
		v.StructVal = make([]types.Value, 0, n)
		for i := uint64(0); i < n; i++ {
			v.StructVal = append(v.StructVal, DeserializeValue(d))
		}
	}
	return v
}

func serializeTableIDSet(s *Serializer, set map[types.TableID]struct{}) {
	ids := make([]types.TableID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	s.WriteU64(uint64(len(ids)))
	for _, id := range ids {
		s.WriteU64(uint64(id))
	}
}

func deserializeTableIDSet(d *Deserializer) map[types.TableID]struct{} {
	n := d.ReadU64()
	set := make(map[types.TableID]struct{}, n)
	for i := uint64(0); i < n; i++ {
		set[types.TableID(d.ReadU64())] = struct{}{}
	}
	return set
}

func serializeEntryBase(s *Serializer, e *TableEntry) {
	s.WriteU8(uint8(e.Type))
	s.WriteU64(uint64(e.ID))
	s.WriteU64(uint64(e.NextPropertyID))
	s.WriteU64(uint64(e.NextColumnID))
	s.WriteString(e.Name)
	s.WriteString(e.Comment)
	s.WriteU64(uint64(len(e.Properties)))
	for _, p := range e.Properties {
		s.WriteU64(uint64(p.ID))
		s.WriteU64(uint64(p.ColumnID))
		s.WriteString(p.Name)
		SerializeType(s, p.Type)
		SerializeValue(s, p.DefaultValue)
	}
}

func deserializeEntryBase(d *Deserializer, entryType EntryType) TableEntry {
	e := TableEntry{Type: entryType}
	e.ID = types.TableID(d.ReadU64())
	e.NextPropertyID = types.PropertyID(d.ReadU64())
	e.NextColumnID = types.ColumnID(d.ReadU64())
	e.Name = d.ReadString()
	e.Comment = d.ReadString()
	n := d.ReadU64()
	e.Properties = make([]Property, 0, n)
	for i := uint64(0); i < n; i++ {
		p := Property{TableID: e.ID}
		p.ID = types.PropertyID(d.ReadU64())
		p.ColumnID = types.ColumnID(d.ReadU64())
		p.Name = d.ReadString()
		p.Type = DeserializeType(d)
		p.DefaultValue = DeserializeValue(d)
		e.Properties = append(e.Properties, p)
	}
	return e
}

// Serialize writes the full catalog image under the canonical entry
// ordering: table entries ascending by id, index entries by (table, name),
// macros by name.
func (c *Catalog) Serialize(w io.Writer) error {
	s := NewSerializer(w)
	s.write(magicBytes[:])
	s.WriteU64(StorageVersion)

	tableIDs := make([]types.TableID, 0, len(c.tables))
	for id := range c.tables {
		tableIDs = append(tableIDs, id)
	}
	sort.Slice(tableIDs, func(i, j int) bool { return tableIDs[i] < tableIDs[j] })

	type indexKey struct {
		tableID types.TableID
		name    string
	}
	var indexKeys []indexKey
	for tid, m := range c.indexes {
		for name := range m {
			indexKeys = append(indexKeys, indexKey{tid, name})
		}
	}
	sort.Slice(indexKeys, func(i, j int) bool {
		if indexKeys[i].tableID != indexKeys[j].tableID {
			return indexKeys[i].tableID < indexKeys[j].tableID
		}
		return indexKeys[i].name < indexKeys[j].name
	})

	s.WriteU64(uint64(len(tableIDs) + len(indexKeys)))
	for _, id := range tableIDs {
		switch e := c.tables[id].(type) {
		case *NodeTableEntry:
			serializeEntryBase(s, &e.TableEntry)
			s.WriteU64(uint64(e.PrimaryKeyPropertyID))
			serializeTableIDSet(s, e.FwdRelTables)
			serializeTableIDSet(s, e.BwdRelTables)
		case *RelTableEntry:
			serializeEntryBase(s, &e.TableEntry)
			s.WriteU8(uint8(e.SrcMultiplicity))
			s.WriteU8(uint8(e.DstMultiplicity))
			s.WriteU64(uint64(e.SrcTableID))
			s.WriteU64(uint64(e.DstTableID))
		case *RelGroupEntry:
			serializeEntryBase(s, &e.TableEntry)
			s.WriteU64(uint64(len(e.RelTableIDs)))
			for _, child := range e.RelTableIDs {
				s.WriteU64(uint64(child))
			}
		}
	}
	for _, k := range indexKeys {
		idx := c.indexes[k.tableID][k.name]
		s.WriteU8(uint8(EntryIndex))
		s.WriteU64(uint64(idx.TableID))
		s.WriteString(idx.Name)
		s.WriteU64(uint64(len(idx.PropertyIDs)))
		for _, pid := range idx.PropertyIDs {
			s.WriteU64(uint64(pid))
		}
		s.WriteBytes(idx.AuxInfo)
	}

	s.WriteU64(uint64(c.nextTableID))

	macroNames := make([]string, 0, len(c.macros))
	for name := range c.macros {
		macroNames = append(macroNames, name)
	}
	sort.Strings(macroNames)
	s.WriteU64(uint64(len(macroNames)))
	for _, name := range macroNames {
		s.WriteString(name)
		s.WriteString(c.macros[name].Body)
	}
	return s.Err()
}

// Deserialize reads a catalog image, validating the magic and storage
// version first.
func Deserialize(r io.Reader) (*Catalog, error) {
	d := NewDeserializer(r)
	var magic [4]byte
	d.read(magic[:])
	if d.err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %w", d.err)
	}
	if magic != magicBytes {
		return nil, types.NewRuntimeError("not a Kuzu directory")
	}
	version := d.ReadU64()
	if version != StorageVersion {
		return nil, types.NewRuntimeError(
			"storage version mismatch: expected %d, found %d", StorageVersion, version)
	}

	c := New()
	numEntries := d.ReadU64()
	for i := uint64(0); i < numEntries && d.err == nil; i++ {
		entryType := EntryType(d.ReadU8())
		switch entryType {
		case EntryNodeTable:
			e := &NodeTableEntry{TableEntry: deserializeEntryBase(d, entryType)}
			e.PrimaryKeyPropertyID = types.PropertyID(d.ReadU64())
			e.FwdRelTables = deserializeTableIDSet(d)
			e.BwdRelTables = deserializeTableIDSet(d)
			c.tables[e.ID] = e
			c.nameToID[e.Name] = e.ID
		case EntryRelTable:
			e := &RelTableEntry{TableEntry: deserializeEntryBase(d, entryType)}
			e.SrcMultiplicity = types.RelMultiplicity(d.ReadU8())
			e.DstMultiplicity = types.RelMultiplicity(d.ReadU8())
			e.SrcTableID = types.TableID(d.ReadU64())
			e.DstTableID = types.TableID(d.ReadU64())
			c.tables[e.ID] = e
			c.nameToID[e.Name] = e.ID
		case EntryRelGroup:
			e := &RelGroupEntry{TableEntry: deserializeEntryBase(d, entryType)}
			n := d.ReadU64()
			e.RelTableIDs = make([]types.TableID, 0, n)
			for j := uint64(0); j < n; j++ {
				e.RelTableIDs = append(e.RelTableIDs, types.TableID(d.ReadU64()))
			}
			c.tables[e.ID] = e
			c.nameToID[e.Name] = e.ID
		case EntryIndex:
			idx := &IndexEntry{}
			idx.TableID = types.TableID(d.ReadU64())
			idx.Name = d.ReadString()
			n := d.ReadU64()
			idx.PropertyIDs = make([]types.PropertyID, 0, n)
			for j := uint64(0); j < n; j++ {
				idx.PropertyIDs = append(idx.PropertyIDs, types.PropertyID(d.ReadU64()))
			}
			idx.AuxInfo = d.ReadBytes()
			if err := c.CreateIndex(idx); err != nil {
				return nil, err
			}
		default:
			return nil, types.NewRuntimeError("unknown catalog entry type %d", entryType)
		}
	}
	c.nextTableID = types.TableID(d.ReadU64())

	numMacros := d.ReadU64()
	for i := uint64(0); i < numMacros && d.err == nil; i++ {
		name := d.ReadString()
		body := d.ReadString()
		c.macros[name] = &MacroEntry{Name: name, Body: body}
	}
	if d.err != nil {
		return nil, fmt.Errorf("failed to deserialize catalog: %w", d.err)
	}
	return c, nil
}
