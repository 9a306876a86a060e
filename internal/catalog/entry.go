// Package catalog owns the schema: node tables, relationship tables, rel
// groups, indices, and macros. It provides bidirectional lookup by name and
// id and a byte-exact on-disk image.
//
// The catalog is read-copy-update: writers mutate a Clone and install it at
// commit; readers hold an immutable reference for the life of a transaction.
package catalog

import (
	"github.com/untoldecay/kuzugo/internal/types"
)

// EntryType tags the on-disk catalog entry union.
type EntryType uint8

const (
	EntryNodeTable EntryType = 1
	EntryRelTable  EntryType = 2
	EntryRelGroup  EntryType = 3
	EntryIndex     EntryType = 4
	EntryMacro     EntryType = 5
)

// Property is one property definition owned by a table entry.
type Property struct {
	Name string
	Type *types.LogicalType
	// DefaultValue backs the DEFAULT evaluate mode during COPY; it is the
	// literal NULL unless DDL said otherwise.
	DefaultValue types.Value
	ID           types.PropertyID
	ColumnID     types.ColumnID
	TableID      types.TableID
}

// TableEntry is the common shape of node, rel, and rel-group entries.
type TableEntry struct {
	Type           EntryType
	Name           string
	Comment        string
	ID             types.TableID
	NextPropertyID types.PropertyID
	NextColumnID   types.ColumnID
	Properties     []Property
}

func (e *TableEntry) GetProperty(name string) (*Property, bool) {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			return &e.Properties[i], true
		}
	}
	return nil, false
}

func (e *TableEntry) ContainsProperty(name string) bool {
	_, ok := e.GetProperty(name)
	return ok
}

// AddProperty appends a property definition, assigning the next dense
// property and column ids.
func (e *TableEntry) AddProperty(name string, t *types.LogicalType, defaultValue types.Value) *Property {
	p := Property{
		Name:         name,
		Type:         t,
		DefaultValue: defaultValue,
		ID:           e.NextPropertyID,
		ColumnID:     e.NextColumnID,
		TableID:      e.ID,
	}
	e.NextPropertyID++
	// SERIAL properties are not materialized, so they consume no column.
	if t.ID != types.TypeSerial {
		e.NextColumnID++
	}
	e.Properties = append(e.Properties, p)
	return &e.Properties[len(e.Properties)-1]
}

// DropProperty removes a property by name. Column ids of the survivors are
// left untouched so on-disk columns stay addressable.
func (e *TableEntry) DropProperty(name string) bool {
	for i := range e.Properties {
		if e.Properties[i].Name == name {
			e.Properties = append(e.Properties[:i], e.Properties[i+1:]...)
			return true
		}
	}
	return false
}

func (e *TableEntry) cloneBase() TableEntry {
	c := *e
	c.Properties = make([]Property, len(e.Properties))
	copy(c.Properties, e.Properties)
	return c
}

// NodeTableEntry is the catalog entry for a node table. Incident rel tables
// are tracked as bare ids to avoid owning pointers between entries.
type NodeTableEntry struct {
	TableEntry
	PrimaryKeyPropertyID types.PropertyID
	FwdRelTables         map[types.TableID]struct{}
	BwdRelTables         map[types.TableID]struct{}
}

func (e *NodeTableEntry) PrimaryKey() *Property {
	for i := range e.Properties {
		if e.Properties[i].ID == e.PrimaryKeyPropertyID {
			return &e.Properties[i]
		}
	}
	return nil
}

func (e *NodeTableEntry) clone() *NodeTableEntry {
	c := &NodeTableEntry{
		TableEntry:           e.cloneBase(),
		PrimaryKeyPropertyID: e.PrimaryKeyPropertyID,
		FwdRelTables:         make(map[types.TableID]struct{}, len(e.FwdRelTables)),
		BwdRelTables:         make(map[types.TableID]struct{}, len(e.BwdRelTables)),
	}
	for id := range e.FwdRelTables {
		c.FwdRelTables[id] = struct{}{}
	}
	for id := range e.BwdRelTables {
		c.BwdRelTables[id] = struct{}{}
	}
	return c
}

// RelTableEntry is the catalog entry for a relationship table. The first
// property is always the synthetic _id INT64 property.
type RelTableEntry struct {
	TableEntry
	SrcMultiplicity types.RelMultiplicity
	DstMultiplicity types.RelMultiplicity
	SrcTableID      types.TableID
	DstTableID      types.TableID
}

// IsSingleMultiplicity reports whether the bound node of the given
// direction may have at most one neighbor.
func (e *RelTableEntry) IsSingleMultiplicity(dir types.RelDirection) bool {
	if dir == types.DirectionFwd {
		return e.SrcMultiplicity == types.MultiplicityOne
	}
	return e.DstMultiplicity == types.MultiplicityOne
}

// BoundTableID returns the node table whose rows own lists in direction dir.
func (e *RelTableEntry) BoundTableID(dir types.RelDirection) types.TableID {
	if dir == types.DirectionFwd {
		return e.SrcTableID
	}
	return e.DstTableID
}

func (e *RelTableEntry) clone() *RelTableEntry {
	c := *e
	c.TableEntry = e.cloneBase()
	return &c
}

// RelGroupEntry bundles relationship tables sharing a label but differing
// in (src, dst) node-table pairs. Membership is immutable after creation.
type RelGroupEntry struct {
	TableEntry
	RelTableIDs []types.TableID
}

func (e *RelGroupEntry) clone() *RelGroupEntry {
	c := *e
	c.TableEntry = e.cloneBase()
	c.RelTableIDs = append([]types.TableID(nil), e.RelTableIDs...)
	return &c
}

// IndexEntry records a secondary index over a table. AuxInfo is opaque to
// the catalog; the owning index implementation encodes and decodes it.
type IndexEntry struct {
	TableID     types.TableID
	Name        string
	PropertyIDs []types.PropertyID
	AuxInfo     []byte
}

func (e *IndexEntry) clone() *IndexEntry {
	c := *e
	c.PropertyIDs = append([]types.PropertyID(nil), e.PropertyIDs...)
	c.AuxInfo = append([]byte(nil), e.AuxInfo...)
	return &c
}

// MacroEntry stores a scalar macro body by name.
type MacroEntry struct {
	Name string
	Body string
}
