package catalog

import (
	"fmt"
	"sort"

	"github.com/untoldecay/kuzugo/internal/types"
)

// PropertyInfo describes one property in a create-table request.
type PropertyInfo struct {
	Name         string
	Type         *types.LogicalType
	DefaultValue types.Value
}

// NodeTableInfo is the input to CreateNodeTable.
type NodeTableInfo struct {
	Name           string
	Properties     []PropertyInfo
	PrimaryKeyName string
}

// RelTableInfo is the input to CreateRelTable.
type RelTableInfo struct {
	Name            string
	SrcTableID      types.TableID
	DstTableID      types.TableID
	SrcMultiplicity types.RelMultiplicity
	DstMultiplicity types.RelMultiplicity
	Properties      []PropertyInfo
}

// RelGroupInfo is the input to CreateRelGroup. Each pair creates one child
// rel table named <group>_<srcName>_<dstName>.
type RelGroupInfo struct {
	Name            string
	SrcDstPairs     [][2]types.TableID
	SrcMultiplicity types.RelMultiplicity
	DstMultiplicity types.RelMultiplicity
	Properties      []PropertyInfo
}

// Catalog is the schema root. All mutation goes through a writer's clone;
// the methods themselves do not lock.
type Catalog struct {
	tables      map[types.TableID]any // *NodeTableEntry | *RelTableEntry | *RelGroupEntry
	nameToID    map[string]types.TableID
	indexes     map[types.TableID]map[string]*IndexEntry
	macros      map[string]*MacroEntry
	nextTableID types.TableID
}

func New() *Catalog {
	return &Catalog{
		tables:   make(map[types.TableID]any),
		nameToID: make(map[string]types.TableID),
		indexes:  make(map[types.TableID]map[string]*IndexEntry),
		macros:   make(map[string]*MacroEntry),
	}
}

// Clone deep-copies the catalog for a read-copy-update writer.
func (c *Catalog) Clone() *Catalog {
	n := New()
	n.nextTableID = c.nextTableID
	for id, e := range c.tables {
		switch v := e.(type) {
		case *NodeTableEntry:
			n.tables[id] = v.clone()
		case *RelTableEntry:
			n.tables[id] = v.clone()
		case *RelGroupEntry:
			n.tables[id] = v.clone()
		}
	}
	for name, id := range c.nameToID {
		n.nameToID[name] = id
	}
	for tid, m := range c.indexes {
		nm := make(map[string]*IndexEntry, len(m))
		for name, idx := range m {
			nm[name] = idx.clone()
		}
		n.indexes[tid] = nm
	}
	for name, m := range c.macros {
		cp := *m
		n.macros[name] = &cp
	}
	return n
}

func (c *Catalog) allocTableID() types.TableID {
	id := c.nextTableID
	c.nextTableID++
	return id
}

// ContainsTable reports whether a table (of any kind) with the name exists.
// Names are case-preserving and compared exactly.
func (c *Catalog) ContainsTable(name string) bool {
	_, ok := c.nameToID[name]
	return ok
}

func (c *Catalog) GetTableID(name string) (types.TableID, bool) {
	id, ok := c.nameToID[name]
	return id, ok
}

// GetTableEntry returns the entry for id. Unknown ids are an invariant
// violation, never user input, so this panics.
func (c *Catalog) GetTableEntry(id types.TableID) any {
	e, ok := c.tables[id]
	if !ok {
		panic(fmt.Sprintf("catalog: no entry for table id %d", id))
	}
	return e
}

func (c *Catalog) GetNodeTableEntry(id types.TableID) (*NodeTableEntry, bool) {
	e, ok := c.tables[id].(*NodeTableEntry)
	return e, ok
}

func (c *Catalog) GetRelTableEntry(id types.TableID) (*RelTableEntry, bool) {
	e, ok := c.tables[id].(*RelTableEntry)
	return e, ok
}

func (c *Catalog) GetRelGroupEntry(id types.TableID) (*RelGroupEntry, bool) {
	e, ok := c.tables[id].(*RelGroupEntry)
	return e, ok
}

// NodeTableIDs returns all node table ids in ascending order.
func (c *Catalog) NodeTableIDs() []types.TableID {
	var ids []types.TableID
	for id, e := range c.tables {
		if _, ok := e.(*NodeTableEntry); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RelTableIDs returns all rel table ids in ascending order.
func (c *Catalog) RelTableIDs() []types.TableID {
	var ids []types.TableID
	for id, e := range c.tables {
		if _, ok := e.(*RelTableEntry); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CreateNodeTable allocates the next table id, builds property definitions
// in order, and registers empty incident-rel sets.
func (c *Catalog) CreateNodeTable(info NodeTableInfo) (types.TableID, error) {
	if c.ContainsTable(info.Name) {
		return types.InvalidTableID, types.NewCatalogError("Table %s already exists.", info.Name)
	}
	e := &NodeTableEntry{
		TableEntry: TableEntry{
			Type: EntryNodeTable,
			Name: info.Name,
			ID:   c.allocTableID(),
		},
		PrimaryKeyPropertyID: types.InvalidPropertyID,
		FwdRelTables:         make(map[types.TableID]struct{}),
		BwdRelTables:         make(map[types.TableID]struct{}),
	}
	for _, p := range info.Properties {
		prop := e.AddProperty(p.Name, p.Type, p.DefaultValue)
		if p.Name == info.PrimaryKeyName {
			e.PrimaryKeyPropertyID = prop.ID
		}
	}
	c.tables[e.ID] = e
	c.nameToID[e.Name] = e.ID
	return e.ID, nil
}

// CreateRelTable additionally registers the new id in the src table's
// forward set and the dst table's backward set.
func (c *Catalog) CreateRelTable(info RelTableInfo) (types.TableID, error) {
	if c.ContainsTable(info.Name) {
		return types.InvalidTableID, types.NewCatalogError("Table %s already exists.", info.Name)
	}
	src, ok := c.GetNodeTableEntry(info.SrcTableID)
	if !ok {
		return types.InvalidTableID, types.NewCatalogError("Table id %d is not a node table.", info.SrcTableID)
	}
	dst, ok := c.GetNodeTableEntry(info.DstTableID)
	if !ok {
		return types.InvalidTableID, types.NewCatalogError("Table id %d is not a node table.", info.DstTableID)
	}
	e := &RelTableEntry{
		TableEntry: TableEntry{
			Type: EntryRelTable,
			Name: info.Name,
			ID:   c.allocTableID(),
		},
		SrcMultiplicity: info.SrcMultiplicity,
		DstMultiplicity: info.DstMultiplicity,
		SrcTableID:      info.SrcTableID,
		DstTableID:      info.DstTableID,
	}
	// Column 0 of a rel table is the neighbor id, so property columns
	// start at 1. The synthetic _id property comes first.
	e.NextColumnID = 1
	e.AddProperty("_id", types.NewType(types.TypeInt64), types.NewNullValue(types.NewType(types.TypeInt64)))
	for _, p := range info.Properties {
		e.AddProperty(p.Name, p.Type, p.DefaultValue)
	}
	c.tables[e.ID] = e
	c.nameToID[e.Name] = e.ID
	src.FwdRelTables[e.ID] = struct{}{}
	dst.BwdRelTables[e.ID] = struct{}{}
	return e.ID, nil
}

// CreateRelGroup creates each child rel table first, then records their ids
// in insertion order.
func (c *Catalog) CreateRelGroup(info RelGroupInfo) (types.TableID, error) {
	if c.ContainsTable(info.Name) {
		return types.InvalidTableID, types.NewCatalogError("Table %s already exists.", info.Name)
	}
	var childIDs []types.TableID
	for _, pair := range info.SrcDstPairs {
		src, ok := c.GetNodeTableEntry(pair[0])
		if !ok {
			return types.InvalidTableID, types.NewCatalogError("Table id %d is not a node table.", pair[0])
		}
		dst, ok := c.GetNodeTableEntry(pair[1])
		if !ok {
			return types.InvalidTableID, types.NewCatalogError("Table id %d is not a node table.", pair[1])
		}
		childID, err := c.CreateRelTable(RelTableInfo{
			Name:            RelGroupChildName(info.Name, src.Name, dst.Name),
			SrcTableID:      pair[0],
			DstTableID:      pair[1],
			SrcMultiplicity: info.SrcMultiplicity,
			DstMultiplicity: info.DstMultiplicity,
			Properties:      info.Properties,
		})
		if err != nil {
			return types.InvalidTableID, err
		}
		childIDs = append(childIDs, childID)
	}
	e := &RelGroupEntry{
		TableEntry: TableEntry{
			Type: EntryRelGroup,
			Name: info.Name,
			ID:   c.allocTableID(),
		},
		RelTableIDs: childIDs,
	}
	c.tables[e.ID] = e
	c.nameToID[e.Name] = e.ID
	return e.ID, nil
}

// RelGroupChildName is the synthesized name of a rel-group child table.
func RelGroupChildName(group, src, dst string) string {
	return group + "_" + src + "_" + dst
}

// DropTable removes a table entry. Dropping a rel group cascades over every
// child; dropping a rel table detaches it from its endpoints' incident
// sets. The binder rejects dropping a node table that rel tables still
// reference, so that case panics here.
func (c *Catalog) DropTable(id types.TableID) {
	switch e := c.GetTableEntry(id).(type) {
	case *RelGroupEntry:
		for _, child := range e.RelTableIDs {
			c.DropTable(child)
		}
		delete(c.nameToID, e.Name)
		delete(c.tables, id)
	case *RelTableEntry:
		if src, ok := c.GetNodeTableEntry(e.SrcTableID); ok {
			delete(src.FwdRelTables, id)
		}
		if dst, ok := c.GetNodeTableEntry(e.DstTableID); ok {
			delete(dst.BwdRelTables, id)
		}
		delete(c.nameToID, e.Name)
		delete(c.tables, id)
	case *NodeTableEntry:
		if len(e.FwdRelTables) > 0 || len(e.BwdRelTables) > 0 {
			panic(fmt.Sprintf("catalog: dropping node table %s with incident rel tables", e.Name))
		}
		delete(c.nameToID, e.Name)
		delete(c.tables, id)
		delete(c.indexes, id)
	}
}

func (c *Catalog) baseEntry(id types.TableID) *TableEntry {
	switch e := c.GetTableEntry(id).(type) {
	case *NodeTableEntry:
		return &e.TableEntry
	case *RelTableEntry:
		return &e.TableEntry
	case *RelGroupEntry:
		return &e.TableEntry
	}
	return nil
}

func (c *Catalog) RenameTable(id types.TableID, newName string) error {
	if c.ContainsTable(newName) {
		return types.NewCatalogError("Table %s already exists.", newName)
	}
	e := c.baseEntry(id)
	delete(c.nameToID, e.Name)
	e.Name = newName
	c.nameToID[newName] = id
	return nil
}

func (c *Catalog) RenameProperty(id types.TableID, oldName, newName string) error {
	e := c.baseEntry(id)
	if e.ContainsProperty(newName) {
		return types.NewCatalogError("Property %s already exists in table %s.", newName, e.Name)
	}
	p, ok := e.GetProperty(oldName)
	if !ok {
		return types.NewCatalogError("Property %s does not exist in table %s.", oldName, e.Name)
	}
	p.Name = newName
	return nil
}

func (c *Catalog) AddProperty(id types.TableID, name string, t *types.LogicalType, defaultValue types.Value) error {
	e := c.baseEntry(id)
	if e.ContainsProperty(name) {
		return types.NewCatalogError("Property %s already exists in table %s.", name, e.Name)
	}
	e.AddProperty(name, t, defaultValue)
	return nil
}

func (c *Catalog) DropProperty(id types.TableID, name string) error {
	e := c.baseEntry(id)
	if ne, ok := c.GetTableEntry(id).(*NodeTableEntry); ok {
		if pk := ne.PrimaryKey(); pk != nil && pk.Name == name {
			return types.NewCatalogError("Cannot drop primary key property %s.", name)
		}
	}
	if !e.DropProperty(name) {
		return types.NewCatalogError("Property %s does not exist in table %s.", name, e.Name)
	}
	return nil
}

func (c *Catalog) SetComment(id types.TableID, comment string) {
	c.baseEntry(id).Comment = comment
}

// CreateIndex registers an index entry. Index names are unique per table.
func (c *Catalog) CreateIndex(entry *IndexEntry) error {
	m, ok := c.indexes[entry.TableID]
	if !ok {
		m = make(map[string]*IndexEntry)
		c.indexes[entry.TableID] = m
	}
	if _, exists := m[entry.Name]; exists {
		return types.NewCatalogError("Index %s already exists in table.", entry.Name)
	}
	m[entry.Name] = entry
	return nil
}

func (c *Catalog) ContainsIndex(tableID types.TableID, name string) bool {
	_, ok := c.indexes[tableID][name]
	return ok
}

func (c *Catalog) GetIndex(tableID types.TableID, name string) (*IndexEntry, bool) {
	e, ok := c.indexes[tableID][name]
	return e, ok
}

func (c *Catalog) DropIndex(tableID types.TableID, name string) error {
	if _, ok := c.indexes[tableID][name]; !ok {
		return types.NewCatalogError("Index %s does not exist in table.", name)
	}
	delete(c.indexes[tableID], name)
	if len(c.indexes[tableID]) == 0 {
		delete(c.indexes, tableID)
	}
	return nil
}

func (c *Catalog) AddMacro(name, body string) error {
	if _, ok := c.macros[name]; ok {
		return types.NewCatalogError("Macro %s already exists.", name)
	}
	c.macros[name] = &MacroEntry{Name: name, Body: body}
	return nil
}

func (c *Catalog) GetMacro(name string) (*MacroEntry, bool) {
	m, ok := c.macros[name]
	return m, ok
}

// NextTableID exposes the allocator position for tests and serialization.
func (c *Catalog) NextTableID() types.TableID { return c.nextTableID }
