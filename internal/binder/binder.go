package binder

import (
	"fmt"

	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

// ScanColumn is one column the scan source exposes, as detected by the
// reader (CSV header, Parquet schema, NPY dtype).
type ScanColumn struct {
	Name string
	Type *types.LogicalType
}

// SchemaSniffer lets the file reader report the source's actual columns
// given the binder's expectation. A nil sniffer assumes the source matches
// the expectation exactly.
type SchemaSniffer func(source *parser.ScanSource, opts CopyOptions,
	expectedNames []string, expectedTypes []*types.LogicalType) ([]ScanColumn, error)

// Binder binds one statement at a time. It never mutates the catalog.
type Binder struct {
	cat     *catalog.Catalog
	params  map[string]*types.Value
	sniffer SchemaSniffer
	seq     uint64
	scope   *scope
}

func New(cat *catalog.Catalog) *Binder {
	return &Binder{
		cat:    cat,
		params: make(map[string]*types.Value),
		scope:  newScope(),
	}
}

// SetSchemaSniffer installs the reader-backed source schema callback.
func (b *Binder) SetSchemaSniffer(s SchemaSniffer) { b.sniffer = s }

// SetParameter registers a parameter value shared with parameter
// expressions bound later.
func (b *Binder) SetParameter(name string, v *types.Value) { b.params[name] = v }

func (b *Binder) nextUniqueName(op string) string {
	b.seq++
	return expression.UniqueNameForInternal(op, b.seq)
}

// Bind dispatches on the statement kind.
func (b *Binder) Bind(stmt parser.Statement) (BoundStatement, error) {
	switch s := stmt.(type) {
	case *parser.CreateNodeTable:
		return b.bindCreateNodeTable(s)
	case *parser.CreateRelTable:
		return b.bindCreateRelTable(s)
	case *parser.CreateRelGroup:
		return b.bindCreateRelGroup(s)
	case *parser.DropTable:
		return b.bindDropTable(s)
	case *parser.Alter:
		return b.bindAlter(s)
	case *parser.CopyFrom:
		return b.bindCopyFrom(s)
	case *parser.StandaloneCall:
		return b.bindStandaloneCall(s)
	case *parser.CreateMacro:
		return b.bindCreateMacro(s)
	case *parser.Query:
		return b.bindQuery(s)
	}
	return nil, types.NewNotImplementedError(fmt.Sprintf("statement type %T", stmt))
}

var validPKTypes = map[types.LogicalTypeID]struct{}{
	types.TypeInt64:  {},
	types.TypeString: {},
	types.TypeSerial: {},
}

// bindDefault folds a parsed default expression to a literal. Defaults
// must be constant-foldable; non-literal defaults are rejected here so the
// copy engine never evaluates arbitrary expressions per row.
func (b *Binder) bindDefault(p *parser.ParsedProperty) (types.Value, error) {
	if p.Default == nil {
		return types.NewNullValue(p.Type), nil
	}
	if p.Default.Type != parser.ParsedLiteral {
		return types.Value{}, types.NewBinderError(
			"Default value of property %s must be a constant literal.", p.Name)
	}
	v := p.Default.Literal
	if !v.Type.Equals(p.Type) {
		cast, ok := v.CastTo(p.Type)
		if !ok {
			return types.Value{}, types.NewBinderError(
				"Default value of property %s cannot be cast from %s to %s.",
				p.Name, v.Type, p.Type)
		}
		v = cast
	}
	return v, nil
}

func (b *Binder) bindProperties(props []parser.ParsedProperty) ([]catalog.PropertyInfo, error) {
	seen := make(map[string]struct{}, len(props))
	out := make([]catalog.PropertyInfo, 0, len(props))
	for i := range props {
		p := &props[i]
		if _, dup := seen[p.Name]; dup {
			return nil, types.NewBinderError("Duplicated column name: %s.", p.Name)
		}
		seen[p.Name] = struct{}{}
		def, err := b.bindDefault(p)
		if err != nil {
			return nil, err
		}
		out = append(out, catalog.PropertyInfo{Name: p.Name, Type: p.Type, DefaultValue: def})
	}
	return out, nil
}

func (b *Binder) bindCreateNodeTable(s *parser.CreateNodeTable) (BoundStatement, error) {
	if b.cat.ContainsTable(s.Name) {
		return nil, types.NewBinderError("Table %s already exists.", s.Name)
	}
	props, err := b.bindProperties(s.Properties)
	if err != nil {
		return nil, err
	}
	var pk *catalog.PropertyInfo
	for i := range props {
		if props[i].Name == s.PrimaryKey {
			pk = &props[i]
		}
	}
	if pk == nil {
		return nil, types.NewBinderError(
			"Primary key %s does not match any of the predefined node properties.", s.PrimaryKey)
	}
	if _, ok := validPKTypes[pk.Type.ID]; !ok {
		return nil, types.NewBinderError(
			"Invalid primary key type: %s. Primary key must be INT64, STRING or SERIAL.", pk.Type)
	}
	return &BoundCreateNodeTable{Info: catalog.NodeTableInfo{
		Name:           s.Name,
		Properties:     props,
		PrimaryKeyName: s.PrimaryKey,
	}}, nil
}

func (b *Binder) resolveNodeTable(name string) (*catalog.NodeTableEntry, error) {
	id, ok := b.cat.GetTableID(name)
	if !ok {
		return nil, types.NewBinderError("Table %s does not exist.", name)
	}
	entry, ok := b.cat.GetNodeTableEntry(id)
	if !ok {
		return nil, types.NewBinderError("Table %s is not a node table.", name)
	}
	return entry, nil
}

func (b *Binder) bindCreateRelTable(s *parser.CreateRelTable) (BoundStatement, error) {
	if b.cat.ContainsTable(s.Name) {
		return nil, types.NewBinderError("Table %s already exists.", s.Name)
	}
	src, err := b.resolveNodeTable(s.SrcName)
	if err != nil {
		return nil, err
	}
	dst, err := b.resolveNodeTable(s.DstName)
	if err != nil {
		return nil, err
	}
	props, err := b.bindProperties(s.Properties)
	if err != nil {
		return nil, err
	}
	return &BoundCreateRelTable{Info: catalog.RelTableInfo{
		Name:            s.Name,
		SrcTableID:      src.ID,
		DstTableID:      dst.ID,
		SrcMultiplicity: s.SrcMultiplicity,
		DstMultiplicity: s.DstMultiplicity,
		Properties:      props,
	}}, nil
}

func (b *Binder) bindCreateRelGroup(s *parser.CreateRelGroup) (BoundStatement, error) {
	if b.cat.ContainsTable(s.Name) {
		return nil, types.NewBinderError("Table %s already exists.", s.Name)
	}
	props, err := b.bindProperties(s.Properties)
	if err != nil {
		return nil, err
	}
	info := catalog.RelGroupInfo{
		Name:            s.Name,
		SrcMultiplicity: s.SrcMultiplicity,
		DstMultiplicity: s.DstMultiplicity,
		Properties:      props,
	}
	for _, pair := range s.SrcDstNames {
		src, err := b.resolveNodeTable(pair[0])
		if err != nil {
			return nil, err
		}
		dst, err := b.resolveNodeTable(pair[1])
		if err != nil {
			return nil, err
		}
		info.SrcDstPairs = append(info.SrcDstPairs, [2]types.TableID{src.ID, dst.ID})
	}
	return &BoundCreateRelGroup{Info: info}, nil
}

func (b *Binder) bindDropTable(s *parser.DropTable) (BoundStatement, error) {
	id, ok := b.cat.GetTableID(s.Name)
	if !ok {
		return nil, types.NewBinderError("Table %s does not exist.", s.Name)
	}
	// A node table cannot be dropped while a rel table references it; the
	// catalog itself treats that case as an invariant violation.
	if node, isNode := b.cat.GetNodeTableEntry(id); isNode {
		for relID := range node.FwdRelTables {
			rel, _ := b.cat.GetRelTableEntry(relID)
			return nil, types.NewBinderError(
				"Cannot delete node table %s because it is referenced by relationship table %s.",
				s.Name, rel.Name)
		}
		for relID := range node.BwdRelTables {
			rel, _ := b.cat.GetRelTableEntry(relID)
			return nil, types.NewBinderError(
				"Cannot delete node table %s because it is referenced by relationship table %s.",
				s.Name, rel.Name)
		}
	}
	return &BoundDropTable{TableID: id, Name: s.Name}, nil
}

func (b *Binder) bindAlter(s *parser.Alter) (BoundStatement, error) {
	id, ok := b.cat.GetTableID(s.TableName)
	if !ok {
		return nil, types.NewBinderError("Table %s does not exist.", s.TableName)
	}
	bound := &BoundAlter{Action: s.Action, TableID: id}
	switch s.Action {
	case parser.AlterRenameTable:
		if b.cat.ContainsTable(s.NewName) {
			return nil, types.NewBinderError("Table %s already exists.", s.NewName)
		}
		bound.NewName = s.NewName
	case parser.AlterRenameProperty:
		bound.Property = s.PropertyName
		bound.NewName = s.NewName
	case parser.AlterAddProperty:
		def, err := b.bindDefault(s.Property)
		if err != nil {
			return nil, err
		}
		bound.AddedProp = &catalog.PropertyInfo{
			Name:         s.Property.Name,
			Type:         s.Property.Type,
			DefaultValue: def,
		}
	case parser.AlterDropProperty:
		bound.Property = s.PropertyName
	case parser.AlterComment:
		bound.Comment = s.Comment
	}
	return bound, nil
}

func (b *Binder) bindCreateMacro(s *parser.CreateMacro) (BoundStatement, error) {
	if _, exists := b.cat.GetMacro(s.Name); exists {
		return nil, types.NewBinderError("Macro %s already exists.", s.Name)
	}
	return &BoundCreateMacro{Name: s.Name, Body: s.Body}, nil
}

var knownCalls = map[string]struct{}{
	"_CREATE_HNSW_INDEX": {},
	"_DROP_HNSW_INDEX":   {},
	"CREATE_HNSW_INDEX":  {},
	"DROP_HNSW_INDEX":    {},
	"QUERY_HNSW_INDEX":   {},
	"SHOW_CONNECTION":    {},
}

func (b *Binder) bindStandaloneCall(s *parser.StandaloneCall) (BoundStatement, error) {
	if _, ok := knownCalls[s.FuncName]; !ok {
		return nil, types.NewBinderError("Unknown table function: %s.", s.FuncName)
	}
	return &BoundStandaloneCall{
		FuncName:       s.FuncName,
		Args:           s.Args,
		OptionalParams: s.OptionalParams,
	}, nil
}
