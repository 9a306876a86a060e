package binder

import (
	"github.com/untoldecay/kuzugo/internal/catalog"
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

// Internal column names injected by the binder. They are invisible
// variables: references the copy engine fills, never evaluated.
const (
	RowOffsetName = "_row_offset"
	SrcOffsetName = "_src_offset"
	DstOffsetName = "_dst_offset"
)

func (b *Binder) bindCopyFrom(s *parser.CopyFrom) (BoundStatement, error) {
	opts, err := bindParsingOptions(s.Options)
	if err != nil {
		return nil, err
	}
	if id, ok := b.cat.GetTableID(s.TableName); ok {
		if group, isGroup := b.cat.GetRelGroupEntry(id); isGroup {
			if len(group.RelTableIDs) == 1 {
				child, _ := b.cat.GetRelTableEntry(group.RelTableIDs[0])
				return b.bindCopyRelFrom(s, opts, child)
			}
			if opts.From == "" || opts.To == "" {
				return nil, types.NewBinderError(
					"The table %s has multiple FROM and TO pairs defined in the schema. A specific pair of FROM and TO options is expected when copying data into the %s table.",
					s.TableName, s.TableName)
			}
			childName := catalog.RelGroupChildName(s.TableName, opts.From, opts.To)
			if childID, ok := b.cat.GetTableID(childName); ok {
				if child, isRel := b.cat.GetRelTableEntry(childID); isRel {
					return b.bindCopyRelFrom(s, opts, child)
				}
			}
			return nil, types.NewBinderError("REL GROUP %s does not exist.", s.TableName)
		}
		if node, isNode := b.cat.GetNodeTableEntry(id); isNode {
			return b.bindCopyNodeFrom(s, opts, node)
		}
		if rel, isRel := b.cat.GetRelTableEntry(id); isRel {
			return b.bindCopyRelFrom(s, opts, rel)
		}
	}
	return nil, types.NewBinderError("Table %s does not exist.", s.TableName)
}

func bindParsingOptions(raw map[string]types.Value) (CopyOptions, error) {
	opts := CopyOptions{Delim: ',', Quote: '"', Escape: '"'}
	singleChar := func(name string, v types.Value) (rune, error) {
		if v.Type.ID != types.TypeString || len(v.StringVal) != 1 {
			return 0, types.NewBinderError("Copy csv option value must be a single character with an optional escape character.")
		}
		return rune(v.StringVal[0]), nil
	}
	for name, v := range raw {
		switch name {
		case "HEADER":
			if v.Type.ID != types.TypeBool {
				return opts, types.NewBinderError("The value type of parsing csv option HEADER must be boolean.")
			}
			opts.Header = v.BoolVal
		case "DELIM":
			r, err := singleChar(name, v)
			if err != nil {
				return opts, err
			}
			opts.Delim = r
		case "QUOTE":
			r, err := singleChar(name, v)
			if err != nil {
				return opts, err
			}
			opts.Quote = r
		case "ESCAPE":
			r, err := singleChar(name, v)
			if err != nil {
				return opts, err
			}
			opts.Escape = r
		case "FROM":
			opts.From = v.StringVal
		case "TO":
			opts.To = v.StringVal
		default:
			return opts, types.NewBinderError("Unrecognized parsing csv option: %s.", name)
		}
	}
	return opts, nil
}

// primaryKeyScanType is the type an endpoint key column is scanned as:
// SERIAL keys are looked up as INT64.
func primaryKeyScanType(entry *catalog.NodeTableEntry) *types.LogicalType {
	pk := entry.PrimaryKey()
	if pk.Type.ID == types.TypeSerial {
		return types.NewType(types.TypeInt64)
	}
	return pk.Type
}

// bindExpectedNodeColumns produces the column names and types fed to the
// scan source for a node copy. Properties named _id never scan; SERIAL
// properties scan only when the user listed them explicitly.
func bindExpectedNodeColumns(entry *catalog.NodeTableEntry, userColumns []string) ([]string, []*types.LogicalType, error) {
	var names []string
	var colTypes []*types.LogicalType
	if len(userColumns) > 0 {
		seen := make(map[string]struct{}, len(userColumns))
		for _, name := range userColumns {
			if _, dup := seen[name]; dup {
				return nil, nil, types.NewBinderError("Detect duplicate column name %s during COPY.", name)
			}
			seen[name] = struct{}{}
			prop, ok := entry.GetProperty(name)
			if !ok {
				return nil, nil, types.NewBinderError(
					"Table %s does not contain column %s.", entry.Name, name)
			}
			names = append(names, prop.Name)
			colTypes = append(colTypes, prop.Type)
		}
		return names, colTypes, nil
	}
	for i := range entry.Properties {
		p := &entry.Properties[i]
		if p.Name == "_id" || p.Type.ID == types.TypeSerial {
			continue
		}
		names = append(names, p.Name)
		colTypes = append(colTypes, p.Type)
	}
	return names, colTypes, nil
}

// bindExpectedRelColumns always prepends from/to columns typed by the
// endpoint tables' primary keys, then applies the node-style rule over the
// remaining properties, skipping the synthetic _id.
func (b *Binder) bindExpectedRelColumns(entry *catalog.RelTableEntry, userColumns []string) ([]string, []*types.LogicalType, error) {
	src, _ := b.cat.GetNodeTableEntry(entry.SrcTableID)
	dst, _ := b.cat.GetNodeTableEntry(entry.DstTableID)
	names := []string{"from", "to"}
	colTypes := []*types.LogicalType{primaryKeyScanType(src), primaryKeyScanType(dst)}
	if len(userColumns) > 0 {
		seen := make(map[string]struct{}, len(userColumns))
		for _, name := range userColumns {
			if _, dup := seen[name]; dup {
				return nil, nil, types.NewBinderError("Detect duplicate column name %s during COPY.", name)
			}
			seen[name] = struct{}{}
			prop, ok := entry.GetProperty(name)
			if !ok || prop.Name == "_id" {
				return nil, nil, types.NewBinderError(
					"Table %s does not contain column %s.", entry.Name, name)
			}
			names = append(names, prop.Name)
			colTypes = append(colTypes, prop.Type)
		}
		return names, colTypes, nil
	}
	for i := range entry.Properties {
		p := &entry.Properties[i]
		if p.Name == "_id" || p.Type.ID == types.TypeSerial {
			continue
		}
		names = append(names, p.Name)
		colTypes = append(colTypes, p.Type)
	}
	return names, colTypes, nil
}

// sniffSource resolves the source's actual columns, defaulting to the
// expectation when no sniffer is installed.
func (b *Binder) sniffSource(source *parser.ScanSource, opts CopyOptions,
	names []string, colTypes []*types.LogicalType) ([]ScanColumn, error) {
	if b.sniffer != nil {
		return b.sniffer(source, opts, names, colTypes)
	}
	out := make([]ScanColumn, len(names))
	for i := range names {
		out[i] = ScanColumn{Name: names[i], Type: colTypes[i]}
	}
	return out, nil
}

// matchColumnExpression resolves one target property against the source
// columns: same name and type is a plain reference, same name with a
// different type gets an implicit cast, absent columns fall back to the
// property's default.
func (b *Binder) matchColumnExpression(sourceColumns []ScanColumn, sourceExprs []expression.Expression,
	prop *catalog.Property) (ColumnEvaluateType, expression.Expression, error) {
	for i, col := range sourceColumns {
		if col.Name != prop.Name {
			continue
		}
		if col.Type.Equals(prop.Type) {
			return EvaluateReference, sourceExprs[i], nil
		}
		if !col.Type.CanCastTo(prop.Type) {
			return 0, nil, types.NewBinderError(
				"Column %s cannot be cast from %s to %s.", col.Name, col.Type, prop.Type)
		}
		cast := expression.NewFunction("CAST", prop.Type,
			expression.CastExec(prop.Type), nil, sourceExprs[i])
		return EvaluateCast, cast, nil
	}
	lit := expression.NewLiteral(prop.DefaultValue, b.nextUniqueName("default"))
	return EvaluateDefault, lit, nil
}

func sourceColumnExprs(cols []ScanColumn) []expression.Expression {
	out := make([]expression.Expression, len(cols))
	for i, c := range cols {
		out[i] = expression.NewVariable(c.Name, c.Type)
	}
	return out
}

func (b *Binder) bindCopyNodeFrom(s *parser.CopyFrom, opts CopyOptions,
	entry *catalog.NodeTableEntry) (BoundStatement, error) {
	if s.Source.ByColumn && s.Source.Type != parser.SourceNPY {
		return nil, types.NewBinderError("Copy by column with %s file type is not supported.",
			sourceTypeName(s.Source.Type))
	}
	names, colTypes, err := bindExpectedNodeColumns(entry, s.ColumnNames)
	if err != nil {
		return nil, err
	}
	sourceColumns, err := b.sniffSource(s.Source, opts, names, colTypes)
	if err != nil {
		return nil, err
	}
	sourceExprs := sourceColumnExprs(sourceColumns)
	var columns []expression.Expression
	var evaluateTypes []ColumnEvaluateType
	for i := range entry.Properties {
		prop := &entry.Properties[i]
		if prop.Type.ID == types.TypeSerial {
			continue
		}
		evalType, col, err := b.matchColumnExpression(sourceColumns, sourceExprs, prop)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		evaluateTypes = append(evaluateTypes, evalType)
	}
	rowOffset := expression.NewVariable(RowOffsetName, types.NewType(types.TypeInt64))
	return &BoundCopyFrom{Info: BoundCopyFromInfo{
		TableEntry:          entry,
		Source:              s.Source,
		RowOffsetExpr:       rowOffset,
		Columns:             columns,
		EvaluateTypes:       evaluateTypes,
		ExpectedColumnNames: names,
		ExpectedColumnTypes: colTypes,
		SourceColumns:       sourceColumns,
		Options:             opts,
	}}, nil
}

func (b *Binder) bindCopyRelFrom(s *parser.CopyFrom, opts CopyOptions,
	entry *catalog.RelTableEntry) (BoundStatement, error) {
	if s.Source.ByColumn {
		return nil, types.NewBinderError("Copy by column is not supported for relationship table.")
	}
	names, colTypes, err := b.bindExpectedRelColumns(entry, s.ColumnNames)
	if err != nil {
		return nil, err
	}
	sourceColumns, err := b.sniffSource(s.Source, opts, names, colTypes)
	if err != nil {
		return nil, err
	}
	sourceExprs := sourceColumnExprs(sourceColumns)

	rowOffset := expression.NewVariable(RowOffsetName, types.NewType(types.TypeInt64))
	srcOffset := expression.NewVariable(SrcOffsetName, types.NewType(types.TypeInt64))
	dstOffset := expression.NewVariable(DstOffsetName, types.NewType(types.TypeInt64))

	columns := []expression.Expression{srcOffset, dstOffset, rowOffset}
	evaluateTypes := []ColumnEvaluateType{EvaluateReference, EvaluateReference, EvaluateReference}
	// Property 0 is the synthetic _id backed by the row offset.
	for i := 1; i < len(entry.Properties); i++ {
		prop := &entry.Properties[i]
		evalType, col, err := b.matchColumnExpression(sourceColumns, sourceExprs, prop)
		if err != nil {
			return nil, err
		}
		columns = append(columns, col)
		evaluateTypes = append(evaluateTypes, evalType)
	}

	// Endpoint key expressions: cast the scanned from/to columns when the
	// reader produced a different type than the primary key wants.
	makeKey := func(i int) (expression.Expression, error) {
		if sourceColumns[i].Type.Equals(colTypes[i]) {
			return sourceExprs[i], nil
		}
		if !sourceColumns[i].Type.CanCastTo(colTypes[i]) {
			return nil, types.NewBinderError("Column %s cannot be cast from %s to %s.",
				sourceColumns[i].Name, sourceColumns[i].Type, colTypes[i])
		}
		return expression.NewFunction("CAST", colTypes[i],
			expression.CastExec(colTypes[i]), nil, sourceExprs[i]), nil
	}
	srcKey, err := makeKey(0)
	if err != nil {
		return nil, err
	}
	dstKey, err := makeKey(1)
	if err != nil {
		return nil, err
	}

	extra := &ExtraCopyRelInfo{
		InternalIDColumnIndices: [3]int{0, 1, 2},
		LookupInfos: [2]IndexLookupInfo{
			{TableID: entry.SrcTableID, OffsetExpr: srcOffset, KeyExpr: srcKey},
			{TableID: entry.DstTableID, OffsetExpr: dstOffset, KeyExpr: dstKey},
		},
	}
	return &BoundCopyFrom{Info: BoundCopyFromInfo{
		TableEntry:          entry,
		Source:              s.Source,
		RowOffsetExpr:       rowOffset,
		Columns:             columns,
		EvaluateTypes:       evaluateTypes,
		ExpectedColumnNames: names,
		ExpectedColumnTypes: colTypes,
		SourceColumns:       sourceColumns,
		Options:             opts,
		Extra:               extra,
	}}, nil
}

func sourceTypeName(t parser.ScanSourceType) string {
	switch t {
	case parser.SourceCSV:
		return "CSV"
	case parser.SourceParquet:
		return "PARQUET"
	case parser.SourceNPY:
		return "NPY"
	}
	return "UNKNOWN"
}
