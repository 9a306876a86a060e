package expression

import (
	"sort"

	"github.com/untoldecay/kuzugo/internal/types"
)

// PatternBase is shared by node and rel pattern expressions: the candidate
// table set plus per-entity property expressions, addressed by name.
type PatternBase struct {
	Base
	VariableName  string
	TableIDs      map[types.TableID]struct{}
	propertyExprs []*Property
	propertyIndex map[string]int
}

func newPatternBase(b Base, variableName string, tableIDs []types.TableID) PatternBase {
	set := make(map[types.TableID]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		set[id] = struct{}{}
	}
	return PatternBase{
		Base:          b,
		VariableName:  variableName,
		TableIDs:      set,
		propertyIndex: make(map[string]int),
	}
}

// SortedTableIDs returns the candidate tables in ascending order, which is
// the deterministic order name generation and planning rely on.
func (p *PatternBase) SortedTableIDs() []types.TableID {
	ids := make([]types.TableID, 0, len(p.TableIDs))
	for id := range p.TableIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *PatternBase) AddPropertyExpr(e *Property) {
	if _, ok := p.propertyIndex[e.PropertyName]; ok {
		return
	}
	p.propertyIndex[e.PropertyName] = len(p.propertyExprs)
	p.propertyExprs = append(p.propertyExprs, e)
}

func (p *PatternBase) PropertyExprs() []*Property { return p.propertyExprs }

func (p *PatternBase) GetPropertyExpr(name string) (*Property, bool) {
	i, ok := p.propertyIndex[name]
	if !ok {
		return nil, false
	}
	return p.propertyExprs[i], true
}

// Node is a bound node pattern.
type Node struct {
	PatternBase
	internalID Expression
}

func NewNode(variableName string, tableIDs []types.TableID) *Node {
	n := &Node{
		PatternBase: newPatternBase(
			NewBase(KindPattern, types.NewNodeType(), variableName),
			variableName, tableIDs),
	}
	n.internalID = NewProperty("_id", variableName, types.NewType(types.TypeInternalID), nil)
	return n
}

func (n *Node) InternalID() Expression { return n.internalID }

// Rel is a bound relationship pattern between two node patterns.
type Rel struct {
	PatternBase
	Src        *Node
	Dst        *Node
	Directed   bool
	internalID Expression
}

func NewRel(variableName string, tableIDs []types.TableID, src, dst *Node, directed bool) *Rel {
	r := &Rel{
		PatternBase: newPatternBase(
			NewBase(KindPattern, types.NewRelType(), variableName),
			variableName, tableIDs),
		Src:      src,
		Dst:      dst,
		Directed: directed,
	}
	r.internalID = NewProperty("_id", variableName, types.NewType(types.TypeInternalID), nil)
	return r
}

func (r *Rel) InternalID() Expression { return r.internalID }

// RecursiveRel is a variable-length rel pattern; its data type is the
// RECURSIVE_REL struct {nodes LIST<NODE>, rels LIST<REL>}.
type RecursiveRel struct {
	PatternBase
	Src        *Node
	Dst        *Node
	LowerBound uint32
	UpperBound uint32
}

func NewRecursiveRel(variableName string, tableIDs []types.TableID, src, dst *Node,
	lower, upper uint32) *RecursiveRel {
	t := &types.LogicalType{ID: types.TypeRecursiveRel, Fields: []types.StructField{
		{Name: "nodes", Type: types.NewVarListType(types.NewNodeType())},
		{Name: "rels", Type: types.NewVarListType(types.NewRelType())},
	}}
	return &RecursiveRel{
		PatternBase: newPatternBase(NewBase(KindPattern, t, variableName), variableName, tableIDs),
		Src:         src,
		Dst:         dst,
		LowerBound:  lower,
		UpperBound:  upper,
	}
}

// Path is a named path over pattern children (NODE, REL, RECURSIVE_REL).
type Path struct {
	Base
}

// PathType is the output struct type of every path expression.
func PathType() *types.LogicalType {
	return types.NewStructType(
		types.StructField{Name: "nodes", Type: types.NewVarListType(types.NewNodeType())},
		types.StructField{Name: "rels", Type: types.NewVarListType(types.NewRelType())},
	)
}

func NewPath(uniqueName string, children []Expression) *Path {
	return &Path{Base: NewBase(KindPath, PathType(), uniqueName, children...)}
}
