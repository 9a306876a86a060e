package evaluator

import (
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// pathChildKind tags how one path child contributes to the output lists.
type pathChildKind uint8

const (
	pathChildNode pathChildKind = iota
	pathChildRel
	pathChildRecursive
)

// fieldRouting maps each result-struct field index to the input-struct
// field index, or -1 when the input has no matching field. Matching is by
// case-insensitive field name, precomputed once during Init; unmatched
// result fields receive NULL per row.
type fieldRouting []int

func routeFields(result, input *types.LogicalType) fieldRouting {
	r := make(fieldRouting, len(result.Fields))
	for i, f := range result.Fields {
		r[i] = input.FieldIndex(f.Name)
	}
	return r
}

type pathChild struct {
	eval Evaluator
	kind pathChildKind
	// nodeRouting/relRouting route single-position inputs (NODE, REL) or
	// list-slice inputs (RECURSIVE_REL nodes/rels fields).
	nodeRouting fieldRouting
	relRouting  fieldRouting
}

// Path assembles the {nodes LIST<NODE>, rels LIST<REL>} struct of a path
// expression from its pattern children.
type Path struct {
	dataType *types.LogicalType
	children []pathChild
	result   *vector.ValueVector
}

func NewPath(dataType *types.LogicalType, children []Evaluator) *Path {
	p := &Path{dataType: dataType}
	for _, c := range children {
		p.children = append(p.children, pathChild{eval: c})
	}
	return p
}

func (p *Path) Init(rs *vector.ResultSet) error {
	evals := make([]Evaluator, 0, len(p.children))
	for i := range p.children {
		if err := p.children[i].eval.Init(rs); err != nil {
			return err
		}
		evals = append(evals, p.children[i].eval)
	}
	p.result = vector.New(p.dataType, resolveResultStateFromChildren(evals))

	nodesField, _ := p.result.FieldByName("nodes")
	relsField, _ := p.result.FieldByName("rels")
	nodeType := nodesField.Type.Child
	relType := relsField.Type.Child
	for i := range p.children {
		c := &p.children[i]
		inputType := c.eval.ResultVector().Type
		switch inputType.ID {
		case types.TypeNode:
			c.kind = pathChildNode
			c.nodeRouting = routeFields(nodeType, inputType)
		case types.TypeRel:
			c.kind = pathChildRel
			c.relRouting = routeFields(relType, inputType)
		case types.TypeRecursiveRel:
			c.kind = pathChildRecursive
			inNodes := inputType.Fields[inputType.FieldIndex("nodes")].Type.Child
			inRels := inputType.Fields[inputType.FieldIndex("rels")].Type.Child
			c.nodeRouting = routeFields(nodeType, inNodes)
			c.relRouting = routeFields(relType, inRels)
		default:
			return types.NewRuntimeError("path child has unexpected type %s", inputType)
		}
	}
	return nil
}

func (p *Path) Evaluate(ctx *Context) error {
	for i := range p.children {
		if err := p.children[i].eval.Evaluate(ctx); err != nil {
			return err
		}
	}
	p.result.ResetAuxiliaryBuffer()
	nodesField, _ := p.result.FieldByName("nodes")
	relsField, _ := p.result.FieldByName("rels")
	p.forEachResultPos(func(pos uint32) {
		p.result.SetNull(pos, false)
		// First pass: total list sizes from per-child contributions.
		var numNodes, numRels uint64
		for i := range p.children {
			c := &p.children[i]
			in := c.eval.ResultVector()
			inPos := inputPos(in, pos)
			switch c.kind {
			case pathChildNode:
				numNodes++
			case pathChildRel:
				numRels++
			case pathChildRecursive:
				if in.IsNull(inPos) {
					continue
				}
				nf, _ := in.FieldByName("nodes")
				rf, _ := in.FieldByName("rels")
				numNodes += nf.ListEntryAt(inPos).Size
				numRels += rf.ListEntryAt(inPos).Size
			}
		}
		nodesEntry := nodesField.AddList(pos, numNodes)
		relsEntry := relsField.AddList(pos, numRels)
		nodesField.SetNull(pos, false)
		relsField.SetNull(pos, false)
		// Second pass: copy field vectors from single-position or
		// list-slice inputs.
		nodeCursor := nodesEntry.Offset
		relCursor := relsEntry.Offset
		for i := range p.children {
			c := &p.children[i]
			in := c.eval.ResultVector()
			inPos := inputPos(in, pos)
			switch c.kind {
			case pathChildNode:
				copyRouted(nodesField.ListData(), uint32(nodeCursor), in, inPos, c.nodeRouting)
				nodeCursor++
			case pathChildRel:
				copyRouted(relsField.ListData(), uint32(relCursor), in, inPos, c.relRouting)
				relCursor++
			case pathChildRecursive:
				if in.IsNull(inPos) {
					continue
				}
				nf, _ := in.FieldByName("nodes")
				rf, _ := in.FieldByName("rels")
				nEntry := nf.ListEntryAt(inPos)
				for j := uint64(0); j < nEntry.Size; j++ {
					copyRouted(nodesField.ListData(), uint32(nodeCursor),
						nf.ListData(), uint32(nEntry.Offset+j), c.nodeRouting)
					nodeCursor++
				}
				rEntry := rf.ListEntryAt(inPos)
				for j := uint64(0); j < rEntry.Size; j++ {
					copyRouted(relsField.ListData(), uint32(relCursor),
						rf.ListData(), uint32(rEntry.Offset+j), c.relRouting)
					relCursor++
				}
			}
		}
	})
	return nil
}

func inputPos(in *vector.ValueVector, pos uint32) uint32 {
	if in.State.IsFlat() {
		return in.State.FlatPos()
	}
	return pos
}

// copyRouted copies one struct element, field by field, through the
// routing table. Unrouted destination fields become NULL.
func copyRouted(dst *vector.ValueVector, dstPos uint32, src *vector.ValueVector, srcPos uint32,
	routing fieldRouting) {
	dst.SetNull(dstPos, src.IsNull(srcPos))
	dstFields := dst.Fields()
	srcFields := src.Fields()
	for i, srcIdx := range routing {
		if srcIdx < 0 {
			dstFields[i].SetNull(dstPos, true)
			continue
		}
		dstFields[i].CopyFromVectorData(dstPos, srcFields[srcIdx], srcPos)
	}
}

func (p *Path) forEachResultPos(fn func(pos uint32)) {
	if p.result.State.IsFlat() {
		fn(p.result.State.FlatPos())
		return
	}
	sel := p.result.State.Sel
	for i := uint32(0); i < sel.SelectedSize; i++ {
		fn(sel.Pos(i))
	}
}

func (p *Path) Select(sel *vector.SelectionVector, ctx *Context) (bool, error) {
	if err := p.Evaluate(ctx); err != nil {
		return false, err
	}
	return selectBoolResult(p.result, sel), nil
}

func (p *Path) ResultVector() *vector.ValueVector { return p.result }

func (p *Path) IsResultFlat() bool { return p.result.State.IsFlat() }
