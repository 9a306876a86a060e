package evaluator

import (
	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// Pattern packs the child evaluators of a node or rel pattern (ids, label,
// properties) into a STRUCT result. After packing, any row whose id child
// is null nulls the whole struct.
type Pattern struct {
	dataType *types.LogicalType
	children []Evaluator
	// idFieldIdx locates the internal-id child used for null propagation.
	idFieldIdx int
	params     []*vector.ValueVector
	result     *vector.ValueVector
}

func NewPattern(dataType *types.LogicalType, children []Evaluator, idFieldIdx int) *Pattern {
	return &Pattern{dataType: dataType, children: children, idFieldIdx: idFieldIdx}
}

func (p *Pattern) Init(rs *vector.ResultSet) error {
	p.params = p.params[:0]
	for _, c := range p.children {
		if err := c.Init(rs); err != nil {
			return err
		}
		p.params = append(p.params, c.ResultVector())
	}
	p.result = vector.New(p.dataType, resolveResultStateFromChildren(p.children))
	return nil
}

func (p *Pattern) Evaluate(ctx *Context) error {
	for _, c := range p.children {
		if err := c.Evaluate(ctx); err != nil {
			return err
		}
	}
	p.result.ResetAuxiliaryBuffer()
	if err := expression.StructPackExec(p.params, p.result); err != nil {
		return err
	}
	p.propagateIDNull()
	return nil
}

func (p *Pattern) propagateIDNull() {
	idVector := p.params[p.idFieldIdx]
	p.forEachResultPos(func(pos uint32) {
		idPos := pos
		if idVector.State.IsFlat() {
			idPos = idVector.State.FlatPos()
		}
		if idVector.IsNull(idPos) {
			p.result.SetNull(pos, true)
		}
	})
}

func (p *Pattern) forEachResultPos(fn func(pos uint32)) {
	if p.result.State.IsFlat() {
		fn(p.result.State.FlatPos())
		return
	}
	sel := p.result.State.Sel
	for i := uint32(0); i < sel.SelectedSize; i++ {
		fn(sel.Pos(i))
	}
}

func (p *Pattern) Select(sel *vector.SelectionVector, ctx *Context) (bool, error) {
	if err := p.Evaluate(ctx); err != nil {
		return false, err
	}
	return selectBoolResult(p.result, sel), nil
}

func (p *Pattern) ResultVector() *vector.ValueVector { return p.result }

func (p *Pattern) IsResultFlat() bool { return p.result.State.IsFlat() }

// UndirectedRel is a rel pattern with a direction child: where the
// direction vector is true, the src and dst id fields are swapped in place
// on the output vector.
type UndirectedRel struct {
	Pattern
	Direction Evaluator
}

func NewUndirectedRel(dataType *types.LogicalType, children []Evaluator, idFieldIdx int,
	direction Evaluator) *UndirectedRel {
	return &UndirectedRel{
		Pattern:   Pattern{dataType: dataType, children: children, idFieldIdx: idFieldIdx},
		Direction: direction,
	}
}

func (u *UndirectedRel) Init(rs *vector.ResultSet) error {
	if err := u.Pattern.Init(rs); err != nil {
		return err
	}
	return u.Direction.Init(rs)
}

func (u *UndirectedRel) Evaluate(ctx *Context) error {
	if err := u.Pattern.Evaluate(ctx); err != nil {
		return err
	}
	if err := u.Direction.Evaluate(ctx); err != nil {
		return err
	}
	dir := u.Direction.ResultVector()
	srcField, _ := u.result.FieldByName("_src")
	dstField, _ := u.result.FieldByName("_dst")
	u.forEachResultPos(func(pos uint32) {
		dirPos := pos
		if dir.State.IsFlat() {
			dirPos = dir.State.FlatPos()
		}
		if dir.IsNull(dirPos) || !dir.Bool(dirPos) {
			return
		}
		src, dst := srcField.ID(pos), dstField.ID(pos)
		srcField.SetID(pos, dst)
		dstField.SetID(pos, src)
	})
	return nil
}

func (u *UndirectedRel) Select(sel *vector.SelectionVector, ctx *Context) (bool, error) {
	if err := u.Evaluate(ctx); err != nil {
		return false, err
	}
	return selectBoolResult(u.result, sel), nil
}
