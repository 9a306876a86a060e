package evaluator

import (
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// CaseAlternative pairs one WHEN predicate with its THEN branch and owns
// the scratch selection the WHEN select pass fills.
type CaseAlternative struct {
	When    Evaluator
	Then    Evaluator
	whenSel *vector.SelectionVector
}

// Case implements CASE WHEN semantics: for each output row, the value is
// THEN of the first matching WHEN, or ELSE if none match. Null rows in
// WHEN predicates count as non-match.
type Case struct {
	dataType     *types.LogicalType
	Alternatives []*CaseAlternative
	Else         Evaluator
	result       *vector.ValueVector
	filledMask   []bool
	filledCount  uint32
}

func NewCase(dataType *types.LogicalType, alternatives []*CaseAlternative, elseEval Evaluator) *Case {
	return &Case{dataType: dataType, Alternatives: alternatives, Else: elseEval}
}

func (c *Case) Init(rs *vector.ResultSet) error {
	var inputs []Evaluator
	for _, alt := range c.Alternatives {
		if err := alt.When.Init(rs); err != nil {
			return err
		}
		if err := alt.Then.Init(rs); err != nil {
			return err
		}
		alt.whenSel = vector.NewSelectionVector(vector.DefaultCapacity)
		alt.whenSel.SetToFiltered()
		inputs = append(inputs, alt.When, alt.Then)
	}
	if err := c.Else.Init(rs); err != nil {
		return err
	}
	inputs = append(inputs, c.Else)
	c.result = vector.New(c.dataType, resolveResultStateFromChildren(inputs))
	c.filledMask = make([]bool, vector.DefaultCapacity)
	return nil
}

func (c *Case) Evaluate(ctx *Context) error {
	for i := range c.filledMask {
		c.filledMask[i] = false
	}
	c.filledCount = 0
	c.result.ResetAuxiliaryBuffer()
	for _, alt := range c.Alternatives {
		hasAtLeastOneValue, err := alt.When.Select(alt.whenSel, ctx)
		if err != nil {
			return err
		}
		if !hasAtLeastOneValue {
			continue
		}
		if err := alt.Then.Evaluate(ctx); err != nil {
			return err
		}
		thenVector := alt.Then.ResultVector()
		if alt.When.IsResultFlat() {
			c.fillAll(thenVector)
		} else {
			c.fillSelected(alt.whenSel, thenVector)
		}
		if c.filledCount == c.result.State.Sel.SelectedSize {
			return nil
		}
	}
	if err := c.Else.Evaluate(ctx); err != nil {
		return err
	}
	c.fillAll(c.Else.ResultVector())
	return nil
}

func (c *Case) Select(sel *vector.SelectionVector, ctx *Context) (bool, error) {
	if err := c.Evaluate(ctx); err != nil {
		return false, err
	}
	return selectBoolResult(c.result, sel), nil
}

func (c *Case) fillSelected(sel *vector.SelectionVector, src *vector.ValueVector) {
	for i := uint32(0); i < sel.SelectedSize; i++ {
		c.fillEntry(sel.Pos(i), src)
	}
}

func (c *Case) fillAll(src *vector.ValueVector) {
	rsel := c.result.State.Sel
	if c.result.State.IsFlat() {
		c.fillEntry(c.result.State.FlatPos(), src)
		return
	}
	for i := uint32(0); i < rsel.SelectedSize; i++ {
		c.fillEntry(rsel.Pos(i), src)
	}
}

func (c *Case) fillEntry(resultPos uint32, src *vector.ValueVector) {
	if c.filledMask[resultPos] {
		return
	}
	c.filledMask[resultPos] = true
	c.filledCount++
	srcPos := resultPos
	if src.State.IsFlat() {
		srcPos = src.State.FlatPos()
	}
	c.result.CopyFromVectorData(resultPos, src, srcPos)
}

func (c *Case) ResultVector() *vector.ValueVector { return c.result }

func (c *Case) IsResultFlat() bool { return c.result.State.IsFlat() }
