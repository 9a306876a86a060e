// Package evaluator executes bound expressions over a ResultSet of
// columnar data chunks. Every variant implements the same three-method
// contract: Init once per plan, Evaluate per batch, Select for predicate
// passes.
package evaluator

import (
	"sync/atomic"

	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// Context carries the per-statement cancellation flag. Workers poll it at
// morsel boundaries only.
type Context struct {
	interrupt *atomic.Bool
}

func NewContext() *Context {
	return &Context{interrupt: &atomic.Bool{}}
}

func (c *Context) Interrupt() { c.interrupt.Store(true) }

func (c *Context) IsInterrupted() bool { return c.interrupt.Load() }

// CheckInterrupt returns the interrupt error when cancellation is pending.
func (c *Context) CheckInterrupt() error {
	if c.IsInterrupted() {
		return types.NewInterruptError()
	}
	return nil
}

// Evaluator is the three-method evaluation contract.
type Evaluator interface {
	// Init allocates the result vector and child state, once per plan.
	Init(rs *vector.ResultSet) error
	// Evaluate populates the result vector for the current chunk.
	Evaluate(ctx *Context) error
	// Select runs the predicate pass: it fills sel with the passing
	// positions and reports whether any row passed.
	Select(sel *vector.SelectionVector, ctx *Context) (bool, error)
	// ResultVector is valid after Init.
	ResultVector() *vector.ValueVector
	IsResultFlat() bool
}

// resolveResultStateFromChildren enforces the flatness rule: a result is
// flat iff all inputs whose position changes per row are flat. An unflat
// child donates its state so the result aligns to the chunk's selection.
func resolveResultStateFromChildren(children []Evaluator) *vector.State {
	for _, c := range children {
		if c != nil && !c.IsResultFlat() {
			return c.ResultVector().State
		}
	}
	return vector.NewFlatState()
}

// selectBoolResult builds a filtered selection from a boolean result
// vector. Null rows count as non-match.
func selectBoolResult(result *vector.ValueVector, sel *vector.SelectionVector) bool {
	if result.State.IsFlat() {
		pos := result.State.FlatPos()
		pass := !result.IsNull(pos) && result.Bool(pos)
		if pass {
			return true
		}
		sel.SetToFiltered()
		sel.SelectedSize = 0
		return false
	}
	rsel := result.State.Sel
	buf := sel.MutableBuffer()
	n := uint32(0)
	for i := uint32(0); i < rsel.SelectedSize; i++ {
		pos := rsel.Pos(i)
		if !result.IsNull(pos) && result.Bool(pos) {
			buf[n] = pos
			n++
		}
	}
	sel.SetToFiltered()
	sel.SelectedSize = n
	return n > 0
}

// Reference reads the vector at a fixed (chunkPos, vectorPos); the only
// per-batch work is pointing the output at the materialized vector.
type Reference struct {
	ChunkPos  int
	VectorPos int
	result    *vector.ValueVector
}

func NewReference(chunkPos, vectorPos int) *Reference {
	return &Reference{ChunkPos: chunkPos, VectorPos: vectorPos}
}

func (r *Reference) Init(rs *vector.ResultSet) error {
	r.result = rs.Vector(r.ChunkPos, r.VectorPos)
	return nil
}

func (r *Reference) Evaluate(*Context) error { return nil }

func (r *Reference) Select(sel *vector.SelectionVector, _ *Context) (bool, error) {
	return selectBoolResult(r.result, sel), nil
}

func (r *Reference) ResultVector() *vector.ValueVector { return r.result }
func (r *Reference) IsResultFlat() bool                { return r.result.State.IsFlat() }

// Literal holds a single value; its result is flat.
type Literal struct {
	Value  types.Value
	result *vector.ValueVector
}

func NewLiteral(v types.Value) *Literal { return &Literal{Value: v} }

func (l *Literal) Init(*vector.ResultSet) error {
	l.result = vector.New(l.Value.Type, vector.NewFlatState())
	l.result.SetFromValue(0, l.Value)
	return nil
}

func (l *Literal) Evaluate(*Context) error { return nil }

func (l *Literal) Select(sel *vector.SelectionVector, _ *Context) (bool, error) {
	return selectBoolResult(l.result, sel), nil
}

func (l *Literal) ResultVector() *vector.ValueVector { return l.result }
func (l *Literal) IsResultFlat() bool                { return true }

// Parameter is like Literal but reads its backing value through a shared
// pointer updated between statements.
type Parameter struct {
	Name   string
	Value  *types.Value
	result *vector.ValueVector
}

func NewParameter(name string, v *types.Value) *Parameter {
	return &Parameter{Name: name, Value: v}
}

func (p *Parameter) Init(*vector.ResultSet) error {
	p.result = vector.New(p.Value.Type, vector.NewFlatState())
	return nil
}

func (p *Parameter) Evaluate(*Context) error {
	p.result.ResetAuxiliaryBuffer()
	p.result.SetFromValue(0, *p.Value)
	return nil
}

func (p *Parameter) Select(sel *vector.SelectionVector, ctx *Context) (bool, error) {
	if err := p.Evaluate(ctx); err != nil {
		return false, err
	}
	return selectBoolResult(p.result, sel), nil
}

func (p *Parameter) ResultVector() *vector.ValueVector { return p.result }
func (p *Parameter) IsResultFlat() bool                { return true }
