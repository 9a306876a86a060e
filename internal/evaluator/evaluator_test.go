package evaluator

import (
	"testing"

	"github.com/untoldecay/kuzugo/internal/expression"
	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

func litEval(v types.Value) *Literal { return NewLiteral(v) }

func scalarFunc(t *testing.T, name string, children ...Evaluator) *Function {
	t.Helper()
	def, ok := expression.LookupScalar(name)
	if !ok {
		t.Fatalf("unknown scalar %s", name)
	}
	argTypes := make([]*types.LogicalType, len(children))
	for i := range children {
		argTypes[i] = types.NewType(types.TypeInt64)
	}
	return NewFunction(def.ReturnType(argTypes), def.Exec, nil, children...)
}

// RETURN CASE WHEN 1<0 THEN 'x' WHEN 2<5 THEN 'y' ELSE 'z' END
func TestCaseFirstMatchingWhenWins(t *testing.T) {
	ctx := NewContext()
	rs := vector.NewResultSet()

	when1 := scalarFunc(t, "<",
		litEval(types.NewInt64Value(1)), litEval(types.NewInt64Value(0)))
	when2 := scalarFunc(t, "<",
		litEval(types.NewInt64Value(2)), litEval(types.NewInt64Value(5)))
	caseEval := NewCase(types.NewType(types.TypeString),
		[]*CaseAlternative{
			{When: when1, Then: litEval(types.NewStringValue("x"))},
			{When: when2, Then: litEval(types.NewStringValue("y"))},
		},
		litEval(types.NewStringValue("z")))

	if err := caseEval.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := caseEval.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	result := caseEval.ResultVector()
	if !result.State.IsFlat() {
		t.Fatal("all-literal CASE should produce a flat result")
	}
	if got := result.Str(result.State.FlatPos()); got != "y" {
		t.Errorf("CASE = %q, want y", got)
	}
}

func TestCaseNullWhenCountsAsNonMatch(t *testing.T) {
	ctx := NewContext()
	rs := vector.NewResultSet()

	nullWhen := litEval(types.NewNullValue(types.NewType(types.TypeBool)))
	caseEval := NewCase(types.NewType(types.TypeInt64),
		[]*CaseAlternative{{When: nullWhen, Then: litEval(types.NewInt64Value(1))}},
		litEval(types.NewInt64Value(2)))
	if err := caseEval.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := caseEval.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	result := caseEval.ResultVector()
	if got := result.Int64(result.State.FlatPos()); got != 2 {
		t.Errorf("CASE = %d, want ELSE value 2", got)
	}
}

func makeInt64Chunk(values []int64, nulls []bool) *vector.DataChunk {
	chunk := vector.NewDataChunk(1)
	chunk.SetSize(uint32(len(values)))
	v := vector.New(types.NewType(types.TypeInt64), chunk.State)
	for i := range values {
		if nulls != nil && nulls[i] {
			v.SetNull(uint32(i), true)
			continue
		}
		v.SetInt64(uint32(i), values[i])
	}
	chunk.Insert(0, v)
	return chunk
}

func TestCaseUnflatPerRow(t *testing.T) {
	ctx := NewContext()
	chunk := makeInt64Chunk([]int64{1, 5, 10}, nil)
	rs := vector.NewResultSet(chunk)

	ref := NewReference(0, 0)
	when := scalarFunc(t, "<", ref, litEval(types.NewInt64Value(4)))
	caseEval := NewCase(types.NewType(types.TypeString),
		[]*CaseAlternative{{When: when, Then: litEval(types.NewStringValue("small"))}},
		litEval(types.NewStringValue("big")))
	if err := caseEval.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := caseEval.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	result := caseEval.ResultVector()
	want := []string{"small", "big", "big"}
	for i, w := range want {
		if got := result.Str(uint32(i)); got != w {
			t.Errorf("row %d = %q, want %q", i, got, w)
		}
	}
}

func TestFunctionSelectNullIsNonMatch(t *testing.T) {
	ctx := NewContext()
	chunk := makeInt64Chunk([]int64{1, 0, 3}, []bool{false, true, false})
	rs := vector.NewResultSet(chunk)

	ref := NewReference(0, 0)
	cmp := scalarFunc(t, ">", ref, litEval(types.NewInt64Value(0)))
	if err := cmp.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	sel := vector.NewSelectionVector(vector.DefaultCapacity)
	hasAny, err := cmp.Select(sel, ctx)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if !hasAny {
		t.Fatal("expected rows to pass")
	}
	if sel.SelectedSize != 2 {
		t.Fatalf("selected = %d, want 2 (null row must not match)", sel.SelectedSize)
	}
	if sel.Pos(0) != 0 || sel.Pos(1) != 2 {
		t.Errorf("selected positions = %d,%d, want 0,2", sel.Pos(0), sel.Pos(1))
	}
}

func TestReferenceEvaluatorIsZeroWork(t *testing.T) {
	chunk := makeInt64Chunk([]int64{7}, nil)
	rs := vector.NewResultSet(chunk)
	ref := NewReference(0, 0)
	if err := ref.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if ref.ResultVector() != chunk.Vectors[0] {
		t.Error("reference must alias the materialized vector")
	}
}

func TestParameterReadsThroughPointer(t *testing.T) {
	ctx := NewContext()
	rs := vector.NewResultSet()
	backing := types.NewInt64Value(1)
	param := NewParameter("p", &backing)
	if err := param.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := param.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	// Update between statements is visible on the next evaluate.
	backing.Int64Val = 42
	if err := param.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	v := param.ResultVector()
	if got := v.Int64(v.State.FlatPos()); got != 42 {
		t.Errorf("parameter = %d, want 42", got)
	}
}

func TestArithmeticDivisionByZeroIsNull(t *testing.T) {
	ctx := NewContext()
	rs := vector.NewResultSet()
	div := scalarFunc(t, "/", litEval(types.NewInt64Value(1)), litEval(types.NewInt64Value(0)))
	if err := div.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := div.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	v := div.ResultVector()
	if !v.IsNull(v.State.FlatPos()) {
		t.Error("1/0 should evaluate to NULL")
	}
}

func TestPatternNullIDNullsStruct(t *testing.T) {
	ctx := NewContext()
	chunk := vector.NewDataChunk(2)
	chunk.SetSize(2)
	idVec := vector.New(types.NewType(types.TypeInternalID), chunk.State)
	idVec.SetID(0, types.InternalID{TableID: 0, Offset: 5})
	idVec.SetNull(1, true)
	labelVec := vector.New(types.NewType(types.TypeString), chunk.State)
	labelVec.SetStr(0, "T")
	labelVec.SetStr(1, "T")
	chunk.Insert(0, idVec)
	chunk.Insert(1, labelVec)
	rs := vector.NewResultSet(chunk)

	nodeType := types.NewNodeType()
	pattern := NewPattern(nodeType, []Evaluator{NewReference(0, 0), NewReference(0, 1)}, 0)
	if err := pattern.Init(rs); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := pattern.Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	result := pattern.ResultVector()
	if result.IsNull(0) {
		t.Error("row 0 should not be null")
	}
	if !result.IsNull(1) {
		t.Error("row with null id must null the whole struct")
	}
}

func TestInterruptUnwinds(t *testing.T) {
	ctx := NewContext()
	ctx.Interrupt()
	if err := ctx.CheckInterrupt(); err == nil {
		t.Fatal("expected interrupt error")
	} else if types.KindOf(err) != types.ErrInterrupt {
		t.Errorf("kind = %v, want interrupt", types.KindOf(err))
	}
}
