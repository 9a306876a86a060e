package expression

import (
	"strings"

	"github.com/untoldecay/kuzugo/internal/types"
	"github.com/untoldecay/kuzugo/internal/vector"
)

// operandPos resolves the physical position of an operand for the result
// row at physical position pos: flat operands broadcast.
func operandPos(v *vector.ValueVector, pos uint32) uint32 {
	if v.State.IsFlat() {
		return v.State.FlatPos()
	}
	return pos
}

// forEachResultPos walks the result vector's selection.
func forEachResultPos(result *vector.ValueVector, fn func(pos uint32)) {
	sel := result.State.Sel
	if result.State.IsFlat() {
		fn(result.State.FlatPos())
		return
	}
	for i := uint32(0); i < sel.SelectedSize; i++ {
		fn(sel.Pos(i))
	}
}

// asFloat widens any numeric slot to float64 for mixed arithmetic.
func asFloat(v *vector.ValueVector, pos uint32) float64 {
	switch v.Type.ID {
	case types.TypeDouble, types.TypeFloat:
		return v.Float64(pos)
	default:
		return float64(v.Int64(pos))
	}
}

func isIntType(t *types.LogicalType) bool {
	switch t.ID {
	case types.TypeInt64, types.TypeInt32, types.TypeInt16, types.TypeSerial:
		return true
	}
	return false
}

// compareSlots orders two slots of comparable vectors: -1, 0, or 1.
func compareSlots(l *vector.ValueVector, lp uint32, r *vector.ValueVector, rp uint32) int {
	if isIntType(l.Type) && isIntType(r.Type) {
		a, b := l.Int64(lp), r.Int64(rp)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	if l.Type.IsNumeric() && r.Type.IsNumeric() {
		a, b := asFloat(l, lp), asFloat(r, rp)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	switch l.Type.ID {
	case types.TypeString:
		return strings.Compare(l.Str(lp), r.Str(rp))
	case types.TypeBool:
		a, b := l.Bool(lp), r.Bool(rp)
		switch {
		case a == b:
			return 0
		case !a:
			return -1
		}
		return 1
	case types.TypeDate, types.TypeTimestamp:
		a, b := l.Int64(lp), r.Int64(rp)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case types.TypeInternalID:
		a, b := l.ID(lp), r.ID(rp)
		switch {
		case a.TableID < b.TableID:
			return -1
		case a.TableID > b.TableID:
			return 1
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	}
	return 0
}

func makeComparisonExec(test func(cmp int) bool) ScalarFunc {
	return func(params []*vector.ValueVector, result *vector.ValueVector) error {
		l, r := params[0], params[1]
		forEachResultPos(result, func(pos uint32) {
			lp, rp := operandPos(l, pos), operandPos(r, pos)
			if l.IsNull(lp) || r.IsNull(rp) {
				result.SetNull(pos, true)
				return
			}
			result.SetNull(pos, false)
			result.SetBool(pos, test(compareSlots(l, lp, r, rp)))
		})
		return nil
	}
}

func makeArithmeticExec(name string) ScalarFunc {
	return func(params []*vector.ValueVector, result *vector.ValueVector) error {
		l, r := params[0], params[1]
		intOut := isIntType(result.Type)
		forEachResultPos(result, func(pos uint32) {
			lp, rp := operandPos(l, pos), operandPos(r, pos)
			if l.IsNull(lp) || r.IsNull(rp) {
				result.SetNull(pos, true)
				return
			}
			if intOut {
				a, b := l.Int64(lp), r.Int64(rp)
				var out int64
				switch name {
				case "+":
					out = a + b
				case "-":
					out = a - b
				case "*":
					out = a * b
				case "/":
					if b == 0 {
						result.SetNull(pos, true)
						return
					}
					out = a / b
				case "%":
					if b == 0 {
						result.SetNull(pos, true)
						return
					}
					out = a % b
				}
				result.SetNull(pos, false)
				result.SetInt64(pos, out)
				return
			}
			a, b := asFloat(l, lp), asFloat(r, rp)
			var out float64
			switch name {
			case "+":
				out = a + b
			case "-":
				out = a - b
			case "*":
				out = a * b
			case "/":
				out = a / b
			}
			result.SetNull(pos, false)
			result.SetFloat64(pos, out)
		})
		return nil
	}
}

func andExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	l, r := params[0], params[1]
	forEachResultPos(result, func(pos uint32) {
		lp, rp := operandPos(l, pos), operandPos(r, pos)
		lNull, rNull := l.IsNull(lp), r.IsNull(rp)
		// Three-valued logic: false dominates null.
		if (!lNull && !l.Bool(lp)) || (!rNull && !r.Bool(rp)) {
			result.SetNull(pos, false)
			result.SetBool(pos, false)
			return
		}
		if lNull || rNull {
			result.SetNull(pos, true)
			return
		}
		result.SetNull(pos, false)
		result.SetBool(pos, true)
	})
	return nil
}

func orExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	l, r := params[0], params[1]
	forEachResultPos(result, func(pos uint32) {
		lp, rp := operandPos(l, pos), operandPos(r, pos)
		lNull, rNull := l.IsNull(lp), r.IsNull(rp)
		if (!lNull && l.Bool(lp)) || (!rNull && r.Bool(rp)) {
			result.SetNull(pos, false)
			result.SetBool(pos, true)
			return
		}
		if lNull || rNull {
			result.SetNull(pos, true)
			return
		}
		result.SetNull(pos, false)
		result.SetBool(pos, false)
	})
	return nil
}

func notExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	p := params[0]
	forEachResultPos(result, func(pos uint32) {
		pp := operandPos(p, pos)
		if p.IsNull(pp) {
			result.SetNull(pos, true)
			return
		}
		result.SetNull(pos, false)
		result.SetBool(pos, !p.Bool(pp))
	})
	return nil
}

// StructPackExec packs the parameter vectors into the result struct's
// fields, one parameter per field in order. Pattern evaluators reuse it.
func StructPackExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	fields := result.Fields()
	forEachResultPos(result, func(pos uint32) {
		result.SetNull(pos, false)
		for i, p := range params {
			if i >= len(fields) {
				break
			}
			fields[i].CopyFromVectorData(pos, p, operandPos(p, pos))
		}
	})
	return nil
}

// nullifExec: NULL when a == b, else a.
func nullifExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	a, b := params[0], params[1]
	forEachResultPos(result, func(pos uint32) {
		ap, bp := operandPos(a, pos), operandPos(b, pos)
		if !a.IsNull(ap) && !b.IsNull(bp) && compareSlots(a, ap, b, bp) == 0 {
			result.SetNull(pos, true)
			return
		}
		result.CopyFromVectorData(pos, a, ap)
	})
	return nil
}

// typeofExec returns the argument's type name, null-insensitive.
func typeofExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	name := params[0].Type.String()
	forEachResultPos(result, func(pos uint32) {
		result.SetNull(pos, false)
		result.SetStr(pos, name)
	})
	return nil
}

// constantOrNullExec returns the first argument where the second is
// non-null, else NULL.
func constantOrNullExec(params []*vector.ValueVector, result *vector.ValueVector) error {
	c, probe := params[0], params[1]
	forEachResultPos(result, func(pos uint32) {
		if probe.IsNull(operandPos(probe, pos)) {
			result.SetNull(pos, true)
			return
		}
		result.CopyFromVectorData(pos, c, operandPos(c, pos))
	})
	return nil
}

// ScalarDefinition resolves a function name and argument types to an exec
// function and return type.
type ScalarDefinition struct {
	Exec       ScalarFunc
	ReturnType func(args []*types.LogicalType) *types.LogicalType
}

func numericResultType(args []*types.LogicalType) *types.LogicalType {
	for _, a := range args {
		if a.ID == types.TypeDouble || a.ID == types.TypeFloat {
			return types.NewType(types.TypeDouble)
		}
	}
	return types.NewType(types.TypeInt64)
}

func boolType([]*types.LogicalType) *types.LogicalType { return types.NewType(types.TypeBool) }

var scalarRegistry = map[string]ScalarDefinition{
	"=":   {Exec: makeComparisonExec(func(c int) bool { return c == 0 }), ReturnType: boolType},
	"<>":  {Exec: makeComparisonExec(func(c int) bool { return c != 0 }), ReturnType: boolType},
	"<":   {Exec: makeComparisonExec(func(c int) bool { return c < 0 }), ReturnType: boolType},
	"<=":  {Exec: makeComparisonExec(func(c int) bool { return c <= 0 }), ReturnType: boolType},
	">":   {Exec: makeComparisonExec(func(c int) bool { return c > 0 }), ReturnType: boolType},
	">=":  {Exec: makeComparisonExec(func(c int) bool { return c >= 0 }), ReturnType: boolType},
	"+":   {Exec: makeArithmeticExec("+"), ReturnType: numericResultType},
	"-":   {Exec: makeArithmeticExec("-"), ReturnType: numericResultType},
	"*":   {Exec: makeArithmeticExec("*"), ReturnType: numericResultType},
	"/":   {Exec: makeArithmeticExec("/"), ReturnType: numericResultType},
	"%":   {Exec: makeArithmeticExec("%"), ReturnType: numericResultType},
	"AND": {Exec: andExec, ReturnType: boolType},
	"OR":  {Exec: orExec, ReturnType: boolType},
	"NOT": {Exec: notExec, ReturnType: boolType},
	"NULLIF": {Exec: nullifExec, ReturnType: func(args []*types.LogicalType) *types.LogicalType {
		return args[0]
	}},
	"TYPEOF": {Exec: typeofExec, ReturnType: func([]*types.LogicalType) *types.LogicalType {
		return types.NewType(types.TypeString)
	}},
	"CONSTANT_OR_NULL": {Exec: constantOrNullExec, ReturnType: func(args []*types.LogicalType) *types.LogicalType {
		return args[0]
	}},
}

// LookupScalar resolves a scalar function by name. The bool result is
// false for unknown names.
func LookupScalar(name string) (ScalarDefinition, bool) {
	def, ok := scalarRegistry[strings.ToUpper(name)]
	return def, ok
}

// CastExec builds the exec function of an implicit cast inserted at
// binding time.
func CastExec(target *types.LogicalType) ScalarFunc {
	return func(params []*vector.ValueVector, result *vector.ValueVector) error {
		p := params[0]
		var firstErr error
		forEachResultPos(result, func(pos uint32) {
			pp := operandPos(p, pos)
			if p.IsNull(pp) {
				result.SetNull(pos, true)
				return
			}
			val, ok := p.GetAsValue(pp).CastTo(target)
			if !ok {
				if firstErr == nil {
					firstErr = types.NewRuntimeError(
						"cannot cast %s to %s", p.Type, target)
				}
				result.SetNull(pos, true)
				return
			}
			result.SetFromValue(pos, val)
		})
		return firstErr
	}
}
