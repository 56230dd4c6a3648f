package parser

import (
	"fmt"
	"math"

	"github.com/ardanlabs/ffi-extract/decl"
)

// Arithmetic on folded values follows the C conversion rules for the
// target data model.

func rank(k decl.PrimKind) int {
	switch k {
	case decl.Bool:
		return 0
	case decl.Char, decl.SChar, decl.UChar:
		return 1
	case decl.Short, decl.UShort, decl.Char16:
		return 2
	case decl.Int, decl.UInt, decl.WChar, decl.Char32:
		return 3
	case decl.Long, decl.ULong:
		return 4
	default:
		return 5
	}
}

func unsignedOf(k decl.PrimKind) decl.PrimKind {
	switch k {
	case decl.Int:
		return decl.UInt
	case decl.Long:
		return decl.ULong
	case decl.LongLong:
		return decl.ULongLong
	}
	return k
}

func (e *evaluator) bits(k decl.PrimKind) int {
	return e.b.model.Bits(k)
}

// normalize truncates v to the width of its type and re-extends it.
func (e *evaluator) normalize(v value) value {
	w := e.bits(v.prim)
	if v.kind != intKind || w == 0 || w >= 64 {
		return v
	}
	if v.prim == decl.Bool {
		if v.bits != 0 {
			v.bits = 1
		}
		return v
	}
	mask := uint64(1)<<w - 1
	v.bits &= mask
	if !v.prim.IsUnsigned() && v.bits&(1<<(w-1)) != 0 {
		v.bits |= ^mask
	}
	return v
}

func (e *evaluator) promote(v value) value {
	if v.kind != intKind || rank(v.prim) >= 3 {
		return v
	}
	return e.convert(v, decl.Int)
}

// common returns the type both operands convert to.
func (e *evaluator) common(a, b value) decl.PrimKind {
	if a.kind == floatKind || b.kind == floatKind {
		switch {
		case a.prim == decl.LongDouble || b.prim == decl.LongDouble:
			return decl.LongDouble
		case a.kind == floatKind && b.kind == floatKind && a.prim == decl.Float && b.prim == decl.Float:
			return decl.Float
		case a.kind == floatKind && a.prim == decl.Float && b.kind != floatKind:
			return decl.Float
		case b.kind == floatKind && b.prim == decl.Float && a.kind != floatKind:
			return decl.Float
		}
		return decl.Double
	}
	ka, kb := e.promote(a).prim, e.promote(b).prim
	if ka == kb {
		return ka
	}
	ua, ub := ka.IsUnsigned(), kb.IsUnsigned()
	if ua == ub {
		if rank(ka) >= rank(kb) {
			return ka
		}
		return kb
	}
	u, s := ka, kb
	if ub {
		u, s = kb, ka
	}
	switch {
	case rank(u) >= rank(s):
		return u
	case e.bits(s) > e.bits(u):
		return s
	default:
		return unsignedOf(s)
	}
}

func (v value) toFloat() float64 {
	switch v.kind {
	case floatKind:
		return v.f
	case intKind:
		if v.prim.IsUnsigned() {
			return float64(v.bits)
		}
		return float64(int64(v.bits))
	}
	return 0
}

func (e *evaluator) convert(v value, k decl.PrimKind) value {
	if k.IsFloating() {
		f := v.toFloat()
		if k == decl.Float {
			f = float64(float32(f))
		}
		return value{kind: floatKind, prim: k, f: f}
	}
	if v.kind == floatKind {
		var bits uint64
		if k.IsUnsigned() {
			bits = uint64(v.f)
		} else {
			bits = uint64(int64(v.f))
		}
		return e.normalize(intValue(k, bits))
	}
	return e.normalize(intValue(k, v.bits))
}

func (v value) truth() (bool, error) {
	switch v.kind {
	case intKind, addressKind:
		return v.bits != 0, nil
	case floatKind:
		return v.f != 0, nil
	}
	return true, nil
}

func boolValue(b bool) value {
	if b {
		return intValue(decl.Int, 1)
	}
	return intValue(decl.Int, 0)
}

func (e *evaluator) applyUnary(op string, v value) (value, error) {
	if v.kind == stringKind || v.kind == addressKind {
		if op == "!" {
			t, _ := v.truth()
			return boolValue(!t), nil
		}
		return value{}, fmt.Errorf("operator %s on a pointer", op)
	}
	switch op {
	case "+":
		return e.promote(v), nil
	case "-":
		if v.kind == floatKind {
			v.f = -v.f
			return v, nil
		}
		v = e.promote(v)
		v.bits = -v.bits
		return e.normalize(v), nil
	case "~":
		if v.kind == floatKind {
			return value{}, fmt.Errorf("operator ~ on a floating value")
		}
		v = e.promote(v)
		v.bits = ^v.bits
		return e.normalize(v), nil
	case "!":
		t, _ := v.truth()
		return boolValue(!t), nil
	}
	return value{}, fmt.Errorf("unknown operator %s", op)
}

func (e *evaluator) apply(op string, a, b value) (value, error) {
	switch op {
	case "&&", "||":
		ta, _ := a.truth()
		tb, _ := b.truth()
		if op == "&&" {
			return boolValue(ta && tb), nil
		}
		return boolValue(ta || tb), nil
	}
	if a.kind == stringKind || b.kind == stringKind || a.kind == addressKind || b.kind == addressKind {
		return value{}, fmt.Errorf("operator %s on a pointer", op)
	}

	if op == "<<" || op == ">>" {
		return e.shift(op, a, b)
	}

	k := e.common(a, b)
	a, b = e.convert(a, k), e.convert(b, k)
	if a.kind == floatKind {
		return floatOp(op, a, b)
	}

	unsigned := k.IsUnsigned()
	x, y := a.bits, b.bits
	r := intValue(k, 0)
	switch op {
	case "+":
		r.bits = x + y
	case "-":
		r.bits = x - y
	case "*":
		r.bits = x * y
	case "/", "%":
		if y == 0 {
			return value{}, fmt.Errorf("division by zero")
		}
		if unsigned {
			if op == "/" {
				r.bits = x / y
			} else {
				r.bits = x % y
			}
			break
		}
		sx, sy := int64(x), int64(y)
		if sx == math.MinInt64 && sy == -1 {
			return value{}, fmt.Errorf("division overflow")
		}
		if op == "/" {
			r.bits = uint64(sx / sy)
		} else {
			r.bits = uint64(sx % sy)
		}
	case "&":
		r.bits = x & y
	case "|":
		r.bits = x | y
	case "^":
		r.bits = x ^ y
	case "==":
		return boolValue(x == y), nil
	case "!=":
		return boolValue(x != y), nil
	case "<", ">", "<=", ">=":
		var c int
		if unsigned {
			c = compare(x, y)
		} else {
			c = compare(int64(x), int64(y))
		}
		return boolValue(ordered(op, c)), nil
	default:
		return value{}, fmt.Errorf("unknown operator %s", op)
	}
	return e.normalize(r), nil
}

func (e *evaluator) shift(op string, a, b value) (value, error) {
	if a.kind != intKind || b.kind != intKind {
		return value{}, fmt.Errorf("operator %s on a floating value", op)
	}
	a, b = e.promote(a), e.promote(b)
	n := int64(b.bits)
	if b.prim.IsUnsigned() && b.bits > math.MaxInt64 {
		n = -1
	}
	if n < 0 || n >= int64(e.bits(a.prim)) {
		return value{}, fmt.Errorf("shift count %d out of range", n)
	}
	if op == "<<" {
		a.bits <<= uint(n)
	} else if a.prim.IsUnsigned() {
		a.bits >>= uint(n)
	} else {
		a.bits = uint64(int64(a.bits) >> uint(n))
	}
	return e.normalize(a), nil
}

func floatOp(op string, a, b value) (value, error) {
	r := value{kind: floatKind, prim: a.prim}
	x, y := a.f, b.f
	switch op {
	case "+":
		r.f = x + y
	case "-":
		r.f = x - y
	case "*":
		r.f = x * y
	case "/":
		r.f = x / y
	case "==":
		return boolValue(x == y), nil
	case "!=":
		return boolValue(x != y), nil
	case "<", ">", "<=", ">=":
		if math.IsNaN(x) || math.IsNaN(y) {
			return boolValue(false), nil
		}
		return boolValue(ordered(op, compare(x, y))), nil
	default:
		return value{}, fmt.Errorf("operator %s on a floating value", op)
	}
	if r.prim == decl.Float {
		r.f = float64(float32(r.f))
	}
	return r, nil
}

func compare[T int64 | uint64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func ordered(op string, c int) bool {
	switch op {
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "<=":
		return c <= 0
	}
	return c >= 0
}
