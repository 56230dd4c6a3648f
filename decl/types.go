package decl

import (
	"fmt"
	"strings"
)

type Type interface {
	typeNode()
}

// PrimKind is a C arithmetic type. Widths are fixed by the target data
// model, not here.
type PrimKind int

const (
	Void PrimKind = iota
	Bool
	Char
	SChar
	UChar
	Short
	UShort
	Int
	UInt
	Long
	ULong
	LongLong
	ULongLong
	Int128
	UInt128
	Half
	Float
	Double
	LongDouble
	Float128
	WChar
	Char16
	Char32
	// Unknown is any type the parser could not classify.
	Unknown
)

var primNames = [...]string{
	Void:       "void",
	Bool:       "_Bool",
	Char:       "char",
	SChar:      "signed char",
	UChar:      "unsigned char",
	Short:      "short",
	UShort:     "unsigned short",
	Int:        "int",
	UInt:       "unsigned int",
	Long:       "long",
	ULong:      "unsigned long",
	LongLong:   "long long",
	ULongLong:  "unsigned long long",
	Int128:     "__int128",
	UInt128:    "unsigned __int128",
	Half:       "_Float16",
	Float:      "float",
	Double:     "double",
	LongDouble: "long double",
	Float128:   "__float128",
	WChar:      "wchar_t",
	Char16:     "char16_t",
	Char32:     "char32_t",
	Unknown:    "<unknown>",
}

func (k PrimKind) String() string {
	if k >= 0 && int(k) < len(primNames) {
		return primNames[k]
	}
	return fmt.Sprintf("PrimKind(%d)", int(k))
}

// IsUnsigned reports whether k is an unsigned integer kind.
func (k PrimKind) IsUnsigned() bool {
	switch k {
	case Bool, UChar, UShort, UInt, ULong, ULongLong, UInt128, Char16, Char32:
		return true
	}
	return false
}

// IsFloating reports whether k is a floating point kind.
func (k PrimKind) IsFloating() bool {
	switch k {
	case Half, Float, Double, LongDouble, Float128:
		return true
	}
	return false
}

type Primitive struct {
	Kind PrimKind
	// Spelling keeps the native spelling of Unknown types for diagnostics.
	Spelling string
}

type Pointer struct {
	Elem Type
}

// Declared refers to a Scoped declaration by ID. The declaration itself is
// looked up through a Table, which lets aggregates refer to themselves.
type Declared struct {
	ID   ID
	Name string
}

type FunctionType struct {
	Params   []Type
	Result   Type
	Variadic bool
}

// Array is an array type. Len is -1 when the length is unknown.
type Array struct {
	Elem Type
	Len  int64
}

// Delegated is a typedef name standing for Underlying.
type Delegated struct {
	Name       string
	Underlying Type
}

func (Primitive) typeNode()    {}
func (Pointer) typeNode()      {}
func (Declared) typeNode()     {}
func (FunctionType) typeNode() {}
func (Array) typeNode()        {}
func (Delegated) typeNode()    {}

// Prim is shorthand for a Primitive of kind k.
func Prim(k PrimKind) Primitive { return Primitive{Kind: k} }

// PointerTo is shorthand for a Pointer to elem.
func PointerTo(elem Type) Pointer { return Pointer{Elem: elem} }

// Strip removes every Delegated layer around t.
func Strip(t Type) Type {
	for {
		d, ok := t.(Delegated)
		if !ok {
			return t
		}
		t = d.Underlying
	}
}

// Key returns the canonical identity of t. Typedef names do not take part in
// it, so a typedef and its target share one key.
func Key(t Type) string {
	var sb strings.Builder
	writeKey(&sb, t)
	return sb.String()
}

func writeKey(sb *strings.Builder, t Type) {
	switch t := t.(type) {
	case nil:
		sb.WriteString("void")
	case Primitive:
		sb.WriteString(t.Kind.String())
		if t.Kind == Unknown {
			fmt.Fprintf(sb, "(%s)", t.Spelling)
		}
	case Pointer:
		sb.WriteString("*")
		writeKey(sb, t.Elem)
	case Declared:
		fmt.Fprintf(sb, "#%d", t.ID)
	case FunctionType:
		sb.WriteString("fn(")
		for i, p := range t.Params {
			if i > 0 {
				sb.WriteString(",")
			}
			writeKey(sb, p)
		}
		if t.Variadic {
			sb.WriteString(",...")
		}
		sb.WriteString(")")
		writeKey(sb, t.Result)
	case Array:
		fmt.Fprintf(sb, "[%d]", t.Len)
		writeKey(sb, t.Elem)
	case Delegated:
		writeKey(sb, t.Underlying)
	default:
		panic(fmt.Sprintf("decl: unknown type %T", t))
	}
}

// Spell renders t roughly as C would spell it.
func Spell(t Type) string {
	switch t := t.(type) {
	case nil:
		return "void"
	case Primitive:
		if t.Kind == Unknown && t.Spelling != "" {
			return t.Spelling
		}
		return t.Kind.String()
	case Pointer:
		return Spell(t.Elem) + "*"
	case Declared:
		return t.Name
	case FunctionType:
		params := make([]string, 0, len(t.Params)+1)
		for _, p := range t.Params {
			params = append(params, Spell(p))
		}
		if t.Variadic {
			params = append(params, "...")
		}
		return fmt.Sprintf("%s(%s)", Spell(t.Result), strings.Join(params, ", "))
	case Array:
		if t.Len < 0 {
			return Spell(t.Elem) + "[]"
		}
		return fmt.Sprintf("%s[%d]", Spell(t.Elem), t.Len)
	case Delegated:
		return t.Name
	default:
		panic(fmt.Sprintf("decl: unknown type %T", t))
	}
}
