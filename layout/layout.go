// Package layout computes sizes, alignments, field offsets and carrier
// classes for declaration types under a target C ABI.
package layout

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/ffi-extract/decl"
)

// Carrier is the transport class of a scalar value. Generated accessors are
// shaped by the carrier, never by the native spelling.
type Carrier int

const (
	// None is the carrier of aggregates and arrays.
	None Carrier = iota
	Void
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Address
)

var carrierNames = [...]string{
	None:    "none",
	Void:    "void",
	Bool:    "bool",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
	Address: "address",
}

func (c Carrier) String() string {
	if c >= 0 && int(c) < len(carrierNames) {
		return carrierNames[c]
	}
	return fmt.Sprintf("Carrier(%d)", int(c))
}

// IsInteger reports whether c carries a fixed-width integer.
func (c Carrier) IsInteger() bool {
	return c >= Int8 && c <= Uint64
}

func (c Carrier) IsFloat() bool {
	return c == Float32 || c == Float64
}

type Kind int

const (
	Value Kind = iota
	Struct
	Union
	Array
)

func (k Kind) String() string {
	switch k {
	case Value:
		return "value"
	case Struct:
		return "struct"
	case Union:
		return "union"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type Layout struct {
	Kind    Kind
	Carrier Carrier
	// Name is the aggregate name; empty for values and arrays.
	Name  string
	Size  int64
	Align int64

	Fields []Field

	// Elem and Count describe arrays. Count is -1 for unknown length.
	Elem  *Layout
	Count int64
}

type Field struct {
	Name   string
	Offset int64
	Type   decl.Type
	Layout *Layout
}

// IsAggregate reports whether l is a struct or union.
func (l *Layout) IsAggregate() bool {
	return l.Kind == Struct || l.Kind == Union
}

func (l *Layout) String() string {
	switch l.Kind {
	case Value:
		return l.Carrier.String()
	case Array:
		return fmt.Sprintf("[%d]%s", l.Count, l.Elem)
	default:
		parts := make([]string, len(l.Fields))
		for i, f := range l.Fields {
			parts[i] = fmt.Sprintf("%s@%d:%s", f.Name, f.Offset, f.Layout)
		}
		return fmt.Sprintf("%s %s{%s}(size=%d,align=%d)", l.Kind, l.Name, strings.Join(parts, " "), l.Size, l.Align)
	}
}

// Descriptor is the call shape of a function: the return layout (nil for
// void) followed by the declared argument layouts. Layouts of variadic
// arguments are only known per call site.
type Descriptor struct {
	Result   *Layout
	Args     []*Layout
	Variadic bool
}

// UnsupportedTypeError reports a type that has no layout or carrier.
type UnsupportedTypeError struct {
	Type   string
	Reason string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %s: %s", e.Type, e.Reason)
}

func unsupported(t decl.Type, format string, args ...any) error {
	return &UnsupportedTypeError{Type: decl.Spell(t), Reason: fmt.Sprintf(format, args...)}
}

func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
