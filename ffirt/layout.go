// Package ffirt is the runtime imported by generated bindings: symbol lookup,
// memoized symbol cells, memory layouts, variadic argument promotion, call
// tracing and callbacks.
//
// Generated accessors report failures by panicking with one of the error
// types of this package. Recover and use errors.As to inspect them.
package ffirt

import "fmt"

// Class is the transport class of a value layout.
type Class int

const (
	ClassNone Class = iota
	ClassBool
	ClassInt8
	ClassInt16
	ClassInt32
	ClassInt64
	ClassUint8
	ClassUint16
	ClassUint32
	ClassUint64
	ClassFloat32
	ClassFloat64
	ClassPointer
)

type Kind int

const (
	KindValue Kind = iota
	KindStruct
	KindUnion
	KindArray
)

// Layout describes the memory shape of a native type. Layouts are compared
// by identity: a typedef shares the layout value of the type it names.
type Layout struct {
	kind   Kind
	class  Class
	name   string
	size   uintptr
	align  uintptr
	fields []FieldLayout
	elem   *Layout
	count  int
}

type FieldLayout struct {
	Name   string
	Offset uintptr
	Layout *Layout
}

func value(c Class, size uintptr) *Layout {
	return &Layout{kind: KindValue, class: c, size: size, align: size}
}

var (
	Bool    = value(ClassBool, 1)
	Int8    = value(ClassInt8, 1)
	Int16   = value(ClassInt16, 2)
	Int32   = value(ClassInt32, 4)
	Int64   = value(ClassInt64, 8)
	Uint8   = value(ClassUint8, 1)
	Uint16  = value(ClassUint16, 2)
	Uint32  = value(ClassUint32, 4)
	Uint64  = value(ClassUint64, 8)
	Float32 = value(ClassFloat32, 4)
	Float64 = value(ClassFloat64, 8)
	Pointer = value(ClassPointer, 8)
)

// Field describes one member of an aggregate.
func Field(name string, offset uintptr, l *Layout) FieldLayout {
	return FieldLayout{Name: name, Offset: offset, Layout: l}
}

func Struct(name string, size, align uintptr, fields ...FieldLayout) *Layout {
	return &Layout{kind: KindStruct, name: name, size: size, align: align, fields: fields}
}

func Union(name string, size, align uintptr, fields ...FieldLayout) *Layout {
	return &Layout{kind: KindUnion, name: name, size: size, align: align, fields: fields}
}

// Array describes count elements of elem. A negative count is an array of
// unknown length.
func Array(elem *Layout, count int) *Layout {
	l := &Layout{kind: KindArray, elem: elem, count: count, align: elem.align}
	if count > 0 {
		l.size = elem.size * uintptr(count)
	}
	return l
}

func (l *Layout) Kind() Kind            { return l.kind }
func (l *Layout) Class() Class          { return l.class }
func (l *Layout) Name() string          { return l.name }
func (l *Layout) Size() uintptr         { return l.size }
func (l *Layout) Align() uintptr        { return l.align }
func (l *Layout) Fields() []FieldLayout { return l.fields }
func (l *Layout) Elem() *Layout         { return l.elem }
func (l *Layout) Count() int            { return l.count }
func (l *Layout) IsAggregate() bool     { return l.kind == KindStruct || l.kind == KindUnion }

func (l *Layout) FieldByName(name string) (FieldLayout, bool) {
	for _, f := range l.fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldLayout{}, false
}

func (l *Layout) String() string {
	switch l.kind {
	case KindStruct:
		return fmt.Sprintf("struct %s(size=%d,align=%d)", l.name, l.size, l.align)
	case KindUnion:
		return fmt.Sprintf("union %s(size=%d,align=%d)", l.name, l.size, l.align)
	case KindArray:
		return fmt.Sprintf("[%d]%s", l.count, l.elem)
	}
	switch l.class {
	case ClassBool:
		return "bool"
	case ClassInt8:
		return "int8"
	case ClassInt16:
		return "int16"
	case ClassInt32:
		return "int32"
	case ClassInt64:
		return "int64"
	case ClassUint8:
		return "uint8"
	case ClassUint16:
		return "uint16"
	case ClassUint32:
		return "uint32"
	case ClassUint64:
		return "uint64"
	case ClassFloat32:
		return "float32"
	case ClassFloat64:
		return "float64"
	case ClassPointer:
		return "pointer"
	}
	return "none"
}
