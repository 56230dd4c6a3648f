package downcall

import (
	"sync"

	"github.com/jupiterrider/ffi"

	"github.com/ardanlabs/ffi-extract/ffirt"
)

var aggregates sync.Map // *ffirt.Layout -> *ffi.Type

func typeOf(l *ffirt.Layout) *ffi.Type {
	switch l.Kind() {
	case ffirt.KindStruct, ffirt.KindUnion:
		if t, ok := aggregates.Load(l); ok {
			return t.(*ffi.Type)
		}
		t := aggregate(l)
		actual, _ := aggregates.LoadOrStore(l, t)
		return actual.(*ffi.Type)
	case ffirt.KindArray:
		return &ffi.TypePointer
	}

	switch l.Class() {
	case ffirt.ClassBool, ffirt.ClassUint8:
		return &ffi.TypeUint8
	case ffirt.ClassInt8:
		return &ffi.TypeSint8
	case ffirt.ClassInt16:
		return &ffi.TypeSint16
	case ffirt.ClassUint16:
		return &ffi.TypeUint16
	case ffirt.ClassInt32:
		return &ffi.TypeSint32
	case ffirt.ClassUint32:
		return &ffi.TypeUint32
	case ffirt.ClassInt64:
		return &ffi.TypeSint64
	case ffirt.ClassUint64:
		return &ffi.TypeUint64
	case ffirt.ClassFloat32:
		return &ffi.TypeFloat
	case ffirt.ClassFloat64:
		return &ffi.TypeDouble
	}
	return &ffi.TypePointer
}

func aggregate(l *ffirt.Layout) *ffi.Type {
	if l.Kind() == ffirt.KindUnion {
		return union(l)
	}
	var elems []*ffi.Type
	for _, f := range l.Fields() {
		elems = append(elems, flatten(f.Layout)...)
	}
	t := ffi.NewType(elems...)
	return &t
}

// flatten expands arrays into repeated elements, the way libffi expects
// arrays embedded in structs.
func flatten(l *ffirt.Layout) []*ffi.Type {
	if l.Kind() != ffirt.KindArray {
		return []*ffi.Type{typeOf(l)}
	}
	var out []*ffi.Type
	for range max(l.Count(), 0) {
		out = append(out, flatten(l.Elem())...)
	}
	return out
}

// union is modelled as one element run per eightbyte. An eightbyte becomes
// float elements only when every member scalar overlapping it is floating
// point, otherwise it is carried as integers, matching how the SysV
// classifier merges the member classes.
func union(l *ffirt.Layout) *ffi.Type {
	t := ffi.NewType(unionElements(l)...)
	return &t
}

type scalar struct {
	offset, size uintptr
	class        ffirt.Class
}

// scalars lists the value leaves of l with offsets relative to base.
func scalars(l *ffirt.Layout, base uintptr, out []scalar) []scalar {
	switch l.Kind() {
	case ffirt.KindValue:
		return append(out, scalar{offset: base, size: l.Size(), class: l.Class()})
	case ffirt.KindArray:
		for i := range max(l.Count(), 0) {
			out = scalars(l.Elem(), base+uintptr(i)*l.Elem().Size(), out)
		}
	default:
		for _, f := range l.Fields() {
			out = scalars(f.Layout, base+f.Offset, out)
		}
	}
	return out
}

func unionElements(l *ffirt.Layout) []*ffi.Type {
	leaves := scalars(l, 0, nil)
	align := min(max(l.Align(), 1), 8)

	var elems []*ffi.Type
	for off := uintptr(0); off < l.Size(); off += 8 {
		end := min(off+8, l.Size())

		var covered, integer, double bool
		for _, s := range leaves {
			if s.offset >= end || s.offset+s.size <= off {
				continue
			}
			covered = true
			switch s.class {
			case ffirt.ClassFloat64:
				double = true
			case ffirt.ClassFloat32:
			default:
				integer = true
			}
		}

		n := end - off
		switch {
		case !covered || integer || n%4 != 0:
			elems = append(elems, integers(n, align)...)
		case double && n == 8:
			elems = append(elems, &ffi.TypeDouble)
		default:
			for range n / 4 {
				elems = append(elems, &ffi.TypeFloat)
			}
		}
	}
	return elems
}

// integers covers n bytes with unsigned elements no wider than align.
func integers(n, align uintptr) []*ffi.Type {
	var out []*ffi.Type
	for n > 0 {
		switch {
		case n >= 8 && align >= 8:
			out = append(out, &ffi.TypeUint64)
			n -= 8
		case n >= 4 && align >= 4:
			out = append(out, &ffi.TypeUint32)
			n -= 4
		case n >= 2 && align >= 2:
			out = append(out, &ffi.TypeUint16)
			n -= 2
		default:
			out = append(out, &ffi.TypeUint8)
			n--
		}
	}
	return out
}
