// Package downcall calls native functions through libffi. It is split from
// ffirt because loading libffi happens at package initialization.
package downcall

import (
	"fmt"
	"reflect"
	"sync"
	"unsafe"

	"github.com/jupiterrider/ffi"

	"github.com/ardanlabs/ffi-extract/ffirt"
)

// Symbol is a lazily resolved function address.
type Symbol interface {
	Name() string
	MustResolve() unsafe.Pointer
}

type address struct {
	name string
	p    unsafe.Pointer
}

func (a address) Name() string                { return a.name }
func (a address) MustResolve() unsafe.Pointer { return a.p }

// Handle is a prepared call to one native function signature.
type Handle struct {
	symbol Symbol
	result *ffirt.Layout
	args   []*ffirt.Layout
	cif    func() *ffi.Cif
}

// New describes a call to symbol. result is nil for void functions. The
// call interface is prepared on the first call.
func New(symbol Symbol, result *ffirt.Layout, args ...*ffirt.Layout) *Handle {
	return newHandle(symbol, result, args, -1)
}

// NewVariadic describes a call to a variadic function whose declared
// arguments are args. Call passes no extra arguments.
func NewVariadic(symbol Symbol, result *ffirt.Layout, args ...*ffirt.Layout) *Handle {
	return newHandle(symbol, result, args, len(args))
}

func newHandle(symbol Symbol, result *ffirt.Layout, args []*ffirt.Layout, fixed int) *Handle {
	h := &Handle{symbol: symbol, result: result, args: args}
	h.cif = sync.OnceValue(func() *ffi.Cif {
		cif, err := prepare(result, args, fixed)
		if err != nil {
			panic(fmt.Errorf("%s: %w", symbol.Name(), err))
		}
		return cif
	})
	return h
}

// FromAddress describes a call through a function pointer.
func FromAddress(p unsafe.Pointer, result *ffirt.Layout, args ...*ffirt.Layout) *Handle {
	return New(address{name: fmt.Sprintf("%p", p), p: p}, result, args...)
}

func (h *Handle) Name() string { return h.symbol.Name() }

// Call invokes the function. ret points to storage for the result and is
// ignored for void functions. Each element of args points to one argument.
func (h *Handle) Call(ret unsafe.Pointer, args ...unsafe.Pointer) {
	fn := h.symbol.MustResolve()
	invoke(h.cif(), fn, h.result, ret, args)
}

// CallVariadic invokes a variadic function. fixed holds the declared
// arguments; extras are promoted according to layouts.
func (h *Handle) CallVariadic(ret unsafe.Pointer, layouts []*ffirt.Layout, extras []any, fixed ...unsafe.Pointer) {
	fn := h.symbol.MustResolve()

	all := append(append([]*ffirt.Layout(nil), h.args...), layouts...)
	cif, err := prepare(h.result, all, len(h.args))
	if err != nil {
		panic(fmt.Errorf("%s: %w", h.symbol.Name(), err))
	}

	values := append([]unsafe.Pointer(nil), fixed...)
	for i, v := range extras {
		values = append(values, promote(v, layouts[i]))
	}
	invoke(cif, fn, h.result, ret, values)
}

// prepare builds a call interface. fixed is the number of declared
// arguments of a variadic call, or -1.
func prepare(result *ffirt.Layout, args []*ffirt.Layout, fixed int) (*ffi.Cif, error) {
	rtype := &ffi.TypeVoid
	if result != nil {
		rtype = typeOf(result)
	}
	atypes := make([]*ffi.Type, len(args))
	for i, a := range args {
		atypes[i] = typeOf(a)
	}

	var cif ffi.Cif
	var status ffi.Status
	if fixed < 0 {
		status = ffi.PrepCif(&cif, ffi.DefaultAbi, uint32(len(atypes)), rtype, atypes...)
	} else {
		status = ffi.PrepCifVar(&cif, ffi.DefaultAbi, uint32(fixed), uint32(len(atypes)), rtype, atypes...)
	}
	if status != ffi.OK {
		return nil, fmt.Errorf("preparing call interface: status %d", status)
	}
	return &cif, nil
}

func invoke(cif *ffi.Cif, fn unsafe.Pointer, result *ffirt.Layout, ret unsafe.Pointer, args []unsafe.Pointer) {
	if result == nil || ret == nil {
		ffi.Call(cif, uintptr(fn), nil, args...)
		return
	}
	if result.Kind() != ffirt.KindValue || result.Size() == 8 || result.Class() == ffirt.ClassFloat32 {
		ffi.Call(cif, uintptr(fn), ret, args...)
		return
	}

	// libffi widens integral results to a full register.
	var raw uint64
	ffi.Call(cif, uintptr(fn), unsafe.Pointer(&raw), args...)
	switch result.Class() {
	case ffirt.ClassBool, ffirt.ClassInt8, ffirt.ClassUint8:
		*(*uint8)(ret) = uint8(raw)
	case ffirt.ClassInt16, ffirt.ClassUint16:
		*(*uint16)(ret) = uint16(raw)
	case ffirt.ClassInt32, ffirt.ClassUint32:
		*(*uint32)(ret) = uint32(raw)
	}
}

// promote stores a variadic value in the width its layout demands.
func promote(v any, l *ffirt.Layout) unsafe.Pointer {
	rv := reflect.ValueOf(v)
	switch l.Class() {
	case ffirt.ClassInt32:
		x := int32(integer(rv))
		return unsafe.Pointer(&x)
	case ffirt.ClassInt64:
		x := integer(rv)
		return unsafe.Pointer(&x)
	case ffirt.ClassFloat64:
		x := rv.Float()
		return unsafe.Pointer(&x)
	}
	var p unsafe.Pointer
	switch rv.Kind() {
	case reflect.Uintptr:
		u := uintptr(rv.Uint())
		p = *(*unsafe.Pointer)(unsafe.Pointer(&u))
	default:
		p = rv.UnsafePointer()
	}
	return unsafe.Pointer(&p)
}

func integer(rv reflect.Value) int64 {
	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			return 1
		}
		return 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(rv.Uint())
	}
	return rv.Int()
}
