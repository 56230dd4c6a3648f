package ffirt

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFinder struct {
	calls atomic.Int32
	addr  unsafe.Pointer
	err   error
}

func (f *countingFinder) Find(string) (unsafe.Pointer, error) {
	f.calls.Add(1)
	return f.addr, f.err
}

func TestLazySymbolResolvesOnce(t *testing.T) {
	var target int32
	f := &countingFinder{addr: unsafe.Pointer(&target)}
	s := NewLazySymbol(f, "counter")

	var wg sync.WaitGroup
	results := make([]unsafe.Pointer, 32)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.MustResolve()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, p := range results {
		assert.Equal(t, unsafe.Pointer(&target), p)
	}
	assert.Equal(t, "counter", s.Name())
}

func TestLazySymbolFailureIsMemoized(t *testing.T) {
	f := &countingFinder{err: &UnresolvedSymbolError{Symbol: "missing"}}
	s := NewLazySymbol(f, "missing")

	_, err1 := s.Resolve()
	_, err2 := s.Resolve()
	require.Error(t, err1)
	assert.Same(t, err1, err2)
	assert.Equal(t, int32(1), f.calls.Load())

	defer func() {
		r := recover()
		require.NotNil(t, r)
		var unresolved *UnresolvedSymbolError
		require.True(t, errors.As(r.(error), &unresolved))
		assert.Equal(t, "missing", unresolved.Symbol)
	}()
	s.MustResolve()
}

type fakeLinker struct {
	opened  []string
	failing map[string]bool
	symbols map[uintptr]map[string]uintptr
}

func (l *fakeLinker) Open(path string) (uintptr, error) {
	l.opened = append(l.opened, path)
	if l.failing[path] {
		return 0, errors.New("no such file")
	}
	return uintptr(len(l.opened)), nil
}

func (l *fakeLinker) Symbol(h uintptr, name string) (uintptr, error) {
	if addr, ok := l.symbols[h][name]; ok {
		return addr, nil
	}
	return 0, errors.New("undefined symbol")
}

func (l *fakeLinker) Default() uintptr { return 0 }

func TestSymbolLookupOrder(t *testing.T) {
	fl := &fakeLinker{
		failing: map[string]bool{"/opt/broken.so": true},
		symbols: map[uintptr]map[string]uintptr{
			0: {"shared": 0x10, "libc_only": 0x20},
			2: {"shared": 0x30},
		},
	}
	l := &SymbolLookup{linker: fl}
	l.Preload("/opt/broken.so", "/opt/good.so")

	p, err := l.Find("shared")
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x30), uintptr(p))

	p, err = l.Find("libc_only")
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x20), uintptr(p))

	_, err = l.Find("absent")
	var unresolved *UnresolvedSymbolError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "absent", unresolved.Symbol)
	assert.ErrorContains(t, err, "/opt/broken.so")

	l.Preload("/opt/late.so")
	_, _ = l.Find("shared")
	assert.Equal(t, []string{"/opt/broken.so", "/opt/good.so"}, fl.opened)
}

func TestLibraryPath(t *testing.T) {
	assert.Equal(t, "/usr/lib/libm.so.6", LibraryPath("/usr/lib/libm.so.6"))
	assert.Equal(t, "libz.so.1", LibraryPath("libz.so.1"))
	assert.Contains(t, LibraryPath("z"), "z")
	assert.NotEqual(t, "z", LibraryPath("z"))
}

func TestInferVariadicLayouts(t *testing.T) {
	var x int
	layouts, err := InferVariadicLayouts([]any{
		true, int8(1), uint16(2), int32(3), int64(4), uint64(5),
		float32(1.5), 2.5, &x, unsafe.Pointer(&x), uintptr(0),
	})
	require.NoError(t, err)

	want := []*Layout{
		Int32, Int32, Int32, Int32, Int64, Int64,
		Float64, Float64, Pointer, Pointer, Pointer,
	}
	require.Len(t, layouts, len(want))
	for i := range want {
		assert.Same(t, want[i], layouts[i], "argument %d", i)
	}
}

func TestInferVariadicLayoutsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []any
		idx  int
		typ  string
	}{
		{"string", []any{int32(1), "text"}, 1, "string"},
		{"nil", []any{nil}, 0, "nil"},
		{"struct", []any{1.0, 2.0, struct{}{}}, 2, "struct {}"},
		{"complex", []any{complex(1, 2)}, 0, "complex128"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InferVariadicLayouts(tt.args)
			var invalid *InvalidVariadicArgumentError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.idx, invalid.Index)
			assert.Equal(t, tt.typ, invalid.Type)
		})
	}
}

func TestFloatRoundTrip(t *testing.T) {
	payload := math.Float64frombits(0x7ff8_0000_dead_beef)
	for _, f := range []float64{0, -0.0, 1.5, math.MaxFloat64, math.SmallestNonzeroFloat64,
		math.Inf(1), math.Inf(-1), math.NaN(), payload} {
		got, err := ParseFloat64(FormatFloat64(f))
		require.NoError(t, err)
		assert.Equal(t, math.Float64bits(f), math.Float64bits(got), FormatFloat64(f))
	}

	for _, f := range []float32{0.1, float32(math.Inf(1)), float32(math.Inf(-1)), math.Float32frombits(0x7fc00001)} {
		got, err := ParseFloat32(FormatFloat32(f))
		require.NoError(t, err)
		assert.Equal(t, math.Float32bits(f), math.Float32bits(got), FormatFloat32(f))
	}

	_, err := ParseFloat64("NaN(0xzz)")
	assert.Error(t, err)
}

func TestCString(t *testing.T) {
	assert.Equal(t, "hello", CopyString(CString("hello")))
	assert.Equal(t, "", CopyString(CString("")))

	p := CString("a\x00b")
	b := unsafe.Slice((*byte)(p), 4)
	assert.Equal(t, []byte("a\x00b\x00"), b)
}

func TestAddress(t *testing.T) {
	assert.Nil(t, Address(0))
	assert.Equal(t, uintptr(0xdeadbeef), uintptr(Address(0xdeadbeef)))
}

func TestGoAllocatorAlignment(t *testing.T) {
	var a Allocator = GoAllocator{}
	for _, align := range []uintptr{1, 4, 8, 16, 64} {
		p := a.Allocate(24, align)
		require.NotNil(t, p)
		assert.Zero(t, uintptr(p)%align, "align %d", align)
	}
}

func TestAggregateLayouts(t *testing.T) {
	point := Struct("point", 8, 4, Field("x", 0, Int32), Field("y", 4, Int32))
	assert.True(t, point.IsAggregate())
	f, ok := point.FieldByName("y")
	require.True(t, ok)
	assert.Equal(t, uintptr(4), f.Offset)

	arr := Array(Int16, 5)
	assert.Equal(t, uintptr(10), arr.Size())
	assert.Equal(t, uintptr(2), arr.Align())
	assert.Equal(t, "[5]int16", arr.String())

	u := Union("value", 12, 4, Field("i", 0, Int32), Field("s", 0, arr))
	assert.Equal(t, KindUnion, u.Kind())
	assert.Equal(t, uintptr(0), Array(Int8, -1).Size())
}

func TestTraceEnabled(t *testing.T) {
	t.Setenv("FFI_TEST_TRACE", "true")
	assert.True(t, TraceEnabled("FFI_TEST_TRACE"))
	t.Setenv("FFI_TEST_TRACE", "nope")
	assert.False(t, TraceEnabled("FFI_TEST_TRACE"))
	assert.False(t, TraceEnabled("FFI_TEST_TRACE_UNSET"))
}
