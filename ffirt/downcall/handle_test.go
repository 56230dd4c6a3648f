//go:build libffi && linux

package downcall

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/jupiterrider/ffi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardanlabs/ffi-extract/ffirt"
)

var libc = func() *ffirt.SymbolLookup {
	l := ffirt.NewSymbolLookup()
	l.Preload("libc.so.6")
	return l
}()

func TestCallAbs(t *testing.T) {
	h := New(ffirt.NewLazySymbol(libc, "abs"), ffirt.Int32, ffirt.Int32)

	var ret int32
	arg := int32(-42)
	h.Call(unsafe.Pointer(&ret), unsafe.Pointer(&arg))
	assert.Equal(t, int32(42), ret)
}

func TestCallVariadicSnprintf(t *testing.T) {
	h := NewVariadic(ffirt.NewLazySymbol(libc, "snprintf"), ffirt.Int32, ffirt.Pointer, ffirt.Uint64, ffirt.Pointer)

	buf := make([]byte, 64)
	dst := unsafe.Pointer(&buf[0])
	size := uint64(len(buf))
	format := ffirt.CString("%d-%s-%.1f")

	extras := []any{int16(7), ffirt.CString("x"), float32(2.5)}
	layouts, err := ffirt.InferVariadicLayouts(extras)
	require.NoError(t, err)

	var ret int32
	h.CallVariadic(unsafe.Pointer(&ret), layouts, extras,
		unsafe.Pointer(&dst), unsafe.Pointer(&size), unsafe.Pointer(&format))
	assert.Equal(t, int32(7), ret)
	assert.Equal(t, "7-x-2.5", ffirt.CopyString(dst))
}

func TestCallVariadicWithoutExtras(t *testing.T) {
	h := NewVariadic(ffirt.NewLazySymbol(libc, "snprintf"), ffirt.Int32, ffirt.Pointer, ffirt.Uint64, ffirt.Pointer)

	buf := make([]byte, 16)
	dst := unsafe.Pointer(&buf[0])
	size := uint64(len(buf))
	format := ffirt.CString("plain")

	var ret int32
	h.Call(unsafe.Pointer(&ret), unsafe.Pointer(&dst), unsafe.Pointer(&size), unsafe.Pointer(&format))
	assert.Equal(t, int32(5), ret)
	assert.Equal(t, "plain", ffirt.CopyString(dst))
}

func TestCallUnresolvedPanics(t *testing.T) {
	h := New(ffirt.NewLazySymbol(libc, "no_such_function_anywhere"), nil)
	assert.Panics(t, func() { h.Call(nil) })
}

const mixedUnionSource = `
union du { double d; long l; };
union fu { float f[2]; double d; };

long take_du(union du u) { return u.l; }
union du make_du(long v) { union du u; u.l = v; return u; }
double take_fu(union fu u) { return u.d; }
`

// buildLibrary compiles src into a shared object, skipping the test when no
// C compiler is installed.
func buildLibrary(t *testing.T, src string) string {
	t.Helper()
	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler")
	}

	dir := t.TempDir()
	source := filepath.Join(dir, "lib.c")
	require.NoError(t, os.WriteFile(source, []byte(src), 0644))

	lib := filepath.Join(dir, "libmixed.so")
	out, err := exec.Command(cc, "-shared", "-fPIC", "-o", lib, source).CombinedOutput()
	require.NoError(t, err, string(out))
	return lib
}

var mixedUnion = ffirt.Union("du", 8, 8,
	ffirt.Field("d", 0, ffirt.Float64),
	ffirt.Field("l", 0, ffirt.Int64),
)

func TestCallMixedUnion(t *testing.T) {
	lookup := ffirt.NewSymbolLookup()
	lookup.Preload(buildLibrary(t, mixedUnionSource))

	take := New(ffirt.NewLazySymbol(lookup, "take_du"), ffirt.Int64, mixedUnion)
	arg := int64(0x1122334455667788)
	var got int64
	take.Call(unsafe.Pointer(&got), unsafe.Pointer(&arg))
	assert.Equal(t, arg, got)

	produce := New(ffirt.NewLazySymbol(lookup, "make_du"), mixedUnion, ffirt.Int64)
	v := int64(0xbadc0de)
	var u [8]byte
	produce.Call(unsafe.Pointer(&u), unsafe.Pointer(&v))
	assert.Equal(t, v, *(*int64)(unsafe.Pointer(&u)))

	floats := ffirt.Union("fu", 8, 8,
		ffirt.Field("f", 0, ffirt.Array(ffirt.Float32, 2)),
		ffirt.Field("d", 0, ffirt.Float64),
	)
	takeFloats := New(ffirt.NewLazySymbol(lookup, "take_fu"), ffirt.Float64, floats)
	d := 2.5
	var back float64
	takeFloats.Call(unsafe.Pointer(&back), unsafe.Pointer(&d))
	assert.Equal(t, d, back)
}

func TestUnionElements(t *testing.T) {
	tests := []struct {
		name  string
		union *ffirt.Layout
		want  []*ffi.Type
	}{
		{"double and long", mixedUnion, []*ffi.Type{&ffi.TypeUint64}},
		{"floats only", ffirt.Union("f", 8, 8,
			ffirt.Field("f", 0, ffirt.Array(ffirt.Float32, 2)),
			ffirt.Field("d", 0, ffirt.Float64),
		), []*ffi.Type{&ffi.TypeDouble}},
		{"float pair", ffirt.Union("p", 8, 4,
			ffirt.Field("f", 0, ffirt.Array(ffirt.Float32, 2)),
		), []*ffi.Type{&ffi.TypeFloat, &ffi.TypeFloat}},
		{"int and float", ffirt.Union("i", 4, 4,
			ffirt.Field("i", 0, ffirt.Int32),
			ffirt.Field("f", 0, ffirt.Float32),
		), []*ffi.Type{&ffi.TypeUint32}},
		{"second eightbyte floating", ffirt.Union("s", 16, 8,
			ffirt.Field("a", 0, ffirt.Struct("a", 16, 8,
				ffirt.Field("l", 0, ffirt.Int64),
				ffirt.Field("d", 8, ffirt.Float64),
			)),
			ffirt.Field("x", 0, ffirt.Float64),
		), []*ffi.Type{&ffi.TypeUint64, &ffi.TypeDouble}},
		{"odd tail", ffirt.Union("t", 6, 2,
			ffirt.Field("c", 0, ffirt.Array(ffirt.Uint8, 5)),
			ffirt.Field("s", 0, ffirt.Int16),
		), []*ffi.Type{&ffi.TypeUint16, &ffi.TypeUint16, &ffi.TypeUint16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, unionElements(tt.union))
		})
	}
}
