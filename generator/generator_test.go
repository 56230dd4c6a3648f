package generator

import (
	"flag"
	"go/format"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
	"github.com/ardanlabs/ffi-extract/pipeline"
)

var update = flag.Bool("update", false, "rewrite golden files")

var (
	intT    = decl.Prim(decl.Int)
	uintT   = decl.Prim(decl.UInt)
	floatT  = decl.Prim(decl.Float)
	doubleT = decl.Prim(decl.Double)
	charT   = decl.Prim(decl.Char)
	voidT   = decl.Prim(decl.Void)
)

func field(name string, t decl.Type) *decl.Variable {
	return &decl.Variable{Info: decl.Info{Name: name}, Type: t, Field: true}
}

func record(kind decl.ScopeKind, id decl.ID, name string, members ...decl.Declaration) *decl.Scoped {
	return &decl.Scoped{Info: decl.Info{Name: name}, Kind: kind, ID: id, Members: members}
}

func ref(s *decl.Scoped) decl.Declared {
	return decl.Declared{ID: s.ID, Name: s.Name}
}

func function(name string, result decl.Type, params ...decl.Param) *decl.Function {
	return &decl.Function{Info: decl.Info{Name: name}, Result: result, Params: params}
}

func constant(name string, value any, t decl.Type) *decl.Constant {
	return &decl.Constant{Info: decl.Info{Name: name}, Type: t, Value: value}
}

func calcHeader() *decl.Scoped {
	point := record(decl.Struct, 1, "calc_point", field("x", intT), field("y", doubleT))
	value := record(decl.Union, 2, "calc_value", field("i", intT), field("f", floatT))
	ctx := &decl.Scoped{Info: decl.Info{Name: "calc_ctx"}, Kind: decl.Struct, ID: 3, Incomplete: true}
	mode := &decl.Scoped{
		Info:    decl.Info{Name: "calc_mode"},
		Kind:    decl.Enum,
		ID:      4,
		IntType: uintT,
		Members: []decl.Declaration{
			constant("CALC_FAST", uint64(0), uintT),
			constant("CALC_SLOW", uint64(1), uintT),
		},
	}

	printf := function("calc_printf", intT, decl.Param{Name: "format", Type: decl.PointerTo(charT)})
	printf.Variadic = true

	return &decl.Scoped{
		Info: decl.Info{Name: "calc"},
		Kind: decl.Header,
		Members: []decl.Declaration{
			point,
			&decl.Typedef{Info: decl.Info{Name: "calc_point_t"}, Type: ref(point)},
			value,
			ctx,
			mode,
			function("calc_add", intT, decl.Param{Name: "a", Type: intT}, decl.Param{Name: "b", Type: intT}),
			function("calc_origin", ref(point)),
			printf,
			function("calc_free", voidT, decl.Param{Name: "ctx", Type: decl.PointerTo(ref(ctx))}),
			&decl.Variable{Info: decl.Info{Name: "calc_counter"}, Type: intT},
			&decl.Variable{Info: decl.Info{Name: "calc_zero"}, Type: ref(point)},
			constant("CALC_VERSION", int64(3), intT),
			constant("CALC_PI", 3.14, doubleT),
			constant("CALC_NAME", "calc", decl.PointerTo(charT)),
			constant("CALC_INF", math.Inf(1), doubleT),
			&decl.Typedef{
				Info: decl.Info{Name: "calc_cb"},
				Type: decl.PointerTo(decl.FunctionType{Params: []decl.Type{intT}, Result: intT}),
			},
		},
	}
}

func generate(t *testing.T, root *decl.Scoped, cfg Config) string {
	t.Helper()

	named, err := pipeline.Run(root, pipeline.Options{
		Model:    cfg.Model,
		Reserved: Reserved,
		Locals:   Locals,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	cfg.Logger = zaptest.NewLogger(t)
	src, err := New(cfg, named).Generate()
	require.NoError(t, err)
	return string(src)
}

func TestGenerateGolden(t *testing.T) {
	got := generate(t, calcHeader(), Config{
		Header:    "calc.h",
		Package:   "calc",
		Libraries: []string{"calc"},
		Model:     layout.LP64,
	})

	path := filepath.Join("testdata", "calc.golden")
	if *update {
		require.NoError(t, os.WriteFile(path, []byte(got), 0644))
	}

	golden, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := format.Source(golden)
	require.NoError(t, err)

	assert.Equal(t, string(want), got)
}

func TestGenerateIsIdempotent(t *testing.T) {
	cfg := Config{Header: "calc.h", Package: "calc", Model: layout.LP64}

	first := generate(t, calcHeader(), cfg)
	second := generate(t, calcHeader(), cfg)

	assert.Equal(t, first, second)
}

func TestGenerateScenarioA(t *testing.T) {
	point := record(decl.Struct, 1, "Point_t", field("x", intT), field("y", intT))
	root := &decl.Scoped{
		Info: decl.Info{Name: "point"},
		Kind: decl.Header,
		Members: []decl.Declaration{
			point,
			&decl.Typedef{Info: decl.Info{Name: "Point"}, Type: ref(point)},
			function("move", voidT, decl.Param{Name: "p", Type: decl.PointerTo(decl.Delegated{Name: "Point", Underlying: ref(point)})}),
		},
	}

	got := generate(t, root, Config{Header: "point.h", Package: "point", Model: layout.LP64})

	assert.Contains(t, got, "type PointT struct {")
	assert.Contains(t, got, "type Point = PointT")
	assert.Contains(t, got, `var PointTLayout = ffirt.Struct("Point_t", 8, 4,`)
	assert.Contains(t, got, "var PointLayout = PointTLayout")
	assert.Contains(t, got, "func Move(p *Point) {")
	assert.Contains(t, got, `downcall.New(ffirt.NewLazySymbol(symbolLookup, "move"), nil, ffirt.Pointer)`)
}

func TestGenerateOmitsDowncallImportWithoutFunctions(t *testing.T) {
	root := &decl.Scoped{
		Info: decl.Info{Name: "consts"},
		Kind: decl.Header,
		Members: []decl.Declaration{
			constant("ANSWER", int64(42), intT),
		},
	}

	got := generate(t, root, Config{Header: "consts.h", Package: "consts", Model: layout.LP64, TraceEnv: "CONSTS_TRACE"})

	assert.NotContains(t, got, "ffirt/downcall")
	assert.NotContains(t, got, "func init()")
	assert.Contains(t, got, "const ANSWER int32 = 42")
	assert.Contains(t, got, `ffirt.TraceEnabled("CONSTS_TRACE")`)
}

func TestGenerateConstants(t *testing.T) {
	root := &decl.Scoped{
		Info: decl.Info{Name: "consts"},
		Kind: decl.Header,
		Members: []decl.Declaration{
			constant("BIG", uint64(math.MaxUint64), decl.Prim(decl.ULong)),
			constant("NEG", int64(-5), decl.Prim(decl.LongLong)),
			constant("YES", int64(1), decl.Prim(decl.Bool)),
			constant("HALF", float32(0.5), floatT),
			constant("NOT_A_NUMBER", math.NaN(), doubleT),
			constant("NEG_INF", float32(math.Inf(-1)), floatT),
			constant("NULL_PTR", decl.Address(0), decl.PointerTo(voidT)),
			constant("GREETING", "hi\n", decl.PointerTo(charT)),
		},
	}

	got := generate(t, root, Config{Header: "consts.h", Package: "consts", Model: layout.LP64})

	assert.Contains(t, got, "const BIG uint64 = 18446744073709551615")
	assert.Contains(t, got, "const NEG int64 = -5")
	assert.Contains(t, got, "const YES bool = true")
	assert.Contains(t, got, "const HALF float32 = 0.5")
	assert.Contains(t, got, `var NOT_A_NUMBER float64 = ffirt.MustParseFloat64("NaN(0x7ff8000000000001)")`)
	assert.Contains(t, got, `var NEG_INF float32 = ffirt.MustParseFloat32("-Inf")`)
	assert.Contains(t, got, "var NULL_PTR = ffirt.Address(0x0)")
	assert.Contains(t, got, `var GREETING = ffirt.CString("hi\n")`)
}

func TestGenerateLLP64Long(t *testing.T) {
	root := &decl.Scoped{
		Info: decl.Info{Name: "win"},
		Kind: decl.Header,
		Members: []decl.Declaration{
			function("ticks", decl.Prim(decl.ULong)),
		},
	}

	got := generate(t, root, Config{Header: "win.h", Package: "win", Model: layout.LLP64})

	assert.Contains(t, got, "func Ticks() uint32 {")
	assert.Contains(t, got, `downcall.New(ffirt.NewLazySymbol(symbolLookup, "ticks"), ffirt.Uint32)`)
}

func TestGenerateRawRecords(t *testing.T) {
	packed := record(decl.Struct, 1, "packed_t", field("tag", charT), field("value", intT))
	packed.Packed = true
	flex := record(decl.Struct, 2, "buffer", field("len", intT), field("data", decl.Array{Elem: charT, Len: -1}))
	root := &decl.Scoped{
		Info:    decl.Info{Name: "raw"},
		Kind:    decl.Header,
		Members: []decl.Declaration{packed, flex},
	}

	got := generate(t, root, Config{Header: "raw.h", Package: "raw", Model: layout.LP64})

	assert.Contains(t, got, "raw [5]byte")
	assert.Contains(t, got, "return (*int32)(unsafe.Add(unsafe.Pointer(s), 1))")
	assert.Contains(t, got, `var PackedTLayout = ffirt.Struct("packed_t", 5, 1,`)
	assert.Contains(t, got, "func (s *Buffer) Data() unsafe.Pointer {")
	assert.Contains(t, got, `ffirt.Field("data", 4, ffirt.Array(ffirt.Int8, -1)),`)
}

func TestGenerateSkipsOmittedDeclarations(t *testing.T) {
	bits := record(decl.Struct, 1, "flags", &decl.Variable{Info: decl.Info{Name: "on"}, Type: uintT, Field: true, BitField: true, BitWidth: 1})
	root := &decl.Scoped{
		Info: decl.Info{Name: "skip"},
		Kind: decl.Header,
		Members: []decl.Declaration{
			bits,
			function("set_flags", voidT, decl.Param{Name: "f", Type: ref(bits)}),
			function("ok", intT),
		},
	}

	got := generate(t, root, Config{Header: "skip.h", Package: "skip", Model: layout.LP64})

	assert.NotContains(t, got, "Flags")
	assert.NotContains(t, got, "SetFlags")
	assert.Contains(t, got, "func Ok() int32 {")
}
