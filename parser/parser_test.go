package parser_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
	"github.com/ardanlabs/ffi-extract/parser"
	pt "github.com/ardanlabs/ffi-extract/parser/parsertest"
)

func build(t *testing.T, top ...*pt.Cursor) *decl.Scoped {
	t.Helper()
	idx := pt.NewIndex(top...)
	root, err := newParser(t, idx).Parse("include/demo.h", []string{"-DX=1"})
	require.NoError(t, err)
	assert.True(t, idx.Disposed)
	assert.True(t, idx.TU.Disposed)
	return root
}

func newParser(t *testing.T, idx *pt.Index) *parser.Parser {
	return parser.New(func() parser.Index { return idx }, layout.LP64, zaptest.NewLogger(t))
}

func names(ds []decl.Declaration) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = decl.Kind(d) + " " + d.Base().Name
	}
	return out
}

func find(t *testing.T, root *decl.Scoped, name string) decl.Declaration {
	t.Helper()
	for _, d := range root.Members {
		if d.Base().Name == name {
			return d
		}
	}
	t.Fatalf("%s not found in %v", name, names(root.Members))
	return nil
}

func TestParseHeaderNode(t *testing.T) {
	idx := pt.NewIndex()
	root, err := newParser(t, idx).Parse("include/demo.h", []string{"-DX=1"})
	require.NoError(t, err)

	assert.Equal(t, decl.Header, root.Kind)
	assert.Equal(t, "demo", root.Name)
	assert.Equal(t, "include/demo.h", idx.Path)
	assert.Equal(t, []string{"-DX=1"}, idx.Args)
	assert.Empty(t, root.Members)
}

func TestParseDiagnosticAborts(t *testing.T) {
	idx := pt.NewIndex(pt.Func("f", pt.Int))
	idx.TU.Diags = []parser.Diagnostic{
		{Severity: parser.SeverityWarning, Message: "unused"},
		{Severity: parser.SeverityError, Message: "expected ';'", Pos: decl.Position{File: "bad.h", Line: 3, Column: 7}},
		{Severity: parser.SeverityFatal, Message: "too many errors"},
	}

	root, err := newParser(t, idx).Parse("bad.h", nil)
	assert.Nil(t, root)

	var diag *parser.ParseDiagnosticError
	require.True(t, errors.As(err, &diag))
	assert.Len(t, diag.Diagnostics, 2)
	assert.Contains(t, err.Error(), "bad.h:3:7: error: expected ';'")
	assert.True(t, idx.Disposed)
	assert.True(t, idx.TU.Disposed)
}

func TestParseIndexFailure(t *testing.T) {
	idx := pt.NewIndex()
	idx.Err = errors.New("no such file")

	_, err := newParser(t, idx).Parse("missing.h", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing missing.h")
	assert.True(t, idx.Disposed)
}

func TestAnonymousTypedefTakesName(t *testing.T) {
	anon := pt.Struct("", pt.Field("x", pt.Int), pt.Field("y", pt.Int))
	pointT := pt.Typedef("Point_t", pt.Elaborated(pt.TypeOf(anon)))
	point := pt.Typedef("Point", pt.TypeOf(pointT))

	root := build(t, anon, pointT, point)
	require.Equal(t, []string{"struct Point_t", "typedef Point"}, names(root.Members))

	s := root.Members[0].(*decl.Scoped)
	td := root.Members[1].(*decl.Typedef)
	assert.Equal(t, decl.Declared{ID: s.ID, Name: "Point_t"}, td.Type)
	assert.Equal(t, []string{"field x", "field y"}, names(s.Members))
}

func TestFlatteningAndFiltering(t *testing.T) {
	root := build(t,
		pt.Wrap(parser.CursorLinkageSpec,
			pt.Func("inside", pt.Void),
			pt.Wrap(parser.CursorUnexposed, pt.Var("nested", pt.Int)),
		),
		pt.Wrap(parser.CursorNamespace, pt.Var("ns_var", pt.Double)),
		pt.Var("implicit", pt.Int).Unlocated(),
		pt.Func("printf", pt.Int).InSystem(),
		pt.Func("helper", pt.Int).Static(),
		pt.Var("counter", pt.Int).Static(),
		pt.Func("visible", pt.Int),
	)
	assert.Equal(t,
		[]string{"function inside", "variable nested", "variable ns_var", "function visible"},
		names(root.Members))
}

func TestForwardDeclarations(t *testing.T) {
	node := pt.Struct("node")
	node.Kids = []*pt.Cursor{
		pt.Field("value", pt.Long),
		pt.Field("next", pt.PointerTo(pt.Elaborated(pt.TypeOf(node)))),
	}
	handle := pt.Opaque("handle")

	root := build(t, pt.Forward(node), node, pt.Forward(node), handle, pt.Opaque("handle2"))
	require.Equal(t, []string{"struct node", "struct handle", "struct handle2"}, names(root.Members))

	n := root.Members[0].(*decl.Scoped)
	assert.False(t, n.Incomplete)
	next := n.Members[1].(*decl.Variable)
	assert.Equal(t, decl.PointerTo(decl.Declared{ID: n.ID, Name: "node"}), next.Type)
	assert.True(t, root.Members[1].(*decl.Scoped).Incomplete)
}

func TestFunctions(t *testing.T) {
	cb := pt.Proto(pt.Void, false, pt.Int)
	root := build(t,
		pt.Func("sum", pt.Int, pt.Param("values", pt.ArrayOf(pt.Int, 4)), pt.Param("", pt.Long)),
		pt.Func("printf_like", pt.Int, pt.Param("fmt", pt.PointerTo(pt.Char))).Variadic(),
		pt.FuncNoProto("legacy", pt.Double),
		pt.Func("on_event", pt.Void, pt.Param("cb", cb)),
		pt.Func("real_name", pt.Void).Asm("_real_name$v2"),
	)

	sum := find(t, root, "sum").(*decl.Function)
	want := []decl.Param{
		{Name: "values", Type: decl.PointerTo(decl.Prim(decl.Int))},
		{Name: "", Type: decl.Prim(decl.Long)},
	}
	assert.Empty(t, cmp.Diff(want, sum.Params))
	assert.False(t, sum.Variadic)

	assert.True(t, find(t, root, "printf_like").(*decl.Function).Variadic)

	legacy := find(t, root, "legacy").(*decl.Function)
	assert.Empty(t, legacy.Params)
	assert.False(t, legacy.Variadic)

	onEvent := find(t, root, "on_event").(*decl.Function)
	assert.Equal(t, decl.PointerTo(decl.FunctionType{
		Params: []decl.Type{decl.Prim(decl.Int)},
		Result: decl.Prim(decl.Void),
	}), onEvent.Params[0].Type)

	assert.Equal(t, "_real_name$v2", decl.LinkNameOf(find(t, root, "real_name")))
}

func TestRecords(t *testing.T) {
	inner := pt.Union("", pt.Field("i", pt.Int), pt.Field("f", pt.Float)).AsMember()
	flags := pt.Struct("flags", pt.BitField("a", pt.UInt, 3), pt.Field("b", pt.Char)).Packed()
	outer := pt.Struct("outer", pt.Field("tag", pt.Int), inner, pt.Field("data", pt.ArrayOf(pt.Char, -1)))

	root := build(t, flags, outer)

	f := find(t, root, "flags").(*decl.Scoped)
	assert.True(t, f.Packed)
	a := f.Members[0].(*decl.Variable)
	assert.True(t, a.BitField)
	assert.Equal(t, 3, a.BitWidth)

	o := find(t, root, "outer").(*decl.Scoped)
	require.Equal(t, []string{"field tag", "union ", "field ", "field data"}, names(o.Members))
	u := o.Members[1].(*decl.Scoped)
	anon := o.Members[2].(*decl.Variable)
	assert.Equal(t, decl.Declared{ID: u.ID}, anon.Type)
	assert.Equal(t, decl.Array{Elem: decl.Prim(decl.Char), Len: -1}, o.Members[3].(*decl.Variable).Type)
}

func TestEnumAndMacroPrecedence(t *testing.T) {
	root := build(t,
		pt.Enum("", pt.Enumerator("FOO", 1), pt.Enumerator("BAR", 7)),
		pt.Macro("FOO", "2"),
		pt.Func("after", pt.Void),
	)
	require.Equal(t, []string{"enum ", "function after", "constant FOO"}, names(root.Members))

	e := root.Members[0].(*decl.Scoped)
	assert.Equal(t, uint64(1), e.Members[0].(*decl.Constant).Value)
	assert.Equal(t, int64(2), root.Members[2].(*decl.Constant).Value)
}

func TestMacroFolding(t *testing.T) {
	tests := []struct {
		name string
		body string
		typ  decl.Type
		want any
	}{
		{"SHIFT", "1 << 4", decl.Prim(decl.Int), int64(16)},
		{"HEX", "0xFFFFFFFF", decl.Prim(decl.UInt), uint64(0xFFFFFFFF)},
		{"WIDE_HEX", "0x7fffffffffffffff", decl.Prim(decl.Long), int64(math.MaxInt64)},
		{"SUFFIX", "10UL", decl.Prim(decl.ULong), uint64(10)},
		{"NEG", "-1", decl.Prim(decl.Int), int64(-1)},
		{"PARENS", "(1 + 2) * 3", decl.Prim(decl.Int), int64(9)},
		{"CHAR", "'A'", decl.Prim(decl.Int), int64(65)},
		{"NEWLINE", `'\n'`, decl.Prim(decl.Int), int64(10)},
		{"HIGH_HEX", `'\xff'`, decl.Prim(decl.Int), int64(-1)},
		{"HIGH_OCT", `'\200'`, decl.Prim(decl.Int), int64(-128)},
		{"WIDE_CHAR", `L'\xff'`, decl.Prim(decl.Int), int64(255)},
		{"GREETING", `"abc" "def"`, decl.PointerTo(decl.Prim(decl.Char)), "abcdef"},
		{"ESCAPES", `"a\x41\101\0"`, decl.PointerTo(decl.Prim(decl.Char)), "aAA\x00"},
		{"SINGLE", "1.5f", decl.Prim(decl.Float), float32(1.5)},
		{"DOUBLE", "2.0", decl.Prim(decl.Double), 2.0},
		{"EXP", "1e3", decl.Prim(decl.Double), 1000.0},
		{"INF", "1.0/0.0", decl.Prim(decl.Double), math.Inf(1)},
		{"NULLPTR", "((void*)0)", decl.PointerTo(decl.Prim(decl.Void)), decl.Address(0)},
		{"NARROW", "(unsigned char)300", decl.Prim(decl.UChar), uint64(44)},
		{"TRUNC", "(int)2.9", decl.Prim(decl.Int), int64(2)},
		{"NOT_ZERO", "~0u", decl.Prim(decl.UInt), uint64(0xFFFFFFFF)},
		{"MIXED", "-1 < 1u", decl.Prim(decl.Int), int64(0)},
		{"TERNARY", "1 ? 2 : 3", decl.Prim(decl.Int), int64(2)},
		{"LOGIC", "3 > 2 && 1", decl.Prim(decl.Int), int64(1)},
		{"FORWARD", "LATER + 1", decl.Prim(decl.Int), int64(42)},
		{"LATER", "41", decl.Prim(decl.Int), int64(41)},
		{"ENUM_REF", "RED * 2", decl.Prim(decl.Int), int64(6)},
	}

	top := []*pt.Cursor{pt.Enum("color", pt.Enumerator("RED", 3))}
	for _, tt := range tests {
		top = append(top, pt.Macro(tt.name, tt.body))
	}
	root := build(t, top...)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := find(t, root, tt.name).(*decl.Constant)
			require.True(t, ok)
			assert.Equal(t, tt.typ, c.Type)
			assert.Equal(t, tt.want, c.Value)
		})
	}
}

func TestNonConstantMacrosDropped(t *testing.T) {
	root := build(t,
		pt.Macro("EMPTY", ""),
		pt.Macro("DIV_ZERO", "5 / 0"),
		pt.Macro("CALL", "compute(1)"),
		pt.Macro("TYPE", "unsigned int"),
		pt.Macro("SELF", "SELF + 1"),
		pt.Macro("PING", "PONG"),
		pt.Macro("PONG", "PING"),
		pt.Macro("BIG_SHIFT", "1 << 40"),
		pt.FuncMacro("SQUARE", "x", "((x) * (x))"),
		pt.Macro("SYSTEM", "1").InSystem(),
		pt.Macro("KEPT", "1"),
	)
	assert.Equal(t, []string{"constant KEPT"}, names(root.Members))
}

func TestMacroRedefinitionKeepsLastBody(t *testing.T) {
	root := build(t, pt.Macro("LEVEL", "1"), pt.Macro("OTHER", "2"), pt.Macro("LEVEL", "3"))
	require.Equal(t, []string{"constant LEVEL", "constant OTHER"}, names(root.Members))
	assert.Equal(t, int64(3), root.Members[0].(*decl.Constant).Value)
}
