package layout

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardanlabs/ffi-extract/decl"
)

func field(name string, t decl.Type) *decl.Variable {
	return &decl.Variable{Info: decl.Info{Name: name}, Type: t, Field: true}
}

func record(kind decl.ScopeKind, id decl.ID, name string, fields ...*decl.Variable) *decl.Scoped {
	s := &decl.Scoped{Info: decl.Info{Name: name}, Kind: kind, ID: id}
	for _, f := range fields {
		s.Members = append(s.Members, f)
	}
	return s
}

func resolverFor(model DataModel, scopes ...*decl.Scoped) *Resolver {
	root := &decl.Scoped{Kind: decl.Header}
	for _, s := range scopes {
		root.Members = append(root.Members, s)
	}
	return NewResolver(decl.NewTable(root), model)
}

func offsets(l *Layout) []int64 {
	var out []int64
	for _, f := range l.Fields {
		out = append(out, f.Offset)
	}
	return out
}

func TestPointLayout(t *testing.T) {
	point := record(decl.Struct, 1, "Point_t",
		field("x", decl.Prim(decl.Int)),
		field("y", decl.Prim(decl.Int)))
	r := resolverFor(LP64, point)

	l, err := r.Aggregate(point)
	require.NoError(t, err)
	assert.Equal(t, Struct, l.Kind)
	assert.Equal(t, int64(8), l.Size)
	assert.Equal(t, int64(4), l.Align)
	assert.Equal(t, []int64{0, 4}, offsets(l))

	alias, err := r.Layout(decl.Delegated{Name: "Point", Underlying: decl.Declared{ID: 1, Name: "Point_t"}})
	require.NoError(t, err)
	assert.Same(t, l, alias)
}

func TestStructPadding(t *testing.T) {
	s := record(decl.Struct, 1, "padded",
		field("c", decl.Prim(decl.Char)),
		field("d", decl.Prim(decl.Double)),
		field("s", decl.Prim(decl.Short)))
	l, err := resolverFor(LP64, s).Aggregate(s)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 8, 16}, offsets(l))
	assert.Equal(t, int64(24), l.Size)
	assert.Equal(t, int64(8), l.Align)
}

func TestPackedStruct(t *testing.T) {
	s := record(decl.Struct, 1, "packed",
		field("c", decl.Prim(decl.Char)),
		field("i", decl.Prim(decl.Int)))
	s.Packed = true
	l, err := resolverFor(LP64, s).Aggregate(s)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, offsets(l))
	assert.Equal(t, int64(5), l.Size)
	assert.Equal(t, int64(1), l.Align)
}

func TestUnionLayout(t *testing.T) {
	u := record(decl.Union, 1, "value",
		field("c", decl.Prim(decl.Char)),
		field("i", decl.Prim(decl.Int)),
		field("d", decl.Array{Elem: decl.Prim(decl.Short), Len: 5}))
	l, err := resolverFor(LP64, u).Aggregate(u)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0, 0}, offsets(l))
	assert.Equal(t, int64(12), l.Size)
	assert.Equal(t, int64(4), l.Align)
}

func TestNestedAndSelfReferential(t *testing.T) {
	node := record(decl.Struct, 1, "node",
		field("value", decl.Prim(decl.Long)),
		field("next", decl.PointerTo(decl.Declared{ID: 1, Name: "node"})))
	list := record(decl.Struct, 2, "list",
		field("head", decl.Declared{ID: 1, Name: "node"}),
		field("len", decl.Prim(decl.UInt)))
	r := resolverFor(LP64, node, list)

	l, err := r.Aggregate(list)
	require.NoError(t, err)
	assert.Equal(t, int64(24), l.Size)
	assert.Equal(t, int64(8), l.Align)
	assert.Equal(t, []int64{0, 16}, offsets(l))
}

func TestDataModels(t *testing.T) {
	r := resolverFor(LLP64)
	l, err := r.Layout(decl.Prim(decl.Long))
	require.NoError(t, err)
	assert.Equal(t, Int32, l.Carrier)

	r = resolverFor(LP64)
	l, err = r.Layout(decl.Prim(decl.ULong))
	require.NoError(t, err)
	assert.Equal(t, Uint64, l.Carrier)
}

func TestUnsupportedTypes(t *testing.T) {
	bits := record(decl.Struct, 1, "flags", &decl.Variable{
		Info: decl.Info{Name: "on"}, Type: decl.Prim(decl.UInt), Field: true, BitField: true, BitWidth: 1,
	})
	opaque := &decl.Scoped{Info: decl.Info{Name: "FILE"}, Kind: decl.Struct, ID: 2, Incomplete: true}
	selfish := record(decl.Struct, 3, "selfish", field("me", decl.Declared{ID: 3, Name: "selfish"}))
	r := resolverFor(LP64, bits, opaque, selfish)

	for name, typ := range map[string]decl.Type{
		"long double": decl.Prim(decl.LongDouble),
		"int128":      decl.Prim(decl.Int128),
		"bit-field":   decl.Declared{ID: 1, Name: "flags"},
		"incomplete":  decl.Declared{ID: 2, Name: "FILE"},
		"missing":     decl.Declared{ID: 9, Name: "ghost"},
		"recursive":   decl.Declared{ID: 3, Name: "selfish"},
		"void array":  decl.Array{Elem: decl.Prim(decl.Void), Len: 2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := r.Layout(typ)
			var unsupportedErr *UnsupportedTypeError
			require.Error(t, err)
			assert.True(t, errors.As(err, &unsupportedErr))
		})
	}

	l, err := r.Layout(decl.PointerTo(decl.Declared{ID: 2, Name: "FILE"}))
	require.NoError(t, err)
	assert.Equal(t, Address, l.Carrier)
}

func TestSkippedTargetIsUnresolved(t *testing.T) {
	s := record(decl.Struct, 1, "gone", field("x", decl.Prim(decl.Int)))
	skipped := decl.MarkSkipped(s, "excluded").(*decl.Scoped)
	r := resolverFor(LP64, skipped)

	_, err := r.Layout(decl.Declared{ID: 1, Name: "gone"})
	assert.ErrorContains(t, err, "skipped")
}

func TestDescriptor(t *testing.T) {
	point := record(decl.Struct, 1, "point", field("x", decl.Prim(decl.Int)), field("y", decl.Prim(decl.Int)))
	r := resolverFor(LP64, point)

	desc, err := r.Descriptor(decl.FunctionType{
		Params:   []decl.Type{decl.PointerTo(decl.Prim(decl.Char))},
		Result:   decl.Declared{ID: 1, Name: "point"},
		Variadic: true,
	})
	require.NoError(t, err)
	require.NotNil(t, desc.Result)
	assert.Equal(t, Struct, desc.Result.Kind)
	require.Len(t, desc.Args, 1)
	assert.Equal(t, Address, desc.Args[0].Carrier)
	assert.True(t, desc.Variadic)

	desc, err = r.Descriptor(decl.FunctionType{Result: decl.Prim(decl.Void)})
	require.NoError(t, err)
	assert.Nil(t, desc.Result)
	assert.Empty(t, desc.Args)
}

func TestAggregateInvariants(t *testing.T) {
	prims := []decl.PrimKind{
		decl.Char, decl.UChar, decl.Short, decl.Int, decl.Long,
		decl.LongLong, decl.Float, decl.Double, decl.Bool,
	}
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		kind := decl.Struct
		if rng.IntN(2) == 0 {
			kind = decl.Union
		}
		s := &decl.Scoped{Kind: kind, ID: 1, Info: decl.Info{Name: "gen"}}
		s.Packed = rng.IntN(5) == 0
		n := 1 + rng.IntN(6)
		for j := 0; j < n; j++ {
			var typ decl.Type = decl.Prim(prims[rng.IntN(len(prims))])
			switch rng.IntN(4) {
			case 0:
				typ = decl.Array{Elem: typ, Len: int64(1 + rng.IntN(4))}
			case 1:
				typ = decl.PointerTo(typ)
			}
			s.Members = append(s.Members, field("f", typ))
		}

		l, err := resolverFor(LP64, s).Aggregate(s)
		require.NoError(t, err)

		maxAlign := int64(1)
		for _, f := range l.Fields {
			a := f.Layout.Align
			if s.Packed {
				a = 1
			}
			maxAlign = max(maxAlign, a)
			assert.Zero(t, f.Offset%a)
			assert.LessOrEqual(t, f.Offset+f.Layout.Size, l.Size)
			if kind == decl.Union {
				assert.Zero(t, f.Offset)
			}
		}
		assert.Zero(t, l.Size%l.Align, "size %d align %d", l.Size, l.Align)
		assert.Equal(t, maxAlign, l.Align)
	}
}
