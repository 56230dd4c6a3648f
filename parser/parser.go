// Package parser builds the declaration tree of one header from a C front
// end.
package parser

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
)

// Parser turns headers into declaration trees. A new index and translation
// unit are created for every header and released before Parse returns.
type Parser struct {
	newIndex func() Index
	model    layout.DataModel
	logger   *zap.Logger
}

func New(newIndex func() Index, model layout.DataModel, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{newIndex: newIndex, model: model, logger: logger}
}

// Parse builds the tree of header. args are passed to the front end
// unchanged. Error diagnostics fail the whole header with a
// *ParseDiagnosticError.
func (p *Parser) Parse(header string, args []string) (*decl.Scoped, error) {
	idx := p.newIndex()
	defer idx.Dispose()

	tu, err := idx.Parse(header, args)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", header)
	}
	defer tu.Dispose()

	var fatal []Diagnostic
	for _, d := range tu.Diagnostics() {
		switch {
		case d.Severity >= SeverityError:
			p.logger.Error("diagnostic", zap.Stringer("pos", d.Pos), zap.String("message", d.Message))
			fatal = append(fatal, d)
		case d.Severity == SeverityWarning:
			p.logger.Warn("diagnostic", zap.Stringer("pos", d.Pos), zap.String("message", d.Message))
		}
	}
	if len(fatal) > 0 {
		return nil, &ParseDiagnosticError{Header: header, Diagnostics: fatal}
	}

	b := newBuilder(tu, p.model, p.logger)
	root := tu.Cursor()
	b.scanTypedefs(root.Children())
	members := b.scope(root.Children())
	members = append(members, b.foldMacros()...)

	name := strings.TrimSuffix(filepath.Base(header), filepath.Ext(header))
	return &decl.Scoped{
		Info:    decl.Info{Name: name, Pos: decl.Position{File: header}},
		Kind:    decl.Header,
		Members: members,
	}, nil
}

type builder struct {
	tu     TranslationUnit
	model  layout.DataModel
	logger *zap.Logger

	ids    map[string]decl.ID
	nextID decl.ID
	built  map[string]bool

	// renamed maps an anonymous record or enum to the typedef naming it.
	renamed map[string]string
	// dropped holds the USRs of typedefs replaced by a rename.
	dropped map[string]bool

	macros     []macroDef
	macroIndex map[string]int
	enumerants map[string]value
	typedefs   map[string]decl.Type
}

func newBuilder(tu TranslationUnit, model layout.DataModel, logger *zap.Logger) *builder {
	return &builder{
		tu:         tu,
		model:      model,
		logger:     logger,
		ids:        make(map[string]decl.ID),
		built:      make(map[string]bool),
		renamed:    make(map[string]string),
		dropped:    make(map[string]bool),
		macroIndex: make(map[string]int),
		enumerants: make(map[string]value),
		typedefs:   make(map[string]decl.Type),
	}
}

func (b *builder) id(c Cursor) decl.ID {
	key := usr(c)
	if id, ok := b.ids[key]; ok {
		return id
	}
	b.nextID++
	b.ids[key] = b.nextID
	return b.nextID
}

func usr(c Cursor) string {
	if u := c.USR(); u != "" {
		return u
	}
	pos, _ := c.Location()
	return c.Spelling() + "@" + pos.String()
}

func (b *builder) position(c Cursor) decl.Position {
	pos, _ := c.Location()
	return pos
}

// keep reports whether c takes part in the tree at all.
func (b *builder) keep(c Cursor) bool {
	if _, ok := c.Location(); !ok {
		return false
	}
	return !c.InSystemHeader()
}

// scanTypedefs finds typedefs that give a name to an anonymous record or
// enum. The record takes the typedef name and the typedef is dropped.
func (b *builder) scanTypedefs(cursors []Cursor) {
	for _, c := range cursors {
		switch c.Kind() {
		case CursorUnexposed, CursorNamespace, CursorLinkageSpec:
			b.scanTypedefs(c.Children())
		case CursorTypedef:
			under := named(c.TypedefUnderlying())
			if under.Kind() != TypeRecord && under.Kind() != TypeEnum {
				continue
			}
			target := under.Declaration()
			if !target.IsAnonymous() {
				continue
			}
			if _, ok := b.renamed[usr(target)]; ok {
				continue
			}
			b.renamed[usr(target)] = c.Spelling()
			b.dropped[usr(c)] = true
		}
	}
}

// scope builds the declarations of cursors, flattening wrappers into the
// enclosing scope.
func (b *builder) scope(cursors []Cursor) []decl.Declaration {
	var out []decl.Declaration
	for _, c := range cursors {
		switch c.Kind() {
		case CursorUnexposed, CursorNamespace, CursorLinkageSpec:
			out = append(out, b.scope(c.Children())...)
			continue
		case CursorMacroDefinition:
			b.captureMacro(c)
			continue
		}
		if !b.keep(c) {
			b.logger.Debug("dropping cursor without usable location", zap.String("name", c.Spelling()))
			continue
		}
		if d := b.declaration(c); d != nil {
			out = append(out, d)
		}
	}
	return out
}

func (b *builder) declaration(c Cursor) decl.Declaration {
	switch c.Kind() {
	case CursorStruct:
		return b.record(c, decl.Struct)
	case CursorUnion:
		return b.record(c, decl.Union)
	case CursorEnum:
		return b.enum(c)
	case CursorFunction:
		return b.function(c)
	case CursorVar:
		return b.variable(c)
	case CursorTypedef:
		return b.typedef(c)
	}
	return nil
}

func (b *builder) scopedName(c Cursor) string {
	if name, ok := b.renamed[usr(c)]; ok {
		return name
	}
	if c.IsAnonymous() {
		return ""
	}
	return c.Spelling()
}

func (b *builder) record(c Cursor, kind decl.ScopeKind) decl.Declaration {
	key := usr(c)
	if b.built[key] {
		return nil
	}
	if !c.IsDefinition() && c.HasDefinition() {
		return nil
	}
	b.built[key] = true

	s := &decl.Scoped{
		Info: decl.Info{Name: b.scopedName(c), Pos: b.position(c)},
		Kind: kind,
		ID:   b.id(c),
	}
	if !c.IsDefinition() {
		s.Incomplete = true
		return s
	}

	for _, m := range c.Children() {
		switch m.Kind() {
		case CursorField:
			v := &decl.Variable{
				Info:  decl.Info{Name: m.Spelling(), Pos: b.position(m)},
				Type:  b.typeOf(m.Type()),
				Field: true,
			}
			if w := m.BitWidth(); w >= 0 {
				v.BitField = true
				v.BitWidth = w
			}
			s.Members = append(s.Members, v)
		case CursorStruct, CursorUnion:
			k := decl.Struct
			if m.Kind() == CursorUnion {
				k = decl.Union
			}
			nested := b.record(m, k)
			if nested == nil {
				continue
			}
			s.Members = append(s.Members, nested)
			if m.IsAnonymousMember() {
				s.Members = append(s.Members, &decl.Variable{
					Info:  decl.Info{Pos: b.position(m)},
					Type:  decl.Declared{ID: b.id(m)},
					Field: true,
				})
			}
		case CursorEnum:
			if e := b.enum(m); e != nil {
				s.Members = append(s.Members, e)
			}
		case CursorPackedAttr:
			s.Packed = true
		}
	}
	return s
}

func (b *builder) enum(c Cursor) decl.Declaration {
	key := usr(c)
	if b.built[key] {
		return nil
	}
	if !c.IsDefinition() && c.HasDefinition() {
		return nil
	}
	b.built[key] = true

	intType := b.typeOf(c.EnumIntType())
	s := &decl.Scoped{
		Info:    decl.Info{Name: b.scopedName(c), Pos: b.position(c)},
		Kind:    decl.Enum,
		ID:      b.id(c),
		IntType: intType,
	}
	unsigned := false
	if p, ok := decl.Strip(intType).(decl.Primitive); ok {
		unsigned = p.Kind.IsUnsigned()
	}
	for _, m := range c.Children() {
		if m.Kind() != CursorEnumConstant {
			continue
		}
		k := &decl.Constant{
			Info: decl.Info{Name: m.Spelling(), Pos: b.position(m)},
			Type: intType,
		}
		if unsigned {
			k.Value = m.EnumUnsignedValue()
		} else {
			k.Value = m.EnumValue()
		}
		b.enumerants[k.Name] = enumerantValue(m.EnumValue(), m.EnumUnsignedValue(), unsigned)
		s.Members = append(s.Members, k)
	}
	return s
}

func (b *builder) function(c Cursor) decl.Declaration {
	if c.InternalLinkage() {
		b.logger.Debug("dropping function with internal linkage", zap.String("name", c.Spelling()))
		return nil
	}
	fn := &decl.Function{
		Info:   decl.Info{Name: c.Spelling(), Pos: b.position(c), Attrs: b.attrs(c)},
		Result: b.typeOf(c.ResultType()),
	}
	if c.Type().Kind() == TypeFunctionProto {
		fn.Variadic = c.Type().Variadic()
		for _, a := range c.Arguments() {
			fn.Params = append(fn.Params, decl.Param{
				Name: a.Spelling(),
				Type: decay(b.typeOf(a.Type())),
			})
		}
	}
	return fn
}

func (b *builder) variable(c Cursor) decl.Declaration {
	if c.InternalLinkage() {
		b.logger.Debug("dropping variable with internal linkage", zap.String("name", c.Spelling()))
		return nil
	}
	return &decl.Variable{
		Info: decl.Info{Name: c.Spelling(), Pos: b.position(c), Attrs: b.attrs(c)},
		Type: b.typeOf(c.Type()),
	}
}

func (b *builder) typedef(c Cursor) decl.Declaration {
	t := b.typeOf(c.TypedefUnderlying())
	b.typedefs[c.Spelling()] = t
	if b.dropped[usr(c)] {
		return nil
	}
	return &decl.Typedef{
		Info: decl.Info{Name: c.Spelling(), Pos: b.position(c)},
		Type: t,
	}
}

// attrs collects the link name of an __asm__ label.
func (b *builder) attrs(c Cursor) decl.Attrs {
	for _, ch := range c.Children() {
		if ch.Kind() == CursorAsmLabelAttr {
			return decl.NewAttrs(decl.LinkName, ch.Spelling())
		}
	}
	return decl.Attrs{}
}

func named(t NativeType) NativeType {
	for t.Kind() == TypeElaborated {
		t = t.Named()
	}
	return t
}

// decay applies the parameter adjustment of arrays and functions.
func decay(t decl.Type) decl.Type {
	switch s := decl.Strip(t).(type) {
	case decl.Array:
		return decl.PointerTo(s.Elem)
	case decl.FunctionType:
		return decl.PointerTo(t)
	}
	return t
}

var primitives = map[TypeKind]decl.PrimKind{
	TypeVoid:       decl.Void,
	TypeBool:       decl.Bool,
	TypeCharU:      decl.Char,
	TypeCharS:      decl.Char,
	TypeUChar:      decl.UChar,
	TypeSChar:      decl.SChar,
	TypeChar16:     decl.Char16,
	TypeChar32:     decl.Char32,
	TypeWChar:      decl.WChar,
	TypeShort:      decl.Short,
	TypeUShort:     decl.UShort,
	TypeInt:        decl.Int,
	TypeUInt:       decl.UInt,
	TypeLong:       decl.Long,
	TypeULong:      decl.ULong,
	TypeLongLong:   decl.LongLong,
	TypeULongLong:  decl.ULongLong,
	TypeInt128:     decl.Int128,
	TypeUInt128:    decl.UInt128,
	TypeHalf:       decl.Half,
	TypeFloat:      decl.Float,
	TypeDouble:     decl.Double,
	TypeLongDouble: decl.LongDouble,
	TypeFloat128:   decl.Float128,
}

func (b *builder) typeOf(t NativeType) decl.Type {
	t = named(t)
	if k, ok := primitives[t.Kind()]; ok {
		return decl.Prim(k)
	}
	switch t.Kind() {
	case TypePointer, TypeBlockPointer:
		return decl.PointerTo(b.typeOf(t.Pointee()))
	case TypeRecord, TypeEnum:
		d := t.Declaration()
		return decl.Declared{ID: b.id(d), Name: b.scopedName(d)}
	case TypeTypedef:
		d := t.Declaration()
		under := b.typeOf(d.TypedefUnderlying())
		if b.dropped[usr(d)] {
			return under
		}
		return decl.Delegated{Name: d.Spelling(), Underlying: under}
	case TypeConstantArray:
		return decl.Array{Elem: b.typeOf(t.Element()), Len: t.ArraySize()}
	case TypeIncompleteArray, TypeVariableArray:
		return decl.Array{Elem: b.typeOf(t.Element()), Len: -1}
	case TypeFunctionProto:
		ft := decl.FunctionType{Result: b.typeOf(t.Result()), Variadic: t.Variadic()}
		for _, p := range t.Params() {
			ft.Params = append(ft.Params, decay(b.typeOf(p)))
		}
		return ft
	case TypeFunctionNoProto:
		return decl.FunctionType{Result: b.typeOf(t.Result())}
	case TypeUnexposed:
		if c := t.Canonical(); c.Kind() != TypeUnexposed && c.Kind() != TypeInvalid {
			return b.typeOf(c)
		}
	}
	return decl.Primitive{Kind: decl.Unknown, Spelling: t.Spelling()}
}
