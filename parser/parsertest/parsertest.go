// Package parsertest provides an in-memory front end for exercising the
// declaration builder without libclang.
package parsertest

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/parser"
)

var nextUSR atomic.Int64

func usr(tag, name string) string {
	return fmt.Sprintf("c:@%s@%s#%d", tag, name, nextUSR.Add(1))
}

// Index serves a fixed translation unit and records how it was used.
type Index struct {
	TU       *TU
	Err      error
	Path     string
	Args     []string
	Disposed bool
}

// NewIndex returns an index serving a translation unit rooted at the given
// top-level cursors.
func NewIndex(top ...*Cursor) *Index {
	return &Index{TU: &TU{Root: &Cursor{Kids: top}}}
}

func (i *Index) Parse(path string, args []string) (parser.TranslationUnit, error) {
	i.Path, i.Args = path, args
	if i.Err != nil {
		return nil, i.Err
	}
	return i.TU, nil
}

func (i *Index) Dispose() { i.Disposed = true }

type TU struct {
	Root     *Cursor
	Diags    []parser.Diagnostic
	Disposed bool
}

func (t *TU) Cursor() parser.Cursor                 { return t.Root }
func (t *TU) Diagnostics() []parser.Diagnostic      { return t.Diags }
func (t *TU) Tokens(c parser.Cursor) []parser.Token { return c.(*Cursor).Toks }
func (t *TU) Dispose()                              { t.Disposed = true }

type Cursor struct {
	K      parser.CursorKind
	Name   string
	ID     string
	Pos    decl.Position
	NoLoc  bool
	System bool
	Kids   []*Cursor

	Typ        *Type
	Result     *Type
	Args       []*Cursor
	Underlying *Type
	IntType    *Type
	Value      int64
	Bits       int
	BitField   bool

	Definition    bool
	Defined       bool
	Anonymous     bool
	AnonMember    bool
	FunctionLike  bool
	StaticLinkage bool
	Toks          []parser.Token
}

func (c *Cursor) Kind() parser.CursorKind { return c.K }
func (c *Cursor) Spelling() string        { return c.Name }
func (c *Cursor) USR() string             { return c.ID }

func (c *Cursor) Location() (decl.Position, bool) {
	if c.NoLoc {
		return decl.Position{}, false
	}
	if c.Pos.File == "" {
		return decl.Position{File: "test.h", Line: 1, Column: 1}, true
	}
	return c.Pos, true
}

func (c *Cursor) InSystemHeader() bool { return c.System }

func (c *Cursor) Children() []parser.Cursor {
	out := make([]parser.Cursor, len(c.Kids))
	for i, k := range c.Kids {
		out[i] = k
	}
	return out
}

func (c *Cursor) Type() parser.NativeType              { return c.Typ.native() }
func (c *Cursor) ResultType() parser.NativeType        { return c.Result.native() }
func (c *Cursor) TypedefUnderlying() parser.NativeType { return c.Underlying.native() }
func (c *Cursor) EnumIntType() parser.NativeType       { return c.IntType.native() }
func (c *Cursor) EnumValue() int64                     { return c.Value }
func (c *Cursor) EnumUnsignedValue() uint64            { return uint64(c.Value) }
func (c *Cursor) IsDefinition() bool                   { return c.Definition }
func (c *Cursor) HasDefinition() bool                  { return c.Definition || c.Defined }
func (c *Cursor) IsAnonymous() bool                    { return c.Anonymous }
func (c *Cursor) IsAnonymousMember() bool              { return c.AnonMember }
func (c *Cursor) IsFunctionLikeMacro() bool            { return c.FunctionLike }
func (c *Cursor) InternalLinkage() bool                { return c.StaticLinkage }

func (c *Cursor) Arguments() []parser.Cursor {
	out := make([]parser.Cursor, len(c.Args))
	for i, a := range c.Args {
		out[i] = a
	}
	return out
}

func (c *Cursor) BitWidth() int {
	if !c.BitField {
		return -1
	}
	return c.Bits
}

// At sets the source position of c.
func (c *Cursor) At(file string, line int) *Cursor {
	c.Pos = decl.Position{File: file, Line: line, Column: 1}
	return c
}

// Static gives c internal linkage.
func (c *Cursor) Static() *Cursor {
	c.StaticLinkage = true
	return c
}

func (c *Cursor) Variadic() *Cursor {
	c.Typ.Var = true
	return c
}

func (c *Cursor) Packed() *Cursor {
	c.Kids = append(c.Kids, &Cursor{K: parser.CursorPackedAttr})
	return c
}

// Asm attaches an __asm__ label.
func (c *Cursor) Asm(label string) *Cursor {
	c.Kids = append(c.Kids, &Cursor{K: parser.CursorAsmLabelAttr, Name: label})
	return c
}

// Unlocated strips the file location of c.
func (c *Cursor) Unlocated() *Cursor {
	c.NoLoc = true
	return c
}

func (c *Cursor) InSystem() *Cursor {
	c.System = true
	return c
}

// AsMember marks an anonymous record as a C11 anonymous member.
func (c *Cursor) AsMember() *Cursor {
	c.AnonMember = true
	return c
}

func record(kind parser.CursorKind, tag, name string, kids []*Cursor) *Cursor {
	c := &Cursor{K: kind, Name: name, ID: usr(tag, name), Kids: kids, Definition: true}
	if name == "" {
		c.Anonymous = true
	}
	c.Typ = &Type{K: parser.TypeRecord, Decl: c, Spell: name}
	return c
}

// Struct defines a struct. An empty name defines an anonymous struct.
func Struct(name string, fields ...*Cursor) *Cursor {
	return record(parser.CursorStruct, "S", name, fields)
}

func Union(name string, fields ...*Cursor) *Cursor {
	return record(parser.CursorUnion, "U", name, fields)
}

// Forward is a forward declaration of def, which is defined elsewhere in the
// translation unit.
func Forward(def *Cursor) *Cursor {
	return &Cursor{K: def.K, Name: def.Name, ID: def.ID, Typ: def.Typ, Defined: true}
}

// Opaque declares a struct that is never defined.
func Opaque(name string) *Cursor {
	c := &Cursor{K: parser.CursorStruct, Name: name, ID: usr("S", name)}
	c.Typ = &Type{K: parser.TypeRecord, Decl: c, Spell: name}
	return c
}

func Field(name string, t *Type) *Cursor {
	return &Cursor{K: parser.CursorField, Name: name, Typ: t}
}

func BitField(name string, t *Type, width int) *Cursor {
	return &Cursor{K: parser.CursorField, Name: name, Typ: t, BitField: true, Bits: width}
}

func Enum(name string, enumerators ...*Cursor) *Cursor {
	c := &Cursor{K: parser.CursorEnum, Name: name, ID: usr("E", name), Kids: enumerators, Definition: true, IntType: UInt}
	if name == "" {
		c.Anonymous = true
	}
	c.Typ = &Type{K: parser.TypeEnum, Decl: c, Spell: name}
	return c
}

func Enumerator(name string, v int64) *Cursor {
	return &Cursor{K: parser.CursorEnumConstant, Name: name, Value: v}
}

func Func(name string, result *Type, params ...*Cursor) *Cursor {
	ps := make([]*Type, len(params))
	for i, p := range params {
		ps[i] = p.Typ
	}
	return &Cursor{
		K:      parser.CursorFunction,
		Name:   name,
		ID:     usr("F", name),
		Result: result,
		Args:   params,
		Typ:    &Type{K: parser.TypeFunctionProto, Res: result, Ps: ps},
	}
}

// FuncNoProto declares a function without a prototype, as in "int f();".
func FuncNoProto(name string, result *Type) *Cursor {
	return &Cursor{
		K:      parser.CursorFunction,
		Name:   name,
		ID:     usr("F", name),
		Result: result,
		Typ:    &Type{K: parser.TypeFunctionNoProto, Res: result},
	}
}

func Param(name string, t *Type) *Cursor {
	return &Cursor{K: parser.CursorParam, Name: name, Typ: t}
}

func Var(name string, t *Type) *Cursor {
	return &Cursor{K: parser.CursorVar, Name: name, ID: usr("V", name), Typ: t}
}

func Typedef(name string, under *Type) *Cursor {
	c := &Cursor{K: parser.CursorTypedef, Name: name, ID: usr("T", name), Underlying: under}
	c.Typ = &Type{K: parser.TypeTypedef, Decl: c, Spell: name}
	return c
}

// Macro defines an object-like macro with the given replacement text.
func Macro(name, body string) *Cursor {
	toks := append([]parser.Token{{Kind: parser.TokenIdentifier, Spelling: name}}, Tokenize(body)...)
	return &Cursor{K: parser.CursorMacroDefinition, Name: name, Toks: toks}
}

// FuncMacro defines a function-like macro.
func FuncMacro(name, params, body string) *Cursor {
	c := Macro(name, "("+params+") "+body)
	c.FunctionLike = true
	return c
}

// Wrap nests cursors in an unexposed declaration, like extern "C" blocks.
func Wrap(kind parser.CursorKind, kids ...*Cursor) *Cursor {
	return &Cursor{K: kind, Kids: kids}
}

type Type struct {
	K     parser.TypeKind
	Spell string
	Elem  *Type
	Size  int64
	Res   *Type
	Ps    []*Type
	Var   bool
	Decl  *Cursor
	Canon *Type
}

func Prim(k parser.TypeKind, spelling string) *Type {
	return &Type{K: k, Spell: spelling}
}

var (
	Void       = Prim(parser.TypeVoid, "void")
	Bool       = Prim(parser.TypeBool, "_Bool")
	Char       = Prim(parser.TypeCharS, "char")
	UChar      = Prim(parser.TypeUChar, "unsigned char")
	Short      = Prim(parser.TypeShort, "short")
	Int        = Prim(parser.TypeInt, "int")
	UInt       = Prim(parser.TypeUInt, "unsigned int")
	Long       = Prim(parser.TypeLong, "long")
	ULong      = Prim(parser.TypeULong, "unsigned long")
	LongLong   = Prim(parser.TypeLongLong, "long long")
	Float      = Prim(parser.TypeFloat, "float")
	Double     = Prim(parser.TypeDouble, "double")
	LongDouble = Prim(parser.TypeLongDouble, "long double")
	Int128     = Prim(parser.TypeInt128, "__int128")
)

func PointerTo(t *Type) *Type {
	return &Type{K: parser.TypePointer, Elem: t, Spell: t.Spell + " *"}
}

func ArrayOf(t *Type, n int64) *Type {
	if n < 0 {
		return &Type{K: parser.TypeIncompleteArray, Elem: t, Spell: t.Spell + " []"}
	}
	return &Type{K: parser.TypeConstantArray, Elem: t, Size: n, Spell: fmt.Sprintf("%s [%d]", t.Spell, n)}
}

// Elaborated wraps t the way "struct foo" is spelled in a declaration.
func Elaborated(t *Type) *Type {
	return &Type{K: parser.TypeElaborated, Elem: t, Spell: t.Spell}
}

func Proto(result *Type, variadic bool, params ...*Type) *Type {
	return &Type{K: parser.TypeFunctionProto, Res: result, Ps: params, Var: variadic}
}

// TypeOf returns the type a record, enum or typedef cursor declares.
func TypeOf(c *Cursor) *Type { return c.Typ }

func (t *Type) native() parser.NativeType {
	if t == nil {
		return Prim(parser.TypeInvalid, "")
	}
	return t
}

func (t *Type) Kind() parser.TypeKind { return t.K }
func (t *Type) Spelling() string      { return t.Spell }

func (t *Type) Canonical() parser.NativeType {
	if t.Canon != nil {
		return t.Canon
	}
	return t
}

func (t *Type) Named() parser.NativeType   { return t.Elem.native() }
func (t *Type) Pointee() parser.NativeType { return t.Elem.native() }
func (t *Type) Element() parser.NativeType { return t.Elem.native() }
func (t *Type) ArraySize() int64           { return t.Size }
func (t *Type) Result() parser.NativeType  { return t.Res.native() }
func (t *Type) Variadic() bool             { return t.Var }

func (t *Type) Params() []parser.NativeType {
	out := make([]parser.NativeType, len(t.Ps))
	for i, p := range t.Ps {
		out[i] = p
	}
	return out
}

func (t *Type) Declaration() parser.Cursor {
	if t.Decl == nil {
		return &Cursor{}
	}
	return t.Decl
}

var keywords = map[string]bool{
	"void": true, "char": true, "short": true, "int": true, "long": true,
	"float": true, "double": true, "signed": true, "unsigned": true,
	"_Bool": true, "const": true, "volatile": true, "sizeof": true,
	"struct": true, "union": true, "enum": true,
}

// Tokenize splits C source text into tokens.
func Tokenize(src string) []parser.Token {
	var toks []parser.Token
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case isIdentStart(c):
			j := i
			for j < len(src) && (isIdentStart(src[j]) || isDigit(src[j])) {
				j++
			}
			word := src[i:j]
			if j < len(src) && (src[j] == '"' || src[j] == '\'') && (word == "L" || word == "u" || word == "U" || word == "u8") {
				k := quoted(src, j)
				toks = append(toks, parser.Token{Kind: parser.TokenLiteral, Spelling: src[i:k]})
				i = k
				continue
			}
			kind := parser.TokenIdentifier
			if keywords[word] {
				kind = parser.TokenKeyword
			}
			toks = append(toks, parser.Token{Kind: kind, Spelling: word})
			i = j
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			j := i + 1
			for j < len(src) {
				d := src[j]
				if (d == '+' || d == '-') && strings.ContainsRune("eEpP", rune(src[j-1])) {
					j++
					continue
				}
				if !isIdentStart(d) && !isDigit(d) && d != '.' && d != '\'' {
					break
				}
				j++
			}
			toks = append(toks, parser.Token{Kind: parser.TokenLiteral, Spelling: src[i:j]})
			i = j
		case c == '"' || c == '\'':
			k := quoted(src, i)
			toks = append(toks, parser.Token{Kind: parser.TokenLiteral, Spelling: src[i:k]})
			i = k
		default:
			n := 1
			if i+1 < len(src) {
				switch src[i : i+2] {
				case "<<", ">>", "<=", ">=", "==", "!=", "&&", "||":
					n = 2
				}
			}
			toks = append(toks, parser.Token{Kind: parser.TokenPunctuation, Spelling: src[i : i+n]})
			i += n
		}
	}
	return toks
}

func quoted(src string, i int) int {
	q := src[i]
	j := i + 1
	for j < len(src) && src[j] != q {
		if src[j] == '\\' {
			j++
		}
		j++
	}
	return min(j+1, len(src))
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
