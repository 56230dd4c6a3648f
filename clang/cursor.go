package clang

import (
	"github.com/go-clang/clang-v13/clang"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/parser"
)

var cursorKinds = map[clang.CursorKind]parser.CursorKind{
	clang.Cursor_UnexposedDecl:    parser.CursorUnexposed,
	clang.Cursor_StructDecl:       parser.CursorStruct,
	clang.Cursor_UnionDecl:        parser.CursorUnion,
	clang.Cursor_EnumDecl:         parser.CursorEnum,
	clang.Cursor_FieldDecl:        parser.CursorField,
	clang.Cursor_EnumConstantDecl: parser.CursorEnumConstant,
	clang.Cursor_FunctionDecl:     parser.CursorFunction,
	clang.Cursor_VarDecl:          parser.CursorVar,
	clang.Cursor_ParmDecl:         parser.CursorParam,
	clang.Cursor_TypedefDecl:      parser.CursorTypedef,
	clang.Cursor_Namespace:        parser.CursorNamespace,
	clang.Cursor_LinkageSpec:      parser.CursorLinkageSpec,
	clang.Cursor_MacroDefinition:  parser.CursorMacroDefinition,
	clang.Cursor_PackedAttr:       parser.CursorPackedAttr,
	clang.Cursor_AsmLabelAttr:     parser.CursorAsmLabelAttr,
}

type cursor struct {
	c clang.Cursor
}

func (c cursor) Kind() parser.CursorKind {
	if k, ok := cursorKinds[c.c.Kind()]; ok {
		return k
	}
	return parser.CursorOther
}

func (c cursor) Spelling() string { return c.c.Spelling() }
func (c cursor) USR() string      { return c.c.USR() }

func (c cursor) Location() (decl.Position, bool) {
	return position(c.c.Location())
}

func (c cursor) InSystemHeader() bool {
	return c.c.Location().IsInSystemHeader()
}

func (c cursor) Children() []parser.Cursor {
	var kids []parser.Cursor
	c.c.Visit(func(child, _ clang.Cursor) clang.ChildVisitResult {
		kids = append(kids, cursor{c: child})
		return clang.ChildVisit_Continue
	})
	return kids
}

func (c cursor) Type() parser.NativeType              { return nativeType{t: c.c.Type()} }
func (c cursor) ResultType() parser.NativeType        { return nativeType{t: c.c.ResultType()} }
func (c cursor) TypedefUnderlying() parser.NativeType { return nativeType{t: c.c.TypedefDeclUnderlyingType()} }
func (c cursor) EnumIntType() parser.NativeType       { return nativeType{t: c.c.EnumDeclIntegerType()} }

func (c cursor) Arguments() []parser.Cursor {
	n := c.c.NumArguments()
	args := make([]parser.Cursor, 0, max(n, 0))
	for i := int32(0); i < n; i++ {
		args = append(args, cursor{c: c.c.Argument(uint32(i))})
	}
	return args
}

func (c cursor) EnumValue() int64          { return c.c.EnumConstantDeclValue() }
func (c cursor) EnumUnsignedValue() uint64 { return c.c.EnumConstantDeclUnsignedValue() }

func (c cursor) BitWidth() int {
	if !c.c.IsBitField() {
		return -1
	}
	return int(c.c.FieldDeclBitWidth())
}

func (c cursor) IsDefinition() bool        { return c.c.IsCursorDefinition() }
func (c cursor) HasDefinition() bool       { return !c.c.Definition().IsNull() }
func (c cursor) IsAnonymous() bool         { return c.c.IsAnonymous() }
func (c cursor) IsAnonymousMember() bool   { return c.c.IsAnonymousRecordDecl() }
func (c cursor) IsFunctionLikeMacro() bool { return c.c.IsMacroFunctionLike() }

func (c cursor) InternalLinkage() bool {
	return c.c.Linkage() == clang.Linkage_Internal
}

// =============================================================================

var typeKinds = map[clang.TypeKind]parser.TypeKind{
	clang.Type_Invalid:         parser.TypeInvalid,
	clang.Type_Unexposed:       parser.TypeUnexposed,
	clang.Type_Void:            parser.TypeVoid,
	clang.Type_Bool:            parser.TypeBool,
	clang.Type_Char_U:          parser.TypeCharU,
	clang.Type_UChar:           parser.TypeUChar,
	clang.Type_Char16:          parser.TypeChar16,
	clang.Type_Char32:          parser.TypeChar32,
	clang.Type_UShort:          parser.TypeUShort,
	clang.Type_UInt:            parser.TypeUInt,
	clang.Type_ULong:           parser.TypeULong,
	clang.Type_ULongLong:       parser.TypeULongLong,
	clang.Type_UInt128:         parser.TypeUInt128,
	clang.Type_Char_S:          parser.TypeCharS,
	clang.Type_SChar:           parser.TypeSChar,
	clang.Type_WChar:           parser.TypeWChar,
	clang.Type_Short:           parser.TypeShort,
	clang.Type_Int:             parser.TypeInt,
	clang.Type_Long:            parser.TypeLong,
	clang.Type_LongLong:        parser.TypeLongLong,
	clang.Type_Int128:          parser.TypeInt128,
	clang.Type_Half:            parser.TypeHalf,
	clang.Type_Float:           parser.TypeFloat,
	clang.Type_Double:          parser.TypeDouble,
	clang.Type_LongDouble:      parser.TypeLongDouble,
	clang.Type_Float128:        parser.TypeFloat128,
	clang.Type_Pointer:         parser.TypePointer,
	clang.Type_BlockPointer:    parser.TypeBlockPointer,
	clang.Type_Record:          parser.TypeRecord,
	clang.Type_Enum:            parser.TypeEnum,
	clang.Type_Typedef:         parser.TypeTypedef,
	clang.Type_Elaborated:      parser.TypeElaborated,
	clang.Type_FunctionProto:   parser.TypeFunctionProto,
	clang.Type_FunctionNoProto: parser.TypeFunctionNoProto,
	clang.Type_ConstantArray:   parser.TypeConstantArray,
	clang.Type_IncompleteArray: parser.TypeIncompleteArray,
	clang.Type_VariableArray:   parser.TypeVariableArray,
	clang.Type_Complex:         parser.TypeComplex,
	clang.Type_Vector:          parser.TypeVector,
}

type nativeType struct {
	t clang.Type
}

func (t nativeType) Kind() parser.TypeKind {
	if k, ok := typeKinds[t.t.Kind()]; ok {
		return k
	}
	return parser.TypeOther
}

func (t nativeType) Spelling() string             { return t.t.Spelling() }
func (t nativeType) Canonical() parser.NativeType { return nativeType{t: t.t.CanonicalType()} }
func (t nativeType) Named() parser.NativeType     { return nativeType{t: t.t.NamedType()} }
func (t nativeType) Pointee() parser.NativeType   { return nativeType{t: t.t.PointeeType()} }
func (t nativeType) Element() parser.NativeType   { return nativeType{t: t.t.ArrayElementType()} }
func (t nativeType) ArraySize() int64             { return t.t.ArraySize() }
func (t nativeType) Result() parser.NativeType    { return nativeType{t: t.t.ResultType()} }
func (t nativeType) Variadic() bool               { return t.t.IsFunctionTypeVariadic() }
func (t nativeType) Declaration() parser.Cursor   { return cursor{c: t.t.Declaration()} }

func (t nativeType) Params() []parser.NativeType {
	n := t.t.NumArgTypes()
	params := make([]parser.NativeType, 0, max(n, 0))
	for i := int32(0); i < n; i++ {
		params = append(params, nativeType{t: t.t.ArgType(uint32(i))})
	}
	return params
}
