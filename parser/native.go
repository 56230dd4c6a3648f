package parser

import "github.com/ardanlabs/ffi-extract/decl"

// The interfaces below are the part of a C front end the builder consumes.
// Package clang implements them on top of libclang.

// Index creates translation units.
type Index interface {
	Parse(path string, args []string) (TranslationUnit, error)
	Dispose()
}

type TranslationUnit interface {
	Cursor() Cursor
	Diagnostics() []Diagnostic
	// Tokens returns the tokens spanned by c.
	Tokens(c Cursor) []Token
	Dispose()
}

type CursorKind int

const (
	CursorOther CursorKind = iota
	CursorUnexposed
	CursorStruct
	CursorUnion
	CursorEnum
	CursorField
	CursorEnumConstant
	CursorFunction
	CursorVar
	CursorParam
	CursorTypedef
	CursorNamespace
	CursorLinkageSpec
	CursorMacroDefinition
	CursorPackedAttr
	CursorAsmLabelAttr
)

type Cursor interface {
	Kind() CursorKind
	Spelling() string
	// USR is a name unique across the translation unit.
	USR() string
	// Location reports false when the cursor has no file location.
	Location() (decl.Position, bool)
	InSystemHeader() bool
	Children() []Cursor

	Type() NativeType
	ResultType() NativeType
	Arguments() []Cursor
	TypedefUnderlying() NativeType
	EnumIntType() NativeType
	EnumValue() int64
	EnumUnsignedValue() uint64
	// BitWidth is -1 for fields that are not bit-fields.
	BitWidth() int

	IsDefinition() bool
	HasDefinition() bool
	// IsAnonymous reports an unnamed record or enum.
	IsAnonymous() bool
	// IsAnonymousMember reports a C11 anonymous struct or union member.
	IsAnonymousMember() bool
	IsFunctionLikeMacro() bool
	InternalLinkage() bool
}

type TypeKind int

const (
	TypeInvalid TypeKind = iota
	TypeUnexposed
	TypeVoid
	TypeBool
	TypeCharU
	TypeUChar
	TypeChar16
	TypeChar32
	TypeUShort
	TypeUInt
	TypeULong
	TypeULongLong
	TypeUInt128
	TypeCharS
	TypeSChar
	TypeWChar
	TypeShort
	TypeInt
	TypeLong
	TypeLongLong
	TypeInt128
	TypeHalf
	TypeFloat
	TypeDouble
	TypeLongDouble
	TypeFloat128
	TypePointer
	TypeBlockPointer
	TypeRecord
	TypeEnum
	TypeTypedef
	TypeElaborated
	TypeFunctionProto
	TypeFunctionNoProto
	TypeConstantArray
	TypeIncompleteArray
	TypeVariableArray
	TypeComplex
	TypeVector
	TypeOther
)

type NativeType interface {
	Kind() TypeKind
	Spelling() string
	Canonical() NativeType
	// Named strips an elaborated type specifier.
	Named() NativeType
	Pointee() NativeType
	Element() NativeType
	ArraySize() int64
	Result() NativeType
	Params() []NativeType
	Variadic() bool
	// Declaration is the cursor declaring a record, enum or typedef type.
	Declaration() Cursor
}

type Severity int

const (
	SeverityIgnored Severity = iota
	SeverityNote
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityNote:
		return "note"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "ignored"
	}
}

type Diagnostic struct {
	Severity Severity
	Message  string
	Pos      decl.Position
}

func (d Diagnostic) String() string {
	return d.Pos.String() + ": " + d.Severity.String() + ": " + d.Message
}

type TokenKind int

const (
	TokenPunctuation TokenKind = iota
	TokenKeyword
	TokenIdentifier
	TokenLiteral
	TokenComment
)

type Token struct {
	Kind     TokenKind
	Spelling string
}
