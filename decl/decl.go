// Package decl holds the declaration tree produced from a parsed header.
//
// Declaration and Type are closed sums: every consumer switches over the
// concrete types exhaustively and panics on an unknown one, so adding a kind
// forces every matcher to be updated.
package decl

import "fmt"

// Position is a source location.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// ID identifies a Scoped declaration within one run. The zero ID is never
// assigned.
type ID int

type ScopeKind int

const (
	Struct ScopeKind = iota
	Union
	Enum
	Namespace
	Header
)

func (k ScopeKind) String() string {
	switch k {
	case Struct:
		return "struct"
	case Union:
		return "union"
	case Enum:
		return "enum"
	case Namespace:
		return "namespace"
	case Header:
		return "header"
	default:
		return fmt.Sprintf("ScopeKind(%d)", int(k))
	}
}

// Info is the part every declaration carries.
type Info struct {
	Name  string
	Pos   Position
	Attrs Attrs
}

// Base returns a copy of the common declaration data.
func (i Info) Base() Info { return i }

type Declaration interface {
	Base() Info
	declNode()
}

type Scoped struct {
	Info
	Kind    ScopeKind
	ID      ID
	Members []Declaration

	// Incomplete marks a record that is declared but never defined.
	Incomplete bool
	Packed     bool

	// IntType is the integer type of an enum.
	IntType Type
}

type Param struct {
	Name string
	Type Type
}

type Function struct {
	Info
	Result   Type
	Params   []Param
	Variadic bool
}

// Signature returns the function type of f.
func (f *Function) Signature() FunctionType {
	params := make([]Type, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type
	}
	return FunctionType{Params: params, Result: f.Result, Variadic: f.Variadic}
}

type Variable struct {
	Info
	Type Type

	// Field is set for members of a struct or union.
	Field    bool
	BitField bool
	BitWidth int
}

// Address is the value of a pointer constant.
type Address uint64

type Constant struct {
	Info
	Type Type

	// Value is one of int64, uint64, float32, float64, string or Address.
	Value any
}

type Typedef struct {
	Info
	Type Type
}

func (*Scoped) declNode()   {}
func (*Function) declNode() {}
func (*Variable) declNode() {}
func (*Constant) declNode() {}
func (*Typedef) declNode()  {}

// Kind names the declaration kind for messages and dedup keys.
func Kind(d Declaration) string {
	switch d := d.(type) {
	case *Scoped:
		return d.Kind.String()
	case *Function:
		return "function"
	case *Variable:
		if d.Field {
			return "field"
		}
		return "variable"
	case *Constant:
		return "constant"
	case *Typedef:
		return "typedef"
	default:
		panic(fmt.Sprintf("decl: unknown declaration %T", d))
	}
}

// WithAttrs returns a shallow copy of d carrying attrs.
func WithAttrs(d Declaration, attrs Attrs) Declaration {
	switch d := d.(type) {
	case *Scoped:
		c := *d
		c.Attrs = attrs
		return &c
	case *Function:
		c := *d
		c.Attrs = attrs
		return &c
	case *Variable:
		c := *d
		c.Attrs = attrs
		return &c
	case *Constant:
		c := *d
		c.Attrs = attrs
		return &c
	case *Typedef:
		c := *d
		c.Attrs = attrs
		return &c
	default:
		panic(fmt.Sprintf("decl: unknown declaration %T", d))
	}
}

// WithMembers returns a copy of s holding members.
func (s *Scoped) WithMembers(members []Declaration) *Scoped {
	c := *s
	c.Members = members
	return &c
}

// IsSkipped reports whether a pass marked d as skipped.
func IsSkipped(d Declaration) bool {
	return d.Base().Attrs.Has(Skip)
}

// SkipReason returns why d was skipped.
func SkipReason(d Declaration) string {
	reason, _ := d.Base().Attrs.Get(Skip)
	return reason
}

// MarkSkipped returns a copy of d carrying the skip marker.
func MarkSkipped(d Declaration, reason string) Declaration {
	return WithAttrs(d, d.Base().Attrs.With(Skip, reason))
}

// LinkNameOf returns the symbol name of d, honoring a link name override.
func LinkNameOf(d Declaration) string {
	if name, ok := d.Base().Attrs.Get(LinkName); ok {
		return name
	}
	return d.Base().Name
}
