package generator

import (
	"fmt"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
	"github.com/ardanlabs/ffi-extract/pipeline"
)

var carrierGoTypes = map[layout.Carrier]string{
	layout.Bool:    "bool",
	layout.Int8:    "int8",
	layout.Int16:   "int16",
	layout.Int32:   "int32",
	layout.Int64:   "int64",
	layout.Uint8:   "uint8",
	layout.Uint16:  "uint16",
	layout.Uint32:  "uint32",
	layout.Uint64:  "uint64",
	layout.Float32: "float32",
	layout.Float64: "float64",
	layout.Address: "unsafe.Pointer",
}

var carrierLayouts = map[layout.Carrier]string{
	layout.Bool:    "ffirt.Bool",
	layout.Int8:    "ffirt.Int8",
	layout.Int16:   "ffirt.Int16",
	layout.Int32:   "ffirt.Int32",
	layout.Int64:   "ffirt.Int64",
	layout.Uint8:   "ffirt.Uint8",
	layout.Uint16:  "ffirt.Uint16",
	layout.Uint32:  "ffirt.Uint32",
	layout.Uint64:  "ffirt.Uint64",
	layout.Float32: "ffirt.Float32",
	layout.Float64: "ffirt.Float64",
	layout.Address: "ffirt.Pointer",
}

func goName(d decl.Declaration) string {
	name, _ := d.Base().Attrs.Get(decl.GoName)
	return name
}

func unsupported(t decl.Type, reason string) error {
	return &layout.UnsupportedTypeError{Type: decl.Spell(t), Reason: reason}
}

// record returns the emitted struct or union t refers to.
func (g *Generator) record(t decl.Type) (*decl.Scoped, bool) {
	d, ok := t.(decl.Declared)
	if !ok {
		return nil, false
	}
	s, found := g.table.Lookup(d.ID)
	if !found || decl.IsSkipped(s) || (s.Kind != decl.Struct && s.Kind != decl.Union) {
		return nil, false
	}
	return s, true
}

// alias returns the emitted typedef behind a typedef name. Callback
// typedefs become Go func types, which cannot stand in for a native
// function pointer, so they are never returned.
func (g *Generator) alias(d decl.Delegated) (*decl.Typedef, bool) {
	td, ok := g.typedefs[d.Name]
	if !ok || td.Base().Attrs.Has(decl.FactoryName) {
		return nil, false
	}
	return td, true
}

// goType returns the Go spelling of t. Pointers to emitted records are
// typed; every other pointer is an unsafe.Pointer.
func (g *Generator) goType(t decl.Type) (string, error) {
	switch t := t.(type) {
	case nil:
		return "", nil

	case decl.Primitive:
		c, err := g.resolver.Carrier(t)
		if err != nil {
			return "", err
		}
		return carrierGoTypes[c], nil

	case decl.Pointer:
		if name, ok := g.pointee(t.Elem); ok {
			return "*" + name, nil
		}
		return "unsafe.Pointer", nil

	case decl.FunctionType:
		return "unsafe.Pointer", nil

	case decl.Declared:
		s, ok := g.table.Lookup(t.ID)
		if !ok || decl.IsSkipped(s) {
			return "", unsupported(t, "declaration not emitted")
		}
		if s.Kind == decl.Enum && goName(s) == "" {
			c, err := g.resolver.Carrier(t)
			if err != nil {
				return "", err
			}
			return carrierGoTypes[c], nil
		}
		return goName(s), nil

	case decl.Array:
		elem, err := g.goType(t.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("[%d]%s", max(t.Len, 0), elem), nil

	case decl.Delegated:
		if td, ok := g.alias(t); ok {
			return goName(td), nil
		}
		return g.goType(t.Underlying)
	}
	panic(fmt.Sprintf("generator: unknown type %T", t))
}

func (g *Generator) pointee(t decl.Type) (string, bool) {
	if d, ok := t.(decl.Delegated); ok {
		if td, ok := g.alias(d); ok {
			if _, isRecord := g.record(decl.Strip(td.Type)); isRecord {
				return goName(td), true
			}
		}
		return g.pointee(d.Underlying)
	}
	if s, ok := g.record(t); ok {
		return goName(s), true
	}
	return "", false
}

// layoutExpr returns an expression for the ffirt layout of t. Records and
// typedefs refer to their layout vars, so aliases share one value.
func (g *Generator) layoutExpr(t decl.Type) (string, error) {
	switch t := t.(type) {
	case decl.Delegated:
		if td, ok := g.typedefs[t.Name]; ok {
			if name, ok := td.Attrs.Get(decl.LayoutName); ok {
				return name, nil
			}
		}
		return g.layoutExpr(t.Underlying)

	case decl.Declared:
		if s, ok := g.record(t); ok {
			name, ok := s.Attrs.Get(decl.LayoutName)
			if !ok {
				return "", unsupported(t, "incomplete type")
			}
			return name, nil
		}

	case decl.Array:
		elem, err := g.layoutExpr(t.Elem)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ffirt.Array(%s, %d)", elem, t.Len), nil
	}

	l, err := g.resolver.Layout(t)
	if err != nil {
		return "", err
	}
	expr, ok := carrierLayouts[l.Carrier]
	if !ok {
		return "", unsupported(t, "no layout value")
	}
	return expr, nil
}

// callback reports whether td is emitted as a Go func type.
func (g *Generator) callback(td *decl.Typedef) (decl.FunctionType, *layout.Descriptor, bool) {
	if !td.Attrs.Has(decl.FactoryName) {
		return decl.FunctionType{}, nil, false
	}
	return pipeline.Callback(g.resolver, td.Type)
}
