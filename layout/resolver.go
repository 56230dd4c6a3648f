package layout

import (
	"fmt"

	"github.com/ardanlabs/ffi-extract/decl"
)

type result struct {
	layout *Layout
	err    error
}

// Resolver computes layouts for the types of one tree. Results are cached
// per canonical type key for the lifetime of the resolver, which is one run.
type Resolver struct {
	table  *decl.Table
	model  DataModel
	cache  map[string]result
	active map[decl.ID]bool
}

func NewResolver(table *decl.Table, model DataModel) *Resolver {
	return &Resolver{
		table:  table,
		model:  model,
		cache:  make(map[string]result),
		active: make(map[decl.ID]bool),
	}
}

func (r *Resolver) Model() DataModel { return r.model }

// Lookup resolves a Declared reference.
func (r *Resolver) Lookup(d decl.Declared) (*decl.Scoped, bool) {
	return r.table.Lookup(d.ID)
}

// Layout returns the layout of t.
func (r *Resolver) Layout(t decl.Type) (*Layout, error) {
	key := decl.Key(t)
	if res, ok := r.cache[key]; ok {
		return res.layout, res.err
	}
	l, err := r.compute(t)
	r.cache[key] = result{layout: l, err: err}
	return l, err
}

// Carrier classifies a scalar or pointer type.
func (r *Resolver) Carrier(t decl.Type) (Carrier, error) {
	l, err := r.Layout(t)
	if err != nil {
		return None, err
	}
	return l.Carrier, nil
}

// Aggregate returns the layout of a struct or union declaration.
func (r *Resolver) Aggregate(s *decl.Scoped) (*Layout, error) {
	return r.Layout(decl.Declared{ID: s.ID, Name: s.Name})
}

// Descriptor returns the call descriptor of a function type.
func (r *Resolver) Descriptor(fn decl.FunctionType) (*Descriptor, error) {
	desc := &Descriptor{Variadic: fn.Variadic}
	if fn.Result != nil {
		l, err := r.Layout(fn.Result)
		if err != nil {
			return nil, err
		}
		if l.Kind == Array {
			return nil, unsupported(fn.Result, "functions cannot return arrays")
		}
		if l.Carrier != Void {
			desc.Result = l
		}
	}
	for i, p := range fn.Params {
		l, err := r.Layout(p)
		if err != nil {
			return nil, err
		}
		if l.Carrier == Void {
			return nil, unsupported(p, "parameter %d has type void", i)
		}
		desc.Args = append(desc.Args, l)
	}
	return desc, nil
}

func (r *Resolver) compute(t decl.Type) (*Layout, error) {
	switch t := t.(type) {
	case nil:
		return voidLayout, nil
	case decl.Primitive:
		if l := r.model.primitive(t.Kind); l != nil {
			return l, nil
		}
		return nil, unsupported(t, "no carrier for %s", t.Kind)
	case decl.Pointer:
		return pointerLayout, nil
	case decl.Delegated:
		return r.Layout(t.Underlying)
	case decl.FunctionType:
		// Function designators are only ever carried as addresses.
		return pointerLayout, nil
	case decl.Array:
		elem, err := r.Layout(t.Elem)
		if err != nil {
			return nil, err
		}
		if elem.Carrier == Void {
			return nil, unsupported(t, "array of void")
		}
		if elem.Kind == Array && elem.Count < 0 {
			return nil, unsupported(t, "array of arrays of unknown length")
		}
		l := &Layout{Kind: Array, Elem: elem, Count: t.Len, Align: elem.Align}
		if t.Len > 0 {
			l.Size = elem.Size * t.Len
		}
		return l, nil
	case decl.Declared:
		return r.declared(t)
	default:
		panic(fmt.Sprintf("layout: unknown type %T", t))
	}
}

func (r *Resolver) declared(t decl.Declared) (*Layout, error) {
	s, ok := r.table.Lookup(t.ID)
	if !ok {
		return nil, unsupported(t, "declaration not found")
	}
	if decl.IsSkipped(s) {
		return nil, unsupported(t, "refers to a skipped declaration (%s)", decl.SkipReason(s))
	}
	switch s.Kind {
	case decl.Enum:
		if s.IntType == nil {
			return r.Layout(decl.Prim(decl.Int))
		}
		return r.Layout(s.IntType)
	case decl.Struct, decl.Union:
	default:
		return nil, unsupported(t, "%s has no layout", s.Kind)
	}
	if s.Incomplete {
		return nil, unsupported(t, "incomplete type")
	}
	if r.active[s.ID] {
		return nil, unsupported(t, "contains itself")
	}
	r.active[s.ID] = true
	defer delete(r.active, s.ID)

	fields := decl.Fields(s)
	placed := make([]Field, 0, len(fields))
	layouts := make([]*Layout, 0, len(fields))
	for i, f := range fields {
		if f.BitField {
			return nil, unsupported(t, "field %s is a bit-field", f.Name)
		}
		fl, err := r.Layout(f.Type)
		if err != nil {
			return nil, err
		}
		if fl.Kind == Array && fl.Count < 0 && (s.Kind == decl.Union || i != len(fields)-1) {
			return nil, unsupported(t, "field %s has unknown length", f.Name)
		}
		placed = append(placed, Field{Name: f.Name, Type: f.Type, Layout: fl})
		layouts = append(layouts, fl)
	}

	if s.Kind == decl.Union {
		return unionLayout(s, placed, layouts), nil
	}
	return structLayout(s, placed, layouts), nil
}

func fieldAlign(s *decl.Scoped, l *Layout) int64 {
	if s.Packed || l.Align < 1 {
		return 1
	}
	return l.Align
}

func structLayout(s *decl.Scoped, fields []Field, layouts []*Layout) *Layout {
	var offset int64
	align := int64(1)
	for i := range fields {
		a := fieldAlign(s, layouts[i])
		offset = alignUp(offset, a)
		fields[i].Offset = offset
		offset += layouts[i].Size
		align = max(align, a)
	}
	return &Layout{
		Kind:   Struct,
		Name:   s.Name,
		Size:   alignUp(offset, align),
		Align:  align,
		Fields: fields,
	}
}

func unionLayout(s *decl.Scoped, fields []Field, layouts []*Layout) *Layout {
	var size int64
	align := int64(1)
	for i := range fields {
		fields[i].Offset = 0
		size = max(size, layouts[i].Size)
		align = max(align, fieldAlign(s, layouts[i]))
	}
	return &Layout{
		Kind:   Union,
		Name:   s.Name,
		Size:   alignUp(size, align),
		Align:  align,
		Fields: fields,
	}
}
