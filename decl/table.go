package decl

import "fmt"

// Table resolves Declared references against one tree.
type Table struct {
	byID map[ID]*Scoped
}

// NewTable indexes every Scoped declaration reachable from root.
func NewTable(root *Scoped) *Table {
	t := &Table{byID: make(map[ID]*Scoped)}
	t.add(root)
	return t
}

func (t *Table) add(s *Scoped) {
	if s.ID != 0 {
		t.byID[s.ID] = s
	}
	for _, m := range s.Members {
		if child, ok := m.(*Scoped); ok {
			t.add(child)
		}
	}
}

func (t *Table) Lookup(id ID) (*Scoped, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// Walk calls fn for every declaration below root in traversal order, passing
// the enclosing scope. Returning false from fn prunes the members of a
// Scoped declaration.
func Walk(root *Scoped, fn func(d Declaration, parent *Scoped) bool) {
	for _, m := range root.Members {
		if !fn(m, root) {
			continue
		}
		if s, ok := m.(*Scoped); ok {
			Walk(s, fn)
		}
	}
}

// Fields returns the field members of an aggregate, in order.
func Fields(s *Scoped) []*Variable {
	var fields []*Variable
	for _, m := range s.Members {
		if v, ok := m.(*Variable); ok && v.Field {
			fields = append(fields, v)
		}
	}
	return fields
}

// String renders a declaration for logs.
func String(d Declaration) string {
	b := d.Base()
	name := b.Name
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s %s at %s", Kind(d), name, b.Pos)
}
