package decl

import (
	"fmt"
	"slices"
)

// AttrKey is one of the fixed attribute keys a declaration can carry.
type AttrKey int

const (
	// LinkName overrides the native symbol name.
	LinkName AttrKey = iota + 1
	// Skip marks a declaration omitted from emission; the value is the reason.
	Skip
	// GoName is the primary Go identifier of a declaration.
	GoName
	// LayoutName is the identifier of the layout var.
	LayoutName
	// SymbolName is the identifier of the lazy symbol or call handle.
	SymbolName
	// SetterName is the setter of a scalar variable.
	SetterName
	// FactoryName is the constructor of a function pointer typedef.
	FactoryName
	// ParamNames are the final parameter names of a function, in order.
	ParamNames
)

func (k AttrKey) String() string {
	switch k {
	case LinkName:
		return "LinkName"
	case Skip:
		return "Skip"
	case GoName:
		return "GoName"
	case LayoutName:
		return "LayoutName"
	case SymbolName:
		return "SymbolName"
	case SetterName:
		return "SetterName"
	case FactoryName:
		return "FactoryName"
	case ParamNames:
		return "ParamNames"
	default:
		return fmt.Sprintf("AttrKey(%d)", int(k))
	}
}

// Attrs is an immutable attribute set. The zero value is empty.
type Attrs struct {
	m map[AttrKey][]string
}

// NewAttrs returns a set holding a single key.
func NewAttrs(key AttrKey, values ...string) Attrs {
	return Attrs{}.With(key, values...)
}

func (a Attrs) Has(key AttrKey) bool {
	_, ok := a.m[key]
	return ok
}

// Get returns the first value of key.
func (a Attrs) Get(key AttrKey) (string, bool) {
	vals, ok := a.m[key]
	if !ok {
		return "", false
	}
	if len(vals) == 0 {
		return "", true
	}
	return vals[0], true
}

// Values returns a copy of every value stored under key.
func (a Attrs) Values(key AttrKey) []string {
	vals, ok := a.m[key]
	if !ok {
		return nil
	}
	return append([]string(nil), vals...)
}

// With returns a new set where key holds values. The receiver is unchanged.
func (a Attrs) With(key AttrKey, values ...string) Attrs {
	m := make(map[AttrKey][]string, len(a.m)+1)
	for k, v := range a.m {
		m[k] = v
	}
	m[key] = append([]string{}, values...)
	return Attrs{m: m}
}

func (a Attrs) Len() int { return len(a.m) }

// Equal reports whether a and b hold the same keys and values.
func (a Attrs) Equal(b Attrs) bool {
	if len(a.m) != len(b.m) {
		return false
	}
	for k, v := range a.m {
		w, ok := b.m[k]
		if !ok || !slices.Equal(v, w) {
			return false
		}
	}
	return true
}
