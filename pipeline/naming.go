package pipeline

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/huandu/xstrings"
	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
)

var goKeywords = []string{
	"break", "case", "chan", "const", "continue", "default", "defer", "else",
	"fallthrough", "for", "func", "go", "goto", "if", "import", "interface",
	"map", "package", "range", "return", "select", "struct", "switch", "type",
	"var",
}

var predeclared = []string{
	"any", "bool", "byte", "comparable", "complex64", "complex128", "error",
	"float32", "float64", "int", "int8", "int16", "int32", "int64", "rune",
	"string", "uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
	"true", "false", "iota", "nil",
	"append", "cap", "clear", "close", "complex", "copy", "delete", "imag",
	"len", "make", "max", "min", "new", "panic", "print", "println", "real",
	"recover",
}

// namespace hands out unique identifiers. A child namespace also avoids
// every name its parent has handed out.
type namespace struct {
	parent *namespace
	used   map[string]bool
}

func newNamespace(parent *namespace, reserved ...[]string) *namespace {
	ns := namespace{parent: parent, used: make(map[string]bool)}
	for _, names := range reserved {
		for _, name := range names {
			ns.used[name] = true
		}
	}
	return &ns
}

func (ns *namespace) taken(name string) bool {
	for n := ns; n != nil; n = n.parent {
		if n.used[name] {
			return true
		}
	}
	return false
}

// claim returns base, or base with the lowest numeric suffix from 2 up that
// is still free.
func (ns *namespace) claim(base string) string {
	name := base
	for i := 2; ns.taken(name); i++ {
		name = base + strconv.Itoa(i)
	}
	ns.used[name] = true
	return name
}

// Exported turns a C identifier into an exported Go identifier. Names
// without lower case letters, like most macros, keep their spelling.
func Exported(name string) string {
	s := strings.TrimLeft(name, "_")
	if strings.ToUpper(s) != s {
		s = xstrings.ToPascalCase(s)
	}
	s = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
	if s == "" || !unicode.IsUpper([]rune(s)[0]) {
		s = "X" + s
	}
	return s
}

func unexported(name string) string {
	return lower(Exported(name))
}

func lower(goName string) string {
	if strings.ToUpper(goName) == goName {
		return strings.ToLower(goName)
	}
	return xstrings.FirstRuneToLower(goName)
}

type naming struct {
	logger   *zap.Logger
	resolver *layout.Resolver
	global   *namespace
	locals   []string
}

// AssignNames gives every retained declaration its Go identifiers. Package
// level names share one namespace that starts with opts.Reserved. Field
// names are unique per aggregate and parameter names per function, where
// they also avoid opts.Locals and every package level name.
func AssignNames(root *decl.Scoped, opts Options) *decl.Scoped {
	logger := opts.logger()
	root = sameNameTypedefs(root, logger)

	n := naming{
		logger:   logger,
		resolver: layout.NewResolver(decl.NewTable(root), opts.Model),
		global:   newNamespace(nil, goKeywords, predeclared, opts.Reserved),
		locals:   opts.Locals,
	}
	root = n.scope(root, nil)
	return n.params(root)
}

func (n *naming) scope(s *decl.Scoped, aggregate *decl.Scoped) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		members[i] = n.visit(m, aggregate)
	}
	return s.WithMembers(members)
}

func (n *naming) visit(m decl.Declaration, aggregate *decl.Scoped) decl.Declaration {
	if decl.IsSkipped(m) {
		return m
	}

	switch m := m.(type) {
	case *decl.Scoped:
		switch m.Kind {
		case decl.Struct, decl.Union:
			return n.record(m, aggregate)
		case decl.Enum:
			return n.enum(m)
		default:
			return n.scope(m, nil)
		}

	case *decl.Function:
		name := n.global.claim(Exported(m.Name))
		attrs := m.Attrs.
			With(decl.GoName, name).
			With(decl.SymbolName, n.global.claim(lower(name)+"Handle"))
		return decl.WithAttrs(m, attrs)

	case *decl.Variable:
		if m.Field {
			return m
		}
		name := n.global.claim(Exported(m.Name))
		attrs := m.Attrs.
			With(decl.GoName, name).
			With(decl.LayoutName, n.global.claim(name+"Layout")).
			With(decl.SymbolName, n.global.claim(lower(name)+"Symbol"))
		if l, err := n.resolver.Layout(m.Type); err == nil && l.Kind == layout.Value {
			attrs = attrs.With(decl.SetterName, n.global.claim("Set"+name))
		}
		return decl.WithAttrs(m, attrs)

	case *decl.Constant:
		return decl.WithAttrs(m, m.Attrs.With(decl.GoName, n.global.claim(Exported(m.Name))))

	case *decl.Typedef:
		name := n.global.claim(Exported(m.Name))
		attrs := m.Attrs.With(decl.GoName, name)
		if _, _, ok := Callback(n.resolver, m.Type); ok {
			attrs = attrs.With(decl.FactoryName, n.global.claim(name+"Of"))
		}
		if _, err := n.resolver.Layout(m.Type); err == nil {
			attrs = attrs.With(decl.LayoutName, n.global.claim(name+"Layout"))
		}
		return decl.WithAttrs(m, attrs)
	}
	panic("pipeline: unknown declaration")
}

func (n *naming) record(s *decl.Scoped, aggregate *decl.Scoped) decl.Declaration {
	name := n.global.claim(n.recordName(s, aggregate))
	attrs := s.Attrs.With(decl.GoName, name)
	if !s.Incomplete {
		attrs = attrs.With(decl.LayoutName, n.global.claim(name+"Layout"))
	}
	s = decl.WithAttrs(s, attrs).(*decl.Scoped)

	fields := newNamespace(nil)
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		v, ok := m.(*decl.Variable)
		if !ok || !v.Field {
			members[i] = n.visit(m, s)
			continue
		}
		base := "Anon"
		if v.Name != "" {
			base = Exported(v.Name)
		}
		members[i] = decl.WithAttrs(v, v.Attrs.With(decl.GoName, fields.claim(base)))
	}
	return s.WithMembers(members)
}

// recordName derives the name of an anonymous aggregate from the field
// that holds it.
func (n *naming) recordName(s *decl.Scoped, aggregate *decl.Scoped) string {
	if s.Name != "" {
		return Exported(s.Name)
	}
	if aggregate == nil {
		return "Anon"
	}
	parent, _ := aggregate.Attrs.Get(decl.GoName)
	for _, f := range decl.Fields(aggregate) {
		if f.Name != "" && refersTo(f.Type, s.ID) {
			return parent + Exported(f.Name)
		}
	}
	return parent + "Anon"
}

func refersTo(t decl.Type, id decl.ID) bool {
	switch t := decl.Strip(t).(type) {
	case decl.Declared:
		return t.ID == id
	case decl.Array:
		return refersTo(t.Elem, id)
	}
	return false
}

func (n *naming) enum(s *decl.Scoped) decl.Declaration {
	attrs := s.Attrs
	if s.Name != "" {
		attrs = attrs.With(decl.GoName, n.global.claim(Exported(s.Name)))
	}

	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		members[i] = m
		if c, ok := m.(*decl.Constant); ok && !decl.IsSkipped(c) {
			members[i] = decl.WithAttrs(c, c.Attrs.With(decl.GoName, n.global.claim(Exported(c.Name))))
		}
	}
	return decl.WithAttrs(s.WithMembers(members), attrs)
}

// params names the parameters of every function once all package level
// names are known.
func (n *naming) params(s *decl.Scoped) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		members[i] = m
		if decl.IsSkipped(m) {
			continue
		}
		switch m := m.(type) {
		case *decl.Scoped:
			members[i] = n.params(m)
		case *decl.Function:
			ns := newNamespace(n.global, n.locals)
			names := make([]string, 0, len(m.Params)+1)
			for j, p := range m.Params {
				base := "x" + strconv.Itoa(j)
				if p.Name != "" {
					base = unexported(p.Name)
				}
				names = append(names, ns.claim(base))
			}
			if m.Variadic {
				names = append(names, ns.claim("args"))
			}
			members[i] = decl.WithAttrs(m, m.Attrs.With(decl.ParamNames, names...))
		}
	}
	return s.WithMembers(members)
}

// sameNameTypedefs skips typedefs that would only repeat the Go name of
// the aggregate or enum they alias, as in typedef struct foo foo.
func sameNameTypedefs(root *decl.Scoped, logger *zap.Logger) *decl.Scoped {
	table := decl.NewTable(root)

	var rewrite func(s *decl.Scoped) *decl.Scoped
	rewrite = func(s *decl.Scoped) *decl.Scoped {
		members := make([]decl.Declaration, len(s.Members))
		for i, m := range s.Members {
			members[i] = m
			if decl.IsSkipped(m) {
				continue
			}
			switch m := m.(type) {
			case *decl.Scoped:
				members[i] = rewrite(m)
			case *decl.Typedef:
				d, ok := m.Type.(decl.Declared)
				if !ok {
					continue
				}
				target, found := table.Lookup(d.ID)
				if found && !decl.IsSkipped(target) && target.Name != "" && Exported(target.Name) == Exported(m.Name) {
					logger.Debug("dropping typedef named like its target", zap.String("decl", decl.String(m)))
					members[i] = decl.MarkSkipped(m, "same name as its target")
				}
			}
		}
		return s.WithMembers(members)
	}
	return rewrite(root)
}

// Callback returns the function type behind t when t is a function, or a
// pointer to one, that native code can call back into Go: not variadic and
// passing only scalars.
func Callback(r *layout.Resolver, t decl.Type) (decl.FunctionType, *layout.Descriptor, bool) {
	var fn decl.FunctionType
	switch t := decl.Strip(t).(type) {
	case decl.FunctionType:
		fn = t
	case decl.Pointer:
		f, ok := decl.Strip(t.Elem).(decl.FunctionType)
		if !ok {
			return fn, nil, false
		}
		fn = f
	default:
		return fn, nil, false
	}
	if fn.Variadic {
		return fn, nil, false
	}

	desc, err := r.Descriptor(fn)
	if err != nil {
		return fn, nil, false
	}
	if desc.Result != nil && desc.Result.Kind != layout.Value {
		return fn, nil, false
	}
	for _, a := range desc.Args {
		if a.Kind != layout.Value {
			return fn, nil, false
		}
	}
	return fn, desc, true
}
