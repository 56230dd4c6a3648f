package pipeline

import (
	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
)

// Unresolved marks every declaration whose type has no layout under model.
// Aggregates go first and are re-checked until no further one fails, since
// skipping one can break every aggregate holding it by value.
func Unresolved(root *decl.Scoped, model layout.DataModel, logger *zap.Logger) *decl.Scoped {
	for {
		r := layout.NewResolver(decl.NewTable(root), model)
		failed := make(map[decl.ID]string)
		decl.Walk(root, func(d decl.Declaration, _ *decl.Scoped) bool {
			s, ok := d.(*decl.Scoped)
			if !ok || decl.IsSkipped(s) {
				return false
			}
			if s.Kind == decl.Struct || s.Kind == decl.Union {
				if s.Incomplete {
					return false
				}
				if _, err := r.Aggregate(s); err != nil {
					failed[s.ID] = err.Error()
					return false
				}
			}
			return true
		})
		if len(failed) == 0 {
			break
		}
		root = markScopes(root, failed, logger)
	}

	u := unresolved{
		resolver: layout.NewResolver(decl.NewTable(root), model),
		logger:   logger,
	}
	return u.scope(root)
}

// markScopes skips the scopes named in failed together with everything
// nested in them.
func markScopes(s *decl.Scoped, failed map[decl.ID]string, logger *zap.Logger) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		child, ok := m.(*decl.Scoped)
		if !ok || decl.IsSkipped(child) {
			members[i] = m
			continue
		}
		if reason, ok := failed[child.ID]; ok {
			logger.Warn("skipping declaration", zap.String("decl", decl.String(child)), zap.String("reason", reason))
			members[i] = decl.MarkSkipped(skipTree(child, "enclosing "+child.Kind.String()+" skipped"), reason)
			continue
		}
		members[i] = markScopes(child, failed, logger)
	}
	return s.WithMembers(members)
}

func skipTree(s *decl.Scoped, reason string) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		child, ok := m.(*decl.Scoped)
		if !ok || decl.IsSkipped(child) {
			members[i] = m
			continue
		}
		members[i] = decl.MarkSkipped(skipTree(child, reason), reason)
	}
	return s.WithMembers(members)
}

type unresolved struct {
	resolver *layout.Resolver
	logger   *zap.Logger
}

func (u *unresolved) scope(s *decl.Scoped) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		members[i] = u.visit(m)
	}
	return s.WithMembers(members)
}

func (u *unresolved) visit(m decl.Declaration) decl.Declaration {
	if decl.IsSkipped(m) {
		return m
	}

	var err error
	switch m := m.(type) {
	case *decl.Scoped:
		if m.Kind == decl.Enum {
			_, err = u.resolver.Layout(decl.Declared{ID: m.ID, Name: m.Name})
			break
		}
		return u.scope(m)
	case *decl.Function:
		_, err = u.resolver.Descriptor(m.Signature())
	case *decl.Variable:
		if m.Field {
			return m
		}
		_, err = u.resolver.Layout(m.Type)
	case *decl.Constant:
		_, err = u.resolver.Layout(m.Type)
	case *decl.Typedef:
		err = u.typedef(m)
	default:
		panic("pipeline: unknown declaration")
	}
	if err == nil {
		return m
	}

	u.logger.Warn("skipping declaration", zap.String("decl", decl.String(m)), zap.Error(err))
	if s, ok := m.(*decl.Scoped); ok {
		return decl.MarkSkipped(skipTree(s, err.Error()), err.Error())
	}
	return decl.MarkSkipped(m, err.Error())
}

// typedef accepts an alias of an incomplete aggregate, which binds a name
// but has no layout.
func (u *unresolved) typedef(t *decl.Typedef) error {
	if d, ok := decl.Strip(t.Type).(decl.Declared); ok {
		if s, found := u.resolver.Lookup(d); found && s.Incomplete && !decl.IsSkipped(s) {
			return nil
		}
	}
	l, err := u.resolver.Layout(t.Type)
	if err != nil {
		return err
	}
	if l.Carrier == layout.Void {
		return &layout.UnsupportedTypeError{Type: decl.Spell(t.Type), Reason: "alias of void"}
	}
	return nil
}
