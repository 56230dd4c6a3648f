package pipeline

import (
	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
)

// dedup tracks the names seen so far in one header. Constants and
// enumerators share a set since both become package level constants.
type dedup struct {
	logger    *zap.Logger
	constants map[string]bool
	variables map[string]bool
	typedefs  map[string]bool
	functions map[string]bool
}

// Dedup marks every declaration whose kind and name were already seen as
// skipped. The first occurrence in traversal order wins. Structs, unions and
// namespaces are not deduplicated themselves, only their members.
func Dedup(root *decl.Scoped, logger *zap.Logger) *decl.Scoped {
	d := dedup{
		logger:    logger,
		constants: make(map[string]bool),
		variables: make(map[string]bool),
		typedefs:  make(map[string]bool),
		functions: make(map[string]bool),
	}
	return d.scope(root)
}

func (d *dedup) scope(s *decl.Scoped) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		members[i] = d.visit(m)
	}
	return s.WithMembers(members)
}

func (d *dedup) visit(m decl.Declaration) decl.Declaration {
	if decl.IsSkipped(m) {
		return m
	}

	switch m := m.(type) {
	case *decl.Scoped:
		if m.Kind != decl.Enum {
			return d.scope(m)
		}
		members := make([]decl.Declaration, len(m.Members))
		for i, e := range m.Members {
			if c, ok := e.(*decl.Constant); ok {
				members[i] = d.seen(d.constants, c)
				continue
			}
			members[i] = e
		}
		return m.WithMembers(members)
	case *decl.Function:
		return d.seen(d.functions, m)
	case *decl.Variable:
		if m.Field {
			return m
		}
		return d.seen(d.variables, m)
	case *decl.Constant:
		return d.seen(d.constants, m)
	case *decl.Typedef:
		return d.seen(d.typedefs, m)
	}
	panic("pipeline: unknown declaration")
}

func (d *dedup) seen(names map[string]bool, m decl.Declaration) decl.Declaration {
	name := m.Base().Name
	if !names[name] {
		names[name] = true
		return m
	}

	d.logger.Debug("dropping duplicate", zap.String("decl", decl.String(m)))
	return decl.MarkSkipped(m, "duplicate "+decl.Kind(m))
}
