package pipeline

import (
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
)

// SymbolFilter selects declarations by name. A name is kept when it matches
// one include pattern (or no include patterns are set) and no exclude
// pattern.
type SymbolFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func NewSymbolFilter(include, exclude []string) (*SymbolFilter, error) {
	var f SymbolFilter
	var err error
	if f.include, err = compileGlobs(include); err != nil {
		return nil, errors.Wrap(err, "include")
	}
	if f.exclude, err = compileGlobs(exclude); err != nil {
		return nil, errors.Wrap(err, "exclude")
	}
	return &f, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "pattern %q", p)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func (f *SymbolFilter) Match(name string) bool {
	if len(f.include) > 0 && !matchAny(f.include, name) {
		return false
	}
	return !matchAny(f.exclude, name)
}

func matchAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Apply marks every named declaration the filter rejects. Enumerators are
// matched one by one. Fields and anonymous declarations are never filtered.
func (f *SymbolFilter) Apply(root *decl.Scoped, logger *zap.Logger) *decl.Scoped {
	if len(f.include) == 0 && len(f.exclude) == 0 {
		return root
	}
	return f.scope(root, logger)
}

func (f *SymbolFilter) scope(s *decl.Scoped, logger *zap.Logger) *decl.Scoped {
	members := make([]decl.Declaration, len(s.Members))
	for i, m := range s.Members {
		members[i] = f.visit(m, logger)
	}
	return s.WithMembers(members)
}

func (f *SymbolFilter) visit(m decl.Declaration, logger *zap.Logger) decl.Declaration {
	if decl.IsSkipped(m) {
		return m
	}
	if v, ok := m.(*decl.Variable); ok && v.Field {
		return m
	}

	name := m.Base().Name
	if name != "" && !f.Match(name) {
		logger.Debug("filtered out", zap.String("decl", decl.String(m)))
		return decl.MarkSkipped(m, "filtered out")
	}

	if s, ok := m.(*decl.Scoped); ok {
		return f.scope(s, logger)
	}
	return m
}
