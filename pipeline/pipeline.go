// Package pipeline rewrites a declaration tree before emission. Every pass
// returns a new tree and leaves its input untouched.
package pipeline

import (
	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
)

type Options struct {
	// Include and Exclude are glob patterns over declaration names.
	Include []string
	Exclude []string

	Model layout.DataModel

	// Reserved are package level identifiers the emitted code declares or
	// imports. Locals are identifiers used inside emitted function bodies.
	Reserved []string
	Locals   []string

	Logger *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Run applies the passes in order: duplicate filter, symbol filter,
// unresolved type filter and naming.
func Run(root *decl.Scoped, opts Options) (*decl.Scoped, error) {
	logger := opts.logger()

	filter, err := NewSymbolFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	passes := []struct {
		name string
		run  func(*decl.Scoped) *decl.Scoped
	}{
		{"dedup", func(s *decl.Scoped) *decl.Scoped { return Dedup(s, logger) }},
		{"filter", func(s *decl.Scoped) *decl.Scoped { return filter.Apply(s, logger) }},
		{"unresolved", func(s *decl.Scoped) *decl.Scoped { return Unresolved(s, opts.Model, logger) }},
		{"naming", func(s *decl.Scoped) *decl.Scoped { return AssignNames(s, opts) }},
	}
	for _, p := range passes {
		root = p.run(root)
		logger.Debug("pass done", zap.String("pass", p.name), zap.String("header", root.Name))
	}
	return root, nil
}
