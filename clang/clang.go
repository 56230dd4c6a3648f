// Package clang implements the parser front end interfaces on top of
// libclang.
package clang

import (
	"github.com/go-clang/clang-v13/clang"
	"github.com/pkg/errors"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/parser"
)

// Index wraps a libclang index.
type Index struct {
	idx clang.Index
}

// NewIndex returns an index that keeps diagnostics to itself. Use it as the
// index constructor of a parser.Parser.
func NewIndex() parser.Index {
	return &Index{idx: clang.NewIndex(0, 0)}
}

// Parse parses path with a detailed preprocessing record so macro
// definitions are visible as cursors.
func (i *Index) Parse(path string, args []string) (parser.TranslationUnit, error) {
	opts := uint32(clang.TranslationUnit_DetailedPreprocessingRecord | clang.TranslationUnit_SkipFunctionBodies)
	tu := i.idx.ParseTranslationUnit(path, args, nil, opts)
	if tu == (clang.TranslationUnit{}) {
		return nil, errors.Errorf("libclang could not parse %s", path)
	}
	return &TranslationUnit{tu: tu}, nil
}

func (i *Index) Dispose() {
	i.idx.Dispose()
}

// =============================================================================

type TranslationUnit struct {
	tu clang.TranslationUnit
}

func (t *TranslationUnit) Cursor() parser.Cursor {
	return cursor{c: t.tu.TranslationUnitCursor()}
}

func (t *TranslationUnit) Diagnostics() []parser.Diagnostic {
	n := t.tu.NumDiagnostics()
	diags := make([]parser.Diagnostic, 0, n)
	for i := uint32(0); i < n; i++ {
		d := t.tu.Diagnostic(i)
		pos, _ := position(d.Location())
		diags = append(diags, parser.Diagnostic{
			Severity: severities[d.Severity()],
			Message:  d.Spelling(),
			Pos:      pos,
		})
		d.Dispose()
	}
	return diags
}

func (t *TranslationUnit) Tokens(c parser.Cursor) []parser.Token {
	toks := t.tu.Tokenize(c.(cursor).c.Extent())
	out := make([]parser.Token, 0, len(toks))
	for _, tok := range toks {
		out = append(out, parser.Token{
			Kind:     tokenKinds[tok.Kind()],
			Spelling: t.tu.TokenSpelling(tok),
		})
	}
	return out
}

func (t *TranslationUnit) Dispose() {
	t.tu.Dispose()
}

var severities = map[clang.DiagnosticSeverity]parser.Severity{
	clang.Diagnostic_Ignored: parser.SeverityIgnored,
	clang.Diagnostic_Note:    parser.SeverityNote,
	clang.Diagnostic_Warning: parser.SeverityWarning,
	clang.Diagnostic_Error:   parser.SeverityError,
	clang.Diagnostic_Fatal:   parser.SeverityFatal,
}

var tokenKinds = map[clang.TokenKind]parser.TokenKind{
	clang.Token_Punctuation: parser.TokenPunctuation,
	clang.Token_Keyword:     parser.TokenKeyword,
	clang.Token_Identifier:  parser.TokenIdentifier,
	clang.Token_Literal:     parser.TokenLiteral,
	clang.Token_Comment:     parser.TokenComment,
}

func position(loc clang.SourceLocation) (decl.Position, bool) {
	f, line, col, _ := loc.FileLocation()
	name := f.Name()
	if name == "" {
		return decl.Position{}, false
	}
	return decl.Position{File: name, Line: int(line), Column: int(col)}, true
}
