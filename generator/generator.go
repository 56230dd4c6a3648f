// Package generator emits the Go bindings for one header from its final
// declaration tree.
package generator

import (
	"bytes"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/tools/imports"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/layout"
)

// DefaultTraceEnv is the environment variable that turns on downcall
// tracing in generated packages unless Config.TraceEnv names another one.
const DefaultTraceEnv = "FFI_EXTRACT_TRACE"

// Reserved lists the package level identifiers every generated file
// declares or imports.
var Reserved = []string{
	"symbolLookup", "traceDowncalls", "traceDowncall", "findOrThrow",
	"inferVariadicLayouts", "upcallStub", "init",
	"unsafe", "ffirt", "downcall",
}

// Locals lists the identifiers generated function bodies declare.
var Locals = []string{"ret", "allocator"}

type Config struct {
	// Header is the header file name quoted in the generated file comment.
	Header    string
	Package   string
	Libraries []string
	TraceEnv  string
	Model     layout.DataModel
	Logger    *zap.Logger
}

type Generator struct {
	cfg    Config
	header *decl.Scoped
	logger *zap.Logger

	table    *decl.Table
	resolver *layout.Resolver

	// typedefs holds the emitted typedefs by native name.
	typedefs map[string]*decl.Typedef

	usesDowncall bool
}

func New(cfg Config, header *decl.Scoped) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	table := decl.NewTable(header)
	g := Generator{
		cfg:      cfg,
		header:   header,
		logger:   logger,
		table:    table,
		resolver: layout.NewResolver(table, cfg.Model),
		typedefs: make(map[string]*decl.Typedef),
	}

	decl.Walk(header, func(d decl.Declaration, _ *decl.Scoped) bool {
		if decl.IsSkipped(d) {
			return false
		}
		if td, ok := d.(*decl.Typedef); ok {
			g.typedefs[td.Name] = td
		}
		return true
	})

	return &g
}

// Generate returns the formatted source of the bindings.
func (g *Generator) Generate() ([]byte, error) {
	var body bytes.Buffer
	g.generateScope(&body, g.header)

	var buf bytes.Buffer
	if err := preamble.Execute(&buf, g.templateData()); err != nil {
		return nil, errors.Wrap(err, "generating preamble")
	}
	buf.Write(body.Bytes())
	if err := helpers.Execute(&buf, g.templateData()); err != nil {
		return nil, errors.Wrap(err, "generating helpers")
	}

	opts := imports.Options{FormatOnly: true, Comments: true, TabIndent: true, TabWidth: 8}
	src, err := imports.Process(g.cfg.Package+".go", buf.Bytes(), &opts)
	if err != nil {
		return nil, errors.Wrap(err, "formatting generated code")
	}
	return src, nil
}

func (g *Generator) templateData() map[string]any {
	return map[string]any{
		"Header":    g.cfg.Header,
		"Package":   g.cfg.Package,
		"Libraries": g.cfg.Libraries,
		"TraceEnv":  g.cfg.TraceEnv,
		"Default":   DefaultTraceEnv,
		"Downcall":  g.usesDowncall,
	}
}

var preamble = template.Must(template.New("preamble").Funcs(sprig.TxtFuncMap()).Parse(`// Code generated by ffi-extract from {{ .Header }}. DO NOT EDIT.

package {{ .Package }}

import (
	"unsafe"

	"github.com/ardanlabs/ffi-extract/ffirt"
{{- if .Downcall }}
	"github.com/ardanlabs/ffi-extract/ffirt/downcall"
{{- end }}
)

var symbolLookup = ffirt.NewSymbolLookup()
{{ if .Libraries }}
func init() {
	symbolLookup.Preload(
{{- range .Libraries }}
		{{ quote . }},
{{- end }}
	)
}
{{ end }}`))

var helpers = template.Must(template.New("helpers").Funcs(sprig.TxtFuncMap()).Parse(`
var traceDowncalls = ffirt.TraceEnabled({{ .TraceEnv | default .Default | quote }})

func traceDowncall(name string, args ...any) {
	ffirt.TraceDowncall(name, args...)
}

func findOrThrow(symbol *ffirt.LazySymbol) unsafe.Pointer {
	return symbol.MustResolve()
}

func inferVariadicLayouts(args []any) []*ffirt.Layout {
	layouts, err := ffirt.InferVariadicLayouts(args)
	if err != nil {
		panic(err)
	}
	return layouts
}

func upcallStub(fn any) unsafe.Pointer {
	return ffirt.NewUpcall(fn)
}
`))
