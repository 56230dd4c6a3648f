// Command ffi-extract generates Go bindings for the declarations of C
// headers.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ardanlabs/ffi-extract/clang"
	"github.com/ardanlabs/ffi-extract/config"
	"github.com/ardanlabs/ffi-extract/generator"
	"github.com/ardanlabs/ffi-extract/layout"
	"github.com/ardanlabs/ffi-extract/parser"
	"github.com/ardanlabs/ffi-extract/pipeline"
)

func main() {
	args, clangArgs := splitArgs(os.Args)

	app := newApp(clang.NewIndex, consoleLogger, clangArgs)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// splitArgs separates the arguments after the first "--", which go to
// clang untouched. Glued clang style -Idir and -DNAME are split into a flag
// and its value.
func splitArgs(args []string) ([]string, []string) {
	var clangArgs []string
	if i := slices.Index(args, "--"); i >= 0 {
		args, clangArgs = args[:i], args[i+1:]
	}

	out := make([]string, 0, len(args))
	for i, arg := range args {
		if i > 0 && len(arg) > 2 && (arg[:2] == "-I" || arg[:2] == "-D") && arg[2] != '=' {
			out = append(out, arg[:2], arg[2:])
			continue
		}
		out = append(out, arg)
	}
	return out, clangArgs
}

func newApp(newIndex func() parser.Index, newLogger func(verbose bool) *zap.Logger, clangArgs []string) *cli.App {
	app := cli.NewApp()
	app.Name = "ffi-extract"
	app.Usage = "Generate Go bindings for C headers"
	app.ArgsUsage = "header.h [header2.h ...] [-- clang args...]"
	app.HideVersion = true

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"d"},
			Value:   ".",
			Usage:   "Output directory, one package directory per header",
		},
		&cli.StringFlag{
			Name:    "package",
			Aliases: []string{"p"},
			Usage:   "Go package name (single header only, default: header base name)",
		},
		&cli.StringSliceFlag{
			Name:    "library",
			Aliases: []string{"l"},
			Usage:   "Library to load before the first symbol lookup",
		},
		&cli.StringSliceFlag{
			Name:    "include-dir",
			Aliases: []string{"I"},
			Usage:   "Include directory passed to clang",
		},
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "Macro definition passed to clang",
		},
		&cli.StringFlag{
			Name:  "clang-args",
			Usage: "Extra clang arguments as one shell quoted string",
		},
		&cli.StringSliceFlag{
			Name:  "include",
			Usage: "Only emit declarations whose name matches this glob",
		},
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "Never emit declarations whose name matches this glob",
		},
		&cli.StringFlag{
			Name:  "data-model",
			Value: layout.LP64.String(),
			Usage: "Target data model: lp64 or llp64",
		},
		&cli.StringFlag{
			Name:  "trace-env",
			Value: generator.DefaultTraceEnv,
			Usage: "Environment variable that turns on downcall tracing in generated code",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML config file, flags override its values",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log debug output",
		},
	}

	app.Action = func(c *cli.Context) error {
		logger := newLogger(c.Bool("verbose"))
		defer logger.Sync()

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		return run(cfg, newIndex, logger, clangArgs)
	}

	return app
}

// loadConfig reads the config file, if any, and applies the flags that
// were set on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	var cfg config.Config
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	strs := map[string]*string{
		"output":     &cfg.Output,
		"package":    &cfg.Package,
		"clang-args": &cfg.ClangArgs,
		"data-model": &cfg.DataModel,
		"trace-env":  &cfg.TraceEnv,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}

	lists := map[string]*[]string{
		"library":     &cfg.Libraries,
		"include-dir": &cfg.IncludeDirs,
		"define":      &cfg.Defines,
		"include":     &cfg.Include,
		"exclude":     &cfg.Exclude,
	}
	for name, dst := range lists {
		if c.IsSet(name) {
			*dst = c.StringSlice(name)
		}
	}

	if c.Args().Present() {
		cfg.Headers = c.Args().Slice()
	}
	return cfg, nil
}

func run(cfg config.Config, newIndex func() parser.Index, logger *zap.Logger, clangArgs []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	model, err := cfg.Model()
	if err != nil {
		return err
	}
	args, err := cfg.Args(clangArgs)
	if err != nil {
		return err
	}

	x := extractor{
		cfg:    cfg,
		model:  model,
		args:   args,
		parser: parser.New(newIndex, model, logger),
		logger: logger,
	}

	var failed []string
	for _, header := range cfg.Headers {
		if err := x.extract(header); err != nil {
			logger.Error("extraction failed", zap.String("header", header), zap.Error(err))
			failed = append(failed, header)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("%d of %d header(s) failed: %s", len(failed), len(cfg.Headers), strings.Join(failed, ", "))
	}
	return nil
}

type extractor struct {
	cfg    config.Config
	model  layout.DataModel
	args   []string
	parser *parser.Parser
	logger *zap.Logger
}

func (x *extractor) extract(header string) error {
	logger := x.logger.With(zap.String("header", header))

	root, err := x.parser.Parse(header, x.args)
	if err != nil {
		return err
	}

	root, err = pipeline.Run(root, pipeline.Options{
		Include:  x.cfg.Include,
		Exclude:  x.cfg.Exclude,
		Model:    x.model,
		Reserved: generator.Reserved,
		Locals:   generator.Locals,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	pkg := x.cfg.Package
	if pkg == "" {
		pkg = packageName(header)
	}

	gen := generator.New(generator.Config{
		Header:    filepath.Base(header),
		Package:   pkg,
		Libraries: x.cfg.Libraries,
		TraceEnv:  x.cfg.TraceVar(),
		Model:     x.model,
		Logger:    logger,
	}, root)
	src, err := gen.Generate()
	if err != nil {
		return err
	}

	path := filepath.Join(x.cfg.OutputDir(), pkg, pkg+".go")
	written, err := writeFileIfChanged(path, src)
	if err != nil {
		return err
	}
	if written {
		logger.Info("generated", zap.String("file", path))
	} else {
		logger.Info("unchanged", zap.String("file", path))
	}
	return nil
}

// packageName derives a Go package name from a header path.
func packageName(header string) string {
	base := strings.TrimSuffix(filepath.Base(header), filepath.Ext(header))
	return strings.ToLower(pipeline.Exported(base))
}

// writeFileIfChanged writes data to path unless path already holds it and
// reports whether it wrote.
func writeFileIfChanged(path string, data []byte) (bool, error) {
	if old, err := os.ReadFile(path); err == nil {
		if len(old) == len(data) && xxhash.Sum64(old) == xxhash.Sum64(data) {
			return false, nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, errors.Wrap(err, "creating output directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, errors.Wrapf(err, "writing %s", path)
	}
	return true, nil
}

func consoleLogger(verbose bool) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	if fd := os.Stderr.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}
