// Package config reads the optional YAML file that carries the same
// settings as the command line flags.
package config

import (
	"bytes"
	"os"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ardanlabs/ffi-extract/generator"
	"github.com/ardanlabs/ffi-extract/layout"
)

// Config is one extraction run. Zero values mean the flag defaults.
type Config struct {
	Headers     []string `yaml:"headers"`
	Output      string   `yaml:"output"`
	Package     string   `yaml:"package"`
	Libraries   []string `yaml:"libraries"`
	IncludeDirs []string `yaml:"include_dirs"`
	Defines     []string `yaml:"defines"`

	// ClangArgs is a shell quoted argument string.
	ClangArgs string `yaml:"clang_args"`

	Include   []string `yaml:"include"`
	Exclude   []string `yaml:"exclude"`
	DataModel string   `yaml:"data_model"`
	TraceEnv  string   `yaml:"trace_env"`
}

// Load reads the config file at path. Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	return cfg, nil
}

// Validate checks the settings that can be checked before parsing.
func (c Config) Validate() error {
	if len(c.Headers) == 0 {
		return errors.New("no header given")
	}
	if c.Package != "" && len(c.Headers) > 1 {
		return errors.New("a package name only applies to a single header")
	}
	if _, err := c.Model(); err != nil {
		return err
	}
	if _, err := c.Args(nil); err != nil {
		return err
	}
	return nil
}

func (c Config) Model() (layout.DataModel, error) {
	m, err := layout.ParseDataModel(c.DataModel)
	return m, errors.WithStack(err)
}

// Args returns the clang arguments: include directories, then defines,
// then the split ClangArgs, then extra.
func (c Config) Args(extra []string) ([]string, error) {
	var args []string
	for _, dir := range c.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	for _, def := range c.Defines {
		args = append(args, "-D"+def)
	}

	split, err := shellquote.Split(c.ClangArgs)
	if err != nil {
		return nil, errors.Wrapf(err, "splitting clang args %q", c.ClangArgs)
	}
	args = append(args, split...)
	return append(args, extra...), nil
}

// TraceVar returns the environment variable that turns on downcall tracing.
func (c Config) TraceVar() string {
	if c.TraceEnv == "" {
		return generator.DefaultTraceEnv
	}
	return c.TraceEnv
}

// OutputDir returns the output directory, defaulting to the working
// directory.
func (c Config) OutputDir() string {
	if c.Output == "" {
		return "."
	}
	return c.Output
}
