package expander

import (
	"fmt"
	"strings"

	"github.com/mcuadros/go-defaults"
)

// Options control how template files are recognized and how generated files
// are named. The zero value is not usable; obtain a populated instance from
// DefaultOptions and override fields as needed. Every field can also be set
// from a project config file, which unmarshals over the defaults.
type Options struct {
	// The build tag that excludes template files from normal builds and
	// identifies them to the generator.
	BuildTag string `yaml:"buildTag" default:"paramtest"`

	// The name of the marker function recognized in template files.
	MarkerName string `yaml:"marker" default:"Define"`

	// The name of the per-package setup function called at the top of every
	// generated subtest when the package defines it.
	SetupName string `yaml:"setup" default:"setupTest"`

	// The suffix appended to a template file's base name (after stripping a
	// trailing "_test") to form the generated file's name.
	OutputSuffix string `yaml:"suffix" default:"_gen_test.go"`
}

// Create an Options instance populated with the built-in defaults.
func DefaultOptions() Options {
	var opts Options
	defaults.SetDefaults(&opts)
	return opts
}

// Validate the option values, filling any empty field with its default so a
// partially-specified config file cannot disable recognition entirely.
func (o *Options) Validate() error {
	def := DefaultOptions()
	if o.BuildTag == "" {
		o.BuildTag = def.BuildTag
	}
	if o.MarkerName == "" {
		o.MarkerName = def.MarkerName
	}
	if o.SetupName == "" {
		o.SetupName = def.SetupName
	}
	if o.OutputSuffix == "" {
		o.OutputSuffix = def.OutputSuffix
	}

	if strings.ContainsAny(o.BuildTag, " \t,!()&|") {
		return fmt.Errorf("build tag %q must be a single plain tag", o.BuildTag)
	}
	if !strings.HasSuffix(o.OutputSuffix, "_test.go") {
		return fmt.Errorf("output suffix %q must end in _test.go so generated files stay out of normal builds", o.OutputSuffix)
	}
	return nil
}
