package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/maxgreen01/go-test-expander/pkg/expander"
)

// Definitions for global command-line flags used across the entire application
type GlobalOptions struct {
	ProjectDir   string `long:"project" short:"p" description:"Path to the Go project directory to scan for template files" default:"."`
	ConfigPath   string `long:"config" short:"c" description:"Path to a YAML project config file overriding the generator defaults"`
	OutputPath   string `long:"output" short:"o" description:"Path to report output file"`
	AppendOutput bool   `long:"append" description:"Whether to append to the output file instead of overwriting it if the file already exists"`
	Threads      int    `long:"threads" description:"The number of concurrent threads (goroutines) to use when processing template files" default:"4"`

	LogLevel string `long:"logLevel" short:"l" description:"The minimum severity of log message that should be displayed" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
	LogFile  string `long:"logFile" description:"Path to a file that log output should be mirrored into"`
	Timer    bool   `long:"timer" description:"Whether to print the total execution time of the specified task"`
}

// The config file name searched for in the project directory when no
// explicit `--config` path is given.
const DefaultConfigName = ".testexpand.yaml"

// The optional project config file, which overrides the generator defaults
// for every command run against the project.
type ProjectConfig struct {
	Generator expander.Options `yaml:"generator"`
}

// Resolve the generator options for a run by layering the project config
// file (explicit via `--config`, otherwise `.testexpand.yaml` in the project
// directory if one exists) over the built-in defaults.
func (g *GlobalOptions) GeneratorOptions() (expander.Options, error) {
	opts := expander.DefaultOptions()

	path := g.ConfigPath
	if path == "" {
		candidate := filepath.Join(g.ProjectDir, DefaultConfigName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return opts, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshaling over the defaults means fields absent from the file
		// keep their default values
		cfg := ProjectConfig{Generator: opts}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return opts, fmt.Errorf("parsing config file %q: %w", path, err)
		}
		opts = cfg.Generator
		slog.Debug("Loaded project config", "path", path)
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
