package expandcommands

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/maxgreen01/go-test-expander/internal/config"
	"github.com/maxgreen01/go-test-expander/internal/filewriter"
	"github.com/maxgreen01/go-test-expander/pkg/expander"
	"github.com/maxgreen01/go-test-expander/pkg/scanner"

	"github.com/jessevdk/go-flags"
)

// Implementation of both the scanner Task interface and the Flags package's Commander interface.
// Expands every template file in the project and writes the generated test
// files next to their templates. A template whose declarations fail to
// expand produces no output at all, and its errors are reported instead.
type GenerateCommand struct {
	// Input flags
	globals *config.GlobalOptions // Avoid embedding because the flag parser treats this as duplicating the global options
	generateOptions

	// Generator configuration resolved from the defaults and the project config file
	opts expander.Options

	// Setup-function discovery cache, shared by reference between clones
	setup *expander.SetupIndex

	// Optional report output writer, shared by reference between clones
	output *filewriter.FileWriter

	// Per-file outcomes, shared by reference between clones
	results *generateResults
}

// Command-line flags for the Generate command specifically
type generateOptions struct {
	DryRun bool `long:"dry-run" description:"Report what would be written without modifying any files"`
	Prune  bool `long:"prune" description:"Delete generated files whose template no longer exists"`
}

// Compile-time interface implementation check
var _ ExpandCommand = (*GenerateCommand)(nil)

// Register the command with the global flag parser
func init() {
	RegisterCommand(func(flagParser *flags.Parser, opts *config.GlobalOptions) {
		flagParser.AddCommand("generate", "Generate test files from templates",
			"Expand every parameterized test template in the project and write the generated test files next to their templates.",
			NewGenerateCommand(opts))
	})
}

// Create a new instance of the GenerateCommand using a reference to the global options.
func NewGenerateCommand(globals *config.GlobalOptions) *GenerateCommand {
	return &GenerateCommand{globals: globals}
}

func (cmd *GenerateCommand) Name() string {
	return "generate"
}

// Create a new instance of the GenerateCommand with the same initial state and flags, COPYING `globals`.
// The setup index, report writer, and result accumulator are shared by reference across all clones.
func (cmd *GenerateCommand) Clone() scanner.Task {
	globals := *cmd.globals
	return &GenerateCommand{
		globals:         &globals,
		generateOptions: cmd.generateOptions,
		opts:            cmd.opts,
		setup:           cmd.setup,
		output:          cmd.output,
		results:         cmd.results,
	}
}

// Set the project directory for this task.
func (cmd *GenerateCommand) SetProjectDir(dir string) {
	cmd.globals.ProjectDir = dir
}

// Validate the values of this Command's flags, then run the task itself.
// THIS SHOULD ONLY BE CALLED ONCE PER PROGRAM EXECUTION.
func (cmd *GenerateCommand) Execute(args []string) error {
	opts, err := cmd.globals.GeneratorOptions()
	if err != nil {
		return err
	}
	cmd.opts = opts
	cmd.setup = expander.NewSetupIndex(opts)
	cmd.results = &generateResults{}

	// Only write a report file when an output path was explicitly requested
	if cmd.globals.OutputPath != "" {
		writer, err := filewriter.NewFileWriter(cmd.globals.OutputPath, cmd.globals.AppendOutput)
		if err != nil {
			return fmt.Errorf("failed to create output writer for path %q: %w", cmd.globals.OutputPath, err)
		}
		cmd.output = writer
	}

	// Actually run the task by starting the scanner
	parseFailures, err := scanner.Scan(cmd, cmd.globals.ProjectDir, opts.BuildTag, cmd.globals.Threads)
	if err != nil {
		return err
	}

	// Handle generated files whose templates have disappeared
	orphans, err := findOrphanedFiles(cmd.globals.ProjectDir, opts)
	if err != nil {
		return fmt.Errorf("searching for orphaned generated files: %w", err)
	}
	for _, orphan := range orphans {
		if !cmd.Prune {
			slog.Warn("Generated file has no matching template; re-run with --prune to delete it", "path", orphan)
			continue
		}
		if cmd.DryRun {
			slog.Info("Would delete orphaned generated file", "path", orphan)
			continue
		}
		if err := os.Remove(orphan); err != nil {
			return fmt.Errorf("pruning orphaned file %q: %w", orphan, err)
		}
		slog.Info("Deleted orphaned generated file", "path", orphan)
	}

	// Decide the exit status from the accumulated outcomes
	failed := cmd.results.countStatus(statusFailed) + len(parseFailures)
	if failed > 0 {
		return fmt.Errorf("generation failed for %d template file(s)", failed)
	}
	return nil
}

func (cmd *GenerateCommand) Visit(file *ast.File, fset *token.FileSet, path string) {
	fr := expander.ProcessFile(file, fset, path, cmd.setup, cmd.opts)
	rel := relativeTo(cmd.globals.ProjectDir, path)

	if !fr.Ok() {
		for _, expandErr := range fr.Errs {
			slog.Error("Template expansion failed", "template", rel, "error", expandErr)
		}
		cmd.results.add(generateOutcome{path: rel, status: statusFailed, errs: fr.Errs})
		return
	}
	if fr.Generated == nil {
		slog.Warn("Template file contains no test declarations", "template", rel)
		cmd.results.add(generateOutcome{path: rel, status: statusEmpty})
		return
	}

	if cmd.DryRun {
		existing, err := os.ReadFile(fr.Generated.Path)
		if err == nil && bytes.Equal(existing, fr.Generated.Content) {
			cmd.results.add(generateOutcome{path: rel, status: statusUnchanged})
		} else {
			cmd.results.add(generateOutcome{path: rel, status: statusWouldWrite})
		}
		return
	}

	changed, err := fr.Generated.Write()
	if err != nil {
		slog.Error("Failed to write generated file", "path", fr.Generated.Path, "error", err)
		writeErr := &expander.ExpandError{Kind: expander.ErrEmitFailure, Detail: err.Error()}
		cmd.results.add(generateOutcome{path: rel, status: statusFailed, errs: []*expander.ExpandError{writeErr}})
		return
	}
	if changed {
		cmd.results.add(generateOutcome{path: rel, status: statusWritten})
	} else {
		cmd.results.add(generateOutcome{path: rel, status: statusUnchanged})
	}
}

func (cmd *GenerateCommand) ReportResults() error {
	files := cmd.results.sorted()

	// Format output for printing the report to the terminal (and potentially writing to a text file)
	reportLines := []string{
		fmt.Sprintf("\n=============  Generation Report for %q:  =============\n\n", cmd.globals.ProjectDir),
	}

	if len(files) == 0 {
		reportLines = append(reportLines, "No template files found in the specified project.\n\n")
	} else {
		for _, f := range files {
			reportLines = append(reportLines, fmt.Sprintf("%-12s %s\n", f.status, f.path))
			for _, expandErr := range f.errs {
				reportLines = append(reportLines, fmt.Sprintf("             %s\n", expandErr))
			}
		}
		reportLines = append(reportLines, fmt.Sprintf(
			"\nTemplates: %d total, %d written, %d unchanged, %d failed\n\n",
			len(files),
			cmd.results.countStatus(statusWritten)+cmd.results.countStatus(statusWouldWrite),
			cmd.results.countStatus(statusUnchanged),
			cmd.results.countStatus(statusFailed),
		))
	}

	// Print the report to the terminal
	fmt.Print(strings.Join(reportLines, "") + "\n")

	if cmd.output == nil {
		return nil
	}

	// Append results to the requested output file (text or CSV)
	switch cmd.output.DetectFormat() {

	case filewriter.FormatTxt:
		return cmd.output.Write(reportLines)

	case filewriter.FormatCSV:
		csvHeaders := []string{"template", "status", "errors"}
		rows := make([][]string, 0, len(files))
		for _, f := range files {
			msgs := make([]string, 0, len(f.errs))
			for _, expandErr := range f.errs {
				msgs = append(msgs, expandErr.Error())
			}
			rows = append(rows, []string{f.path, f.status, strings.Join(msgs, "; ")})
		}
		return cmd.output.WriteMultiple(rows, csvHeaders)

	default:
		return fmt.Errorf("unsupported output format (file %q)", cmd.output.GetPath())
	}
}

func (cmd *GenerateCommand) Close() {
	if cmd.output != nil {
		cmd.output.Close()
	}
}

//
// =============== Result Accumulation ===============
//

// Status values recorded for each processed template file.
const (
	statusWritten    = "written"
	statusUnchanged  = "unchanged"
	statusWouldWrite = "would write"
	statusEmpty      = "empty"
	statusFailed     = "failed"
)

// The outcome of processing one template file.
type generateOutcome struct {
	path   string // template path, relative to the project directory
	status string
	errs   []*expander.ExpandError
}

// Aggregates outcomes across every cloned task in a scan.
type generateResults struct {
	mu    sync.Mutex
	files []generateOutcome
}

func (r *generateResults) add(outcome generateOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, outcome)
}

// Return the outcomes sorted by template path, since visit order depends on
// goroutine scheduling.
func (r *generateResults) sorted() []generateOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := make([]generateOutcome, len(r.files))
	copy(files, r.files)
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files
}

func (r *generateResults) countStatus(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, f := range r.files {
		if f.status == status {
			count++
		}
	}
	return count
}

// Render a path relative to the project directory for reporting, falling
// back to the original path when it cannot be made relative.
func relativeTo(dir string, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return rel
}
