package expandcommands

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/token"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/maxgreen01/go-test-expander/internal/config"
	"github.com/maxgreen01/go-test-expander/pkg/expander"
	"github.com/maxgreen01/go-test-expander/pkg/scanner"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/jessevdk/go-flags"
	"golang.org/x/tools/go/packages"
)

// Implementation of both the scanner Task interface and the Flags package's Commander interface.
// Verifies that every generated file on disk matches what its template would
// produce today, without writing anything. Intended for CI, where a nonzero
// exit means someone edited a template without re-running generation.
type CheckCommand struct {
	// Input flags
	globals *config.GlobalOptions // Avoid embedding because the flag parser treats this as duplicating the global options
	checkOptions

	// Generator configuration resolved from the defaults and the project config file
	opts expander.Options

	// Setup-function discovery cache, shared by reference between clones
	setup *expander.SetupIndex

	// Per-file outcomes and expected contents, shared by reference between clones
	results *checkResults
}

// Command-line flags for the Check command specifically
type checkOptions struct {
	Typecheck bool `long:"typecheck" description:"Type-check the expected generated files against the rest of the project using the go/packages loader"`
}

// Compile-time interface implementation check
var _ ExpandCommand = (*CheckCommand)(nil)

// Register the command with the global flag parser
func init() {
	RegisterCommand(func(flagParser *flags.Parser, opts *config.GlobalOptions) {
		flagParser.AddCommand("check", "Verify that generated files are up to date",
			"Expand every template in memory and compare the result against the generated files on disk, failing if any file is missing or stale.",
			NewCheckCommand(opts))
	})
}

// Create a new instance of the CheckCommand using a reference to the global options.
func NewCheckCommand(globals *config.GlobalOptions) *CheckCommand {
	return &CheckCommand{globals: globals}
}

func (cmd *CheckCommand) Name() string {
	return "check"
}

// Create a new instance of the CheckCommand with the same initial state and flags, COPYING `globals`.
// The setup index and result accumulator are shared by reference across all clones.
func (cmd *CheckCommand) Clone() scanner.Task {
	globals := *cmd.globals
	return &CheckCommand{
		globals:      &globals,
		checkOptions: cmd.checkOptions,
		opts:         cmd.opts,
		setup:        cmd.setup,
		results:      cmd.results,
	}
}

// Set the project directory for this task.
func (cmd *CheckCommand) SetProjectDir(dir string) {
	cmd.globals.ProjectDir = dir
}

// Validate the values of this Command's flags, then run the task itself.
// THIS SHOULD ONLY BE CALLED ONCE PER PROGRAM EXECUTION.
func (cmd *CheckCommand) Execute(args []string) error {
	opts, err := cmd.globals.GeneratorOptions()
	if err != nil {
		return err
	}
	cmd.opts = opts
	cmd.setup = expander.NewSetupIndex(opts)
	cmd.results = newCheckResults()

	// Actually run the task by starting the scanner
	parseFailures, err := scanner.Scan(cmd, cmd.globals.ProjectDir, opts.BuildTag, cmd.globals.Threads)
	if err != nil {
		return err
	}

	// Generated files without a template are just as stale as drifted ones
	orphans, err := findOrphanedFiles(cmd.globals.ProjectDir, opts)
	if err != nil {
		return fmt.Errorf("searching for orphaned generated files: %w", err)
	}
	for _, orphan := range orphans {
		slog.Error("Generated file has no matching template", "path", orphan)
	}

	var typeProblems []string
	if cmd.Typecheck {
		typeProblems, err = cmd.typecheckExpected()
		if err != nil {
			return err
		}
		for _, problem := range typeProblems {
			slog.Error("Type error in expected generated code", "error", problem)
		}
	}

	problems := cmd.results.countBad() + len(parseFailures) + len(orphans) + len(typeProblems)
	if problems > 0 {
		return fmt.Errorf("check failed with %d problem(s); run `testexpand generate` to update the generated files", problems)
	}
	return nil
}

func (cmd *CheckCommand) Visit(file *ast.File, fset *token.FileSet, path string) {
	fr := expander.ProcessFile(file, fset, path, cmd.setup, cmd.opts)
	rel := relativeTo(cmd.globals.ProjectDir, path)

	if !fr.Ok() {
		for _, expandErr := range fr.Errs {
			slog.Error("Template expansion failed", "template", rel, "error", expandErr)
		}
		cmd.results.add(checkOutcome{path: rel, status: checkFailed, errs: fr.Errs})
		return
	}
	if fr.Generated == nil {
		slog.Warn("Template file contains no test declarations", "template", rel)
		return
	}

	genRel := relativeTo(cmd.globals.ProjectDir, fr.Generated.Path)
	cmd.results.recordExpected(fr.Generated.Path, fr.Generated.Content)

	existing, err := os.ReadFile(fr.Generated.Path)
	switch {
	case err != nil:
		cmd.results.add(checkOutcome{path: rel, genPath: genRel, status: checkMissing})
	case !bytes.Equal(existing, fr.Generated.Content):
		diff := unifiedDiff(genRel, existing, fr.Generated.Content)
		cmd.results.add(checkOutcome{path: rel, genPath: genRel, status: checkStale, diff: diff})
	default:
		cmd.results.add(checkOutcome{path: rel, genPath: genRel, status: checkUpToDate})
	}
}

func (cmd *CheckCommand) ReportResults() error {
	files := cmd.results.sorted()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n=============  Check Report for %q:  =============\n\n", cmd.globals.ProjectDir)

	if len(files) == 0 {
		sb.WriteString("No template files found in the specified project.\n")
	}
	for _, f := range files {
		fmt.Fprintf(&sb, "%s %s\n", statusLabel(f.status), f.path)
		for _, expandErr := range f.errs {
			fmt.Fprintf(&sb, "    %s\n", expandErr)
		}
		if f.diff != "" {
			sb.WriteString(indentLines(colorizeDiff(f.diff), "    "))
		}
	}
	fmt.Fprintf(&sb, "\nTemplates: %d total, %d up to date, %d stale, %d missing, %d failed\n\n",
		len(files),
		cmd.results.countStatus(checkUpToDate),
		cmd.results.countStatus(checkStale),
		cmd.results.countStatus(checkMissing),
		cmd.results.countStatus(checkFailed),
	)

	fmt.Print(sb.String())
	return nil
}

func (cmd *CheckCommand) Close() {}

// Run the go/packages loader over the project with the expected generated
// content overlaid on disk state, collecting type errors reported inside
// generated files. Loading with test packages enabled is what pulls the
// generated _test.go files into the type check.
func (cmd *CheckCommand) typecheckExpected() ([]string, error) {
	overlay := cmd.results.overlayCopy()
	if len(overlay) == 0 {
		return nil, nil
	}

	cfg := &packages.Config{
		Mode:    packages.LoadAllSyntax | packages.NeedForTest,
		Dir:     cmd.globals.ProjectDir,
		Tests:   true,
		Overlay: overlay,
	}
	pkgs, err := packages.Load(cfg, "./...")
	if err != nil {
		return nil, fmt.Errorf("loading project packages for type checking: %w", err)
	}

	// Only report errors positioned inside generated files; the project's own
	// pre-existing type errors are not this tool's business.
	seen := make(map[string]bool)
	var problems []string
	for _, pkg := range pkgs {
		for _, pkgErr := range pkg.Errors {
			filename, _, _ := strings.Cut(pkgErr.Pos, ":")
			if filename != "" && overlay[filename] == nil && !strings.HasSuffix(filename, cmd.opts.OutputSuffix) {
				continue
			}
			msg := pkgErr.Error()
			if !seen[msg] {
				seen[msg] = true
				problems = append(problems, msg)
			}
		}
	}
	sort.Strings(problems)
	return problems, nil
}

//
// =============== Result Accumulation ===============
//

// Status values recorded for each checked template file.
const (
	checkUpToDate = "up to date"
	checkStale    = "stale"
	checkMissing  = "missing"
	checkFailed   = "failed"
)

// The outcome of checking one template file against its generated file.
type checkOutcome struct {
	path    string // template path, relative to the project directory
	genPath string // generated file path, relative to the project directory
	status  string
	diff    string // unified diff for stale files, "" otherwise
	errs    []*expander.ExpandError
}

// Aggregates outcomes and expected file contents across every cloned task.
type checkResults struct {
	mu       sync.Mutex
	files    []checkOutcome
	expected map[string][]byte // generated path -> expected content, for the typecheck overlay
}

func newCheckResults() *checkResults {
	return &checkResults{expected: make(map[string][]byte)}
}

func (r *checkResults) add(outcome checkOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, outcome)
}

func (r *checkResults) recordExpected(path string, content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected[path] = content
}

func (r *checkResults) sorted() []checkOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	files := make([]checkOutcome, len(r.files))
	copy(files, r.files)
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files
}

func (r *checkResults) countStatus(status string) int {
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

// Count outcomes that should fail the check.
func (r *checkResults) countBad() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, f := range r.files {
		if f.status != checkUpToDate {
			count++
		}
	}
	return count
}

func (r *checkResults) overlayCopy() map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	overlay := make(map[string][]byte, len(r.expected))
	for path, content := range r.expected {
		overlay[path] = content
	}
	return overlay
}

//
// =============== Diff Rendering ===============
//

// Render a unified diff from the on-disk content to the expected content,
// i.e. the change that re-running generation would apply.
func unifiedDiff(label string, existing []byte, expected []byte) string {
	got, want := string(existing), string(expected)
	edits := myers.ComputeEdits("", got, want)
	return fmt.Sprint(gotextdiff.ToUnified(label+" (on disk)", label+" (expected)", got, edits))
}

// Color added lines green and removed lines red, leaving context alone.
// Colors degrade to plain text automatically when output is not a terminal.
func colorizeDiff(diff string) string {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			// File labels stay uncolored
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}

func statusLabel(status string) string {
	switch status {
	case checkUpToDate:
		return color.New(color.FgGreen).Sprintf("%-12s", status)
	case checkStale, checkMissing, checkFailed:
		return color.New(color.FgRed).Sprintf("%-12s", status)
	default:
		return fmt.Sprintf("%-12s", status)
	}
}

// Indent every non-empty line of a block of text.
func indentLines(text string, prefix string) string {
	lines := strings.Split(text, "\n")
	var sb strings.Builder
	for _, line := range lines {
		if line != "" {
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
