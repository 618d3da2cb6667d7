package scanner

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"
)

// =====================  Template Discovery  =====================
// The scanner walks a project tree, picks out the Go files gated behind the
// template build tag, parses them, and feeds each one through a Task. Files
// are processed in parallel, with each file handled by its own clone of the
// task so task implementations only need to synchronize their shared output
// state.

// Task defines an operation to perform on every template file discovered in
// a project. One clone handles exactly one file, so Visit never runs twice
// on the same clone.
type Task interface {
	// The name of the task, primarily for logging.
	Name() string

	// Create a copy of the task for one file. Accumulated state that must
	// survive the clone (result sinks, counters) should be shared by
	// reference and synchronized by the implementation.
	Clone() Task

	// Record the root directory of the project being scanned, which tasks
	// use to report paths relative to the project.
	SetProjectDir(dir string)

	// Process a single parsed template file.
	Visit(file *ast.File, fset *token.FileSet, path string)

	// Report the task's accumulated results after every file has been
	// visited.
	ReportResults() error

	// Release any resources held by the task, such as open output files.
	Close()
}

// ScanError records a template file that could not be read or parsed.
// These are reported to the caller rather than aborting the scan, since the
// remaining templates are usually still worth processing.
type ScanError struct {
	Path string
	Err  error
}

func (e ScanError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Scan the project tree rooted at `dir` for template files carrying the
// given build tag, and run the task over each of them using up to `threads`
// files in flight at once. After every file has been visited the task's
// results are reported and the task is closed.
//
// The returned slice lists template files that could not be parsed; the
// error covers failures of the walk itself.
func Scan(task Task, dir string, buildTag string, threads int) ([]ScanError, error) {
	defer task.Close()

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project directory %q: %w", dir, err)
	}
	task.SetProjectDir(absDir)

	paths, err := findTemplateFiles(absDir, buildTag)
	if err != nil {
		return nil, err
	}
	slog.Debug("Discovered template files", "task", task.Name(), "count", len(paths))

	if threads < 1 {
		threads = 1
	}
	var group errgroup.Group
	group.SetLimit(threads)

	scanErrs := make([]ScanError, len(paths))
	for i, path := range paths {
		group.Go(func() error {
			fset := token.NewFileSet()
			file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
			if err != nil {
				slog.Error("Failed to parse template file", "path", path, "error", err)
				scanErrs[i] = ScanError{Path: path, Err: err}
				return nil
			}
			task.Clone().Visit(file, fset, path)
			return nil
		})
	}
	// Visits only record per-file outcomes, so no goroutine returns an error.
	_ = group.Wait()

	failed := make([]ScanError, 0)
	for _, se := range scanErrs {
		if se.Path != "" {
			failed = append(failed, se)
		}
	}

	if err := task.ReportResults(); err != nil {
		return failed, fmt.Errorf("reporting results for task %q: %w", task.Name(), err)
	}
	return failed, nil
}

// Walk the tree and collect every .go file gated behind the template build
// tag, in deterministic walk order. Directories the Go toolchain ignores
// (vendor trees, testdata, hidden and underscore-prefixed names) are
// skipped entirely.
func findTemplateFiles(dir string, buildTag string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != dir && SkipDirName(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			return nil
		}
		isTemplate, err := asttools.FileRequiresTag(path, buildTag)
		if err != nil {
			return err
		}
		if isTemplate {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %q: %w", dir, err)
	}
	return paths, nil
}

// Reports whether a directory is excluded from scans entirely: vendor trees,
// testdata fixtures, and hidden or underscore-prefixed names, matching the
// set of directories the Go toolchain itself ignores. Exported so other
// walks over the same project tree can apply the identical policy.
func SkipDirName(name string) bool {
	switch name {
	case "vendor", "testdata", "node_modules":
		return true
	}
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}
