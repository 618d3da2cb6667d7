package expander

import (
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"
)

// =====================  Setup Function Discovery  =====================

// SetupIndex discovers and caches, per package directory, whether a setup
// function is declared alongside the templates. A single instance is shared
// by reference between cloned tasks so each directory is only scanned once
// no matter how many template files it contains.
type SetupIndex struct {
	opts Options

	mu   sync.Mutex
	memo map[string]bool
}

func NewSetupIndex(opts Options) *SetupIndex {
	return &SetupIndex{
		opts: opts,
		memo: make(map[string]bool),
	}
}

// Reports whether the package `pkg` in directory `dir` declares a setup
// function. Results are memoized, so only the first call for a directory
// touches the filesystem.
func (s *SetupIndex) HasSetup(dir string, pkg string) (bool, error) {
	key := dir + "\x00" + pkg
	s.mu.Lock()
	found, ok := s.memo[key]
	s.mu.Unlock()
	if ok {
		return found, nil
	}

	found, err := findSetupFunction(dir, pkg, s.opts)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.memo[key] = found
	s.mu.Unlock()
	return found, nil
}

// Scan the non-template Go files of a directory for a plain top-level
// function whose name matches the configured setup name, declared in the
// named package. Test files count as candidates since setup functions
// conventionally live next to the tests that use them, but template files
// and previously generated files are skipped so discovery only reflects
// code the user wrote by hand.
func findSetupFunction(dir string, pkg string, opts Options) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}

	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		if strings.HasSuffix(name, opts.OutputSuffix) {
			continue
		}

		path := filepath.Join(dir, name)
		if isTemplate, err := asttools.FileRequiresTag(path, opts.BuildTag); err != nil {
			return false, err
		} else if isTemplate {
			continue
		}

		file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
		if err != nil {
			// A sibling file that doesn't parse shouldn't block generation;
			// the compiler will report it on its own.
			slog.Warn("Skipping unparsable file during setup discovery", "path", path, "error", err)
			continue
		}
		if file.Name.Name != pkg {
			continue
		}
		if fileDeclaresSetup(file, opts.SetupName) {
			return true, nil
		}
	}
	return false, nil
}

func fileDeclaresSetup(file *ast.File, setupName string) bool {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		if fn.Name.Name == setupName {
			return true
		}
	}
	return false
}
