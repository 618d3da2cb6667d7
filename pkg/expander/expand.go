package expander

import (
	"go/ast"
	"go/token"
	"log/slog"
	"path/filepath"
	"strconv"
)

// =====================  Declaration Expansion  =====================

// GeneratedTest is one fully-expanded test case: the composed subtest name
// plus every statement of its body, split into the synthesized prologue and
// the statements carried over from the template so the emitter can attribute
// each group to the right source line.
type GeneratedTest struct {
	Name     string     // the composed subtest name, unique within its declaration
	Index    int        // 1-based position of the entry within the declaration
	Stub     bool       // whether the body is a placeholder that skips the test
	Setup    ast.Stmt   // the setup call, or nil when the package defines no setup function
	Bindings []ast.Stmt // one `name := value` statement per parameter, in declaration order
	BlankUse ast.Stmt   // the `_, _ = ...` statement covering injected names, or nil
	Body     []ast.Stmt // the template body's statements with original positions, nil for stubs
	Entry    Entry      // the entry this test was expanded from
}

// DeclResult pairs a declaration with the tests expanded from it, or with
// the error that aborted it. A declaration expands completely or not at all,
// so Tests is empty whenever Err is set.
type DeclResult struct {
	Decl  *Declaration
	Tests []GeneratedTest
	Err   *ExpandError
}

// FileResult is the outcome of processing one template file. Generated is
// only populated when every declaration in the file expanded successfully,
// so a single bad declaration withholds the whole file rather than emitting
// a partial one.
type FileResult struct {
	Template  *TemplateFile
	Results   []DeclResult
	Generated *GeneratedFile
	Errs      []*ExpandError
}

// Ok reports whether every declaration in the file expanded and the
// generated output was assembled.
func (fr *FileResult) Ok() bool {
	return len(fr.Errs) == 0
}

// Process a parsed template file end to end: collect its declarations,
// expand each one into named test cases, and assemble the generated file.
// The setup index may be nil, in which case no setup calls are injected.
func ProcessFile(file *ast.File, fset *token.FileSet, path string, setup *SetupIndex, opts Options) *FileResult {
	tf := Collect(file, fset, path, opts)

	hasSetup := false
	if setup != nil {
		var err error
		hasSetup, err = setup.HasSetup(filepath.Dir(path), tf.Package)
		if err != nil {
			slog.Warn("Setup discovery failed; continuing without setup calls", "path", path, "error", err)
			hasSetup = false
		}
	}

	fr := &FileResult{
		Template: tf,
		Errs:     tf.Errors(),
	}

	pkgNames := packageLevelNames(file)
	for _, decl := range tf.ValidDecls() {
		tests, err := Expand(decl, hasSetup, opts)
		if err != nil {
			fr.Results = append(fr.Results, DeclResult{Decl: decl, Err: err})
			fr.Errs = append(fr.Errs, err)
			continue
		}
		warnShadowedNames(decl, pkgNames)
		fr.Results = append(fr.Results, DeclResult{Decl: decl, Tests: tests})
	}

	if len(fr.Errs) == 0 && len(tf.Decls) > 0 {
		gen, err := EmitFile(tf, fr.Results, opts)
		if err != nil {
			fr.Errs = append(fr.Errs, err)
		} else {
			fr.Generated = gen
		}
	}
	return fr
}

// Expand a single declaration into its generated test cases, enforcing the
// naming and uniqueness rules. Any failure aborts the whole declaration.
func Expand(decl *Declaration, hasSetup bool, opts Options) ([]GeneratedTest, *ExpandError) {
	if err := checkDuplicateSets(decl); err != nil {
		return nil, err
	}
	if decl.HasCtx && decl.CtxName != "" && !hasSetup {
		err := newExpandError(ErrMissingSetup, nil, token.NoPos,
			"test %q binds a context variable %q but the package declares no %s function",
			decl.BaseName, decl.CtxName, opts.SetupName)
		err.Pos = decl.Pos
		return nil, err
	}

	// The setup call needs a *testing.T to pass along, which an unnamed
	// parameter cannot provide.
	injectSetup := hasSetup && decl.Body != nil
	if injectSetup && decl.TParam == "" {
		slog.Warn("Skipping setup call because the *testing.T parameter is unnamed",
			"test", decl.BaseName, "setup", opts.SetupName)
		injectSetup = false
	}

	tests := make([]GeneratedTest, 0, len(decl.Entries))
	seenNames := make(map[string]int)
	for i, entry := range decl.Entries {
		name := composeName(decl.BaseName, entry, i)
		if prev, ok := seenNames[name]; ok {
			err := newExpandError(ErrNameCollision, nil, token.NoPos,
				"entries %d and %d of test %q both produce the name %q", prev, i+1, decl.BaseName, name)
			err.Pos = decl.Pos
			return nil, err
		}
		seenNames[name] = i + 1

		if decl.Body == nil {
			tests = append(tests, GeneratedTest{
				Name:  name,
				Index: i + 1,
				Stub:  true,
				Entry: entry,
			})
			continue
		}

		if err := validateBindingScope(decl, entry); err != nil {
			return nil, err
		}

		test := GeneratedTest{
			Name:     name,
			Index:    i + 1,
			Bindings: buildBindings(entry),
			Body:     decl.Body.Body.List,
			Entry:    entry,
		}

		blankNames := entry.Set.Names()
		if injectSetup {
			test.Setup = buildSetupStmt(opts.SetupName, decl.TParam, decl.CtxName)
			if decl.CtxName != "" {
				blankNames = append(blankNames, decl.CtxName)
			}
		}
		test.BlankUse = buildBlankUse(blankNames)
		tests = append(tests, test)
	}
	return tests, nil
}

// Reject declarations where two entries carry structurally identical
// parameter values. Such twins would run the same test twice under the same
// derived name, which the test runner would silently disambiguate with a
// numeric suffix, hiding the mistake.
func checkDuplicateSets(decl *Declaration) *ExpandError {
	for i := 0; i < len(decl.Entries); i++ {
		for j := i + 1; j < len(decl.Entries); j++ {
			if decl.Entries[i].Set.Equal(decl.Entries[j].Set) {
				err := newExpandError(ErrDuplicateParamSet, nil, token.NoPos,
					"entries %d and %d of test %q carry identical parameters (%s)",
					i+1, j+1, decl.BaseName, decl.Entries[i].Set.DisplayText())
				err.Pos = decl.Pos
				return err
			}
		}
	}
	return nil
}

// Collect the names declared at package scope in the template file, plus the
// local names its imports introduce, used to warn when a parameter binding
// shadows one of them.
func packageLevelNames(file *ast.File) map[string]bool {
	names := make(map[string]bool)
	for _, spec := range file.Imports {
		if spec.Name != nil {
			if spec.Name.Name != "." {
				names[spec.Name.Name] = true
			}
			continue
		}
		if path, err := strconv.Unquote(spec.Path.Value); err == nil {
			if local := assumedPackageName(path); local != "" {
				names[local] = true
			}
		}
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Recv == nil {
				names[d.Name.Name] = true
			}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.ValueSpec:
					for _, name := range s.Names {
						names[name.Name] = true
					}
				case *ast.TypeSpec:
					names[s.Name.Name] = true
				}
			}
		}
	}
	delete(names, "_")
	return names
}

// Log a warning for every parameter whose binding will shadow a
// package-level identifier or an import. The binding still wins inside the
// subtest, same as any local variable, but the overlap is usually
// unintentional, and shadowing an import can strand it as unused in the
// generated file.
func warnShadowedNames(decl *Declaration, pkgNames map[string]bool) {
	if decl.Body == nil || len(decl.Entries) == 0 {
		return
	}
	warned := make(map[string]bool)
	for _, entry := range decl.Entries {
		entry.Set.Each(func(name string, _ *ParamValue) bool {
			if pkgNames[name] && !warned[name] {
				warned[name] = true
				slog.Warn("Parameter shadows a package-level or imported name",
					"test", decl.BaseName, "parameter", name)
			}
			return true
		})
	}
}
