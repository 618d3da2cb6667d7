package expander

import (
	"go/ast"
	"go/token"
	"path/filepath"
	"strings"
)

// =====================  Template File Model  =====================

// TemplateFile represents one parsed template file and every parameterized
// test declaration found inside it. Declarations that failed validation are
// retained with their error attached so callers can report all problems in a
// file at once instead of stopping at the first one.
type TemplateFile struct {
	Path    string         // path of the template file on disk
	Package string         // the package name declared by the file
	File    *ast.File      // the parsed file, with original positions intact
	Fset    *token.FileSet // the FileSet used to parse the file
	Decls   []*Declaration // declarations in source order, valid or not
}

// Collect all parameterized test declarations from a parsed template file.
// The returned TemplateFile always reflects every marker call in the file;
// use Errors to determine whether generation can proceed.
func Collect(file *ast.File, fset *token.FileSet, path string, opts Options) *TemplateFile {
	tf := &TemplateFile{
		Path:    path,
		Package: file.Name.Name,
		File:    file,
		Fset:    fset,
		Decls:   collectDeclarations(file, fset, opts.MarkerName),
	}
	tf.checkDriverCollisions()
	return tf
}

// Mark declarations whose generated driver function name collides with an
// earlier declaration in the same file. Two distinct test names can mangle
// to the same Go identifier (for example "a b" and "a-b"), which would
// produce two functions with the same name in the generated file.
func (tf *TemplateFile) checkDriverCollisions() {
	seen := make(map[string]*Declaration)
	for _, decl := range tf.Decls {
		if !decl.Valid() {
			continue
		}
		if prev, ok := seen[decl.DriverName]; ok {
			decl.Err = newExpandError(ErrNameCollision, nil, token.NoPos,
				"test %q generates driver %s, which collides with test %q declared at line %d",
				decl.BaseName, decl.DriverName, prev.BaseName, prev.Pos.Line)
			decl.Err.Pos = decl.Pos
			continue
		}
		seen[decl.DriverName] = decl
	}
}

// Return the declarations that passed validation, in source order.
func (tf *TemplateFile) ValidDecls() []*Declaration {
	valid := make([]*Declaration, 0, len(tf.Decls))
	for _, decl := range tf.Decls {
		if decl.Valid() {
			valid = append(valid, decl)
		}
	}
	return valid
}

// Return the validation errors attached to the file's declarations, in
// source order.
func (tf *TemplateFile) Errors() []*ExpandError {
	var errs []*ExpandError
	for _, decl := range tf.Decls {
		if decl.Err != nil {
			errs = append(errs, decl.Err)
		}
	}
	return errs
}

// Compute the path of the generated file corresponding to this template.
// A template named "math_test.go" maps to "math_gen_test.go" in the same
// directory, and one named "math.go" maps to the same place.
func (tf *TemplateFile) OutputPath(opts Options) string {
	return OutputPathFor(tf.Path, opts)
}

// Compute the generated-file path for an arbitrary template path. The base
// name is stripped of its ".go" extension and any trailing "_test" before
// the output suffix is appended, so templates named with or without the
// test suffix map to the same generated file.
func OutputPathFor(templatePath string, opts Options) string {
	dir := filepath.Dir(templatePath)
	base := strings.TrimSuffix(filepath.Base(templatePath), ".go")
	base = strings.TrimSuffix(base, "_test")
	return filepath.Join(dir, base+opts.OutputSuffix)
}
