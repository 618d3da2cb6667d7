package expander

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"
)

// =====================  Generated File Assembly  =====================
// The emitter turns expanded declarations into the text of a generated test
// file. Output is assembled manually, line by line, because every statement
// carried over from a template is preceded by a column-one `//line`
// directive pointing back at its original location, and the formatters in
// go/format would re-indent those directives and break them. The assembled
// text is re-parsed before it is returned, so a malformed file can never
// reach disk.

const (
	// The first line of every generated file, matching the convention that
	// tools use to recognize machine-written code.
	generatedMarker = "// Code generated by testexpand; DO NOT EDIT."

	// The prefix of the header line recording which template produced the file.
	sourcePrefix = "// Source: "
)

// GeneratedFile is the fully-assembled content of one output file, ready to
// be written next to its template.
type GeneratedFile struct {
	Path         string // destination path of the generated file
	TemplatePath string // path of the template it was generated from
	Content      []byte
}

// Write the generated file to disk. The write is skipped entirely when the
// file already holds identical content, and otherwise goes through a
// temporary file and a rename so a crash cannot leave a half-written test
// file behind. Reports whether the file on disk changed.
func (g *GeneratedFile) Write() (bool, error) {
	if existing, err := os.ReadFile(g.Path); err == nil && bytes.Equal(existing, g.Content) {
		return false, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(g.Path), ".testexpand-*")
	if err != nil {
		return false, fmt.Errorf("creating temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(g.Content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return false, fmt.Errorf("writing %q: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("closing %q: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return false, err
	}
	if err := os.Rename(tmpPath, g.Path); err != nil {
		os.Remove(tmpPath)
		return false, fmt.Errorf("replacing %q: %w", g.Path, err)
	}
	return true, nil
}

// Extract the template file name recorded in a generated file's header.
// Reports false when the content does not carry the generated-file marker,
// meaning the file was written by hand and must not be overwritten.
func GeneratedSource(content []byte) (string, bool) {
	lines := strings.SplitN(string(content), "\n", 3)
	if len(lines) < 2 || strings.TrimRight(lines[0], "\r") != generatedMarker {
		return "", false
	}
	second := strings.TrimRight(lines[1], "\r")
	if !strings.HasPrefix(second, sourcePrefix) {
		return "", false
	}
	return strings.TrimPrefix(second, sourcePrefix), true
}

// Assemble the generated file for a template whose declarations all
// expanded successfully. The results must be in declaration order.
func EmitFile(tf *TemplateFile, results []DeclResult, opts Options) (*GeneratedFile, *ExpandError) {
	outPath := tf.OutputPath(opts)
	outBase := filepath.Base(outPath)
	tmplBase := filepath.Base(tf.Path)

	var b lineBuffer
	b.writeLine(generatedMarker)
	b.writeLine(sourcePrefix + tmplBase)
	b.writeLine("")
	b.writeLine("package " + tf.Package)
	b.writeLine("")
	writeImports(&b, collectImports(tf, results))

	for _, res := range results {
		b.writeLine("")
		writeDriver(&b, tf, res, tmplBase, outBase)
	}

	content := b.buf.Bytes()
	if _, err := parser.ParseFile(token.NewFileSet(), outBase, content, parser.ParseComments); err != nil {
		return nil, newExpandError(ErrEmitFailure, nil, token.NoPos,
			"assembled output for %q does not parse: %v", tf.Path, err)
	}
	return &GeneratedFile{
		Path:         outPath,
		TemplatePath: tf.Path,
		Content:      content,
	}, nil
}

// ~~~~~~~~~~~~~~~~~~~~~  drivers and subtests  ~~~~~~~~~~~~~~~~~~~~~

// Write the driver function for one declaration: a top-level Go test that
// registers every expanded case as a subtest, in entry order.
func writeDriver(b *lineBuffer, tf *TemplateFile, res DeclResult, tmplBase string, outBase string) {
	if len(res.Tests) == 0 {
		b.writeLine(fmt.Sprintf("func %s(t *testing.T) {}", res.Decl.DriverName))
		return
	}
	b.writeLine(fmt.Sprintf("func %s(t *testing.T) {", res.Decl.DriverName))
	for i, test := range res.Tests {
		if i > 0 {
			b.writeLine("")
		}
		writeSubtest(b, tf, res.Decl, test, tmplBase, outBase)
	}
	b.writeLine("}")
}

// Write one subtest registration. The registration line and every
// synthesized statement are attributed to the template line of the
// declaration, each original body statement is attributed to its own
// template line, and a final directive restores the generated file's own
// coordinates before the closing brace.
func writeSubtest(b *lineBuffer, tf *TemplateFile, decl *Declaration, test GeneratedTest, tmplBase string, outBase string) {
	declLine := decl.Pos.Line

	param := "*testing.T"
	switch {
	case test.Stub:
		param = "t *testing.T"
	case decl.TParam != "":
		param = decl.TParam + " *testing.T"
	}

	b.directive(tmplBase, declLine)
	b.writeLine(fmt.Sprintf("\tt.Run(%s, func(%s) {", strconv.Quote(test.Name), param))

	if test.Stub {
		b.directive(tmplBase, declLine)
		b.writeStmt(tf.Fset, buildSkipStub("t"), nil)
	} else {
		if test.Setup != nil {
			b.directive(tmplBase, declLine)
			b.writeStmt(tf.Fset, test.Setup, nil)
		}
		for _, binding := range test.Bindings {
			b.directive(tmplBase, declLine)
			b.writeStmt(tf.Fset, binding, nil)
		}
		if test.BlankUse != nil {
			b.directive(tmplBase, declLine)
			b.writeStmt(tf.Fset, test.BlankUse, nil)
		}
		for _, stmt := range test.Body {
			b.directive(tmplBase, tf.Fset.Position(stmt.Pos()).Line)
			b.writeStmt(tf.Fset, stmt, tf.File.Comments)
		}
	}

	b.reset(outBase)
	b.writeLine("\t})")
}

// ~~~~~~~~~~~~~~~~~~~~~  import carrying  ~~~~~~~~~~~~~~~~~~~~~

// A single import of the generated file.
type importedPackage struct {
	alias string // the explicit local name, or "" when the path's own name is used
	path  string
}

func (imp importedPackage) render() string {
	if imp.alias != "" {
		return imp.alias + " " + strconv.Quote(imp.path)
	}
	return strconv.Quote(imp.path)
}

// Decide which of the template's imports the generated file needs. Blank
// and dot imports are always carried since their effects cannot be traced
// syntactically, and "testing" is always present for the driver signatures.
// Everything else is carried only when its local name appears as a package
// qualifier somewhere in the emitted statements, which naturally drops the
// marker package import along with anything only the template scaffolding
// used.
func collectImports(tf *TemplateFile, results []DeclResult) []importedPackage {
	used := usedQualifiers(results)

	imports := []importedPackage{{path: "testing"}}
	for _, spec := range tf.File.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		alias := ""
		if spec.Name != nil {
			alias = spec.Name.Name
		}
		if alias == "_" || alias == "." {
			imports = append(imports, importedPackage{alias: alias, path: path})
			continue
		}
		if path == "testing" && alias == "" {
			continue // already present
		}
		local := alias
		if local == "" {
			// Templates must alias imports whose package name differs from
			// the last path segment; without the alias the name cannot be
			// recovered from syntax alone.
			local = assumedPackageName(path)
		}
		if local == "" || !used[local] {
			continue
		}
		imports = append(imports, importedPackage{alias: alias, path: path})
	}
	return imports
}

// Collect every identifier used as a package qualifier in the statements
// that will be emitted, including the synthesized parameter bindings.
func usedQualifiers(results []DeclResult) map[string]bool {
	used := make(map[string]bool)
	record := func(node ast.Node) {
		if node == nil {
			return
		}
		ast.Inspect(node, func(n ast.Node) bool {
			if sel, ok := n.(*ast.SelectorExpr); ok {
				if ident, ok := sel.X.(*ast.Ident); ok {
					used[ident.Name] = true
				}
			}
			return true
		})
	}
	for _, res := range results {
		for _, test := range res.Tests {
			record(test.Setup)
			for _, stmt := range test.Bindings {
				record(stmt)
			}
			record(test.BlankUse)
			for _, stmt := range test.Body {
				record(stmt)
			}
		}
	}
	return used
}

// Guess the package name an unaliased import introduces, using the last
// path segment with any major-version suffix collapsed. Returns "" when the
// segment is not a valid identifier, since the real package name cannot be
// determined from syntax in that case.
func assumedPackageName(importPath string) string {
	segments := strings.Split(importPath, "/")
	seg := segments[len(segments)-1]
	if len(segments) > 1 && isMajorVersion(seg) {
		seg = segments[len(segments)-2]
	}
	for i, r := range seg {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') {
			continue
		}
		if i > 0 && '0' <= r && r <= '9' {
			continue
		}
		return ""
	}
	return seg
}

func isMajorVersion(segment string) bool {
	if len(segment) < 2 || segment[0] != 'v' {
		return false
	}
	for _, r := range segment[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Write the import block, grouping standard-library paths before module
// paths the way gofmt arranges them.
func writeImports(b *lineBuffer, imports []importedPackage) {
	var std, other []importedPackage
	for _, imp := range imports {
		if isStdImportPath(imp.path) {
			std = append(std, imp)
		} else {
			other = append(other, imp)
		}
	}
	sortImports(std)
	sortImports(other)

	b.writeLine("import (")
	for _, imp := range std {
		b.writeLine("\t" + imp.render())
	}
	if len(std) > 0 && len(other) > 0 {
		b.writeLine("")
	}
	for _, imp := range other {
		b.writeLine("\t" + imp.render())
	}
	b.writeLine(")")
}

// Standard-library paths have no dot in their first segment.
func isStdImportPath(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

func sortImports(imports []importedPackage) {
	for i := 1; i < len(imports); i++ {
		for j := i; j > 0 && imports[j].path < imports[j-1].path; j-- {
			imports[j], imports[j-1] = imports[j-1], imports[j]
		}
	}
}

// ~~~~~~~~~~~~~~~~~~~~~  line-tracked assembly  ~~~~~~~~~~~~~~~~~~~~~

// The printer configuration for statements written into generated files,
// matching the layout gofmt produces.
var emitCfg = printer.Config{Mode: printer.UseSpaces | printer.TabIndent, Tabwidth: 8}

// lineBuffer accumulates output text while tracking the physical line
// number each write lands on, which the `//line` directives that restore
// generated-file coordinates need to know.
type lineBuffer struct {
	buf  bytes.Buffer
	line int // number of complete lines written so far
}

// Write one line of text followed by a newline.
func (b *lineBuffer) writeLine(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
	b.line++
}

// Write a directive attributing the next line to a template location.
// Directives are only honored by the compiler at column one, so they are
// never indented no matter how deep the surrounding code sits.
func (b *lineBuffer) directive(file string, line int) {
	b.writeLine(fmt.Sprintf("//line %s:%d", file, line))
}

// Write a directive restoring the generated file's own coordinates, so
// everything after it reports positions in the generated file again. The
// directive names the line that follows it.
func (b *lineBuffer) reset(file string) {
	b.writeLine(fmt.Sprintf("//line %s:%d", file, b.line+2))
}

// Print a single statement at subtest depth. Comments are carried along
// when the statement comes from a template and its file's comment list is
// provided; synthesized statements pass nil.
func (b *lineBuffer) writeStmt(fset *token.FileSet, stmt ast.Stmt, comments []*ast.CommentGroup) {
	cfg := emitCfg
	cfg.Indent = 2

	var node any = stmt
	if comments != nil {
		node = &printer.CommentedNode{Node: stmt, Comments: comments}
	}

	var sb bytes.Buffer
	if err := cfg.Fprint(&sb, fset, node); err != nil {
		// The printer only fails on malformed ASTs, which the parser cannot
		// have produced; fall back to a plain rendering to keep going.
		sb.Reset()
		sb.WriteString("\t\t" + asttools.NodeToString(stmt, fset))
	}
	text := sb.String()
	b.buf.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.buf.WriteByte('\n')
	}
	b.line += strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		b.line++
	}
}
