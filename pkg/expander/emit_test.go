package expander

import (
	"flag"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

var update = flag.Bool("update", false, "rewrite the golden archives with current output")

// Run a template source through the full pipeline without touching disk.
func emitFromSource(t *testing.T, path string, src []byte, setup *SetupIndex) *FileResult {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, src, parser.ParseComments)
	require.NoError(t, err)
	return ProcessFile(file, fset, path, setup, DefaultOptions())
}

// Each archive holds a template and the exact file generated from it. The
// comparison is byte-for-byte since the `//line` choreography only works if
// every directive lands on the physical line it was computed for.
func TestEmitGoldens(t *testing.T) {
	archives, err := filepath.Glob(filepath.Join("testdata", "*.txtar"))
	require.NoError(t, err)
	require.NotEmpty(t, archives)

	for _, path := range archives {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".txtar"), func(t *testing.T) {
			arc, err := txtar.ParseFile(path)
			require.NoError(t, err)
			require.Len(t, arc.Files, 2, "archive must hold a template and its golden output")

			tmpl, golden := arc.Files[0], arc.Files[1]
			fr := emitFromSource(t, tmpl.Name, tmpl.Data, nil)
			require.True(t, fr.Ok(), "expansion errors: %v", fr.Errs)
			require.NotNil(t, fr.Generated)
			require.Equal(t, golden.Name, filepath.Base(fr.Generated.Path))

			if *update {
				arc.Files[1].Data = fr.Generated.Content
				require.NoError(t, os.WriteFile(path, txtar.Format(arc), 0o644))
				return
			}
			if diff := cmp.Diff(string(golden.Data), string(fr.Generated.Content)); diff != "" {
				t.Errorf("generated output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const richTemplate = `//go:build paramtest

package richx

import (
	"strings"
	"testing"

	"github.com/maxgreen01/go-test-expander/pkg/partest"
)

var _ = partest.Define("upper", partest.Params{
	{in: "a", want: "A"},
	{in: "b", want: "B"},
}, func(t *testing.T, ctx int) {
	if strings.ToUpper(in) != want {
		// ctx carries the per-test fixture value
		t.Errorf("ToUpper(%q) = %q, want %q", in, strings.ToUpper(in), want)
	}
	_ = ctx
})

var _ = partest.Define("quiet", partest.Params{
	{n: 1},
}, func(_ *testing.T) {
	_ = n
})

var _ = partest.Define("empty", partest.Params{}, func(t *testing.T) {})

var _ = partest.Define("todo", partest.Params{
	{x, y},
	{1, 2},
})
`

func parseLineDirective(line string) (file string, num int, ok bool) {
	rest, found := strings.CutPrefix(line, "//line ")
	if !found {
		return "", 0, false
	}
	idx := strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(rest[idx+1:])
	if err != nil {
		return "", 0, false
	}
	return rest[:idx], n, true
}

// Structural checks that hold for any template: directives restoring the
// generated file's coordinates must name exactly the next physical line, and
// directives pointing into the template must reference either a declaration
// line or a body statement line.
func TestEmitDirectiveConsistency(t *testing.T) {
	dir := t.TempDir()
	setupSrc := `package richx

import "testing"

func setupTest(t *testing.T) int { return 7 }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "setup_test.go"), []byte(setupSrc), 0o644))

	path := filepath.Join(dir, "rich_test.go")
	fr := emitFromSource(t, path, []byte(richTemplate), NewSetupIndex(DefaultOptions()))
	require.True(t, fr.Ok(), "expansion errors: %v", fr.Errs)
	require.NotNil(t, fr.Generated)

	content := string(fr.Generated.Content)
	tmplLines := strings.Split(richTemplate, "\n")

	var resets, refs int
	for i, line := range strings.Split(content, "\n") {
		file, num, ok := parseLineDirective(line)
		if !ok {
			continue
		}
		switch file {
		case "rich_gen_test.go":
			resets++
			assert.Equal(t, i+2, num, "reset directive at line %d must name the line that follows it", i+1)
		case "rich_test.go":
			refs++
			require.True(t, num >= 1 && num <= len(tmplLines), "directive at line %d points outside the template", i+1)
			target := tmplLines[num-1]
			assert.True(t, strings.Contains(target, "partest.Define(") || strings.HasPrefix(target, "\t"),
				"directive at line %d points at unexpected template line %d: %q", i+1, num, target)
		default:
			t.Errorf("directive at line %d names unexpected file %q", i+1, file)
		}
	}
	assert.NotZero(t, resets)
	assert.NotZero(t, refs)

	// Quotes inside a composed name survive as escapes in the registration
	assert.Contains(t, content, `t.Run("upper[in: \"a\", want: \"A\"]"`)

	assert.Contains(t, content, "ctx := setupTest(t)")
	assert.Contains(t, content, "_, _, _ = in, want, ctx")
	assert.Contains(t, content, `t.Run("quiet[n: 1]", func(*testing.T) {`,
		"an unnamed template parameter leaves the subtest parameter unnamed")
	assert.Contains(t, content, "func TestEmpty(t *testing.T) {}")
	assert.Contains(t, content, `t.Skip("not implemented")`)
	assert.Contains(t, content, "// ctx carries the per-test fixture value",
		"comments nested inside a body statement are carried along")
	assert.Contains(t, content, `"strings"`)
	assert.NotContains(t, content, "partest")

	source, ok := GeneratedSource(fr.Generated.Content)
	require.True(t, ok)
	assert.Equal(t, "rich_test.go", source)
}

func TestEmitImportCarrying(t *testing.T) {
	const src = `//go:build paramtest

package textx

import (
	_ "embed"
	"os"
	str "strconv"
	"strings"
	"testing"

	"example.com/helpers/check"

	"github.com/maxgreen01/go-test-expander/pkg/partest"
)

var _ = partest.Define("upper", partest.Params{
	{in: "a", want: "A"},
}, func(t *testing.T) {
	check.Equal(t, strings.ToUpper(in), want)
	_ = str.Quote(in)
})
`
	fr := emitFromSource(t, "text_test.go", []byte(src), nil)
	require.True(t, fr.Ok(), "expansion errors: %v", fr.Errs)
	content := string(fr.Generated.Content)

	// Blank imports are always carried; used imports keep their aliases;
	// unused ones are dropped; groups stay split between std and the rest.
	assert.Contains(t, content, "import (\n\t_ \"embed\"\n\tstr \"strconv\"\n\t\"strings\"\n\t\"testing\"\n\n\t\"example.com/helpers/check\"\n)\n")
	assert.NotContains(t, content, `"os"`)
	assert.NotContains(t, content, "partest")
}

func TestGeneratedSource(t *testing.T) {
	content := []byte("// Code generated by testexpand; DO NOT EDIT.\n// Source: sum_test.go\n\npackage mathx\n")
	source, ok := GeneratedSource(content)
	require.True(t, ok)
	assert.Equal(t, "sum_test.go", source)

	crlf := []byte("// Code generated by testexpand; DO NOT EDIT.\r\n// Source: sum_test.go\r\npackage mathx\r\n")
	source, ok = GeneratedSource(crlf)
	require.True(t, ok)
	assert.Equal(t, "sum_test.go", source)

	rejected := []struct {
		name    string
		content []byte
	}{
		{"handwritten file", []byte("package mathx\n\nfunc TestSum(t *testing.T) {}\n")},
		{"missing source", []byte("// Code generated by testexpand; DO NOT EDIT.\npackage mathx\n")},
		{"empty", nil},
		{"marker only", []byte("// Code generated by testexpand; DO NOT EDIT.")},
		{"different tool", []byte("// Code generated by stringer; DO NOT EDIT.\n// Source: sum_test.go\n")},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := GeneratedSource(tt.content)
			assert.False(t, ok)
		})
	}
}

func TestGeneratedFileWrite(t *testing.T) {
	dir := t.TempDir()
	gf := &GeneratedFile{
		Path:         filepath.Join(dir, "sum_gen_test.go"),
		TemplatePath: "sum_test.go",
		Content:      []byte("package mathx\n"),
	}

	changed, err := gf.Write()
	require.NoError(t, err)
	assert.True(t, changed)
	data, err := os.ReadFile(gf.Path)
	require.NoError(t, err)
	assert.Equal(t, gf.Content, data)

	changed, err = gf.Write()
	require.NoError(t, err)
	assert.False(t, changed, "identical content is never rewritten")

	gf.Content = []byte("package mathx\n\nvar answer = 42\n")
	changed, err = gf.Write()
	require.NoError(t, err)
	assert.True(t, changed)
	data, err = os.ReadFile(gf.Path)
	require.NoError(t, err)
	assert.Equal(t, gf.Content, data)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".testexpand-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temporary files must not survive a successful write")
}
