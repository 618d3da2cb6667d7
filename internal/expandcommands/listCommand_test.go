package expandcommands

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Three declarations: a keyed test, a positional stub, and an invalid one.
const listTemplate = `//go:build paramtest

package mathx

import (
	"testing"

	"github.com/maxgreen01/go-test-expander/pkg/partest"
)

var _ = partest.Define("addition", partest.Params{
	{a: 1, b: 2, expected: 3},
	{"negatives", {a: -1, b: -2, expected: -3}},
}, func(t *testing.T) {
	if a+b != expected {
		t.Errorf("got %d, want %d", a+b, expected)
	}
})

var _ = partest.Define("todo", partest.Params{
	{n, want},
	{1, 2},
})

var _ = partest.Define("bad", map[string]int{"a": 1}, func(t *testing.T) {
	_ = a
})
`

func TestListCommandJsonReport(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "list_test.go", listTemplate)

	globals := projectGlobals(dir)
	globals.OutputPath = filepath.Join(t.TempDir(), "report.json")
	cmd := NewListCommand(globals)
	cmd.ShowParams = true
	require.NoError(t, cmd.Execute(nil))

	data, err := os.ReadFile(globals.OutputPath)
	require.NoError(t, err)

	var records []declRecord
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 3)

	addition := records[0]
	assert.Equal(t, "list_test.go", addition.Template)
	assert.Equal(t, "mathx", addition.Package)
	assert.Equal(t, "addition", addition.Name)
	assert.Equal(t, "TestAddition", addition.Driver)
	assert.Equal(t, "keyed", addition.Form)
	assert.Equal(t, 2, addition.Entries)
	assert.Equal(t, "test", addition.Kind)
	assert.Empty(t, addition.Error)
	assert.Equal(t, []string{"a: 1, b: 2, expected: 3", "[negatives]"}, addition.Params)

	todo := records[1]
	assert.Equal(t, "todo", todo.Name)
	assert.Equal(t, "TestTodo", todo.Driver)
	assert.Equal(t, "positional", todo.Form)
	assert.Equal(t, 1, todo.Entries)
	assert.Equal(t, "stub", todo.Kind)
	assert.Equal(t, []string{"n: 1, want: 2"}, todo.Params)

	bad := records[2]
	assert.Equal(t, "bad", bad.Name)
	assert.Equal(t, "invalid", bad.Kind)
	assert.Contains(t, bad.Error, "map literal")

	assert.Greater(t, todo.Line, addition.Line, "records are sorted by declaration line")
	assert.Greater(t, bad.Line, todo.Line)
}

func TestListCommandCsvReport(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "list_test.go", listTemplate)

	globals := projectGlobals(dir)
	globals.OutputPath = filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, NewListCommand(globals).Execute(nil))

	f, err := os.Open(globals.OutputPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4, "header plus one row per declaration")

	assert.Equal(t, []string{"template", "package", "line", "name", "driver", "form", "entries", "kind", "error"}, rows[0])
	assert.Equal(t, "addition", rows[1][3])
	assert.Equal(t, "2", rows[1][6])
	assert.Equal(t, "test", rows[1][7])
	assert.Equal(t, "todo", rows[2][3])
	assert.Equal(t, "stub", rows[2][7])
	assert.Equal(t, "bad", rows[3][3])
	assert.Equal(t, "invalid", rows[3][7])
	assert.Contains(t, rows[3][8], "map literal")
}

func TestListCommandTextReport(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "list_test.go", listTemplate)

	globals := projectGlobals(dir)
	globals.OutputPath = filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, NewListCommand(globals).Execute(nil))

	data, err := os.ReadFile(globals.OutputPath)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "Template Report for")
	assert.Contains(t, text, "list_test.go (package mathx):")
	assert.Contains(t, text, "addition -> TestAddition  [keyed, 2 entries, test]")
	assert.Contains(t, text, "todo -> TestTodo  [positional, 1 entry, stub]")
	assert.Contains(t, text, "INVALID:")
	assert.Contains(t, text, "Declarations: 3 total (1 stubs, 1 invalid) expanding into 3 test cases across 1 template file(s)")
}

func TestListCommandReportsParseFailures(t *testing.T) {
	dir := t.TempDir()
	writeProjectFile(t, dir, "mangled_test.go", "//go:build paramtest\n\npackage mathx\n\nfunc oops( {\n")

	globals := projectGlobals(dir)
	globals.OutputPath = filepath.Join(t.TempDir(), "report.csv")
	err := NewListCommand(globals).Execute(nil)
	require.EqualError(t, err, "1 template file(s) could not be parsed")
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "entry", pluralize("entry", "entries", 1))
	assert.Equal(t, "entries", pluralize("entry", "entries", 0))
	assert.Equal(t, "entries", pluralize("entry", "entries", 2))
}
