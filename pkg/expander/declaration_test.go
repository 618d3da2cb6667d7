package expander

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Parse template source and collect its declarations with default options.
func collectFromSource(t *testing.T, src string) *TemplateFile {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tmpl.go", src, parser.ParseComments)
	require.NoError(t, err)
	return Collect(file, fset, "tmpl.go", DefaultOptions())
}

// Collect declarations from source expected to contain exactly one.
func singleDecl(t *testing.T, src string) *Declaration {
	t.Helper()
	tf := collectFromSource(t, src)
	require.Len(t, tf.Decls, 1)
	return tf.Decls[0]
}

const templateHeader = `//go:build paramtest

package mathx

import (
	"testing"

	"github.com/maxgreen01/go-test-expander/pkg/partest"
)

`

func TestCollectBodyDeclaration(t *testing.T) {
	decl := singleDecl(t, templateHeader+`var _ = partest.Define("addition", partest.Params{
	{a: 1, b: 2},
}, func(t *testing.T) {
	_ = a + b
})
`)

	require.True(t, decl.Valid())
	assert.Equal(t, "addition", decl.BaseName)
	assert.Equal(t, "TestAddition", decl.DriverName)
	assert.Equal(t, FormKeyed, decl.Form)
	require.Len(t, decl.Entries, 1)
	require.NotNil(t, decl.Body)
	assert.Equal(t, "t", decl.TParam)
	assert.False(t, decl.HasCtx)
	assert.Equal(t, "", decl.CtxName)
	assert.Greater(t, decl.Pos.Line, 1)
}

func TestCollectContextDeclaration(t *testing.T) {
	decl := singleDecl(t, templateHeader+`var _ = partest.Define("with state", partest.Params{
	{n: 1},
}, func(t *testing.T, ctx *AppState) {
	_ = n
})
`)

	require.True(t, decl.Valid())
	assert.True(t, decl.HasCtx)
	assert.Equal(t, "ctx", decl.CtxName)
	require.NotNil(t, decl.CtxType)
	assert.Equal(t, "t", decl.TParam)
}

func TestCollectIgnoredContext(t *testing.T) {
	decl := singleDecl(t, templateHeader+`var _ = partest.Define("side effects", partest.Params{
	{n: 1},
}, func(t *testing.T, _ *AppState) {
	_ = n
})
`)

	require.True(t, decl.Valid())
	assert.True(t, decl.HasCtx)
	assert.Equal(t, "", decl.CtxName, "an underscore context binds no name")
}

func TestCollectStubDeclaration(t *testing.T) {
	decl := singleDecl(t, templateHeader+`var _ = partest.Define("pending work", partest.Params{
	{n, expected},
	{1, 2},
	{3, 4},
})
`)

	require.True(t, decl.Valid())
	assert.Nil(t, decl.Body)
	assert.False(t, decl.HasCtx)
	assert.Equal(t, FormPositional, decl.Form)
	assert.Len(t, decl.Entries, 2)
}

func TestCollectUnnamedTParam(t *testing.T) {
	decl := singleDecl(t, templateHeader+`var _ = partest.Define("quiet", partest.Params{
	{n: 1},
}, func(_ *testing.T) {
	_ = n
})
`)

	require.True(t, decl.Valid())
	assert.Equal(t, "", decl.TParam)
}

func TestCollectRecognizesAnyQualifier(t *testing.T) {
	// Templates may import the marker package under any name
	src := `//go:build paramtest

package mathx

import (
	"testing"

	pt "github.com/maxgreen01/go-test-expander/pkg/partest"
)

var _ = pt.Define("aliased", pt.Params{
	{n: 1},
}, func(t *testing.T) {
	_ = n
})
`
	decl := singleDecl(t, src)
	assert.True(t, decl.Valid())
	assert.Equal(t, "aliased", decl.BaseName)
}

func TestCollectRecognizesDotImport(t *testing.T) {
	src := `//go:build paramtest

package mathx

import (
	"testing"

	. "github.com/maxgreen01/go-test-expander/pkg/partest"
)

var _ = Define("bare", Params{
	{n: 1},
}, func(t *testing.T) {
	_ = n
})
`
	decl := singleDecl(t, src)
	assert.True(t, decl.Valid())
	assert.Equal(t, "bare", decl.BaseName)
}

func TestCollectIgnoresUnrelatedDeclarations(t *testing.T) {
	src := templateHeader + `const answer = 42

var helper = func() {}

func setupTest(t *testing.T) int { return 0 }

var _ = partest.Define("real", partest.Params{
	{n: 1},
}, func(t *testing.T) {
	_ = n
})
`
	tf := collectFromSource(t, src)
	require.Len(t, tf.Decls, 1)
	assert.Equal(t, "real", tf.Decls[0].BaseName)
}

func TestCollectInvalidDeclarations(t *testing.T) {
	tests := []struct {
		name     string
		decl     string
		kind     ErrorKind
		contains string
	}{
		{
			name:     "too few arguments",
			decl:     `var _ = partest.Define("lonely")`,
			kind:     ErrMalformedDeclaration,
			contains: "got 1 arguments",
		},
		{
			name:     "too many arguments",
			decl:     `var _ = partest.Define("crowd", partest.Params{{n: 1}}, func(t *testing.T) {}, 4)`,
			kind:     ErrMalformedDeclaration,
			contains: "got 4 arguments",
		},
		{
			name:     "name is not a literal",
			decl:     `var _ = partest.Define(someName, partest.Params{{n: 1}}, func(t *testing.T) {})`,
			kind:     ErrMalformedDeclaration,
			contains: "must be a string literal",
		},
		{
			name:     "parameters are a map literal",
			decl:     `var _ = partest.Define("mapped", map[string]int{"a": 1}, func(t *testing.T) {})`,
			kind:     ErrUnsupportedContainer,
			contains: "map literal",
		},
		{
			name:     "parameters are an opaque call",
			decl:     `var _ = partest.Define("opaque", buildParams(), func(t *testing.T) {})`,
			kind:     ErrUnsupportedContainer,
			contains: "a function call",
		},
		{
			name:     "body is not a function literal",
			decl:     `var _ = partest.Define("ref", partest.Params{{n: 1}}, namedFunc)`,
			kind:     ErrMalformedDeclaration,
			contains: "must be a function literal",
		},
		{
			name:     "body returns a value",
			decl:     `var _ = partest.Define("ret", partest.Params{{n: 1}}, func(t *testing.T) error { return nil })`,
			kind:     ErrMalformedDeclaration,
			contains: "must not return",
		},
		{
			name:     "body takes no parameters",
			decl:     `var _ = partest.Define("none", partest.Params{{n: 1}}, func() {})`,
			kind:     ErrMalformedDeclaration,
			contains: "got 0 parameters",
		},
		{
			name:     "body takes too many parameters",
			decl:     `var _ = partest.Define("many", partest.Params{{n: 1}}, func(t *testing.T, a, b int) {})`,
			kind:     ErrMalformedDeclaration,
			contains: "got 3 parameters",
		},
		{
			name:     "body is variadic",
			decl:     `var _ = partest.Define("spread", partest.Params{{n: 1}}, func(t *testing.T, rest ...int) {})`,
			kind:     ErrMalformedDeclaration,
			contains: "must not be variadic",
		},
		{
			name:     "first parameter is not testing.T",
			decl:     `var _ = partest.Define("wrong", partest.Params{{n: 1}}, func(b *testing.B) {})`,
			kind:     ErrMalformedDeclaration,
			contains: "first parameter must be *testing.T, got *testing.B",
		},
		{
			name:     "named context with unnamed t",
			decl:     `var _ = partest.Define("stuck", partest.Params{{n: 1}}, func(_ *testing.T, ctx int) {})`,
			kind:     ErrMalformedDeclaration,
			contains: `context variable "ctx"`,
		},
		{
			name:     "name with no identifier characters",
			decl:     `var _ = partest.Define("!!!", partest.Params{{n: 1}}, func(t *testing.T) {})`,
			kind:     ErrMalformedDeclaration,
			contains: "no identifier characters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decl := singleDecl(t, templateHeader+tt.decl+"\n")
			require.False(t, decl.Valid())
			require.NotNil(t, decl.Err)
			assert.Equal(t, tt.kind, decl.Err.Kind)
			assert.Contains(t, decl.Err.Detail, tt.contains)
		})
	}
}

func TestDriverNameCollisionAcrossDeclarations(t *testing.T) {
	src := templateHeader + `var _ = partest.Define("a b", partest.Params{
	{n: 1},
}, func(t *testing.T) {
	_ = n
})

var _ = partest.Define("a-b", partest.Params{
	{n: 2},
}, func(t *testing.T) {
	_ = n
})
`
	tf := collectFromSource(t, src)
	require.Len(t, tf.Decls, 2)

	assert.True(t, tf.Decls[0].Valid(), "the first declaration keeps the driver name")
	require.False(t, tf.Decls[1].Valid())
	assert.Equal(t, ErrNameCollision, tf.Decls[1].Err.Kind)
	assert.Contains(t, tf.Decls[1].Err.Detail, "TestAB")
	assert.Contains(t, tf.Decls[1].Err.Detail, `"a b"`)

	assert.Len(t, tf.ValidDecls(), 1)
	assert.Len(t, tf.Errors(), 1)
}

func TestOutputPathFor(t *testing.T) {
	opts := DefaultOptions()
	tests := []struct {
		in   string
		want string
	}{
		{"math_tmpl.go", "math_tmpl_gen_test.go"},
		{"math_test.go", "math_gen_test.go"},
		{"pkg/sub/cases_test.go", "pkg/sub/cases_gen_test.go"},
		{"cases.go", "cases_gen_test.go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputPathFor(tt.in, opts))
	}
}
