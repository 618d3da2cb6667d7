package expander

// Recognition and validation of Define declarations within parsed template
// files. A declaration either parses completely or records the error that
// disqualified it; partially-parsed declarations never reach expansion.

import (
	"go/ast"
	"go/token"
	"strconv"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"

	"golang.org/x/tools/go/ast/astutil"
)

// Represents one parameterized test declaration extracted from a template file.
type Declaration struct {
	// Core declaration data
	BaseName string    // the authored base test name
	Entries  []Entry   // normalized parameter entries, in authored order
	Form     InputForm // the authored shape of the parameter list

	// Body data, absent for stub declarations
	Body    *ast.FuncLit // the authored test body, or nil to generate stubs
	TParam  string       // the authored name of the *testing.T parameter, or "" if unnamed
	CtxName string       // the context binding name, or "" for `_`/unnamed patterns
	HasCtx  bool         // whether a context pattern was declared at all
	CtxType ast.Expr     // the authored context type expression, for reporting only

	// Derived data
	DriverName string // the mangled TestXxx identifier for the generated driver

	// Source location of the Define call itself, i.e. the point every
	// synthesized statement is attributed to
	Pos token.Position

	// The failure that disqualified this declaration, or nil if it is usable
	Err *ExpandError
}

// Report whether the declaration parsed cleanly and can be expanded.
func (d *Declaration) Valid() bool {
	return d.Err == nil
}

// Collect every Define declaration from a parsed template file, in source
// order. Declarations that fail validation are returned with their Err field
// populated so callers can report all failures in one pass.
//
// Only file-scope `var _ = Define(...)` bindings are recognized; the marker
// may be qualified with any import name or used bare under a dot-import.
func collectDeclarations(file *ast.File, fset *token.FileSet, marker string) []*Declaration {
	var decls []*Declaration
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			value, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, expr := range value.Values {
				call, ok := astutil.Unparen(expr).(*ast.CallExpr)
				if !ok || !isMarkerCall(call, marker) {
					continue
				}
				decls = append(decls, parseDeclaration(call, fset))
			}
		}
	}
	return decls
}

// Report whether a call invokes the marker function, either qualified
// (`partest.Define`) or bare (`Define` under a dot-import).
func isMarkerCall(call *ast.CallExpr, marker string) bool {
	switch fun := astutil.Unparen(call.Fun).(type) {
	case *ast.SelectorExpr:
		if _, ok := fun.X.(*ast.Ident); ok {
			return fun.Sel.Name == marker
		}
	case *ast.Ident:
		return fun.Name == marker
	}
	return false
}

// Parse and validate a single marker call into a Declaration.
func parseDeclaration(call *ast.CallExpr, fset *token.FileSet) *Declaration {
	decl := &Declaration{Pos: fset.Position(call.Pos())}

	fail := func(err *ExpandError) *Declaration {
		decl.Err = err
		return decl
	}

	if len(call.Args) < 2 || len(call.Args) > 3 {
		return fail(newExpandError(ErrMalformedDeclaration, fset, call.Pos(),
			"declaration takes a name, a parameter list, and an optional body, got %d arguments", len(call.Args)))
	}

	// First argument: the base test name, which must be a literal so names
	// can be composed without evaluating anything
	nameLit, ok := astutil.Unparen(call.Args[0]).(*ast.BasicLit)
	if !ok || nameLit.Kind != token.STRING {
		return fail(newExpandError(ErrMalformedDeclaration, fset, call.Args[0].Pos(),
			"test name must be a string literal, got %s", describeExpr(call.Args[0])))
	}
	baseName, err := strconv.Unquote(nameLit.Value)
	if err != nil {
		return fail(newExpandError(ErrMalformedDeclaration, fset, nameLit.Pos(),
			"test name %s cannot be unquoted: %v", nameLit.Value, err))
	}
	decl.BaseName = baseName

	driver, err := driverFuncName(baseName)
	if err != nil {
		return fail(newExpandError(ErrMalformedDeclaration, fset, nameLit.Pos(), "%v", err))
	}
	decl.DriverName = driver

	// Second argument: the parameter list, which must be an ordered,
	// positionally-indexable composite. Maps and opaque expressions cannot
	// be normalized and are rejected outright.
	paramsLit, ok := astutil.Unparen(call.Args[1]).(*ast.CompositeLit)
	if !ok {
		return fail(newExpandError(ErrUnsupportedContainer, fset, call.Args[1].Pos(),
			"parameter list is %s, expected an ordered list literal of parameter sets", describeExpr(call.Args[1])))
	}
	if _, isMap := paramsLit.Type.(*ast.MapType); isMap {
		return fail(newExpandError(ErrUnsupportedContainer, fset, paramsLit.Pos(),
			"parameter list is a map literal, expected an ordered list literal of parameter sets"))
	}

	entries, form, normErr := normalizeParams(paramsLit, fset)
	if normErr != nil {
		if ee, ok := normErr.(*ExpandError); ok {
			return fail(ee)
		}
		return fail(newExpandError(ErrUnknown, fset, paramsLit.Pos(), "%v", normErr))
	}
	decl.Entries = entries
	decl.Form = form

	// Third argument: the optional body
	if len(call.Args) == 3 {
		body, ok := astutil.Unparen(call.Args[2]).(*ast.FuncLit)
		if !ok {
			return fail(newExpandError(ErrMalformedDeclaration, fset, call.Args[2].Pos(),
				"test body must be a function literal, got %s", describeExpr(call.Args[2])))
		}
		if err := decl.adoptBody(body, fset); err != nil {
			return fail(err)
		}
	}

	return decl
}

// Validate the body function's signature and record its parameter bindings.
// The first parameter must be exactly *testing.T; an optional second
// parameter declares the context pattern the setup result is bound to.
func (d *Declaration) adoptBody(body *ast.FuncLit, fset *token.FileSet) *ExpandError {
	ft := body.Type
	if ft.TypeParams != nil {
		return newExpandError(ErrMalformedDeclaration, fset, ft.TypeParams.Pos(),
			"test body must not declare type parameters")
	}
	if ft.Results != nil {
		return newExpandError(ErrMalformedDeclaration, fset, ft.Results.Pos(),
			"test body must not return values")
	}

	// Flatten the field list so `func(t *testing.T, ctx T)` and grouped
	// forms are counted the same way
	type param struct {
		name string
		typ  ast.Expr
		pos  token.Pos
	}
	var params []param
	if ft.Params != nil {
		for _, field := range ft.Params.List {
			if len(field.Names) == 0 {
				params = append(params, param{typ: field.Type, pos: field.Pos()})
				continue
			}
			for _, name := range field.Names {
				params = append(params, param{name: name.Name, typ: field.Type, pos: name.Pos()})
			}
		}
	}

	if len(params) == 0 || len(params) > 2 {
		return newExpandError(ErrMalformedDeclaration, fset, body.Pos(),
			"test body must take *testing.T and an optional context binding, got %d parameters", len(params))
	}
	if _, variadic := params[len(params)-1].typ.(*ast.Ellipsis); variadic {
		return newExpandError(ErrMalformedDeclaration, fset, params[len(params)-1].pos,
			"test body must not be variadic")
	}
	if !asttools.IsTestingTParam(params[0].typ) {
		return newExpandError(ErrMalformedDeclaration, fset, params[0].pos,
			"test body's first parameter must be *testing.T, got %s", describeType(params[0].typ))
	}

	d.Body = body
	if params[0].name != "_" {
		d.TParam = params[0].name
	}
	if len(params) == 2 {
		d.HasCtx = true
		d.CtxType = params[1].typ
		if params[1].name != "_" {
			d.CtxName = params[1].name
		}
	}

	// A named context is bound by calling the setup function with the test's
	// *testing.T, so the first parameter must have a name to pass along.
	if d.CtxName != "" && d.TParam == "" {
		return newExpandError(ErrMalformedDeclaration, fset, params[0].pos,
			"test body binds a context variable %q but its *testing.T parameter is unnamed", d.CtxName)
	}
	return nil
}

// Describe a type expression for error messages.
func describeType(expr ast.Expr) string {
	if s := asttools.NodeToCanonicalString(copyExprWithoutPositions(expr)); s != "" {
		return s
	}
	return "an unrecognized type"
}
