package expander

import (
	"go/ast"
	"go/token"
	"strconv"

	"github.com/go-toolsmith/astcopy"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"
)

// =====================  Synthesized Statements  =====================
// Helpers that build the statements injected at the top of every generated
// subtest: the setup call, one `name := value` binding per parameter, and a
// blank assignment that keeps the compiler happy when a body doesn't read
// every parameter it declares.

// Deep-copy an expression and zero every position inside the copy, detaching
// it from its original file. Printing the copy yields canonical one-line
// formatting regardless of how the source was laid out, and the original
// node is left untouched for later rendering in its own file.
func copyExprWithoutPositions(expr ast.Expr) ast.Expr {
	cp := astcopy.Expr(expr)
	asttools.ClearPositions(cp)
	return cp
}

// Check that no parameter name collides with a variable the generated
// subtest already declares in the same scope, i.e. the *testing.T parameter
// or the setup context variable. A `name := value` binding for such a
// parameter would be a same-scope redeclaration, which Go rejects, so the
// declaration is refused up front with an explanation instead.
func validateBindingScope(decl *Declaration, entry Entry) *ExpandError {
	var collision *ExpandError
	entry.Set.Each(func(name string, _ *ParamValue) bool {
		if decl.TParam != "" && name == decl.TParam {
			collision = newExpandError(ErrMalformedDeclaration, nil, token.NoPos,
				"parameter %q collides with the *testing.T parameter of test %q", name, decl.BaseName)
			return false
		}
		if decl.HasCtx && decl.CtxName != "" && name == decl.CtxName {
			collision = newExpandError(ErrMalformedDeclaration, nil, token.NoPos,
				"parameter %q collides with the context variable of test %q", name, decl.BaseName)
			return false
		}
		return true
	})
	if collision != nil {
		collision.Pos = decl.Pos
	}
	return collision
}

// Build the `name := value` binding statements for one entry, in parameter
// declaration order. The right-hand sides are position-free copies so the
// printer lays each binding out on a single line.
func buildBindings(entry Entry) []ast.Stmt {
	stmts := make([]ast.Stmt, 0, entry.Set.Len())
	entry.Set.Each(func(name string, val *ParamValue) bool {
		stmts = append(stmts, &ast.AssignStmt{
			Lhs: []ast.Expr{ast.NewIdent(name)},
			Tok: token.DEFINE,
			Rhs: []ast.Expr{val.canon},
		})
		return true
	})
	return stmts
}

// Build the setup call placed before the parameter bindings. A named
// context produces `ctx := setupTest(t)`; an ignored or absent context
// produces a bare `setupTest(t)` so the setup still runs for its side
// effects.
func buildSetupStmt(setupName string, tName string, ctxName string) ast.Stmt {
	call := &ast.CallExpr{
		Fun:  ast.NewIdent(setupName),
		Args: []ast.Expr{ast.NewIdent(tName)},
	}
	if ctxName == "" {
		return &ast.ExprStmt{X: call}
	}
	return &ast.AssignStmt{
		Lhs: []ast.Expr{ast.NewIdent(ctxName)},
		Tok: token.DEFINE,
		Rhs: []ast.Expr{call},
	}
}

// Build a single `_, _ = a, b` statement covering every injected name, so a
// body that reads only some of its parameters still compiles. Returns nil
// when there is nothing to cover.
func buildBlankUse(names []string) ast.Stmt {
	if len(names) == 0 {
		return nil
	}
	lhs := make([]ast.Expr, len(names))
	rhs := make([]ast.Expr, len(names))
	for i, name := range names {
		lhs[i] = ast.NewIdent("_")
		rhs[i] = ast.NewIdent(name)
	}
	return &ast.AssignStmt{
		Lhs: lhs,
		Tok: token.ASSIGN,
		Rhs: rhs,
	}
}

// Build the placeholder body used when a declaration provides parameters
// but no function, marking the generated subtest as pending.
func buildSkipStub(tName string) ast.Stmt {
	return &ast.ExprStmt{X: &ast.CallExpr{
		Fun:  asttools.NewSelectorExpr(tName, "Skip"),
		Args: []ast.Expr{&ast.BasicLit{Kind: token.STRING, Value: strconv.Quote("not implemented")}},
	}}
}
