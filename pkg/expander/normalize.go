package expander

// Shape detection and normalization of authored parameter lists.
// Both accepted input shapes are converted here, at the earliest ingestion
// point, into the canonical []Entry form that every downstream stage
// operates on.

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"

	"golang.org/x/tools/go/ast/astutil"
)

// Normalize the authored parameter list into an ordered sequence of entries.
//
// The first element decides the shape: a composite whose own first element
// is a plain identifier is a positional header row, and everything after it
// is a value row zipped against the header. Any other first element means
// every element is an already-keyed entry (a keyed composite, optionally
// wrapped with an explicit id). Output order is input order, which also
// fixes the 1-based index space used for fallback naming.
func normalizeParams(lit *ast.CompositeLit, fset *token.FileSet) ([]Entry, InputForm, error) {
	if len(lit.Elts) == 0 {
		return nil, FormKeyed, nil
	}

	first, ok := entryComposite(lit.Elts[0])
	if !ok {
		return nil, FormKeyed, newExpandError(ErrUnsupportedContainer, fset, lit.Elts[0].Pos(),
			"parameter entry 1 is %s, expected a composite literal holding a parameter set", describeExpr(lit.Elts[0]))
	}

	if isHeaderRow(first) {
		entries, err := normalizePositional(lit, first, fset)
		return entries, FormPositional, err
	}

	entries, err := normalizeKeyed(lit, fset)
	return entries, FormKeyed, err
}

// Detect a positional header row: a non-empty composite whose first element
// is a bare identifier rather than a pair or a literal.
func isHeaderRow(lit *ast.CompositeLit) bool {
	if len(lit.Elts) == 0 {
		return false
	}
	_, ok := astutil.Unparen(lit.Elts[0]).(*ast.Ident)
	return ok
}

//
// =============== Keyed Form ===============
//

func normalizeKeyed(lit *ast.CompositeLit, fset *token.FileSet) ([]Entry, error) {
	entries := make([]Entry, 0, len(lit.Elts))
	for i, elt := range lit.Elts {
		comp, ok := entryComposite(elt)
		if !ok {
			return nil, newExpandError(ErrUnsupportedContainer, fset, elt.Pos(),
				"parameter entry %d is %s, expected a composite literal holding a parameter set", i+1, describeExpr(elt))
		}

		// An entry of the form {"id", {...}} carries an explicit display id
		if id, inner, ok := splitNamedEntry(comp); ok {
			set, err := parseKeyedSet(inner, i, fset)
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{ID: id, Named: true, Set: set})
			continue
		}

		set, err := parseKeyedSet(comp, i, fset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Set: set})
	}
	return entries, nil
}

// Parse a keyed composite like {a: 1, b: 2} into a ParamSet.
func parseKeyedSet(lit *ast.CompositeLit, index int, fset *token.FileSet) (*ParamSet, error) {
	set := NewParamSet()
	for _, elt := range lit.Elts {
		kv, ok := astutil.Unparen(elt).(*ast.KeyValueExpr)
		if !ok {
			return nil, newExpandError(ErrUnsupportedContainer, fset, elt.Pos(),
				"parameter entry %d mixes keyed and bare elements: %s is not a `name: value` pair",
				index+1, describeExpr(elt))
		}
		key, ok := astutil.Unparen(kv.Key).(*ast.Ident)
		if !ok {
			return nil, newExpandError(ErrMalformedDeclaration, fset, kv.Key.Pos(),
				"parameter name in entry %d must be a plain identifier, got %s", index+1, describeExpr(kv.Key))
		}
		if key.Name == "_" {
			return nil, newExpandError(ErrMalformedDeclaration, fset, key.Pos(),
				"parameter name in entry %d must not be the blank identifier", index+1)
		}
		if !set.Add(key.Name, newParamValue(kv.Value)) {
			return nil, newExpandError(ErrMalformedDeclaration, fset, key.Pos(),
				"parameter name %q appears more than once in entry %d", key.Name, index+1)
		}
	}
	return set, nil
}

//
// =============== Positional Form ===============
//

func normalizePositional(lit *ast.CompositeLit, header *ast.CompositeLit, fset *token.FileSet) ([]Entry, error) {
	names, err := parseHeaderRow(header, fset)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(lit.Elts)-1)
	for i, elt := range lit.Elts[1:] {
		row, ok := entryComposite(elt)
		if !ok {
			return nil, newExpandError(ErrUnsupportedContainer, fset, elt.Pos(),
				"value row %d is %s, expected a composite literal holding positional values", i+1, describeExpr(elt))
		}

		// A row of the form {"id", {...}} carries an explicit display id
		id, named := "", false
		if innerID, inner, ok := splitNamedEntry(row); ok {
			id, named = innerID, true
			row = inner
		}

		set, err := zipRow(names, row, i, fset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, Named: named, Set: set})
	}
	return entries, nil
}

// Parse the header row into its ordered list of parameter names.
func parseHeaderRow(header *ast.CompositeLit, fset *token.FileSet) ([]string, error) {
	names := make([]string, 0, len(header.Elts))
	seen := make(map[string]struct{}, len(header.Elts))
	for _, elt := range header.Elts {
		ident, ok := astutil.Unparen(elt).(*ast.Ident)
		if !ok {
			return nil, newExpandError(ErrMalformedDeclaration, fset, elt.Pos(),
				"header row must contain only parameter names, got %s", describeExpr(elt))
		}
		if ident.Name == "_" {
			return nil, newExpandError(ErrMalformedDeclaration, fset, ident.Pos(),
				"header row must not contain the blank identifier")
		}
		if _, dup := seen[ident.Name]; dup {
			return nil, newExpandError(ErrMalformedDeclaration, fset, ident.Pos(),
				"parameter name %q appears more than once in the header row", ident.Name)
		}
		seen[ident.Name] = struct{}{}
		names = append(names, ident.Name)
	}
	return names, nil
}

// Zip one value row against the header names, enforcing an exact 1:1 match.
// A row that is longer or shorter than the header is never truncated or
// padded; it aborts the declaration.
func zipRow(names []string, row *ast.CompositeLit, rowIndex int, fset *token.FileSet) (*ParamSet, error) {
	for _, elt := range row.Elts {
		if _, isKV := astutil.Unparen(elt).(*ast.KeyValueExpr); isKV {
			return nil, newExpandError(ErrMalformedDeclaration, fset, elt.Pos(),
				"value row %d must contain only positional values, got the pair %s",
				rowIndex+1, asttools.NodeToString(elt, fset))
		}
	}
	if len(row.Elts) != len(names) {
		return nil, newExpandError(ErrArityMismatch, fset, row.Pos(),
			"value row %d has %d values for %d header names: %s",
			rowIndex+1, len(row.Elts), len(names), asttools.NodeToString(row, fset))
	}

	set := NewParamSet()
	for i, name := range names {
		set.Add(name, newParamValue(row.Elts[i]))
	}
	return set, nil
}

//
// =============== Shared Helpers ===============
//

// Unwrap an element into the composite literal holding a parameter set or
// value row, looking through parentheses.
func entryComposite(expr ast.Expr) (*ast.CompositeLit, bool) {
	comp, ok := astutil.Unparen(expr).(*ast.CompositeLit)
	return comp, ok
}

// Detect the explicit-id wrapper shape {"id", {...}} and return its parts.
func splitNamedEntry(lit *ast.CompositeLit) (string, *ast.CompositeLit, bool) {
	if len(lit.Elts) != 2 {
		return "", nil, false
	}
	strLit, ok := astutil.Unparen(lit.Elts[0]).(*ast.BasicLit)
	if !ok || strLit.Kind != token.STRING {
		return "", nil, false
	}
	inner, ok := entryComposite(lit.Elts[1])
	if !ok {
		return "", nil, false
	}
	id, err := strconv.Unquote(strLit.Value)
	if err != nil {
		return "", nil, false
	}
	return id, inner, true
}

// Describe an expression's syntactic shape for error messages.
func describeExpr(expr ast.Expr) string {
	switch e := astutil.Unparen(expr).(type) {
	case *ast.CompositeLit:
		if _, isMap := e.Type.(*ast.MapType); isMap {
			return "a map literal"
		}
		return "a composite literal"
	case *ast.Ident:
		return fmt.Sprintf("the identifier %q", e.Name)
	case *ast.BasicLit:
		return fmt.Sprintf("the literal %s", e.Value)
	case *ast.CallExpr:
		return "a function call"
	case *ast.UnaryExpr:
		return fmt.Sprintf("a unary %q expression", e.Op)
	case *ast.KeyValueExpr:
		return "a `name: value` pair"
	default:
		return fmt.Sprintf("a %T expression", e)
	}
}
