// Package partest defines the authoring surface for parameterized test
// templates consumed by the testexpand generator.
//
// A template is an ordinary Go file excluded from every normal build by a
// build constraint (by default `//go:build paramtest`), which means its test
// bodies may reference parameter names as free identifiers while the file
// stays fully parseable. The generator never executes this package; it only
// recognizes Define calls syntactically and rewrites them into generated
// `*_gen_test.go` files containing one t.Run subtest per parameter set.
//
// A declaration looks like:
//
//	var _ = partest.Define("addition", partest.Params{
//		{a: 1, b: 2, expected: 3},
//		{a: 1, b: 2, expected: 4},
//	}, func(t *testing.T) {
//		if a+b != expected {
//			t.Errorf("%d + %d != %d", a, b, expected)
//		}
//	})
//
// Parameter lists take one of two shapes. In keyed form every entry carries
// its own variable names as keys, and an entry may be wrapped with an
// explicit display id:
//
//	partest.Params{
//		{a: 1, b: 2},
//		{"explicit_id", {a: 3, b: 4}},
//	}
//
// In positional form the first entry is a header row of bare variable names
// and every following entry is a row of values zipped against it:
//
//	partest.Params{
//		{a, b, expected},
//		{1, 2, 3},
//		{"explicit_id", {1, 2, 4}},
//	}
//
// The body function may declare a second parameter to receive the result of
// the package's setup function (by default `setupTest`), which the generator
// calls at the top of every generated subtest:
//
//	var _ = partest.Define("with state", partest.Params{...},
//		func(t *testing.T, ctx *AppState) { ... })
//
// Omitting the body entirely registers one skipped stub subtest per
// parameter set.
package partest

// Set documents one named group of values for a single generated test.
// Inside a Params literal the element type is implied, so entries are
// written as bare composite literals.
type Set map[string]any

// Params documents the parameter list of a Define declaration: an ordered
// sequence of parameter sets (keyed form) or a header row followed by value
// rows (positional form).
type Params []Set

// Define marks a parameterized test declaration for expansion.
//
// The call itself is inert: template files never compile into any binary,
// and the generator reads Define calls from the syntax tree without
// evaluating them. The bool result exists so declarations can be bound at
// file scope with `var _ = partest.Define(...)`, mirroring the shape of the
// t.Run registrations it expands into.
func Define(name string, params Params, body ...any) bool {
	_ = name
	_ = params
	_ = body
	return true
}
