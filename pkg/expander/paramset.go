package expander

// Core data model for parameter sets extracted from a Define declaration.
// The fields of the structs defined in this file should never be modified
// after normalization.

import (
	"encoding/json"
	"go/ast"
	"strings"

	"github.com/maxgreen01/go-test-expander/pkg/asttools"

	"github.com/go-toolsmith/astequal"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Represents the value bound to a single parameter name within one set.
type ParamValue struct {
	// The expression exactly as authored in the template, retaining its
	// original positions. Used for structural comparison and diagnostics.
	Expr ast.Expr

	// A deep copy of the expression with all positions cleared, so printing
	// it cannot inherit the template's line breaks. Injected bindings and
	// display fragments are rendered from this copy.
	canon ast.Expr

	// The canonical single-layout rendering of the value.
	Text string
}

// Represents one ordered group of parameter name/value bindings for a single
// generated test. Iteration order is authoring order, never sorted.
type ParamSet struct {
	values *orderedmap.OrderedMap[string, *ParamValue]
}

// Create an empty ParamSet.
func NewParamSet() *ParamSet {
	return &ParamSet{values: orderedmap.New[string, *ParamValue]()}
}

// Bind a name to a value, preserving insertion order.
// Returns false if the name is already bound, in which case the set is unchanged.
func (ps *ParamSet) Add(name string, value *ParamValue) bool {
	if _, exists := ps.values.Get(name); exists {
		return false
	}
	ps.values.Set(name, value)
	return true
}

// Get the value bound to a name.
func (ps *ParamSet) Get(name string) (*ParamValue, bool) {
	return ps.values.Get(name)
}

// Return the number of bindings in the set.
func (ps *ParamSet) Len() int {
	return ps.values.Len()
}

// Return the parameter names in insertion order.
func (ps *ParamSet) Names() []string {
	names := make([]string, 0, ps.values.Len())
	for pair := ps.values.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Call fn for each binding in insertion order, stopping early if fn returns false.
func (ps *ParamSet) Each(fn func(name string, value *ParamValue) bool) {
	for pair := ps.values.Oldest(); pair != nil; pair = pair.Next() {
		if !fn(pair.Key, pair.Value) {
			return
		}
	}
}

// Render the set's canonical display form, e.g. `a: 1, b: 2`.
// This is the derived display fragment before any brackets are added.
func (ps *ParamSet) DisplayText() string {
	var sb strings.Builder
	for pair := ps.values.Oldest(); pair != nil; pair = pair.Next() {
		if sb.Len() > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(pair.Key)
		sb.WriteString(": ")
		sb.WriteString(pair.Value.Text)
	}
	return sb.String()
}

// Report whether two sets bind the same names, in the same order, to
// structurally identical value expressions.
func (ps *ParamSet) Equal(other *ParamSet) bool {
	if ps.Len() != other.Len() {
		return false
	}
	a, b := ps.values.Oldest(), other.values.Oldest()
	for a != nil && b != nil {
		if a.Key != b.Key {
			return false
		}
		if !astequal.Expr(a.Value.Expr, b.Value.Expr) {
			return false
		}
		a, b = a.Next(), b.Next()
	}
	return a == nil && b == nil
}

// Marshal the set's bindings as an ordered JSON-friendly representation
// using the canonical value renderings.
func (ps *ParamSet) MarshalJSON() ([]byte, error) {
	type binding struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	bindings := make([]binding, 0, ps.Len())
	for pair := ps.values.Oldest(); pair != nil; pair = pair.Next() {
		bindings = append(bindings, binding{Name: pair.Key, Value: pair.Value.Text})
	}
	return json.Marshal(bindings)
}

// Represents one element of a normalized parameter list: a bare parameter
// set, or a set wrapped with an explicit display id.
type Entry struct {
	// The explicit display id provided by the caller, or "" for bare entries.
	ID string

	// Whether the entry carried an explicit id. Distinguishes `{"", {...}}`
	// from a bare entry, since an empty explicit id is still explicit.
	Named bool

	// The parameter bindings themselves.
	Set *ParamSet
}

//
// =============== Supporting Type Definitions ===============
//

// Represents the authored shape of a parameter list.
type InputForm int

const (
	FormKeyed      InputForm = iota // every entry carries its own variable names as keys
	FormPositional                  // a header row of names followed by zipped value rows
)

func (f InputForm) String() string {
	switch f {
	case FormPositional:
		return "positional"
	default:
		return "keyed"
	}
}

func (f InputForm) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *InputForm) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch strings.ToLower(str) {
	case "positional":
		*f = FormPositional
	default:
		*f = FormKeyed
	}
	return nil
}

// Build a ParamValue from an authored expression, deriving the cleared copy
// and its canonical rendering.
func newParamValue(expr ast.Expr) *ParamValue {
	canon := copyExprWithoutPositions(expr)
	return &ParamValue{
		Expr:  expr,
		canon: canon,
		Text:  asttools.NodeToCanonicalString(canon),
	}
}
