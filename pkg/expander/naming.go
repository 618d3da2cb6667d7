package expander

// Display-name resolution and composition for generated tests.

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Composed names longer than this many bytes fall back to index naming.
// The ceiling matches the identifier length limit the naming scheme was
// originally designed around, and keeps generated names usable in
// `go test -run` patterns.
const maxTestNameBytes = 255

// Resolve the display fragment for an entry. Explicit ids come back already
// bracketed; derived fragments are the bracket-free canonical rendering of
// the parameter values, and are bracketed later by composeName.
func resolveID(entry Entry) string {
	if entry.Named {
		return "[" + entry.ID + "]"
	}
	return entry.Set.DisplayText()
}

// Compose the full generated test name from the base name and the entry's
// display fragment. When the candidate exceeds the byte ceiling the fragment
// is discarded in favor of the entry's 1-based position, which is lossy but
// deterministic and collision-free within a declaration.
func composeName(base string, entry Entry, index int) string {
	var candidate string
	if entry.Named {
		candidate = base + resolveID(entry)
	} else {
		candidate = base + "[" + resolveID(entry) + "]"
	}

	if len(candidate) > maxTestNameBytes {
		return fmt.Sprintf("%s[%d]", base, index+1)
	}
	return candidate
}

// Derive the generated driver function's identifier from a base test name.
// Words are split on every rune that cannot appear in an identifier, each
// word is capitalized, and the result is prefixed with "Test" unless it
// already satisfies the TestXxx shape the test runner requires.
func driverFuncName(base string) (string, error) {
	var sb strings.Builder
	newWord := true
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || r == '_':
			if newWord {
				sb.WriteRune(unicode.ToUpper(r))
				newWord = false
			} else {
				sb.WriteRune(r)
			}
		case unicode.IsDigit(r):
			sb.WriteRune(r)
			newWord = true
		default:
			newWord = true
		}
	}

	mangled := sb.String()
	if mangled == "" {
		return "", fmt.Errorf("test name %q contains no identifier characters", base)
	}

	if isTestFuncName(mangled) {
		return mangled, nil
	}
	return "Test" + mangled, nil
}

// Report whether a name already satisfies the TestXxx rule: the "Test"
// prefix followed by nothing, or by a rune that is not lowercase.
func isTestFuncName(name string) bool {
	rest, ok := strings.CutPrefix(name, "Test")
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLower(r)
}
