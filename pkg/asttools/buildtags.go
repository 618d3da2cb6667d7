package asttools

import (
	"bufio"
	"go/build/constraint"
	"os"
	"strings"
)

// Reports whether the file at `path` is gated behind the given build tag,
// i.e. whether its build constraints exclude it from an ordinary build but
// admit it when exactly that tag is set. Files with no constraint lines, or
// with constraints that do not mention the tag, report false.
//
// Only the header of the file (everything before the package clause) is
// read, so this is cheap enough to call on every file during a scan.
func FileRequiresTag(path string, tag string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	var exprs []constraint.Expr
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "package ") {
			break
		}
		if !constraint.IsGoBuild(line) && !constraint.IsPlusBuild(line) {
			continue
		}
		expr, err := constraint.Parse(line)
		if err != nil {
			// An unparsable constraint line is ignored by the Go toolchain
			// rather than reported, so mirror that here.
			continue
		}
		exprs = append(exprs, expr)
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	if len(exprs) == 0 {
		return false, nil
	}

	// Multiple constraint lines combine with AND, matching `go build`.
	eval := func(lookup func(string) bool) bool {
		for _, expr := range exprs {
			if !expr.Eval(lookup) {
				return false
			}
		}
		return true
	}

	withTag := eval(func(t string) bool { return t == tag })
	withoutTag := eval(func(string) bool { return false })
	return withTag && !withoutTag, nil
}
