package expander

import (
	"encoding/json"
	"fmt"
	"go/token"
	"strings"
)

// Represents the category of a declaration expansion failure.
// Every kind is detected before any generated code is written, so these
// surface as generation-time failures rather than test-execution failures.
type ErrorKind int

const (
	ErrUnknown              ErrorKind = iota
	ErrArityMismatch                  // positional value row length does not equal header length
	ErrUnsupportedContainer           // the parameter argument is not an ordered sequence of parameter sets
	ErrMalformedDeclaration           // the Define call itself does not match any recognized shape
	ErrDuplicateParamSet              // two entries carry structurally identical parameter values
	ErrNameCollision                  // two distinct entries or declarations compose the same name
	ErrMissingSetup                   // a named context pattern with no setup function in the package
	ErrEmitFailure                    // assembled output failed to re-parse (internal)
)

func (k ErrorKind) String() string {
	switch k {
	case ErrArityMismatch:
		return "arityMismatch"
	case ErrUnsupportedContainer:
		return "unsupportedContainer"
	case ErrMalformedDeclaration:
		return "malformedDeclaration"
	case ErrDuplicateParamSet:
		return "duplicateParamSet"
	case ErrNameCollision:
		return "nameCollision"
	case ErrMissingSetup:
		return "missingSetup"
	case ErrEmitFailure:
		return "emitFailure"
	default:
		return "unknown"
	}
}

func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch strings.ToLower(str) {
	case "aritymismatch":
		*k = ErrArityMismatch
	case "unsupportedcontainer":
		*k = ErrUnsupportedContainer
	case "malformeddeclaration":
		*k = ErrMalformedDeclaration
	case "duplicateparamset":
		*k = ErrDuplicateParamSet
	case "namecollision":
		*k = ErrNameCollision
	case "missingsetup":
		*k = ErrMissingSetup
	case "emitfailure":
		*k = ErrEmitFailure
	default:
		*k = ErrUnknown
	}
	return nil
}

// Describes why a single declaration could not be expanded.
// Detection aborts the entire declaration: a declaration either expands
// completely or produces nothing at all.
type ExpandError struct {
	Kind   ErrorKind      // the category of failure
	Pos    token.Position // the source location of the offending construct
	Detail string         // a human-readable description naming the construct
}

func (e *ExpandError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Construct an ExpandError at the position of the given token, resolved through the FileSet.
func newExpandError(kind ErrorKind, fset *token.FileSet, pos token.Pos, format string, args ...any) *ExpandError {
	var position token.Position
	if fset != nil && pos.IsValid() {
		position = fset.Position(pos)
	}
	return &ExpandError{
		Kind:   kind,
		Pos:    position,
		Detail: fmt.Sprintf(format, args...),
	}
}
