package matcher

import (
	"errors"
	"fmt"

	"github.com/raaihank/redacted/internal/infotype"
)

// ErrCompilation is matched by CompilationError
var ErrCompilation = errors.New("matcher: compilation failed")

// CompilationError reports a combined pattern that could not be built.
// Individually valid info types should never produce one, so callers
// should surface it rather than skip it.
type CompilationError struct {
	Pattern string
	Reason  string
	Err     error
}

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("matcher: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("matcher: %s", e.Reason)
}

// Is reports whether target is ErrCompilation
func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilation
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// Position is a byte offset span [Start, End) into the scanned text
type Position struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Match is one distinct matched substring together with every place it
// occurred and the info type that classified it
type Match struct {
	Text      string             `json:"text"`
	Positions []Position         `json:"positions"`
	InfoType  *infotype.InfoType `json:"-"`
}

// InfoTypeName returns the classifying info type name
func (m Match) InfoTypeName() string {
	if m.InfoType == nil {
		return ""
	}
	return m.InfoType.Name()
}
