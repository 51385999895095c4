package infotype

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName is matched by DuplicateNameError
	ErrDuplicateName = errors.New("infotype: duplicate name")
	// ErrInvalidPattern is matched by InvalidPatternError
	ErrInvalidPattern = errors.New("infotype: invalid pattern")
	// ErrInvalidName indicates a name that cannot be used as a capture group name
	ErrInvalidName = errors.New("infotype: invalid name")
	// ErrUnknownInfoType indicates a lookup for a name that is not registered
	ErrUnknownInfoType = errors.New("infotype: unknown info type")
	// ErrFrozen indicates a mutation attempt on a frozen registry
	ErrFrozen = errors.New("infotype: registry is frozen")
)

// DuplicateNameError is returned when an info type name is already registered
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("infotype: %q is already registered", e.Name)
}

// Is reports whether target is ErrDuplicateName
func (e *DuplicateNameError) Is(target error) bool {
	return target == ErrDuplicateName
}

// InvalidPatternError is returned when a pattern does not compile on its own
type InvalidPatternError struct {
	Name    string
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("infotype: pattern %q for %q does not compile: %v", e.Pattern, e.Name, e.Err)
}

// Is reports whether target is ErrInvalidPattern
func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}
