package resonance

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName   = errors.New("morphism name already registered")
	ErrInvalidMorphism = errors.New("invalid morphism")
	ErrNotExecutable   = errors.New("implementation is not executable")
	ErrUnknownMorphism = errors.New("morphism not registered")
)

// DuplicateNameError reports a registration that collides with an existing
// catalog entry.
type DuplicateNameError struct {
	Name            string
	ExistingVersion int
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s: %q (version %d)", ErrDuplicateName, e.Name, e.ExistingVersion)
}

func (e *DuplicateNameError) Unwrap() error {
	return ErrDuplicateName
}
