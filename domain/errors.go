package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the pipeline wraps exactly one of
// ErrConfig, ErrSourceLoad, ErrStorage or ErrProvider, or ErrInvalidInput for
// caller mistakes.
var (
	ErrConfig     = errors.New("config error")
	ErrSourceLoad = errors.New("source load error")
	ErrStorage    = errors.New("storage error")
	ErrProvider   = errors.New("provider error")

	ErrInvalidInput = errors.New("invalid input")

	// ErrCollectionNotFound is always reported together with ErrStorage.
	ErrCollectionNotFound = errors.New("collection not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
