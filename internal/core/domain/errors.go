package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrTemporary          = errors.New("temporary failure")
	ErrPermanent          = errors.New("permanent upstream failure")
	ErrConflict           = errors.New("conflict")
	ErrDuplicate          = errors.New("duplicate content")
	ErrNoSources          = errors.New("no eligible sources")
	ErrJobNotPending      = errors.New("job is not pending")
	ErrUnsupportedJobType = errors.New("unsupported job type")

	ErrInvalidTransition = errors.New("invalid state transition")
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

// IsRetriable reports whether a failed job should go back to the queue.
// Policy outcomes are terminal; infrastructure and data errors are retried up to the cap.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNoSources),
		errors.Is(err, ErrUnsupportedJobType),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermanent):
		return false
	default:
		return true
	}
}
