// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrInvalidArgument indicates a caller violated an argument contract
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNilListener indicates an attempt to register a nil retry event listener
	ErrNilListener = fmt.Errorf("%w: attempt to set nil retry event listener", ErrInvalidArgument)

	// ErrInvalidConfig indicates a retry configuration that cannot build a strategy
	ErrInvalidConfig = errors.New("invalid retry configuration")
)

// TransientError marks an error as transient or permanent, overriding
// whatever a detector would otherwise conclude about the wrapped error.
type TransientError struct {
	// Err is the underlying error
	Err error

	// Transient indicates whether the error is worth retrying
	Transient bool
}

// Error implements the error interface
func (e *TransientError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err so that detectors treat it as retryable.
// A nil err stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, Transient: true}
}

// MarkPermanent wraps err so that detectors never retry it.
// A nil err stays nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err, Transient: false}
}

// IsMarkedTransient reports the marker found in err's chain. The second
// result is false when err carries no marker at all.
func IsMarkedTransient(err error) (transient bool, marked bool) {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Transient, true
	}
	return false, false
}
