package fatal

import (
	"errors"

	"checkengine/internal/domain"
)

// Error marks check failures that must never be turned into a degraded result.
// Params: wrapped root cause.
// Returns: typed fatal error marker.
type Error struct {
	Err error
}

// Error returns wrapped error message.
// Params: none.
// Returns: string representation.
func (e Error) Error() string {
	if e.Err == nil {
		return "fatal error"
	}
	return e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
// Params: none.
// Returns: wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Fatal marks error as non-degradable.
// Params: none.
// Returns: true.
func (Error) Fatal() bool {
	return true
}

// Mark wraps error with fatal marker.
// Params: source error.
// Returns: wrapped error or nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return Error{Err: err}
}

// Is reports whether error must propagate unchanged through the check pipeline.
// Timeouts count as fatal even without explicit marker.
// Params: candidate error.
// Returns: true when fatal marker is present or error is a timeout.
func Is(err error) bool {
	if err == nil {
		return false
	}
	if domain.IsTimeout(err) {
		return true
	}
	type marker interface {
		Fatal() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Fatal()
}
