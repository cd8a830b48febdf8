package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout marks an interrupted check cycle; it is never turned into a result.
var ErrTimeout = errors.New("check timed out")

// IsTimeout reports whether err is a check timeout or an expired deadline.
// Params: candidate error.
// Returns: true for ErrTimeout and context.DeadlineExceeded chains.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IgnoreResultsError asks the engine to skip result submission for this round.
// Params: message and, for clusters, the nodes that signalled.
// Returns: error value carried through the yield stream.
type IgnoreResultsError struct {
	Message string
	Nodes   []HostName
}

// NewIgnoreResultsError builds an ignore signal.
// Params: formatted message.
// Returns: error pointer.
func NewIgnoreResultsError(format string, args ...any) *IgnoreResultsError {
	return &IgnoreResultsError{Message: fmt.Sprintf(format, args...)}
}

// Error returns the message.
// Params: none.
// Returns: message text.
func (e *IgnoreResultsError) Error() string {
	return e.Message
}

// AsIgnoreResults extracts ignore signal from error chain.
// Params: candidate error.
// Returns: signal and true when present.
func AsIgnoreResults(err error) (*IgnoreResultsError, bool) {
	var target *IgnoreResultsError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// ContractViolation reports a check plugin output outside the supported variants.
// Params: offending value.
// Returns: fatal plugin contract error.
type ContractViolation struct {
	Value  any
	Reason string
}

// Error describes the offending value.
// Params: none.
// Returns: message text.
func (e *ContractViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("check plugin contract violation: %s (%T)", e.Reason, e.Value)
	}
	return fmt.Sprintf("check plugin contract violation: unsupported output %T", e.Value)
}

// Fatal marks contract violations as non-degradable.
// Params: none.
// Returns: true.
func (*ContractViolation) Fatal() bool {
	return true
}

// ConfigurationError reports malformed configuration found at check time.
// Params: description and optional cause.
// Returns: fatal configuration error.
type ConfigurationError struct {
	Msg string
	Err error
}

// Error returns message with optional cause.
// Params: none.
// Returns: message text.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes cause.
// Params: none.
// Returns: wrapped error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Fatal marks configuration errors as non-degradable.
// Params: none.
// Returns: true.
func (*ConfigurationError) Fatal() bool {
	return true
}

// JoinNodeMessages renders per-node messages as "[node] msg, [node] msg".
// Params: sorted node names and message lookup.
// Returns: joined text.
func JoinNodeMessages(nodes []HostName, messages map[HostName]string) string {
	parts := make([]string, 0, len(nodes))
	for _, node := range nodes {
		parts = append(parts, "["+string(node)+"] "+messages[node])
	}
	return strings.Join(parts, ", ")
}
