package orchestrator

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested orchestration does not exist.
var ErrNotFound = errors.New("orchestration not found")

// ErrAlreadyTerminal indicates an operation was requested on a run that
// has already finished.
var ErrAlreadyTerminal = errors.New("orchestration already finished")

// ConfigError indicates an invalid orchestration configuration.
// It is fatal and returned synchronously from Start.
type ConfigError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid orchestration config: %s", e.Reason)
}

// ItemError indicates a failure scoped to a single work item.
type ItemError struct {
	ItemID string
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %s: %v", e.ItemID, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ItemError) Unwrap() error {
	return e.Err
}
