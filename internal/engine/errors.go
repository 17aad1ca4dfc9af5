package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected by the engine loop itself,
// as opposed to errors returned by the work it runs.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Seq is the engine clock reading when the error occurred.
	Seq int64
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeStopped indicates the engine no longer accepts or runs tasks.
	ErrCodeStopped RuntimeErrorCode = "ENGINE_STOPPED"

	// ErrCodeTaskPanic indicates a task panicked. The loop recovers and
	// keeps running.
	ErrCodeTaskPanic RuntimeErrorCode = "TASK_PANIC"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Seq != 0 {
		return fmt.Sprintf("%s: %s (seq=%d)", e.Code, e.Message, e.Seq)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStoppedError returns true if the engine refused work because it was
// stopped. Uses errors.As to handle wrapped errors.
func IsStoppedError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStopped
	}
	return false
}

// IsTaskPanic returns true if the error reports a recovered task panic.
func IsTaskPanic(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeTaskPanic
	}
	return false
}

// errStopped is returned by Do and Flush once the engine has stopped.
var errStopped = &RuntimeError{Code: ErrCodeStopped, Message: "engine is stopped"}

func newTaskPanic(v any, seq int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeTaskPanic,
		Message: fmt.Sprintf("task panicked: %v", v),
		Seq:     seq,
	}
}
