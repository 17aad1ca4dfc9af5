package binding

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes binding errors.
type ErrorCode string

const (
	// ErrCodeReadFailed indicates a one-shot read or evaluation failed.
	ErrCodeReadFailed ErrorCode = "READ_FAILED"

	// ErrCodeOpsOnly indicates an expression query in an ops-only
	// environment.
	ErrCodeOpsOnly ErrorCode = "OPS_ONLY"

	// ErrCodeQueryPanic indicates the query function panicked.
	ErrCodeQueryPanic ErrorCode = "QUERY_PANIC"

	// ErrCodeSubscribeFailed indicates a subscription could not be opened.
	ErrCodeSubscribeFailed ErrorCode = "SUBSCRIBE_FAILED"

	// ErrCodePollFailed indicates an open subscription failed to poll.
	ErrCodePollFailed ErrorCode = "POLL_FAILED"

	// ErrCodeWriteRejected indicates the server rejected a write.
	ErrCodeWriteRejected ErrorCode = "WRITE_REJECTED"

	// ErrCodeNoTarget indicates a write on a record without an id.
	ErrCodeNoTarget ErrorCode = "NO_TARGET"
)

// ResolutionError reports a failed one-shot read. It is delivered through
// State.Err, never returned.
type ResolutionError struct {
	Code    ErrorCode
	Message string
	// Query is the text of the query that failed, when there is one.
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("%s: %s (query=%s)", e.Code, e.Message, e.Query)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// SubscriptionError reports a failure to open or poll a live handle. It is
// delivered through State.Err, never returned.
type SubscriptionError struct {
	Code    ErrorCode
	Message string
	Label   string
	Err     error
}

func (e *SubscriptionError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("%s: %s (label=%s)", e.Code, e.Message, e.Label)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// WriteError reports a rejected point or tag write. Writers return it to
// their caller.
type WriteError struct {
	Code    ErrorCode
	Message string
	ID      string
	Tag     string
	Err     error
}

func (e *WriteError) Error() string {
	switch {
	case e.ID != "" && e.Tag != "":
		return fmt.Sprintf("%s: %s (id=%s, tag=%s)", e.Code, e.Message, e.ID, e.Tag)
	case e.ID != "":
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsResolutionError returns true if err is or wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsSubscriptionError returns true if err is or wraps a SubscriptionError.
func IsSubscriptionError(err error) bool {
	var se *SubscriptionError
	return errors.As(err, &se)
}

// IsWriteError returns true if err is or wraps a WriteError.
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// NewWriteError wraps a rejected write.
func NewWriteError(id, tag string, err error) *WriteError {
	return &WriteError{
		Code:    ErrCodeWriteRejected,
		Message: err.Error(),
		ID:      id,
		Tag:     tag,
		Err:     err,
	}
}

func newResolutionError(query string, err error) *ResolutionError {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re
	}
	return &ResolutionError{
		Code:    ErrCodeReadFailed,
		Message: err.Error(),
		Query:   query,
		Err:     err,
	}
}

func newSubscriptionError(code ErrorCode, label string, err error) *SubscriptionError {
	return &SubscriptionError{
		Code:    code,
		Message: err.Error(),
		Label:   label,
		Err:     err,
	}
}
