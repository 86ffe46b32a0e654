package reconcile

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes reconciliation failures.
type ErrorCode string

const (
	// ErrCodeHostUnavailable indicates the host could not be reached.
	ErrCodeHostUnavailable ErrorCode = "HOST_UNAVAILABLE"

	// ErrCodeSettingRejected indicates the host refused a project setting.
	ErrCodeSettingRejected ErrorCode = "SETTING_REJECTED"

	// ErrCodeInvalidState indicates a session operation called out of order.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeSessionLocked indicates another session holds the timeline lock.
	ErrCodeSessionLocked ErrorCode = "SESSION_LOCKED"

	// ErrCodeHostFailure indicates a host call failed where no recovery is
	// possible (resolving, creating or persisting).
	ErrCodeHostFailure ErrorCode = "HOST_FAILURE"
)

// Error is a fatal reconciliation failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the session step that failed.
	Op string

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying host error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, op string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

func hostFailure(op string, err error) *Error {
	return newError(ErrCodeHostFailure, op, err, "host call failed")
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsHostUnavailable reports whether err is a connection failure.
func IsHostUnavailable(err error) bool { return hasCode(err, ErrCodeHostUnavailable) }

// IsSettingRejected reports whether err is a rejected settings write.
func IsSettingRejected(err error) bool { return hasCode(err, ErrCodeSettingRejected) }

// IsInvalidState reports whether err is an out-of-order session call.
func IsInvalidState(err error) bool { return hasCode(err, ErrCodeInvalidState) }

// IsSessionLocked reports whether err is a held session lock.
func IsSessionLocked(err error) bool { return hasCode(err, ErrCodeSessionLocked) }

// IsHostFailure reports whether err is an unrecoverable host call failure.
func IsHostFailure(err error) bool { return hasCode(err, ErrCodeHostFailure) }
