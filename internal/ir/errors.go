package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pure-computation failures.
type ErrorCode string

const (
	// ErrCodeInvalidConfiguration indicates tempo, duration or offsets that
	// leave no usable slots.
	ErrCodeInvalidConfiguration ErrorCode = "INVALID_CONFIGURATION"

	// ErrCodeCapacityExceeded indicates more assignment units than slots.
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
)

// Error is a fatal failure raised before any partial result is produced.
type Error struct {
	Code    ErrorCode
	Message string

	// Required and Available are set for capacity errors.
	Required  int
	Available int
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewConfigError creates an invalid-configuration error.
func NewConfigError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewCapacityError creates a capacity error for required units vs available slots.
func NewCapacityError(required, available int) *Error {
	return &Error{
		Code:      ErrCodeCapacityExceeded,
		Message:   fmt.Sprintf("%d assignment units for %d available slots", required, available),
		Required:  required,
		Available: available,
	}
}

// IsConfigError reports whether err is (or wraps) an invalid-configuration error.
func IsConfigError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeInvalidConfiguration
	}
	return false
}

// IsCapacityError reports whether err is (or wraps) a capacity error.
func IsCapacityError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeCapacityExceeded
	}
	return false
}
