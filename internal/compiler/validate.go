package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/beatspine/internal/ir"
	"github.com/roach88/beatspine/internal/source"
)

// Validation error codes (E100-E199)
const (
	ErrSchema           = "E100" // value rejected by the CUE schema
	ErrNameEmpty        = "E101" // name is required
	ErrTempoRange       = "E102" // tempo must be positive
	ErrFrameRateRange   = "E103" // frame rate must be positive
	ErrOffsetRange      = "E104" // offsets and lead-in must be non-negative
	ErrDateOrder        = "E105" // endDate before startDate
	ErrPinInvalid       = "E106" // empty pin path or slot below 1
	ErrPlaceholderMode  = "E107" // unknown placeholder mode
	ErrIDMethod         = "E108" // unknown id method
	ErrManifestRequired = "E109" // manifest path is required
	ErrPinUnmatched     = "E110" // pin path names no manifest photo
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a Config for values the schema cannot express, or that
// were set without going through Compile. Returns all errors found.
func Validate(c *Config) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if strings.TrimSpace(c.Name) == "" {
		add(ErrNameEmpty, "name", "name is required and must be non-empty")
	}
	if c.Tempo <= 0 {
		add(ErrTempoRange, "tempo", "tempo must be positive, got %v", c.Tempo)
	}
	if c.FrameRate <= 0 {
		add(ErrFrameRateRange, "frameRate", "frame rate must be positive, got %d", c.FrameRate)
	}
	if c.GapSeconds < 0 {
		add(ErrOffsetRange, "gapSeconds", "lead-in must be non-negative, got %v", c.GapSeconds)
	}
	if c.StartOffset < 0 {
		add(ErrOffsetRange, "startOffset", "offset must be non-negative, got %d", c.StartOffset)
	}
	if c.EndOffset < 0 {
		add(ErrOffsetRange, "endOffset", "offset must be non-negative, got %d", c.EndOffset)
	}
	if !c.StartDate.IsZero() && !c.EndDate.IsZero() && c.EndDate.Before(c.StartDate) {
		add(ErrDateOrder, "endDate", "endDate %s is before startDate %s",
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	for path, slot := range c.Pins {
		if strings.TrimSpace(path) == "" {
			add(ErrPinInvalid, "pins", "pin path must be non-empty")
		}
		if slot < 1 {
			add(ErrPinInvalid, "pins."+path, "pin slot must be at least 1, got %d", slot)
		}
	}
	if c.Placeholders != "" && !ir.ValidPlaceholderModes[c.Placeholders] {
		add(ErrPlaceholderMode, "placeholders", "unknown placeholder mode %q", c.Placeholders)
	}
	if c.IDMethod != "" && !source.ValidIDMethods[c.IDMethod] {
		add(ErrIDMethod, "idMethod", "unknown id method %q", c.IDMethod)
	}
	if strings.TrimSpace(c.Manifest) == "" {
		add(ErrManifestRequired, "manifest", "manifest path is required")
	}

	return errs
}
