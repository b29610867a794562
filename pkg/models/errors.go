package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the simulation pipeline. Callers match them with
// errors.Is; the concrete errors carry the detail.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidDateRange        = errors.New("invalid date range")
	ErrInvalidCapitalStructure = errors.New("invalid capital structure")
)

// InvalidInputError lists every missing or out-of-range field of an input
// bundle so the caller can fix them in one pass.
type InvalidInputError struct {
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

// AddMissing records a required field that was absent.
func (e *InvalidInputError) AddMissing(field string) {
	e.Missing = append(e.Missing, field)
}

// AddInvalid records a field whose value is outside its documented range.
func (e *InvalidInputError) AddInvalid(field, reason string) {
	e.Invalid = append(e.Invalid, field+": "+reason)
}

// Empty reports whether no problem was recorded.
func (e *InvalidInputError) Empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

// OrNil returns e as an error, or nil when nothing was recorded.
func (e *InvalidInputError) OrNil() error {
	if e == nil || e.Empty() {
		return nil
	}
	return e
}

func (e *InvalidInputError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, "; "))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, " | "))
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// DateRangeError wraps ErrInvalidDateRange.
func DateRangeError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDateRange, fmt.Sprintf(format, args...))
}

// CapitalStructureError wraps ErrInvalidCapitalStructure.
func CapitalStructureError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCapitalStructure, fmt.Sprintf(format, args...))
}
