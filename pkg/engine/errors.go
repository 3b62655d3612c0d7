package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies kernel errors by how the cycle reacts to them.
type ErrorClass string

const (
	// ErrorClassValidation marks a malformed intent rejected before queuing.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassExecution marks a failed destination write. Non-fatal unless strict.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassReplayMismatch marks a replay whose checksum differed. Reported, never fatal.
	ErrorClassReplayMismatch ErrorClass = "replay_mismatch"

	// ErrorClassUnavailable marks a ledger store that cannot be reached. Aborts the cycle.
	ErrorClassUnavailable ErrorClass = "unavailable"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Destination is the ledger table involved, if any.
	Destination string `json:"destination,omitempty"`

	// IntentID is the write intent that failed, if any.
	IntentID string `json:"intent_id,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Destination != "" {
		msg += fmt.Sprintf(" (destination=%s)", e.Destination)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// ErrorClass returns the class as a plain string for telemetry.
func (e *EngineError) ErrorClass() string {
	return string(e.Class)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassValidation,
		Code:    ErrCodeValidation,
		Message: message,
		Err:     err,
	}
}

// NewExecutionError creates a new execution error.
func NewExecutionError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassExecution,
		Code:    ErrCodeWriteFailed,
		Message: message,
		Err:     err,
	}
}

// NewUnavailableError creates a new store-unavailable error.
func NewUnavailableError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassUnavailable,
		Code:    ErrCodeStoreUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewReplayMismatchError creates an error describing a replay checksum mismatch.
func NewReplayMismatchError(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassReplayMismatch,
		Code:    ErrCodeReplayMismatch,
		Message: message,
	}
}

// WithDestination adds destination context to an error.
func (e *EngineError) WithDestination(destination string) *EngineError {
	e.Destination = destination
	return e
}

// WithIntent adds the failing intent ID to an error.
func (e *EngineError) WithIntent(intentID string) *EngineError {
	e.IntentID = intentID
	return e
}

// WithCode sets the error code.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value any) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// IsExecution returns true if the error is an execution error.
func IsExecution(err error) bool {
	return hasClass(err, ErrorClassExecution)
}

// IsUnavailable returns true if the ledger store was unavailable.
func IsUnavailable(err error) bool {
	return hasClass(err, ErrorClassUnavailable)
}

// IsReplayMismatch returns true if the error reports a replay mismatch.
func IsReplayMismatch(err error) bool {
	return hasClass(err, ErrorClassReplayMismatch)
}

// ErrorCode extracts the code from an EngineError chain, or "".
func ErrorCode(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeWriteFailed        = "WRITE_FAILED"
	ErrCodeUnknownDestination = "UNKNOWN_DESTINATION"
	ErrCodePolicyDenied       = "POLICY_DENIED"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeSeedNotFound       = "SEED_NOT_FOUND"
	ErrCodeReplayMismatch     = "REPLAY_MISMATCH"
)

// ErrTableNotFound is returned by stores reading a table that was never
// created. Callers loading cross-cycle state treat it as empty history.
var ErrTableNotFound = errors.New("table not found")
