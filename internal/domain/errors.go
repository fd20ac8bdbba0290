package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failure for both logging and HTTP mapping.
type ErrorKind string

const (
	ErrInputInvalid       ErrorKind = "input_invalid"
	ErrStageInputMissing  ErrorKind = "stage_input_missing"
	ErrStageOutputMissing ErrorKind = "stage_output_missing"
	ErrRepoUnavailable    ErrorKind = "repository_unavailable"
	ErrContractViolation  ErrorKind = "external_contract_violation"
	ErrPolicyDenied       ErrorKind = "policy_denied"
	ErrCancelled          ErrorKind = "cancelled"
	ErrTamperDetected     ErrorKind = "tamper_detected"
	ErrInternal           ErrorKind = "internal"
)

// Error is the structured error carried across package boundaries.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now().UTC()}
}

// WrapError creates an Error of the given kind around a cause.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now().UTC(), cause: cause}
}

// WithDetails attaches extra context to the error.
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// WithRequestID tags the error with the originating request.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// KindOf extracts the ErrorKind from err, walking the wrap chain. Context
// cancellation and deadline errors map to ErrCancelled; anything else
// unrecognized is ErrInternal.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrCancelled
	}
	return ErrInternal
}
