package errors

import (
	"errors"
	"fmt"
)

var (
	// Draft errors
	ErrDraftNotFound       = errors.New("draft not found")
	ErrUnknownFlow         = errors.New("unknown flow")
	ErrUnknownStep         = errors.New("unknown step")
	ErrStepOutOfOrder      = errors.New("step requires an earlier step to be completed")
	ErrRequestIDAlreadySet = errors.New("request id already set for this flow")

	// Submission errors
	ErrAlreadySubmitted   = errors.New("request already submitted")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrNoRequest          = errors.New("no submitted request for this flow")
	ErrFlowDisabled       = errors.New("flow is disabled")

	// Verification errors
	ErrAmountNotVerified = errors.New("verified amount missing or not positive")

	// Upstream errors
	ErrUpstreamUnavailable = errors.New("upstream api unavailable")
	ErrUpstreamTimeout     = errors.New("upstream request timeout")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Identity errors
	ErrUnauthorized = errors.New("caller identity is missing")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError is raised before any network call. Kinds lists the step
// error kinds that failed, when the error comes from the step validator.
type ValidationError struct {
	Field   string
	Message string
	Kinds   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// PreconditionError reports that the execute-at-source step failed, so no
// backend request was created.
type PreconditionError struct {
	Message string
	Err     error
}

func (e *PreconditionError) Error() string {
	if e.Message == "" {
		return "precondition failed"
	}
	return "precondition failed: " + e.Message
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// TransportError is a network, timeout or 5xx failure. It is retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerRejectionError is a non-2xx answer or an explicit success=false
// answer from the upstream API.
type ServerRejectionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *ServerRejectionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s rejected (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

// ParseError reports an upstream payload that does not match any known shape.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRetryable reports whether err should be retried by the submission policy.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
