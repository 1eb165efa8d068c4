package types

import (
	"errors"
	"fmt"
)

// ErrorClass tells callers whether a failed operation is worth repeating.
type ErrorClass int

const (
	// ClassNone means no error.
	ClassNone ErrorClass = iota
	// ClassTransient failures (network, timeout, 5xx) keep polling.
	ClassTransient
	// ClassRejected failures (4xx, validation, malformed payloads) are shown once and not retried.
	ClassRejected
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRejected:
		return "rejected"
	default:
		return "none"
	}
}

// NetworkTimeoutError is a transport failure or an operation that exceeded its deadline.
type NetworkTimeoutError struct {
	Op  string
	Err error
}

func (e *NetworkTimeoutError) Error() string {
	return fmt.Sprintf("%s: network failure: %v", e.Op, e.Err)
}

func (e *NetworkTimeoutError) Unwrap() error { return e.Err }

// ServerRejectedError is a non-2xx reply. 5xx statuses are still transient.
type ServerRejectedError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerRejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server rejected request (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server rejected request (status %d): %s", e.Op, e.Status, e.Body)
}

// MalformedPayloadError is a response that failed schema validation at the client boundary.
type MalformedPayloadError struct {
	Op     string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s: malformed payload: %s", e.Op, e.Reason)
}

// ValidationError is a local pre-flight failure. No network call was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GenerationFailure wraps an assistant generation error.
type GenerationFailure struct {
	Err error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("assistant generation failed: %v", e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Classify maps any error onto Transient or Rejected.
// Unknown errors are treated as transient so polling keeps going.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return ClassRejected
	}
	var malformed *MalformedPayloadError
	if errors.As(err, &malformed) {
		return ClassRejected
	}
	var rejected *ServerRejectedError
	if errors.As(err, &rejected) {
		if rejected.Status >= 500 || rejected.Status == 429 || rejected.Status == 408 {
			return ClassTransient
		}
		return ClassRejected
	}
	return ClassTransient
}

// IsTransient reports whether err should be retried on the next tick.
func IsTransient(err error) bool { return Classify(err) == ClassTransient }

// IsRejected reports whether err must not be retried.
func IsRejected(err error) bool { return Classify(err) == ClassRejected }

// IsValidation reports whether err is a local pre-flight failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
