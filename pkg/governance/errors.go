package governance

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is reported when an external call exceeded its deadline.
var ErrTimeout = errors.New("external call timed out")

// ValidationError is returned for malformed requests. Such requests never
// reach scoring.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request: %s", e.Message)
	}
	return fmt.Sprintf("invalid request [field=%s]: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ExternalServiceError wraps a failure of the generator, the moderation
// classifier or the storage collaborator.
type ExternalServiceError struct {
	Service   string // "generator", "moderation", "storage", ...
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service error [service=%s, operation=%s]: %v", e.Service, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExternalServiceError) Unwrap() error {
	return e.Cause
}

// NewExternalServiceError creates a new ExternalServiceError.
func NewExternalServiceError(service, operation string, cause error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:   service,
		Operation: operation,
		Cause:     cause,
	}
}

// PolicyViolation describes a deterministic block. It is an outcome, not a
// fault, and is carried in responses rather than returned up the stack.
type PolicyViolation struct {
	Level  RiskLevel
	Score  float64
	Reason string
}

// Error implements the error interface.
func (e *PolicyViolation) Error() string {
	return fmt.Sprintf("policy violation [level=%s, score=%.2f]: %s", e.Level, e.Score, e.Reason)
}

// NewPolicyViolation creates a PolicyViolation from a risk assessment.
func NewPolicyViolation(a *RiskAssessment) *PolicyViolation {
	return &PolicyViolation{
		Level:  a.Level,
		Score:  a.Score,
		Reason: "request blocked due to high-risk content",
	}
}

// PersistenceError reports that an audit record was not stored.
type PersistenceError struct {
	RecordID string
	Cause    error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [record_id=%s]: %v", e.RecordID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(recordID string, cause error) *PersistenceError {
	return &PersistenceError{RecordID: recordID, Cause: cause}
}

// IsTimeout reports whether err stems from a deadline or ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
