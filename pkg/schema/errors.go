package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvalidEdge        = "INVALID_EDGE"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeDeserialization    = "DESERIALIZATION_FAILURE"
	ErrCodeMetricsUnavailable = "METRICS_UNAVAILABLE"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeExpression         = "EXPRESSION_ERROR"
	ErrCodeStore              = "STORE_ERROR"
)

// VSMError is the structured error type for all value stream map operations.
type VSMError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *VSMError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *VSMError) Unwrap() error {
	return e.Cause
}

// NewError creates a new VSMError.
func NewError(code, message string) *VSMError {
	return &VSMError{Code: code, Message: message}
}

// NewErrorf creates a new VSMError with a formatted message.
func NewErrorf(code, format string, args ...any) *VSMError {
	return &VSMError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *VSMError) WithNode(nodeID string) *VSMError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *VSMError) WithCause(err error) *VSMError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *VSMError) WithDetails(details map[string]any) *VSMError {
	e.Details = details
	return e
}

// HasCode reports whether err is (or wraps) a VSMError with the given code.
func HasCode(err error, code string) bool {
	var vErr *VSMError
	if errors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}
