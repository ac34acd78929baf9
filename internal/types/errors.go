package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing resolution and publishing errors.
type ErrorCode string

const (
	// ErrCodeConfiguration marks a required value that is missing or malformed in
	// the build configuration (e.g. an unparsable staged build start time).
	ErrCodeConfiguration ErrorCode = "configuration_error"

	// ErrCodeDependencyResolution marks a failure to discover the build tool's
	// own version from its packaged resources.
	ErrCodeDependencyResolution ErrorCode = "dependency_resolution_error"

	// ErrCodeExecutionContext marks an execution context that could not be
	// established (e.g. no readable go.mod in the project directory).
	ErrCodeExecutionContext ErrorCode = "execution_context_error"

	// ErrCodePublishFailed marks a sink that rejected the finished descriptor.
	ErrCodePublishFailed ErrorCode = "publish_failed"

	// ErrCodeUpstreamUnavailable marks a storage backend that is unreachable or
	// whose circuit breaker is open.
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"

	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// ExitCode maps an ErrorCode to the process exit status used by the CLI.
// Unrecognized codes map to 1.
func (c ErrorCode) ExitCode() int {
	switch c {
	case ErrCodeConfiguration:
		return 2
	case ErrCodeDependencyResolution:
		return 3
	case ErrCodeExecutionContext:
		return 4
	case ErrCodePublishFailed, ErrCodeUpstreamUnavailable:
		return 5
	default:
		return 1
	}
}

// AppError is the standard error type returned by the resolver and the sinks.
// Callers inspect Code through errors.As to decide how to abort.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// ExitCode returns the CLI exit status for this error's code.
func (e *AppError) ExitCode() int {
	return e.Code.ExitCode()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "" when
// the chain holds none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
