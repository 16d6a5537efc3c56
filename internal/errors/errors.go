// Package errors defines the error taxonomy shared by the sync layer and the API.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies an application error
type ErrorCode string

const (
	// Sync errors
	ErrUnavailable       ErrorCode = "UNAVAILABLE"
	ErrRemoteFault       ErrorCode = "REMOTE_FAULT"
	ErrLocalCorrupt      ErrorCode = "LOCAL_CORRUPT"
	ErrIdentityCollision ErrorCode = "IDENTITY_COLLISION"

	// Input errors
	ErrValidation ErrorCode = "VALIDATION_ERROR"
	ErrNotFound   ErrorCode = "NOT_FOUND"
)

// AppError represents an application error with code and message
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an error code
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Is reports whether any error in err's chain carries code
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of the first AppError in err's chain, or "" if there is none
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
