package shared

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

// Error codes understood by the HTTP boundary.
const (
	CodeValidation      Code = "validation"
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeInternal        Code = "internal"
)

// Error is a coded domain error. Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCause returns a copy of e wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Fields: e.Fields, cause: err}
}

var (
	// ErrValidation indicates rejected input.
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
	// ErrUnauthenticated indicates a write attempted without credentials.
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Message: "authentication credentials were not provided"}
	// ErrForbidden indicates an authenticated caller lacking rights.
	ErrForbidden = &Error{Code: CodeForbidden, Message: "you do not have permission to perform this action"}
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "not found"}
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = &Error{Code: CodeConflict, Message: "conflict"}
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = &Error{Code: CodeValidation, Message: "invalid credentials"}
)

// Validation builds a validation error from a field to message map.
func Validation(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Fields: fields}
}

// FieldError builds a validation error for a single field.
func FieldError(field, message string) *Error {
	return Validation(map[string]string{field: message})
}

// Unauthenticated builds an authentication error.
func Unauthenticated(message string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: message}
}

// Forbidden builds an authorization error.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// NotFound builds a not-found error.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// Conflict builds a conflict error.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// CodeOf reports the code of err, CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
