package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Kind returns the wire name clients branch on.
func (e *AppError) Kind() string {
	return e.Code.Kind()
}

func (e *AppError) StatusCode() int {
	return e.Code.StatusCode()
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrConflict
	ErrState
	ErrNetwork
	ErrTimeout
)

var kinds = map[ErrorCode]string{
	ErrNotFound:     "not_found",
	ErrBadRequest:   "validation",
	ErrUnauthorized: "unauthorized",
	ErrForbidden:    "forbidden",
	ErrInternal:     "internal",
	ErrConflict:     "conflict",
	ErrState:        "state",
	ErrNetwork:      "network",
	ErrTimeout:      "timeout",
}

var statuses = map[ErrorCode]int{
	ErrNotFound:     http.StatusNotFound,
	ErrBadRequest:   http.StatusBadRequest,
	ErrUnauthorized: http.StatusUnauthorized,
	ErrForbidden:    http.StatusForbidden,
	ErrInternal:     http.StatusInternalServerError,
	ErrConflict:     http.StatusConflict,
	ErrState:        http.StatusConflict,
	ErrNetwork:      http.StatusServiceUnavailable,
	ErrTimeout:      http.StatusGatewayTimeout,
}

func (c ErrorCode) Kind() string {
	if k, ok := kinds[c]; ok {
		return k
	}
	return kinds[ErrInternal]
}

func (c ErrorCode) StatusCode() int {
	if s, ok := statuses[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CodeFromKind maps a wire kind back to its code. Unknown kinds are internal errors.
func CodeFromKind(kind string) ErrorCode {
	for code, k := range kinds {
		if k == kind {
			return code
		}
	}
	return ErrInternal
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrConflict,
		Message: message,
		Err:     err,
	}
}

func NewState(message string, err error) *AppError {
	return &AppError{
		Code:    ErrState,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewNetwork(err error) *AppError {
	return &AppError{
		Code:    ErrNetwork,
		Message: "could not reach the scheduling service",
		Err:     err,
	}
}

func NewTimeout(err error) *AppError {
	return &AppError{
		Code:    ErrTimeout,
		Message: "the scheduling service did not respond in time",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

// Validation builds a bad request error carrying per-field messages.
func Validation(message string, fields map[string]string) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Fields:  fields,
	}
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Forbidden(message string) *AppError {
	return &AppError{
		Code:    ErrForbidden,
		Message: message,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrInternal
}

func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	code := CodeOf(err)
	return code == ErrNetwork || code == ErrTimeout
}
