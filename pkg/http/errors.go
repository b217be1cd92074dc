package http

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes carried in the response envelope.
const (
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeNotFound    = "ERR_NOT_FOUND"
	CodeRateLimited = "ERR_RATE_LIMITED"
	CodeUnavailable = "ERR_UNAVAILABLE"
	CodeInternal    = "ERR_INTERNAL"
)

// AppError is an error that knows its HTTP status and envelope code.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
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

// WithError wraps an underlying error. It is logged, never rendered.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithField names the request field the error refers to.
func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

func newAppError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return newAppError(http.StatusNotFound, CodeNotFound, message)
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return newAppError(http.StatusBadRequest, CodeBadRequest, message)
}

// TooManyRequestsError creates a 429 error.
func TooManyRequestsError(message string) *AppError {
	return newAppError(http.StatusTooManyRequests, CodeRateLimited, message)
}

// ServiceUnavailableError creates a 503 error.
func ServiceUnavailableError(message string) *AppError {
	return newAppError(http.StatusServiceUnavailable, CodeUnavailable, message)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return newAppError(http.StatusInternalServerError, CodeInternal, message)
}

// AsAppError unwraps err to an *AppError, or reports a generic internal
// error that hides err from the client.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError("something went wrong").WithError(err)
}
