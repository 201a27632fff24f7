package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMalformedIndex = errors.New("malformed index")
	ErrUnknownScheme  = errors.New("unknown weighting scheme")
	ErrInvalidQuery   = errors.New("invalid query")
	ErrInvalidInput   = errors.New("invalid input")
	ErrIndexSource    = errors.New("index source unavailable")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrInternal       = errors.New("internal error")
	ErrTimeout        = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Malformed reports a precondition violation found while digesting an index.
func Malformed(format string, args ...any) *AppError {
	return Newf(ErrMalformedIndex, http.StatusUnprocessableEntity, format, args...)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrUnknownScheme):
		return http.StatusBadRequest
	case errors.Is(err, ErrMalformedIndex):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIndexSource), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
