// Package errors defines the sentinel errors shared by the crawler, indexer
// and search engine, and maps them onto HTTP status codes and user-facing
// messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrInvalidURL     = errors.New("invalid url")
	ErrOutsideSites   = errors.New("url outside configured sites")
	ErrNotFound       = errors.New("not found")
	ErrAlreadyRunning = errors.New("indexing already running")
	ErrNotRunning     = errors.New("indexing not running")
	ErrNotIndexed     = errors.New("site not indexed")
	ErrFetch          = errors.New("fetch failed")
	ErrRemoteStatus   = errors.New("remote returned error status")
	ErrAnalysis       = errors.New("text analysis failed")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrTimeout        = errors.New("operation timed out")
	ErrInternal       = errors.New("internal error")
)

// AppError pairs a sentinel with a message that is safe to show to API
// callers and the HTTP status it should be reported with.
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

// HTTPStatusCode returns the status an error should be reported with. An
// AppError anywhere in the chain wins over the sentinel mapping.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotIndexed):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidURL), errors.Is(err, ErrOutsideSites):
		return http.StatusBadRequest
	case errors.Is(err, ErrFetch), errors.Is(err, ErrRemoteStatus):
		return http.StatusBadGateway
	case errors.Is(err, ErrAnalysis):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text an API caller may see for err. Errors that carry
// no AppError are reported as an opaque internal error.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Error()
}
