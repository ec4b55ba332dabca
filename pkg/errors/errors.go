// Package errors defines the typed error taxonomy shared across the indexer
// and searcher: configuration errors fail fast and are never retried, while
// store-layer errors are propagated unchanged so the caller's retry policy
// applies.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnknownAttribute is returned when a search names an attribute that
	// is not present in the index configuration.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrMissingKeyAttribute is returned when a change event's key image
	// lacks a configured key attribute.
	ErrMissingKeyAttribute = errors.New("missing key attribute")
	// ErrResourceExists is returned by index creation when the underlying
	// table already exists and ifNotExists was not set.
	ErrResourceExists = errors.New("resource already exists")
	// ErrResourceNotFound is returned by index teardown when the underlying
	// table does not exist and ifExists was not set.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrInvalidInput covers malformed queries and request parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAnalysis wraps a tokenizer or filter failure; it is fatal for the
	// enclosing document and aborts the enclosing batch.
	ErrAnalysis = errors.New("analysis failed")
)

// AppError pairs a sentinel with a human-readable message and an HTTP status
// for the searcher's API surface.
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

// New creates an AppError wrapping the given sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf creates an AppError with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the searcher should return.
// Unknown errors map to 500; store-layer errors are intentionally not
// classified here and surface as internal errors.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrUnknownAttribute),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMissingKeyAttribute):
		return http.StatusBadRequest
	case errors.Is(err, ErrResourceExists):
		return http.StatusConflict
	case errors.Is(err, ErrResourceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
