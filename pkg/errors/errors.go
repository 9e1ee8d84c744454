package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the different kinds of failures the harvester distinguishes
type ErrorType string

const (
	TypeFetch     ErrorType = "fetch"
	TypeDecode    ErrorType = "decode"
	TypeNoContent ErrorType = "no_content"
	TypeStoreIO   ErrorType = "store_io"
	TypeBrowser   ErrorType = "browser"
	TypeConfig    ErrorType = "config"
	TypeUnknown   ErrorType = "unknown"
)

// Error carries a failure type alongside the message, an optional HTTP status
// code and the underlying cause
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without a cause
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates a typed error around an existing cause
func Wrap(t ErrorType, msg string, err error) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain, or TypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return TypeUnknown
}

// Is reports whether err carries the given type anywhere in its chain
func Is(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	return TypeOf(err) == t
}

// IsRetryable checks if an error should be retried.
// Only fetch failures with a transient status are worth another attempt.
func IsRetryable(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	if e.Type != TypeFetch {
		return false
	}
	return IsRetryableStatusCode(e.Code)
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 408, 429:
		return true
	case 401, 403, 404, 410:
		return false
	default:
		return statusCode >= 500
	}
}
