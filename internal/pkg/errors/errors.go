package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotSubscribed    = errors.New("no active subscription found")
	ErrStoreUnavailable = errors.New("usage store unavailable")
	ErrUnauthenticated  = errors.New("caller identity required")
	ErrInvalidToken     = errors.New("invalid token")
)

type Error struct {
	Err     error
	Message string
	Code    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
)

// CodeOf returns the machine-readable code carried by err, if any.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// InvalidInput wraps a validation failure so it matches ErrInvalidInput.
func InvalidInput(err error) *Error {
	return &Error{
		Err:     fmt.Errorf("%w: %v", ErrInvalidInput, err),
		Message: err.Error(),
		Code:    CodeInvalidInput,
	}
}

// RateLimitedError is returned when the hourly ceiling has been reached.
// RetryAfter is the fixed client hint; ResetIn is the time actually left
// in the window, in seconds.
type RateLimitedError struct {
	Limit      int
	Count      int
	RetryAfter int
	ResetIn    int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d queries this hour", e.Count, e.Limit)
}

// QuotaExceededError is returned when the monthly quota is used up.
type QuotaExceededError struct {
	Limit int
	Used  int
	Cost  float64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d/%d queries used", e.Used, e.Limit)
}
