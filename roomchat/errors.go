package roomchat

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// Transport errors
	ErrorConnection
	ErrorDisconnected
	ErrorSubscription
	ErrorAlreadySubscribed
	ErrorNotSubscribed
	ErrorSessionClosed

	// History errors
	ErrorFetch
	ErrorUnauthorized

	// Client-side errors
	ErrorSendValidation
	ErrorNotReady
	ErrorNoRoom
	ErrorInvalidConfig
	ErrorSerialization
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorSubscription:
		return "subscription_error"
	case ErrorAlreadySubscribed:
		return "already_subscribed"
	case ErrorNotSubscribed:
		return "not_subscribed"
	case ErrorSessionClosed:
		return "session_closed"
	case ErrorFetch:
		return "fetch_error"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorSendValidation:
		return "send_validation_error"
	case ErrorNotReady:
		return "not_ready"
	case ErrorNoRoom:
		return "no_room"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorSerialization:
		return "serialization_error"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// Error is a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with an Error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or ErrorUnknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorUnknown
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	switch CodeOf(err) {
	case ErrorConnection, ErrorDisconnected:
		return true
	default:
		return false
	}
}

// IsFetchError checks if an error came from a history request.
func IsFetchError(err error) bool {
	switch CodeOf(err) {
	case ErrorFetch, ErrorUnauthorized:
		return true
	default:
		return false
	}
}

// asError keeps an existing *Error as is and wraps anything else with code.
func asError(code ErrorCode, message string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return WrapError(code, message, err)
}
