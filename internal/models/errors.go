package models

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is to classify an error returned anywhere in the pipeline.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrBackendFailure = errors.New("backend failure")
	ErrEmptyResult    = errors.New("empty result")
)

// Error is a classified error carrying a message fit for display.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// Errorf returns an Error of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns an Error of the given kind whose message is the formatted
// prefix followed by the cause, e.g. "Error generating insights: timeout".
func WrapError(kind error, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// DisplayMessage returns the display message of the first *Error in err's chain,
// or "" when there is none.
func DisplayMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
