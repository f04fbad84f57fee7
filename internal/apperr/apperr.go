package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies an error for the caller that has to surface it.
type Code string

const (
	CodeValidation    Code = "validation"
	CodeAuthorization Code = "authorization"
	CodeFetch         Code = "fetch"
	CodeNotFound      Code = "not_found"
	CodeConflict      Code = "conflict"
	CodeTransport     Code = "transport"
	CodeTimeout       Code = "timeout"
	CodeInternal      Code = "internal"
)

// Error is the application error carried across package boundaries
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two application errors by code and message,
// so the sentinel values below work with wrapped copies.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) error {
	return &Error{Code: code, Message: message, Err: err}
}

func Validation(msg string) error    { return New(CodeValidation, msg) }
func Authorization(msg string) error { return New(CodeAuthorization, msg) }
func NotFound(msg string) error      { return New(CodeNotFound, msg) }
func Conflict(msg string) error      { return New(CodeConflict, msg) }

func Fetch(msg string, err error) error     { return Wrap(CodeFetch, msg, err) }
func Transport(msg string, err error) error { return Wrap(CodeTransport, msg, err) }
func Internal(msg string, err error) error  { return Wrap(CodeInternal, msg, err) }

// CodeOf returns the code of the first application error in err's chain.
// Context expiry is reported as a timeout even when it was never wrapped.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FromContext converts a context failure into a timeout error, keeping any
// other error as it is.
func FromContext(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, op+" timed out", err)
	}
	return err
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Something went wrong"
}
