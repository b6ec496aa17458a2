package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every operational failure raised by the core wraps exactly one
// of these, so callers can classify with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("access forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUnexpected   = errors.New("unexpected failure")
)

// Error is an operational error: its message is safe to show to API clients.
type Error struct {
	Kind    error
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(msg string) error { return &Error{Kind: ErrValidation, Message: msg} }

// FieldValidation reports a constraint violation on a single attribute.
func FieldValidation(field, msg string) error {
	return &Error{Kind: ErrValidation, Message: msg, Field: field}
}

func NotFound(msg string) error     { return &Error{Kind: ErrNotFound, Message: msg} }
func Unauthorized(msg string) error { return &Error{Kind: ErrUnauthorized, Message: msg} }
func Forbidden(msg string) error    { return &Error{Kind: ErrForbidden, Message: msg} }
func Conflict(msg string) error     { return &Error{Kind: ErrConflict, Message: msg} }

// Unexpected marks a failure whose message is still meant for the client,
// e.g. an outbound email that could not be delivered.
func Unexpected(msg string) error { return &Error{Kind: ErrUnexpected, Message: msg} }
