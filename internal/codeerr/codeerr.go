// Package codeerr defines the typed error taxonomy shared across the
// storage, indexer, cache, and search packages (spec §7).
package codeerr

import (
	"errors"
	"fmt"
)

// Code is one of the taxonomy buckets from §7.
type Code string

const (
	Validation   Code = "validation"
	IO           Code = "io"
	Parse        Code = "parse"
	Index        Code = "index"
	Search       Code = "search"
	Config       Code = "config"
	Storage      Code = "storage"
	Network      Code = "network"
	Auth         Code = "auth"
	Permission   Code = "permission"
	NotFound     Code = "not_found"
	AlreadyExists Code = "already_exists"
	Internal     Code = "internal"
)

// Error is a structured error carrying a taxonomy code, a human message,
// and optionally the offending path/identifier and a wrapped cause.
type Error struct {
	Code    Code
	Message string
	Subject string
	Cause   error
}

func (e *Error) Error() string {
	if e.Subject != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (%s): %v", e.Code, e.Message, e.Subject, e.Cause)
		}
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Subject)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error that wraps cause, preserving it for errors.Is/As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithSubject attaches the offending path or identifier.
func (e *Error) WithSubject(subject string) *Error {
	e.Subject = subject
	return e
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
