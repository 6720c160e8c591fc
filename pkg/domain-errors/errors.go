// Package derrors defines the coded error type shared by all domain services.
// A Code classifies the failure for callers and for HTTP translation; the
// message stays human readable and safe to log.
package derrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure. String values double as the machine
// readable `error` field of HTTP error envelopes.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal"
	CodeInvariantViolation Code = "invariant_violation"

	CodeInvalidQuantity            Code = "invalid_quantity"
	CodeInsufficientQuantity       Code = "insufficient_quantity"
	CodeBundleNotActive            Code = "bundle_not_active"
	CodeNotWhitelisted             Code = "not_whitelisted"
	CodeInsufficientStorageBalance Code = "insufficient_storage_balance"
	CodeConcurrentModification     Code = "concurrent_modification"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two coded errors on their code, so errors.Is can compare
// sentinel-style coded errors without identity.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New returns a coded error with the given message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Code == code
}

// CodeOf extracts the code of the outermost coded error in the chain,
// defaulting to CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return CodeInternal
}
