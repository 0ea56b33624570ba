// Package dErrors provides coded domain errors for the retention engine.
//
// Services construct these at the boundary between infrastructure facts
// (sentinel errors from stores) and caller-facing failures. Transport layers
// translate codes to status codes; nothing outside this package matches on
// error strings.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for callers and transports.
type Code string

const (
	// CodeBadRequest marks a malformed request (bad body, missing parameter).
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks a well-formed request carrying an invalid value
	// (too-short reason, unknown enum member, out-of-range statutory period).
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks an absent record. Cross-tenant access reports this
	// same code; existence in another tenant must not be distinguishable.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a state conflict, e.g. applying a hold over an
	// active hold.
	CodeConflict Code = "conflict"
	// CodeLegalHoldActive marks a disposal blocked by an unexpired legal
	// hold. The wrapped error carries the hold expiry.
	CodeLegalHoldActive Code = "legal_hold_active"
	// CodeTenantContextRequired marks an operation invoked without a
	// resolved tenant or actor. Always fail-closed, never defaulted.
	CodeTenantContextRequired Code = "tenant_context_required"
	// CodeImmutableRecord marks a write attempt against a sealed ledger
	// entry or disposal certificate.
	CodeImmutableRecord Code = "immutable_record"
	// CodeDestructionFailed marks a failed destruction execution. No
	// certificate or ledger entry exists for the attempt.
	CodeDestructionFailed Code = "destruction_failed"
	// CodeInvariantViolation marks a broken domain invariant detected at
	// runtime, e.g. a ledger chain mismatch.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks an unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Message is safe to surface to callers.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// New constructs a coded error with a caller-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted caller-safe message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode at call sites that check a single
// code in a conditional.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error carries no code.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
