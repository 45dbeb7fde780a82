package market

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the marketplace core wraps exactly one
// of these, so callers classify with errors.Is.
var (
	// ErrUnauthenticated means no credential was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized means the credential did not resolve to an agent.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is known but lacks the role or eligibility.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation is illegal in the entity's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict means a uniqueness constraint would be violated.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput means the request failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Error is a classified marketplace error carrying a caller-safe reason.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s (%v)", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
}

// Unwrap exposes both the kind and any underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, reason string) error {
	return &Error{Kind: kind, Reason: reason}
}

// Unauthenticated reports a missing credential.
func Unauthenticated(reason string) error { return newError(ErrUnauthenticated, reason) }

// Unauthorized reports an invalid credential.
func Unauthorized(reason string) error { return newError(ErrUnauthorized, reason) }

// Forbidden reports a role or eligibility failure.
func Forbidden(reason string) error { return newError(ErrForbidden, reason) }

// NotFound reports a missing entity.
func NotFound(resource, id string) error {
	return newError(ErrNotFound, fmt.Sprintf("%s '%s' not found", resource, id))
}

// InvalidState reports an illegal transition or precondition.
func InvalidState(reason string) error { return newError(ErrInvalidState, reason) }

// Conflict reports a uniqueness violation, keeping the store error as cause.
func Conflict(reason string, cause error) error {
	return &Error{Kind: ErrConflict, Reason: reason, Err: cause}
}

// InvalidInput reports a validation failure.
func InvalidInput(format string, args ...any) error {
	return newError(ErrInvalidInput, fmt.Sprintf(format, args...))
}

// KindOf returns the kind sentinel wrapped by err, or nil for unclassified
// (internal) errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrUnauthenticated, ErrUnauthorized, ErrForbidden, ErrNotFound,
		ErrInvalidState, ErrConflict, ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Reason returns the caller-safe message of a classified error.
func Reason(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Reason
	}
	return "internal error"
}

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsForbidden(err error) bool    { return errors.Is(err, ErrForbidden) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
