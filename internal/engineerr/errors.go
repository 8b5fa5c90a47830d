// Package engineerr defines the transaction engine's closed set of error
// kinds (spec.md §7) and a single typed error that every service returns,
// so the HTTP layer can map it to a status code with one switch.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of engine error kinds.
type Kind string

const (
	Validation         Kind = "validation"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	InsufficientFunds  Kind = "insufficient_funds"
	Inconsistency      Kind = "inconsistency"
	Authentication     Kind = "authentication"
	Authorization      Kind = "authorization"
	Lightning          Kind = "lightning"
	Bitcoin            Kind = "bitcoin"
	Database           Kind = "database"
)

// Error is the single error type returned across service boundaries.
type Error struct {
	Kind          Kind
	Sub           string // e.g. "Pay", "Invoice", "Connect", "HealthCheck", "Unsupported", "prepare", "broadcast", "address"
	RequiredMsat  int64  // populated only for InsufficientFunds
	msg           string
	wrapped       error
}

func (e *Error) Error() string {
	if e.Sub != "" {
		if e.wrapped != nil {
			return fmt.Sprintf("%s(%s): %s: %v", e.Kind, e.Sub, e.msg, e.wrapped)
		}
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Sub, e.msg)
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is makes errors.Is(err, target) match when target is an *Error of the
// same Kind, e.g. errors.Is(err, engineerr.New(engineerr.Validation, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, msg string, wrapped error) *Error {
	return &Error{Kind: kind, msg: msg, wrapped: wrapped}
}

func New(kind Kind, msg string) *Error {
	return newErr(kind, msg, nil)
}

func Wrap(kind Kind, msg string, err error) *Error {
	return newErr(kind, msg, err)
}

func NewValidation(msg string) *Error { return New(Validation, msg) }

func NewNotFound(msg string) *Error { return New(NotFound, msg) }

func NewConflict(msg string) *Error { return New(Conflict, msg) }

// NewInsufficientFunds builds the InsufficientFunds(required_msat) error
// shape referenced by spec.md §7/§8.
func NewInsufficientFunds(requiredMsat int64) *Error {
	e := New(InsufficientFunds, fmt.Sprintf("InsufficientFunds(%d)", requiredMsat))
	e.RequiredMsat = requiredMsat
	return e
}

func NewInconsistency(msg string) *Error { return New(Inconsistency, msg) }

func NewAuthentication(msg string) *Error { return New(Authentication, msg) }

func NewAuthorization(msg string) *Error { return New(Authorization, msg) }

// NewLightning builds a Lightning(sub) error, sub one of
// Pay/Invoice/Connect/HealthCheck/Unsupported.
func NewLightning(sub, msg string, wrapped error) *Error {
	e := Wrap(Lightning, msg, wrapped)
	e.Sub = sub
	return e
}

// NewBitcoin builds a Bitcoin(sub) error, sub one of prepare/broadcast/address.
func NewBitcoin(sub, msg string, wrapped error) *Error {
	e := Wrap(Bitcoin, msg, wrapped)
	e.Sub = sub
	return e
}

func NewDatabase(sub, msg string, wrapped error) *Error {
	e := Wrap(Database, msg, wrapped)
	e.Sub = sub
	return e
}

// KindOf extracts the Kind from err; it returns an empty Kind and false
// when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// UserAttributable reports whether a Lightning/Bitcoin sub-error maps to a
// 422 (user-attributable) rather than a 500 (operational) per spec.md §7.
func UserAttributable(sub string) bool {
	switch sub {
	case "Pay", "Invoice", "Unsupported", "prepare", "broadcast", "address":
		return true
	default:
		return false
	}
}
