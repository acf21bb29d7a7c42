package x402

import (
	"errors"
	"fmt"
	"net/http"
)

// Class identifies a payment failure category. Classes are stable wire
// values: they appear verbatim in the "error" field of failure responses.
type Class string

const (
	ClassPaymentRequired        Class = "payment-required"
	ClassInvalidFormat          Class = "invalid-format"
	ClassInvalidAuthorization   Class = "invalid-authorization"
	ClassExpired                Class = "expired"
	ClassReplay                 Class = "replay"
	ClassRejected               Class = "rejected"
	ClassFacilitatorUnavailable Class = "facilitator-unavailable"
	ClassFacilitatorMalformed   Class = "facilitator-malformed"
	ClassChainUnavailable       Class = "chain-unavailable"
	ClassAmountMismatch         Class = "amount-mismatch"
	ClassUnknownTransaction     Class = "unknown-transaction"
	ClassInternal               Class = "internal"
)

// HTTPStatus maps the class to the status code of the response carrying it.
func (c Class) HTTPStatus() int {
	switch c {
	case ClassPaymentRequired, ClassRejected:
		return http.StatusPaymentRequired
	case ClassInvalidFormat, ClassInvalidAuthorization, ClassExpired,
		ClassReplay, ClassAmountMismatch, ClassUnknownTransaction:
		return http.StatusBadRequest
	case ClassFacilitatorUnavailable, ClassFacilitatorMalformed, ClassChainUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Unavailable reports whether the class marks a transient backend outage.
// Only unavailable failures cascade to the next validator backend; every
// other class is terminal for the request.
func (c Class) Unavailable() bool {
	return c == ClassFacilitatorUnavailable || c == ClassChainUnavailable
}

// Error is a classified payment failure. Message is safe to return to
// clients; Err carries the internal cause and is never serialized.
type Error struct {
	Class   Class
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified failure with a client-safe message.
func NewError(class Class, message string) *Error {
	return &Error{Class: class, Message: message}
}

// Errorf creates a classified failure with a formatted message.
func Errorf(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a classified failure around an internal cause.
func WrapError(class Class, message string, err error) *Error {
	return &Error{Class: class, Message: message, Err: err}
}

// ClassOf extracts the class from err. Unclassified errors are internal.
func ClassOf(err error) Class {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassInternal
}

// PublicMessage returns the client-safe message for err. Unclassified
// errors never leak their contents.
func PublicMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "internal error"
}

// IsUnavailable reports whether err is a transient backend failure that
// the validator may retry on another backend.
func IsUnavailable(err error) bool {
	return ClassOf(err).Unavailable()
}
