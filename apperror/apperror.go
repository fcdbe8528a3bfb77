// Package apperror defines the tagged error kinds surfaced by the booking service.
// Each kind maps to one HTTP status; callers branch on Kind, never on message text.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindServiceUnavailable
	KindDatabase
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindDatabase:
		return "database"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Status is the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Operational reports whether the message may be shown to the caller as is.
func (k Kind) Operational() bool {
	return k == KindValidation || k == KindNotFound || k == KindConflict || k == KindForbidden
}

type Error struct {
	Kind    Kind
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(message string, details ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Conflict(message string, details ...string) *Error {
	return &Error{Kind: KindConflict, Message: message, Details: details}
}

// SeatConflict lists every requested seat that cannot be reserved.
func SeatConflict(labels []string) *Error {
	details := make([]string, len(labels))
	copy(details, labels)
	return &Error{Kind: KindConflict, Message: "Some requested seats are unavailable", Details: details}
}

func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindServiceUnavailable, Message: op, Err: err}
}

func Database(op string, err error) *Error {
	return &Error{Kind: KindDatabase, Message: op, Err: err}
}

// KindOf returns KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func StatusOf(err error) int {
	return KindOf(err).Status()
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func DetailsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// MessageOf returns a caller-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind.Operational() {
		return e.Message
	}
	if KindOf(err) == KindServiceUnavailable {
		return "Payment service is temporarily unavailable"
	}
	return "Internal server error"
}
