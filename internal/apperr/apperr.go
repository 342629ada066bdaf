// Package apperr defines the error taxonomy shared by the quiz workflow and
// its HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuthenticationRequired Kind = "authentication_required"
	KindAuthorizationDenied    Kind = "authorization_denied"
	KindNotFound               Kind = "not_found"
	KindValidation             Kind = "validation"
	KindGeneration             Kind = "generation"
	KindPersistence            Kind = "persistence"
	KindInvalidTransition      Kind = "invalid_transition"
)

// Reasons attached to KindGeneration errors.
const (
	ReasonUpstreamUnavailable = "upstream_unavailable"
	ReasonInvalidSchema       = "invalid_schema"
)

type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += "(" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind (and reason, when the target sets one),
// so errors.Is(err, apperr.ErrNotFound) works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Sentinels for errors.Is checks.
var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrAuthorizationDenied    = &Error{Kind: KindAuthorizationDenied}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrGeneration             = &Error{Kind: KindGeneration}
	ErrUpstreamUnavailable    = &Error{Kind: KindGeneration, Reason: ReasonUpstreamUnavailable}
	ErrInvalidSchema          = &Error{Kind: KindGeneration, Reason: ReasonInvalidSchema}
	ErrPersistence            = &Error{Kind: KindPersistence}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
)

func AuthenticationRequired() error {
	return &Error{Kind: KindAuthenticationRequired, Message: "authentication required"}
}

func AuthorizationDenied(format string, args ...any) error {
	return &Error{Kind: KindAuthorizationDenied, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func Generation(reason string, err error) error {
	return &Error{Kind: KindGeneration, Reason: reason, Err: err}
}

func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthenticationRequired:
		return http.StatusUnauthorized
	case KindAuthorizationDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidTransition:
		return http.StatusConflict
	case KindGeneration:
		return http.StatusBadGateway
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text safe to show a client. Wrapped causes of
// persistence and unknown errors are not exposed.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "Internal server error"
	}
	switch e.Kind {
	case KindPersistence:
		return "Storage unavailable, please retry"
	case KindGeneration:
		if e.Reason == ReasonInvalidSchema {
			return "The model returned an unusable question, please retry"
		}
		return "Question generation is unavailable, please retry"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}
