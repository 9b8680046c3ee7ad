package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failed request. Each failure has exactly one kind.
type Kind int

const (
	KindNetwork Kind = iota
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad request"
	case KindServerError:
		return "server error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the classified failure of a request. Status is 0 when no response was received.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Sentinels match any *Error of the same kind through errors.Is.
var (
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrBadRequest   = &Error{Kind: KindBadRequest}
	ErrServerError  = &Error{Kind: KindServerError}
)

func NewError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) IsUnauthorized() bool { return e.Kind == KindUnauthorized }
func (e *Error) IsForbidden() bool    { return e.Kind == KindForbidden }
func (e *Error) IsBadRequest() bool   { return e.Kind == KindBadRequest }
func (e *Error) IsServerError() bool  { return e.Kind == KindServerError }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// KindFromStatus maps a non-2xx status onto a kind. 4xx codes other than
// 401 and 403 are bad requests; everything else unexpected is a server error.
func KindFromStatus(status int) Kind {
	switch {
	case status == 0:
		return KindNetwork
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusForbidden:
		return KindForbidden
	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		return KindBadRequest
	default:
		return KindServerError
	}
}

func networkError(cause error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Network error occurred",
		cause:   cause,
	}
}
