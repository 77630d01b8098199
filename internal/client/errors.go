package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies every failure surfaced by the client.
type ErrorKind string

const (
	// KindUnauthorized means the credential was missing, expired or rejected.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindNotFound means the target no longer exists.
	KindNotFound ErrorKind = "not_found"
	// KindValidation means the request was malformed.
	KindValidation ErrorKind = "validation"
	// KindTransient covers timeouts, connection failures, 5xx and undecodable responses.
	KindTransient ErrorKind = "transient"
)

var (
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrNotFound     = errors.New("client: not found")
	ErrValidation   = errors.New("client: validation failed")
	ErrTransient    = errors.New("client: transient failure")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	default:
		return ErrTransient
	}
}

// Error is returned by every failed client call. errors.Is matches it against the
// sentinel of its Kind, so callers can branch with errors.Is(err, ErrNotFound).
type Error struct {
	Kind      ErrorKind
	Action    Action
	Status    int
	Reason    string
	Code      string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "client: %s %s", e.Action, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&builder, " (status %d)", e.Status)
	}
	if e.Reason != "" {
		fmt.Fprintf(&builder, ": %s", e.Reason)
	}
	if e.Code != "" {
		fmt.Fprintf(&builder, " [%s]", e.Code)
	}
	if e.Err != nil {
		fmt.Fprintf(&builder, ": %v", e.Err)
	}
	return builder.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf extracts the taxonomy kind from err.
func KindOf(err error) (ErrorKind, bool) {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Kind, true
	}
	return "", false
}

func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound || status == http.StatusGone:
		return KindNotFound
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return KindTransient
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindTransient
	}
}
