// Package errkind is the closed failure taxonomy shared by the ledger,
// content store and HTTP layers.
//
// Callers branch on Kind. Message keeps the upstream diagnostic for
// operators and may change between versions; do not match on it.
package errkind

import (
	"errors"
	"fmt"
)

type Kind string

const (
	CredentialNotFound   Kind = "CredentialNotFound"
	CredentialUnreadable Kind = "CredentialUnreadable"
	ConnectionFailed     Kind = "ConnectionFailed"
	IdentityFailed       Kind = "IdentityFailed"
	StoreUnavailable     Kind = "StoreUnavailable"
	StoreWriteFailed     Kind = "StoreWriteFailed"
	ValidationFailed     Kind = "ValidationFailed"
	NotFound             Kind = "NotFound"
	Unauthorized         Kind = "Unauthorized"
	UpstreamUnavailable  Kind = "UpstreamUnavailable"
	Unknown              Kind = "Unknown"
)

var allKinds = []Kind{
	CredentialNotFound, CredentialUnreadable, ConnectionFailed, IdentityFailed,
	StoreUnavailable, StoreWriteFailed, ValidationFailed, NotFound,
	Unauthorized, UpstreamUnavailable, Unknown,
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("errkind: unknown kind %q", s)
}

// Public collapses internal kinds onto the set exposed at the HTTP boundary:
// ValidationFailed, NotFound, Unauthorized, UpstreamUnavailable and Unknown.
func (k Kind) Public() Kind {
	switch k {
	case ValidationFailed, NotFound, Unauthorized, UpstreamUnavailable:
		return k
	case ConnectionFailed, StoreUnavailable:
		return UpstreamUnavailable
	default:
		return Unknown
	}
}

// Error is the structured error carried across package boundaries.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to cause. The cause's text becomes the message.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause}
}

// KindOf returns the Kind of the outermost *Error in err's chain, Unknown
// for unstructured errors and "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the diagnostic message of a structured error, or err's text.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
