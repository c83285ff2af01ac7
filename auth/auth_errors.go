package auth

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoSession             = errors.New("no active session")
	ErrProviderNotConfigured = errors.New("identity provider not configured")
	ErrMissingVerifier       = errors.New("no pending oauth flow")
	ErrOAuthDenied           = errors.New("oauth sign in denied")
	ErrIdentityChanged       = errors.New("refreshed session belongs to another user")
)

// Kind classifies an *Error for callers that branch on the failure.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindRateLimited      Kind = "rate_limited"
	KindProvider         Kind = "provider"
	KindNotAuthenticated Kind = "not_authenticated"
	KindConfiguration    Kind = "configuration"
	KindUnexpected       Kind = "unexpected"
)

// Error is returned by every Service operation. Message is localized and safe to show to
// the user; Err keeps the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnexpected when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnexpected
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func notAuthenticated() *Error {
	return &Error{Kind: KindNotAuthenticated, Message: msgNotAuthenticated, Err: ErrNoSession}
}

func rateLimited(minutes int) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf(msgRateLimited, minutes)}
}
