// Package provider defines the contract of the hosted identity backend.
package provider

import (
	"context"
	"time"
)

type OAuthProvider string

const (
	Google OAuthProvider = "google"
	Apple  OAuthProvider = "apple"
)

// User is the identity as the provider reports it.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	AppMetadata      AppMetadata    `json:"app_metadata"`
	UserMetadata     map[string]any `json:"user_metadata"`
	CreatedAt        time.Time      `json:"created_at"`
}

type AppMetadata struct {
	Provider  string   `json:"provider,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

// MetadataString returns the first non empty string value among keys.
func (u *User) MetadataString(keys ...string) string {
	for _, k := range keys {
		if s, ok := u.UserMetadata[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Session is a token pair issued by the provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// SignUpResult carries the created identity. Session is nil when the provider requires
// email confirmation before issuing tokens.
type SignUpResult struct {
	User    User
	Session *Session
}

type OAuthOptions struct {
	RedirectTo  string
	QueryParams map[string]string
}

// OAuthRequest is the start of a redirect flow. Verifier must be kept until the callback
// to complete a PKCE exchange.
type OAuthRequest struct {
	URL      string
	Verifier string
}

type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	AuthorizeURL(ctx context.Context, p OAuthProvider, opts OAuthOptions) (*OAuthRequest, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	// SessionFromTokens completes an implicit flow where tokens arrive in the URL fragment.
	SessionFromTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdatePassword(ctx context.Context, accessToken, password string) (*User, error)
	GetUser(ctx context.Context, accessToken string) (*User, error)
	// OnAuthStateChange registers fn for auth notifications and returns its unsubscribe func.
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
	// Configured is false when the backend URL or key are unset or placeholders.
	Configured() bool
}
