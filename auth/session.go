package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/jrsteele09/go-advisor-auth/storage"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	// SessionStorageKey is the local storage key the signed in session is persisted under.
	SessionStorageKey = "advisor.auth.session"
	pkceVerifierKey   = "advisor.auth.pkce-verifier"
)

// Session is the signed in state: the provider's token pair and the user's profile.
type Session struct {
	User         *users.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

func newSession(ps *provider.Session, user *users.User) *Session {
	return &Session{
		User:         user,
		AccessToken:  ps.AccessToken,
		RefreshToken: ps.RefreshToken,
		TokenType:    ps.TokenType,
		ExpiresAt:    ps.ExpiresAt,
	}
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.User = s.User.Clone()
	return &c
}

// Expired reports whether the access token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the access token is still valid at now but expires within
// threshold.
func (s *Session) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	left := s.ExpiresAt.Sub(now)
	return left > 0 && left < threshold
}

// Token returns the access token in oauth2 form.
func (s *Session) Token() *oauth2.Token {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		Expiry:       s.ExpiresAt,
	}
}

// withToken returns ctx carrying the session's access token for row store calls.
func (s *Session) withToken(ctx context.Context) context.Context {
	return provider.WithAccessToken(ctx, s.AccessToken)
}

func saveSession(ctx context.Context, store storage.Store, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "[saveSession] marshal")
	}
	return errors.Wrap(store.Set(ctx, SessionStorageKey, string(data)), "[saveSession] set")
}

// loadSession returns storage.ErrNotFound when no session is persisted.
func loadSession(ctx context.Context, store storage.Store) (*Session, error) {
	data, err := store.Get(ctx, SessionStorageKey)
	if err != nil {
		return nil, err
	}
	session := &Session{}
	if err := json.Unmarshal([]byte(data), session); err != nil {
		return nil, errors.Wrap(err, "[loadSession] unmarshal")
	}
	if session.User == nil || session.AccessToken == "" {
		return nil, errors.New("[loadSession] incomplete session")
	}
	return session, nil
}
