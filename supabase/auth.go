package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const defaultTokenType = "bearer"

// sessionResponse is GoTrue's token payload. Sign-up answers with either this or a bare
// user object, depending on whether email confirmation is required.
type sessionResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         provider.User `json:"user"`
}

func (c *Client) toSession(resp *sessionResponse) *provider.Session {
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = defaultTokenType
	}
	expiresAt := unixTime(resp.ExpiresAt)
	if expiresAt.IsZero() && resp.ExpiresIn > 0 {
		expiresAt = c.nowTime().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}
	if expiresAt.IsZero() {
		expiresAt = TokenExpiry(resp.AccessToken)
	}
	return &provider.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    tokenType,
		ExpiresAt:    expiresAt,
		User:         resp.User,
	}
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*provider.SignUpResult, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     metadata,
		},
	}, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.SignUp]")
	}

	var resp sessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrap(err, "[Client.SignUp] decode session")
	}
	if resp.AccessToken == "" {
		var user provider.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, errors.Wrap(err, "[Client.SignUp] decode user")
		}
		return &provider.SignUpResult{User: user}, nil
	}
	session := c.toSession(&resp)
	c.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return &provider.SignUpResult{User: session.User, Session: session}, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*provider.Session, error) {
	session, err := c.token(ctx, "password", map[string]any{"email": email, "password": password})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.SignInWithPassword]")
	}
	c.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return session, nil
}

// AuthorizeURL builds the provider redirect for a PKCE authorization code flow.
func (c *Client) AuthorizeURL(_ context.Context, p provider.OAuthProvider, opts provider.OAuthOptions) (*provider.OAuthRequest, error) {
	if p == "" {
		return nil, errors.New("[Client.AuthorizeURL] provider is required")
	}
	verifier := oauth2.GenerateVerifier()

	query := url.Values{}
	query.Set("provider", string(p))
	if opts.RedirectTo != "" {
		query.Set("redirect_to", opts.RedirectTo)
	}
	query.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
	query.Set("code_challenge_method", "s256")
	for k, v := range opts.QueryParams {
		query.Set(k, v)
	}

	return &provider.OAuthRequest{
		URL:      c.baseURL + authPath + "/authorize?" + query.Encode(),
		Verifier: verifier,
	}, nil
}

func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*provider.Session, error) {
	if code == "" || verifier == "" {
		return nil, errors.New("[Client.ExchangeCode] code and verifier are required")
	}
	session, err := c.token(ctx, "pkce", map[string]any{"auth_code": code, "code_verifier": verifier})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCode]")
	}
	c.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return session, nil
}

// SessionFromTokens builds a session from tokens delivered in a redirect fragment. When a
// key set is configured the access token signature, issuer and expiry are verified first.
func (c *Client) SessionFromTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) (*provider.Session, error) {
	if accessToken == "" {
		return nil, errors.New("[Client.SessionFromTokens] access token is required")
	}

	var subject string
	if c.verifier != nil {
		token, err := c.verifier.Verify(ctx, accessToken)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.SessionFromTokens] verify access token")
		}
		subject = token.Subject
	}

	user, err := c.GetUser(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.SessionFromTokens]")
	}
	if subject != "" && subject != user.ID {
		return nil, errors.New("[Client.SessionFromTokens] token subject does not match user")
	}

	if expiresAt.IsZero() {
		expiresAt = TokenExpiry(accessToken)
	}
	session := &provider.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    defaultTokenType,
		ExpiresAt:    expiresAt,
		User:         *user,
	}
	c.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return session, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*provider.Session, error) {
	if refreshToken == "" {
		return nil, errors.New("[Client.RefreshSession] refresh token is required")
	}
	session, err := c.token(ctx, "refresh_token", map[string]any{"refresh_token": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.RefreshSession]")
	}
	c.Emit(provider.AuthEvent{Type: provider.TokenRefreshed, Session: session})
	return session, nil
}

// SignOut revokes the session server side. Subscribers are told the user signed out even
// when revocation fails, as local state is dropped regardless.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	defer c.Emit(provider.AuthEvent{Type: provider.SignedOut})

	if accessToken == "" {
		return nil
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/logout",
		token:  accessToken,
	}, nil)
	return errors.Wrap(err, "[Client.SignOut]")
}

func (c *Client) UpdatePassword(ctx context.Context, accessToken, password string) (*provider.User, error) {
	var user provider.User
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   authPath + "/user",
		token:  accessToken,
		body:   map[string]any{"password": password},
	}, &user)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.UpdatePassword]")
	}
	c.Emit(provider.AuthEvent{Type: provider.UserUpdated})
	return &user, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*provider.User, error) {
	var user provider.User
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   authPath + "/user",
		token:  accessToken,
	}, &user)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.GetUser]")
	}
	return &user, nil
}

func (c *Client) token(ctx context.Context, grantType string, body map[string]any) (*provider.Session, error) {
	var resp sessionResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   authPath + "/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toSession(&resp), nil
}

// TokenExpiry reads the exp claim of a JWT without verifying it. It returns the zero time
// when the token cannot be parsed or carries no expiry.
func TokenExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
