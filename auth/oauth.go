package auth

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/go-advisor-auth/audit"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/jrsteele09/go-advisor-auth/storage"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// OAuthRedirect is where the user has to be sent to continue an OAuth sign in.
type OAuthRedirect struct {
	Provider provider.OAuthProvider
	URL      string
}

var oauthEvents = map[provider.OAuthProvider]struct{ started, failed audit.Event }{
	provider.Google: {audit.GoogleSignInStarted, audit.GoogleSignInFailed},
	provider.Apple:  {audit.AppleSignInStarted, audit.AppleSignInFailed},
}

func (s *Service) SignInWithGoogle(ctx context.Context) (*OAuthRedirect, error) {
	return s.startOAuth(ctx, provider.Google)
}

func (s *Service) SignInWithApple(ctx context.Context) (*OAuthRedirect, error) {
	return s.startOAuth(ctx, provider.Apple)
}

func (s *Service) startOAuth(ctx context.Context, p provider.OAuthProvider) (*OAuthRedirect, error) {
	if !s.provider.Configured() {
		return nil, &Error{Kind: KindConfiguration, Message: oauthNotConfigured[p], Err: ErrProviderNotConfigured}
	}
	events := oauthEvents[p]

	opts := provider.OAuthOptions{RedirectTo: s.cfg.RedirectURL}
	if p == provider.Google {
		opts.QueryParams = map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		}
	}
	req, err := s.provider.AuthorizeURL(ctx, p, opts)
	if err == nil && req.Verifier != "" {
		err = errors.Wrap(s.sessionStore.Set(ctx, pkceVerifierKey, req.Verifier), "[Service.startOAuth] store verifier")
	}
	if err != nil {
		failure := s.failure("startOAuth", err, oauthFailed[p])
		s.audit.Log(ctx, events.failed, "", audit.Details{"error": failure.Message})
		return nil, failure
	}

	s.audit.Log(ctx, events.started, "", nil)
	return &OAuthRedirect{Provider: p, URL: req.URL}, nil
}

// HandleOAuthCallback completes an OAuth sign in from the URL the provider redirected to.
// An authorization code is exchanged with the stored PKCE verifier; tokens in the fragment
// are verified and used as they are.
func (s *Service) HandleOAuthCallback(ctx context.Context, callbackURL *url.URL) (*users.User, error) {
	query := callbackURL.Query()
	fragment, err := url.ParseQuery(callbackURL.Fragment)
	if err != nil {
		fragment = url.Values{}
	}
	for _, params := range []url.Values{query, fragment} {
		if code := params.Get("error"); code != "" {
			message := msgSignInFailed
			if description := params.Get("error_description"); description != "" {
				message = LocalizeProviderMessage(description)
			}
			s.logger.Warn().Str("error", code).Str("description", params.Get("error_description")).Msg("oauth sign in rejected")
			return nil, &Error{Kind: KindProvider, Message: message, Err: errors.Wrap(ErrOAuthDenied, code)}
		}
	}

	code := query.Get("code")
	accessToken := fragment.Get("access_token")
	if code == "" && accessToken == "" {
		return nil, &Error{Kind: KindProvider, Message: msgSignInFailed, Err: ErrNoSession}
	}

	var ps *provider.Session
	if code != "" {
		ps, err = s.exchangeCode(ctx, code)
	} else {
		done := s.initiate()
		ps, err = s.provider.SessionFromTokens(ctx, accessToken, fragment.Get("refresh_token"), fragmentExpiry(fragment, s.nowTime()))
		done()
	}
	if err != nil {
		return nil, s.failure("HandleOAuthCallback", err, msgCallback)
	}

	profile, err := s.completeSignIn(ctx, ps)
	if err != nil {
		return nil, s.failure("HandleOAuthCallback", err, msgCallback)
	}
	s.audit.Log(provider.WithAccessToken(ctx, ps.AccessToken), audit.OAuthSignInSucceeded, profile.ID, audit.Details{
		"provider": ps.User.AppMetadata.Provider,
	})
	return profile, nil
}

func (s *Service) exchangeCode(ctx context.Context, code string) (*provider.Session, error) {
	verifier, err := s.sessionStore.Get(ctx, pkceVerifierKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &Error{Kind: KindProvider, Message: msgCallback, Err: ErrMissingVerifier}
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.exchangeCode] load verifier")
	}
	if err := s.sessionStore.Remove(ctx, pkceVerifierKey); err != nil {
		s.logger.Warn().Err(err).Msg("failed to remove pkce verifier")
	}

	done := s.initiate()
	defer done()
	return s.provider.ExchangeCode(ctx, code, verifier)
}

// fragmentExpiry reads expires_at, or else expires_in, from an implicit flow fragment.
// The zero time leaves the expiry to the token itself.
func fragmentExpiry(fragment url.Values, now time.Time) time.Time {
	if at, err := strconv.ParseInt(fragment.Get("expires_at"), 10, 64); err == nil {
		return time.Unix(at, 0)
	}
	if in, err := strconv.ParseInt(fragment.Get("expires_in"), 10, 64); err == nil {
		return now.Add(time.Duration(in) * time.Second)
	}
	return time.Time{}
}

// TokenSource returns an oauth2.TokenSource over the cached session. Tokens about to
// expire are refreshed through RefreshSession before being handed out.
func (s *Service) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, service: s}
}

type tokenSource struct {
	ctx     context.Context
	service *Service
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	session := ts.service.CurrentSession()
	if session == nil {
		return nil, notAuthenticated()
	}
	now := ts.service.nowTime()
	if session.Expired(now) || session.NeedsRefresh(now, ts.service.cfg.RefreshThreshold) {
		refreshed, err := ts.service.RefreshSession(ts.ctx)
		if err != nil {
			return nil, err
		}
		session = refreshed
	}
	return session.Token(), nil
}
