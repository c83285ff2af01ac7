// Package fakeprovider is an in memory identity provider for tests and local development.
package fakeprovider

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

var _ provider.Provider = (*FakeProvider)(nil)

// Op names a provider call, for failure injection and call counting.
type Op string

const (
	OpSignUp         Op = "signup"
	OpSignIn         Op = "signin"
	OpAuthorize      Op = "authorize"
	OpExchange       Op = "exchange"
	OpFromTokens     Op = "from_tokens"
	OpRefresh        Op = "refresh"
	OpSignOut        Op = "signout"
	OpUpdatePassword Op = "update_password"
	OpGetUser        Op = "get_user"
)

// Messages match the real backend so callers can localise them.
var (
	ErrInvalidCredentials = &provider.Error{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	ErrAlreadyRegistered  = &provider.Error{Status: 422, Code: "user_already_exists", Message: "Email already registered"}
	ErrInvalidRefresh     = &provider.Error{Status: 400, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"}
	ErrInvalidJWT         = &provider.Error{Status: 401, Code: "bad_jwt", Message: "invalid JWT"}
	ErrInvalidGrant       = &provider.Error{Status: 400, Code: "invalid_grant", Message: "invalid flow state, no valid flow state found"}
)

type account struct {
	user         provider.User
	passwordHash []byte
}

type FakeProvider struct {
	provider.Emitter

	mu            sync.Mutex
	accounts      map[string]*account // by user id
	emails        map[string]string   // email to user id
	refreshTokens map[string]string   // refresh token to user id
	challenges    map[string]struct{}
	codes         map[string]pendingCode
	failures      map[Op]error
	calls         map[Op]int

	signingKey    []byte
	tokenTTL      time.Duration
	autoConfirm   bool
	configured    bool
	nowTime       func() time.Time
	beforeRefresh func()
}

type pendingCode struct {
	userID    string
	challenge string
}

type Option func(*FakeProvider)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(p *FakeProvider) {
		p.nowTime = nowFunc
	}
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(p *FakeProvider) {
		p.tokenTTL = ttl
	}
}

// WithEmailConfirmation makes SignUp return no session until the address is confirmed.
func WithEmailConfirmation() Option {
	return func(p *FakeProvider) {
		p.autoConfirm = false
	}
}

// Unconfigured makes Configured report false.
func Unconfigured() Option {
	return func(p *FakeProvider) {
		p.configured = false
	}
}

// WithBeforeRefresh runs fn at the start of every RefreshSession call.
func WithBeforeRefresh(fn func()) Option {
	return func(p *FakeProvider) {
		p.beforeRefresh = fn
	}
}

func New(options ...Option) *FakeProvider {
	p := &FakeProvider{
		accounts:      make(map[string]*account),
		emails:        make(map[string]string),
		refreshTokens: make(map[string]string),
		challenges:    make(map[string]struct{}),
		codes:         make(map[string]pendingCode),
		failures:      make(map[Op]error),
		calls:         make(map[Op]int),
		signingKey:    []byte(uuid.NewString()),
		tokenTTL:      time.Hour,
		autoConfirm:   true,
		configured:    true,
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (p *FakeProvider) Fail(op Op, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

// Calls returns how many times op was invoked.
func (p *FakeProvider) Calls(op Op) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *FakeProvider) Configured() bool {
	return p.configured
}

// begin counts op and returns its injected failure. Caller holds mu.
func (p *FakeProvider) begin(op Op) error {
	p.calls[op]++
	return p.failures[op]
}

func (p *FakeProvider) SignUp(_ context.Context, email, password string, metadata map[string]any) (*provider.SignUpResult, error) {
	p.mu.Lock()
	if err := p.begin(OpSignUp); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if _, ok := p.emails[email]; ok {
		p.mu.Unlock()
		return nil, ErrAlreadyRegistered
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		p.mu.Unlock()
		return nil, errors.Wrap(err, "[FakeProvider.SignUp] hash")
	}

	user := provider.User{
		ID:           uuid.NewString(),
		Email:        email,
		AppMetadata:  provider.AppMetadata{Provider: "email", Providers: []string{"email"}},
		UserMetadata: metadata,
		CreatedAt:    p.nowTime(),
	}
	if p.autoConfirm {
		confirmed := p.nowTime()
		user.EmailConfirmedAt = &confirmed
	}
	p.accounts[user.ID] = &account{user: user, passwordHash: hash}
	p.emails[email] = user.ID

	result := &provider.SignUpResult{User: user}
	if p.autoConfirm {
		result.Session = p.issue(user)
	}
	p.mu.Unlock()

	if result.Session != nil {
		p.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: result.Session})
	}
	return result, nil
}

func (p *FakeProvider) SignInWithPassword(_ context.Context, email, password string) (*provider.Session, error) {
	p.mu.Lock()
	if err := p.begin(OpSignIn); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	acc, ok := p.accounts[p.emails[email]]
	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)) != nil {
		p.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	session := p.issue(acc.user)
	p.mu.Unlock()

	p.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return session, nil
}

func (p *FakeProvider) AuthorizeURL(_ context.Context, op provider.OAuthProvider, opts provider.OAuthOptions) (*provider.OAuthRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpAuthorize); err != nil {
		return nil, err
	}

	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)
	p.challenges[challenge] = struct{}{}

	q := url.Values{}
	q.Set("provider", string(op))
	q.Set("redirect_to", opts.RedirectTo)
	q.Set("code_challenge", challenge)
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	return &provider.OAuthRequest{URL: "https://fake.provider/authorize?" + q.Encode(), Verifier: verifier}, nil
}

// IssueCode simulates the user approving the consent screen for the flow started with
// authorizeURL. The identity is created on first use.
func (p *FakeProvider) IssueCode(authorizeURL string, email string, metadata map[string]any) (string, error) {
	u, err := url.Parse(authorizeURL)
	if err != nil {
		return "", err
	}
	challenge := u.Query().Get("code_challenge")
	providerName := u.Query().Get("provider")

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.challenges[challenge]; !ok {
		return "", errors.New("[FakeProvider.IssueCode] unknown flow")
	}
	delete(p.challenges, challenge)

	userID, ok := p.emails[email]
	if !ok {
		confirmed := p.nowTime()
		user := provider.User{
			ID:               uuid.NewString(),
			Email:            email,
			EmailConfirmedAt: &confirmed,
			AppMetadata:      provider.AppMetadata{Provider: providerName, Providers: []string{providerName}},
			UserMetadata:     metadata,
			CreatedAt:        p.nowTime(),
		}
		p.accounts[user.ID] = &account{user: user}
		p.emails[email] = user.ID
		userID = user.ID
	}

	code := uuid.NewString()
	p.codes[code] = pendingCode{userID: userID, challenge: challenge}
	return code, nil
}

func (p *FakeProvider) ExchangeCode(_ context.Context, code, verifier string) (*provider.Session, error) {
	p.mu.Lock()
	if err := p.begin(OpExchange); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	pending, ok := p.codes[code]
	if !ok || oauth2.S256ChallengeFromVerifier(verifier) != pending.challenge {
		p.mu.Unlock()
		return nil, ErrInvalidGrant
	}
	delete(p.codes, code)
	session := p.issue(p.accounts[pending.userID].user)
	p.mu.Unlock()

	p.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return session, nil
}

// IssueTokens signs in email directly and returns the raw tokens, as an implicit flow
// would put them in the redirect fragment.
func (p *FakeProvider) IssueTokens(email string) (*provider.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[p.emails[email]]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return p.issue(acc.user), nil
}

func (p *FakeProvider) SessionFromTokens(_ context.Context, accessToken, refreshToken string, expiresAt time.Time) (*provider.Session, error) {
	p.mu.Lock()
	if err := p.begin(OpFromTokens); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	acc, claims, err := p.verify(accessToken)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if expiresAt.IsZero() {
		expiresAt = claims.ExpiresAt.Time
	}
	session := &provider.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         acc.user,
	}
	p.mu.Unlock()

	p.Emit(provider.AuthEvent{Type: provider.SignedIn, Session: session})
	return session, nil
}

func (p *FakeProvider) RefreshSession(_ context.Context, refreshToken string) (*provider.Session, error) {
	if p.beforeRefresh != nil {
		p.beforeRefresh()
	}

	p.mu.Lock()
	if err := p.begin(OpRefresh); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	userID, ok := p.refreshTokens[refreshToken]
	if !ok {
		p.mu.Unlock()
		return nil, ErrInvalidRefresh
	}
	delete(p.refreshTokens, refreshToken)
	session := p.issue(p.accounts[userID].user)
	p.mu.Unlock()

	p.Emit(provider.AuthEvent{Type: provider.TokenRefreshed, Session: session})
	return session, nil
}

func (p *FakeProvider) SignOut(_ context.Context, accessToken string) error {
	defer p.Emit(provider.AuthEvent{Type: provider.SignedOut})

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpSignOut); err != nil {
		return err
	}
	acc, _, err := p.verify(accessToken)
	if err != nil {
		return nil
	}
	for token, userID := range p.refreshTokens {
		if userID == acc.user.ID {
			delete(p.refreshTokens, token)
		}
	}
	return nil
}

func (p *FakeProvider) UpdatePassword(_ context.Context, accessToken, password string) (*provider.User, error) {
	p.mu.Lock()
	if err := p.begin(OpUpdatePassword); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	acc, _, err := p.verify(accessToken)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		p.mu.Unlock()
		return nil, errors.Wrap(err, "[FakeProvider.UpdatePassword] hash")
	}
	acc.passwordHash = hash
	user := acc.user
	p.mu.Unlock()

	p.Emit(provider.AuthEvent{Type: provider.UserUpdated})
	return &user, nil
}

func (p *FakeProvider) GetUser(_ context.Context, accessToken string) (*provider.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpGetUser); err != nil {
		return nil, err
	}
	acc, _, err := p.verify(accessToken)
	if err != nil {
		return nil, err
	}
	user := acc.user
	return &user, nil
}

// RevokeAll invalidates every refresh token, as an administrator logging the user out
// elsewhere would.
func (p *FakeProvider) RevokeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = make(map[string]string)
}

// issue mints a token pair for user. Caller holds mu.
func (p *FakeProvider) issue(user provider.User) *provider.Session {
	now := p.nowTime()
	expiresAt := now.Add(p.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		panic(err)
	}
	refresh := strings.ReplaceAll(uuid.NewString(), "-", "")
	p.refreshTokens[refresh] = user.ID

	return &provider.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt,
		User:         user,
	}
}

// verify checks the signature and expiry of accessToken. Caller holds mu.
func (p *FakeProvider) verify(accessToken string) (*account, *jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(*jwt.Token) (any, error) {
		return p.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(p.nowTime))
	if err != nil {
		return nil, nil, ErrInvalidJWT
	}
	acc, ok := p.accounts[claims.Subject]
	if !ok {
		return nil, nil, ErrInvalidJWT
	}
	return acc, claims, nil
}
