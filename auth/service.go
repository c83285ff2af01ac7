// Package auth is the client side session manager: it signs users in and out through the
// identity provider, keeps the profile row in step, caches and persists the session and
// refreshes it before it expires.
package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-advisor-auth/audit"
	"github.com/jrsteele09/go-advisor-auth/internal/config"
	"github.com/jrsteele09/go-advisor-auth/lock"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/jrsteele09/go-advisor-auth/ratelimit"
	"github.com/jrsteele09/go-advisor-auth/security"
	"github.com/jrsteele09/go-advisor-auth/storage"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// externalEventTimeout bounds the profile lookup made for a sign in the service did not start.
	externalEventTimeout = 10 * time.Second
	// refreshTimeout bounds a shared refresh, which outlives the context of the caller that
	// started it.
	refreshTimeout = 30 * time.Second
)

// Deps holds the collaborators of a Service. Provider, Users and Audit are required.
type Deps struct {
	Provider provider.Provider
	Users    users.Repo
	Audit    audit.Repo
	Limiter  *ratelimit.Limiter // defaults to Config.LoginAttemptLimit per LoginAttemptWindow
	Local    storage.Store      // long lived client state, defaults to memory
	Session  storage.Store      // state of the current visit, defaults to memory
	Locker   lock.Locker        // refresh lock, defaults to process local
}

type Config struct {
	RedirectURL          string
	CheckInterval        time.Duration
	RefreshThreshold     time.Duration
	PersistSession       bool
	PreservedStorageKeys []string
	LoginAttemptLimit    int
	LoginAttemptWindow   time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:        time.Minute,
		RefreshThreshold:     5 * time.Minute,
		PersistSession:       true,
		PreservedStorageKeys: []string{"theme", "language"},
		LoginAttemptLimit:    5,
		LoginAttemptWindow:   15 * time.Minute,
	}
}

// ConfigFrom reads the service settings from the environment backed configuration.
func ConfigFrom(c config.Config) Config {
	return Config{
		RedirectURL:          c.GetRedirectURL(),
		CheckInterval:        c.GetSessionCheckInterval(),
		RefreshThreshold:     c.GetRefreshThreshold(),
		PersistSession:       c.GetPersistSession(),
		PreservedStorageKeys: c.GetPreservedStorageKeys(),
		LoginAttemptLimit:    c.GetLoginAttemptLimit(),
		LoginAttemptWindow:   c.GetLoginAttemptWindow(),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = d.RefreshThreshold
	}
	if c.LoginAttemptLimit <= 0 {
		c.LoginAttemptLimit = d.LoginAttemptLimit
	}
	if c.LoginAttemptWindow <= 0 {
		c.LoginAttemptWindow = d.LoginAttemptWindow
	}
}

// Service owns the signed in session. Construct one per client with NewService; every
// observer shares it through Subscribe.
type Service struct {
	provider     provider.Provider
	users        users.Repo
	audit        *audit.Logger
	limiter      *ratelimit.Limiter
	local        storage.Store
	sessionStore storage.Store
	cfg          Config
	monitor      *Monitor

	nowTime        func() time.Time
	logger         zerolog.Logger
	userAgent      string
	disableMonitor bool

	mu      sync.RWMutex
	session *Session

	// ownCalls counts provider calls in flight that the service started itself.
	ownCalls     atomic.Int32
	refreshGroup singleflight.Group
	events       broadcaster
	unsubscribe  func()
	closeOnce    sync.Once
	closed       atomic.Bool
}

type Option func(*Service)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithUserAgent sets the user agent recorded with audit events.
func WithUserAgent(userAgent string) Option {
	return func(s *Service) {
		s.userAgent = userAgent
	}
}

// WithoutMonitor leaves the session monitor stopped. Monitor().Tick can still be driven by hand.
func WithoutMonitor() Option {
	return func(s *Service) {
		s.disableMonitor = true
	}
}

// NewService wires a Service and starts its session monitor.
func NewService(deps Deps, cfg Config, options ...Option) (*Service, error) {
	if deps.Provider == nil {
		return nil, errors.New("[NewService] provider is required")
	}
	if deps.Users == nil {
		return nil, errors.New("[NewService] user repo is required")
	}
	if deps.Audit == nil {
		return nil, errors.New("[NewService] audit repo is required")
	}
	cfg.applyDefaults()

	s := &Service{
		provider:     deps.Provider,
		users:        deps.Users,
		limiter:      deps.Limiter,
		local:        deps.Local,
		sessionStore: deps.Session,
		cfg:          cfg,
		nowTime:      time.Now,
		logger:       log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.limiter == nil {
		s.limiter = ratelimit.New(cfg.LoginAttemptLimit, cfg.LoginAttemptWindow, ratelimit.WithNowTime(s.nowTime))
	}
	if s.local == nil {
		s.local = storage.NewMemory()
	}
	if s.sessionStore == nil {
		s.sessionStore = storage.NewMemory()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocal(lock.WithNowTime(s.nowTime))
	}
	s.audit = audit.NewLogger(deps.Audit,
		audit.WithUserAgent(s.userAgent),
		audit.WithNowTime(s.nowTime),
		audit.WithLogger(s.logger),
	)
	s.monitor = newMonitor(s, locker)
	s.unsubscribe = s.provider.OnAuthStateChange(s.onProviderEvent)

	if !s.disableMonitor {
		s.monitor.Start()
	}
	return s, nil
}

// Close stops the monitor, drops the provider subscription and forgets the cached session.
// Persisted state is left alone.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.monitor.Stop()
		s.unsubscribe()
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
	})
}

func (s *Service) Monitor() *Monitor {
	return s.monitor
}

// Subscribe registers fn for normalized auth events and returns its unsubscribe func.
// fn runs synchronously on the goroutine that changed the state.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.events.subscribe(fn)
}

func (s *Service) SignUp(ctx context.Context, email, password string, data SignUpData) (*users.User, error) {
	email = security.NormalizeEmail(email)
	if err := s.checkRateLimit(ctx, email); err != nil {
		return nil, err
	}
	if err := validateSignUp(email, password, data); err != nil {
		return nil, err
	}
	name := security.SanitizeInput(data.Name)
	phone := security.NormalizePhone(data.Phone)
	city := security.SanitizeInput(data.City)

	done := s.initiate()
	result, err := s.provider.SignUp(ctx, email, password, map[string]any{
		"name":  name,
		"phone": phone,
		"city":  city,
	})
	done()
	if err != nil {
		failure := s.failure("SignUp", err, msgSignUpFailed)
		s.audit.Log(ctx, audit.SignUpFailed, "", audit.Details{"email": email, "error": failure.Message})
		return nil, failure
	}
	if result.User.ID == "" {
		return nil, &Error{Kind: KindUnexpected, Message: msgSignUpFailed, Err: errors.New("[Service.SignUp] provider returned no user")}
	}

	profile := users.New(result.User.ID, email, users.ProviderEmail, s.nowTime())
	profile.Name = name
	profile.Phone = phone
	profile.City = city
	profile.EmailVerified = result.User.EmailConfirmedAt != nil

	rowCtx := ctx
	if result.Session != nil {
		rowCtx = provider.WithAccessToken(ctx, result.Session.AccessToken)
	}
	if err := s.users.Insert(rowCtx, profile); err != nil {
		s.logger.Error().Err(err).Str("user_id", profile.ID).Msg("failed to create profile")
		return nil, s.failure("SignUp", errors.Wrap(err, "[Service.SignUp] insert profile"), msgProfileCreate)
	}
	s.audit.Log(rowCtx, audit.UserRegistered, profile.ID, audit.Details{"email": email})

	if result.Session != nil {
		s.establish(ctx, newSession(result.Session, profile.Clone()))
	}
	return profile, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*users.User, error) {
	email = security.NormalizeEmail(email)
	if err := s.checkRateLimit(ctx, email); err != nil {
		return nil, err
	}

	done := s.initiate()
	ps, err := s.provider.SignInWithPassword(ctx, email, password)
	done()
	if err != nil {
		failure := s.failure("SignIn", err, msgSignIn)
		s.audit.Log(ctx, audit.LoginFailed, "", audit.Details{"email": email, "error": failure.Message})
		return nil, failure
	}

	profile, err := s.completeSignIn(ctx, ps)
	if err != nil {
		return nil, s.failure("SignIn", err, msgSignIn)
	}
	s.audit.Log(provider.WithAccessToken(ctx, ps.AccessToken), audit.UserSignedIn, profile.ID, audit.Details{"email": email})
	return profile, nil
}

// SignOut revokes the session remotely and always clears it locally, along with every
// stored key except the preserved ones. The returned error only reports a failed remote
// revocation.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	var remoteErr error
	if session != nil {
		s.audit.Log(session.withToken(ctx), audit.UserSignedOut, session.User.ID, nil)
		done := s.initiate()
		remoteErr = s.provider.SignOut(ctx, session.AccessToken)
		done()
	}
	s.clearStorage(ctx)
	s.events.publish(EventSignedOut, nil)

	if remoteErr != nil {
		s.logger.Error().Err(remoteErr).Msg("remote sign out failed")
		return &Error{Kind: KindProvider, Message: msgSignOut, Err: remoteErr}
	}
	return nil
}

// RefreshSession exchanges the refresh token for a new token pair. Concurrent callers share
// one provider call, which is not cancelled when a caller gives up waiting. A rejected
// refresh signs the user out and is not retried; an interrupted one leaves the session as
// it is.
func (s *Service) RefreshSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindUnexpected, Message: msgUnexpected, Err: err}
	}
	results := s.refreshGroup.DoChan("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return nil, &Error{Kind: KindUnexpected, Message: msgUnexpected, Err: ctx.Err()}
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session).clone(), nil
	}
}

func (s *Service) refresh(ctx context.Context) (*Session, error) {
	current := s.CurrentSession()
	if current == nil {
		return nil, notAuthenticated()
	}

	done := s.initiate()
	ps, err := s.provider.RefreshSession(ctx, current.RefreshToken)
	done()
	if err == nil && ps.User.ID != current.User.ID {
		err = ErrIdentityChanged
	}
	if err != nil && (interrupted(err) || s.closed.Load()) {
		s.logger.Warn().Err(err).Str("user_id", current.User.ID).Msg("session refresh interrupted")
		return nil, &Error{Kind: KindUnexpected, Message: msgUnexpected, Err: err}
	}
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", current.User.ID).Msg("session refresh failed, signing out")
		if signOutErr := s.SignOut(ctx); signOutErr != nil {
			s.logger.Warn().Err(signOutErr).Msg("sign out after failed refresh")
		}
		return nil, &Error{Kind: KindProvider, Message: msgSessionExpired, Err: err}
	}

	profile := current.User
	if fresh, err := s.users.Get(provider.WithAccessToken(ctx, ps.AccessToken), ps.User.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", ps.User.ID).Msg("failed to reload profile after refresh")
	} else {
		profile = fresh
	}
	session := newSession(ps, profile)

	s.mu.Lock()
	if s.session == nil || s.session.User.ID != session.User.ID {
		s.mu.Unlock()
		return nil, notAuthenticated()
	}
	s.session = session
	s.mu.Unlock()

	s.persist(ctx, session)
	s.audit.Log(session.withToken(ctx), audit.SessionRefreshed, profile.ID, nil)
	s.events.publish(EventTokenRefreshed, profile)
	return session, nil
}

// UpdateProfile applies update to the signed in user's profile. Name and city are
// sanitized, the phone number is normalized and validated and updated_at is stamped.
func (s *Service) UpdateProfile(ctx context.Context, update users.Update) (*users.User, error) {
	current := s.CurrentSession()
	if current == nil {
		return nil, notAuthenticated()
	}
	if err := sanitizeUpdate(&update); err != nil {
		return nil, err
	}
	update.UpdatedAt = s.nowTime()

	updated, err := s.users.Update(current.withToken(ctx), current.User.ID, update)
	if err != nil {
		return nil, s.failure("UpdateProfile", err, msgProfileUpdate)
	}
	s.replaceUser(ctx, updated)
	s.audit.Log(current.withToken(ctx), audit.ProfileUpdated, updated.ID, audit.Details{"fields": updatedFields(update)})
	s.events.publish(EventUserUpdated, updated)
	return updated.Clone(), nil
}

// ChangePassword sets a new password for the signed in user. currentPassword is not
// checked locally; the provider decides whether the session may change it.
func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword, msgWeakNewPassword); err != nil {
		return err
	}
	current := s.CurrentSession()
	if current == nil {
		return notAuthenticated()
	}

	done := s.initiate()
	_, err := s.provider.UpdatePassword(ctx, current.AccessToken, newPassword)
	done()
	if err != nil {
		return s.failure("ChangePassword", err, msgChangePassword)
	}
	s.audit.Log(current.withToken(ctx), audit.PasswordChanged, current.User.ID, nil)
	return nil
}

// DeleteAccount removes the signed in user's profile and signs out.
func (s *Service) DeleteAccount(ctx context.Context) error {
	current := s.CurrentSession()
	if current == nil {
		return notAuthenticated()
	}
	if err := s.users.Delete(current.withToken(ctx), current.User.ID); err != nil {
		return s.failure("DeleteAccount", err, msgDeleteAccount)
	}
	s.audit.Log(current.withToken(ctx), audit.AccountDeleted, current.User.ID, nil)
	if err := s.SignOut(ctx); err != nil {
		s.logger.Warn().Err(err).Str("user_id", current.User.ID).Msg("sign out after account deletion")
	}
	return nil
}

// CurrentSession returns a copy of the cached session, or nil when signed out.
func (s *Service) CurrentSession() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

func (s *Service) CurrentUser() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	return s.session.User.Clone()
}

func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Profile loads the profile of id. Loading the signed in user's own profile also updates
// the cached copy.
func (s *Service) Profile(ctx context.Context, id string) (*users.User, error) {
	current := s.CurrentSession()
	rowCtx := ctx
	if current != nil {
		rowCtx = current.withToken(ctx)
	}
	profile, err := s.users.Get(rowCtx, id)
	if err != nil {
		return nil, s.failure("Profile", err, msgUnexpected)
	}
	if current != nil && current.User.ID == id {
		s.replaceUser(ctx, profile)
	}
	return profile.Clone(), nil
}

// Restore makes the persisted session current, refreshing it when it has already expired.
// It returns the signed in user, or nil when there is nothing to restore.
func (s *Service) Restore(ctx context.Context) (*users.User, error) {
	if !s.cfg.PersistSession {
		return s.CurrentUser(), nil
	}
	session, err := loadSession(ctx, s.local)
	if errors.Is(err, storage.ErrNotFound) {
		return s.CurrentUser(), nil
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable persisted session")
		if err := s.local.Remove(ctx, SessionStorageKey); err != nil {
			s.logger.Warn().Err(err).Msg("failed to remove persisted session")
		}
		return s.CurrentUser(), nil
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	if session.Expired(s.nowTime()) {
		if _, err := s.RefreshSession(ctx); err != nil {
			return nil, err
		}
		return s.CurrentUser(), nil
	}
	if _, err := s.Profile(ctx, session.User.ID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", session.User.ID).Msg("using persisted profile")
	}
	return s.CurrentUser(), nil
}

// completeSignIn turns a fresh provider session into the current session: the profile is
// loaded or created, login stats are recorded and observers are told.
func (s *Service) completeSignIn(ctx context.Context, ps *provider.Session) (*users.User, error) {
	rowCtx := provider.WithAccessToken(ctx, ps.AccessToken)
	profile, err := s.ensureProfile(rowCtx, &ps.User)
	if err != nil {
		return nil, err
	}

	now := s.nowTime()
	if err := s.users.RecordLogin(rowCtx, profile.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", profile.ID).Msg("failed to update login stats")
	} else {
		profile.LoginCount++
		profile.LastLogin = &now
	}

	s.establish(ctx, newSession(ps, profile))
	return profile.Clone(), nil
}

// ensureProfile returns the profile of the identity, creating it with defaults taken from
// the provider's metadata when it does not exist yet.
func (s *Service) ensureProfile(ctx context.Context, identity *provider.User) (*users.User, error) {
	profile, err := s.users.Get(ctx, identity.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, users.ErrNotFound) {
		return nil, errors.Wrap(err, "[Service.ensureProfile] get")
	}

	profile = profileFromIdentity(identity, s.nowTime())
	if err := s.users.Insert(ctx, profile); err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			existing, err := s.users.Get(ctx, identity.ID)
			return existing, errors.Wrap(err, "[Service.ensureProfile] get after conflict")
		}
		s.logger.Error().Err(err).Str("user_id", identity.ID).Msg("failed to create profile")
		return nil, &Error{Kind: KindUnexpected, Message: msgProfileCreate, Err: err}
	}
	return profile, nil
}

func profileFromIdentity(identity *provider.User, now time.Time) *users.User {
	profile := users.New(
		identity.ID,
		security.NormalizeEmail(identity.Email),
		users.ParseAuthProvider(identity.AppMetadata.Provider),
		now,
	)
	profile.Name = security.SanitizeInput(identity.MetadataString("full_name", "name"))
	if profile.Name == "" {
		profile.Name = defaultName
	}
	profile.Phone = security.NormalizePhone(identity.MetadataString("phone"))
	profile.City = security.SanitizeInput(identity.MetadataString("city"))
	if profile.City == "" {
		profile.City = defaultCity
	}
	profile.AvatarURL = identity.MetadataString("avatar_url", "picture")
	profile.EmailVerified = identity.EmailConfirmedAt != nil
	return profile
}

// establish makes session current, persists it and announces the sign in.
func (s *Service) establish(ctx context.Context, session *Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.persist(ctx, session)
	s.events.publish(EventSignedIn, session.User)
}

// replaceUser swaps the cached profile when user is still the signed in one.
func (s *Service) replaceUser(ctx context.Context, user *users.User) {
	s.mu.Lock()
	if s.session == nil || s.session.User.ID != user.ID {
		s.mu.Unlock()
		return
	}
	next := *s.session
	next.User = user.Clone()
	s.session = &next
	s.mu.Unlock()

	s.persist(ctx, &next)
}

// dropSession forgets the cached session without contacting the provider.
func (s *Service) dropSession(ctx context.Context) {
	s.mu.Lock()
	had := s.session != nil
	s.session = nil
	s.mu.Unlock()

	if !had {
		return
	}
	if err := s.sessionStore.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear session storage")
	}
	s.events.publish(EventSignedOut, nil)
}

func (s *Service) persist(ctx context.Context, session *Session) {
	if !s.cfg.PersistSession {
		return
	}
	if err := saveSession(ctx, s.local, session); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist session")
	}
}

func (s *Service) clearStorage(ctx context.Context) {
	if err := storage.ClearExcept(ctx, s.local, s.cfg.PreservedStorageKeys...); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear local storage")
	}
	if err := s.sessionStore.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to clear session storage")
	}
}

func (s *Service) checkRateLimit(ctx context.Context, email string) *Error {
	if s.limiter.Allow(email) {
		return nil
	}
	s.audit.Log(ctx, audit.RateLimitExceeded, "", audit.Details{"email": email})
	return rateLimited(s.limiter.RemainingMinutes(email))
}

// failure converts err into an *Error. Provider and row store messages are localized;
// anything else is logged and reported with fallback.
func (s *Service) failure(op string, err error, fallback string) *Error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	if pe, ok := provider.AsError(err); ok && pe.Message != "" {
		return &Error{Kind: KindProvider, Message: LocalizeProviderMessage(pe.Message), Err: err}
	}
	if message, ok := localizeDataError(err); ok {
		return &Error{Kind: KindProvider, Message: message, Err: err}
	}
	s.logger.Error().Err(err).Str("op", op).Msg("auth operation failed")
	return &Error{Kind: KindUnexpected, Message: fallback, Err: err}
}

// initiate marks a provider call started by the service. Provider events raised while it
// runs are not rebroadcast; the service publishes its own once its state is updated.
func (s *Service) initiate() (done func()) {
	s.ownCalls.Add(1)
	return func() {
		s.ownCalls.Add(-1)
	}
}

// onProviderEvent mirrors provider state changes the service did not cause itself, such as
// a sign in or refresh made through the same provider by another component.
func (s *Service) onProviderEvent(event provider.AuthEvent) {
	if s.ownCalls.Load() > 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), externalEventTimeout)
	defer cancel()

	switch event.Type {
	case provider.SignedOut:
		s.dropSession(ctx)
	case provider.SignedIn, provider.TokenRefreshed:
		if event.Session != nil {
			s.adopt(ctx, event.Session)
		}
	case provider.UserUpdated:
		if user := s.CurrentUser(); user != nil {
			s.events.publish(EventUserUpdated, user)
		}
	}
}

func (s *Service) adopt(ctx context.Context, ps *provider.Session) {
	current := s.CurrentSession()
	if current != nil && current.User.ID == ps.User.ID {
		session := newSession(ps, current.User)
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
		s.persist(ctx, session)
		s.events.publish(EventTokenRefreshed, session.User)
		return
	}

	// The client that started the sign in creates a missing profile.
	profile, err := s.users.Get(provider.WithAccessToken(ctx, ps.AccessToken), ps.User.ID)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", ps.User.ID).Msg("ignoring external sign in")
		return
	}
	s.establish(ctx, newSession(ps, profile))
}

// syncPersisted reconciles the cached session with the persisted one, which another client
// sharing the store may have changed: a newer token pair for the same user is adopted and
// a removed session signs this client out.
func (s *Service) syncPersisted(ctx context.Context) {
	if !s.cfg.PersistSession {
		return
	}
	current := s.CurrentSession()
	if current == nil {
		return
	}

	stored, err := loadSession(ctx, s.local)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Info().Str("user_id", current.User.ID).Msg("session removed by another client")
		s.dropSession(ctx)
		return
	case err != nil:
		s.logger.Warn().Err(err).Msg("failed to read persisted session")
		return
	}
	if stored.User.ID != current.User.ID || !stored.ExpiresAt.After(current.ExpiresAt) {
		return
	}

	s.mu.Lock()
	if s.session == nil || s.session.User.ID != stored.User.ID {
		s.mu.Unlock()
		return
	}
	s.session = stored
	s.mu.Unlock()
	s.events.publish(EventTokenRefreshed, stored.User)
}

// interrupted reports whether err is a cancellation or timeout rather than an answer from
// the provider.
func interrupted(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func updatedFields(update users.Update) []string {
	var fields []string
	if update.Name != nil {
		fields = append(fields, "name")
	}
	if update.Phone != nil {
		fields = append(fields, "phone")
	}
	if update.City != nil {
		fields = append(fields, "city")
	}
	if update.AvatarURL != nil {
		fields = append(fields, "avatar_url")
	}
	if update.Preferences != nil {
		fields = append(fields, "preferences")
	}
	return fields
}
