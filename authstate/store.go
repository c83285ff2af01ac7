// Package authstate exposes the session manager as observable state for a user interface:
// the signed in user, a loading flag and a notification for every action outcome.
package authstate

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jrsteele09/go-advisor-auth/audit"
	"github.com/jrsteele09/go-advisor-auth/auth"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/jrsteele09/go-advisor-auth/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const profileLoadTimeout = 10 * time.Second

// Service is the part of *auth.Service the store drives.
type Service interface {
	Subscribe(fn func(auth.Event)) (unsubscribe func())
	Restore(ctx context.Context) (*users.User, error)
	Profile(ctx context.Context, id string) (*users.User, error)
	CurrentSession() *auth.Session
	SignUp(ctx context.Context, email, password string, data auth.SignUpData) (*users.User, error)
	SignIn(ctx context.Context, email, password string) (*users.User, error)
	SignInWithGoogle(ctx context.Context) (*auth.OAuthRedirect, error)
	SignInWithApple(ctx context.Context) (*auth.OAuthRedirect, error)
	HandleOAuthCallback(ctx context.Context, callbackURL *url.URL) (*users.User, error)
	SignOut(ctx context.Context) error
	UpdateProfile(ctx context.Context, update users.Update) (*users.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
	DeleteAccount(ctx context.Context) error
	RefreshSession(ctx context.Context) (*auth.Session, error)
}

var _ Service = (*auth.Service)(nil)

// State is what an interface renders. User is nil when signed out.
type State struct {
	User    *users.User
	Loading bool
}

type Store struct {
	service  Service
	notifier Notifier
	audit    *audit.Logger
	logger   zerolog.Logger

	mu          sync.RWMutex
	user        *users.User
	loading     int
	nextID      int
	subs        map[int]func(State)
	unsubscribe func()
}

type Option func(*Store)

func WithNotifier(notifier Notifier) Option {
	return func(s *Store) {
		s.notifier = notifier
	}
}

// WithAuditLogger records token_refreshed events seen by the store.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(s *Store) {
		s.audit = logger
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func New(service Service, options ...Option) *Store {
	s := &Store{
		service:  service,
		notifier: NotifierFunc(func(Notification) {}),
		logger:   log.Logger,
		subs:     make(map[int]func(State)),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Mount subscribes to the service and restores the persisted session. Loading is set until
// the restore completes.
func (s *Store) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.service.Subscribe(s.onEvent)
	}
	s.mu.Unlock()

	done := s.begin()
	defer done()

	user, err := s.service.Restore(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to restore session")
		s.notify(LevelError, msgLoadProfile)
		s.setUser(nil)
		return err
	}
	s.setUser(user)
	return nil
}

// Unmount stops following the service. The current state is kept.
func (s *Store) Unmount() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Subscribe calls fn with every new state and returns its unsubscribe func.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

func (s *Store) SignUp(ctx context.Context, email, password string, data auth.SignUpData) bool {
	done := s.begin()
	defer done()

	if _, err := s.service.SignUp(ctx, email, password, data); err != nil {
		s.fail(err, msgSignUpFailed)
		return false
	}
	s.notify(LevelSuccess, msgSignedUp)
	return true
}

func (s *Store) SignIn(ctx context.Context, email, password string) bool {
	done := s.begin()
	defer done()

	if _, err := s.service.SignIn(ctx, email, password); err != nil {
		s.fail(err, msgSignInFailed)
		return false
	}
	s.notify(LevelSuccess, msgSignedIn)
	return true
}

// SignInWithGoogle starts the Google flow. The caller sends the user to the returned URL.
func (s *Store) SignInWithGoogle(ctx context.Context) (*auth.OAuthRedirect, bool) {
	return s.startOAuth(ctx, s.service.SignInWithGoogle)
}

func (s *Store) SignInWithApple(ctx context.Context) (*auth.OAuthRedirect, bool) {
	return s.startOAuth(ctx, s.service.SignInWithApple)
}

func (s *Store) startOAuth(ctx context.Context, start func(context.Context) (*auth.OAuthRedirect, error)) (*auth.OAuthRedirect, bool) {
	done := s.begin()
	defer done()

	redirect, err := start(ctx)
	if err != nil {
		s.fail(err, msgSignInFailed)
		return nil, false
	}
	s.notify(LevelInfo, msgOAuthRedirect[string(redirect.Provider)])
	return redirect, true
}

// CompleteOAuth finishes a redirect flow from the callback URL.
func (s *Store) CompleteOAuth(ctx context.Context, callbackURL *url.URL) bool {
	_, err := s.HandleOAuthCallback(ctx, callbackURL)
	return err == nil
}

// HandleOAuthCallback is CompleteOAuth for callers that render the outcome themselves, such
// as the local callback server.
func (s *Store) HandleOAuthCallback(ctx context.Context, callbackURL *url.URL) (*users.User, error) {
	done := s.begin()
	defer done()

	user, err := s.service.HandleOAuthCallback(ctx, callbackURL)
	if err != nil {
		s.fail(err, msgSignInFailed)
		return nil, err
	}
	s.notify(LevelSuccess, msgSignedIn)
	return user, nil
}

// SignOut always drops the user from the state, even when remote revocation fails.
func (s *Store) SignOut(ctx context.Context) bool {
	done := s.begin()
	defer done()

	err := s.service.SignOut(ctx)
	s.setUser(nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("sign out failed")
		s.notify(LevelError, msgSignOutFailed)
		return false
	}
	s.notify(LevelSuccess, msgSignedOut)
	return true
}

func (s *Store) UpdateProfile(ctx context.Context, update users.Update) bool {
	done := s.begin()
	defer done()

	user, err := s.service.UpdateProfile(ctx, update)
	if err != nil {
		s.fail(err, msgUnexpected)
		return false
	}
	s.setUser(user)
	s.notify(LevelSuccess, msgProfileUpdated)
	return true
}

func (s *Store) ChangePassword(ctx context.Context, currentPassword, newPassword string) bool {
	done := s.begin()
	defer done()

	if err := s.service.ChangePassword(ctx, currentPassword, newPassword); err != nil {
		s.fail(err, msgUnexpected)
		return false
	}
	s.notify(LevelSuccess, msgPasswordChanged)
	return true
}

func (s *Store) DeleteAccount(ctx context.Context) bool {
	done := s.begin()
	defer done()

	if err := s.service.DeleteAccount(ctx); err != nil {
		s.fail(err, msgUnexpected)
		return false
	}
	s.setUser(nil)
	s.notify(LevelSuccess, msgAccountDeleted)
	return true
}

// RefreshSession refreshes on demand. Success is silent; a failure has already signed the
// user out.
func (s *Store) RefreshSession(ctx context.Context) bool {
	done := s.begin()
	defer done()

	session, err := s.service.RefreshSession(ctx)
	if err != nil {
		s.fail(err, msgUnexpected)
		return false
	}
	s.setUser(session.User)
	return true
}

func (s *Store) onEvent(event auth.Event) {
	switch event.Type {
	case auth.EventSignedIn:
		s.setUser(s.loadProfile(event.User))
	case auth.EventSignedOut:
		s.setUser(nil)
	case auth.EventTokenRefreshed:
		s.logger.Debug().Msg("token refreshed")
		s.auditRefresh()
	case auth.EventUserUpdated:
		if event.User != nil {
			s.setUser(event.User)
		}
	}
}

// loadProfile fetches the latest profile for a newly signed in user, falling back to the
// copy carried by the event.
func (s *Store) loadProfile(user *users.User) *users.User {
	if user == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), profileLoadTimeout)
	defer cancel()

	profile, err := s.service.Profile(ctx, user.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to load profile")
		s.notify(LevelError, msgLoadProfile)
		return user
	}
	return profile
}

func (s *Store) auditRefresh() {
	if s.audit == nil {
		return
	}
	session := s.service.CurrentSession()
	if session == nil {
		return
	}
	ctx, cancel := context.WithTimeout(provider.WithAccessToken(context.Background(), session.AccessToken), profileLoadTimeout)
	defer cancel()
	s.audit.Log(ctx, audit.TokenRefreshed, session.User.ID, nil)
}

// begin raises the loading flag until the returned func is called. Overlapping actions
// keep it raised until the last one finishes.
func (s *Store) begin() (done func()) {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	s.publish()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.loading--
			s.mu.Unlock()
			s.publish()
		})
	}
}

func (s *Store) setUser(user *users.User) {
	s.mu.Lock()
	s.user = user.Clone()
	s.mu.Unlock()
	s.publish()
}

func (s *Store) fail(err error, fallback string) {
	message := err.Error()
	if message == "" {
		message = fallback
	}
	s.notify(LevelError, message)
}

func (s *Store) notify(level Level, message string) {
	s.notifier.Notify(Notification{Level: level, Message: message})
}

func (s *Store) publish() {
	s.mu.RLock()
	state := s.snapshot()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(state)
	}
}

// snapshot copies the state. Caller holds mu.
func (s *Store) snapshot() State {
	return State{User: s.user.Clone(), Loading: s.loading > 0}
}
