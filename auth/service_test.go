package auth_test

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-advisor-auth/audit"
	fakeauditrepo "github.com/jrsteele09/go-advisor-auth/audit/repofake"
	"github.com/jrsteele09/go-advisor-auth/auth"
	"github.com/jrsteele09/go-advisor-auth/internal/utils"
	"github.com/jrsteele09/go-advisor-auth/lock"
	"github.com/jrsteele09/go-advisor-auth/provider"
	"github.com/jrsteele09/go-advisor-auth/provider/fakeprovider"
	"github.com/jrsteele09/go-advisor-auth/storage"
	"github.com/jrsteele09/go-advisor-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-advisor-auth/users/repofake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "test@example.com"
	testPassword = "Str0ng!Pass"
	testName     = "Ali"
	testPhone    = "0501234567"
	testCity     = "الرياض"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testFixture struct {
	ctx      context.Context
	clock    *testClock
	provider *fakeprovider.FakeProvider
	users    *fakeuserrepo.FakeUserRepo
	audit    *fakeauditrepo.FakeAuditRepo
	local    *storage.Memory
	session  *storage.Memory
	locker   *lock.Local
	service  *auth.Service
}

func setupTestFixture(t *testing.T, options ...fakeprovider.Option) *testFixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	f := &testFixture{
		ctx:      context.Background(),
		clock:    clock,
		provider: fakeprovider.New(append([]fakeprovider.Option{fakeprovider.WithNowTime(clock.Now)}, options...)...),
		users:    fakeuserrepo.NewFakeUserRepo(),
		audit:    fakeauditrepo.NewFakeAuditRepo(),
		local:    storage.NewMemory(),
		session:  storage.NewMemory(),
		locker:   lock.NewLocal(lock.WithNowTime(clock.Now)),
	}
	f.service = f.newService(t)
	return f
}

// newService builds another client sharing the fixture's provider, stores and lock.
func (f *testFixture) newService(t *testing.T) *auth.Service {
	t.Helper()
	cfg := auth.DefaultConfig()
	cfg.RedirectURL = "http://localhost:5173/auth/callback"
	service, err := auth.NewService(auth.Deps{
		Provider: f.provider,
		Users:    f.users,
		Audit:    f.audit,
		Local:    f.local,
		Session:  f.session,
		Locker:   f.locker,
	}, cfg,
		auth.WithNowTime(f.clock.Now),
		auth.WithLogger(zerolog.Nop()),
		auth.WithUserAgent("test-agent"),
		auth.WithoutMonitor(),
	)
	require.NoError(t, err)
	t.Cleanup(service.Close)
	return service
}

func (f *testFixture) signUp(t *testing.T) *users.User {
	t.Helper()
	user, err := f.service.SignUp(f.ctx, testEmail, testPassword, auth.SignUpData{Name: testName, Phone: testPhone, City: testCity})
	require.NoError(t, err)
	return user
}

func requireKind(t *testing.T, err error, kind auth.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, auth.KindOf(err))
}

func TestNewService(t *testing.T) {
	_, err := auth.NewService(auth.Deps{}, auth.DefaultConfig())
	require.Error(t, err)

	_, err = auth.NewService(auth.Deps{Provider: fakeprovider.New(), Users: fakeuserrepo.NewFakeUserRepo()}, auth.DefaultConfig())
	require.Error(t, err)
}

func TestSignUp(t *testing.T) {
	t.Run("creates a free profile with no logins", func(t *testing.T) {
		f := setupTestFixture(t)
		user := f.signUp(t)

		require.Equal(t, testEmail, user.Email)
		require.Equal(t, testName, user.Name)
		require.Equal(t, testPhone, user.Phone)
		require.Equal(t, testCity, user.City)
		require.Equal(t, users.SubscriptionFree, user.SubscriptionType)
		require.Equal(t, 0, user.LoginCount)
		require.Equal(t, users.ProviderEmail, user.AuthProvider)
		require.True(t, user.EmailVerified)
		require.Equal(t, 1, f.users.Len())
		require.True(t, f.service.IsAuthenticated())
		require.Equal(t, user.ID, f.service.CurrentUser().ID)
		require.Contains(t, f.audit.Actions(), audit.UserRegistered)
	})

	t.Run("normalizes email and sanitizes fields", func(t *testing.T) {
		f := setupTestFixture(t)
		user, err := f.service.SignUp(f.ctx, "  Test@Example.COM ", testPassword, auth.SignUpData{
			Name:  "<b>Ali</b>",
			Phone: "050-123-4567",
			City:  " <i>جدة</i> ",
		})
		require.NoError(t, err)
		require.Equal(t, testEmail, user.Email)
		require.Equal(t, "Ali", user.Name)
		require.Equal(t, testPhone, user.Phone)
		require.Equal(t, "جدة", user.City)
	})

	t.Run("weak passwords never reach the provider", func(t *testing.T) {
		f := setupTestFixture(t)
		for _, password := range []string{"Sh0rt!", "alllowercase1!", "ALLUPPERCASE1!", "NoDigitsHere!", "NoSpecial123"} {
			_, err := f.service.SignUp(f.ctx, testEmail, password, auth.SignUpData{Name: testName, Phone: testPhone})
			requireKind(t, err, auth.KindValidation)
			require.True(t, strings.HasPrefix(err.Error(), "كلمة المرور ضعيفة: "), err.Error())
		}
		require.Zero(t, f.provider.Calls(fakeprovider.OpSignUp))
		require.Zero(t, f.users.Len())
	})

	t.Run("validation", func(t *testing.T) {
		f := setupTestFixture(t)
		tests := []struct {
			email   string
			data    auth.SignUpData
			message string
		}{
			{"not-an-email", auth.SignUpData{Name: testName, Phone: testPhone}, "بريد إلكتروني غير صحيح"},
			{testEmail, auth.SignUpData{Name: testName, Phone: "12345"}, "رقم جوال سعودي غير صحيح"},
			{testEmail, auth.SignUpData{Name: testName, Phone: "", City: testCity}, "رقم جوال سعودي غير صحيح"},
			{testEmail, auth.SignUpData{Name: testName, Phone: " - "}, "رقم جوال سعودي غير صحيح"},
			{testEmail, auth.SignUpData{Name: "A", Phone: testPhone}, "الاسم يجب أن يكون حرفين على الأقل"},
		}
		for _, tc := range tests {
			_, err := f.service.SignUp(f.ctx, tc.email, testPassword, tc.data)
			requireKind(t, err, auth.KindValidation)
			require.Equal(t, tc.message, err.Error())
		}
		require.Zero(t, f.provider.Calls(fakeprovider.OpSignUp))
	})

	t.Run("duplicate email is localized", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		require.NoError(t, f.service.SignOut(f.ctx))

		_, err := f.service.SignUp(f.ctx, testEmail, testPassword, auth.SignUpData{Name: testName, Phone: testPhone})
		requireKind(t, err, auth.KindProvider)
		require.Equal(t, "هذا البريد الإلكتروني مسجل مسبقاً", err.Error())
		require.Contains(t, f.audit.Actions(), audit.SignUpFailed)
	})

	t.Run("pending email confirmation leaves the user signed out", func(t *testing.T) {
		f := setupTestFixture(t, fakeprovider.WithEmailConfirmation())
		user := f.signUp(t)
		require.False(t, user.EmailVerified)
		require.False(t, f.service.IsAuthenticated())
		require.Equal(t, 1, f.users.Len())
	})
}

func TestSignIn(t *testing.T) {
	t.Run("records the login and persists the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		require.NoError(t, f.service.SignOut(f.ctx))
		f.clock.Advance(time.Hour)

		user, err := f.service.SignIn(f.ctx, testEmail, testPassword)
		require.NoError(t, err)
		require.Equal(t, 1, user.LoginCount)
		require.NotNil(t, user.LastLogin)
		require.Equal(t, f.clock.Now(), *user.LastLogin)
		require.Equal(t, 1, f.service.CurrentUser().LoginCount)

		_, err = f.local.Get(f.ctx, auth.SessionStorageKey)
		require.NoError(t, err)
		require.Contains(t, f.audit.Actions(), audit.UserSignedIn)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		require.NoError(t, f.service.SignOut(f.ctx))

		_, err := f.service.SignIn(f.ctx, testEmail, "Wr0ng!Pass")
		requireKind(t, err, auth.KindProvider)
		require.Equal(t, "بيانات تسجيل الدخول غير صحيحة", err.Error())
		require.False(t, f.service.IsAuthenticated())
		require.Contains(t, f.audit.Actions(), audit.LoginFailed)
	})

	t.Run("creates a missing profile from provider metadata", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.provider.SignUp(f.ctx, "sara@example.com", testPassword, map[string]any{"full_name": "Sara"})
		require.NoError(t, err)

		user, err := f.service.SignIn(f.ctx, "sara@example.com", testPassword)
		require.NoError(t, err)
		require.Equal(t, "Sara", user.Name)
		require.Equal(t, "الرياض", user.City)
		require.Equal(t, 1, user.LoginCount)
		require.Equal(t, 1, f.users.Len())
	})

	t.Run("unexpected provider failures use the generic message", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Fail(fakeprovider.OpSignIn, context.DeadlineExceeded)

		_, err := f.service.SignIn(f.ctx, testEmail, testPassword)
		requireKind(t, err, auth.KindUnexpected)
		require.Equal(t, "خطأ في تسجيل الدخول", err.Error())
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSignInRateLimit(t *testing.T) {
	f := setupTestFixture(t)

	for i := 0; i < 6; i++ {
		_, err := f.service.SignIn(f.ctx, testEmail, "Wr0ng!Pass")
		require.Error(t, err)
	}
	_, err := f.service.SignIn(f.ctx, testEmail, testPassword)
	requireKind(t, err, auth.KindRateLimited)
	require.Equal(t, fmt.Sprintf("تم تجاوز عدد المحاولات المسموح. حاول مرة أخرى خلال %d دقيقة", 15), err.Error())
	require.Equal(t, 5, f.provider.Calls(fakeprovider.OpSignIn))
	require.Contains(t, f.audit.Actions(), audit.RateLimitExceeded)

	f.clock.Advance(14*time.Minute + 30*time.Second)
	_, err = f.service.SignIn(f.ctx, testEmail, testPassword)
	require.Equal(t, fmt.Sprintf("تم تجاوز عدد المحاولات المسموح. حاول مرة أخرى خلال %d دقيقة", 1), err.Error())

	f.clock.Advance(time.Minute)
	_, err = f.service.SignIn(f.ctx, testEmail, testPassword)
	requireKind(t, err, auth.KindProvider)
	require.Equal(t, 6, f.provider.Calls(fakeprovider.OpSignIn))
}

func TestSignOut(t *testing.T) {
	t.Run("keeps only preserved keys", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		require.NoError(t, f.local.Set(f.ctx, "theme", "dark"))
		require.NoError(t, f.local.Set(f.ctx, "language", "ar"))
		require.NoError(t, f.local.Set(f.ctx, "draft_plan", "{}"))
		require.NoError(t, f.session.Set(f.ctx, "wizard_step", "3"))

		var events []auth.EventType
		f.service.Subscribe(func(e auth.Event) { events = append(events, e.Type) })

		require.NoError(t, f.service.SignOut(f.ctx))
		require.Nil(t, f.service.CurrentSession())
		require.False(t, f.service.IsAuthenticated())

		keys, err := f.local.Keys(f.ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"language", "theme"}, keys)
		keys, err = f.session.Keys(f.ctx)
		require.NoError(t, err)
		require.Empty(t, keys)
		require.Equal(t, []auth.EventType{auth.EventSignedOut}, events)
		require.Contains(t, f.audit.Actions(), audit.UserSignedOut)
	})

	t.Run("clears locally when revocation fails", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.provider.Fail(fakeprovider.OpSignOut, fakeprovider.ErrInvalidJWT)

		err := f.service.SignOut(f.ctx)
		requireKind(t, err, auth.KindProvider)
		require.Equal(t, "خطأ في تسجيل الخروج", err.Error())
		require.Nil(t, f.service.CurrentSession())
		_, err = f.local.Get(f.ctx, auth.SessionStorageKey)
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRefreshSession(t *testing.T) {
	t.Run("issues new tokens for the same user", func(t *testing.T) {
		f := setupTestFixture(t)
		user := f.signUp(t)
		before := f.service.CurrentSession()

		var events []auth.EventType
		f.service.Subscribe(func(e auth.Event) { events = append(events, e.Type) })

		f.clock.Advance(30 * time.Minute)
		session, err := f.service.RefreshSession(f.ctx)
		require.NoError(t, err)
		require.Equal(t, user.ID, session.User.ID)
		require.NotEqual(t, before.AccessToken, session.AccessToken)
		require.NotEqual(t, before.RefreshToken, session.RefreshToken)
		require.True(t, session.ExpiresAt.After(before.ExpiresAt))
		require.Equal(t, session.AccessToken, f.service.CurrentSession().AccessToken)
		require.Equal(t, []auth.EventType{auth.EventTokenRefreshed}, events)
		require.Contains(t, f.audit.Actions(), audit.SessionRefreshed)
	})

	t.Run("failure forces sign out without retrying", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.provider.RevokeAll()

		_, err := f.service.RefreshSession(f.ctx)
		requireKind(t, err, auth.KindProvider)
		require.Nil(t, f.service.CurrentSession())
		require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))
		require.Contains(t, f.audit.Actions(), audit.UserSignedOut)
	})

	t.Run("requires a session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.RefreshSession(f.ctx)
		requireKind(t, err, auth.KindNotAuthenticated)
		require.ErrorIs(t, err, auth.ErrNoSession)
		require.Zero(t, f.provider.Calls(fakeprovider.OpRefresh))
	})

	t.Run("concurrent callers share one provider call", func(t *testing.T) {
		entered, release := blockingRefresh()
		f := setupTestFixture(t, fakeprovider.WithBeforeRefresh(func() {
			entered <- struct{}{}
			<-release
		}))
		f.signUp(t)

		type result struct {
			session *auth.Session
			err     error
		}
		results := make(chan result, 2)
		refresh := func() {
			session, err := f.service.RefreshSession(f.ctx)
			results <- result{session, err}
		}
		go refresh()
		<-entered
		go refresh()
		// Let the second caller join the call in flight.
		time.Sleep(50 * time.Millisecond)
		close(release)

		first, second := <-results, <-results
		require.NoError(t, first.err)
		require.NoError(t, second.err)
		require.Equal(t, first.session.AccessToken, second.session.AccessToken)
		require.Equal(t, first.session.RefreshToken, second.session.RefreshToken)
		require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))
	})

	t.Run("timeout keeps the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.provider.Fail(fakeprovider.OpRefresh, context.DeadlineExceeded)
		f.clock.Advance(56 * time.Minute)

		_, err := f.service.Monitor().Tick(f.ctx)
		requireKind(t, err, auth.KindUnexpected)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		f.requireSignedIn(t)
	})

	t.Run("cancelled caller keeps the session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.clock.Advance(56 * time.Minute)

		ctx, cancel := context.WithCancel(f.ctx)
		cancel()
		_, err := f.service.Monitor().Tick(ctx)
		requireKind(t, err, auth.KindUnexpected)
		require.ErrorIs(t, err, context.Canceled)
		require.Zero(t, f.provider.Calls(fakeprovider.OpRefresh))
		f.requireSignedIn(t)
	})

	t.Run("caller giving up does not cancel the shared refresh", func(t *testing.T) {
		entered, release := blockingRefresh()
		f := setupTestFixture(t, fakeprovider.WithBeforeRefresh(func() {
			entered <- struct{}{}
			<-release
		}))
		f.signUp(t)
		before := f.service.CurrentSession()

		ctx, cancel := context.WithCancel(f.ctx)
		errs := make(chan error, 1)
		go func() {
			_, err := f.service.RefreshSession(ctx)
			errs <- err
		}()
		<-entered
		cancel()
		err := <-errs
		requireKind(t, err, auth.KindUnexpected)
		require.ErrorIs(t, err, context.Canceled)

		close(release)
		require.Eventually(t, func() bool {
			current := f.service.CurrentSession()
			return current != nil && current.AccessToken != before.AccessToken
		}, time.Second, 10*time.Millisecond)
		f.requireSignedIn(t)
	})
}

// blockingRefresh returns the channels of a refresh hook that reports entry and waits to
// be released.
func blockingRefresh() (entered chan struct{}, release chan struct{}) {
	return make(chan struct{}, 2), make(chan struct{})
}

func (f *testFixture) requireSignedIn(t *testing.T) {
	t.Helper()
	require.True(t, f.service.IsAuthenticated())
	_, err := f.local.Get(f.ctx, auth.SessionStorageKey)
	require.NoError(t, err)
	require.Zero(t, f.provider.Calls(fakeprovider.OpSignOut))
	require.NotContains(t, f.audit.Actions(), audit.UserSignedOut)
}

func TestMonitorTick(t *testing.T) {
	t.Run("refreshes once when four minutes remain", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.clock.Advance(56 * time.Minute)

		refreshed, err := f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.True(t, refreshed)
		require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))

		refreshed, err = f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))
	})

	t.Run("leaves a session ten minutes from expiry alone", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.clock.Advance(50 * time.Minute)

		refreshed, err := f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.Zero(t, f.provider.Calls(fakeprovider.OpRefresh))
	})

	t.Run("waits until less than five minutes remain", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		f.clock.Advance(55 * time.Minute)

		refreshed, err := f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.Zero(t, f.provider.Calls(fakeprovider.OpRefresh))

		f.clock.Advance(time.Second)
		refreshed, err = f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.True(t, refreshed)
		require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))
	})

	t.Run("does nothing without a session", func(t *testing.T) {
		f := setupTestFixture(t)
		refreshed, err := f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.False(t, refreshed)
	})

	t.Run("skips while another client holds the refresh lock", func(t *testing.T) {
		f := setupTestFixture(t)
		user := f.signUp(t)
		release, ok, err := f.locker.TryLock(f.ctx, "refresh:"+user.ID, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		defer release()
		f.clock.Advance(56 * time.Minute)

		refreshed, err := f.service.Monitor().Tick(f.ctx)
		require.NoError(t, err)
		require.False(t, refreshed)
		require.Zero(t, f.provider.Calls(fakeprovider.OpRefresh))
		require.True(t, f.service.IsAuthenticated())
	})

	t.Run("starts and stops", func(t *testing.T) {
		f := setupTestFixture(t)
		f.service.Monitor().Start()
		f.service.Monitor().Start()
		f.service.Monitor().Stop()
		f.service.Monitor().Stop()
	})
}

func TestSharedClients(t *testing.T) {
	f := setupTestFixture(t)
	f.signUp(t)
	require.NoError(t, f.service.SignOut(f.ctx))

	other := f.newService(t)
	var otherEvents []auth.EventType
	other.Subscribe(func(e auth.Event) { otherEvents = append(otherEvents, e.Type) })

	user, err := f.service.SignIn(f.ctx, testEmail, testPassword)
	require.NoError(t, err)
	require.Equal(t, user.ID, other.CurrentUser().ID)

	f.clock.Advance(56 * time.Minute)
	refreshed, err := f.service.Monitor().Tick(f.ctx)
	require.NoError(t, err)
	require.True(t, refreshed)
	require.Equal(t, f.service.CurrentSession().AccessToken, other.CurrentSession().AccessToken)

	refreshed, err = other.Monitor().Tick(f.ctx)
	require.NoError(t, err)
	require.False(t, refreshed)
	require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))

	require.NoError(t, f.service.SignOut(f.ctx))
	require.False(t, other.IsAuthenticated())
	require.Equal(t, []auth.EventType{auth.EventSignedIn, auth.EventTokenRefreshed, auth.EventSignedOut}, otherEvents)
}

func TestUpdateProfile(t *testing.T) {
	t.Run("sanitizes and stamps the cached user", func(t *testing.T) {
		f := setupTestFixture(t)
		user := f.signUp(t)
		f.clock.Advance(time.Minute)

		var updated *users.User
		f.service.Subscribe(func(e auth.Event) {
			if e.Type == auth.EventUserUpdated {
				updated = e.User
			}
		})

		result, err := f.service.UpdateProfile(f.ctx, users.Update{Name: utils.Ptr(" <b>Sara</b> ")})
		require.NoError(t, err)
		require.Equal(t, "Sara", result.Name)
		require.Equal(t, "Sara", f.service.CurrentUser().Name)
		require.NotEqual(t, user.UpdatedAt, f.service.CurrentUser().UpdatedAt)
		require.Equal(t, f.clock.Now(), f.service.CurrentUser().UpdatedAt)
		require.Equal(t, testPhone, f.service.CurrentUser().Phone)
		require.NotNil(t, updated)
		require.Equal(t, "Sara", updated.Name)
		require.Contains(t, f.audit.Actions(), audit.ProfileUpdated)
	})

	t.Run("validates phone and name", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)

		_, err := f.service.UpdateProfile(f.ctx, users.Update{Phone: utils.Ptr("0123")})
		requireKind(t, err, auth.KindValidation)
		require.Equal(t, "رقم جوال سعودي غير صحيح", err.Error())

		_, err = f.service.UpdateProfile(f.ctx, users.Update{Name: utils.Ptr("<i></i>")})
		requireKind(t, err, auth.KindValidation)

		result, err := f.service.UpdateProfile(f.ctx, users.Update{Phone: utils.Ptr("+966 50 123 4567")})
		require.NoError(t, err)
		require.Equal(t, "966501234567", result.Phone)
	})

	t.Run("blank phone keeps the stored number", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)

		result, err := f.service.UpdateProfile(f.ctx, users.Update{Phone: utils.Ptr(" "), City: utils.Ptr("جدة")})
		require.NoError(t, err)
		require.Equal(t, testPhone, result.Phone)
		require.Equal(t, "جدة", result.City)
		require.Equal(t, testPhone, f.service.CurrentUser().Phone)
	})

	t.Run("row store errors are localized", func(t *testing.T) {
		f := setupTestFixture(t)
		user := f.signUp(t)
		require.NoError(t, f.users.Delete(f.ctx, user.ID))

		_, err := f.service.UpdateProfile(f.ctx, users.Update{Name: utils.Ptr("Sara")})
		requireKind(t, err, auth.KindProvider)
		require.Equal(t, "لم يتم العثور على البيانات", err.Error())
	})

	t.Run("requires a session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.UpdateProfile(f.ctx, users.Update{Name: utils.Ptr("Sara")})
		requireKind(t, err, auth.KindNotAuthenticated)
		require.Equal(t, "لم يتم تسجيل الدخول", err.Error())
	})
}

func TestChangePassword(t *testing.T) {
	f := setupTestFixture(t)
	f.signUp(t)

	err := f.service.ChangePassword(f.ctx, testPassword, "weak")
	requireKind(t, err, auth.KindValidation)
	require.True(t, strings.HasPrefix(err.Error(), "كلمة المرور الجديدة ضعيفة: "))
	require.Zero(t, f.provider.Calls(fakeprovider.OpUpdatePassword))

	require.NoError(t, f.service.ChangePassword(f.ctx, "not checked", "N3w!Password"))
	require.Contains(t, f.audit.Actions(), audit.PasswordChanged)

	require.NoError(t, f.service.SignOut(f.ctx))
	_, err = f.service.SignIn(f.ctx, testEmail, testPassword)
	require.Error(t, err)
	_, err = f.service.SignIn(f.ctx, testEmail, "N3w!Password")
	require.NoError(t, err)

	require.NoError(t, f.service.SignOut(f.ctx))
	err = f.service.ChangePassword(f.ctx, "", "N3w!Password2")
	requireKind(t, err, auth.KindNotAuthenticated)
}

func TestDeleteAccount(t *testing.T) {
	f := setupTestFixture(t)
	f.signUp(t)

	require.NoError(t, f.service.DeleteAccount(f.ctx))
	require.Zero(t, f.users.Len())
	require.False(t, f.service.IsAuthenticated())
	require.Contains(t, f.audit.Actions(), audit.AccountDeleted)

	err := f.service.DeleteAccount(f.ctx)
	requireKind(t, err, auth.KindNotAuthenticated)
}

func TestOAuth(t *testing.T) {
	callback := "http://localhost:5173/auth/callback"

	t.Run("google code flow creates the profile", func(t *testing.T) {
		f := setupTestFixture(t)
		redirect, err := f.service.SignInWithGoogle(f.ctx)
		require.NoError(t, err)
		require.Equal(t, provider.Google, redirect.Provider)

		authorize, err := url.Parse(redirect.URL)
		require.NoError(t, err)
		require.Equal(t, "offline", authorize.Query().Get("access_type"))
		require.Equal(t, "consent", authorize.Query().Get("prompt"))
		require.Equal(t, callback, authorize.Query().Get("redirect_to"))
		require.Contains(t, f.audit.Actions(), audit.GoogleSignInStarted)

		code, err := f.provider.IssueCode(redirect.URL, "sara@example.com", map[string]any{
			"full_name":  "Sara Ahmed",
			"avatar_url": "https://example.com/sara.png",
		})
		require.NoError(t, err)

		cb, err := url.Parse(callback + "?code=" + code)
		require.NoError(t, err)
		user, err := f.service.HandleOAuthCallback(f.ctx, cb)
		require.NoError(t, err)
		require.Equal(t, "Sara Ahmed", user.Name)
		require.Equal(t, "الرياض", user.City)
		require.Equal(t, users.ProviderGoogle, user.AuthProvider)
		require.Equal(t, "https://example.com/sara.png", user.AvatarURL)
		require.True(t, user.EmailVerified)
		require.Equal(t, 1, user.LoginCount)
		require.True(t, f.service.IsAuthenticated())

		records := f.audit.Records()
		last := records[len(records)-1]
		require.Equal(t, audit.OAuthSignInSucceeded, last.Action)
		require.Equal(t, "google", last.NewData.Details["provider"])

		// The verifier is single use.
		_, err = f.service.HandleOAuthCallback(f.ctx, cb)
		require.ErrorIs(t, err, auth.ErrMissingVerifier)
	})

	t.Run("implicit flow tokens in the fragment", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		require.NoError(t, f.service.SignOut(f.ctx))

		tokens, err := f.provider.IssueTokens(testEmail)
		require.NoError(t, err)
		cb, err := url.Parse(callback + "#access_token=" + tokens.AccessToken + "&refresh_token=" + tokens.RefreshToken + "&expires_in=3600")
		require.NoError(t, err)

		user, err := f.service.HandleOAuthCallback(f.ctx, cb)
		require.NoError(t, err)
		require.Equal(t, testName, user.Name)
		require.Equal(t, f.clock.Now().Add(time.Hour), f.service.CurrentSession().ExpiresAt)
	})

	t.Run("provider errors in the callback", func(t *testing.T) {
		f := setupTestFixture(t)
		cb, err := url.Parse(callback + "?error=access_denied&error_description=User+not+found")
		require.NoError(t, err)

		_, err = f.service.HandleOAuthCallback(f.ctx, cb)
		requireKind(t, err, auth.KindProvider)
		require.ErrorIs(t, err, auth.ErrOAuthDenied)
		require.Equal(t, "المستخدم غير موجود", err.Error())

		cb, err = url.Parse(callback)
		require.NoError(t, err)
		_, err = f.service.HandleOAuthCallback(f.ctx, cb)
		require.ErrorIs(t, err, auth.ErrNoSession)
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		f := setupTestFixture(t, fakeprovider.Unconfigured())
		_, err := f.service.SignInWithApple(f.ctx)
		requireKind(t, err, auth.KindConfiguration)
		require.Equal(t, "يرجى إعداد Supabase أولاً للتسجيل عبر Apple", err.Error())
		require.Zero(t, f.provider.Calls(fakeprovider.OpAuthorize))

		_, err = f.service.SignInWithGoogle(f.ctx)
		require.Equal(t, "يرجى إعداد Supabase أولاً للتسجيل عبر Google", err.Error())
	})

	t.Run("authorize failure is audited", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.Fail(fakeprovider.OpAuthorize, context.Canceled)
		_, err := f.service.SignInWithApple(f.ctx)
		requireKind(t, err, auth.KindUnexpected)
		require.Equal(t, "خطأ في تسجيل الدخول عبر Apple", err.Error())
		require.Contains(t, f.audit.Actions(), audit.AppleSignInFailed)
	})
}

func TestRestore(t *testing.T) {
	t.Run("reloads the persisted session", func(t *testing.T) {
		f := setupTestFixture(t)
		user := f.signUp(t)
		f.service.Close()

		restored := f.newService(t)
		got, err := restored.Restore(f.ctx)
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
		require.True(t, restored.IsAuthenticated())
	})

	t.Run("refreshes an expired session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signUp(t)
		before := f.service.CurrentSession()
		f.service.Close()
		f.clock.Advance(2 * time.Hour)

		restored := f.newService(t)
		_, err := restored.Restore(f.ctx)
		require.NoError(t, err)
		require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))
		require.True(t, restored.CurrentSession().ExpiresAt.After(before.ExpiresAt))
	})

	t.Run("nothing to restore", func(t *testing.T) {
		f := setupTestFixture(t)
		got, err := f.service.Restore(f.ctx)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestTokenSource(t *testing.T) {
	f := setupTestFixture(t)
	ts := f.service.TokenSource(f.ctx)

	_, err := ts.Token()
	require.ErrorIs(t, err, auth.ErrNoSession)

	f.signUp(t)
	token, err := ts.Token()
	require.NoError(t, err)
	require.Equal(t, f.service.CurrentSession().AccessToken, token.AccessToken)
	require.Zero(t, f.provider.Calls(fakeprovider.OpRefresh))

	f.clock.Advance(58 * time.Minute)
	refreshed, err := ts.Token()
	require.NoError(t, err)
	require.NotEqual(t, token.AccessToken, refreshed.AccessToken)
	require.Equal(t, 1, f.provider.Calls(fakeprovider.OpRefresh))
}

func TestLocalizeProviderMessage(t *testing.T) {
	require.Equal(t, "كلمة المرور مطلوبة", auth.LocalizeProviderMessage("Signup requires a valid password"))
	require.Equal(t, "Something else", auth.LocalizeProviderMessage("Something else"))
}
