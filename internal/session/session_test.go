package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/browser"
	"github.com/xkilldash9x/sociallink/internal/config"
	"github.com/xkilldash9x/sociallink/internal/mocks"
	"github.com/xkilldash9x/sociallink/internal/platform"
)

// -- Test Helpers --

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	driver    *mocks.FakeDriver
	plat      *platform.Platform
	validator *Validator
	clock     *fakeClock
	logger    *zap.Logger
}

func goodCreds() []schemas.Credential {
	return []schemas.Credential{
		{Name: "sid_tt", Value: "good"},
		{Name: "tt_csrf_token", Value: "csrf%3D1"},
	}
}

func badCreds() []schemas.Credential {
	return []schemas.Credential{{Name: "sid_tt", Value: "stale"}}
}

// authRoute lets a navigation through only when a "good" sid_tt is present.
func authRoute(plat *platform.Platform) mocks.RouteFunc {
	return func(requested string, creds []schemas.Credential) string {
		for _, c := range creds {
			if c.Name == "sid_tt" && strings.HasPrefix(c.Value, "good") {
				return requested
			}
		}
		return plat.LoginURL() + "?redirect_url=%2Fsetting"
	}
}

func newFixture(t *testing.T, opts ...ValidatorOption) *fixture {
	t.Helper()
	plat, err := platform.New(config.NewDefaultConfig().Platform())
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	driver := &mocks.FakeDriver{Route: authRoute(plat)}
	clock := newFakeClock()
	launcher := NewLauncher(driver, browser.LaunchOptions{Headless: true}, schemas.DefaultPersona, logger)
	base := []ValidatorOption{
		WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		WithValidatorClock(clock.Now),
	}
	v := NewValidator(launcher, plat, config.SessionConfig{ValidationTimeout: 5 * time.Second, SettleTimeout: 2 * time.Second}, logger, append(base, opts...)...)
	return &fixture{driver: driver, plat: plat, validator: v, clock: clock, logger: logger}
}

func (f *fixture) manager(store CredentialStore) *Manager {
	return NewManager(f.validator, store, f.logger, WithClock(f.clock.Now))
}

// -- Validator --

func TestValidator_Validate(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.validator.Validate(context.Background(), goodCreds())
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, f.driver.Launches())
		assert.Zero(t, f.driver.OpenBrowsers(), "validation browser must always be closed")

		page := f.driver.LastPage()
		assert.Equal(t, []string{f.plat.ProbeURL()}, page.Navigations())

		jar, err := page.Context().Credentials(context.Background())
		require.Error(t, err, "context is closed after validation")
		assert.Nil(t, jar)
	})

	t.Run("rejected credentials are not an error", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.validator.Validate(context.Background(), badCreds())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, f.driver.OpenBrowsers())
	})

	t.Run("empty input", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.validator.Validate(context.Background(), []schemas.Credential{{Name: " "}})
		assert.ErrorIs(t, err, schemas.ErrMalformedInput)
		assert.Zero(t, f.driver.Launches())
	})

	t.Run("launch failure is a driver error", func(t *testing.T) {
		f := newFixture(t)
		f.driver.LaunchErr = errors.New("chrome not found")
		_, err := f.validator.Validate(context.Background(), goodCreds())
		assert.True(t, schemas.IsDriverError(err))
	})

	t.Run("navigation failure closes the browser", func(t *testing.T) {
		f := newFixture(t)
		f.driver.NavigateErr = errors.New("net::ERR_TIMED_OUT")
		_, err := f.validator.Validate(context.Background(), goodCreds())
		assert.True(t, schemas.IsDriverError(err))
		assert.Equal(t, 1, f.driver.Launches())
		assert.Zero(t, f.driver.OpenBrowsers())
	})

	t.Run("client side redirect observed while settling", func(t *testing.T) {
		var f *fixture
		f = newFixture(t, WithSleep(func(ctx context.Context, _ time.Duration) error {
			if p := f.driver.LastPage(); p != nil {
				p.SetURL(f.plat.LoginURL())
			}
			return ctx.Err()
		}))
		ok, err := f.validator.Validate(context.Background(), goodCreds())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("injected credentials get domain and path", func(t *testing.T) {
		f := newFixture(t)
		h, surface, err := f.validator.open(context.Background(), goodCreds())
		require.NoError(t, err)
		defer h.Close(context.Background())
		assert.Equal(t, platform.SurfaceAuthenticated, surface)

		jar, err := h.Context.Credentials(context.Background())
		require.NoError(t, err)
		require.Len(t, jar, 2)
		assert.Equal(t, ".tiktok.com", jar[0].Domain)
		assert.Equal(t, "/", jar[0].Path)
		assert.Equal(t, "csrf%3D1", jar[1].Value, "structured values are injected verbatim")
	})
}

// -- Launcher --

func TestLauncher_OpenFailureClosesBrowser(t *testing.T) {
	boom := errors.New("target crashed")
	cases := []struct {
		name   string
		op     string
		inject func(d *mocks.FakeDriver)
	}{
		{"new context", "new_context", func(d *mocks.FakeDriver) { d.NewContextErr = boom }},
		{"add credentials", "add_credentials", func(d *mocks.FakeDriver) { d.AddCredentialsErr = boom }},
		{"new page", "new_page", func(d *mocks.FakeDriver) { d.NewPageErr = boom }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver := &mocks.FakeDriver{}
			tc.inject(driver)
			l := NewLauncher(driver, browser.LaunchOptions{Headless: true}, schemas.DefaultPersona, zaptest.NewLogger(t))

			h, err := l.Open(context.Background(), goodCreds())
			require.Error(t, err)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, boom)
			assert.True(t, schemas.IsDriverError(err))
			assert.Contains(t, err.Error(), tc.op)

			assert.Equal(t, 1, driver.Launches())
			assert.Zero(t, driver.OpenBrowsers(), "launched browser must be closed after a failed open")
			for _, c := range driver.Browsers()[0].Contexts() {
				assert.True(t, c.Closed())
			}
		})
	}
}

func TestValidator_OpenFailureClosesBrowser(t *testing.T) {
	f := newFixture(t)
	f.driver.AddCredentialsErr = errors.New("cookie rejected")
	_, err := f.validator.Validate(context.Background(), goodCreds())
	assert.True(t, schemas.IsDriverError(err))
	assert.Zero(t, f.driver.OpenBrowsers())
}

// -- Manager --

func TestManager_AcquireSerializesPerAccount(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.driver.LaunchDelay = 20 * time.Millisecond
	m := f.manager(nil)

	const callers = 10
	var wg sync.WaitGroup
	sessions := make([]*Session, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = m.Acquire(context.Background(), "acct-1", goodCreds())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}
	assert.Equal(t, 1, f.driver.Launches(), "exactly one browser per account")
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Close(context.Background()))
	assert.Zero(t, f.driver.OpenBrowsers())
}

func TestManager_AcquireDistinctAccounts(t *testing.T) {
	f := newFixture(t)
	m := f.manager(nil)

	a, err := m.Acquire(context.Background(), "a", goodCreds())
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), "b", goodCreds())
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.NotSame(t, a.Page(), b.Page())
	assert.Equal(t, 2, f.driver.Launches())
}

func TestManager_AcquireRejected(t *testing.T) {
	f := newFixture(t)
	m := f.manager(nil)

	sess, err := m.Acquire(context.Background(), "acct", badCreds())
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, schemas.ErrSessionRejected)
	assert.Zero(t, f.driver.OpenBrowsers())
	assert.Zero(t, m.Len())
}

func TestManager_ReuseAndReplace(t *testing.T) {
	f := newFixture(t)
	m := f.manager(nil)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "acct", goodCreds())
	require.NoError(t, err)

	t.Run("reused while authenticated", func(t *testing.T) {
		f.clock.Advance(time.Minute)
		again, err := m.Acquire(ctx, "acct", nil)
		require.NoError(t, err)
		assert.Same(t, first, again)
		assert.True(t, again.LastUsedAt().Equal(f.clock.Now()))
		assert.Equal(t, 1, f.driver.Launches())
	})

	t.Run("replaced after logout redirect", func(t *testing.T) {
		f.driver.LastPage().SetURL(f.plat.LoginURL())
		replaced, err := m.Acquire(ctx, "acct", goodCreds())
		require.NoError(t, err)
		assert.NotSame(t, first, replaced)
		assert.Equal(t, 2, f.driver.Launches())
		assert.Equal(t, 1, f.driver.OpenBrowsers())
		first = replaced
	})

	t.Run("replaced when credentials change", func(t *testing.T) {
		creds := []schemas.Credential{{Name: "sid_tt", Value: "good-rotated"}}
		replaced, err := m.Acquire(ctx, "acct", creds)
		require.NoError(t, err)
		assert.NotSame(t, first, replaced)
		assert.Equal(t, 3, f.driver.Launches())
		assert.Equal(t, 1, f.driver.OpenBrowsers())
		assert.Equal(t, 1, m.Len())
	})
}

func TestManager_RestoreAndPersist(t *testing.T) {
	t.Run("snapshot restored when no credentials supplied", func(t *testing.T) {
		f := newFixture(t)
		store := new(mocks.MockCredentialStore)
		store.On("LoadCredentials", mock.Anything, "acct").Return(goodCreds(), nil).Once()
		store.On("SaveCredentials", mock.Anything, "acct", mock.Anything).Return(nil)
		m := f.manager(store)

		sess, err := m.Acquire(context.Background(), "acct", nil)
		require.NoError(t, err)
		assert.Len(t, sess.Credentials(), 2)
		store.AssertExpectations(t)
	})

	t.Run("missing snapshot is malformed input", func(t *testing.T) {
		f := newFixture(t)
		store := new(mocks.MockCredentialStore)
		store.On("LoadCredentials", mock.Anything, "acct").Return(nil, errors.New("no snapshot"))
		m := f.manager(store)

		_, err := m.Acquire(context.Background(), "acct", nil)
		assert.ErrorIs(t, err, schemas.ErrMalformedInput)
		assert.Zero(t, f.driver.Launches())
	})

	t.Run("no store and no credentials", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager(nil).Acquire(context.Background(), "acct", nil)
		assert.ErrorIs(t, err, schemas.ErrMalformedInput)
	})

	t.Run("snapshot persisted on creation", func(t *testing.T) {
		f := newFixture(t)
		store := new(mocks.MockCredentialStore)
		store.On("SaveCredentials", mock.Anything, "acct", mock.MatchedBy(func(c []schemas.Credential) bool {
			return len(c) == 2 && c[0].Domain == ".tiktok.com"
		})).Return(nil).Once()
		m := f.manager(store)

		_, err := m.Acquire(context.Background(), "acct", goodCreds())
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("persist failure is not fatal", func(t *testing.T) {
		f := newFixture(t)
		store := new(mocks.MockCredentialStore)
		store.On("SaveCredentials", mock.Anything, "acct", mock.Anything).Return(errors.New("disk full"))
		_, err := f.manager(store).Acquire(context.Background(), "acct", goodCreds())
		assert.NoError(t, err)
	})
}

func TestManager_EvictStale(t *testing.T) {
	f := newFixture(t)
	store := new(mocks.MockCredentialStore)
	store.On("SaveCredentials", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m := f.manager(store)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "idle", goodCreds())
	require.NoError(t, err)
	f.clock.Advance(50 * time.Minute)
	_, err = m.Acquire(ctx, "busy", goodCreds())
	require.NoError(t, err)

	// Rotate a cookie in the idle session's jar; eviction should persist it.
	idleJar := f.driver.Browsers()[0].Contexts()[0]
	idleJar.SetCredentials([]schemas.Credential{{Name: "sid_tt", Value: "good-rotated", Domain: ".tiktok.com", Path: "/"}})

	f.clock.Advance(15 * time.Minute)
	evicted := m.EvictStale(ctx, time.Hour)
	assert.Equal(t, []string{"idle"}, evicted)
	assert.Equal(t, 1, m.Len())
	assert.True(t, f.driver.Browsers()[0].Closed())
	assert.False(t, f.driver.Browsers()[1].Closed())

	store.AssertCalled(t, "SaveCredentials", mock.Anything, "idle", mock.MatchedBy(func(c []schemas.Credential) bool {
		return len(c) == 1 && c[0].Value == "good-rotated"
	}))

	t.Run("evicted account rebuilds on next acquire", func(t *testing.T) {
		_, err := m.Acquire(ctx, "idle", goodCreds())
		require.NoError(t, err)
		assert.Equal(t, 3, f.driver.Launches())
	})
}

func TestManager_ReleaseAndDiscard(t *testing.T) {
	f := newFixture(t)
	store := new(mocks.MockCredentialStore)
	store.On("SaveCredentials", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	m := f.manager(store)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "a", goodCreds())
	require.NoError(t, err)
	_, err = m.Acquire(ctx, "b", goodCreds())
	require.NoError(t, err)

	m.Release(ctx, "a")
	m.Discard(ctx, "b")
	m.Release(ctx, "unknown")

	assert.Zero(t, m.Len())
	assert.Zero(t, f.driver.OpenBrowsers())
	// Creation twice plus the refresh on release; discard does not persist.
	store.AssertNumberOfCalls(t, "SaveCredentials", 3)
}
