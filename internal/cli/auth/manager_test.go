package auth_test

import (
	"context"
	"testing"
	"time"

	"ojassist/internal/cli/api"
	"ojassist/internal/cli/auth"
	"ojassist/internal/cli/ojtest"
	"ojassist/internal/cli/state"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/testutil"
)

type memoryStore struct {
	sess   *state.Session
	saves  int
	clears int
	events []string
}

func (m *memoryStore) Save(_ context.Context, s state.Session) error {
	m.saves++
	m.events = append(m.events, "save")
	cp := s
	m.sess = &cp
	return nil
}

func (m *memoryStore) Load(context.Context) (*state.Session, error) {
	if m.sess == nil {
		return nil, nil
	}
	cp := *m.sess
	return &cp, nil
}

func (m *memoryStore) Clear(context.Context) error {
	m.clears++
	m.events = append(m.events, "clear")
	m.sess = nil
	return nil
}

type managerFixture struct {
	srv     *ojtest.Servers
	client  *api.Client
	store   *memoryStore
	manager *auth.Manager
	now     time.Time
	asked   int
}

func newManagerFixture(t *testing.T, password string) *managerFixture {
	t.Helper()
	f := &managerFixture{
		srv:   ojtest.New(ojtest.Options{}),
		store: &memoryStore{},
		now:   time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	t.Cleanup(f.srv.Close)
	f.client = api.New(f.srv.HTTPClient(t))
	f.manager = auth.NewManager(f.client, f.store, auth.Config{AuthorizeURL: f.srv.AuthorizeURL()},
		func(context.Context) (auth.Credentials, error) {
			f.asked++
			return auth.Credentials{Username: "student", Password: password}, nil
		}).WithClock(func() time.Time { return f.now })
	return f
}

func TestEnsureSessionLogsInWithoutCache(t *testing.T) {
	t.Parallel()
	f := newManagerFixture(t, "secret")

	source, err := f.manager.EnsureSession(context.Background())
	testutil.MustNoError(t, err, "ensure session")
	testutil.AssertEqual(t, source, auth.SourceLogin)
	testutil.AssertEqual(t, f.store.saves, 1)
	testutil.AssertEqual(t, f.store.sess.AcquiredAt, f.now)
	testutil.AssertEqual(t, f.client.CSRFToken(), ojtest.CSRFValue)

	courses, err := f.client.ListCourses(context.Background())
	testutil.MustNoError(t, err, "list courses after login")
	testutil.AssertEqual(t, len(courses), 1)
}

func TestEnsureSessionReusesFreshCache(t *testing.T) {
	t.Parallel()
	f := newManagerFixture(t, "secret")
	cached := f.srv.Session(f.now.Add(-time.Hour))
	f.store.sess = &cached

	source, err := f.manager.EnsureSession(context.Background())
	testutil.MustNoError(t, err, "ensure session")
	testutil.AssertEqual(t, source, auth.SourceCache)
	testutil.AssertEqual(t, f.asked, 0)
	testutil.AssertEqual(t, f.store.saves, 0)
	testutil.AssertEqual(t, f.srv.Calls("/cas/oauth2.0/authorize"), 0)
	testutil.AssertEqual(t, f.srv.Calls("/api/union/my_courses_list/"), 1)
}

func TestEnsureSessionClearsStaleCacheBeforeLogin(t *testing.T) {
	t.Parallel()
	f := newManagerFixture(t, "secret")
	cached := f.srv.Session(f.now.Add(-7201 * time.Second))
	f.store.sess = &cached

	source, err := f.manager.EnsureSession(context.Background())
	testutil.MustNoError(t, err, "ensure session")
	testutil.AssertEqual(t, source, auth.SourceLogin)
	if len(f.store.events) != 2 || f.store.events[0] != "clear" || f.store.events[1] != "save" {
		t.Fatalf("store events = %v, want [clear save]", f.store.events)
	}
	// A stale session is never probed.
	testutil.AssertEqual(t, f.srv.Calls("/api/union/my_courses_list/"), 0)
}

func TestEnsureSessionReplacesRejectedCache(t *testing.T) {
	t.Parallel()
	f := newManagerFixture(t, "secret")
	cached := f.srv.Session(f.now.Add(-time.Minute))
	for i := range cached.Cookies {
		if cached.Cookies[i].Name == ojtest.SessionCookie {
			cached.Cookies[i].Value = "revoked"
		}
	}
	f.store.sess = &cached

	source, err := f.manager.EnsureSession(context.Background())
	testutil.MustNoError(t, err, "ensure session")
	testutil.AssertEqual(t, source, auth.SourceLogin)
	testutil.AssertEqual(t, f.store.clears, 1)
	testutil.AssertEqual(t, f.store.sess.Cookie(ojtest.SessionCookie), ojtest.SessionValue)
}

func TestEnsureSessionLoginFailure(t *testing.T) {
	t.Parallel()
	f := newManagerFixture(t, "wrong")

	_, err := f.manager.EnsureSession(context.Background())
	testutil.AssertCode(t, err, appErr.InvalidCredentials)
	testutil.AssertEqual(t, f.store.saves, 0)
	testutil.AssertEqual(t, f.client.CSRFToken(), "")

	_, err = f.client.ListCourses(context.Background())
	testutil.AssertCode(t, err, appErr.CsrfTokenMissing)
}

func TestLogout(t *testing.T) {
	t.Parallel()
	f := newManagerFixture(t, "secret")
	_, err := f.manager.EnsureSession(context.Background())
	testutil.MustNoError(t, err, "ensure session")

	testutil.MustNoError(t, f.manager.Logout(context.Background()), "logout")
	cached, _ := f.manager.Cached(context.Background())
	if cached != nil {
		t.Fatal("store should be empty after logout")
	}
	testutil.AssertEqual(t, f.client.CSRFToken(), "")
}
