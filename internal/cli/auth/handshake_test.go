package auth_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"ojassist/internal/cli/auth"
	"ojassist/internal/cli/ojtest"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/testutil"
)

func runHandshake(t *testing.T, opts ojtest.Options, creds auth.Credentials) (*auth.Handshake, *ojtest.Servers, error) {
	t.Helper()
	srv := ojtest.New(opts)
	t.Cleanup(srv.Close)

	hs := auth.NewHandshake(srv.HTTPClient(t), auth.Config{AuthorizeURL: srv.AuthorizeURL()})
	_, err := hs.Run(context.Background(), creds)
	return hs, srv, err
}

func contains(states []auth.State, s auth.State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func TestHandshakeAuthenticates(t *testing.T) {
	t.Parallel()
	srv := ojtest.New(ojtest.Options{})
	defer srv.Close()

	fixed := time.Date(2030, 5, 1, 8, 0, 0, 0, time.UTC)
	client := srv.HTTPClient(t)
	hs := auth.NewHandshake(client, auth.Config{AuthorizeURL: srv.AuthorizeURL()}).
		WithClock(func() time.Time { return fixed })

	sess, err := hs.Run(context.Background(), auth.Credentials{Username: "student", Password: "secret"})
	testutil.MustNoError(t, err, "handshake")

	testutil.AssertEqual(t, hs.State(), auth.StateAuthenticated)
	testutil.AssertEqual(t, sess.CSRFToken, ojtest.CSRFValue)
	testutil.AssertEqual(t, sess.Cookie(ojtest.SessionCookie), ojtest.SessionValue)
	testutil.AssertEqual(t, sess.AcquiredAt, fixed)

	want := []auth.State{
		auth.StateInit,
		auth.StateAuthorizeRequested,
		auth.StateLoginPageFetched,
		auth.StateCredentialsSubmitted,
		auth.StateRedirectChainFollowing,
		auth.StateSessionTokenAcquired,
		auth.StateCsrfAcquired,
		auth.StateAuthenticated,
	}
	got := hs.Trace()
	if len(got) != len(want) {
		t.Fatalf("trace = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trace[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	testutil.AssertEqual(t, srv.Calls("/cas/oauth2.0/callbackAuthorize"), 1)
	testutil.AssertEqual(t, srv.Calls("/api/cors/"), 1)
}

func TestHandshakeInvalidCredentials(t *testing.T) {
	t.Parallel()
	for _, status := range []int{http.StatusOK, http.StatusUnauthorized} {
		hs, srv, err := runHandshake(t, ojtest.Options{BadCredentialsStatus: status},
			auth.Credentials{Username: "student", Password: "wrong"})
		testutil.AssertCode(t, err, appErr.InvalidCredentials)
		testutil.AssertEqual(t, hs.State(), auth.StateFailed)
		if contains(hs.Trace(), auth.StateSessionTokenAcquired) {
			t.Fatalf("status %d: invalid credentials reached SessionTokenAcquired: %v", status, hs.Trace())
		}
		if contains(hs.Trace(), auth.StateCredentialsSubmitted) {
			t.Fatalf("status %d: rejected credentials must not count as submitted", status)
		}
		testutil.AssertEqual(t, srv.Calls("/api/login/cas/"), 0)
	}
}

func TestHandshakeWrongPasswordBanner(t *testing.T) {
	t.Parallel()
	hs, _, err := runHandshake(t, ojtest.Options{ErrorBanner: `<span id="errormsg">用户名或密码错误</span>`},
		auth.Credentials{Username: "student", Password: "wrong"})
	testutil.AssertCode(t, err, appErr.InvalidCredentials)
	testutil.AssertEqual(t, hs.State(), auth.StateFailed)
}

func TestHandshakeFailures(t *testing.T) {
	t.Parallel()
	good := auth.Credentials{Username: "student", Password: "secret"}
	tests := []struct {
		name      string
		opts      ojtest.Options
		creds     auth.Credentials
		wantCode  appErr.ErrorCode
		lastState auth.State
	}{
		{
			name:      "authorize not redirecting",
			opts:      ojtest.Options{AuthorizeStatus: http.StatusOK},
			creds:     good,
			wantCode:  appErr.UnexpectedResponse,
			lastState: auth.StateInit,
		},
		{
			name:      "login page without token",
			opts:      ojtest.Options{OmitExecution: true},
			creds:     good,
			wantCode:  appErr.TokenExtractionFailed,
			lastState: auth.StateAuthorizeRequested,
		},
		{
			name:      "redirect loop",
			opts:      ojtest.Options{RedirectLoop: true},
			creds:     good,
			wantCode:  appErr.RedirectLoopExceeded,
			lastState: auth.StateRedirectChainFollowing,
		},
		{
			name:      "no session cookie",
			opts:      ojtest.Options{OmitSessionCookie: true},
			creds:     good,
			wantCode:  appErr.SessionCookieMissing,
			lastState: auth.StateRedirectChainFollowing,
		},
		{
			name:      "no csrf cookie",
			opts:      ojtest.Options{OmitCSRF: true},
			creds:     good,
			wantCode:  appErr.CsrfMintFailed,
			lastState: auth.StateSessionTokenAcquired,
		},
		{
			name:      "empty password",
			creds:     auth.Credentials{Username: "student"},
			wantCode:  appErr.RequiredFieldEmpty,
			lastState: auth.StateInit,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hs, _, err := runHandshake(t, tt.opts, tt.creds)
			testutil.AssertCode(t, err, tt.wantCode)
			trace := hs.Trace()
			if len(trace) < 2 {
				t.Fatalf("trace too short: %v", trace)
			}
			testutil.AssertEqual(t, trace[len(trace)-1], auth.StateFailed)
			testutil.AssertEqual(t, trace[len(trace)-2], tt.lastState)
			testutil.AssertEqual(t, hs.Err(), err)
		})
	}
}

func TestRedirectLoopStopsAtHopLimit(t *testing.T) {
	t.Parallel()
	_, srv, err := runHandshake(t, ojtest.Options{RedirectLoop: true}, auth.Credentials{Username: "student", Password: "secret"})
	testutil.AssertCode(t, err, appErr.RedirectLoopExceeded)
	testutil.AssertEqual(t, srv.Calls("/cas/oauth2.0/callbackAuthorize"), auth.DefaultMaxHops)
}

func TestHandshakeIsSingleUse(t *testing.T) {
	t.Parallel()
	srv := ojtest.New(ojtest.Options{})
	defer srv.Close()
	hs := auth.NewHandshake(srv.HTTPClient(t), auth.Config{AuthorizeURL: srv.AuthorizeURL()})
	creds := auth.Credentials{Username: "student", Password: "secret"}
	if _, err := hs.Run(context.Background(), creds); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := hs.Run(context.Background(), creds); err == nil {
		t.Fatal("second run should fail")
	}
}

func TestExtractExecution(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "tokenizer", body: `<form><input type="hidden" name="execution" value="abc-123"/></form>`, want: "abc-123"},
		{name: "attribute order", body: `<input value="v2" name="execution">`, want: "v2"},
		{name: "inside script", body: `<script>var f = '<input name="execution" value="js-1">';</script>`, want: "js-1"},
		{name: "missing", body: `<form><input name="lt" value="x"></form>`, want: ""},
	}
	for _, tt := range tests {
		if got := auth.ExtractExecution([]byte(tt.body)); got != tt.want {
			t.Errorf("%s: ExtractExecution = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestHasLoginError(t *testing.T) {
	t.Parallel()
	for _, page := range []string{
		`<div id="msg" class="errors">Invalid credentials.</div>`,
		`<span id="errormsg">用户名或密码错误</span>`,
	} {
		if !auth.HasLoginError([]byte(page)) {
			t.Errorf("error banner not detected in %q", page)
		}
	}
	if auth.HasLoginError([]byte(`<form id="fm1"></form>`)) {
		t.Error("plain login page flagged as error")
	}
}
