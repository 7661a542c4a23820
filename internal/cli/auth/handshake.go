// Package auth performs the CAS single-sign-on login and keeps the session usable.
package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	httpclient "ojassist/internal/cli/http"
	"ojassist/internal/cli/state"
	appErr "ojassist/pkg/errors"
	"ojassist/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// State is a step of the CAS handshake.
type State int

const (
	StateInit State = iota
	StateAuthorizeRequested
	StateLoginPageFetched
	StateCredentialsSubmitted
	StateRedirectChainFollowing
	StateSessionTokenAcquired
	StateCsrfAcquired
	StateAuthenticated
	StateFailed
)

var stateNames = map[State]string{
	StateInit:                   "Init",
	StateAuthorizeRequested:     "AuthorizeRequested",
	StateLoginPageFetched:       "LoginPageFetched",
	StateCredentialsSubmitted:   "CredentialsSubmitted",
	StateRedirectChainFollowing: "RedirectChainFollowing",
	StateSessionTokenAcquired:   "SessionTokenAcquired",
	StateCsrfAcquired:           "CsrfAcquired",
	StateAuthenticated:          "Authenticated",
	StateFailed:                 "Failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

const (
	DefaultAuthorizeURL  = "https://cas.sustech.edu.cn/cas/oauth2.0/authorize?response_type=code&client_id=FTdwYshmid34mMtRURbH5Naa6eclg4s6BVP7&redirect_uri=https://oj.cse.sustech.edu.cn/api/login/cas/"
	DefaultSessionCookie = "JCoderID"
	DefaultCSRFCookie    = "csrftoken"
	DefaultCSRFPath      = "/api/cors/"
	DefaultMaxHops       = 10
)

// Config describes the CAS endpoints and the cookies that prove a login.
type Config struct {
	AuthorizeURL  string
	SessionCookie string
	CSRFCookie    string
	CSRFPath      string
	MaxHops       int
}

func (c Config) withDefaults() Config {
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}
	if c.SessionCookie == "" {
		c.SessionCookie = DefaultSessionCookie
	}
	if c.CSRFCookie == "" {
		c.CSRFCookie = DefaultCSRFCookie
	}
	if c.CSRFPath == "" {
		c.CSRFPath = DefaultCSRFPath
	}
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultMaxHops
	}
	return c
}

// Credentials are the CAS username and password.
type Credentials struct {
	Username string
	Password string
}

// Handshake runs one CAS login against the jar of an HTTP client.
// It is single-use and not safe for concurrent use.
type Handshake struct {
	http  *httpclient.Client
	cfg   Config
	now   func() time.Time
	state State
	trace []State
	err   error
}

func NewHandshake(client *httpclient.Client, cfg Config) *Handshake {
	return &Handshake{
		http:  client,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		state: StateInit,
		trace: []State{StateInit},
	}
}

// WithClock replaces the clock stamping AcquiredAt.
func (h *Handshake) WithClock(now func() time.Time) *Handshake {
	if now != nil {
		h.now = now
	}
	return h
}

// State returns the current state.
func (h *Handshake) State() State {
	return h.state
}

// Trace returns every state visited, in order.
func (h *Handshake) Trace() []State {
	return append([]State(nil), h.trace...)
}

// Err returns the failure reason once the handshake is Failed.
func (h *Handshake) Err() error {
	return h.err
}

func (h *Handshake) advance(ctx context.Context, next State) {
	h.state = next
	h.trace = append(h.trace, next)
	logger.Debug(ctx, "cas handshake state", zap.String("state", next.String()))
}

func (h *Handshake) fail(ctx context.Context, err error) error {
	h.state = StateFailed
	h.trace = append(h.trace, StateFailed)
	h.err = err
	logger.Warn(ctx, "cas handshake failed", zap.Error(err))
	return err
}

// Run drives the handshake to Authenticated and returns the captured session.
func (h *Handshake) Run(ctx context.Context, creds Credentials) (state.Session, error) {
	if h.state != StateInit {
		return state.Session{}, appErr.New(appErr.InternalError).WithMessage("handshake already used")
	}
	if creds.Username == "" || creds.Password == "" {
		return state.Session{}, h.fail(ctx, appErr.New(appErr.RequiredFieldEmpty).WithMessage("username and password are required"))
	}

	// Landing page first so the OJ sets its pre-login cookies.
	if _, err := h.get(ctx, h.http.BaseURL().String()+"/", true); err != nil {
		return state.Session{}, h.fail(ctx, appErr.Network(err, "fetch home page"))
	}

	loginURL, err := h.requestAuthorize(ctx)
	if err != nil {
		return state.Session{}, h.fail(ctx, err)
	}
	h.advance(ctx, StateAuthorizeRequested)

	execution, pageURL, err := h.fetchLoginPage(ctx, loginURL)
	if err != nil {
		return state.Session{}, h.fail(ctx, err)
	}
	h.advance(ctx, StateLoginPageFetched)

	next, err := h.submitCredentials(ctx, pageURL, execution, creds)
	if err != nil {
		return state.Session{}, h.fail(ctx, err)
	}
	h.advance(ctx, StateCredentialsSubmitted)

	h.advance(ctx, StateRedirectChainFollowing)
	if err := h.followRedirects(ctx, next); err != nil {
		return state.Session{}, h.fail(ctx, err)
	}

	if h.http.Cookie(h.cfg.SessionCookie) == "" {
		return state.Session{}, h.fail(ctx, appErr.New(appErr.SessionCookieMissing).WithDetail("cookie", h.cfg.SessionCookie))
	}
	h.advance(ctx, StateSessionTokenAcquired)

	token, err := h.mintCSRF(ctx)
	if err != nil {
		return state.Session{}, h.fail(ctx, err)
	}
	h.advance(ctx, StateCsrfAcquired)

	sess := state.Session{
		Cookies:    state.FromHTTP(h.http.Jar().Snapshot()),
		CSRFToken:  token,
		AcquiredAt: h.now(),
	}
	h.advance(ctx, StateAuthenticated)
	logger.Info(ctx, "cas login succeeded", zap.Int("cookies", len(sess.Cookies)))
	return sess, nil
}

func (h *Handshake) get(ctx context.Context, target string, follow bool) (httpclient.ResponseInfo, error) {
	return h.http.Do(ctx, httpclient.Request{
		Method:          http.MethodGet,
		URL:             target,
		FollowRedirects: follow,
	})
}

func (h *Handshake) requestAuthorize(ctx context.Context) (*url.URL, error) {
	resp, err := h.get(ctx, h.cfg.AuthorizeURL, false)
	if err != nil {
		return nil, appErr.Network(err, "authorize")
	}
	if resp.StatusCode != http.StatusFound || resp.Headers.Get("Location") == "" {
		return nil, appErr.Protocol("authorize", resp.StatusCode)
	}
	loc, err := resp.Location()
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.UnexpectedResponse, "authorize: bad Location header")
	}
	return loc, nil
}

func (h *Handshake) fetchLoginPage(ctx context.Context, loginURL *url.URL) (string, *url.URL, error) {
	resp, err := h.get(ctx, loginURL.String(), true)
	if err != nil {
		return "", nil, appErr.Network(err, "login page")
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, appErr.Protocol("login page", resp.StatusCode)
	}
	execution := ExtractExecution(resp.Body)
	if execution == "" {
		return "", nil, appErr.New(appErr.TokenExtractionFailed)
	}
	pageURL := resp.URL
	if pageURL == nil {
		pageURL = loginURL
	}
	return execution, pageURL, nil
}

func (h *Handshake) submitCredentials(ctx context.Context, pageURL *url.URL, execution string, creds Credentials) (*url.URL, error) {
	form := url.Values{
		"username":  {creds.Username},
		"password":  {creds.Password},
		"execution": {execution},
		"_eventId":  {"submit"},
	}
	resp, err := h.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     pageURL.String(),
		Form:    form,
		Headers: map[string]string{"Referer": pageURL.String()},
	})
	if err != nil {
		return nil, appErr.Network(err, "submit credentials")
	}
	switch {
	case resp.IsRedirect():
		loc, err := resp.Location()
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.UnexpectedResponse, "submit credentials: bad Location header")
		}
		return loc, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, appErr.New(appErr.InvalidCredentials)
	case resp.StatusCode == http.StatusOK && HasLoginError(resp.Body):
		return nil, appErr.New(appErr.InvalidCredentials)
	default:
		return nil, appErr.Newf(appErr.LoginRejected, "login rejected with HTTP status %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode)
	}
}

type hopKind int

const (
	hopRedirect hopKind = iota
	hopTerminal
	hopError
)

// hop is the outcome of one manual redirect step.
type hop struct {
	kind hopKind
	next *url.URL
	resp httpclient.ResponseInfo
	err  error
}

func (h *Handshake) step(ctx context.Context, target *url.URL) hop {
	resp, err := h.get(ctx, target.String(), false)
	if err != nil {
		return hop{kind: hopError, err: appErr.Network(err, "follow redirect")}
	}
	if !resp.IsRedirect() {
		return hop{kind: hopTerminal, resp: resp}
	}
	loc, err := resp.Location()
	if err != nil {
		return hop{kind: hopError, err: appErr.Wrapf(err, appErr.UnexpectedResponse, "follow redirect: bad Location header")}
	}
	return hop{kind: hopRedirect, next: loc, resp: resp}
}

// followRedirects walks the CAS ticket redirects by hand until the OJ host is
// reached, then lets the final request follow redirects to set the cookies.
func (h *Handshake) followRedirects(ctx context.Context, start *url.URL) error {
	current := start
	for hops := 0; ; hops++ {
		if h.http.IsHome(current) {
			resp, err := h.get(ctx, current.String(), true)
			if err != nil {
				return appErr.Network(err, "complete login")
			}
			logger.Debug(ctx, "redirect chain finished", zap.Int("hops", hops), zap.Int("status", resp.StatusCode))
			return nil
		}
		if hops >= h.cfg.MaxHops {
			return appErr.New(appErr.RedirectLoopExceeded).WithDetail("hops", hops)
		}

		res := h.step(ctx, current)
		switch res.kind {
		case hopError:
			return res.err
		case hopTerminal:
			logger.Debug(ctx, "redirect chain ended off the oj host",
				zap.String("url", current.String()), zap.Int("status", res.resp.StatusCode))
			return nil
		case hopRedirect:
			current = res.next
		}
	}
}

func (h *Handshake) mintCSRF(ctx context.Context) (string, error) {
	base := h.http.BaseURL()
	origin := base.Scheme + "://" + base.Host
	resp, err := h.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    h.cfg.CSRFPath,
		Headers: map[string]string{
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          origin + "/",
			"Sec-Fetch-Dest":   "empty",
			"Sec-Fetch-Mode":   "cors",
			"Sec-Fetch-Site":   "same-origin",
		},
		FollowRedirects: true,
	})
	if err != nil {
		return "", appErr.Network(err, "mint csrf token")
	}
	token := h.http.Cookie(h.cfg.CSRFCookie)
	if token == "" {
		return "", appErr.New(appErr.CsrfMintFailed).
			WithDetail("cookie", h.cfg.CSRFCookie).
			WithDetail("status", resp.StatusCode)
	}
	return token, nil
}

var executionPattern = regexp.MustCompile(`name="execution"\s+value="([^"]+)"`)

// ExtractExecution finds the hidden "execution" input of the CAS login form.
func ExtractExecution(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if m := executionPattern.FindSubmatch(body); m != nil {
				return string(m[1])
			}
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var name, value string
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "name":
					name = attr.Val
				case "value":
					value = attr.Val
				}
			}
			if name == "execution" && value != "" {
				return value
			}
		}
	}
}

var loginErrorMarkers = []string{
	"loginErrorsPanel",
	"alert-danger",
	`class="errors"`,
	"Invalid credentials",
	"认证信息无效",
	"用户名或密码错误",
}

// HasLoginError reports whether a CAS page carries a credential error banner.
func HasLoginError(body []byte) bool {
	page := string(body)
	for _, marker := range loginErrorMarkers {
		if strings.Contains(page, marker) {
			return true
		}
	}
	return false
}
