package ojtest

import (
	"net/url"
	"testing"
	"time"

	httpclient "ojassist/internal/cli/http"
	"ojassist/internal/cli/state"
)

// Session returns a session the fake OJ accepts without a handshake.
func (s *Servers) Session(acquiredAt time.Time) state.Session {
	u, _ := url.Parse(s.OJ.URL)
	host := u.Hostname()
	return state.Session{
		Cookies: []state.Cookie{
			{Name: CSRFCookie, Value: CSRFValue, Domain: host, Path: "/"},
			{Name: SessionCookie, Value: SessionValue, Domain: host, Path: "/", HttpOnly: true},
		},
		CSRFToken:  CSRFValue,
		AcquiredAt: acquiredAt,
	}
}

// HTTPClient returns a transport pointed at the fake OJ.
func (s *Servers) HTTPClient(t testing.TB) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New(httpclient.Options{BaseURL: s.OJ.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new http client: %v", err)
	}
	return c
}
