// Package state persists the authenticated OJ session between runs.
package state

import (
	"context"
	"net/http"
	"time"
)

// SessionTTL is how long a captured session is trusted without a fresh login.
const SessionTTL = 2 * time.Hour

// Cookie is the persisted form of one jar entry. A leading dot in Domain
// marks a domain cookie; otherwise the cookie is host-only.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

// Session is the browser-equivalent login state.
type Session struct {
	Cookies    []Cookie  `json:"cookies"`
	CSRFToken  string    `json:"csrf_token"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// IsStale reports whether the session is older than SessionTTL at now.
func IsStale(s *Session, now time.Time) bool {
	if s == nil {
		return true
	}
	return now.Sub(s.AcquiredAt) > SessionTTL
}

// Cookie returns the value of the named cookie, or "".
func (s *Session) Cookie(name string) string {
	if s == nil {
		return ""
	}
	for _, c := range s.Cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Prober issues one lightweight authenticated call.
type Prober interface {
	Probe(ctx context.Context) error
}

// Validate confirms server-side that the session still works.
func Validate(ctx context.Context, prober Prober, s *Session) bool {
	if s == nil || s.CSRFToken == "" || prober == nil {
		return false
	}
	return prober.Probe(ctx) == nil
}

// FromHTTP converts jar cookies into their persisted form.
func FromHTTP(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return out
}

// HTTPCookies converts the session cookies back for a jar restore.
func (s *Session) HTTPCookies() []*http.Cookie {
	if s == nil {
		return nil
	}
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return out
}
