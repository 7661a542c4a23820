package httpclient

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Jar is a cookie jar that also records every cookie it accepts so the
// session can be written to disk and restored later. Domain cookies are
// recorded with a leading dot, host-only cookies with the bare host.
type Jar struct {
	mu      sync.Mutex
	inner   *cookiejar.Jar
	entries map[string]*http.Cookie
}

func NewJar() (*Jar, error) {
	inner, err := newInnerJar()
	if err != nil {
		return nil, err
	}
	return &Jar{inner: inner, entries: make(map[string]*http.Cookie)}, nil
}

func newInnerJar() (*cookiejar.Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar failed: %w", err)
	}
	return inner, nil
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner.SetCookies(u, cookies)
	now := time.Now()
	for _, c := range cookies {
		rec := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if rec.Path == "" || !strings.HasPrefix(rec.Path, "/") {
			rec.Path = defaultPath(u.Path)
		}
		if c.Domain != "" {
			rec.Domain = "." + strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		} else {
			rec.Domain = strings.ToLower(u.Hostname())
		}
		if c.MaxAge > 0 {
			rec.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		key := entryKey(rec)
		if c.MaxAge < 0 || (!rec.Expires.IsZero() && !rec.Expires.After(now)) {
			delete(j.entries, key)
			continue
		}
		j.entries[key] = rec
	}
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Get returns the value of the most specific recorded cookie with the given name.
func (j *Jar) Get(name string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	var best *http.Cookie
	for _, c := range j.entries {
		if c.Name != name {
			continue
		}
		if best == nil || len(c.Domain) > len(best.Domain) || (len(c.Domain) == len(best.Domain) && len(c.Path) > len(best.Path)) {
			best = c
		}
	}
	if best == nil {
		return ""
	}
	return best.Value
}

// Snapshot returns copies of all live cookies in a stable order.
func (j *Jar) Snapshot() []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	out := make([]*http.Cookie, 0, len(j.entries))
	for _, c := range j.entries {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Domain != out[b].Domain {
			return out[a].Domain < out[b].Domain
		}
		if out[a].Path != out[b].Path {
			return out[a].Path < out[b].Path
		}
		return out[a].Name < out[b].Name
	})
	return out
}

// Restore replaces the jar content with previously snapshotted cookies.
func (j *Jar) Restore(cookies []*http.Cookie) error {
	inner, err := newInnerJar()
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.inner = inner
	j.entries = make(map[string]*http.Cookie, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" || c.Domain == "" {
			continue
		}
		host := strings.TrimPrefix(c.Domain, ".")
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if strings.HasPrefix(c.Domain, ".") {
			out.Domain = host
		}
		j.inner.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: path}, []*http.Cookie{out})

		rec := *c
		rec.Path = path
		j.entries[entryKey(&rec)] = &rec
	}
	return nil
}

// Reset drops every cookie.
func (j *Jar) Reset() error {
	return j.Restore(nil)
}

// defaultPath is the RFC 6265 default-path of a request path: its directory.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func entryKey(c *http.Cookie) string {
	return c.Domain + ";" + c.Path + ";" + c.Name
}
