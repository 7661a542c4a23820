package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

const maxAutoRedirects = 10

// DefaultHeaders mimics the desktop browser the OJ front-end expects.
var DefaultHeaders = map[string]string{
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36",
	"Accept":             "*/*",
	"Accept-Language":    "zh-CN,zh;q=0.9",
	"Sec-Ch-Ua":          `"Not(A:Brand";v="99", "Google Chrome";v="133", "Chromium";v="133"`,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Priority":           "u=1, i",
}

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	URL        *url.URL
}

// IsRedirect reports a 3xx status carrying a Location header.
func (r ResponseInfo) IsRedirect() bool {
	switch r.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return r.Headers.Get("Location") != ""
	}
	return false
}

// Location resolves the Location header against the request URL.
func (r ResponseInfo) Location() (*url.URL, error) {
	raw := r.Headers.Get("Location")
	if raw == "" {
		return nil, errors.New("missing Location header")
	}
	loc, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse Location header failed: %w", err)
	}
	if r.URL != nil {
		loc = r.URL.ResolveReference(loc)
	}
	return loc, nil
}

// Request describes one outgoing call.
type Request struct {
	Method          string
	URL             string // absolute, or a path joined to the base URL
	Headers         map[string]string
	Form            url.Values
	Body            []byte
	ContentType     string
	FollowRedirects bool
}

// Options configures a Client.
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Headers            map[string]string
}

// Client wraps HTTP requests for the CLI. The cookie jar is the session state
// and is shared by every request issued through the client.
type Client struct {
	baseURL   *url.URL
	timeout   time.Duration
	transport http.RoundTripper
	jar       *Jar
	headers   map[string]string
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url failed: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", opts.BaseURL)
	}
	jar, err := NewJar()
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	headers := make(map[string]string, len(DefaultHeaders)+len(opts.Headers))
	for k, v := range DefaultHeaders {
		headers[k] = v
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		baseURL:   base,
		timeout:   opts.Timeout,
		transport: gzhttp.Transport(transport),
		jar:       jar,
		headers:   headers,
	}, nil
}

// BaseURL returns a copy of the OJ base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Jar exposes the cookie jar backing the session.
func (c *Client) Jar() *Jar {
	return c.jar
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.timeout = timeout
	}
}

// IsHome reports whether u points at the OJ host.
func (c *Client) IsHome(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Host, c.baseURL.Host)
}

// Resolve turns a path or absolute URL into an absolute URL.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("parse url failed: %w", err)
	}
	if u.IsAbs() {
		return u, nil
	}
	return c.baseURL.ResolveReference(u), nil
}

// Cookie returns the current value of a session cookie, or "".
func (c *Client) Cookie(name string) string {
	return c.jar.Get(name)
}

func (c *Client) Do(ctx context.Context, r Request) (ResponseInfo, error) {
	var info ResponseInfo

	target, err := c.Resolve(r.URL)
	if err != nil {
		return info, err
	}

	var reader io.Reader
	contentType := r.ContentType
	switch {
	case r.Form != nil:
		reader = strings.NewReader(r.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case len(r.Body) > 0:
		reader = bytes.NewReader(r.Body)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range r.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	client := &http.Client{
		Transport: c.transport,
		Jar:       c.jar,
		Timeout:   c.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if !r.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= maxAutoRedirects {
				return fmt.Errorf("stopped after %d redirects", maxAutoRedirects)
			}
			return nil
		},
	}

	start := time.Now()
	resp, err := client.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	info.URL = resp.Request.URL
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}
