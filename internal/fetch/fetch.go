// Package fetch downloads source texts with bounded retries, an optional
// on-disk conditional-GET cache and charset normalisation to UTF-8.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/hyperifyio/goreader/internal/cache"
)

var (
	ErrUnsupportedScheme      = errors.New("unsupported URL scheme")
	ErrUnsupportedContentType = errors.New("unsupported content type")
	ErrTooLarge               = errors.New("response body too large")
	ErrRedirect               = errors.New("redirect refused")
)

// StatusError is a non-2xx, non-304 response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Transient reports whether retrying may succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusTooManyRequests || (e.Code >= 500 && e.Code <= 599)
}

// Client wraps http.Client with timeouts, retries and politeness limits.
type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each attempt.
	PerRequestTimeout time.Duration
	// Backoff is the base delay between attempts; attempt n waits n*Backoff.
	// Zero means 200ms.
	Backoff time.Duration

	Cache *cache.HTTPCache
	// BypassCache fetches fresh without conditional headers but still saves
	// the response.
	BypassCache bool

	// RedirectMaxHops caps redirects. Zero means 5.
	RedirectMaxHops int
	// MaxConcurrent limits in-flight requests. Zero means unlimited.
	MaxConcurrent int
	// RequestsPerSecond paces requests across the client. Zero disables it.
	RequestsPerSecond float64
	// MaxBodyBytes rejects larger bodies. Zero means 32 MiB.
	MaxBodyBytes int64

	initOnce sync.Once
	sem      chan struct{}
	limiter  *rate.Limiter
}

const defaultMaxBody = 32 << 20

func (c *Client) init() {
	c.initOnce.Do(func() {
		if c.MaxConcurrent > 0 {
			c.sem = make(chan struct{}, c.MaxConcurrent)
		}
		if c.RequestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(c.RequestsPerSecond), 1)
		}
	})
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirect()
		return &base
	}
	return &http.Client{CheckRedirect: c.checkRedirect()}
}

// Get fetches rawURL and returns its body decoded to UTF-8 together with the
// response Content-Type. A 304 answer is served from the cache.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, string, error) {
	c.init()
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse url: %w", err)
	}
	if !isHTTPScheme(u) {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
	}

	var cached *cache.HTTPEntry
	if c.Cache != nil && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, rawURL); err == nil {
			cached = meta
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := c.sleep(ctx, i); err != nil {
				return nil, "", err
			}
		}
		res, err := c.tryOnce(ctx, rawURL, cached)
		if err == nil {
			return c.finish(ctx, rawURL, res, cached)
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
	}
	return nil, "", lastErr
}

type response struct {
	status       int
	body         []byte
	contentType  string
	etag         string
	lastModified string
}

func (c *Client) finish(ctx context.Context, rawURL string, res response, cached *cache.HTTPEntry) ([]byte, string, error) {
	if res.status == http.StatusNotModified && cached != nil {
		body, err := c.Cache.LoadBody(ctx, rawURL)
		if err != nil {
			return nil, "", fmt.Errorf("revalidated entry unreadable: %w", err)
		}
		ct := cached.ContentType
		if res.contentType != "" {
			ct = res.contentType
		}
		out, err := decode(body, ct)
		return out, ct, err
	}
	if c.Cache != nil {
		_ = c.Cache.Save(ctx, rawURL, res.contentType, res.etag, res.lastModified, res.body)
	}
	out, err := decode(res.body, res.contentType)
	return out, res.contentType, err
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	base := c.Backoff
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	t := time.NewTimer(time.Duration(attempt) * base)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) tryOnce(ctx context.Context, rawURL string, cached *cache.HTTPEntry) (response, error) {
	if err := c.acquire(ctx); err != nil {
		return response{}, err
	}
	defer c.release()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, err
		}
	}

	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.PerRequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("new request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if cached != nil {
		if cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
		if cached.LastModified != "" {
			req.Header.Set("If-Modified-Since", cached.LastModified)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	res := response{
		status:       resp.StatusCode,
		contentType:  resp.Header.Get("Content-Type"),
		etag:         resp.Header.Get("ETag"),
		lastModified: resp.Header.Get("Last-Modified"),
	}
	if resp.StatusCode == http.StatusNotModified && cached != nil {
		return res, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return response{}, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}
	if !IsAllowedContentType(res.contentType) {
		return response{}, fmt.Errorf("%w: %s", ErrUnsupportedContentType, res.contentType)
	}

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return response{}, fmt.Errorf("read body: %w", err)
	}
	if int64(len(b)) > limit {
		return response{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	res.body = b
	return res, nil
}

func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ErrRedirect) {
		return false
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

func (c *Client) checkRedirect() func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("%w: more than %d hops", ErrRedirect, max)
		}
		if !isHTTPScheme(req.URL) {
			return fmt.Errorf("%w: unsupported scheme %q", ErrRedirect, req.URL.Scheme)
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func mediaType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt, _, _ = strings.Cut(ct, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsAllowedContentType accepts plain text and HTML documents.
func IsAllowedContentType(ct string) bool {
	switch mediaType(ct) {
	case "text/plain", "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// IsHTML reports whether ct names an HTML document.
func IsHTML(ct string) bool {
	mt := mediaType(ct)
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// decode converts body to UTF-8 using a byte order mark, the declared charset
// or an HTML meta tag, as found by charset.DetermineEncoding. Its sniffing
// only looks at the first 1024 bytes, so an uncertain guess is overridden
// when the whole body is valid UTF-8.
func decode(body []byte, contentType string) ([]byte, error) {
	enc, name, certain := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(body)) {
		return bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")), nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.sem == nil {
		return nil
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.sem == nil {
		return
	}
	<-c.sem
}
