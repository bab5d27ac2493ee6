// Package fetch performs single HTTP requests on behalf of the URL checker.
// Redirects are reported, not followed.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/xerrors"
)

// DefaultUserAgent is sent when Options.UserAgent is empty.
const DefaultUserAgent = "linkcheck/1.0"

// ErrUnsupportedScheme is returned for URLs whose scheme cannot be probed
// over HTTP.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// maxDrain bounds how much of a response body is read before the
// connection is closed.
const maxDrain = 64 << 10

// Response is the part of an HTTP response the checker cares about.
type Response struct {
	StatusCode int

	// Value of the Location header, if any.
	Location string
}

// Options configure an HTTP fetcher.
type Options struct {
	// Client used to send requests. Its CheckRedirect hook is replaced so
	// that redirects are always returned to the caller. Defaults to a fresh
	// client with a default transport.
	Client *http.Client

	UserAgent string

	// Extra headers added to every request.
	Headers http.Header
}

// HTTP probes URLs with net/http.
type HTTP struct {
	client    *http.Client
	userAgent string
	headers   http.Header
}

// NewHTTP returns a new HTTP fetcher.
func NewHTTP(opts Options) *HTTP {
	client := new(http.Client)
	if opts.Client != nil {
		*client = *opts.Client
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	return &HTTP{
		client:    client,
		userAgent: opts.UserAgent,
		headers:   opts.Headers.Clone(),
	}
}

// Probe sends a single request using method and reports the status code
// and redirect target of the answer.
func (h *HTTP) Probe(ctx context.Context, method, rawURL string) (Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Response{}, xerrors.Errorf("fetch: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return Response{}, xerrors.Errorf("fetch %q: %w", rawURL, ErrUnsupportedScheme)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return Response{}, xerrors.Errorf("fetch: %w", err)
	}
	for name, values := range h.headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("User-Agent", h.userAgent)

	res, err := h.client.Do(req)
	if err != nil {
		return Response{}, err
	}

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxDrain))
	_ = res.Body.Close()

	return Response{
		StatusCode: res.StatusCode,
		Location:   res.Header.Get("Location"),
	}, nil
}
