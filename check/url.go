package check

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"

	"github.com/ejacobg/linkcheck/fetch"
	"github.com/ejacobg/linkcheck/link"
)

// DefaultMaxRedirects is the number of redirects followed when
// URLChecker.MaxRedirects is zero.
const DefaultMaxRedirects = 10

// URLChecker validates web links by probing them with a Fetcher.
type URLChecker struct {
	Fetcher Fetcher

	// Method used for the first request. Defaults to HEAD.
	Method string

	// Method used when the server rejects Method with 405 or 501. Defaults
	// to GET.
	FallbackMethod string

	// Zero means DefaultMaxRedirects; a negative value disables following
	// redirects altogether.
	MaxRedirects int

	// A URL matching any Exclude pattern is ignored. When Include is not
	// empty, a URL must match one of its patterns to be checked.
	Include []*regexp.Regexp
	Exclude []*regexp.Regexp

	// When set, URLs whose host resolves to a private network address are
	// ignored.
	Private PrivateNetworkDetector
}

// Check implements Checker.
func (c URLChecker) Check(ctx context.Context, cat link.Category) link.Outcome {
	if cat.URL == nil {
		return link.Invalid(link.Reason{Kind: link.Unresolvable}, "missing URL")
	}

	raw := cat.URL.String()
	if matchAny(c.Exclude, raw) {
		return link.Ignore("excluded by pattern")
	}
	if len(c.Include) != 0 && !matchAny(c.Include, raw) {
		return link.Ignore("not matched by any include pattern")
	}

	maxRedirects := c.MaxRedirects
	if maxRedirects == 0 {
		maxRedirects = DefaultMaxRedirects
	}

	start := *cat.URL
	start.Fragment = ""
	current := &start
	visited := map[string]bool{}
	for hops := 0; ; hops++ {
		if c.isPrivate(ctx, current) {
			return link.Ignore("private network address")
		}
		if ctx.Err() != nil {
			return contextOutcome(ctx)
		}
		visited[current.String()] = true

		res, err := c.probe(ctx, current.String())
		if err != nil {
			return c.failure(ctx, err)
		}

		switch {
		case res.StatusCode >= 200 && res.StatusCode <= 299:
			return link.Valid()
		case res.StatusCode >= 300 && res.StatusCode <= 399 && res.Location != "":
			next, err := current.Parse(res.Location)
			if err != nil {
				return link.Invalid(link.BadStatus(res.StatusCode), fmt.Sprintf("bad redirect location %q", res.Location))
			}
			next.Fragment = ""

			if visited[next.String()] {
				return link.Invalid(link.Reason{Kind: link.TooManyRedirects}, "redirect loop at "+next.String())
			}
			if hops+1 > maxRedirects {
				return link.Invalid(link.Reason{Kind: link.TooManyRedirects}, fmt.Sprintf("more than %d redirects", max(maxRedirects, 0)))
			}
			current = next
		default:
			return link.Invalid(link.BadStatus(res.StatusCode), current.String())
		}
	}
}

func (c URLChecker) probe(ctx context.Context, rawURL string) (fetch.Response, error) {
	method := c.Method
	if method == "" {
		method = http.MethodHead
	}
	fallback := c.FallbackMethod
	if fallback == "" {
		fallback = http.MethodGet
	}

	res, err := c.Fetcher.Probe(ctx, method, rawURL)
	if err != nil {
		return res, err
	}

	if (res.StatusCode == http.StatusMethodNotAllowed || res.StatusCode == http.StatusNotImplemented) && fallback != method {
		return c.Fetcher.Probe(ctx, fallback, rawURL)
	}
	return res, nil
}

func (c URLChecker) isPrivate(ctx context.Context, u *url.URL) bool {
	if c.Private == nil {
		return false
	}

	// Resolution failures are reported by the probe itself.
	private, err := c.Private.IsPrivate(ctx, u.Hostname())
	return err == nil && private
}

func (c URLChecker) failure(ctx context.Context, err error) link.Outcome {
	if errors.Is(err, fetch.ErrUnsupportedScheme) {
		return link.Ignore("unsupported scheme")
	}
	if ctx.Err() != nil {
		return contextOutcome(ctx)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return link.Invalid(link.Reason{Kind: link.Timeout}, err.Error())
	}
	return link.Invalid(link.Reason{Kind: link.Unreachable}, err.Error())
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
