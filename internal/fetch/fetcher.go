// Package fetch performs single polite HTTP GETs for the crawler.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// Result is a completed HTTP exchange. FinalURL is the URL after redirects.
type Result struct {
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Options configures a Fetcher
type Options struct {
	UserAgent    string
	Delay        time.Duration
	Timeout      time.Duration
	MaxBodyBytes int
	Parallelism  int
	// Robots is consulted before every request, redirects included; nil
	// disables the check
	Robots RobotsPolicy
	// InScope rejects redirect targets before they are requested; nil
	// follows every redirect
	InScope func(rawURL string) bool
}

const maxRedirects = 10

var errTooManyRedirects = fmt.Errorf("stopped after %d redirects", maxRedirects)

// Fetcher issues GET requests through a shared colly backend
type Fetcher struct {
	collector  *colly.Collector
	robots     RobotsPolicy
	inScope    func(rawURL string) bool
	politeness *Politeness
}

// hopKey carries the *hop of one Fetch to the redirect handler
type hopKey struct{}

// hop is the per-Fetch state shared with the redirect handler. The handler
// runs on the goroutine calling Visit, so no locking is needed.
type hop struct {
	ctx     context.Context
	release func()
}

// New creates a Fetcher. Cookies are disabled and every status code is
// returned as a Result rather than an error.
func New(opts Options) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(opts.MaxBodyBytes),
	)

	// Set request timeout
	collector.SetRequestTimeout(opts.Timeout)
	collector.DisableCookies()

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	// Overall cap across hosts; Politeness serializes each single host
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
	}); err != nil {
		return nil, fmt.Errorf("failed to set rate limit: %w", err)
	}

	f := &Fetcher{
		collector:  collector,
		robots:     opts.Robots,
		inScope:    opts.InScope,
		politeness: NewPoliteness(opts.Delay),
	}
	// Clones share the backend client, so the handler is installed once here
	collector.SetRedirectHandler(f.followRedirect)

	return f, nil
}

// Fetch retrieves rawURL. Cancelling ctx interrupts the robots lookup and the
// politeness wait; once the request is on the wire it runs until it completes
// or hits the request timeout. The host stays reserved until the response has
// been read.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{URL: rawURL, Err: err}
	}

	if err := f.checkRobots(ctx, rawURL); err != nil {
		return nil, err
	}

	release, err := f.politeness.Acquire(ctx, u.Hostname())
	if err != nil {
		return nil, &Error{URL: rawURL, Err: fmt.Errorf("politeness wait: %w", err)}
	}
	h := &hop{ctx: ctx, release: release}
	defer func() { h.release() }()

	c := f.collector.Clone()
	c.Context = context.WithValue(context.WithoutCancel(ctx), hopKey{}, h)

	var result *Result
	start := time.Now()

	c.OnResponse(func(r *colly.Response) {
		result = &Result{
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
	})

	if err := c.Visit(rawURL); err != nil {
		logrus.Debugf("Fetch of %s failed after %v: %v", rawURL, time.Since(start), err)
		if errors.Is(err, ErrDisallowed) || errors.Is(err, ErrOutOfScope) {
			return nil, err
		}
		return nil, &Error{URL: rawURL, Temporary: isTransient(err), Err: err}
	}
	if result == nil {
		return nil, &Error{URL: rawURL, Err: errors.New("no response received")}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// checkRobots returns ErrDisallowed when robots.txt forbids rawURL
func (f *Fetcher) checkRobots(ctx context.Context, rawURL string) error {
	if f.robots == nil {
		return nil
	}
	allowed, err := f.robots.Allowed(ctx, rawURL)
	if err != nil {
		return &Error{URL: rawURL, Err: fmt.Errorf("robots check: %w", err)}
	}
	if !allowed {
		return ErrDisallowed
	}
	return nil
}

// followRedirect treats every hop as a new request: it must be in scope and
// allowed by robots.txt, and it goes through the politeness gate of its host
func (f *Fetcher) followRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errTooManyRedirects
	}

	h, ok := req.Context().Value(hopKey{}).(*hop)
	if !ok {
		return nil
	}

	target := req.URL.String()
	if f.inScope != nil && !f.inScope(target) {
		return fmt.Errorf("redirect to %s: %w", target, ErrOutOfScope)
	}
	if err := f.checkRobots(h.ctx, target); err != nil {
		if errors.Is(err, ErrDisallowed) {
			return fmt.Errorf("redirect to %s: %w", target, err)
		}
		return err
	}

	// Only one host is held at a time
	h.release()
	release, err := f.politeness.Acquire(h.ctx, req.URL.Hostname())
	if err != nil {
		h.release = func() {}
		return fmt.Errorf("politeness wait: %w", err)
	}
	h.release = release
	return nil
}

// isTransient treats network-level failures as retryable
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, errTooManyRedirects) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, http.ErrHandlerTimeout)
}
