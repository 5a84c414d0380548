// Package fetcher performs GET requests against the upstream API through one
// long-lived, session-keeping HTTP client.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultUserAgent is what upstream expects from a browser session.
const DefaultUserAgent = "Mozilla/5.0"

// DefaultTimeout bounds a single request, not a retry loop.
const DefaultTimeout = 60 * time.Second

// Options configures a Client.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Headers   map[string]string
	Retry     RetryPolicy
	Logger    *slog.Logger

	// Transport overrides the underlying round tripper (tests, proxies).
	Transport http.RoundTripper
}

// DefaultOptions returns the settings upstream works with: browser user
// agent and retry forever every second.
func DefaultOptions() Options {
	return Options{
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
		Retry:     Forever(time.Second),
	}
}

// Response is the outcome of one request that reached the server.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is safe for concurrent use. Cookies set by upstream are kept for
// the lifetime of the client and sent with every later request.
type Client struct {
	http      *http.Client
	userAgent string
	headers   map[string]string
	retry     RetryPolicy
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New builds a Client. Zero fields of opts fall back to DefaultOptions.
func New(opts Options) (*Client, error) {
	def := DefaultOptions()
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Retry == nil {
		opts.Retry = def.Retry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("fetcher: cookie jar: %w", err)
	}

	return &Client{
		http: &http.Client{
			Jar:       jar,
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		userAgent: opts.UserAgent,
		headers:   opts.Headers,
		retry:     opts.Retry,
		logger:    opts.Logger.With("component", "fetcher"),
		sleep:     sleepContext,
	}, nil
}

// FetchOnce issues a single GET. Any status is returned as a Response;
// only failures to talk to the server are errors.
func (c *Client) FetchOnce(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Message: "build request", Cause: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "*/*")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Message: "request", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Message: "read body", Cause: err}
	}

	return &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Fetch issues a single GET and treats a non-2xx status as an error.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.FetchOnce(ctx, url)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Attempts: 1}
	}
	return resp.Body, nil
}

// FetchUntilSuccess repeats the GET while upstream answers with a non-2xx
// status, waiting as the retry policy says between attempts. Transport
// errors are returned at once and never retried.
func (c *Client) FetchUntilSuccess(ctx context.Context, url string) ([]byte, error) {
	failures := 0
	for {
		resp, err := c.FetchOnce(ctx, url)
		if err != nil {
			return nil, err
		}
		if resp.OK() {
			return resp.Body, nil
		}

		failures++
		delay, again := c.retry.Next(failures)
		if !again {
			return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Attempts: failures}
		}
		c.logger.Debug("upstream not ready, retrying",
			"url", url,
			"status", resp.StatusCode,
			"attempt", failures,
			"delay", delay,
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
