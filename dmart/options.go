package dmart

import (
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultRetryCount    = 2
	defaultRetryWait     = 250 * time.Millisecond
	defaultRetryMaxWait  = 2 * time.Second
	defaultExpirySkew    = 30 * time.Second
	defaultUserAgent     = "godmart"
	maxRetryCount        = 10
	minRetryWaitDuration = 10 * time.Millisecond
)

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	timeout            time.Duration
	timeoutSet         bool
	retryCount         int
	retryWait          time.Duration
	retryMaxWait       time.Duration
	userAgent          string
	insecureSkipVerify bool
	httpClient         *http.Client
	headers            map[string]string
	autoConnect        bool
	expirySkew         time.Duration
	sender             Sender
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		timeout:      defaultTimeout,
		retryCount:   defaultRetryCount,
		retryWait:    defaultRetryWait,
		retryMaxWait: defaultRetryMaxWait,
		userAgent:    defaultUserAgent,
		headers:      make(map[string]string),
		expirySkew:   defaultExpirySkew,
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
			o.timeoutSet = true
		}
	}
}

// WithRetryCount sets how many times idempotent requests are retried on
// transient failures. Login and logout are never retried.
func WithRetryCount(count int) Option {
	return func(o *clientOptions) {
		if count >= 0 && count <= maxRetryCount {
			o.retryCount = count
		}
	}
}

// WithRetryWaitTime sets the initial and maximum backoff between retries.
func WithRetryWaitTime(wait, maxWait time.Duration) Option {
	return func(o *clientOptions) {
		if wait >= minRetryWaitDuration && maxWait >= wait {
			o.retryWait = wait
			o.retryMaxWait = maxWait
		}
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) Option {
	return func(o *clientOptions) {
		if userAgent = strings.TrimSpace(userAgent); userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for development/testing.
func WithInsecureSkipVerify() Option {
	return func(o *clientOptions) {
		o.insecureSkipVerify = true
	}
}

// WithHTTPClient uses a custom HTTP client, e.g. for a custom TLS setup or proxy.
// The client is copied; the caller's client and transport are never modified.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// WithRequestHeader adds a static header to every request. Authorization
// is managed by the client and cannot be overridden.
func WithRequestHeader(header, value string) Option {
	return func(o *clientOptions) {
		header = strings.TrimSpace(header)
		if header == "" || strings.EqualFold(header, "Authorization") {
			return
		}
		o.headers[header] = value
	}
}

// WithAutoConnect makes authenticated calls log in on demand instead of
// failing with ErrNotConnected when no session exists.
func WithAutoConnect(enabled bool) Option {
	return func(o *clientOptions) {
		o.autoConnect = enabled
	}
}

// WithExpirySkew sets how long before a known token expiry the session is
// treated as expired.
func WithExpirySkew(skew time.Duration) Option {
	return func(o *clientOptions) {
		if skew >= 0 {
			o.expirySkew = skew
		}
	}
}

// WithSender replaces the HTTP transport, mainly for tests.
func WithSender(sender Sender) Option {
	return func(o *clientOptions) {
		if sender != nil {
			o.sender = sender
		}
	}
}
