package dmart

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries a per-request correlation id
const RequestIDHeader = "X-Request-ID"

// Request describes a single call to the Dmart API
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
	Body   any
}

// Response is a raw, uninterpreted HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender sends a request and returns the raw response. Implementations fail
// only with transport errors (ErrNetwork, ErrTimeout, ErrProtocol); HTTP error
// statuses are returned as responses.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Transport is the resty-backed Sender. It is safe for concurrent use and
// shares one connection pool across all requests.
type Transport struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewTransport creates a Transport for the instance at baseURL
func NewTransport(baseURL string, logger zerolog.Logger, opts ...Option) *Transport {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newTransport(strings.TrimRight(baseURL, "/"), o, logger)
}

func newTransport(baseURL string, o *clientOptions, logger zerolog.Logger) *Transport {
	var rc *resty.Client
	if o.httpClient != nil {
		rc = resty.NewWithClient(ownHTTPClient(o))
	} else {
		rc = resty.New().SetTimeout(o.timeout)
	}

	rc.SetBaseURL(baseURL).
		SetRetryCount(o.retryCount).
		SetRetryWaitTime(o.retryWait).
		SetRetryMaxWaitTime(o.retryMaxWait).
		AddRetryCondition(DefaultRetryPolicy).
		SetLogger(restyLogger{logger: logger}).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", o.userAgent).
		SetHeaders(o.headers)

	if o.insecureSkipVerify {
		rc.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in for development instances
	}

	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Header.Get(RequestIDHeader) == "" {
			r.SetHeader(RequestIDHeader, uuid.NewString())
		}
		return nil
	})

	rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		logger.Debug().
			Str("method", r.Request.Method).
			Str("url", r.Request.URL).
			Int("status", r.StatusCode()).
			Dur("duration", r.Time()).
			Str("request_id", r.Request.Header.Get(RequestIDHeader)).
			Msg("Dmart API request")
		return nil
	})

	return &Transport{
		client: rc,
		logger: logger,
	}
}

// ownHTTPClient copies a caller-supplied client so that timeouts, cookie jar
// and TLS settings applied here never leak back to the caller. An explicit
// WithTimeout wins over the client's own timeout; a client without one gets
// the default.
func ownHTTPClient(o *clientOptions) *http.Client {
	hc := *o.httpClient
	if o.timeoutSet || hc.Timeout == 0 {
		hc.Timeout = o.timeout
	}
	if t, ok := hc.Transport.(*http.Transport); ok {
		hc.Transport = t.Clone()
	}
	return &hc
}

// Send performs the request. Payloads are not interpreted.
func (t *Transport) Send(ctx context.Context, req *Request) (*Response, error) {
	r := t.client.R().SetContext(ctx)

	for key, values := range req.Header {
		for _, v := range values {
			r.Header.Add(key, v)
		}
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		return nil, &RequestError{
			Method: req.Method,
			URL:    t.client.BaseURL + req.Path,
			Kind:   classifyTransportError(err),
			Err:    err,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode(),
		Header:     resp.Header(),
		Body:       resp.Body(),
	}, nil
}

// classifyTransportError maps a failed round trip onto the error taxonomy
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	var (
		mimeErr   textproto.ProtocolError
		httpErr   *http.ProtocolError
		recordErr tls.RecordHeaderError
	)
	if errors.As(err, &mimeErr) || errors.As(err, &httpErr) || errors.As(err, &recordErr) {
		return ErrProtocol
	}

	// net/http reports an unparseable status line only as formatted text
	if strings.Contains(err.Error(), "malformed HTTP") {
		return ErrProtocol
	}

	return ErrNetwork
}

// DefaultRetryPolicy is the retry condition used by Transport. Only GET
// requests are retried, on HTTP 429, 5xx and transient connection errors.
// Context cancellation, deadline exceeded and DNS failures are never retried,
// and neither is anything that is not a GET: login attempts must not be
// replayed behind the caller's back.
func DefaultRetryPolicy(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return false
		}

		return true
	}

	return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
}

// restyLogger routes resty's internal logging into zerolog
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) { l.logger.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.logger.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.logger.Debug().Msgf(format, v...) }
