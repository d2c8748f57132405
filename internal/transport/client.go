// Package transport provides the HTTP client used to reach the data provider
// and the diagnosis engine.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"diagnosys-poller/internal/errors"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps how much of a response body is kept.
const maxBodyBytes = 4 << 20

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	// H2C talks HTTP/2 over cleartext TCP (prior knowledge) instead of HTTP/1.1.
	H2C bool
	// RequestsPerSecond throttles outbound calls; 0 disables throttling.
	RequestsPerSecond float64
}

// Response is a completed exchange. Any status code is a Response; only
// failures to get one are errors.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 200 status.
func (r Response) OK() bool { return r.Status == http.StatusOK }

// Client issues bounded GET/POST requests. It is safe for reuse across cycles.
type Client struct {
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient creates a Client from opts.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	var rt http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if opts.H2C {
		rt = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		http:    &http.Client{Transport: rt},
		timeout: opts.Timeout,
		limiter: limiter,
	}
}

// NewClientWithHTTP wraps an existing *http.Client (used by tests).
func NewClientWithHTTP(hc *http.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: hc, timeout: timeout}
}

// Timeout returns the per-request bound.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Get issues a GET to url.
func (c *Client) Get(ctx context.Context, stage, url string) (Response, error) {
	return c.do(ctx, stage, http.MethodGet, url, "", nil)
}

// Post issues a POST of body to url with the given content type.
func (c *Client) Post(ctx context.Context, stage, url, contentType string, body []byte) (Response, error) {
	return c.do(ctx, stage, http.MethodPost, url, contentType, body)
}

func (c *Client) do(ctx context.Context, stage, method, url, contentType string, body []byte) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, &errors.TransportError{Stage: stage, URL: url, Err: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return Response{}, &errors.TransportError{Stage: stage, URL: url, Err: errors.Wrap(err, "failed to create request")}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, &errors.TransportError{Stage: stage, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, &errors.TransportError{Stage: stage, URL: url, Err: errors.Wrap(err, "failed to read response body")}
	}

	return Response{Status: resp.StatusCode, Body: data}, nil
}
