package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
)

// Client is a small wrapper around http.Client with sane defaults and a
// bounded retry on transient failures.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string

	// Attempts is the total number of tries per request, including the first.
	Attempts int
	// MaxElapsed bounds one request end to end, retries and backoff included,
	// until its body is closed. Zero means no overall bound.
	MaxElapsed time.Duration
	// Backoff spaces retries; Min is the first delay, doubling up to Max.
	Backoff backoff.Backoff
	Log     zerolog.Logger
}

// New returns a client whose requests finish within timeout overall. Each
// attempt gets half of it so that a stuck first try leaves room for a retry.
func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		HTTP:       &http.Client{Timeout: timeout / 2, Transport: transport},
		UserAgent:  "finref/1.0",
		Attempts:   3,
		MaxElapsed: timeout,
		Backoff:    backoff.Backoff{Min: time.Second, Max: 4 * time.Second, Factor: 2},
		Log:        zerolog.Nop(),
	}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Do sends req, applying default headers. Idempotent requests without a body
// are retried on transport errors, timeouts, 429 and 5xx up to Attempts times
// within MaxElapsed; the last response or error is returned as is.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if c.MaxElapsed <= 0 {
		return c.retry(req)
	}

	ctx, cancel := context.WithTimeout(req.Context(), c.MaxElapsed)
	resp, err := c.retry(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request deadline once the body is done with.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *Client) retry(req *http.Request) (*http.Response, error) {
	attempts := c.Attempts
	if attempts <= 0 || !replayable(req) {
		attempts = 1
	}
	b := c.Backoff
	for attempt := 1; ; attempt++ {
		resp, err := c.HTTP.Do(req)
		if attempt >= attempts || req.Context().Err() != nil || !retryable(resp, err) {
			return resp, err
		}
		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
			resp.Body.Close()
		}

		wait := b.Duration()
		ev := c.Log.Warn().Str("url", req.URL.String()).Int("attempt", attempt).Dur("wait", wait)
		if err != nil {
			ev = ev.Err(err)
		} else {
			ev = ev.Int("status", resp.StatusCode)
		}
		ev.Msg("request failed, retrying")

		t := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			t.Stop()
			return nil, req.Context().Err()
		case <-t.C:
		}
	}
}

// GetBody performs a GET and returns the body of a 2xx response.
func (c *Client) GetBody(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &StatusError{Method: http.MethodGet, URL: url, Code: resp.StatusCode, Body: string(b)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

func replayable(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		// http.Client wraps dial, reset and timeout failures in *url.Error, a net.Error
		var ne net.Error
		return errors.As(err, &ne)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}
