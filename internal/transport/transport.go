// Package transport implements the bounded-retry HTTP client:
// GET/POST/HEAD with exponential backoff, a token-bucket limiter, and
// content-length probing with a ranged-GET fallback.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes retry/backoff and rate limiting.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64
	RateBurst      int

	// RequestTimeout bounds each individual Get/Post/Head/ProbeContentLength
	// call. Zero disables it. Only applied when the incoming context carries
	// no earlier deadline of its own.
	RequestTimeout time.Duration
}

// DefaultConfig returns the production retry and rate-limit defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
		RatePerSecond:  4,
		RateBurst:      4,
		RequestTimeout: 30 * time.Second,
	}
}

// withRequestTimeout applies cfg.RequestTimeout to ctx. It never shortens
// a deadline the caller already set.
func withRequestTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Transport wraps an *http.Client with retry, backoff, and rate limiting.
type Transport struct {
	client  *http.Client
	cfg     Config
	limiter *rate.Limiter
}

func New(client *http.Client, cfg Config) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
}

// Get issues a GET with retry/backoff, setting the supplied headers.
func (t *Transport) Get(ctx context.Context, url string, headers http.Header) ([]byte, *http.Response, error) {
	return t.doWithRetry(ctx, http.MethodGet, url, nil, headers)
}

// Post issues a POST with retry/backoff.
func (t *Transport) Post(ctx context.Context, url string, body []byte, headers http.Header) ([]byte, *http.Response, error) {
	return t.doWithRetry(ctx, http.MethodPost, url, body, headers)
}

// Head issues a bare HEAD request and returns the status code, the
// primitive the resolver's liveness probe is built on.
func (t *Transport) Head(ctx context.Context, url string, headers http.Header) (int, error) {
	ctx, cancel := withRequestTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	applyHeaders(req, headers)
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// Stream issues a GET with an optional byte-range header and returns the
// still-open response body for the caller to read incrementally. Not
// retried internally: a partially-read body can't be safely replayed, so
// the caller owns retry policy for this one operation.
func (t *Transport) Stream(ctx context.Context, url string, rangeHeader string, headers http.Header) (io.ReadCloser, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	applyHeaders(req, headers)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	return resp.Body, resp, nil
}

// ProbeContentLength tries a HEAD first; if the server doesn't answer with
// a usable Content-Length it falls back to a ranged GET for one byte.
func (t *Transport) ProbeContentLength(ctx context.Context, url string, headers http.Header) (int64, int, error) {
	ctx, cancel := withRequestTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, 0, err
	}
	applyHeaders(req, headers)
	if resp, err := t.client.Do(req); err == nil {
		defer resp.Body.Close()
		if resp.ContentLength > 0 {
			return resp.ContentLength, resp.StatusCode, nil
		}
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound {
			return 0, resp.StatusCode, nil
		}
	}

	rangeHeaders := headers.Clone()
	if rangeHeaders == nil {
		rangeHeaders = http.Header{}
	}
	rangeHeaders.Set("Range", "bytes=0-0")
	_, resp, err := t.doWithRetry(ctx, http.MethodGet, url, nil, rangeHeaders)
	if err != nil {
		return 0, 0, err
	}
	if resp.StatusCode == http.StatusForbidden {
		return 0, resp.StatusCode, nil
	}
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if n, ok := parseContentRangeTotal(cr); ok {
			return n, resp.StatusCode, nil
		}
	}
	return resp.ContentLength, resp.StatusCode, nil
}

func (t *Transport) doWithRetry(ctx context.Context, method, url string, body []byte, headers http.Header) ([]byte, *http.Response, error) {
	ctx, cancel := withRequestTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	maxAttempts := t.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, nil, err
		}
		applyHeaders(req, headers)

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			if !isRetryableError(err) || attempt == maxAttempts-1 {
				return nil, nil, err
			}
			if waitErr := t.sleepBackoff(ctx, attempt, nil); waitErr != nil {
				return nil, nil, waitErr
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt == maxAttempts-1 {
				return nil, resp, readErr
			}
			continue
		}

		if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts-1 {
			lastErr = fmt.Errorf("transport: retryable status %d", resp.StatusCode)
			if waitErr := t.sleepBackoff(ctx, attempt, resp); waitErr != nil {
				return nil, nil, waitErr
			}
			continue
		}
		return data, resp, nil
	}
	return nil, nil, lastErr
}

func (t *Transport) sleepBackoff(ctx context.Context, attempt int, resp *http.Response) error {
	d := backoffFor(t.cfg, attempt)
	if resp != nil {
		if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > 0 {
			d = ra
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffFor returns the exponential backoff with +/-20% jitter for
// attempt.
func backoffFor(cfg Config, attempt int) time.Duration {
	d := cfg.InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > cfg.MaxBackoff {
			d = cfg.MaxBackoff
			break
		}
	}
	jitter := 0.8 + rand.Float64()*0.4 // nolint:gosec // non-cryptographic jitter
	return time.Duration(float64(d) * jitter)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableError(err error) bool {
	// The http client wraps context errors in *url.Error, so match through
	// the chain rather than by direct comparison.
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(raw); err == nil {
		return time.Until(t)
	}
	return 0
}

func parseContentRangeTotal(headerValue string) (int64, bool) {
	// Format: "bytes 0-0/123456"
	idx := -1
	for i := len(headerValue) - 1; i >= 0; i-- {
		if headerValue[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 || idx+1 >= len(headerValue) {
		return 0, false
	}
	n, err := strconv.ParseInt(headerValue[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func applyHeaders(req *http.Request, headers http.Header) {
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
}
