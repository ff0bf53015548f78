package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testTransport(rt roundTripFunc) *Transport {
	client := &http.Client{Transport: rt}
	return New(client, Config{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		RatePerSecond:  1000,
		RateBurst:      1000,
	})
}

// TestGetRetriesOnTransientStatus: a first 503 response is retried and the
// second attempt succeeds.
func TestGetRetriesOnTransientStatus(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(bytes.NewBufferString(`service unavailable`)),
				Header:     make(http.Header),
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(`ok`)),
			Header:     make(http.Header),
		}, nil
	})
	tp := testTransport(rt)

	body, resp, err := tp.Get(context.Background(), "https://example.invalid/player", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected final status 200, got %d", resp.StatusCode)
	}
	if string(body) != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts (one retry), got %d", calls)
	}
}

// TestPostRetriesOnTransientStatus exercises the same retry path through
// Post, confirming the body is resent intact on the retried attempt.
func TestPostRetriesOnTransientStatus(t *testing.T) {
	var calls int32
	var lastBody []byte
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := atomic.AddInt32(&calls, 1)
		b, _ := io.ReadAll(r.Body)
		lastBody = b
		if n == 1 {
			return &http.Response{
				StatusCode: http.StatusBadGateway,
				Body:       io.NopCloser(bytes.NewBufferString(`bad gateway`)),
				Header:     make(http.Header),
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(`ok`)),
			Header:     make(http.Header),
		}, nil
	})
	tp := testTransport(rt)

	_, resp, err := tp.Post(context.Background(), "https://example.invalid/player", []byte(`{"videoId":"x"}`), nil)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected final status 200, got %d", resp.StatusCode)
	}
	if string(lastBody) != `{"videoId":"x"}` {
		t.Fatalf("expected retried request to resend the original body, got %q", lastBody)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 attempts (one retry), got %d", calls)
	}
}

// Ensure 4xx status codes other than 429 are not retried.
func TestGetDoesNotRetryNonRetryable4xx(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(bytes.NewBufferString(`not found`)),
			Header:     make(http.Header),
		}, nil
	})
	tp := testTransport(rt)

	_, resp, err := tp.Get(context.Background(), "https://example.invalid/missing", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.StatusCode)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt for a non-retryable 404, got %d", calls)
	}
}

// TestGetAppliesRequestTimeout confirms Config.RequestTimeout bounds a
// single Get call when the caller's context carries no deadline of its own.
func TestGetAppliesRequestTimeout(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Fatalf("expected the outbound request to carry a deadline")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(`ok`)),
			Header:     make(http.Header),
		}, nil
	})
	client := &http.Client{Transport: rt}
	tp := New(client, Config{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		RatePerSecond:  1000,
		RateBurst:      1000,
		RequestTimeout: time.Minute,
	})

	if _, _, err := tp.Get(context.Background(), "https://example.invalid/player", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}
