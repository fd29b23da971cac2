package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned by DoJSON for non-2xx responses that were not retried away.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPClient calls a backend collaborator with per-attempt timeouts, retries on
// transport errors, 429 and 5xx, and a shared circuit breaker.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do sends req, replaying its body on every attempt. It returns the first
// response that is not retryable; the caller owns its body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	// A nil breaker admits every attempt.
	breaker := cl.Breaker
	attempts := cl.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			cl.observe("circuit_open")
			return nil, ErrOpenCircuit
		}
		resp, err := cl.attempt(ctx, req, body)
		switch {
		case err != nil:
			lastErr = err
		case retryable(resp.StatusCode):
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: readSnippet(resp)}
		default:
			breaker.Report(ctx, true)
			cl.observe("ok")
			return resp, nil
		}
		breaker.Report(ctx, false)
		cl.observe("retry")
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(cl.BaseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	cl.observe("exhausted")
	return nil, lastErr
}

// DoJSON sends payload (when non-nil) as JSON and decodes a 2xx response into out (when non-nil).
func (cl HTTPClient) DoJSON(ctx context.Context, method, url string, headers http.Header, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	for k, values := range headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := cl.Do(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Body: readSnippet(resp)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		resp, err := cl.Client.Do(clone(callCtx, req, body))
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return cl.Client.Do(clone(callCtx, req, body))
}

func (cl HTTPClient) observe(outcome string) {
	target := cl.Target
	if target == "" {
		target = "default"
	}
	OutboundAttempts.WithLabelValues(target, outcome).Inc()
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer func() { _ = req.Body.Close() }()
	return io.ReadAll(req.Body)
}

func clone(ctx context.Context, req *http.Request, body []byte) *http.Request {
	c := req.Clone(ctx)
	if body != nil {
		c.Body = io.NopCloser(bytes.NewReader(body))
		c.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		c.ContentLength = int64(len(body))
	}
	return c
}

func readSnippet(resp *http.Response) string {
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return string(bytes.TrimSpace(data))
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
