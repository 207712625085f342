// Package httpx holds the fasthttp retry loop shared by the Iris and score
// feed clients.
package httpx

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Service string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s api error: status=%d body=%s", e.Service, e.Status, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func Retryable(status int) bool {
	switch status {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusInternalServerError,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Caller runs one request with a per-attempt deadline and backoff.
type Caller struct {
	HTTP    *fasthttp.Client
	Service string
	Timeout time.Duration
}

// Do sends req up to attempts times. On nil error resp holds a 2xx reply.
// Transport errors and Retryable statuses are retried; anything else returns
// a *StatusError at once.
func (c Caller) Do(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if err := c.HTTP.DoDeadline(req, resp, Deadline(ctx, c.Timeout)); err != nil {
			lastErr = fmt.Errorf("%s request failed: %w", c.Service, err)
		} else if status := resp.StatusCode(); status >= 200 && status < 300 {
			return nil
		} else {
			lastErr = &StatusError{Service: c.Service, Status: status, Body: truncate(string(resp.Body()), 512)}
			if !Retryable(status) {
				return lastErr
			}
		}
		if attempt < attempts {
			if err := Sleep(ctx, Backoff(attempt)); err != nil {
				return lastErr
			}
		}
	}
	return lastErr
}

// Deadline is now+timeout, or the context deadline when that is sooner.
func Deadline(ctx context.Context, timeout time.Duration) time.Time {
	dl := time.Now().Add(timeout)
	if cdl, ok := ctx.Deadline(); ok && cdl.Before(dl) {
		return cdl
	}
	return dl
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff: 100ms, 200ms, 400ms ... capped at 3.2s.
func Backoff(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
