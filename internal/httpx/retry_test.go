package httpx

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, h fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	return &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
}

func call(t *testing.T, hc *fasthttp.Client, attempts int) (int, error) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI("http://test/x")
	err := Caller{HTTP: hc, Service: "test", Timeout: time.Second}.Do(context.Background(), req, resp, attempts)
	return resp.StatusCode(), err
}

func TestRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	hc := serve(t, func(ctx *fasthttp.RequestCtx) {
		if hits.Add(1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString("ok")
	})
	status, err := call(t, hc, 3)
	require.NoError(t, err)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.EqualValues(t, 3, hits.Load())
}

func TestNoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	hc := serve(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("bad")
	})
	_, err := call(t, hc, 3)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, fasthttp.StatusBadRequest, se.Status)
	assert.Equal(t, "bad", se.Body)
	assert.EqualValues(t, 1, hits.Load())
}

func TestGivesUpAfterAttempts(t *testing.T) {
	var hits atomic.Int32
	hc := serve(t, func(ctx *fasthttp.RequestCtx) {
		hits.Add(1)
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
	})
	_, err := call(t, hc, 2)
	require.Error(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestBackoffAndDeadline(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, Backoff(0))
	assert.Equal(t, 400*time.Millisecond, Backoff(3))
	assert.Equal(t, 3200*time.Millisecond, Backoff(10))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	dl := Deadline(ctx, time.Hour)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), dl, 50*time.Millisecond)
}
