package scorefeed

import (
	"context"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, h fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	done := make(chan struct{})
	go func() {
		_ = srv.Serve(ln)
		close(done)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})
	hc := &fasthttp.Client{Dial: func(addr string) (net.Conn, error) { return ln.Dial() }}
	return NewClient("http://espn.test/apis/site/v2/sports", WithHTTPClient(hc), WithTimeout(2*time.Second))
}

func TestFetchSummary(t *testing.T) {
	body := loadFixture(t, "summary_in.json")
	var path, event string
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		event = string(ctx.QueryArgs().Peek("event"))
		ctx.SetContentType("application/json")
		ctx.SetBody(body)
	})
	s, err := c.FetchSummary(context.Background(), "/football/nfl/", "401547417")
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if path != "/apis/site/v2/sports/football/nfl/summary" || event != "401547417" {
		t.Fatalf("unexpected request path=%q event=%q", path, event)
	}
	if s.EventID != "401547417" || len(s.Scores) != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestFetchSummaryRetries5xx(t *testing.T) {
	body := loadFixture(t, "summary_final.json")
	var hits int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if atomic.AddInt32(&hits, 1) == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBody(body)
	})
	s, err := c.FetchSummary(context.Background(), "football/nfl", "401547417")
	if err != nil {
		t.Fatalf("FetchSummary: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 || !s.Final() {
		t.Fatalf("expected one retry and a final summary, hits=%d", hits)
	}
}

func TestFetchSummaryNoRetryOn404(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&hits, 1)
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetBodyString("no such event")
	})
	_, err := c.FetchSummary(context.Background(), "football/nfl", "1")
	if err == nil || !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single attempt, got %d", hits)
	}
}

func TestFetchSummaryRequiresArgs(t *testing.T) {
	c := NewClient("")
	if _, err := c.FetchSummary(context.Background(), "", "1"); err == nil {
		t.Fatalf("expected error")
	}
}
