package irisfast

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func newTestClient(t *testing.T, h fasthttp.RequestHandler, opts ...Option) *Client {
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
	return NewClient("http://iris.test/", append([]Option{WithHTTPClient(hc), WithTimeout(2 * time.Second)}, opts...)...)
}

func TestSendMessagePostsReply(t *testing.T) {
	var (
		mu     sync.Mutex
		got    ReplyRequest
		path   string
		userID string
	)
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		mu.Lock()
		defer mu.Unlock()
		path = string(ctx.Path())
		userID = string(ctx.Request.Header.Peek("X-User-Id"))
		_ = json.Unmarshal(ctx.PostBody(), &got)
	}, WithHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": "bot", "X-Empty": ""} }))

	if err := c.SendMessage(context.Background(), "roomA", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if path != "/reply" || userID != "bot" {
		t.Fatalf("unexpected request path=%q user=%q", path, userID)
	}
	if got.Type != "text" || got.Room != "roomA" || got.Data != "hello" {
		t.Fatalf("unexpected body %+v", got)
	}
}

func TestSendImageNotRetried(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&hits, 1)
		ctx.SetStatusCode(fasthttp.StatusBadGateway)
	})
	if err := c.SendImage(context.Background(), "roomA", "aGk="); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("reply must be sent once, got %d attempts", n)
	}
}

func TestGetConfigRetries(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(ctx *fasthttp.RequestCtx) {
		if atomic.AddInt32(&hits, 1) < 3 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetBodyString(`{"bot_http_port":3000,"db_polling_rate":100,"message_send_rate":50,"web_server_endpoint":"http://bot"}`)
	})
	cfg, err := c.GetConfig(context.Background())
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Port != 3000 || cfg.WebserverEndpoint != "http://bot" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestSendRequiresRoom(t *testing.T) {
	c := NewClient("http://iris.test")
	if err := c.SendMessage(context.Background(), " ", "x"); err == nil {
		t.Fatalf("expected error for empty room")
	}
}

func TestMessageUserID(t *testing.T) {
	name := " Kim "
	m := &Message{Sender: &name}
	if m.UserID() != "Kim" || m.SenderName() != "Kim" {
		t.Fatalf("unexpected sender fallback %q", m.UserID())
	}
	m.JSON = &MessageJSON{UserID: "12345"}
	if m.UserID() != "12345" {
		t.Fatalf("expected json user id, got %q", m.UserID())
	}
	var nilMsg *Message
	if nilMsg.UserID() != "" {
		t.Fatalf("nil message should have no user")
	}
}
