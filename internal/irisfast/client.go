package irisfast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/httpx"
	"github.com/valyala/fasthttp"
)

// HeaderProvider returns the headers added to every request and handshake.
type HeaderProvider func() map[string]string

// Client talks to the Iris HTTP API.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.defaultTimeout = d } }

func WithHeaderProvider(h HeaderProvider) Option { return func(c *Client) { c.headers = h } }

func WithRetry(max int) Option { return func(c *Client) { c.retryMax = max } }

// WithHTTPClient swaps the fasthttp transport.
func WithHTTPClient(hc *fasthttp.Client) Option { return func(c *Client) { c.http = hc } }

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetConfig is read-only and retried.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/config", nil, &cfg, true); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SendMessage posts a text reply. Replies are sent once so a slow Iris never
// delivers the same message twice.
func (c *Client) SendMessage(ctx context.Context, room, message string) error {
	return c.reply(ctx, "text", room, message)
}

// SendImage posts a base64 PNG reply.
func (c *Client) SendImage(ctx context.Context, room, imageBase64 string) error {
	return c.reply(ctx, "image", room, imageBase64)
}

func (c *Client) reply(ctx context.Context, kind, room, data string) error {
	if strings.TrimSpace(room) == "" {
		return errors.New("room is required")
	}
	return c.doJSON(ctx, fasthttp.MethodPost, "/reply", ReplyRequest{Type: kind, Room: room, Data: data}, nil, false)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if k = strings.TrimSpace(k); k != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", path, err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
	}
	caller := httpx.Caller{HTTP: c.http, Service: "iris", Timeout: c.defaultTimeout}
	if err := caller.Do(ctx, req, resp, attempts); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
