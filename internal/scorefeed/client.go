package scorefeed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/httpx"
	"github.com/valyala/fasthttp"
)

const DefaultBaseURL = "https://site.api.espn.com/apis/site/v2/sports"

// Client fetches event summaries from the ESPN site API.
type Client struct {
	baseURL   string
	http      *fasthttp.Client
	userAgent string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.defaultTimeout = d } }
func WithRetry(max int) Option           { return func(c *Client) { c.retryMax = max } }

// WithHTTPClient swaps the transport, e.g. for an in-memory listener.
func WithHTTPClient(hc *fasthttp.Client) Option { return func(c *Client) { c.http = hc } }

func NewClient(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second, MaxConnsPerHost: 16},
		userAgent:      "Mozilla/5.0 (compatible; SquaresBot/1.0)",
		defaultTimeout: 15 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchSummary GETs {base}/{sportPath}/summary?event={eventID}.
func (c *Client) FetchSummary(ctx context.Context, sportPath, eventID string) (*Summary, error) {
	sportPath = strings.Trim(strings.TrimSpace(sportPath), "/")
	if sportPath == "" || strings.TrimSpace(eventID) == "" {
		return nil, fmt.Errorf("sport path and event id are required")
	}
	uri := fmt.Sprintf("%s/%s/summary?event=%s", c.baseURL, sportPath, url.QueryEscape(strings.TrimSpace(eventID)))
	body, err := c.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return ParseSummary(body)
}

func (c *Client) get(ctx context.Context, uri string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(uri)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	caller := httpx.Caller{HTTP: c.http, Service: "espn", Timeout: c.defaultTimeout}
	if err := caller.Do(ctx, req, resp, c.retryMax); err != nil {
		return nil, err
	}
	// resp goes back to the pool on return
	return append([]byte(nil), resp.Body()...), nil
}
