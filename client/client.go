package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/TheRockettek/Sandwich-Gateway/events"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

const (
	// APIVersion we will use from discord
	APIVersion = "6"

	// EndpointDiscord denotes the base URL for all api requests
	EndpointDiscord = "https://discord.com/"

	// EndpointAPI is the url subset for getting the actual API base url
	EndpointAPI = EndpointDiscord + "api/v" + APIVersion + "/"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client executes REST calls through the ratelimiter and decodes typed
// results or error bodies. It is safe for concurrent use.
type Client struct {
	// Token is sent verbatim in the Authorization header. Bot tokens
	// must already carry the Bot prefix.
	Token string

	UserAgent string

	// APIBase may be pointed at a plain http proxy for debugging.
	APIBase string

	HTTP        *http.Client
	Ratelimiter *Ratelimiter

	log zerolog.Logger
}

// NewClient creates a REST client for the given token.
func NewClient(token string, log zerolog.Logger) *Client {
	return &Client{
		Token:       token,
		UserAgent:   "DiscordBot (https://github.com/TheRockettek/Sandwich-Gateway, v" + events.VERSION + ")",
		APIBase:     EndpointAPI,
		HTTP:        &http.Client{Timeout: (20 * time.Second)},
		Ratelimiter: NewRatelimiter(),
		log:         log,
	}
}

// Do executes a request through the ratelimiter and returns the raw
// response body. Non 2xx responses return a ResponseError.
func (c *Client) Do(ctx context.Context, req *Request) ([]byte, error) {
	body, contentType, err := req.build()
	if err != nil {
		return nil, err
	}

	url := c.APIBase + strings.TrimPrefix(req.Path, "/")

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildingRequest, err)
	}

	httpReq.Header.Set("User-Agent", c.UserAgent)
	httpReq.Header.Set("X-RateLimit-Precision", "millisecond")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", c.Token)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.ContentLength = int64(len(body))

	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	ticket, err := c.Ratelimiter.Acquire(ctx, req.Route)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		ticket.Cancel()

		if ctx.Err() != nil {
			return nil, ErrRequestCanceled
		}

		return nil, fmt.Errorf("%w: %v", ErrRequest, err)
	}
	defer resp.Body.Close()

	responseBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		ticket.Cancel()
		return nil, fmt.Errorf("%w: %v", ErrChunkingResponse, err)
	}

	ticket.Release(resp.StatusCode, resp.Header)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidToken
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newResponseError(resp.StatusCode, responseBody)
	}

	return responseBody, nil
}

// DoJSON executes a request and decodes the response body into v. v may be
// nil to discard the body.
func (c *Client) DoJSON(ctx context.Context, req *Request, v interface{}) error {
	body, err := c.Do(ctx, req)
	if err != nil {
		return err
	}

	if v == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrParsing, err)
	}

	return nil
}

// Gateway returns the public gateway url.
func (c *Client) Gateway(ctx context.Context) (*events.Gateway, error) {
	var gateway events.Gateway

	req := NewRequest(http.MethodGet, "GET /gateway", "gateway")
	if err := c.DoJSON(ctx, req, &gateway); err != nil {
		return nil, err
	}

	return &gateway, nil
}

// GatewayBot returns the gateway url, recommended shard count and session
// start limit for the authenticated bot. A 429 is retried once the
// ratelimiter allows it.
func (c *Client) GatewayBot(ctx context.Context) (*events.GatewayBot, error) {
	for attempt := 0; ; attempt++ {
		var gatewayBot events.GatewayBot

		req := NewRequest(http.MethodGet, "GET /gateway/bot", "gateway/bot")
		err := c.DoJSON(ctx, req, &gatewayBot)
		if err == nil {
			return &gatewayBot, nil
		}

		var respErr *ResponseError
		if errors.As(err, &respErr) && respErr.Status == http.StatusTooManyRequests && attempt < 3 {
			c.log.Warn().Int("attempt", attempt).Msg("gateway request was ratelimited")
			continue
		}

		return nil, err
	}
}
