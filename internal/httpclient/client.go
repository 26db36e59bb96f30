// internal/httpclient/client.go
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second
	maxBodyBytes   = 10 << 20
)

// RequestInterceptor runs before a request is sent, in registration order.
// Returning an error aborts the request.
type RequestInterceptor func(ctx context.Context, req *Request) error

// ResponseInterceptor runs after a response (or transport error), in registration order.
// It may replace the response and error, for instance by re-issuing the request.
type ResponseInterceptor func(ctx context.Context, resp *Response, err error) (*Response, error)

type registered[T any] struct {
	id uint64
	fn T
}

// Client is a named REST client with an interceptor chain.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	mu       sync.RWMutex
	nextID   uint64
	requests []registered[RequestInterceptor]
	replies  []registered[ResponseInterceptor]
}

type ClientOption func(*Client)

// WithTimeout bounds every network call made by the client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(name, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("client", name))
	return c
}

func (c *Client) Name() string    { return c.name }
func (c *Client) BaseURL() string { return c.baseURL }

// UseRequest registers a request interceptor and returns a func that removes it.
func (c *Client) UseRequest(fn RequestInterceptor) (eject func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.requests = append(c.requests, registered[RequestInterceptor]{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.requests = without(c.requests, id)
	}
}

// UseResponse registers a response interceptor and returns a func that removes it.
func (c *Client) UseResponse(fn ResponseInterceptor) (eject func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.replies = append(c.replies, registered[ResponseInterceptor]{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.replies = without(c.replies, id)
	}
}

// Interceptors returns how many request and response interceptors are registered.
func (c *Client) Interceptors() (requests, responses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.requests), len(c.replies)
}

func without[T any](list []registered[T], id uint64) []registered[T] {
	out := list[:0:0]
	for _, r := range list {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

// Send runs the request interceptors, performs the call, then runs the response
// interceptors. Non-2xx responses come back with a *StatusError alongside the response.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}

	c.mu.RLock()
	requests := append([]registered[RequestInterceptor](nil), c.requests...)
	replies := append([]registered[ResponseInterceptor](nil), c.replies...)
	c.mu.RUnlock()

	for _, r := range requests {
		if err := r.fn(ctx, req); err != nil {
			c.logger.Debug("request aborted by interceptor",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(err),
			)
			return nil, err
		}
	}

	resp, err := c.do(ctx, req)

	for _, r := range replies {
		resp, err = r.fn(ctx, resp, err)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		// url.Error repeats the full URL, query included; the refresh token travels there.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		Status:   httpResp.StatusCode,
		Header:   httpResp.Header,
		Body:     data,
		Duration: time.Since(start),
		Request:  req,
	}

	if resp.Status < 200 || resp.Status >= 300 {
		return resp, &StatusError{
			Method:  req.Method,
			Path:    req.Path,
			Status:  resp.Status,
			Message: errorMessage(data),
			Body:    data,
		}
	}
	return resp, nil
}
