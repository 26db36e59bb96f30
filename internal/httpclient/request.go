// internal/httpclient/request.go
package httpclient

import (
	"net/http"
	"net/url"
	"time"
)

// Request is a buffered outgoing request. The body is kept in memory so the
// same request can be re-issued after a token refresh.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string

	// IsRefresh marks the token refresh call itself; it is never retried.
	IsRefresh bool
	// Retried is set once the request has been re-issued after a refresh.
	Retried bool
}

// Response is a fully read response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Duration time.Duration
	Request  *Request
}

// Option adjusts a request built by the JSON helpers.
type Option func(*Request)

// WithQuery adds query parameters.
func WithQuery(q url.Values) Option {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for k, vs := range q {
			for _, v := range vs {
				r.Query.Add(k, v)
			}
		}
	}
}

// WithHeader sets a request header.
func WithHeader(key, value string) Option {
	return func(r *Request) {
		r.Header.Set(key, value)
	}
}

// AsRefresh marks the request as the token refresh call.
func AsRefresh() Option {
	return func(r *Request) {
		r.IsRefresh = true
	}
}

// NewRequest builds a request with an empty header set.
func NewRequest(method, path string, opts ...Option) *Request {
	r := &Request{
		Method: method,
		Path:   path,
		Header: http.Header{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
