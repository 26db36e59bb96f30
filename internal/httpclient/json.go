// internal/httpclient/json.go
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// GetJSON issues a GET and decodes the (possibly enveloped) payload into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any, opts ...Option) error {
	return c.roundTrip(ctx, NewRequest(http.MethodGet, path, opts...), out)
}

// PostJSON encodes body as JSON and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any, opts ...Option) error {
	req, err := jsonRequest(http.MethodPost, path, body, opts...)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, req, out)
}

// PutJSON encodes body as JSON and decodes the reply into out.
func (c *Client) PutJSON(ctx context.Context, path string, body, out any, opts ...Option) error {
	req, err := jsonRequest(http.MethodPut, path, body, opts...)
	if err != nil {
		return err
	}
	return c.roundTrip(ctx, req, out)
}

// Delete issues a DELETE and ignores the body.
func (c *Client) Delete(ctx context.Context, path string, opts ...Option) error {
	return c.roundTrip(ctx, NewRequest(http.MethodDelete, path, opts...), nil)
}

// PostForm sends a form-encoded POST and decodes the reply into out.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, out any, opts ...Option) error {
	req := NewRequest(http.MethodPost, path, opts...)
	req.Body = []byte(form.Encode())
	req.ContentType = "application/x-www-form-urlencoded"
	return c.roundTrip(ctx, req, out)
}

// Do sends a prepared request and decodes the reply into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	return c.roundTrip(ctx, req, out)
}

func (c *Client) roundTrip(ctx context.Context, req *Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return Decode(resp.Body, out)
}

func jsonRequest(method, path string, body any, opts ...Option) (*Request, error) {
	req := NewRequest(method, path, opts...)
	if body == nil {
		return req, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req.Body = data
	req.ContentType = "application/json"
	return req, nil
}

// Decode unwraps the payload: a top-level object with a "data" member is an
// envelope and only the member is decoded; anything else is the payload itself.
func Decode(body []byte, out any) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}

	payload := body
	if body[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err == nil {
			if data, ok := envelope["data"]; ok {
				payload = data
			}
		}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
