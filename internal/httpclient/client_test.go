package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestClient_InterceptorOrderAndEject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Trace"))
	}))
	t.Cleanup(srv.Close)

	c := New("test", srv.URL, WithLogger(zaptest.NewLogger(t)))

	var order []string
	ejectA := c.UseRequest(func(_ context.Context, req *Request) error {
		order = append(order, "a")
		req.Header.Set("X-Trace", req.Header.Get("X-Trace")+"a")
		return nil
	})
	c.UseRequest(func(_ context.Context, req *Request) error {
		order = append(order, "b")
		req.Header.Set("X-Trace", req.Header.Get("X-Trace")+"b")
		return nil
	})
	c.UseResponse(func(_ context.Context, resp *Response, err error) (*Response, error) {
		order = append(order, "resp")
		return resp, err
	})

	resp, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/trace"))
	require.NoError(t, err)
	assert.Equal(t, "ab", string(resp.Body))
	assert.Equal(t, []string{"a", "b", "resp"}, order)

	ejectA()
	ejectA()
	reqs, resps := c.Interceptors()
	assert.Equal(t, 1, reqs)
	assert.Equal(t, 1, resps)

	resp, err = c.Send(context.Background(), NewRequest(http.MethodGet, "/trace"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(resp.Body))
}

func TestClient_RequestInterceptorAborts(t *testing.T) {
	t.Parallel()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits++ }))
	t.Cleanup(srv.Close)

	boom := errors.New("offline")
	c := New("test", srv.URL)
	c.UseRequest(func(context.Context, *Request) error { return boom })

	_, err := c.Send(context.Background(), NewRequest(http.MethodGet, "/"))
	require.ErrorIs(t, err, boom)
	assert.Zero(t, hits)
}

func TestClient_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"success":false,"message":"name is required"}`)
		case "/nested":
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"error":{"message":"already exists"}}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `upstream down`)
		}
	}))
	t.Cleanup(srv.Close)

	c := New("test", srv.URL)
	ctx := context.Background()

	err := c.GetJSON(ctx, "/message", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, "name is required", se.Message)

	err = c.GetJSON(ctx, "/nested", nil)
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.Contains(t, err.Error(), "already exists")

	err = c.GetJSON(ctx, "/raw", nil)
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Contains(t, err.Error(), "upstream down")
	assert.Zero(t, StatusOf(errors.New("plain")))
}

func TestClient_JSONHelpers(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/form":
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			_, _ = io.WriteString(w, `{"data":{"echo":"`+string(body)+`"}}`)
		case r.Method == http.MethodPut:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			_, _ = io.WriteString(w, `{"echo":`+string(body)+`}`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			_, _ = io.WriteString(w, `{"echo":"`+r.URL.RawQuery+`"}`)
		}
	}))
	t.Cleanup(srv.Close)

	c := New("test", srv.URL+"/", WithTimeout(time.Second))
	ctx := context.Background()

	var out struct {
		Echo any `json:"echo"`
	}

	require.NoError(t, c.PostForm(ctx, "/form", url.Values{"username": {"u"}}, &out))
	assert.Equal(t, "username=u", out.Echo)

	require.NoError(t, c.PutJSON(ctx, "put", map[string]int{"n": 1}, &out))
	assert.Equal(t, map[string]any{"n": float64(1)}, out.Echo)

	require.NoError(t, c.GetJSON(ctx, "/q", &out, WithQuery(url.Values{"a": {"1"}})))
	assert.Equal(t, "a=1", out.Echo)

	require.NoError(t, c.Delete(ctx, "/x"))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var list []string
	require.NoError(t, Decode([]byte(`{"data":["a","b"]}`), &list))
	assert.Equal(t, []string{"a", "b"}, list)

	list = nil
	require.NoError(t, Decode([]byte(`["c"]`), &list))
	assert.Equal(t, []string{"c"}, list)

	list = nil
	require.NoError(t, Decode([]byte(`{"data":null}`), &list))
	assert.Nil(t, list)

	var obj map[string]any
	require.NoError(t, Decode([]byte(`{"access_token":"AT1"}`), &obj))
	assert.Equal(t, "AT1", obj["access_token"])

	require.NoError(t, Decode(nil, &obj))
	require.Error(t, Decode([]byte(`{"data":1}`), &list))
}

func TestClient_TransportErrorHidesQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New("test", srv.URL)
	err := c.PostForm(context.Background(), "/auth/refresh", nil, nil,
		WithQuery(url.Values{"refresh_token": {"RT-secret"}}))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "RT-secret")
}
