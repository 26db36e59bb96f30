package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backoffice-console/internal/httpclient"
	xerrors "backoffice-console/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() { gin.SetMode(gin.TestMode) }

func newRouter(t *testing.T, client Sender) *gin.Engine {
	t.Helper()
	h := NewProxyHandler(client, "catalog", zaptest.NewLogger(t))
	r := gin.New()
	r.Any("/api/catalog/*path", h.Forward)
	return r
}

func TestForward_PassesThrough(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "/catalog/products/7", r.URL.Path)
		assert.Equal(t, "full", r.URL.Query().Get("view"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer AT1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Cookie"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	}))
	t.Cleanup(backend.Close)

	client := httpclient.New("private", backend.URL)
	client.UseRequest(func(_ context.Context, req *httpclient.Request) error {
		req.Header.Set("Authorization", "Bearer AT1")
		return nil
	})
	r := newRouter(t, client)

	req := httptest.NewRequest(http.MethodPut, "/api/catalog/products/7?view=full", strings.NewReader(`{"price":10}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cookie", "console=secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"price":10}`, w.Body.String())
}

func TestForward_UpstreamErrorStatusIsKept(t *testing.T) {
	t.Parallel()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"message":"sku taken"}`)
	}))
	t.Cleanup(backend.Close)

	r := newRouter(t, httpclient.New("private", backend.URL))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/catalog/products", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"message":"sku taken"}`, w.Body.String())
}

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, *httpclient.Request) (*httpclient.Response, error) {
	return nil, f.err
}

func TestForward_SessionAndTransportFailures(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	newRouter(t, failingSender{err: xerrors.ErrSessionExpired}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog/products", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	newRouter(t, failingSender{err: errors.New("connection refused")}).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/catalog/products", nil))
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "backend unavailable")
}
