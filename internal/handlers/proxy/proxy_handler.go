// internal/handlers/proxy/proxy_handler.go
package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"backoffice-console/internal/httpclient"
	"backoffice-console/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxForwardBody = 8 << 20

// Sender is satisfied by *httpclient.Client.
type Sender interface {
	Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// forwarded request headers; Authorization is stamped by the client itself.
var forwardHeaders = []string{"Accept", "Accept-Language", "X-Request-ID", "If-None-Match"}

// ProxyHandler forwards console API calls to a backend prefix through the
// authenticated client, so bearer stamping and the refresh retry apply.
type ProxyHandler struct {
	client Sender
	prefix string
	logger *zap.Logger
}

func NewProxyHandler(client Sender, prefix string, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		client: client,
		prefix: "/" + strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Forward expects the remaining path in the "path" wildcard.
func (h *ProxyHandler) Forward(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxForwardBody+1))
	if err != nil {
		response.ValidationError(c, "failed to read request body", err)
		return
	}
	if len(body) > maxForwardBody {
		response.Error(c, http.StatusRequestEntityTooLarge, "request body too large", nil)
		return
	}

	req := httpclient.NewRequest(c.Request.Method, h.prefix+c.Param("path"),
		httpclient.WithQuery(c.Request.URL.Query()))
	if len(body) > 0 {
		req.Body = body
		req.ContentType = c.ContentType()
	}
	for _, name := range forwardHeaders {
		if v := c.GetHeader(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := h.client.Send(c.Request.Context(), req)

	var statusErr *httpclient.StatusError
	if resp == nil || (err != nil && !errors.As(err, &statusErr)) {
		h.logger.Warn("backend call failed",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		response.FromError(c, "backend unavailable", err)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.Status, contentType, resp.Body)
}
