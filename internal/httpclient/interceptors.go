// internal/httpclient/interceptors.go
package httpclient

import (
	"context"
	"errors"
	"net/http"
	"sync"

	xerrors "backoffice-console/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

// Hooks connect the interceptors to whoever owns the session.
type Hooks struct {
	// AccessToken is read on every request, never cached.
	AccessToken func() string
	// RefreshToken reports the persisted refresh token; empty means none.
	RefreshToken func() string
	// Refresh obtains a new access token. Concurrent callers must share one call.
	// An error wrapping xerrors.ErrSessionChanged means the session was replaced
	// or ended meanwhile; it propagates without OnUnauthorized.
	Refresh func(ctx context.Context) (string, error)
	// OnUnauthorized is called when a 401 cannot be recovered.
	OnUnauthorized func()
}

// Install wires bearer stamping on both clients and 401 handling:
// the public client never retries, the private client refreshes once and re-issues.
// The returned teardown removes everything Install registered and is safe to call twice.
func Install(h Hooks, public, private *Client) (teardown func()) {
	var ejects []func()

	stamp := bearer(h.AccessToken)
	ejects = append(ejects,
		public.UseRequest(stamp),
		public.UseResponse(publicUnauthorized(h)),
		private.UseRequest(stamp),
		private.UseResponse(privateUnauthorized(h, private)),
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, eject := range ejects {
				eject()
			}
		})
	}
}

func bearer(token func() string) RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		if t := token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
		return nil
	}
}

// publicUnauthorized treats a 401 on the refresh call as the end of the session.
func publicUnauthorized(h Hooks) ResponseInterceptor {
	return func(_ context.Context, resp *Response, err error) (*Response, error) {
		if IsStatus(err, http.StatusUnauthorized) && resp != nil && resp.Request.IsRefresh {
			h.OnUnauthorized()
		}
		return resp, err
	}
}

func privateUnauthorized(h Hooks, private *Client) ResponseInterceptor {
	return func(ctx context.Context, resp *Response, err error) (*Response, error) {
		if !IsStatus(err, http.StatusUnauthorized) || resp == nil {
			return resp, err
		}

		req := resp.Request
		if req.IsRefresh || req.Retried {
			h.OnUnauthorized()
			return resp, err
		}
		if h.RefreshToken() == "" {
			h.OnUnauthorized()
			return resp, err
		}

		if _, refreshErr := h.Refresh(ctx); refreshErr != nil {
			// the caller gave up waiting; the shared refresh carries on without it
			if ctx.Err() != nil || errors.Is(refreshErr, xerrors.ErrSessionChanged) {
				return resp, refreshErr
			}
			h.OnUnauthorized()
			return resp, refreshErr
		}

		req.Retried = true
		return private.Send(ctx, req)
	}
}

// RequestID stamps a ULID X-Request-ID on requests that do not carry one.
func RequestID() RequestInterceptor {
	return func(_ context.Context, req *Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.Header.Set(RequestIDHeader, ulid.Make().String())
		}
		return nil
	}
}

// LogResponses logs every call at debug level and failures at warn.
// Headers and bodies are never logged.
func LogResponses(logger *zap.Logger) ResponseInterceptor {
	return func(_ context.Context, resp *Response, err error) (*Response, error) {
		if resp == nil {
			logger.Warn("request failed", zap.Error(err))
			return resp, err
		}

		fields := []zap.Field{
			zap.String("method", resp.Request.Method),
			zap.String("path", resp.Request.Path),
			zap.Int("status", resp.Status),
			zap.Duration("duration", resp.Duration),
			zap.String("request_id", resp.Request.Header.Get(RequestIDHeader)),
			zap.Bool("retried", resp.Request.Retried),
		}
		if err != nil {
			logger.Warn("request returned error status", fields...)
		} else {
			logger.Debug("request completed", fields...)
		}
		return resp, err
	}
}
