// internal/service/auth/api.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"backoffice-console/internal/domain/auth"
	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/httpclient"
	xerrors "backoffice-console/internal/pkg/errors"
	"backoffice-console/internal/pkg/jwt"
	"backoffice-console/internal/pkg/session"

	"go.uber.org/zap"
)

const (
	LoginPath       = "/auth/login"
	RefreshPath     = "/auth/refresh"
	PermissionsPath = "/permissions/me"
)

// API talks to the user service: login and refresh on the public client,
// everything else on the private one.
type API struct {
	public  *httpclient.Client
	private *httpclient.Client
	logger  *zap.Logger
}

func NewAPI(public, private *httpclient.Client, logger *zap.Logger) *API {
	return &API{
		public:  public,
		private: private,
		logger:  logger,
	}
}

// Login exchanges credentials for tokens. Rejections by the backend wrap
// xerrors.ErrInvalidCredentials; the password is never logged.
func (a *API) Login(ctx context.Context, creds auth.Credentials) (session.Tokens, error) {
	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
	}

	var resp auth.TokenResponse
	if err := a.public.PostForm(ctx, LoginPath, form, &resp); err != nil {
		switch httpclient.StatusOf(err) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			a.logger.Info("login rejected", zap.String("username", creds.Username), zap.Int("status", httpclient.StatusOf(err)))
			return session.Tokens{}, fmt.Errorf("%w: %w", xerrors.ErrInvalidCredentials, err)
		}
		return session.Tokens{}, fmt.Errorf("login request failed: %w", err)
	}

	return a.tokens(resp)
}

// Refresh trades a refresh token for a new pair. The call is marked so a 401
// on it ends the session instead of triggering another refresh.
func (a *API) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	if refreshToken == "" {
		return session.Tokens{}, xerrors.ErrNoRefreshToken
	}

	var resp auth.TokenResponse
	err := a.public.PostForm(ctx, RefreshPath, url.Values{}, &resp,
		httpclient.WithQuery(url.Values{"refresh_token": {refreshToken}}),
		httpclient.AsRefresh(),
	)
	if err != nil {
		if httpclient.IsStatus(err, http.StatusUnauthorized) {
			return session.Tokens{}, fmt.Errorf("%w: %w", xerrors.ErrSessionExpired, err)
		}
		return session.Tokens{}, fmt.Errorf("refresh request failed: %w", err)
	}

	return a.tokens(resp)
}

// FetchPermissions returns the caller's granted permissions, names or records.
func (a *API) FetchPermissions(ctx context.Context) ([]permission.Ref, error) {
	var refs []permission.Ref
	if err := a.private.GetJSON(ctx, PermissionsPath, &refs); err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	return refs, nil
}

func (a *API) tokens(resp auth.TokenResponse) (session.Tokens, error) {
	if resp.AccessToken == "" {
		return session.Tokens{}, errors.New("token response carried no access token")
	}

	expiresAt := resp.ExpiresAt.Time
	if expiresAt.IsZero() {
		if exp, ok := jwt.Expiry(resp.AccessToken); ok {
			expiresAt = exp
		}
	}

	return session.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
