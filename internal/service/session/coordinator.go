// internal/service/session/coordinator.go
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"backoffice-console/internal/domain/auth"
	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/httpclient"
	xerrors "backoffice-console/internal/pkg/errors"
	sessionstore "backoffice-console/internal/pkg/session"
	permsvc "backoffice-console/internal/service/permission"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Status of the operator session.
type Status string

const (
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusAnonymous     Status = "anonymous"
)

const (
	defaultRefreshTimeout = 30 * time.Second
	defaultEventTimeout   = 30 * time.Second
)

// AuthAPI is what the coordinator needs from the user service.
type AuthAPI interface {
	Login(ctx context.Context, creds auth.Credentials) (sessionstore.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (sessionstore.Tokens, error)
	FetchPermissions(ctx context.Context) ([]permission.Ref, error)
}

// Snapshot is a consistent read of the session. Version grows with every
// change, so a consumer can drop a snapshot older than one it already holds.
type Snapshot struct {
	Version     uint64    `json:"version"`
	Status      Status    `json:"status"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Coordinator owns the session state machine:
// loading -> authenticated | anonymous, authenticated -> anonymous.
// It is the only writer of the token store.
type Coordinator struct {
	tokens *sessionstore.TokenStore
	api    AuthAPI
	logger *zap.Logger

	refreshTimeout time.Duration
	eventTimeout   time.Duration

	mu          sync.RWMutex
	status      Status
	permissions permission.Set
	// epoch changes on every login and logout; work started under an older
	// epoch must not write its result back.
	epoch   uint64
	version uint64

	// persistMu orders refresh token writes; a write whose epoch is stale is skipped.
	persistMu sync.Mutex

	flight         singleflight.Group
	refreshWaiters atomic.Int32
	bootOnce       sync.Once

	listenMu   sync.Mutex
	listeners  map[uint64]func(Snapshot)
	listenerID uint64

	notifyMu     sync.Mutex
	lastNotified uint64

	attachMu sync.Mutex
	detach   func()
	stops    []func()
}

type Option func(*Coordinator)

// WithRefreshTimeout bounds the shared refresh call, which outlives any single caller.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithEventTimeout bounds the work triggered by one realtime event.
func WithEventTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.eventTimeout = d
		}
	}
}

func NewCoordinator(tokens *sessionstore.TokenStore, api AuthAPI, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		tokens:         tokens,
		api:            api,
		logger:         logger,
		refreshTimeout: defaultRefreshTimeout,
		eventTimeout:   defaultEventTimeout,
		status:         StatusLoading,
		permissions:    permission.Set{},
		listeners:      make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ==== Lifecycle ====

// Bootstrap restores the session from the persisted refresh token. It runs once;
// later calls return the current status. It always ends authenticated or anonymous.
func (c *Coordinator) Bootstrap(ctx context.Context) Status {
	c.bootOnce.Do(func() {
		defer func() {
			if c.Status() == StatusLoading {
				c.Logout()
			}
		}()
		c.bootstrap(ctx)
	})
	return c.Status()
}

func (c *Coordinator) bootstrap(ctx context.Context) {
	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		c.logger.Debug("no persisted session")
		c.Logout()
		return
	}

	if _, err := c.RefreshSession(ctx, refreshToken); err != nil {
		c.logger.Info("persisted session could not be restored", zap.Error(err))
		c.Logout()
		return
	}

	if err := c.SyncPermissions(ctx); err != nil {
		c.logger.Warn("session restored without permissions", zap.Error(err))
	}

	c.mu.Lock()
	if c.status == StatusLoading && c.tokens.AccessToken() != "" {
		c.status = StatusAuthenticated
	}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	c.logger.Info("session restored", zap.String("status", string(snap.Status)), zap.Int("permissions", len(snap.Permissions)))
}

// Login exchanges credentials for tokens and loads permissions. On failure the
// state is left untouched and the error is returned. A permission fetch failure
// does not fail the login: the session starts with no permissions.
func (c *Coordinator) Login(ctx context.Context, creds auth.Credentials) error {
	tokens, err := c.api.Login(ctx, creds)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.tokens.SetAccess(tokens.AccessToken, tokens.ExpiresAt)
	c.status = StatusAuthenticated
	c.permissions = permission.Set{}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.persist(epoch, func() { c.tokens.PersistRefresh(tokens.RefreshToken) })
	c.notify(snap)
	c.logger.Info("signed in", zap.String("username", creds.Username))

	if err := c.SyncPermissions(ctx); err != nil {
		c.logger.Warn("signed in without permissions", zap.Error(err))
	}
	return nil
}

// Logout clears tokens and permissions. Idempotent, no network.
func (c *Coordinator) Logout() {
	c.logout(false, 0)
}

// logout ends the session. With onlyEpoch set it does nothing once the session
// has moved past epoch, and reports whether it ran.
func (c *Coordinator) logout(onlyEpoch bool, epoch uint64) bool {
	c.mu.Lock()
	if onlyEpoch && c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.epoch++
	current := c.epoch
	c.tokens.ClearAccess()
	changed := c.status != StatusAnonymous || len(c.permissions) > 0
	c.status = StatusAnonymous
	c.permissions = permission.Set{}
	var snap Snapshot
	if changed {
		snap = c.changedLocked()
	}
	c.mu.Unlock()

	c.persist(current, c.tokens.RemoveRefresh)
	if changed {
		c.logger.Info("signed out")
		c.notify(snap)
	}
	return true
}

// persist runs a refresh token write unless a later login or logout has
// already taken over. Writes never run under c.mu.
func (c *Coordinator) persist(epoch uint64, write func()) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	if c.currentEpoch() != epoch {
		return
	}
	write()
}

// ==== Refresh ====

// RefreshSession trades the refresh token (override, or the persisted one) for a
// new access token. Concurrent callers with the same token share one call; the
// call itself is not cancelled when one caller gives up. A rejected refresh ends
// the session. When the session was replaced or ended while the call ran, the
// result is dropped and the error wraps xerrors.ErrSessionChanged.
func (c *Coordinator) RefreshSession(ctx context.Context, override string) (string, error) {
	refreshToken := override
	if refreshToken == "" {
		refreshToken = c.tokens.RefreshToken()
	}
	if refreshToken == "" {
		return "", xerrors.ErrNoRefreshToken
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(refreshToken, func() (any, error) {
		return c.refresh(flightCtx, refreshToken)
	})

	c.refreshWaiters.Add(1)
	defer c.refreshWaiters.Add(-1)

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) refresh(ctx context.Context, refreshToken string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()

	epoch := c.currentEpoch()

	tokens, err := c.api.Refresh(ctx, refreshToken)
	if err != nil {
		if !c.logout(true, epoch) {
			c.logger.Info("ignoring failed refresh from a previous session", zap.Error(err))
			return "", fmt.Errorf("%w: %w", xerrors.ErrSessionChanged, err)
		}
		c.logger.Warn("session refresh failed", zap.Error(err))
		return "", err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Info("discarding refresh that finished after the session changed")
		return "", fmt.Errorf("%w: %w", xerrors.ErrSessionChanged, xerrors.ErrSessionExpired)
	}
	c.tokens.SetAccess(tokens.AccessToken, tokens.ExpiresAt)
	changed := c.status == StatusAnonymous
	var snap Snapshot
	if changed {
		c.status = StatusAuthenticated
		c.permissions = permission.Set{}
		snap = c.changedLocked()
	}
	c.mu.Unlock()

	c.persist(epoch, func() { c.tokens.PersistRefresh(tokens.RefreshToken) })
	if changed {
		c.notify(snap)
	}
	c.logger.Debug("session refreshed", zap.Time("expires_at", tokens.ExpiresAt))
	return tokens.AccessToken, nil
}

// ==== Permissions ====

// SyncPermissions replaces the permission set. On failure the set is emptied and
// the error returned; the session stays signed in.
func (c *Coordinator) SyncPermissions(ctx context.Context) error {
	c.mu.RLock()
	epoch, status := c.epoch, c.status
	c.mu.RUnlock()

	if status == StatusAnonymous {
		return xerrors.ErrNotAuthenticated
	}

	refs, err := c.api.FetchPermissions(ctx)

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%w: %w", xerrors.ErrSessionChanged, err)
		}
		return xerrors.ErrSessionChanged
	}
	if err != nil {
		c.permissions = permission.Set{}
	} else {
		c.permissions = permission.Normalize(refs)
	}
	snap := c.changedLocked()
	c.mu.Unlock()

	c.notify(snap)
	if err != nil {
		return fmt.Errorf("permission sync failed: %w", err)
	}
	return nil
}

// ==== HTTP wiring ====

// Attach installs bearer stamping and 401 handling on both clients. Attaching
// again first removes what the previous call installed.
func (c *Coordinator) Attach(public, private *httpclient.Client) {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	if c.detach != nil {
		c.detach()
	}
	c.detach = httpclient.Install(httpclient.Hooks{
		AccessToken:  c.tokens.AccessToken,
		RefreshToken: c.tokens.RefreshToken,
		Refresh: func(ctx context.Context) (string, error) {
			return c.RefreshSession(ctx, "")
		},
		OnUnauthorized: c.Logout,
	}, public, private)
}

// Close detaches interceptors and realtime listeners. The session state is kept.
func (c *Coordinator) Close() {
	c.attachMu.Lock()
	defer c.attachMu.Unlock()

	if c.detach != nil {
		c.detach()
		c.detach = nil
	}
	for _, stop := range c.stops {
		stop()
	}
	c.stops = nil
}

// ==== Queries ====

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *Coordinator) IsAuthenticated() bool { return c.Status() == StatusAuthenticated }
func (c *Coordinator) IsLoading() bool       { return c.Status() == StatusLoading }

// Permissions returns the granted keys, sorted.
func (c *Coordinator) Permissions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permissions.Strings()
}

// HasPermission checks the current grant. An empty key list is allowed.
func (c *Coordinator) HasPermission(mode permission.Mode, keys ...permission.Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return permsvc.Allows(c.permissions, mode, keys...)
}

// OnChange registers fn to receive a snapshot after every state change.
// Snapshots arrive in version order; one overtaken by a newer change is skipped.
// fn runs on the goroutine that made the change, must not block, and must not
// call back into the coordinator.
func (c *Coordinator) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	c.listenerID++
	id := c.listenerID
	c.listeners[id] = fn

	return func() {
		c.listenMu.Lock()
		defer c.listenMu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Coordinator) notify(snap Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if snap.Version <= c.lastNotified {
		return
	}
	c.lastNotified = snap.Version

	c.listenMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// changedLocked records a state change and returns its snapshot.
func (c *Coordinator) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		Version:     c.version,
		Status:      c.status,
		Permissions: c.permissions.Strings(),
		ExpiresAt:   c.tokens.ExpiresAt(),
	}
}

func (c *Coordinator) currentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}
