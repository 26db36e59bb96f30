// internal/service/session/realtime.go
package session

import (
	"context"
	"errors"

	wstypes "backoffice-console/internal/domain/websocket"
	xerrors "backoffice-console/internal/pkg/errors"
	"backoffice-console/internal/websocket"

	"go.uber.org/zap"
)

// Listen reacts to account events pushed by the user service:
//   - user:banned ends the session
//   - user:permissions:update refreshes the session and reloads permissions,
//     ending the session if either step fails, unless a newer session took
//     over in the meantime
//
// The returned func stops listening. Close also stops it.
func (c *Coordinator) Listen(channel websocket.Channel) (stop func()) {
	stopBanned := channel.Subscribe(wstypes.EventTypeUserBanned, c.onBanned)
	stopUpdated := channel.Subscribe(wstypes.EventTypePermissionsUpdated, c.onPermissionsUpdated)

	stop = func() {
		stopBanned()
		stopUpdated()
	}

	c.attachMu.Lock()
	c.stops = append(c.stops, stop)
	c.attachMu.Unlock()

	return stop
}

func (c *Coordinator) onBanned(_ context.Context, msg *wstypes.WSMessage) {
	var ban wstypes.BanData
	if err := msg.DecodeData(&ban); err != nil {
		c.logger.Debug("malformed ban payload", zap.String("message_id", msg.ID), zap.Error(err))
	}
	c.logger.Warn("account banned, signing out",
		zap.String("message_id", msg.ID),
		zap.String("reason", ban.Reason),
	)
	c.Logout()
}

func (c *Coordinator) onPermissionsUpdated(ctx context.Context, msg *wstypes.WSMessage) {
	ctx, cancel := context.WithTimeout(ctx, c.eventTimeout)
	defer cancel()

	c.logger.Info("permissions changed upstream", zap.String("message_id", msg.ID))

	epoch := c.currentEpoch()

	if _, err := c.RefreshSession(ctx, ""); err != nil {
		c.endAfterEvent(epoch, "refresh after permission change failed", err)
		return
	}
	if err := c.SyncPermissions(ctx); err != nil {
		c.endAfterEvent(epoch, "permission reload failed", err)
	}
}

// endAfterEvent signs out the session the event was about, never a newer one.
func (c *Coordinator) endAfterEvent(epoch uint64, msg string, err error) {
	if errors.Is(err, xerrors.ErrSessionChanged) || !c.logout(true, epoch) {
		c.logger.Info(msg+", session already ended or replaced", zap.Error(err))
		return
	}
	c.logger.Warn(msg+", signed out", zap.Error(err))
}
