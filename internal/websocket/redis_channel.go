// internal/websocket/redis_channel.go
package websocket

import (
	"context"
	"fmt"

	wstypes "backoffice-console/internal/domain/websocket"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultRedisChannel is the pub/sub channel account events are published on.
const DefaultRedisChannel = "backoffice:events"

// RedisChannel bridges a Redis pub/sub channel to a Hub, for deployments where the
// user service fans account events out through Redis instead of a websocket.
type RedisChannel struct {
	client  redis.UniversalClient
	channel string
	hub     Publisher
	logger  *zap.Logger
}

func NewRedisChannel(client redis.UniversalClient, channel string, hub Publisher, logger *zap.Logger) *RedisChannel {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisChannel{client: client, channel: channel, hub: hub, logger: logger}
}

// Run subscribes and forwards messages to the hub until ctx is cancelled.
// ready, when non-nil, is closed once the subscription is confirmed.
func (r *RedisChannel) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("listening for account events", zap.String("redis_channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-messages:
			if !ok {
				return nil
			}
			msg, err := wstypes.ParseMessage([]byte(m.Payload))
			if err != nil {
				r.logger.Warn("dropping malformed account event", zap.Error(err))
				continue
			}
			if err := r.hub.Publish(ctx, msg); err != nil {
				return nil
			}
		}
	}
}

// Publish sends msg to every console listening on the channel.
func (r *RedisChannel) Publish(ctx context.Context, msg *wstypes.WSMessage) error {
	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal account event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish account event: %w", err)
	}
	return nil
}
