package websocket

import (
	"context"
	"os"
	"testing"
	"time"

	wstypes "backoffice-console/internal/domain/websocket"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRedisChannel(t *testing.T) {
	addr := os.Getenv("CONSOLE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONSOLE_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(zaptest.NewLogger(t))
	rec := newRecorder()
	hub.Subscribe(wstypes.EventTypeUserBanned, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	channel := NewRedisChannel(client, "backoffice:test:"+t.Name(), hub, zaptest.NewLogger(t))
	ready := make(chan struct{})
	go func() { _ = channel.Run(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not confirmed")
	}

	msg := wstypes.NewMessage(wstypes.EventTypeUserBanned, wstypes.BanData{Reason: "test"})
	require.NoError(t, channel.Publish(ctx, msg))

	got := rec.wait(t, 1)
	assert.Equal(t, msg.ID, got[0].ID)
}
