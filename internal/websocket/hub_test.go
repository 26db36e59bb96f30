package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	wstypes "backoffice-console/internal/domain/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu   sync.Mutex
	msgs []*wstypes.WSMessage
	got  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 64)}
}

func (r *recorder) handle(_ context.Context, msg *wstypes.WSMessage) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []*wstypes.WSMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for message %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*wstypes.WSMessage(nil), r.msgs...)
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	t.Parallel()

	hub := NewHub(zaptest.NewLogger(t))
	banned := newRecorder()
	updates := newRecorder()

	stopBanned := hub.Subscribe(wstypes.EventTypeUserBanned, banned.handle)
	hub.Subscribe(wstypes.EventTypePermissionsUpdated, updates.handle)
	assert.Equal(t, 1, hub.Subscribers(wstypes.EventTypeUserBanned))

	ctx := context.Background()
	hub.Dispatch(ctx, wstypes.NewMessage(wstypes.EventTypeUserBanned, nil))
	hub.Dispatch(ctx, wstypes.NewMessage(wstypes.EventTypePermissionsUpdated, nil))

	assert.Len(t, banned.wait(t, 1), 1)
	assert.Len(t, updates.wait(t, 1), 1)

	stopBanned()
	stopBanned()
	assert.Zero(t, hub.Subscribers(wstypes.EventTypeUserBanned))

	hub.Dispatch(ctx, wstypes.NewMessage(wstypes.EventTypeUserBanned, nil))
	banned.mu.Lock()
	assert.Len(t, banned.msgs, 1)
	banned.mu.Unlock()
}

func TestHub_RunDeliversInOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub(zaptest.NewLogger(t))
	rec := newRecorder()
	hub.Subscribe(wstypes.EventTypePermissionsUpdated, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	var ids []string
	for i := 0; i < 5; i++ {
		msg := wstypes.NewMessage(wstypes.EventTypePermissionsUpdated, nil)
		ids = append(ids, msg.ID)
		require.NoError(t, hub.Publish(ctx, msg))
	}

	got := rec.wait(t, 5)
	for i, msg := range got {
		assert.Equal(t, ids[i], msg.ID)
	}
}

func TestHub_PanickingHandlerIsContained(t *testing.T) {
	t.Parallel()

	hub := NewHub(zaptest.NewLogger(t))
	rec := newRecorder()
	hub.Subscribe(wstypes.EventTypeUserBanned, func(context.Context, *wstypes.WSMessage) { panic("boom") })
	hub.Subscribe(wstypes.EventTypeUserBanned, rec.handle)

	hub.Dispatch(context.Background(), wstypes.NewMessage(wstypes.EventTypeUserBanned, nil))
	assert.Len(t, rec.wait(t, 1), 1)
}

func TestHub_PublishHonoursContext(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < cap(hub.broadcast); i++ {
		hub.broadcast <- wstypes.NewMessage(wstypes.EventTypePing, nil)
	}
	require.ErrorIs(t, hub.Publish(ctx, wstypes.NewMessage(wstypes.EventTypePing, nil)), context.Canceled)
}
