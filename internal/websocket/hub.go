// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	wstypes "backoffice-console/internal/domain/websocket"

	"go.uber.org/zap"
)

// Handler receives one realtime message.
type Handler func(ctx context.Context, msg *wstypes.WSMessage)

// Channel is the subscribe side of a realtime source.
type Channel interface {
	Subscribe(event wstypes.EventType, handler Handler) (unsubscribe func())
}

// Publisher is the produce side.
type Publisher interface {
	Publish(ctx context.Context, msg *wstypes.WSMessage) error
}

// Hub fans messages out to subscribers by event type. Messages are queued by
// Publish and delivered one at a time, in order, by Run.
type Hub struct {
	mu       sync.RWMutex
	handlers map[wstypes.EventType]map[uint64]Handler
	nextID   uint64

	broadcast chan *wstypes.WSMessage
	logger    *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		handlers:  make(map[wstypes.EventType]map[uint64]Handler),
		broadcast: make(chan *wstypes.WSMessage, 256),
		logger:    logger,
	}
}

// Subscribe registers handler for event. The returned func is idempotent.
func (h *Hub) Subscribe(event wstypes.EventType, handler Handler) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.handlers[event] == nil {
		h.handlers[event] = make(map[uint64]Handler)
	}
	h.handlers[event][id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if subs, ok := h.handlers[event]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(h.handlers, event)
			}
		}
	}
}

// Publish queues msg for delivery. It blocks while the queue is full.
func (h *Hub) Publish(ctx context.Context, msg *wstypes.WSMessage) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers queued messages until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.Dispatch(ctx, msg)
		}
	}
}

// Dispatch delivers msg synchronously to the current subscribers of its type.
// A panicking handler is logged and does not stop delivery to the others.
func (h *Hub) Dispatch(ctx context.Context, msg *wstypes.WSMessage) {
	h.mu.RLock()
	subs := make([]Handler, 0, len(h.handlers[msg.Type]))
	for _, handler := range h.handlers[msg.Type] {
		subs = append(subs, handler)
	}
	h.mu.RUnlock()

	if len(subs) == 0 {
		h.logger.Debug("realtime message without subscribers", zap.String("type", string(msg.Type)))
		return
	}

	for _, handler := range subs {
		h.deliver(ctx, handler, msg)
	}
}

func (h *Hub) deliver(ctx context.Context, handler Handler, msg *wstypes.WSMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("realtime handler panicked",
				zap.String("type", string(msg.Type)),
				zap.String("message_id", msg.ID),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, msg)
}

// Subscribers returns the number of handlers registered for event.
func (h *Hub) Subscribers(event wstypes.EventType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[event])
}
