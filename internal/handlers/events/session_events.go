// internal/handlers/events/session_events.go
package events

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	wstypes "backoffice-console/internal/domain/websocket"
	sessionsvc "backoffice-console/internal/service/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Source is the part of the session coordinator the stream reads.
type Source interface {
	Snapshot() sessionsvc.Snapshot
	OnChange(fn func(sessionsvc.Snapshot)) (unsubscribe func())
}

// SessionEventsHandler streams session snapshots to the console front end
// so open pages react to sign-out and permission changes without polling.
type SessionEventsHandler struct {
	session  Source
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu     sync.Mutex
	active int
}

func NewSessionEventsHandler(session Source, allowedOrigins []string, logger *zap.Logger) *SessionEventsHandler {
	h := &SessionEventsHandler{
		session: session,
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Stream upgrades the request and sends the current snapshot, then one
// session:changed message per state change. Bursts are coalesced: a slow
// reader only ever receives the latest state.
func (h *SessionEventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("session stream upgrade failed", zap.Error(err), zap.String("ip", c.ClientIP()))
		return
	}

	// subscribe before reading so no change falls between the two
	sub := newLatest()
	unsubscribe := h.session.OnChange(sub.put)
	sub.put(h.session.Snapshot())

	h.track(1)
	h.logger.Debug("session stream opened", zap.String("ip", c.ClientIP()))

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)

	unsubscribe()
	h.track(-1)
	h.logger.Debug("session stream closed", zap.String("ip", c.ClientIP()))
}

// Active returns the number of open streams.
func (h *SessionEventsHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

func (h *SessionEventsHandler) track(delta int) {
	h.mu.Lock()
	h.active += delta
	h.mu.Unlock()
}

// readPump only services control frames; the stream is one-way.
func (h *SessionEventsHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("session stream read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *SessionEventsHandler) writePump(conn *websocket.Conn, sub *latest, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-done:
			return

		case <-sub.ready:
			snap := sub.take()
			payload, err := wstypes.NewMessage(wstypes.EventTypeSessionChanged, snap).ToJSON()
			if err != nil {
				h.logger.Error("failed to encode session snapshot", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// latest holds the most recent snapshot not yet written.
type latest struct {
	mu    sync.Mutex
	snap  sessionsvc.Snapshot
	seen  bool
	ready chan struct{}
}

func newLatest() *latest {
	return &latest{ready: make(chan struct{}, 1)}
}

// put keeps snap unless a newer version is already held.
func (l *latest) put(snap sessionsvc.Snapshot) {
	l.mu.Lock()
	if l.seen && snap.Version < l.snap.Version {
		l.mu.Unlock()
		return
	}
	l.snap = snap
	l.seen = true
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latest) take() sessionsvc.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// originChecker accepts same-host requests, requests without an Origin
// header, and the configured CORS origins.
func originChecker(allowed []string) func(*http.Request) bool {
	anyOrigin := slices.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
