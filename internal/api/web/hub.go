package web

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domain "github.com/oshokin/sleepwatch/internal/domain/alarm"
	"github.com/oshokin/sleepwatch/internal/domain/detection"
	"github.com/oshokin/sleepwatch/internal/logger"
)

const (
	// sendBuffer is the number of events queued per subscriber.
	sendBuffer = 16
	// writeTimeout bounds a single WebSocket write.
	writeTimeout = 10 * time.Second
	// pongTimeout is how long a silent peer is kept.
	pongTimeout = 60 * time.Second
	// pingInterval must be shorter than pongTimeout.
	pingInterval = pongTimeout * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin accepts same-origin, loopback and private-network pages.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}

	if host == requestHost {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// subscriber is one connected WebSocket peer.
type subscriber struct {
	// send queues events for the writer goroutine.
	send chan Event
	// closeOnce guards send.
	closeOnce sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub fans watcher updates out to WebSocket subscribers. It implements the
// watcher's presenter contract.
type Hub struct {
	// mu protects subscribers.
	mu sync.Mutex
	// subscribers are the connected peers.
	subscribers map[*subscriber]struct{}
}

// NewHub creates a hub without subscribers.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
	}
}

// PresentDetection broadcasts a detection event.
func (h *Hub) PresentDetection(ctx context.Context, result *detection.Result, state *domain.State) {
	h.Broadcast(ctx, Event{Type: EventDetection, State: NewStateView(state), Result: result})
}

// PresentAlarm broadcasts an alarm event.
func (h *Hub) PresentAlarm(ctx context.Context, state *domain.State) {
	h.Broadcast(ctx, Event{Type: EventAlarm, State: NewStateView(state)})
}

// Broadcast queues event for every subscriber. A subscriber whose queue is
// full is disconnected.
func (h *Hub) Broadcast(ctx context.Context, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		select {
		case sub.send <- event:
		default:
			logger.Warn(ctx, "WebSocket subscriber too slow, disconnecting")
			delete(h.subscribers, sub)
			sub.close()
		}
	}
}

// Subscribers returns the number of connected peers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		sub.close()
	}
}

func (h *Hub) subscribe(initial Event) *subscriber {
	sub := &subscriber{send: make(chan Event, sendBuffer)}
	sub.send <- initial

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub]; ok {
		delete(h.subscribers, sub)
		sub.close()
	}
}

// serveWS upgrades the request and streams events until the peer leaves.
func (h *Hub) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request, initial Event) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	sub := h.subscribe(initial)

	logger.DebugKV(ctx, "WebSocket subscriber connected", "remote_address", r.RemoteAddr)

	go h.writeLoop(ctx, conn, sub)

	// Only the reader notices a peer that went away.
	h.readLoop(conn)
	h.unsubscribe(sub)

	logger.DebugKV(ctx, "WebSocket subscriber disconnected", "remote_address", r.RemoteAddr)
}

// writeLoop is the sole writer of conn.
func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, sub *subscriber) {
	ticker := time.NewTicker(pingInterval)

	defer func() {
		ticker.Stop()

		if err := conn.Close(); err != nil {
			logger.DebugKV(ctx, "WebSocket close error", "error", err)
		}
	}()

	for {
		select {
		case event, ok := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound messages and returns once the connection fails.
func (h *Hub) readLoop(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
