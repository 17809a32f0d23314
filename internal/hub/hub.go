// Package hub carries a session's map commands to its browser tabs over
// websockets and hands the tabs' events back to the session.
package hub

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// ErrClosed is returned when a tab tries to attach to a closed hub.
var ErrClosed = errors.New("hub is closed")

// Source is the scene a hub serves: it rebuilds the drawing for a new tab
// and consumes the tabs' events.
type Source interface {
	Replay() [][]byte
	Dispatch(msg []byte) error
}

// Options configures the websocket upgrade.
type Options struct {
	// AllowedOrigins lists browser origins permitted to attach.
	// Requests without an Origin header are always accepted.
	AllowedOrigins []string
}

// Hub fans commands out to every attached tab of one session.
type Hub struct {
	source   Source
	log      *logger.Logger
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	mu       sync.Mutex
	closed   bool
}

// New creates a hub. SetSource must be called before tabs attach.
func New(opts Options, log *logger.Logger) *Hub {
	h := &Hub{
		log:     log.WithComponent("hub"),
		clients: make(map[*client]struct{}),
	}

	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
	return h
}

// SetSource binds the scene served by this hub.
func (h *Hub) SetSource(source Source) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.source = source
}

// Count returns the number of attached tabs.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every attached tab. A tab that cannot keep up
// is disconnected rather than allowed to block the session.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("Dropping slow map surface", map[string]interface{}{"remote": c.remote})
			h.removeLocked(c)
		}
	}
}

// Serve upgrades the request and runs the tab until it disconnects or the
// hub closes. The current scene is replayed before any live command.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	source := h.source
	var replay [][]byte
	if source != nil {
		replay = source.Replay()
	}

	// The queue holds the whole replay plus the usual headroom, and the
	// replay is queued under the lock so no live command can overtake it
	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, len(replay)+sendBuffer),
		remote: r.RemoteAddr,
	}
	for _, msg := range replay {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	metrics.ConnectedSurfaces.Inc()
	h.log.Debug("Map surface attached", map[string]interface{}{"remote": c.remote})

	go c.writePump()
	c.readPump(source)
	return nil
}

// Close disconnects every tab and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked must be called with the lock held.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.ConnectedSurfaces.Dec()
}

// client is one attached browser tab.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// readPump forwards tab events to the source until the connection fails.
func (c *client) readPump(source Source) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Warn("Map surface read failed", map[string]interface{}{
					"remote": c.remote,
					"error":  err.Error(),
				})
			}
			return
		}
		if source == nil {
			continue
		}
		if err := source.Dispatch(msg); err != nil {
			c.hub.log.Warn("Rejected map surface event", map[string]interface{}{
				"remote": c.remote,
				"error":  err.Error(),
			})
		}
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
