// Package ws bridges the redis event bus to websocket subscribers: every
// committed ledger event is delivered to every connected client, in commit
// order.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware in front.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Config captures the metadata sent to clients in the hello frame on connect,
// plus the bus channel and stream the hub bridges.
type Config struct {
	ISIN      string
	Mode      string
	Channel   string
	Stream    string
	StartedAt time.Time
}

// Hub manages connected WebSocket clients and broadcasts the ledger event
// channel to all of them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	bus        domain.EventBus
	mu         sync.RWMutex
	logger     *slog.Logger
	cfg        Config
}

// NewHub creates a Hub bridging the given event bus channel to websocket
// clients.
func NewHub(bus domain.EventBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		cfg:        cfg,
	}
}

// Run starts the hub's main loop: one bus subscription feeding the broadcast
// fan-out, plus client registration bookkeeping. Call in a goroutine; the loop
// exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Send buffer full. Dropping keeps one slow client from
					// stalling the fan-out; it can catch up via /api/events.
					h.logger.Warn("ws: dropping event for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribe pipes the ledger event channel into the broadcast loop.
func (h *Hub) subscribe(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed",
			slog.String("channel", h.cfg.Channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed", slog.String("channel", h.cfg.Channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", h.cfg.Channel))
				return
			}
			h.broadcast <- data
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. A catchup query parameter asks for the retained
// tail of the durable event stream before live events start flowing.
// GET /ws?catchup=50
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	// Queue the hello and any backlog before joining the live fan-out so the
	// client sees them first.
	c.sendHello()
	if n := catchupCount(r); n > 0 {
		h.queueBacklog(r.Context(), c, n)
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// maxCatchup bounds the backlog one client may request. Must leave room in the
// send buffer for the hello frame and the first live events.
const maxCatchup = 200

// catchupCount parses the catchup query parameter; absent or malformed means
// no backlog.
func catchupCount(r *http.Request) int {
	v := r.URL.Query().Get("catchup")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	if n > maxCatchup {
		n = maxCatchup
	}
	return n
}

// queueBacklog loads entries from the durable event stream into the client's
// send buffer. The stream is MAXLEN-trimmed, so this replays the oldest
// retained entries; anything older is served by /api/events. Duplicates
// between the backlog and the first live event are possible, clients dedup by
// event seq.
func (h *Hub) queueBacklog(ctx context.Context, c *client, count int) {
	if h.cfg.Stream == "" {
		return
	}

	msgs, err := h.bus.StreamRead(ctx, h.cfg.Stream, "0", count)
	if err != nil {
		h.logger.Warn("ws: backlog read failed",
			slog.String("stream", h.cfg.Stream),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range msgs {
		select {
		case c.send <- m.Payload:
		default:
			return
		}
	}
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// drop detaches a client from the hub. Selecting on done keeps the detach
// from blocking forever when the hub loop has already exited.
func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump drains the connection so control frames are processed. Clients
// send nothing meaningful; the stream is one-way.
func (c *client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// sendHello pushes a small JSON envelope so clients can mark the connection
// healthy before the first ledger event flows.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.cfg.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"isin":           c.hub.cfg.ISIN,
			"mode":           c.hub.cfg.Mode,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// writePump pumps events from the hub to the WebSocket connection as JSON
// text frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
