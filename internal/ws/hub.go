package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/evetabi/riskevents/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ──────────────────────────────────────────────────────────────────────────────
// Tunables
// ──────────────────────────────────────────────────────────────────────────────

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 512              // bytes; clients only send pongs
	sendBufferSize = 256              // messages in each client send channel
)

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client represents one connected WebSocket endpoint.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte // buffered outbound message queue
	subject string      // token subject, empty when auth is disabled
	userID  uuid.UUID   // uuid.Nil = every user's events
}

// wants reports whether the client subscribed to events of userID.
func (c *Client) wants(userID uuid.UUID) bool {
	return c.userID == uuid.Nil || c.userID == userID
}

// envelope is one queued broadcast.
type envelope struct {
	userID uuid.UUID
	data   []byte
}

// ──────────────────────────────────────────────────────────────────────────────
// Hub
// ──────────────────────────────────────────────────────────────────────────────

// TokenVerifier validates a bearer token and returns its subject.
// *service.AuthService satisfies it, so the feed applies the same checks as
// the REST API.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

// Hub maintains the set of active clients and routes breaker notifications.
// Run() must be called in a dedicated goroutine before ServeWs is used.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns

	// auth nil disables authentication (local development only).
	auth   TokenVerifier
	logger *slog.Logger
	now    func() time.Time

	upgrader websocket.Upgrader
}

// NewHub creates a Hub ready to be started with Run().
func NewHub(auth TokenVerifier, allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 512),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		auth:       auth,
		logger:     logger.With("component", "ws"),
		now:        time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true // dev mode: allow all
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Run: hub event loop
// ──────────────────────────────────────────────────────────────────────────────

// Run processes registration, unregistration, and broadcast events
// sequentially until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.userID) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow client: drop for this client only.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ──────────────────────────────────────────────────────────────────────────────
// ServeWs: HTTP → WebSocket upgrade
// ──────────────────────────────────────────────────────────────────────────────

// ServeWs authenticates the caller via the ?token= query parameter, upgrades
// the connection and starts the pumps. ?user_id= narrows the feed to one
// user's breakers.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	var subject string
	if h.auth != nil {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, domain.ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		sub, err := h.auth.VerifySubject(token)
		if err != nil || sub == "" {
			http.Error(w, domain.ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		subject = sub
	}

	var filter uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid user_id", http.StatusBadRequest)
			return
		}
		filter = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		subject: subject,
		userID:  filter,
	}
	if !h.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// join hands c to the event loop. It reports false once Run has returned.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave removes c from the event loop; after Run has returned it is a no-op.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Client pumps
// ──────────────────────────────────────────────────────────────────────────────

// writePump drains the client's send channel and writes messages to the
// WebSocket connection. It also sends ping frames every pingInterval.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only handles pongs; the protocol is server-push. When the
// connection drops the client is unregistered.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected close", "subject", c.subject, "error", err)
			}
			return
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// notify.Notifier
// ──────────────────────────────────────────────────────────────────────────────

// BreakerTripped pushes a breaker_tripped message.
func (h *Hub) BreakerTripped(_ context.Context, ev *domain.CircuitBreakerEvent) {
	h.broadcastJSON(ev.UserID, NewBreakerMessage(ev, h.now()))
}

// BreakerResolved pushes a breaker_resolved message.
func (h *Hub) BreakerResolved(_ context.Context, ev *domain.CircuitBreakerEvent) {
	h.broadcastJSON(ev.UserID, NewBreakerMessage(ev, h.now()))
}

// broadcastJSON never blocks the caller: a full queue drops the message.
func (h *Hub) broadcastJSON(userID uuid.UUID, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal failed", "error", err)
		return
	}
	select {
	case h.broadcast <- envelope{userID: userID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, message dropped")
	}
}
