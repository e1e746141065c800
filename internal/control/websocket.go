package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chase3718/lou-shaker/internal/trigger"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	clientSendBuf = 32
)

// envelope is the wire format for messages in both directions.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub serves /ws: clients send "trigger" (plain text or {"type":"trigger"})
// and receive a "note" message for every fired trigger.
type Hub struct {
	logger   *slog.Logger
	triggers chan<- struct{}

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

func NewHub(triggers chan<- struct{}, logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		triggers: triggers,
		clients:  make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends a fired trigger to every client. Slow clients are dropped.
// Safe to call from any goroutine.
func (h *Hub) Broadcast(ev trigger.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws: marshal event", "err", err)
		return
	}
	ts := ev.Time
	msg, err := json.Marshal(envelope{Type: "note", Ts: &ts, Data: data})
	if err != nil {
		h.logger.Error("ws: marshal envelope", "err", err)
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.remove(c, "slow_client")
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "err", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, clientSendBuf), remoteAddr: r.RemoteAddr}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", "remote_addr", c.remoteAddr, "clients", n)

	// The pumps outlive the request; net/http cancels r.Context() when this
	// handler returns.
	go c.writePump()
	go c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c, "shutdown")
	}
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Info("ws: client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// ListenAndServe serves the hub on addr until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	h.logger.Info("ws: listening", "addr", addr)

	select {
	case <-ctx.Done():
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// isTriggerMessage accepts "trigger" or an envelope with type "trigger".
func isTriggerMessage(payload []byte) bool {
	s := strings.TrimSpace(string(payload))
	if strings.EqualFold(s, "trigger") {
		return true
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return false
	}
	return env.Type == "trigger"
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Debug("ws: write failed", "remote_addr", c.remoteAddr, "err", err)
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

func (c *client) readPump() {
	defer c.hub.remove(c, "read_closed")

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.hub.logger.Debug("ws: client closed", "remote_addr", c.remoteAddr, "code", ce.Code)
			}
			return
		}
		if isTriggerMessage(payload) {
			Request(c.hub.triggers, "websocket", c.hub.logger)
		} else {
			c.hub.logger.Debug("ws: ignoring message", "remote_addr", c.remoteAddr, "bytes", len(payload))
		}
	}
}
