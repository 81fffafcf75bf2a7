// Package ws pushes pipeline progress to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one dashboard connection. An empty strategyID receives events
// of every strategy.
type client struct {
	ws         *websocket.Conn
	send       chan []byte
	cancel     context.CancelFunc
	strategyID string
}

// Hub fans events out to connected clients. Each client has its own write
// goroutine; a client whose buffer fills up is disconnected so a slow
// browser never stalls the pipeline.
type Hub struct {
	originHosts []string

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub. originHosts restricts accepted origins; empty
// accepts any origin.
func NewHub(originHosts ...string) *Hub {
	return &Hub{originHosts: originHosts, clients: make(map[*client]struct{})}
}

// HandleWS upgrades the connection. The optional strategy_id query parameter
// limits delivery to events of that strategy.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originHosts,
		InsecureSkipVerify: len(h.originHosts) == 0,
	})
	if err != nil {
		slog.WarnContext(r.Context(), "websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &client{
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		cancel:     cancel,
		strategyID: r.URL.Query().Get("strategy_id"),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Info("websocket connected", "remote", r.RemoteAddr, "strategy_id", c.strategyID)

	// Clients only listen; CloseRead discards input and ends ctx on disconnect.
	go h.writeLoop(ws.CloseRead(ctx), c)
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		h.remove(c)
		_ = c.ws.Close(websocket.StatusGoingAway, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := write(ctx, c.ws, data); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

// Broadcast queues msg for every client subscribed to strategyID, or for
// every client when strategyID is empty. It never blocks on a client.
func (h *Hub) Broadcast(_ context.Context, strategyID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "type", msg.Type, "error", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if strategyID != "" && c.strategyID != "" && c.strategyID != strategyID {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		slog.Warn("websocket client too slow, disconnecting", "strategy_id", c.strategyID)
		h.remove(c)
	}
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.cancel()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		c.cancel()
		delete(h.clients, c)
		slog.Info("websocket disconnected", "strategy_id", c.strategyID)
	}
}
