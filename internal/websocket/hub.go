package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/fuomag9/targetwatch/internal/auth"
	"github.com/fuomag9/targetwatch/internal/models"
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type subscribePayload struct {
	TargetID string `json:"target_id"`
}

// OwnerLookup returns the owner of a target.
type OwnerLookup func(ctx context.Context, targetID string) (string, error)

// Client represents a WebSocket client
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte

	mu   sync.Mutex
	subs map[string]bool
}

func (c *Client) subscribed(targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[targetID]
}

type outbound struct {
	targetID string
	data     []byte
}

// Hub fans recorded outcomes out to clients subscribed to their target.
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan outbound
	register       chan *Client
	unregister     chan *Client
	done           chan struct{}
	mu             sync.RWMutex
	jwtSecret      string
	allowedOrigins []string
	ownerOf        OwnerLookup
	logger         *zap.Logger
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, allowedOrigins []string, ownerOf OwnerLookup, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan outbound, sendBuffer),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
		ownerOf:        ownerOf,
		logger:         logger,
	}
}

// Run starts the hub and returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("ws_client_connected", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("ws_client_disconnected", zap.String("client_id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribed(msg.targetID) {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// slow consumer
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishOutcome queues an outcome for subscribers. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) PublishOutcome(outcome *models.ProbeOutcome) {
	data, err := encode("outcome", outcome)
	if err != nil {
		h.logger.Warn("ws_encode_error", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{targetID: outcome.TargetID, data: data}:
	default:
		h.logger.Warn("ws_broadcast_dropped", zap.String("target_id", outcome.TargetID))
	}
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token, err := auth.FromRequest(r, true)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := auth.ParseToken(token, h.jwtSecret)
	if err != nil {
		h.logger.Info("ws_auth_rejected", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(h.allowedOrigins),
	})
	if err != nil {
		h.logger.Warn("ws_upgrade_failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     "user:" + userID + "@" + r.RemoteAddr,
		UserID: userID,
		Conn:   conn,
		Hub:    h,
		Send:   make(chan []byte, sendBuffer),
		subs:   make(map[string]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, data, err := c.Conn.Read(ctx)
		if err != nil {
			if !isNormalClosure(err) {
				c.Hub.logger.Warn("ws_read_error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Hub.logger.Debug("ws_bad_message", zap.String("client_id", c.ID), zap.Error(err))
			continue
		}
		c.handleMessage(ctx, msg)
	}
}

func (c *Client) writePump() {
	for message := range c.Send {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			if !isNormalClosure(err) {
				c.Hub.logger.Warn("ws_write_error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
	c.Conn.Close(websocket.StatusGoingAway, "")
}

func (c *Client) handleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case "subscribe", "unsubscribe":
		var p subscribePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.TargetID == "" {
			c.reply("error", map[string]string{"error": "target_id is required"})
			return
		}
		if msg.Type == "unsubscribe" {
			c.mu.Lock()
			delete(c.subs, p.TargetID)
			c.mu.Unlock()
			c.reply("unsubscribed", p)
			return
		}
		if c.Hub.ownerOf != nil {
			owner, err := c.Hub.ownerOf(ctx, p.TargetID)
			if err != nil || owner != c.UserID {
				c.reply("error", map[string]string{"error": "target not found"})
				return
			}
		}
		c.mu.Lock()
		c.subs[p.TargetID] = true
		c.mu.Unlock()
		c.reply("subscribed", p)
	case "ping":
		c.reply("pong", struct{}{})
	default:
		c.reply("error", map[string]string{"error": "unknown message type"})
	}
}

// reply sends directly to this client, dropping the message if its queue is
// full.
func (c *Client) reply(msgType string, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		return
	}
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if !c.Hub.clients[c] {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// originPatterns turns configured origins such as http://localhost:3000 into
// the host patterns the websocket library matches against.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"localhost:3000"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func encode(msgType string, payload interface{}) ([]byte, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: payloadJSON})
}

func isNormalClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return errors.Is(err, context.Canceled)
}
