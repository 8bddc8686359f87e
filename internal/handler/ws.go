package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"aegisher/api/internal/metrics"
	"aegisher/api/internal/model"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// Heartbeat interval
	pingInterval = 30 * time.Second
	// Write timeout
	writeTimeout = 10 * time.Second
	// pongWait must exceed pingInterval
	pongWait = 60 * time.Second
)

// SOSSubjects is the NATS wildcard the hub listens on
const SOSSubjects = "aegisher.sos.*"

// WSMessage represents a WebSocket message from client
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *WSHub

	mu     sync.RWMutex
	userID string // empty means all users

	sendMu sync.Mutex
	closed bool
}

// trySend queues msg without blocking. It reports false when the buffer is full or Send is closed.
func (c *Client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

// closeSend closes Send once
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) wants(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID == "" || c.userID == userID
}

func (c *Client) follow(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

type envelope struct {
	data   []byte
	userID string
}

// WSHub manages WebSocket clients and broadcasts SOS events
type WSHub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	natsConn   *nats.Conn
	sub        *nats.Subscription
	metrics    *metrics.Metrics
	log        *zap.Logger
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub. With a NATS connection the hub relays
// SOS events published by any instance, otherwise events arrive via BroadcastSOS.
func NewWSHub(nc *nats.Conn, m *metrics.Metrics, log *zap.Logger) *WSHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		natsConn:   nc,
		metrics:    m,
		log:        log,
	}
}

// Run starts the hub's event loop
func (h *WSHub) Run() {
	if h.natsConn != nil {
		sub, err := h.natsConn.Subscribe(SOSSubjects, func(msg *nats.Msg) {
			var sos model.WSSOSMessage
			if err := json.Unmarshal(msg.Data, &sos); err != nil {
				h.log.Warn("unmarshal sos event", zap.String("subject", msg.Subject), zap.Error(err))
				return
			}
			h.enqueue(envelope{data: msg.Data, userID: ownerOf(&sos)})
		})
		if err != nil {
			h.log.Error("subscribe to nats failed", zap.Error(err))
		} else {
			h.mu.Lock()
			h.sub = sub
			h.mu.Unlock()
			h.log.Info("hub subscribed to nats", zap.String("subject", SOSSubjects))
		}
	}

	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.WSClients(n)
			h.log.Debug("client connected", zap.String("client_id", client.ID), zap.Int("clients", n))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				if client.wants(msg.userID) {
					clients = append(clients, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range clients {
				if !client.trySend(msg.data) {
					// Client send buffer is full, drop it
					h.remove(client)
				}
			}
		}
	}
}

func (h *WSHub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.WSClients(n)
	h.log.Debug("client disconnected", zap.String("client_id", client.ID), zap.Int("clients", n))
}

// Stop stops the hub; the event loop disconnects every client on its way out
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.RLock()
		sub := h.sub
		h.mu.RUnlock()
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	})
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	for client := range h.clients {
		client.closeSend()
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, client)
	}
	h.mu.Unlock()
	h.metrics.WSClients(0)
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastSOS broadcasts an SOS event to all interested clients
func (h *WSHub) BroadcastSOS(msg *model.WSSOSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.enqueue(envelope{data: data, userID: ownerOf(msg)})
	return nil
}

func (h *WSHub) enqueue(e envelope) {
	select {
	case h.broadcast <- e:
	default:
		h.log.Warn("broadcast queue full, dropping sos event")
	}
}

func ownerOf(msg *model.WSSOSMessage) string {
	if msg.Data.UserID == nil {
		return ""
	}
	return *msg.Data.UserID
}

// ReadPump handles incoming messages from the client
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Debug("client read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}

		c.handle(message)
	}
}

// handle applies one client message
func (c *Client) handle(message []byte) {
	var wsMsg WSMessage
	if err := json.Unmarshal(message, &wsMsg); err != nil {
		return
	}
	switch wsMsg.Type {
	case "subscribe":
		// follow a single user's alerts, an empty userId follows everyone
		var data struct {
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(wsMsg.Data, &data); err == nil {
			c.follow(data.UserID)
		}
	case "ping":
		c.trySend([]byte(`{"type":"pong"}`))
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub *WSHub
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleSOS streams SOS events
// @Summary SOS live feed
// @Description WebSocket stream of SOS_TRIGGERED, SOS_RESOLVED and SOS_REMINDER events. Pass user_id to follow one user.
// @Tags SOS
// @Param user_id query string false "Only events of this user"
// @Success 101 {string} string "Switching Protocols"
// @Router /ws/sos [get]
func (h *WSHandler) HandleSOS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Hub:    h.hub,
		userID: c.Query("user_id"),
	}

	// Send welcome message before the writer starts draining
	welcome, _ := json.Marshal(gin.H{
		"type":      "connected",
		"message":   "Connected to AegiSher SOS stream",
		"client_id": client.ID,
	})
	client.trySend(welcome)

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// GetStats returns WebSocket hub statistics
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.GetClientCount(),
	})
}
