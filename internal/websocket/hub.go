// NexusAI WebSocket Hub
// Pushes routed AI responses and provider health changes to connected browsers

package websocket

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nexusai/internal/logging"
	"nexusai/internal/metrics"
	"nexusai/internal/middleware"
)

// Hub maintains active client connections keyed by user ID.
type Hub struct {
	// Active clients by user ID
	clients map[uint]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Shutdown channel for graceful termination
	shutdown chan struct{}

	mu sync.RWMutex
}

// Client represents a single WebSocket connection.
type Client struct {
	conn *websocket.Conn

	UserID   uint   `json:"user_id"`
	Username string `json:"username"`

	// Buffered channel of outbound messages
	send chan []byte

	hub *Hub

	lastSeen time.Time

	mu sync.RWMutex
}

// Message types pushed over the socket.
const (
	MessageTypeResponse       = "ai_response"
	MessageTypeProviderHealth = "provider_health"
	MessageTypeHeartbeat      = "heartbeat"
	MessageTypeError          = "error"
)

// Message is the wire format for hub pushes.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	UserID    uint        `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Strict origin checking, no empty origins in production.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		allowedOriginsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
		var allowedOrigins []string
		if allowedOriginsEnv != "" {
			allowedOrigins = strings.Split(allowedOriginsEnv, ",")
		} else {
			allowedOrigins = []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			}
		}

		for _, allowed := range allowedOrigins {
			if strings.TrimSpace(allowed) == origin {
				return true
			}
		}

		env := os.Getenv("ENVIRONMENT")
		if origin == "" && env != "production" {
			return true
		}

		return false
	},
}

// NewHub creates a WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		shutdown:   make(chan struct{}),
	}
}

// Run starts the hub's main loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.shutdown:
			h.mu.Lock()
			for _, conns := range h.clients {
				for client := range conns {
					close(client.send)
				}
			}
			h.clients = make(map[uint]map[*Client]bool)
			h.mu.Unlock()
			logging.S().Info("websocket hub shutdown complete")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Shutdown gracefully stops the hub.
func (h *Hub) Shutdown() {
	close(h.shutdown)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true
	metrics.Get().WSConnectionsGauge.Inc()

	logging.S().Infow("websocket client registered",
		"user_id", client.UserID,
		"connections", h.connectionCountLocked())
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[client.UserID]
	if conns == nil || !conns[client] {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	close(client.send)
	metrics.Get().WSConnectionsGauge.Dec()

	logging.S().Infow("websocket client unregistered",
		"user_id", client.UserID,
		"connections", h.connectionCountLocked())
}

func (h *Hub) connectionCountLocked() int {
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// ConnectionCount returns the number of open connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectionCountLocked()
}

// SendToUser delivers a message to every connection the user has open.
// A disconnected user is not an error.
func (h *Hub) SendToUser(userID uint, message Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			// Send buffer full, drop the message rather than block the router.
		}
	}
	return nil
}

// Broadcast delivers a message to every connected client.
func (h *Hub) Broadcast(message Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		logging.S().Errorw("websocket broadcast marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for client := range conns {
			select {
			case client.send <- data:
			default:
			}
		}
	}
}

// HandleWebSocket upgrades an authenticated HTTP request to a WebSocket
// connection and starts the read/write pumps.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	username := c.GetString(middleware.ContextUsername)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.S().Errorw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:     conn,
		UserID:   userID,
		Username: username,
		send:     make(chan []byte, 256),
		hub:      h,
		lastSeen: time.Now(),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
