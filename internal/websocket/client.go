// NexusAI WebSocket Client
// Individual connection handling

package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"nexusai/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// readPump pumps messages from the WebSocket connection to the hub.
// The dashboard only sends heartbeats; anything else is rejected.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.S().Warnw("websocket read error", "user_id", c.UserID, "error", err)
			}
			break
		}

		var message Message
		if err := json.Unmarshal(messageData, &message); err != nil {
			c.sendError("Invalid message format")
			continue
		}

		c.mu.Lock()
		c.lastSeen = time.Now()
		c.mu.Unlock()

		switch message.Type {
		case MessageTypeHeartbeat:
			c.handleHeartbeat()
		default:
			c.sendError("Unknown message type: " + message.Type)
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (c *Client) writePump() {
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
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

func (c *Client) handleHeartbeat() {
	response := Message{
		Type:      MessageTypeHeartbeat,
		UserID:    c.UserID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"pong": true},
	}

	data, err := json.Marshal(response)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
		// Channel full, skip heartbeat response
	}
}

func (c *Client) sendError(errorMessage string) {
	message := Message{
		Type:      MessageTypeError,
		UserID:    c.UserID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"error": errorMessage},
	}

	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
		logging.S().Warnw("websocket send buffer full", "user_id", c.UserID)
	}
}
