package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Shutdown)
	return h
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ConnectionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("ConnectionCount = %d, want %d", h.ConnectionCount(), want)
}

func TestHubRegisterUnregister(t *testing.T) {
	t.Parallel()

	h := startHub(t)
	client := &Client{UserID: 7, Username: "w", send: make(chan []byte, 8), hub: h}

	h.register <- client
	waitForCount(t, h, 1)

	h.unregister <- client
	waitForCount(t, h, 0)

	// The send channel is closed on unregister.
	select {
	case _, open := <-client.send:
		if open {
			t.Fatal("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestSendToUser(t *testing.T) {
	t.Parallel()

	h := startHub(t)
	client := &Client{UserID: 42, send: make(chan []byte, 8), hub: h}
	h.register <- client
	waitForCount(t, h, 1)

	err := h.SendToUser(42, Message{Type: MessageTypeResponse, Data: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case raw := <-client.send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.Type != MessageTypeResponse {
			t.Fatalf("Type = %q", msg.Type)
		}
		if msg.Timestamp.IsZero() {
			t.Fatal("timestamp should be stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	// A disconnected user is not an error.
	if err := h.SendToUser(999, Message{Type: MessageTypeResponse}); err != nil {
		t.Fatal(err)
	}
}

func TestBroadcastReachesAllUsers(t *testing.T) {
	t.Parallel()

	h := startHub(t)
	a := &Client{UserID: 1, send: make(chan []byte, 8), hub: h}
	b := &Client{UserID: 2, send: make(chan []byte, 8), hub: h}
	h.register <- a
	h.register <- b
	waitForCount(t, h, 2)

	h.Broadcast(Message{Type: MessageTypeProviderHealth, Data: map[string]bool{"openai": true}})

	for _, c := range []*Client{a, b} {
		select {
		case <-c.send:
		case <-time.After(time.Second):
			t.Fatalf("client %d did not receive broadcast", c.UserID)
		}
	}
}
