package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"naobridge/proto"
)

// wsClient wraps one websocket connection. Send is safe for concurrent use:
// command replies and unsolicited stream frames are written from different
// goroutines and gorilla allows only one concurrent writer.
type wsClient struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{id: "ws-" + uuid.NewString(), conn: conn}
}

func (c *wsClient) Send(frame proto.Frame) error {
	jsonData, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, jsonData); err != nil {
		return err
	}

	slog.Debug("Sent frame", "to", c.id, "id", frame.ID, "size", len(frame.Data))
	return nil
}

// close marks the client closed so late stream frames stop hitting a dead
// socket, then closes the connection.
func (c *wsClient) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.conn.Close()
}
