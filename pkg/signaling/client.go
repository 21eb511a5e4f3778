package signaling

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket connection to the signaling server. It does
// not reconnect on its own; reconnection is the session controller's
// responsibility, unified with peer-connection rebuild.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial opens the signaling WebSocket at url.
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Send writes one message as a JSON text frame. Safe for concurrent callers
// (the controller's heartbeat, ICE-candidate forwarder, and VAD forwarder
// all write from different goroutines).
func (c *Client) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write signaling message: %w", err)
	}
	return nil
}

// Recv blocks for the next text frame and decodes it. Returns an error on
// disconnect, close frame, or malformed JSON — all of which the controller
// treats as a trigger to ResetPending.
func (c *Client) Recv() (Message, error) {
	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Message{}, fmt.Errorf("read signaling message: %w", err)
	}
	return msg, nil
}

// Close closes the underlying WebSocket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
