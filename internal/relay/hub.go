// Package relay implements the signaling-only WebSocket hub used by
// cmd/signalserver. It relays JSON signaling messages between room
// members and never constructs a PeerConnection.
package relay

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kestrelvoice/voicecore/pkg/applog"
	"github.com/kestrelvoice/voicecore/pkg/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected WebSocket tied to a room.
type client struct {
	conn   *websocket.Conn
	roomID string
	id     string
	sendMu sync.Mutex
}

func (c *client) send(msg signaling.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Hub tracks connected clients per room and broadcasts each inbound
// message to every other member of the sender's room.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*client]struct{}
	logger applog.Logger
}

// NewHub builds an empty Hub.
func NewHub(logger applog.Logger) *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{}), logger: logger}
}

// ServeWS upgrades an HTTP request to a WebSocket and runs the client's
// read loop until it disconnects, broadcasting a synthetic Leave to the
// room on exit so peers reset promptly rather than waiting out the
// 6-second timeout.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	defer h.disconnect(c)

	for {
		var msg signaling.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		if c.roomID == "" && msg.RoomID != "" {
			c.roomID = msg.RoomID
			c.id = msg.ClientID
			h.join(c)
		}

		h.broadcast(c, msg)
	}
}

func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.roomID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[c.roomID] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	room, ok := h.rooms[c.roomID]
	if ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
	h.mu.Unlock()
	c.conn.Close()

	if c.roomID != "" && c.id != "" {
		h.broadcast(c, signaling.Leave(c.roomID, c.id))
	}
}

// broadcast relays msg to every other client in c's room. The sender
// never receives its own message back.
func (h *Hub) broadcast(sender *client, msg signaling.Message) {
	h.mu.Lock()
	room := h.rooms[sender.roomID]
	peers := make([]*client, 0, len(room))
	for peer := range room {
		if peer != sender {
			peers = append(peers, peer)
		}
	}
	h.mu.Unlock()

	for _, peer := range peers {
		if err := peer.send(msg); err != nil {
			h.logger.Debug("send to peer failed", zap.Error(err))
		}
	}
}
