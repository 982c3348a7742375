// Package stream implements the live transcript stream over WebSocket.
//
// Clients subscribe to a single conversation; the Hub fans out every
// envelope appended to that conversation (assistant replies, analysis
// progress updates, final report cards) to all subscribed sockets.
// Progress updates reuse a stable envelope id, so clients render them
// in place instead of stacking rows.
//
// The Hub is transport-only: it never touches persistence. Services write
// to the conversation store first and then hand the envelope to Broadcast,
// so a reconnecting client can always rebuild the transcript from REST.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/marketlens/go-insight-backend/internal/domain"
	"github.com/marketlens/go-insight-backend/internal/http/middleware"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long we tolerate a silent peer.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxInboundBytes caps inbound frame size.
	maxInboundBytes = 8 << 10
	// sendBuffer is the per-client outbound queue; a client that cannot
	// drain it is dropped rather than blocking the broadcaster.
	sendBuffer = 32
)

// Envelope is the outbound wire frame.
type Envelope struct {
	Type    string          `json:"type"`
	Message *domain.Message `json:"message,omitempty"`
}

// Hub tracks subscribers per conversation and fans out envelopes.
// Safe for concurrent use.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

// Broadcast sends msg to every socket subscribed to conversationID.
// Implements the broadcaster contract consumed by the service layer.
// Slow clients are disconnected instead of backpressuring the caller.
func (h *Hub) Broadcast(conversationID string, msg *domain.Message) {
	payload, err := json.Marshal(Envelope{Type: "message", Message: msg})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("stream marshal failed")
		return
	}

	h.mu.RLock()
	room := h.rooms[conversationID]
	clients := make([]*client, 0, len(room))
	for cl := range room {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		select {
		case cl.send <- payload:
			middleware.StreamMessageSent()
		default:
			h.unsubscribe(cl)
			cl.closeSlow()
		}
	}
}

// Subscribers returns the number of sockets attached to a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

func (h *Hub) subscribe(cl *client) {
	h.mu.Lock()
	room, ok := h.rooms[cl.conversationID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[cl.conversationID] = room
	}
	room[cl] = struct{}{}
	h.mu.Unlock()
	middleware.StreamOpened()
}

func (h *Hub) unsubscribe(cl *client) {
	h.mu.Lock()
	room, ok := h.rooms[cl.conversationID]
	if ok {
		if _, present := room[cl]; present {
			delete(room, cl)
			if len(room) == 0 {
				delete(h.rooms, cl.conversationID)
			}
			middleware.StreamClosed()
		}
	}
	h.mu.Unlock()
}

// client is one WebSocket subscriber. The send channel is never closed;
// shutdown is signaled through done so a racing Broadcast can never panic
// on a closed channel.
type client struct {
	conversationID string
	conn           *websocket.Conn
	send           chan []byte
	done           chan struct{}

	closeOnce sync.Once
}

func newClient(conversationID string, conn *websocket.Conn) *client {
	return &client{
		conversationID: conversationID,
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		done:           make(chan struct{}),
	}
}

// shutdown signals both pumps and closes the socket. Idempotent.
func (cl *client) shutdown() {
	cl.closeOnce.Do(func() {
		close(cl.done)
		_ = cl.conn.Close()
	})
}

// closeSlow tears down a client that stopped draining its queue.
func (cl *client) closeSlow() {
	_ = cl.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "slow consumer"),
		time.Now().Add(writeWait))
	cl.shutdown()
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with periodic pings. Runs in its own goroutine;
// exits on shutdown or when a write fails.
func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				cl.shutdown()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.shutdown()
				return
			}
		case <-cl.done:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
