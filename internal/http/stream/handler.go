// WebSocket endpoint for the live transcript stream.
//
// GET /ws/conversations/{id} upgrades to WebSocket and subscribes the
// socket to the conversation. Inbound frames drive the conversational
// flow; everything the server produces in response arrives back through
// the Hub broadcast, never as a direct reply on the inbound path.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/marketlens/go-insight-backend/internal/domain"
)

// Assistant answers free-text prompts; replies are broadcast via the Hub.
type Assistant interface {
	Answer(ctx context.Context, conversationID, prompt string) (*domain.Message, error)
}

// Analyzer starts audits; progress and results are broadcast via the Hub.
type Analyzer interface {
	Start(ctx context.Context, conversationID, auditDomain string, wait bool) (*domain.Analysis, error)
}

// inboundFrame is the client-to-server wire frame.
//
// Two shapes are accepted:
//
//	{"type":"message","content":"How do I fix slow checkout?"}
//	{"type":"analyze","domain":"example.com"}
//
// An omitted type defaults to "message".
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Domain  string `json:"domain"`
}

// Handler returns the Gin handler for the stream endpoint. checkOrigin
// gates the upgrade; pass nil to accept any origin.
func Handler(hub *Hub, assistant Assistant, analyzer Analyzer, checkOrigin func(*http.Request) bool) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	if checkOrigin == nil {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}

	return func(c *gin.Context) {
		conversationID := c.Param("id")
		if _, err := uuid.Parse(conversationID); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_request",
				"message": "id must be a UUID",
			})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the error response.
			log.Debug().Err(err).Msg("websocket upgrade rejected")
			return
		}

		cl := newClient(conversationID, conn)
		hub.subscribe(cl)
		go cl.writePump()
		readPump(hub, cl, assistant, analyzer)
	}
}

// readPump consumes inbound frames until the socket closes. Runs on the
// request goroutine; the deferred shutdown stops the write pump.
func readPump(hub *Hub, cl *client, assistant Assistant, analyzer Analyzer) {
	defer func() {
		hub.unsubscribe(cl)
		cl.shutdown()
	}()

	cl.conn.SetReadLimit(maxInboundBytes)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conversation_id", cl.conversationID).Msg("stream closed")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		dispatch(cl.conversationID, frame, assistant, analyzer)
	}
}

// dispatch routes one inbound frame. Frame handling is detached from the
// socket's lifetime: a client that sends a prompt and immediately
// disconnects still gets its reply persisted (and streamed on reconnect).
func dispatch(conversationID string, frame inboundFrame, assistant Assistant, analyzer Analyzer) {
	ctx := context.Background()

	switch frame.Type {
	case "analyze":
		if strings.TrimSpace(frame.Domain) == "" {
			return
		}
		if _, err := analyzer.Start(ctx, conversationID, frame.Domain, false); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("stream analyze failed")
		}
	case "", "message":
		if strings.TrimSpace(frame.Content) == "" {
			return
		}
		if _, err := assistant.Answer(ctx, conversationID, frame.Content); err != nil {
			log.Warn().Err(err).Str("conversation_id", conversationID).Msg("stream answer failed")
		}
	}
}
