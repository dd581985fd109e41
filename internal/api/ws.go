package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emochat/internal/auth"
	"emochat/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type inboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// serveWebSocket upgrades the connection, checks the chat token, and
// then runs the message loop. Turns are strictly sequential per
// connection; unknown frame types are ignored.
func (h *Handler) serveWebSocket(c *gin.Context) {
	token, subprotocol := auth.ExtractToken(c.Request)

	var respHeader http.Header
	if subprotocol != "" {
		respHeader = http.Header{"Sec-WebSocket-Protocol": {subprotocol}}
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	if !auth.VerifyToken(token, h.chatAPIKey) {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}

	connID := h.addConnection(conn)
	defer h.removeConnection(connID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var conversationID string
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("websocket read failed: %v", err)
			}
			return
		}

		switch frame.Type {
		case "start_conversation":
			conv, err := h.engine.StartConversation(ctx, frame.ConversationID)
			if err != nil {
				log.Printf("start conversation failed: %v", err)
				h.sendJSON(conn, models.NewErrorChunk("Failed to start conversation"))
				continue
			}
			conversationID = conv.ID
			h.sendJSON(conn, gin.H{
				"type":            "conversation_started",
				"conversation_id": conv.ID,
			})
		case "user_message":
			if conversationID == "" {
				h.sendJSON(conn, models.NewErrorChunk("No active conversation. Send start_conversation first."))
				continue
			}
			h.engine.HandleUserTurn(ctx, conversationID, frame.Content, func(chunk models.ChatChunk) error {
				return conn.WriteJSON(chunk)
			})
		default:
			log.Printf("ignoring unknown frame type %q", frame.Type)
		}
	}
}

func (h *Handler) sendJSON(conn *websocket.Conn, payload any) {
	if err := conn.WriteJSON(payload); err != nil {
		log.Printf("websocket write failed: %v", err)
	}
}
