package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"clinic-booking-chatbot/middleware"
	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/services"
	"clinic-booking-chatbot/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

type WebSocketController struct {
	chatbotService *services.ChatbotService
	upgrader       websocket.Upgrader
	logger         *zap.Logger
}

// NewWebSocketController accepts browser connections from allowedOrigins
// only. A "*" entry allows any origin.
func NewWebSocketController(chatbotService *services.ChatbotService, allowedOrigins []string, logger *zap.Logger) *WebSocketController {
	return &WebSocketController{
		chatbotService: chatbotService,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
		logger: utils.LoggerOrNop(logger),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket streams a session: the client sends SocketRequest
// frames, the server pushes typing, turn and reply frames.
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	user := middleware.CurrentUser(c)

	session, err := wc.chatbotService.Session(sessionID, models.ChannelWeb, user)
	if err != nil {
		respondError(c, "Failed to open session", err)
		return
	}

	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	logger := wc.logger.With(zap.String("session_id", sessionID))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan models.SocketFrame, sendBuffer)
	push := func(frame models.SocketFrame) {
		select {
		case out <- frame:
		case <-ctx.Done():
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// A dead writer must not leave pushes blocked.
		defer cancel()
		wc.writeLoop(ctx, conn, out, logger)
	}()

	for _, turn := range session.Dialogue.Transcript() {
		t := turn
		push(models.SocketFrame{Type: "turn", Turn: &t})
	}

	unsubscribe := session.Dialogue.OnUpdate(func(u services.DialogueUpdate) {
		if u.Turn != nil {
			push(models.SocketFrame{Type: "turn", Turn: u.Turn})
			return
		}
		typing := u.Composing
		push(models.SocketFrame{Type: "typing", Typing: &typing})
	})
	defer unsubscribe()

	wc.readLoop(ctx, conn, sessionID, user, push, logger)

	cancel()
	<-writerDone
	_ = conn.Close()
}

func (wc *WebSocketController) readLoop(ctx context.Context, conn *websocket.Conn, sessionID string, user *models.User, push func(models.SocketFrame), logger *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg models.SocketRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		req := models.ChatRequest{
			SessionID:  sessionID,
			Message:    msg.Message,
			QuickReply: msg.QuickReply,
		}
		response, err := wc.chatbotService.ProcessMessage(ctx, req, user, models.ChannelWeb)
		if err != nil {
			logger.Error("websocket message failed", zap.Error(err))
			push(models.SocketFrame{Type: "error", Error: "Failed to process message"})
			continue
		}
		push(models.SocketFrame{Type: "reply", Reply: response})
	}
}

func (wc *WebSocketController) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan models.SocketFrame, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
