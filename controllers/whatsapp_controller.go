package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/services"
	"clinic-booking-chatbot/utils"
)

// UserLookup resolves a WhatsApp sender to a clinic account.
type UserLookup interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
}

type WhatsAppController struct {
	whatsappService *services.WhatsAppService
	chatbotService  *services.ChatbotService
	users           UserLookup
	logger          *zap.Logger

	// dispatch runs webhook processing after the HTTP response is sent.
	dispatch func(func())
}

func NewWhatsAppController(whatsappService *services.WhatsAppService, chatbotService *services.ChatbotService, users UserLookup, logger *zap.Logger) *WhatsAppController {
	return &WhatsAppController{
		whatsappService: whatsappService,
		chatbotService:  chatbotService,
		users:           users,
		logger:          utils.LoggerOrNop(logger),
		dispatch:        func(fn func()) { go fn() },
	}
}

// VerifyWebhook handles the webhook verification request from WhatsApp
func (wc *WhatsAppController) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == wc.whatsappService.GetVerifyToken() {
		c.String(http.StatusOK, challenge)
		return
	}

	wc.logger.Warn("whatsapp webhook verification failed", zap.String("mode", mode))
	c.JSON(http.StatusForbidden, ErrorResponse{Error: "Verification failed"})
}

// HandleWebhook acknowledges the delivery at once and processes it in the
// background.
func (wc *WhatsAppController) HandleWebhook(c *gin.Context) {
	var webhookData models.WhatsAppWebhookData
	if err := c.ShouldBindJSON(&webhookData); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid webhook data"})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	wc.dispatch(func() { wc.processWebhookData(ctx, webhookData) })

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (wc *WhatsAppController) processWebhookData(ctx context.Context, webhookData models.WhatsAppWebhookData) {
	for _, entry := range webhookData.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, message := range change.Value.Messages {
				wc.handleIncomingMessage(ctx, message)
			}
			for _, status := range change.Value.Statuses {
				wc.handleStatusUpdate(status)
			}
		}
	}
}

// chatRequestFor maps an inbound WhatsApp message to a chat request.
// Button and list replies carry quick reply keys as their ids; anything
// that is not text is answered like an unrecognised message.
func chatRequestFor(message models.WhatsAppMessage) models.ChatRequest {
	req := models.ChatRequest{SessionID: services.WhatsAppSessionID(message.From)}

	switch message.Type {
	case "text":
		if message.Text != nil {
			req.Message = message.Text.Body
		}
	case "interactive":
		if message.Interactive == nil {
			break
		}
		if r := message.Interactive.ButtonReply; r != nil {
			req.QuickReply = models.QuickReplyKey(r.ID)
		} else if r := message.Interactive.ListReply; r != nil {
			req.QuickReply = models.QuickReplyKey(r.ID)
		}
	case "button":
		if message.Button != nil {
			req.QuickReply = models.QuickReplyKey(strings.TrimSpace(message.Button.Payload))
			if req.QuickReply == "" {
				req.Message = message.Button.Text
			}
		}
	}
	return req
}

func (wc *WhatsAppController) handleIncomingMessage(ctx context.Context, message models.WhatsAppMessage) {
	logger := wc.logger.With(
		zap.String("from", message.From),
		zap.String("message_id", message.ID),
		zap.String("type", message.Type),
	)

	if err := wc.whatsappService.MarkMessageAsRead(ctx, message.ID); err != nil {
		logger.Debug("failed to mark message as read", zap.Error(err))
	}

	user := wc.senderIdentity(ctx, message.From, logger)
	exchange, err := wc.chatbotService.Converse(ctx, chatRequestFor(message), user, models.ChannelWhatsApp)
	if err != nil {
		logger.Error("failed to process whatsapp message", zap.Error(err))
		return
	}

	if err := wc.whatsappService.SendReply(ctx, message.From, exchange.Reply); err != nil {
		logger.Error("failed to send whatsapp reply",
			zap.String("intent", string(exchange.Reply.Intent)),
			zap.Error(err),
		)
	}
}

// senderIdentity resolves the account behind a sender. When the lookup
// fails the sender's session keeps the user it already has.
func (wc *WhatsAppController) senderIdentity(ctx context.Context, phone string, logger *zap.Logger) *models.User {
	if wc.users == nil {
		return nil
	}
	user, err := wc.users.FindByPhone(ctx, phone)
	if err == nil {
		return user
	}

	logger.Warn("user lookup by phone failed", zap.Error(err))
	session, getErr := wc.chatbotService.Sessions().Get(services.WhatsAppSessionID(phone))
	if getErr != nil {
		return nil
	}
	return session.Identity.CurrentUser()
}

// handleStatusUpdate processes message status updates
func (wc *WhatsAppController) handleStatusUpdate(status models.WhatsAppStatus) {
	wc.logger.Debug("whatsapp message status",
		zap.String("message_id", status.ID),
		zap.String("recipient", status.RecipientID),
		zap.String("status", status.Status),
	)
	for _, e := range status.Errors {
		wc.logger.Warn("whatsapp delivery error",
			zap.String("message_id", status.ID),
			zap.Int("code", e.Code),
			zap.String("title", e.Title),
			zap.String("message", e.Message),
		)
	}
}

// SendMessage sends a message to a specific WhatsApp number (for notifications)
func (wc *WhatsAppController) SendMessage(c *gin.Context) {
	var req struct {
		To      string `json:"to" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Details: err.Error()})
		return
	}

	to := wc.whatsappService.CleanPhoneNumber(req.To)
	if err := wc.whatsappService.SendTextMessage(c.Request.Context(), to, req.Message); err != nil {
		wc.logger.Error("admin send failed", zap.String("to", to), zap.Error(err))
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Failed to send message", Details: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "sent",
		"to":     to,
	})
}

// GetStatus returns WhatsApp service status
func (wc *WhatsAppController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, wc.whatsappService.GetStatus())
}
