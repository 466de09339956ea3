package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clinic-booking-chatbot/middleware"
	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/services"
)

type ChatbotController struct {
	chatbotService *services.ChatbotService
}

func NewChatbotController(chatbotService *services.ChatbotService) *ChatbotController {
	return &ChatbotController{
		chatbotService: chatbotService,
	}
}

// HandleChat processes chat messages
func (cc *ChatbotController) HandleChat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Details: err.Error(),
		})
		return
	}

	response, err := cc.chatbotService.ProcessMessage(c.Request.Context(), req, middleware.CurrentUser(c), models.ChannelWeb)
	if err != nil {
		respondError(c, "Failed to process message", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetTranscript returns the conversation so far
func (cc *ChatbotController) GetTranscript(c *gin.Context) {
	transcript, err := cc.chatbotService.Transcript(c.Request.Context(), c.Param("session_id"), models.ChannelWeb, middleware.CurrentUser(c))
	if err != nil {
		respondError(c, "Failed to load transcript", err)
		return
	}
	c.JSON(http.StatusOK, transcript)
}

// SignOut detaches the user from the session and drops cached data
func (cc *ChatbotController) SignOut(c *gin.Context) {
	sessionID := c.Param("session_id")
	if err := cc.chatbotService.SignOut(sessionID, models.ChannelWeb, middleware.CurrentUser(c)); err != nil {
		respondError(c, "Failed to sign out", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "signed_out", "session_id": sessionID})
}

// GetSupportedIntents lists the intents and quick replies the assistant understands
func (cc *ChatbotController) GetSupportedIntents(c *gin.Context) {
	c.JSON(http.StatusOK, cc.chatbotService.SupportedIntents())
}
