package routes

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"clinic-booking-chatbot/config"
	"clinic-booking-chatbot/controllers"
	"clinic-booking-chatbot/middleware"
	"clinic-booking-chatbot/services"
	"clinic-booking-chatbot/utils"
)

// Dependencies are the services the HTTP surface is built from.
type Dependencies struct {
	Config   *config.Config
	Chatbot  *services.ChatbotService
	WhatsApp *services.WhatsAppService
	Users    controllers.UserLookup
	Logger   *zap.Logger

	// HealthCheck reports database reachability for /health.
	HealthCheck func(ctx context.Context) error
	// Metrics serves /metrics; defaults to the global Prometheus registry.
	Metrics http.Handler
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	logger := utils.LoggerOrNop(deps.Logger)

	router.Use(cors.New(corsConfig(cfg.Security.AllowedOrigins)))

	// Initialize controllers
	chatbotController := controllers.NewChatbotController(deps.Chatbot)
	wsController := controllers.NewWebSocketController(deps.Chatbot, cfg.Security.AllowedOrigins, logger)
	whatsappController := controllers.NewWhatsAppController(deps.WhatsApp, deps.Chatbot, deps.Users, logger)

	router.GET("/health", healthHandler(deps))

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	// Chat API; identity comes from the auth gateway in front of us
	public := router.Group("/api/v1")
	public.Use(middleware.Identity())
	public.Use(middleware.RateLimit(cfg.Security.RateLimitPerMinute, cfg.Security.RateLimitBurst, logger))
	{
		public.POST("/chat", chatbotController.HandleChat)
		public.GET("/chat/:session_id/transcript", chatbotController.GetTranscript)
		public.POST("/chat/:session_id/signout", chatbotController.SignOut)
		public.GET("/intents", chatbotController.GetSupportedIntents)

		// WebSocket for real-time chat
		public.GET("/ws", wsController.HandleWebSocket)
	}

	// WhatsApp routes
	whatsapp := router.Group("/api/whatsapp")
	{
		whatsapp.GET("/webhook", whatsappController.VerifyWebhook)
		whatsapp.POST("/webhook", middleware.VerifyWhatsAppSignature(cfg.WhatsApp.AppSecret), whatsappController.HandleWebhook)

		if cfg.Security.AdminToken != "" {
			admin := whatsapp.Group("/admin")
			admin.Use(middleware.RequireAdminToken(cfg.Security.AdminToken))
			{
				admin.POST("/send", whatsappController.SendMessage)
				admin.GET("/status", whatsappController.GetStatus)
			}
		} else {
			logger.Warn("ADMIN_API_TOKEN not set, WhatsApp admin endpoints are disabled")
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Route not found",
			"path":  c.Request.URL.Path,
		})
	})
}

func healthHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status":              "ok",
			"timestamp":           time.Now(),
			"database":            "ok",
			"whatsapp_configured": deps.WhatsApp.Enabled(),
			"active_sessions":     deps.Chatbot.Sessions().Count(),
		}
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["database"] = err.Error()
			}
		}
		c.JSON(status, body)
	}
}

// corsConfig allows the configured origins. "*" allows any origin and an
// empty list allows none.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.UserIDHeader, middleware.UserNameHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	switch {
	case slices.Contains(origins, "*"):
		c.AllowOriginFunc = func(string) bool { return true }
	case len(origins) == 0:
		c.AllowOriginFunc = func(string) bool { return false }
	default:
		c.AllowOrigins = origins
	}
	return c
}
