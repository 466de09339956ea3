package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"clinic-booking-chatbot/config"
	"clinic-booking-chatbot/database"
	"clinic-booking-chatbot/middleware"
	"clinic-booking-chatbot/routes"
	"clinic-booking-chatbot/services"
	"clinic-booking-chatbot/utils"
)

const sessionSweepInterval = time.Minute

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg := config.Get()

	logger := initLogger(cfg)
	defer func() { _ = logger.Sync() }()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	if err := database.Connect(cfg, logger); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Disconnect(); err != nil {
			logger.Warn("database disconnect failed", zap.Error(err))
		}
	}()

	db, err := database.MongoDB()
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}

	// Repositories
	timeout := cfg.Database.QueryTimeout
	appointments := database.NewAppointmentRepository(db, timeout)
	users := database.NewUserRepository(db, timeout, cfg.WhatsApp.DefaultCountryCode)
	messages := database.NewMessageRepository(db, timeout)

	// Chat sessions
	deps := services.SessionDeps{
		Appointments:  appointments,
		Profiles:      users,
		Metrics:       services.NewChatbotMetrics(prometheus.DefaultRegisterer),
		Logger:        logger,
		Location:      cfg.Chatbot.Location(),
		ThinkingDelay: cfg.Chatbot.ThinkingDelay,
		CacheTTL:      cfg.Chatbot.CacheTTL,
		SessionTTL:    cfg.Chatbot.SessionTTL,
		MaxHistory:    cfg.Chatbot.MaxHistoryMessages,
	}
	var chatbotOpts []services.ChatbotOption
	if cfg.Chatbot.ArchiveTranscripts {
		deps.Archive = messages
		chatbotOpts = append(chatbotOpts, services.WithArchiveReader(messages))
	}
	sessions := services.NewSessionManager(deps)
	chatbotService := services.NewChatbotService(sessions, logger, chatbotOpts...)

	whatsappService := services.NewWhatsAppService(cfg.WhatsApp,
		services.WithWhatsAppLogger(logger),
		services.WithSessionCounter(sessions.Count),
	)

	// Verify WhatsApp configuration
	if missing := cfg.MissingWhatsAppSettings(); len(missing) > 0 {
		// Continue running without WhatsApp if not configured
		logger.Warn("WhatsApp integration may not work properly", zap.Strings("missing", missing))
	} else {
		logger.Info("WhatsApp configuration verified successfully")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sessions.Run(ctx, sessionSweepInterval)

	// Create Gin router
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		logger.Fatal("invalid trusted proxies", zap.Error(err))
	}

	routes.SetupRoutes(router, routes.Dependencies{
		Config:      cfg,
		Chatbot:     chatbotService,
		WhatsApp:    whatsappService,
		Users:       users,
		Logger:      logger,
		HealthCheck: database.HealthCheck,
	})

	logAvailableEndpoints(router, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initLogger(cfg *config.Config) *zap.Logger {
	level := cfg.Log.Level
	if level == "" && cfg.Environment != "production" {
		level = "debug"
	}
	return utils.InitializeLogger(cfg.Environment, level)
}

// logAvailableEndpoints logs all registered routes
func logAvailableEndpoints(router *gin.Engine, logger *zap.Logger) {
	for _, route := range router.Routes() {
		logger.Debug("route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}
}
