package controllers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"clinic-booking-chatbot/middleware"
	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.FixedZone("UTC+7", 7*3600))

type memoryStore struct {
	mu           sync.Mutex
	appointments map[string][]models.AppointmentSummary
	profiles     map[string]*models.UserProfile
	phones       map[string]*models.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		appointments: map[string][]models.AppointmentSummary{
			"u1": {{ServiceName: "Khám tổng quát", ScheduledAt: testNow.Add(48 * time.Hour), Status: "confirmed"}},
		},
		profiles: map[string]*models.UserProfile{
			"u1": {Name: "Lan", Gender: "Nữ", Phone: "0912345678"},
		},
		phones: map[string]*models.User{
			"84912345678": {ID: "u1", DisplayName: "Lan"},
		},
	}
}

func (m *memoryStore) FetchAppointments(_ context.Context, userID string) ([]models.AppointmentSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appointments[userID], nil
}

func (m *memoryStore) FetchProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID], nil
}

func (m *memoryStore) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phones[phone], nil
}

func newTestChatbotService(t *testing.T, store *memoryStore) *services.ChatbotService {
	t.Helper()
	manager := services.NewSessionManager(services.SessionDeps{
		Appointments: store,
		Profiles:     store,
		Metrics:      services.NewChatbotMetrics(prometheus.NewRegistry()),
		Location:     testNow.Location(),
		Now:          func() time.Time { return testNow },
	})
	return services.NewChatbotService(manager, nil)
}

func newChatRouter(svc *services.ChatbotService) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Identity())
	cc := NewChatbotController(svc)
	api := router.Group("/api/v1")
	api.POST("/chat", cc.HandleChat)
	api.GET("/chat/:session_id/transcript", cc.GetTranscript)
	api.POST("/chat/:session_id/signout", cc.SignOut)
	api.GET("/intents", cc.GetSupportedIntents)
	return router
}
