package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-booking-chatbot/config"
	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/services"
)

type graphAPIFake struct {
	mu       sync.Mutex
	payloads []map[string]interface{}
	status   int
}

func newGraphAPIFake(t *testing.T) (*graphAPIFake, *httptest.Server) {
	t.Helper()
	fake := &graphAPIFake{status: http.StatusOK}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(raw, &payload)

		fake.mu.Lock()
		fake.payloads = append(fake.payloads, payload)
		status := fake.status
		fake.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":131026,"message":"undeliverable"}}`))
	}))
	t.Cleanup(srv.Close)
	return fake, srv
}

func (f *graphAPIFake) sent() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]interface{}(nil), f.payloads...)
}

// flakyLookup fails phone lookups while err is set.
type flakyLookup struct {
	store *memoryStore

	mu  sync.Mutex
	err error
}

func (l *flakyLookup) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func (l *flakyLookup) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	l.mu.Lock()
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return l.store.FindByPhone(ctx, phone)
}

type whatsAppFixture struct {
	graph   *graphAPIFake
	users   *flakyLookup
	chatbot *services.ChatbotService
	router  *gin.Engine
}

func newWhatsAppFixture(t *testing.T) *whatsAppFixture {
	t.Helper()
	graph, srv := newGraphAPIFake(t)
	store := newMemoryStore()

	ws := services.NewWhatsAppService(config.WhatsAppConfig{
		APIURL:             srv.URL,
		APIVersion:         "v18.0",
		AccessToken:        "token",
		PhoneNumberID:      "1234",
		VerifyToken:        "verify-me",
		DefaultCountryCode: "84",
	}, services.WithHTTPClient(srv.Client()))
	chatbot := newTestChatbotService(t, store)

	users := &flakyLookup{store: store}
	wc := NewWhatsAppController(ws, chatbot, users, nil)
	wc.dispatch = func(fn func()) { fn() }

	router := gin.New()
	router.GET("/api/whatsapp/webhook", wc.VerifyWebhook)
	router.POST("/api/whatsapp/webhook", wc.HandleWebhook)
	router.POST("/api/whatsapp/admin/send", wc.SendMessage)
	router.GET("/api/whatsapp/admin/status", wc.GetStatus)

	return &whatsAppFixture{graph: graph, users: users, chatbot: chatbot, router: router}
}

func webhookBody(message string) string {
	return `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"messages","value":{"messaging_product":"whatsapp","messages":[` +
		message + `]}}]}]}`
}

func TestVerifyWebhook(t *testing.T) {
	f := newWhatsAppFixture(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusOK},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", http.StatusForbidden},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=42", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(f.router, http.MethodGet, "/api/whatsapp/webhook?"+tt.query, "", nil)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "42", w.Body.String())
			}
		})
	}
}

func TestHandleWebhook_TextMessageFromKnownUser(t *testing.T) {
	f := newWhatsAppFixture(t)

	w := doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook",
		webhookBody(`{"from":"84912345678","id":"wamid.in","type":"text","text":{"body":"Xin chào"}}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	sent := f.graph.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "read", sent[0]["status"])
	assert.Equal(t, "wamid.in", sent[0]["message_id"])

	reply := sent[1]
	assert.Equal(t, "interactive", reply["type"])
	assert.Equal(t, "84912345678", reply["to"])
	interactive := reply["interactive"].(map[string]interface{})
	assert.Equal(t, "list", interactive["type"])
	body := interactive["body"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(body["text"].(string), "Xin chào Lan!"))

	transcript, err := f.chatbot.Transcript(context.Background(), "whatsapp:84912345678", models.ChannelWhatsApp, nil)
	require.NoError(t, err)
	require.Len(t, transcript.Turns, 4)
	assert.Equal(t, "Xin chào", transcript.Turns[2].Text)
}

func TestHandleWebhook_ButtonReplyUsesQuickReply(t *testing.T) {
	f := newWhatsAppFixture(t)

	w := doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook",
		webhookBody(`{"from":"84900000000","id":"wamid.b","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"upcoming","title":"Lịch hẹn sắp tới"}}}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	sent := f.graph.sent()
	require.Len(t, sent, 2)
	interactive := sent[1]["interactive"].(map[string]interface{})
	assert.Equal(t, "button", interactive["type"])
	body := interactive["body"].(map[string]interface{})
	assert.Contains(t, body["text"], "đăng nhập")

	transcript, err := f.chatbot.Transcript(context.Background(), "whatsapp:84900000000", models.ChannelWhatsApp, nil)
	require.NoError(t, err)
	assert.Equal(t, models.QuickReplyUpcoming.Title(), transcript.Turns[2].Text)
}

func TestHandleWebhook_LookupFailureKeepsSender(t *testing.T) {
	f := newWhatsAppFixture(t)
	incoming := webhookBody(`{"from":"84912345678","id":"wamid.1","type":"text","text":{"body":"Xin chào"}}`)

	require.Equal(t, http.StatusOK, doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook", incoming, nil).Code)

	f.users.setErr(errors.New("connection reset"))
	require.Equal(t, http.StatusOK, doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook", incoming, nil).Code)

	session, err := f.chatbot.Sessions().Get("whatsapp:84912345678")
	require.NoError(t, err)
	require.NotNil(t, session.Identity.CurrentUser())
	assert.Equal(t, "u1", session.Identity.CurrentUser().ID)

	sent := f.graph.sent()
	require.Len(t, sent, 4)
	body := sent[3]["interactive"].(map[string]interface{})["body"].(map[string]interface{})
	assert.True(t, strings.HasPrefix(body["text"].(string), "Xin chào Lan!"))
}

func TestWhatsAppSessionsAreClosedToWebClients(t *testing.T) {
	f := newWhatsAppFixture(t)
	chat := newChatRouter(f.chatbot)

	w := doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook",
		webhookBody(`{"from":"84912345678","id":"wamid.a","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"account","title":"Tài khoản"}}}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(chat, http.MethodGet, "/api/v1/chat/whatsapp:84912345678/transcript", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "0912345678")

	w = doJSON(chat, http.MethodPost, "/api/v1/chat", `{"session_id":"whatsapp:84912345678","message":"xin chào"}`, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	session, err := f.chatbot.Sessions().Get("whatsapp:84912345678")
	require.NoError(t, err)
	require.NotNil(t, session.Identity.CurrentUser())
	assert.Equal(t, "u1", session.Identity.CurrentUser().ID)
	assert.Len(t, session.Dialogue.Transcript(), 4)
}

func TestHandleWebhook_IgnoresOtherFields(t *testing.T) {
	f := newWhatsAppFixture(t)

	body := `{"object":"whatsapp_business_account","entry":[{"id":"1","changes":[{"field":"account_update","value":{"messages":[{"from":"1","id":"x","type":"text","text":{"body":"hi"}}]}}]}]}`
	w := doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.graph.sent())
}

func TestHandleWebhook_InvalidBody(t *testing.T) {
	f := newWhatsAppFixture(t)

	w := doJSON(f.router, http.MethodPost, "/api/whatsapp/webhook", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatRequestFor(t *testing.T) {
	tests := []struct {
		name    string
		message models.WhatsAppMessage
		want    models.ChatRequest
	}{
		{
			name:    "text",
			message: models.WhatsAppMessage{From: "84", Type: "text", Text: &models.WhatsAppText{Body: "lịch sử"}},
			want:    models.ChatRequest{SessionID: "whatsapp:84", Message: "lịch sử"},
		},
		{
			name: "list reply",
			message: models.WhatsAppMessage{From: "84", Type: "interactive", Interactive: &models.WhatsAppInteractiveReply{
				Type: "list_reply", ListReply: &models.WhatsAppListReply{ID: "nutrition"},
			}},
			want: models.ChatRequest{SessionID: "whatsapp:84", QuickReply: models.QuickReplyNutrition},
		},
		{
			name:    "template button",
			message: models.WhatsAppMessage{From: "84", Type: "button", Button: &models.WhatsAppQuickButton{Payload: " health ", Text: "Sức khỏe"}},
			want:    models.ChatRequest{SessionID: "whatsapp:84", QuickReply: models.QuickReplyHealth},
		},
		{
			name:    "template button without payload",
			message: models.WhatsAppMessage{From: "84", Type: "button", Button: &models.WhatsAppQuickButton{Text: "cảm ơn"}},
			want:    models.ChatRequest{SessionID: "whatsapp:84", Message: "cảm ơn"},
		},
		{
			name:    "image",
			message: models.WhatsAppMessage{From: "84", Type: "image"},
			want:    models.ChatRequest{SessionID: "whatsapp:84"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, chatRequestFor(tt.message))
		})
	}
}

func TestSendMessage(t *testing.T) {
	f := newWhatsAppFixture(t)

	w := doJSON(f.router, http.MethodPost, "/api/whatsapp/admin/send", `{"to":"0912 345 678","message":"Nhắc lịch"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"sent","to":"84912345678"}`, w.Body.String())

	w = doJSON(f.router, http.MethodPost, "/api/whatsapp/admin/send", `{"to":"0912"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.graph.mu.Lock()
	f.graph.status = http.StatusBadRequest
	f.graph.mu.Unlock()
	w = doJSON(f.router, http.MethodPost, "/api/whatsapp/admin/send", `{"to":"0912","message":"x"}`, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = doJSON(f.router, http.MethodGet, "/api/whatsapp/admin/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.WhatsAppServiceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Enabled)
	assert.Equal(t, 1, status.MessageCountToday)
}
