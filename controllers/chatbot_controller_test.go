package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-booking-chatbot/middleware"
	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/services"
)

func doJSON(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleChat_SignedInUpcoming(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))

	w := doJSON(router, http.MethodPost, "/api/v1/chat",
		`{"session_id":"s1","quick_reply":"upcoming"}`,
		map[string]string{middleware.UserIDHeader: "u1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, models.IntentUpcoming, resp.Intent)
	assert.Contains(t, resp.Response, "Khám tổng quát - Chủ Nhật, 18 tháng 10 năm 2026 lúc 10:00 (Đã xác nhận)")
	require.Len(t, resp.Turns, 2)
	assert.Equal(t, "Lịch hẹn sắp tới", resp.Turns[0].Text)
	require.NotEmpty(t, resp.QuickReplies)
	assert.Equal(t, models.QuickReplyHistory, resp.QuickReplies[0].Key)
}

func TestHandleChat_AnonymousGetsSignInPrompt(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))

	w := doJSON(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s1","message":"lịch hẹn sắp tới của tôi"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.IntentUpcoming, resp.Intent)
	assert.Contains(t, resp.Response, "đăng nhập")
}

func TestHandleChat_BadRequests(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"missing session", `{"message":"hi"}`, http.StatusBadRequest},
		{"blank session", `{"session_id":"   ","message":"hi"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/v1/chat", tt.body, nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestGetTranscript(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))

	w := doJSON(router, http.MethodGet, "/api/v1/chat/s1/transcript", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doJSON(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s1","message":"xin chào"}`, nil)

	w = doJSON(router, http.MethodGet, "/api/v1/chat/s1/transcript", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var transcript models.TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transcript))
	assert.False(t, transcript.IsComposing)
	require.Len(t, transcript.Turns, 4)
	assert.Equal(t, models.AuthorUser, transcript.Turns[2].Author)
	assert.Equal(t, "xin chào", transcript.Turns[2].Text)
}

func TestSignOut(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))
	signedIn := map[string]string{middleware.UserIDHeader: "u1"}

	doJSON(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s1","quick_reply":"account"}`, signedIn)

	w := doJSON(router, http.MethodPost, "/api/v1/chat/s1/signout", "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/chat/s1/signout", "", signedIn)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/chat/missing/signout", "", signedIn)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatSessionsBelongToTheirUser(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))
	owner := map[string]string{middleware.UserIDHeader: "u1"}
	intruder := map[string]string{middleware.UserIDHeader: "u2"}

	w := doJSON(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s1","quick_reply":"account"}`, owner)
	require.Equal(t, http.StatusOK, w.Code)

	for _, headers := range []map[string]string{nil, intruder} {
		w = doJSON(router, http.MethodGet, "/api/v1/chat/s1/transcript", "", headers)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.NotContains(t, w.Body.String(), "0912345678")

		w = doJSON(router, http.MethodPost, "/api/v1/chat", `{"session_id":"s1","message":"xin chào"}`, headers)
		assert.Equal(t, http.StatusForbidden, w.Code)
	}

	w = doJSON(router, http.MethodGet, "/api/v1/chat/s1/transcript", "", owner)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "0912345678")
}

func TestGetSupportedIntents(t *testing.T) {
	router := newChatRouter(newTestChatbotService(t, newMemoryStore()))

	w := doJSON(router, http.MethodGet, "/api/v1/intents", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var catalog services.IntentCatalog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &catalog))
	assert.Len(t, catalog.QuickReplies, len(models.AllQuickReplyKeys))
	assert.Equal(t, models.IntentFallback, catalog.Intents[len(catalog.Intents)-1].Intent)
}
