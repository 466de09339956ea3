package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"clinic-booking-chatbot/config"
	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

// WhatsApp Cloud API limits for interactive messages.
const (
	maxReplyButtons       = 3
	maxListRows           = 10
	maxButtonTitleRunes   = 20
	maxListTitleRunes     = 24
	maxInteractiveBodyLen = 1024
)

const (
	whatsAppListButton   = "Chọn chủ đề"
	whatsAppListSection  = "Gợi ý"
	whatsAppFollowUpText = "Bạn cần hỗ trợ thêm gì không?"
	whatsAppFooterText   = "Trợ lý phòng khám"
)

var ErrWhatsAppDisabled = errors.New("whatsapp channel is not configured")

type WhatsAppService struct {
	apiURL        string
	apiVersion    string
	accessToken   string
	phoneNumberID string
	verifyToken   string
	countryCode   string
	httpClient    *http.Client
	logger        *zap.Logger
	now           func() time.Time

	// Status tracking
	statusMu        sync.RWMutex
	lastMessageTime time.Time
	messageCount    int64
	dailyCount      map[string]int
	activeSessions  func() int
}

type WhatsAppOption func(*WhatsAppService)

func WithHTTPClient(client *http.Client) WhatsAppOption {
	return func(ws *WhatsAppService) {
		if client != nil {
			ws.httpClient = client
		}
	}
}

func WithWhatsAppLogger(l *zap.Logger) WhatsAppOption {
	return func(ws *WhatsAppService) { ws.logger = utils.LoggerOrNop(l) }
}

// WithSessionCounter reports active chat sessions in GetStatus.
func WithSessionCounter(count func() int) WhatsAppOption {
	return func(ws *WhatsAppService) { ws.activeSessions = count }
}

func NewWhatsAppService(cfg config.WhatsAppConfig, opts ...WhatsAppOption) *WhatsAppService {
	ws := &WhatsAppService{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		apiVersion:    cfg.APIVersion,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		verifyToken:   cfg.VerifyToken,
		countryCode:   cfg.DefaultCountryCode,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     zap.NewNop(),
		now:        time.Now,
		dailyCount: make(map[string]int),
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// GetVerifyToken returns the webhook verification token
func (ws *WhatsAppService) GetVerifyToken() string {
	return ws.verifyToken
}

// Enabled reports whether outbound messages can be sent.
func (ws *WhatsAppService) Enabled() bool {
	return ws.accessToken != "" && ws.phoneNumberID != ""
}

// SendTextMessage sends a simple text message
func (ws *WhatsAppService) SendTextMessage(ctx context.Context, to string, message string) error {
	payload := models.WhatsAppSendMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               ws.CleanPhoneNumber(to),
		Type:             "text",
		Text: &models.WhatsAppText{
			Body: message,
		},
	}
	return ws.sendRequest(ctx, payload)
}

// SendInteractiveMessage sends an interactive message
func (ws *WhatsAppService) SendInteractiveMessage(ctx context.Context, to string, interactive *models.InteractiveMessage) error {
	payload := models.WhatsAppSendMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               ws.CleanPhoneNumber(to),
		Type:             "interactive",
		Interactive:      interactive,
	}
	return ws.sendRequest(ctx, payload)
}

// SendReply delivers an assistant reply. Quick replies become reply
// buttons when there are at most three of them and a list otherwise.
func (ws *WhatsAppService) SendReply(ctx context.Context, to string, reply models.ReplyPayload) error {
	if len(reply.QuickReplies) == 0 {
		return ws.SendTextMessage(ctx, to, reply.Text)
	}

	body := reply.Text
	if utf8.RuneCountInString(body) > maxInteractiveBodyLen {
		if err := ws.SendTextMessage(ctx, to, body); err != nil {
			return err
		}
		body = whatsAppFollowUpText
	}
	return ws.SendInteractiveMessage(ctx, to, BuildInteractiveReply(body, reply.QuickReplies))
}

// BuildInteractiveReply renders quick replies as WhatsApp buttons or a
// list. Button and row ids are the quick reply keys.
func BuildInteractiveReply(body string, keys []models.QuickReplyKey) *models.InteractiveMessage {
	msg := &models.InteractiveMessage{
		Body:   &models.InteractiveBody{Text: body},
		Footer: &models.InteractiveFooter{Text: whatsAppFooterText},
		Action: &models.InteractiveAction{},
	}

	if len(keys) <= maxReplyButtons {
		msg.Type = "button"
		for _, key := range keys {
			msg.Action.Buttons = append(msg.Action.Buttons, models.InteractiveButton{
				Type: "reply",
				Reply: &models.ButtonReply{
					ID:    string(key),
					Title: truncateRunes(key.Title(), maxButtonTitleRunes),
				},
			})
		}
		return msg
	}

	if len(keys) > maxListRows {
		keys = keys[:maxListRows]
	}
	rows := make([]models.ListItem, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, models.ListItem{
			ID:    string(key),
			Title: truncateRunes(key.Title(), maxListTitleRunes),
		})
	}
	msg.Type = "list"
	msg.Action.Button = whatsAppListButton
	msg.Action.Sections = []models.Section{{Title: whatsAppListSection, Rows: rows}}
	return msg
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// MarkMessageAsRead marks a message as read
func (ws *WhatsAppService) MarkMessageAsRead(ctx context.Context, messageID string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return ws.send(ctx, payload, false)
}

func (ws *WhatsAppService) sendRequest(ctx context.Context, payload interface{}) error {
	return ws.send(ctx, payload, true)
}

func (ws *WhatsAppService) send(ctx context.Context, payload interface{}, countAsSent bool) error {
	if !ws.Enabled() {
		return ErrWhatsAppDisabled
	}

	url := fmt.Sprintf("%s/%s/%s/messages", ws.apiURL, ws.apiVersion, ws.phoneNumberID)

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ws.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ws.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			ws.logger.Warn("whatsapp api rejected request",
				zap.Int("status", resp.StatusCode),
				zap.Int("code", apiErr.Error.Code),
				zap.String("message", apiErr.Error.Message),
			)
			return fmt.Errorf("whatsapp api error %d: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return fmt.Errorf("whatsapp api error: status %d: %s", resp.StatusCode, string(body))
	}

	ws.logger.Debug("whatsapp request sent", zap.Int("status", resp.StatusCode))
	if countAsSent {
		ws.updateMessageStatus()
	}
	return nil
}

// CleanPhoneNumber strips everything but digits and replaces a leading
// trunk zero with the default country code.
func (ws *WhatsAppService) CleanPhoneNumber(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	if ws.countryCode != "" && strings.HasPrefix(cleaned, "0") {
		cleaned = ws.countryCode + strings.TrimPrefix(cleaned, "0")
	}
	return cleaned
}

// updateMessageStatus updates internal message tracking
func (ws *WhatsAppService) updateMessageStatus() {
	now := ws.now()

	ws.statusMu.Lock()
	defer ws.statusMu.Unlock()

	ws.lastMessageTime = now
	ws.messageCount++

	today := now.Format("2006-01-02")
	for day := range ws.dailyCount {
		if day != today {
			delete(ws.dailyCount, day)
		}
	}
	ws.dailyCount[today]++
}

// GetStatus returns the service status
func (ws *WhatsAppService) GetStatus() models.WhatsAppServiceStatus {
	ws.statusMu.RLock()
	defer ws.statusMu.RUnlock()

	status := models.WhatsAppServiceStatus{
		Enabled:           ws.Enabled(),
		LastMessageSent:   ws.lastMessageTime,
		MessageCountToday: ws.dailyCount[ws.now().Format("2006-01-02")],
	}
	if ws.activeSessions != nil {
		status.ActiveSessions = ws.activeSessions()
	}
	return status
}
