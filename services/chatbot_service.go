package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"clinic-booking-chatbot/models"
	"clinic-booking-chatbot/utils"
)

var ErrMissingSessionID = errors.New("session id is required")

// WhatsAppSessionPrefix marks the sessions of WhatsApp senders.
const WhatsAppSessionPrefix = "whatsapp:"

// WhatsAppSessionID is the session id of a WhatsApp sender.
func WhatsAppSessionID(phone string) string {
	return WhatsAppSessionPrefix + phone
}

// IntentInfo describes one classifier rule for the intents endpoint.
type IntentInfo struct {
	Intent   models.Intent `json:"intent"`
	Keywords []string      `json:"keywords,omitempty"`
}

// IntentCatalog lists what the assistant understands.
type IntentCatalog struct {
	Intents      []IntentInfo        `json:"intents"`
	QuickReplies []models.QuickReply `json:"quick_replies"`
}

// ArchiveReader loads archived turns of a session that is no longer in
// memory.
type ArchiveReader interface {
	SessionTurns(ctx context.Context, sessionID string, limit int64) ([]models.ArchivedTurn, error)
}

// ChatbotService is the entry point the transport layers share.
type ChatbotService struct {
	sessions   *SessionManager
	archive    ArchiveReader
	classifier *utils.IntentClassifier
	logger     *zap.Logger
}

type ChatbotOption func(*ChatbotService)

// WithArchiveReader lets Transcript fall back to archived turns for
// expired sessions.
func WithArchiveReader(r ArchiveReader) ChatbotOption {
	return func(s *ChatbotService) { s.archive = r }
}

func NewChatbotService(sessions *SessionManager, logger *zap.Logger, opts ...ChatbotOption) *ChatbotService {
	s := &ChatbotService{
		sessions:   sessions,
		classifier: utils.NewIntentClassifier(),
		logger:     utils.LoggerOrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChatbotService) Sessions() *SessionManager {
	return s.sessions
}

// Session returns the conversation for id, bound to user. Web clients
// cannot open WhatsApp session ids nor another user's session.
func (s *ChatbotService) Session(id string, channel models.MessageChannel, user *models.User) (*ChatSession, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingSessionID
	}
	if err := checkChannelID(id, channel); err != nil {
		return nil, err
	}
	return s.sessions.GetOrCreate(id, channel, user)
}

func checkChannelID(id string, channel models.MessageChannel) error {
	if (channel == models.ChannelWhatsApp) != strings.HasPrefix(id, WhatsAppSessionPrefix) {
		return ErrSessionForbidden
	}
	return nil
}

// ProcessMessage runs one user input through the session's dialogue and
// returns the reply with the two turns it appended.
func (s *ChatbotService) ProcessMessage(ctx context.Context, req models.ChatRequest, user *models.User, channel models.MessageChannel) (*models.ChatResponse, error) {
	exchange, err := s.Converse(ctx, req, user, channel)
	if err != nil {
		return nil, err
	}
	return ResponseFor(strings.TrimSpace(req.SessionID), exchange), nil
}

// Converse is ProcessMessage for callers that need the raw exchange.
func (s *ChatbotService) Converse(ctx context.Context, req models.ChatRequest, user *models.User, channel models.MessageChannel) (Exchange, error) {
	session, err := s.Session(req.SessionID, channel, user)
	if err != nil {
		return Exchange{}, err
	}

	input := req.Input()
	var exchange Exchange
	if input.Kind == models.InputQuickReply {
		exchange = session.Dialogue.SubmitQuickReply(ctx, input.Key)
	} else {
		exchange = session.Dialogue.Submit(ctx, input.Text)
	}

	s.logger.Debug("message processed",
		zap.String("session_id", session.ID),
		zap.String("channel", string(channel)),
		zap.String("input_kind", string(input.Kind)),
		zap.String("intent", string(exchange.Reply.Intent)),
	)
	return exchange, nil
}

// ResponseFor renders an exchange as an API response.
func ResponseFor(sessionID string, exchange Exchange) *models.ChatResponse {
	return &models.ChatResponse{
		SessionID:    sessionID,
		Intent:       exchange.Reply.Intent,
		Response:     exchange.Reply.Text,
		QuickReplies: models.QuickRepliesFor(exchange.Reply.QuickReplies),
		Turns:        []models.Turn{exchange.UserTurn, exchange.BotTurn},
	}
}

// Transcript returns the live transcript of a session the caller may use.
// Sessions that have expired are served from the archive when one is
// configured, under the same access rules.
func (s *ChatbotService) Transcript(ctx context.Context, sessionID string, channel models.MessageChannel, user *models.User) (*models.TranscriptResponse, error) {
	if err := checkChannelID(sessionID, channel); err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(sessionID)
	if err == nil {
		if !session.Allows(channel, user) {
			return nil, ErrSessionForbidden
		}
		return &models.TranscriptResponse{
			SessionID:   session.ID,
			IsComposing: session.Dialogue.IsComposing(),
			Turns:       session.Dialogue.Transcript(),
		}, nil
	}
	if !errors.Is(err, ErrSessionNotFound) || s.archive == nil {
		return nil, err
	}

	archived, archiveErr := s.archive.SessionTurns(ctx, sessionID, MaxHistoryMessages)
	if archiveErr != nil {
		return nil, fmt.Errorf("load archived transcript: %w", archiveErr)
	}
	if len(archived) == 0 {
		return nil, ErrSessionNotFound
	}
	turns := make([]models.Turn, 0, len(archived))
	for _, t := range archived {
		if !archivedTurnAllows(t, channel, user) {
			return nil, ErrSessionForbidden
		}
		turns = append(turns, t.Turn)
	}
	return &models.TranscriptResponse{SessionID: sessionID, Turns: turns}, nil
}

// archivedTurnAllows applies ChatSession.Allows to a stored turn, whose
// user id is the session owner whenever someone was signed in.
func archivedTurnAllows(t models.ArchivedTurn, channel models.MessageChannel, user *models.User) bool {
	if t.Channel != "" && t.Channel != channel {
		return false
	}
	if channel != models.ChannelWeb || t.UserID == "" {
		return true
	}
	return user != nil && user.ID == t.UserID
}

// SignOut clears the user of a session the caller may use.
func (s *ChatbotService) SignOut(sessionID string, channel models.MessageChannel, user *models.User) error {
	if err := checkChannelID(sessionID, channel); err != nil {
		return err
	}
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	if !session.Allows(channel, user) {
		return ErrSessionForbidden
	}
	if err := s.sessions.SignOut(sessionID); err != nil {
		return err
	}
	s.logger.Info("session signed out", zap.String("session_id", sessionID))
	return nil
}

func (s *ChatbotService) SupportedIntents() IntentCatalog {
	rules := s.classifier.Rules()
	catalog := IntentCatalog{
		Intents:      make([]IntentInfo, 0, len(rules)+1),
		QuickReplies: models.QuickRepliesFor(models.AllQuickReplyKeys),
	}
	for _, rule := range rules {
		catalog.Intents = append(catalog.Intents, IntentInfo{Intent: rule.Intent, Keywords: rule.Keywords})
	}
	catalog.Intents = append(catalog.Intents, IntentInfo{Intent: models.IntentFallback})
	return catalog
}
