package models

import "time"

// InputKind distinguishes typed text from a tapped quick reply.
type InputKind string

const (
	InputFreeText   InputKind = "free_text"
	InputQuickReply InputKind = "quick_reply"
)

// ChatInput is one user action fed to the reply generator.
type ChatInput struct {
	Kind InputKind
	Text string
	Key  QuickReplyKey
}

// FreeText wraps typed text as a ChatInput.
func FreeText(text string) ChatInput {
	return ChatInput{Kind: InputFreeText, Text: text}
}

// QuickReplyInput wraps a tapped quick reply as a ChatInput.
func QuickReplyInput(key QuickReplyKey) ChatInput {
	return ChatInput{Kind: InputQuickReply, Key: key}
}

// ReplyPayload is what the assistant answers for one user turn.
type ReplyPayload struct {
	Intent       Intent          `json:"intent"`
	Text         string          `json:"text"`
	QuickReplies []QuickReplyKey `json:"quick_replies,omitempty"`
}

// MessageChannel represents the communication channel
type MessageChannel string

const (
	ChannelWeb      MessageChannel = "web"
	ChannelWhatsApp MessageChannel = "whatsapp"
)

// Author of a transcript turn.
type Author string

const (
	AuthorUser Author = "user"
	AuthorBot  Author = "bot"
)

// Turn is a single entry in a conversation transcript.
type Turn struct {
	ID           string       `bson:"turn_id" json:"id"`
	Author       Author       `bson:"author" json:"author"`
	Text         string       `bson:"text" json:"text"`
	QuickReplies []QuickReply `bson:"quick_replies,omitempty" json:"quick_replies,omitempty"`
	CreatedAt    time.Time    `bson:"created_at" json:"created_at"`
}

// ArchivedTurn is a transcript turn as stored in the messages collection.
type ArchivedTurn struct {
	Turn      `bson:",inline"`
	SessionID string         `bson:"session_id"`
	UserID    string         `bson:"user_id,omitempty"`
	Channel   MessageChannel `bson:"channel,omitempty"`
}

// ChatRequest is the body of POST /api/v1/chat. Exactly one of Message or
// QuickReply is expected; QuickReply wins when both are set.
type ChatRequest struct {
	SessionID  string        `json:"session_id" binding:"required"`
	Message    string        `json:"message,omitempty"`
	QuickReply QuickReplyKey `json:"quick_reply,omitempty"`
}

// Input converts the request into the generator's tagged input.
func (r ChatRequest) Input() ChatInput {
	if r.QuickReply != "" {
		return QuickReplyInput(r.QuickReply)
	}
	return FreeText(r.Message)
}

// ChatResponse is returned by the chat endpoints.
type ChatResponse struct {
	SessionID    string       `json:"session_id"`
	Intent       Intent       `json:"intent"`
	Response     string       `json:"response"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
	Turns        []Turn       `json:"turns,omitempty"`
}

// TranscriptResponse is returned by GET /api/v1/chat/:session_id/transcript.
type TranscriptResponse struct {
	SessionID   string `json:"session_id"`
	IsComposing bool   `json:"is_composing"`
	Turns       []Turn `json:"turns"`
}

// SocketFrame is pushed to WebSocket clients.
type SocketFrame struct {
	Type   string        `json:"type"` // "typing", "turn", "reply", "error"
	Typing *bool         `json:"typing,omitempty"`
	Turn   *Turn         `json:"turn,omitempty"`
	Reply  *ChatResponse `json:"reply,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// SocketRequest is read from WebSocket clients.
type SocketRequest struct {
	Message    string        `json:"message,omitempty"`
	QuickReply QuickReplyKey `json:"quick_reply,omitempty"`
}
