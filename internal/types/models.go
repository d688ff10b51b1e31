// internal/types/models.go
package types

import (
	"time"
)

// Credential is the OAuth grant for the single marketplace account.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AccountID    string
}

// ValidAt reports whether the access token can still be used at now,
// keeping skew in reserve.
func (c *Credential) ValidAt(now time.Time, skew time.Duration) bool {
	return c != nil && c.AccessToken != "" && now.Before(c.ExpiresAt.Add(-skew))
}

// SessionMode is the conversational state of a chat.
type SessionMode string

const (
	ModeIdle           SessionMode = "idle"
	ModeAwaitingAnswer SessionMode = "awaiting_answer"
)

// ChatSession tracks a multi-turn flow for one chat. The zero value is Idle.
type ChatSession struct {
	Mode              SessionMode `json:"mode"`
	PendingQuestionID string      `json:"pending_question_id,omitempty"`
}

// IsIdle reports whether no flow is pending.
func (s ChatSession) IsIdle() bool {
	return s.Mode == "" || s.Mode == ModeIdle
}

// AwaitingAnswer returns a session waiting for the free-text answer to questionID.
func AwaitingAnswer(questionID string) ChatSession {
	return ChatSession{Mode: ModeAwaitingAnswer, PendingQuestionID: questionID}
}

// InboundChatEvent is either a TextMessage or a ButtonPress.
type InboundChatEvent interface {
	Chat() ChatID
}

// TextMessage is a typed chat message.
type TextMessage struct {
	ChatID ChatID
	Text   string
}

func (m TextMessage) Chat() ChatID { return m.ChatID }

// ButtonPress is an inline keyboard callback.
type ButtonPress struct {
	ChatID     ChatID
	CallbackID string
	Data       string
}

func (b ButtonPress) Chat() ChatID { return b.ChatID }

// Marketplace notification topics.
const (
	TopicQuestions = "questions"
	TopicOrders    = "orders_v2"
)

// Notification is a marketplace webhook event.
type Notification struct {
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
	UserID   int64  `json:"user_id,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// Button is an inline action attached to an outbound message.
type Button struct {
	Text string
	Data string
}

// OutboundMessage is a MarkdownV2-formatted chat message.
type OutboundMessage struct {
	Text    string
	Buttons []Button
}
