package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single entry in a conversation transcript. Messages are never
// mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationState is the per-conversation state threaded through a turn.
type ConversationState struct {
	ConversationID   string    `json:"conversation_id"`
	ExternalThreadID string    `json:"external_thread_id,omitempty"`
	Messages         []Message `json:"messages"`
}

// ConversationMeta is the bookkeeping kept next to a persisted conversation.
type ConversationMeta struct {
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState returns an empty conversation with a fresh identifier.
func NewConversationState() ConversationState {
	return ConversationState{
		ConversationID: NewConversationID(),
		Messages:       []Message{},
	}
}

// NewConversationID returns an opaque conversation identifier.
func NewConversationID() string {
	return "conv_" + uuid.New().String()[:8]
}

// NewMessage creates a message with a fresh identifier.
func NewMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        "msg_" + uuid.New().String()[:8],
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}
}

// Clone returns a copy whose message slice can be appended to without
// affecting the receiver.
func (s ConversationState) Clone() ConversationState {
	msgs := make([]Message, len(s.Messages), len(s.Messages)+2)
	copy(msgs, s.Messages)
	s.Messages = msgs
	return s
}

// HasThread reports whether an external thread has been acquired.
func (s ConversationState) HasThread() bool {
	return s.ExternalThreadID != ""
}

// Title derives a conversation title from its first message.
func (s ConversationState) Title() string {
	if len(s.Messages) == 0 {
		return ""
	}
	runes := []rune(s.Messages[0].Content)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	return string(runes)
}

// Path is the UI location of the conversation.
func (s ConversationState) Path() string {
	return "/chat/" + s.ConversationID
}

// Identity is the caller identity as verified by the web layer.
type Identity struct {
	Email    string `json:"email,omitempty"`
	Verified bool   `json:"verified"`
	Faculty  bool   `json:"faculty"`
}

// UserID is the stable owner key for persisted conversations.
func (i Identity) UserID() string {
	return i.Email
}
