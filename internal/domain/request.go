package domain

import "time"

// AssistantProfile is an external assistant a conversation may target.
type AssistantProfile struct {
	ID         string `json:"id" mapstructure:"id"`
	Name       string `json:"name" mapstructure:"name"`
	Restricted bool   `json:"restricted" mapstructure:"restricted"`
}

// OutcomeView is the user-facing rendition of a TurnOutcome.
type OutcomeView struct {
	Kind      OutcomeKind `json:"kind"`
	Text      string      `json:"text"`
	Retryable bool        `json:"retryable"`
}

// TurnRequest is the body of a turn submission.
type TurnRequest struct {
	Content string `json:"content"`
	Async   bool   `json:"async,omitempty"`
}

// TurnResponse is returned once a synchronous turn has finished.
type TurnResponse struct {
	ConversationID string      `json:"conversation_id"`
	TurnID         string      `json:"turn_id"`
	Outcome        TurnOutcome `json:"outcome"`
	View           OutcomeView `json:"view"`
	Messages       []Message   `json:"messages"`
}

// TurnAcceptedResponse is returned when a turn was started in the background.
type TurnAcceptedResponse struct {
	ConversationID string `json:"conversation_id"`
	TurnID         string `json:"turn_id"`
}

// SelectAssistantRequest selects the assistant profile for later turns.
type SelectAssistantRequest struct {
	AssistantID string `json:"assistant_id"`
}

// ConversationSummary is a list entry for a persisted conversation.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Path           string    `json:"path"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationResponse is a full persisted conversation.
type ConversationResponse struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Path           string    `json:"path"`
	Messages       []Message `json:"messages"`
}

// TurnFinishedNotice is pushed to stream subscribers when a turn ends.
type TurnFinishedNotice struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id"`
	TurnID         string      `json:"turn_id"`
	Outcome        TurnOutcome `json:"outcome"`
	View           OutcomeView `json:"view"`
	Message        *Message    `json:"message,omitempty"`
}
