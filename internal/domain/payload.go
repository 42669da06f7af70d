package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a persisted turn trace event for replay.
type Event struct {
	EventID        string          `json:"event_id"`
	ConversationID string          `json:"conversation_id"`
	TurnID         string          `json:"turn_id"`
	Ts             int64           `json:"ts"` // Unix milliseconds
	Type           EventType       `json:"type"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// TurnEvent is emitted by the orchestrator while a turn progresses.
type TurnEvent struct {
	ConversationID string
	TurnID         string
	Type           EventType
	At             time.Time
	Payload        any
}

// EventSink receives turn events. Implementations must not block for long;
// the poll loop waits on them.
type EventSink interface {
	OnTurnEvent(ctx context.Context, event TurnEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, event TurnEvent)

func (f EventSinkFunc) OnTurnEvent(ctx context.Context, event TurnEvent) { f(ctx, event) }

// TurnStartedPayload is the payload for turn_started event.
type TurnStartedPayload struct {
	ProfileID string `json:"profile_id"`
	MessageID string `json:"message_id"`
	HasThread bool   `json:"has_thread"`
}

// ThreadCreatedPayload is the payload for thread_created event.
type ThreadCreatedPayload struct {
	ThreadID string `json:"thread_id"`
}

// RunSubmittedPayload is the payload for run_submitted event.
type RunSubmittedPayload struct {
	ThreadID string    `json:"thread_id"`
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
}

// RunStatusPayload is the payload for run_status event.
type RunStatusPayload struct {
	RunID   string    `json:"run_id"`
	Status  RunStatus `json:"status"`
	Attempt int       `json:"attempt"`
}

// TurnFinishedPayload is the payload for turn_finished event.
type TurnFinishedPayload struct {
	Kind      OutcomeKind `json:"kind"`
	Reason    string      `json:"reason,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	ElapsedMs int64       `json:"elapsed_ms"`
	MessageID string      `json:"message_id,omitempty"`
}
