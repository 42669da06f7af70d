// Package domain defines the core domain models for conversation turns.
package domain

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// RunStatus is the status of an external run as observed by the orchestrator.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusTimedOut   RunStatus = "timed_out"
)

// Terminal reports whether no further status change is expected.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusTimedOut:
		return true
	}
	return false
}

// OutcomeKind identifies the TurnOutcome variant.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeTimedOut  OutcomeKind = "timed_out"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeBusy      OutcomeKind = "busy"
)

// EventType represents the type of a turn trace event.
type EventType string

const (
	EventTypeTurnStarted   EventType = "turn_started"
	EventTypeThreadCreated EventType = "thread_created"
	EventTypeRunSubmitted  EventType = "run_submitted"
	EventTypeRunStatus     EventType = "run_status"
	EventTypeTurnFinished  EventType = "turn_finished"
)
