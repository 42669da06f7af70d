package domain

import "time"

// Failure reasons carried by Failed outcomes.
const (
	ReasonNoAssistant      = "no assistant configured"
	ReasonUnknownAssistant = "unknown assistant"
	ReasonNotPermitted     = "assistant not permitted"
	ReasonEmptyMessage     = "empty message"
	ReasonInvalidPoll      = "invalid poll config"
	ReasonThreadFailed     = "thread creation failed"
	ReasonSubmitFailed     = "submission failed"
	ReasonNoConversation   = "missing conversation id"
	ReasonPollFailed       = "poll failed"
	ReasonFetchFailed      = "result fetch failed"
	ReasonRunFailed        = "run failed"
	ReasonRunExpired       = "run expired"
	ReasonMalformed        = "malformed response"
)

// TurnOutcome is the result of exactly one turn. Kind selects which of the
// remaining fields are meaningful.
type TurnOutcome struct {
	Kind          OutcomeKind   `json:"kind"`
	AssistantText string        `json:"assistant_text,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Elapsed       time.Duration `json:"elapsed_ns,omitempty"`
	Attempts      int           `json:"attempts,omitempty"`
	// Cause is kept for logging only.
	Cause error `json:"-"`
}

// Success carries the assistant reply of a completed run.
func Success(text string) TurnOutcome {
	return TurnOutcome{Kind: OutcomeSuccess, AssistantText: text}
}

// TimedOut reports a run still pending when a poll ceiling was reached.
func TimedOut(elapsed time.Duration, attempts int) TurnOutcome {
	return TurnOutcome{Kind: OutcomeTimedOut, Elapsed: elapsed, Attempts: attempts}
}

// Failed reports a turn that cannot succeed; reason is shown to the user.
func Failed(reason string, cause error) TurnOutcome {
	return TurnOutcome{Kind: OutcomeFailed, Reason: reason, Cause: cause}
}

// Cancelled reports a turn stopped by its caller.
func Cancelled(elapsed time.Duration, attempts int, cause error) TurnOutcome {
	return TurnOutcome{Kind: OutcomeCancelled, Elapsed: elapsed, Attempts: attempts, Cause: cause}
}

// Busy reports that another turn holds the conversation.
func Busy() TurnOutcome {
	return TurnOutcome{Kind: OutcomeBusy, Reason: ErrBusy.Error()}
}

// OK reports whether the outcome is a Success.
func (o TurnOutcome) OK() bool {
	return o.Kind == OutcomeSuccess
}
