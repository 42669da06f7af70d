// Package render turns turn outcomes into the text shown to the user.
package render

import (
	"fmt"
	"time"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

var failedText = map[string]string{
	domain.ReasonNoAssistant:      "No assistant is selected. Choose an assistant before sending a message.",
	domain.ReasonUnknownAssistant: "The selected assistant no longer exists. Choose another assistant.",
	domain.ReasonNotPermitted:     "You do not have access to the selected assistant.",
	domain.ReasonEmptyMessage:     "Type a message before sending.",
	domain.ReasonInvalidPoll:      "The server is misconfigured and cannot wait for replies.",
	domain.ReasonNoConversation:   "The conversation could not be identified.",
	domain.ReasonThreadFailed:     "Sorry, the conversation could not be started. Please try again.",
	domain.ReasonSubmitFailed:     "Sorry, your message could not be sent. Please try again.",
	domain.ReasonPollFailed:       "Sorry, we lost track of the reply. Please try again.",
	domain.ReasonFetchFailed:      "Sorry, the reply could not be retrieved. Please try again.",
	domain.ReasonRunFailed:        "Sorry, I encountered an error processing your request.",
	domain.ReasonRunExpired:       "Sorry, the assistant gave up on this request. Please try again.",
	domain.ReasonMalformed:        "Sorry, the assistant replied with something that cannot be shown.",
}

// Reasons a user cannot fix by sending the same message again.
var permanent = map[string]bool{
	domain.ReasonNoAssistant:      true,
	domain.ReasonUnknownAssistant: true,
	domain.ReasonNotPermitted:     true,
	domain.ReasonEmptyMessage:     true,
	domain.ReasonInvalidPoll:      true,
	domain.ReasonNoConversation:   true,
}

// Render maps an outcome to its user-facing view.
func Render(o domain.TurnOutcome) domain.OutcomeView {
	v := domain.OutcomeView{Kind: o.Kind}
	switch o.Kind {
	case domain.OutcomeSuccess:
		v.Text = o.AssistantText
	case domain.OutcomeTimedOut:
		v.Text = fmt.Sprintf("The assistant is taking longer than expected (no reply after %s and %s). Send your message again to retry.",
			roundElapsed(o.Elapsed), plural(o.Attempts, "check"))
		v.Retryable = true
	case domain.OutcomeCancelled:
		v.Text = "The request was cancelled before the assistant replied."
		v.Retryable = true
	case domain.OutcomeBusy:
		v.Text = "The assistant is still working on your previous message."
		v.Retryable = true
	case domain.OutcomeFailed:
		text, ok := failedText[o.Reason]
		if !ok {
			text = "Sorry, something went wrong. Please try again."
		}
		v.Text = text
		v.Retryable = !permanent[o.Reason]
	default:
		v.Text = "Sorry, something went wrong. Please try again."
	}
	return v
}

func roundElapsed(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Second)
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
