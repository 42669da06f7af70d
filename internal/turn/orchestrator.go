// Package turn drives one conversation turn against the external run
// service: thread acquisition, submission, a bounded poll loop and the merge
// of the reply into conversation state.
//
// A turn moves through
//
//	NoThread -> ThreadReady -> Submitted -> {Queued <-> InProgress}
//	  -> Completed -> Success | Failed | Exhausted -> TimedOut
//
// and additionally ends in Cancelled when the caller's context is done, or
// Busy when another turn holds the conversation.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JollyOmnivore/Athena-AI/internal/adapter/runclient"
	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventSink receives progress events for every turn.
func WithEventSink(sink domain.EventSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithGuard shares an in-flight guard between orchestrators.
func WithGuard(g *Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// Orchestrator runs turns. It holds no conversation state of its own; state
// is passed in and the authoritative next state is returned.
type Orchestrator struct {
	client runclient.Client
	logger zerolog.Logger
	sink   domain.EventSink
	guard  *Guard
}

// New creates an Orchestrator on top of a run client.
func New(client runclient.Client, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		logger: logger.With().Str("component", "turn").Logger(),
		guard:  NewGuard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InFlight reports whether a turn is running for the conversation.
func (o *Orchestrator) InFlight(conversationID string) bool {
	return o.guard.Active(conversationID)
}

type turnIDKey struct{}

// ContextWithTurnID tags the turn started with ctx.
func ContextWithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, turnID)
}

// TurnIDFromContext returns the turn id set by ContextWithTurnID.
func TurnIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(turnIDKey{}).(string)
	return id, ok && id != ""
}

// NewTurnID returns an opaque turn identifier.
func NewTurnID() string {
	return "turn_" + uuid.New().String()[:8]
}

// run is the per-turn bookkeeping.
type run struct {
	id      string
	state   domain.ConversationState
	started time.Time
	log     zerolog.Logger
}

// SubmitTurn runs one turn. Exactly one outcome is produced and nothing is
// returned as an error; the returned state is the authoritative next state
// for every outcome. Only a Success appends the assistant message.
func (o *Orchestrator) SubmitTurn(ctx context.Context, state domain.ConversationState, userText, profileID string, cfg domain.PollConfig) (domain.ConversationState, domain.TurnOutcome) {
	switch {
	case profileID == "":
		return state, domain.Failed(domain.ReasonNoAssistant, &domain.ConfigError{Field: "assistant_id", Err: domain.ErrNoAssistant})
	case strings.TrimSpace(userText) == "":
		return state, domain.Failed(domain.ReasonEmptyMessage, &domain.ConfigError{Field: "content", Err: domain.ErrEmptyMessage})
	case state.ConversationID == "":
		return state, domain.Failed(domain.ReasonNoConversation, &domain.ConfigError{Field: "conversation_id", Err: errors.New("required")})
	}
	if err := cfg.Validate(); err != nil {
		return state, domain.Failed(domain.ReasonInvalidPoll, err)
	}

	if !o.guard.holds(ctx, state.ConversationID) {
		release, ok := o.guard.TryAcquire(state.ConversationID)
		if !ok {
			o.logger.Info().Str("conversation_id", state.ConversationID).Msg("turn rejected: conversation busy")
			return state, domain.Busy()
		}
		defer release()
	}

	turnID, ok := TurnIDFromContext(ctx)
	if !ok {
		turnID = NewTurnID()
	}
	r := &run{
		id:      turnID,
		state:   state.Clone(),
		started: time.Now(),
		log: o.logger.With().
			Str("conversation_id", state.ConversationID).
			Str("turn_id", turnID).
			Logger(),
	}

	outcome := o.drive(ctx, r, userText, profileID, cfg)
	if outcome.Kind == domain.OutcomeCancelled && outcome.Attempts == 0 && !state.HasThread() {
		// No poll completed, so the new thread is abandoned along with the
		// message sent to it; the next turn starts from the input state.
		r.state = state.Clone()
	}
	o.finish(ctx, r, outcome)
	return r.state, outcome
}

func (o *Orchestrator) drive(ctx context.Context, r *run, userText, profileID string, cfg domain.PollConfig) domain.TurnOutcome {
	if err := ctx.Err(); err != nil {
		return domain.Cancelled(0, 0, err)
	}
	r.log.Debug().Str("profile_id", profileID).Bool("has_thread", r.state.HasThread()).Msg("turn started")

	userMsg := domain.NewMessage(domain.RoleUser, userText, time.Now())
	o.emit(ctx, r, domain.EventTypeTurnStarted, domain.TurnStartedPayload{
		ProfileID: profileID,
		MessageID: userMsg.ID,
		HasThread: r.state.HasThread(),
	})

	if !r.state.HasThread() {
		threadID, err := o.client.CreateThread(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Cancelled(time.Since(r.started), 0, ctx.Err())
			}
			return domain.Failed(domain.ReasonThreadFailed, err)
		}
		r.state.ExternalThreadID = threadID
		r.log.Info().Str("thread_id", threadID).Msg("thread created")
		o.emit(ctx, r, domain.EventTypeThreadCreated, domain.ThreadCreatedPayload{ThreadID: threadID})
	}

	r.state.Messages = append(r.state.Messages, userMsg)

	handle, err := o.client.SubmitMessage(ctx, r.state.ExternalThreadID, userText, profileID)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return domain.Cancelled(time.Since(r.started), 0, ctx.Err())
		case errors.Is(err, domain.ErrUnknownAssistant):
			return domain.Failed(domain.ReasonUnknownAssistant, err)
		default:
			return domain.Failed(domain.ReasonSubmitFailed, err)
		}
	}
	o.emit(ctx, r, domain.EventTypeRunSubmitted, domain.RunSubmittedPayload{
		ThreadID: r.state.ExternalThreadID,
		RunID:    handle.RunID,
		Status:   handle.Status,
	})

	outcome := o.poll(ctx, r, handle, cfg)
	if outcome.OK() {
		r.state.Messages = append(r.state.Messages, domain.NewMessage(domain.RoleAssistant, outcome.AssistantText, time.Now()))
	}
	return outcome
}

// poll checks the run at a fixed interval until it is terminal, the attempt
// budget is spent, the wall-clock budget elapses, or ctx is done.
func (o *Orchestrator) poll(ctx context.Context, r *run, handle domain.RunHandle, cfg domain.PollConfig) domain.TurnOutcome {
	pollCtx, cancel := context.WithDeadline(ctx, r.started.Add(cfg.MaxDuration))
	defer cancel()

	threadID := r.state.ExternalThreadID
	attempts := 0
	for {
		if pollCtx.Err() != nil {
			return o.interrupted(ctx, r, attempts)
		}

		current, err := o.client.PollRun(pollCtx, threadID, handle.RunID)
		if err != nil {
			if pollCtx.Err() != nil {
				return o.interrupted(ctx, r, attempts)
			}
			return domain.Failed(domain.ReasonPollFailed, err)
		}
		attempts++
		r.log.Debug().Str("run_id", handle.RunID).Str("status", string(current.Status)).Int("attempt", attempts).Msg("run polled")
		o.emit(ctx, r, domain.EventTypeRunStatus, domain.RunStatusPayload{
			RunID:   handle.RunID,
			Status:  current.Status,
			Attempt: attempts,
		})

		switch current.Status {
		case domain.RunStatusCompleted:
			out := o.fetch(ctx, r, threadID, handle.RunID)
			out.Attempts = attempts
			return out
		case domain.RunStatusFailed:
			return withAttempts(domain.Failed(domain.ReasonRunFailed, fmt.Errorf("%w: %s", domain.ErrRunFailed, current.LastError)), attempts)
		case domain.RunStatusTimedOut:
			return withAttempts(domain.Failed(domain.ReasonRunExpired, fmt.Errorf("%w: %s", domain.ErrRunFailed, current.LastError)), attempts)
		case domain.RunStatusQueued, domain.RunStatusInProgress:
		default:
			return withAttempts(domain.Failed(domain.ReasonMalformed, &domain.TransportError{
				Op:  "retrieve run",
				Err: fmt.Errorf("%w: status %q", domain.ErrMalformed, current.Status),
			}), attempts)
		}

		if attempts >= cfg.MaxAttempts {
			return domain.TimedOut(time.Since(r.started), attempts)
		}
		if err := sleep(pollCtx, cfg.Interval); err != nil {
			return o.interrupted(ctx, r, attempts)
		}
	}
}

// fetch reads the reply of a completed run. A reply that arrives after ctx is
// done is discarded.
func (o *Orchestrator) fetch(ctx context.Context, r *run, threadID, runID string) domain.TurnOutcome {
	text, ok, err := o.client.FetchResult(ctx, threadID, runID)
	if ctx.Err() != nil {
		return domain.Cancelled(time.Since(r.started), 0, ctx.Err())
	}
	if err != nil {
		return domain.Failed(domain.ReasonFetchFailed, err)
	}
	if !ok || text == "" {
		return domain.Failed(domain.ReasonMalformed, &domain.TransportError{
			Op:  "list messages",
			Err: fmt.Errorf("%w: run %s left no text reply", domain.ErrMalformed, runID),
		})
	}
	return domain.Success(text)
}

// interrupted resolves a done poll context: the caller cancelling wins over
// the wall-clock budget.
func (o *Orchestrator) interrupted(ctx context.Context, r *run, attempts int) domain.TurnOutcome {
	if err := ctx.Err(); err != nil {
		return domain.Cancelled(time.Since(r.started), attempts, err)
	}
	return domain.TimedOut(time.Since(r.started), attempts)
}

func (o *Orchestrator) finish(ctx context.Context, r *run, outcome domain.TurnOutcome) {
	elapsed := time.Since(r.started)
	payload := domain.TurnFinishedPayload{
		Kind:      outcome.Kind,
		Reason:    outcome.Reason,
		Attempts:  outcome.Attempts,
		ElapsedMs: elapsed.Milliseconds(),
	}
	if outcome.OK() {
		payload.MessageID = r.state.Messages[len(r.state.Messages)-1].ID
	}
	o.emit(ctx, r, domain.EventTypeTurnFinished, payload)

	var ev *zerolog.Event
	if outcome.Kind == domain.OutcomeFailed {
		ev = r.log.Error().Err(outcome.Cause).Str("reason", outcome.Reason)
	} else {
		ev = r.log.Info()
	}
	ev.Str("outcome", string(outcome.Kind)).
		Int("attempts", outcome.Attempts).
		Dur("elapsed", elapsed).
		Int("messages", len(r.state.Messages)).
		Msg("turn finished")
}

// emit forwards an event to the sink. Events outlive the caller's
// cancellation so that a cancelled turn is still traced.
func (o *Orchestrator) emit(ctx context.Context, r *run, eventType domain.EventType, payload any) {
	if o.sink == nil {
		return
	}
	o.sink.OnTurnEvent(context.WithoutCancel(ctx), domain.TurnEvent{
		ConversationID: r.state.ConversationID,
		TurnID:         r.id,
		Type:           eventType,
		At:             time.Now(),
		Payload:        payload,
	})
}

func withAttempts(out domain.TurnOutcome, attempts int) domain.TurnOutcome {
	out.Attempts = attempts
	return out
}

// sleep waits for d without blocking other goroutines; it returns early with
// ctx's error.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
