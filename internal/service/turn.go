package service

import (
	"context"
	"time"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
	"github.com/JollyOmnivore/Athena-AI/internal/render"
	"github.com/JollyOmnivore/Athena-AI/internal/turn"
)

// TurnInput is one user message addressed to a conversation.
type TurnInput struct {
	// ConversationID may be empty to start a new conversation.
	ConversationID string
	Identity       domain.Identity
	Text           string
	// ProfileID is the selected assistant. It is never defaulted.
	ProfileID string
}

// TurnResult is a finished turn.
type TurnResult struct {
	TurnID  string
	State   domain.ConversationState
	Outcome domain.TurnOutcome
	View    domain.OutcomeView
}

type pendingTurn struct {
	id    string
	in    TurnInput
	state domain.ConversationState
	// meta is nil for a conversation that has never been persisted.
	meta *domain.ConversationMeta
	// fresh marks a conversation id generated for this turn.
	fresh bool
}

// SubmitTurn runs a turn to completion on the caller's context. Outcomes,
// failures included, are reported in the result; the error is reserved for
// requests that cannot start a turn at all.
func (s *Service) SubmitTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	p := newPendingTurn(in)

	runCtx, release, ok := s.reserve(ctx, p)
	if !ok {
		if err := s.load(ctx, p); err != nil {
			return nil, err
		}
		return s.result(p, p.state, domain.Busy()), nil
	}
	defer release()

	if err := s.load(ctx, p); err != nil {
		return nil, err
	}
	return s.execute(runCtx, p), nil
}

// StartTurn runs a turn in the background and returns at once. The turn is
// detached from ctx; use CancelTurn to stop it. Progress and the final result
// are delivered through the event trace and the stream.
func (s *Service) StartTurn(ctx context.Context, in TurnInput) (*domain.TurnAcceptedResponse, error) {
	if s.baseCtx.Err() != nil {
		return nil, domain.ErrClosed
	}
	p := newPendingTurn(in)

	runCtx, release, ok := s.reserve(s.baseCtx, p)
	if !ok {
		if err := s.load(ctx, p); err != nil {
			return nil, err
		}
		return nil, domain.ErrBusy
	}
	if err := s.load(ctx, p); err != nil {
		release()
		return nil, err
	}
	s.bg.Go(func() {
		defer release()
		s.execute(runCtx, p)
	})

	return &domain.TurnAcceptedResponse{
		ConversationID: p.state.ConversationID,
		TurnID:         p.id,
	}, nil
}

// CancelTurn stops the in-flight turn of a conversation. It reports whether a
// turn was running.
func (s *Service) CancelTurn(conversationID string) bool {
	s.mu.Lock()
	t, ok := s.running[conversationID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	s.logger.Info().Str("conversation_id", conversationID).Str("turn_id", t.id).Msg("turn cancel requested")
	return true
}

// TurnInFlight reports whether a conversation has a running turn.
func (s *Service) TurnInFlight(conversationID string) bool {
	return s.guard.Active(conversationID)
}

// newPendingTurn fixes the conversation id the turn claims. An empty id
// starts a new conversation.
func newPendingTurn(in TurnInput) *pendingTurn {
	p := &pendingTurn{id: turn.NewTurnID(), in: in}
	if in.ConversationID == "" {
		p.state = domain.NewConversationState()
		p.fresh = true
	} else {
		p.state = domain.ConversationState{ConversationID: in.ConversationID, Messages: []domain.Message{}}
	}
	return p
}

// load reads the stored conversation the turn applies to. Called while the
// conversation is reserved, it sees every message of the previous turn.
func (s *Service) load(ctx context.Context, p *pendingTurn) error {
	if p.fresh {
		return nil
	}
	state, meta, err := s.store.Load(ctx, p.state.ConversationID)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	if meta.UserID != p.in.Identity.UserID() {
		return domain.ErrForbidden
	}
	p.state = *state
	p.meta = meta
	return nil
}

// reserve claims the conversation on the shared guard and derives the
// cancellable context the turn runs on. The orchestrator sees the claim
// through the context lease.
func (s *Service) reserve(parent context.Context, p *pendingTurn) (context.Context, func(), bool) {
	conversationID := p.state.ConversationID

	unlock, ok := s.guard.TryAcquire(conversationID)
	if !ok {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(turn.ContextWithTurnID(parent, p.id))
	ctx = turn.ContextWithLease(ctx, s.guard, conversationID)

	s.mu.Lock()
	s.running[conversationID] = &activeTurn{id: p.id, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		cancel()
		s.mu.Lock()
		delete(s.running, conversationID)
		s.mu.Unlock()
		unlock()
	}, true
}

func (s *Service) execute(ctx context.Context, p *pendingTurn) *TurnResult {
	if outcome, denied := s.checkProfile(ctx, p.in); denied {
		res := s.result(p, p.state, outcome)
		s.notify(res)
		return res
	}

	state, outcome := s.orchestrator.SubmitTurn(ctx, p.state, p.in.Text, p.in.ProfileID, s.poll)
	if outcome.Kind != domain.OutcomeBusy {
		s.persist(context.WithoutCancel(ctx), p, state)
	}

	res := s.result(p, state, outcome)
	s.notify(res)
	return res
}

// checkProfile rejects a selected profile that is not configured or not
// permitted. An empty profile is left to the orchestrator.
func (s *Service) checkProfile(ctx context.Context, in TurnInput) (domain.TurnOutcome, bool) {
	if in.ProfileID == "" {
		return domain.TurnOutcome{}, false
	}
	profile, ok := s.profile(in.ProfileID)
	if !ok {
		return domain.Failed(domain.ReasonUnknownAssistant, &domain.ConfigError{Field: "assistant_id", Err: domain.ErrUnknownAssistant}), true
	}
	allowed, err := s.policyEngine.Allowed(ctx, in.Identity, profile)
	if err != nil {
		s.logger.Error().Err(err).Str("profile_id", profile.ID).Msg("policy evaluation failed")
		return domain.Failed(domain.ReasonNotPermitted, err), true
	}
	if !allowed {
		return domain.Failed(domain.ReasonNotPermitted, domain.ErrForbidden), true
	}
	return domain.TurnOutcome{}, false
}

// persist stores the conversation for verified callers. Failures are logged;
// the turn outcome stands.
func (s *Service) persist(ctx context.Context, p *pendingTurn, state domain.ConversationState) {
	if !p.in.Identity.Verified || len(state.Messages) == 0 {
		return
	}
	meta := domain.ConversationMeta{UserID: p.in.Identity.UserID(), UpdatedAt: time.Now().UTC()}
	if p.meta != nil {
		meta.CreatedAt = p.meta.CreatedAt
		meta.Title = p.meta.Title
		meta.Path = p.meta.Path
	}
	if err := s.store.Persist(ctx, state, meta); err != nil {
		s.logger.Error().Err(err).Str("conversation_id", state.ConversationID).Msg("failed to persist conversation")
	}
}

func (s *Service) result(p *pendingTurn, state domain.ConversationState, outcome domain.TurnOutcome) *TurnResult {
	return &TurnResult{
		TurnID:  p.id,
		State:   state,
		Outcome: outcome,
		View:    render.Render(outcome),
	}
}

// notify pushes the finished turn to stream subscribers.
func (s *Service) notify(res *TurnResult) {
	notice := domain.TurnFinishedNotice{
		Type:           "turn_result",
		ConversationID: res.State.ConversationID,
		TurnID:         res.TurnID,
		Outcome:        res.Outcome,
		View:           res.View,
	}
	if res.Outcome.OK() {
		last := res.State.Messages[len(res.State.Messages)-1]
		notice.Message = &last
	}
	s.publish(res.State.ConversationID, notice)
}
