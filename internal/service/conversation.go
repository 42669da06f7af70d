package service

import (
	"context"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// GetConversation returns a persisted conversation owned by the identity.
func (s *Service) GetConversation(ctx context.Context, identity domain.Identity, conversationID string) (*domain.ConversationResponse, error) {
	state, meta, err := s.owned(ctx, identity, conversationID)
	if err != nil {
		return nil, err
	}
	return &domain.ConversationResponse{
		ConversationID: state.ConversationID,
		Title:          meta.Title,
		Path:           meta.Path,
		Messages:       state.Messages,
	}, nil
}

// ListConversations returns the identity's conversations, newest first.
func (s *Service) ListConversations(ctx context.Context, identity domain.Identity, limit int) ([]domain.ConversationSummary, error) {
	if !identity.Verified {
		return []domain.ConversationSummary{}, nil
	}
	list, err := s.store.ListConversations(ctx, identity.UserID(), limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.ConversationSummary{}
	}
	return list, nil
}

// DeleteConversation removes a conversation owned by the identity. A running
// turn is cancelled first.
func (s *Service) DeleteConversation(ctx context.Context, identity domain.Identity, conversationID string) error {
	if _, _, err := s.owned(ctx, identity, conversationID); err != nil {
		return err
	}
	s.CancelTurn(conversationID)
	deleted, err := s.store.DeleteConversation(ctx, conversationID, identity.UserID())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	return nil
}

// GetEvents returns the turn trace of a conversation. Trace of a persisted
// conversation is only visible to its owner.
func (s *Service) GetEvents(ctx context.Context, identity domain.Identity, conversationID string, afterTs int64, limit int) ([]domain.Event, error) {
	_, meta, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if meta != nil && meta.UserID != identity.UserID() {
		return nil, domain.ErrForbidden
	}
	events, err := s.store.GetEvents(ctx, conversationID, afterTs, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

// CanWatch reports whether the identity may subscribe to a conversation.
func (s *Service) CanWatch(ctx context.Context, identity domain.Identity, conversationID string) error {
	_, meta, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	if meta != nil && meta.UserID != identity.UserID() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Service) owned(ctx context.Context, identity domain.Identity, conversationID string) (*domain.ConversationState, *domain.ConversationMeta, error) {
	if !identity.Verified {
		return nil, nil, domain.ErrForbidden
	}
	state, meta, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if state == nil {
		return nil, nil, domain.ErrNotFound
	}
	if meta.UserID != identity.UserID() {
		return nil, nil, domain.ErrForbidden
	}
	return state, meta, nil
}
