package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// OnTurnEvent records a turn event and forwards it to stream subscribers.
func (s *Service) OnTurnEvent(ctx context.Context, e domain.TurnEvent) {
	event, err := s.recordEvent(ctx, e)
	if err != nil {
		s.logger.Error().Err(err).Str("conversation_id", e.ConversationID).Str("type", string(e.Type)).Msg("failed to record event")
		if event == nil {
			return
		}
	}
	s.publish(e.ConversationID, event)
}

// recordEvent records an event to the store. The event is returned even when
// the store rejects it.
func (s *Service) recordEvent(ctx context.Context, e domain.TurnEvent) (*domain.Event, error) {
	payloadBytes, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:        "evt_" + uuid.New().String()[:8],
		ConversationID: e.ConversationID,
		TurnID:         e.TurnID,
		Ts:             e.At.UnixMilli(),
		Type:           e.Type,
		Payload:        payloadBytes,
	}
	return event, s.store.CreateEvent(ctx, event)
}

func (s *Service) publish(conversationID string, v any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(conversationID, v); err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to publish")
	}
}
