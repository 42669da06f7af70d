package service

import (
	"context"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// Assistants lists the profiles the identity may select.
func (s *Service) Assistants(ctx context.Context, identity domain.Identity) ([]domain.AssistantProfile, error) {
	out := make([]domain.AssistantProfile, 0, len(s.assistants))
	for _, p := range s.assistants {
		allowed, err := s.policyEngine.Allowed(ctx, identity, p)
		if err != nil {
			return nil, err
		}
		if allowed {
			out = append(out, p)
		}
	}
	return out, nil
}

// SelectAssistant validates a profile choice.
func (s *Service) SelectAssistant(ctx context.Context, identity domain.Identity, id string) (domain.AssistantProfile, error) {
	if id == "" {
		return domain.AssistantProfile{}, &domain.ConfigError{Field: "assistant_id", Err: domain.ErrNoAssistant}
	}
	p, ok := s.profile(id)
	if !ok {
		return domain.AssistantProfile{}, &domain.ConfigError{Field: "assistant_id", Err: domain.ErrUnknownAssistant}
	}
	allowed, err := s.policyEngine.Allowed(ctx, identity, p)
	if err != nil {
		return domain.AssistantProfile{}, err
	}
	if !allowed {
		return domain.AssistantProfile{}, domain.ErrForbidden
	}
	return p, nil
}

func (s *Service) profile(id string) (domain.AssistantProfile, bool) {
	for _, p := range s.assistants {
		if p.ID == id {
			return p, true
		}
	}
	return domain.AssistantProfile{}, false
}
