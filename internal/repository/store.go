// Package repository persists conversations and their turn trace.
package repository

import (
	"context"

	"github.com/JollyOmnivore/Athena-AI/internal/domain"
)

// Store defines the interface for conversation persistence.
type Store interface {
	// Conversation operations
	Load(ctx context.Context, conversationID string) (*domain.ConversationState, *domain.ConversationMeta, error)
	Persist(ctx context.Context, state domain.ConversationState, meta domain.ConversationMeta) error
	ListConversations(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) (bool, error)

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, conversationID string, afterTs int64, limit int) ([]domain.Event, error)

	// Lifecycle
	Close() error
}
