package repository

import (
	"context"

	"support-chat/internal/domain"
)

type MessageRepository interface {
	// Insert stores the message and fills in the server-assigned id and
	// timestamps.
	Insert(ctx context.Context, m *domain.Message) error
	// GetByID returns one message, or ErrNotFound.
	GetByID(ctx context.Context, id string) (domain.Message, error)
	// ListByScope returns one conversation's messages ascending by
	// created_at.
	ListByScope(ctx context.Context, scope domain.ConversationScope) ([]domain.Message, error)
	// UpdateStatus applies a forward status transition and returns the
	// updated message. applied is false when the transition was a no-op.
	UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) (domain.Message, bool, error)
	ListConversationHeads(ctx context.Context, limit, offset int) ([]domain.Message, error)
	CountConversations(ctx context.Context) (int, error)
	CountUnread(ctx context.Context, actorID string) (int, error)
}

type ProfileRepository interface {
	Create(ctx context.Context, p *domain.Profile, passwordHash string) error
	GetByID(ctx context.Context, id string) (domain.Profile, error)
	GetByEmail(ctx context.Context, email string) (domain.Profile, string, error)
}
