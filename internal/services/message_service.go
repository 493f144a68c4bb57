package services

import (
	"context"
	"strings"

	"support-chat/internal/domain"
	"support-chat/internal/realtime"
	"support-chat/internal/repository"
	chat_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"
	"support-chat/pkg/metrics"
)

// MessageGateway is the typed wrapper over the message store. All
// conversation addressing goes through here; views and the admin console
// never touch the store directly, so scope filtering and dedup invariants
// stay centralized.
type MessageGateway struct {
	repo      repository.MessageRepository
	publisher realtime.EventPublisher
	log       *logger.Logger
}

func NewMessageGateway(repo repository.MessageRepository, publisher realtime.EventPublisher, log *logger.Logger) *MessageGateway {
	return &MessageGateway{repo: repo, publisher: publisher, log: log}
}

// FetchConversation loads one conversation ascending by created_at. A
// transport or query failure is a FetchError; callers must surface it and
// never show an empty conversation instead.
func (g *MessageGateway) FetchConversation(ctx context.Context, scope domain.ConversationScope) ([]domain.Message, error) {
	messages, err := g.repo.ListByScope(ctx, scope)
	if err != nil {
		return nil, &chat_errors.FetchError{Cause: err}
	}
	return messages, nil
}

// SendMessage inserts a visitor message. Blank content is rejected before
// any network call. On failure nothing is mutated locally; the caller rolls
// back its optimistic entry.
func (g *MessageGateway) SendMessage(ctx context.Context, id domain.Identity, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, chat_errors.ErrEmptyContent
	}

	m := domain.Message{
		Content: content,
		Status:  domain.StatusSent,
	}
	switch id.Kind {
	case domain.IdentityAuthenticated:
		userID := id.UserID
		m.SenderID = &userID
	case domain.IdentityAnonymous:
		sessionID := id.SessionID
		m.SessionID = &sessionID
	default:
		return domain.Message{}, chat_errors.ErrInvalidInput
	}

	if err := g.insert(ctx, &m); err != nil {
		return domain.Message{}, err
	}
	metrics.MessagesTotal.WithLabelValues("visitor").Inc()
	g.publish(ctx, realtime.EventInsert, m)
	return m, nil
}

// SendReply inserts an admin reply addressed to the visitor-side actor id.
func (g *MessageGateway) SendReply(ctx context.Context, adminUserID, recipientActorID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, chat_errors.ErrEmptyContent
	}
	if recipientActorID == "" {
		return domain.Message{}, chat_errors.ErrInvalidInput
	}

	m := domain.Message{
		Content:     content,
		SenderID:    &adminUserID,
		RecipientID: &recipientActorID,
		IsAdmin:     true,
		Status:      domain.StatusSent,
	}
	if err := g.insert(ctx, &m); err != nil {
		return domain.Message{}, err
	}
	metrics.MessagesTotal.WithLabelValues("admin").Inc()
	g.publish(ctx, realtime.EventInsert, m)
	return m, nil
}

// AuthorizeStatusUpdate checks that the caller may advance a message's
// status before the update is queued. Admins may advance any message; a
// visitor only messages inside their own conversation. No table-level policy
// backs this up, so every status entry point must pass through here.
func (g *MessageGateway) AuthorizeStatusUpdate(ctx context.Context, id domain.Identity, isAdmin bool, messageID string) error {
	if isAdmin {
		return nil
	}
	m, err := g.repo.GetByID(ctx, messageID)
	if err != nil {
		return &chat_errors.StatusError{MessageID: messageID, Cause: err}
	}
	if !id.Scope().Matches(m) {
		return &chat_errors.PermissionError{Cause: chat_errors.ErrForbidden}
	}
	return nil
}

// UpdateStatus moves a message's status forward. A lower-or-equal target is
// a no-op. Satisfies status.Updater.
func (g *MessageGateway) UpdateStatus(ctx context.Context, messageID string, st domain.MessageStatus) error {
	updated, applied, err := g.repo.UpdateStatus(ctx, messageID, st)
	if err != nil {
		if chat_errors.IsPermission(err) {
			return err
		}
		return &chat_errors.StatusError{MessageID: messageID, Cause: err}
	}
	if applied {
		g.publish(ctx, realtime.EventUpdate, updated)
	}
	return nil
}

func (g *MessageGateway) insert(ctx context.Context, m *domain.Message) error {
	if err := g.repo.Insert(ctx, m); err != nil {
		if chat_errors.IsPermission(err) {
			return err
		}
		return &chat_errors.SendError{Cause: err}
	}
	return nil
}

// publish fans the change out to the conversation's channel and the admin
// feed. The store is the source of truth; a publish failure is logged, not
// returned.
func (g *MessageGateway) publish(ctx context.Context, evType realtime.EventType, m domain.Message) {
	if g.publisher == nil {
		return
	}
	ev := realtime.ChangeEvent{Type: evType, Message: m}
	scope := domain.ScopeForActor(m.ActorID())
	if err := g.publisher.PublishChange(ctx, scope.Key(), ev); err != nil {
		g.log.Warnf("publish %s to %s failed: %v", evType, scope.Key(), err)
	}
	if err := g.publisher.PublishChange(ctx, realtime.FeedChannelName, ev); err != nil {
		g.log.Warnf("publish %s to feed failed: %v", evType, err)
	}
}
