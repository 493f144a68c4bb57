package repository

import (
	"context"
	"errors"

	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const messageColumns = `id, content, sender_id, session_id, recipient_id, is_admin, message_status, created_at, updated_at`

type PostgresMessageRepository struct {
	db Querier
}

func NewMessageRepository(db Querier) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO messages (content, sender_id, session_id, recipient_id, is_admin, message_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		m.Content, m.SenderID, m.SessionID, m.RecipientID, m.IsAdmin, m.Status)
	if err := row.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if isPermissionDenied(err) {
			return &chat_errors.PermissionError{Cause: err}
		}
		return err
	}
	return nil
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id string) (domain.Message, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1`,
		id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, chat_errors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, err
	}
	return m, nil
}

// ListByScope fetches one conversation. The addressing disjunction lives
// here and nowhere else: a message belongs to the scope when the actor id is
// its sender, its anonymous session, or the recipient of an admin reply.
func (r *PostgresMessageRepository) ListByScope(ctx context.Context, scope domain.ConversationScope) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sender_id = $1 OR session_id = $1 OR (is_admin AND recipient_id = $1)
		ORDER BY created_at ASC`,
		scope.ActorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *PostgresMessageRepository) UpdateStatus(ctx context.Context, id string, status domain.MessageStatus) (domain.Message, bool, error) {
	if !status.Valid() {
		return domain.Message{}, false, chat_errors.ErrInvalidTransition
	}
	row := r.db.QueryRow(ctx, `
		UPDATE messages
		SET message_status = $2, updated_at = now()
		WHERE id = $1
		  AND CASE message_status WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 END
		    < CASE $2::text WHEN 'sent' THEN 0 WHEN 'delivered' THEN 1 WHEN 'read' THEN 2 END
		RETURNING `+messageColumns,
		id, status)

	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the message is unknown or the transition would not move
		// forward; both are no-ops by contract.
		return domain.Message{}, false, nil
	}
	if err != nil {
		if isPermissionDenied(err) {
			return domain.Message{}, false, &chat_errors.PermissionError{Cause: err}
		}
		return domain.Message{}, false, err
	}
	return m, true, nil
}

// ListConversationHeads returns each conversation's newest message, ordered
// by recency. The visitor-side actor id is derived the same way
// domain.Message.ActorID derives it.
func (r *PostgresMessageRepository) ListConversationHeads(ctx context.Context, limit, offset int) ([]domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT DISTINCT ON (actor_id) `+messageColumns+`
			FROM (
				SELECT *, CASE WHEN is_admin THEN recipient_id ELSE COALESCE(sender_id, session_id) END AS actor_id
				FROM messages
			) grouped
			WHERE actor_id IS NOT NULL
			ORDER BY actor_id, created_at DESC
		) heads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *PostgresMessageRepository) CountConversations(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT CASE WHEN is_admin THEN recipient_id ELSE COALESCE(sender_id, session_id) END)
		FROM messages`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountUnread counts visitor-authored messages in one conversation that have
// not reached read status.
func (r *PostgresMessageRepository) CountUnread(ctx context.Context, actorID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages
		WHERE NOT is_admin
		  AND COALESCE(sender_id, session_id) = $1
		  AND message_status <> 'read'`,
		actorID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.Content, &m.SenderID, &m.SessionID, &m.RecipientID,
		&m.IsAdmin, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}
