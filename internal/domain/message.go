package domain

import (
	"time"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// Status never regresses; a lower-or-equal target is a no-op, not an error.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.Valid() && statusRank[next] > statusRank[s]
}

// Message is the unit of conversation. Exactly one of SenderID and SessionID
// is set for visitor messages; admin messages carry IsAdmin plus a
// RecipientID naming the visitor-side conversation.
type Message struct {
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	SenderID    *string       `json:"sender_id"`
	SessionID   *string       `json:"session_id"`
	RecipientID *string       `json:"recipient_id"`
	IsAdmin     bool          `json:"is_admin"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Status      MessageStatus `json:"message_status"`
}

// ActorID returns the visitor-side actor id that keys this message's
// conversation: the recipient for admin replies, otherwise the sender's user
// id or anonymous session id.
func (m Message) ActorID() string {
	if m.IsAdmin {
		if m.RecipientID != nil {
			return *m.RecipientID
		}
		return ""
	}
	if m.SenderID != nil {
		return *m.SenderID
	}
	if m.SessionID != nil {
		return *m.SessionID
	}
	return ""
}

// FromVisitor reports whether the visitor authored this message.
func (m Message) FromVisitor() bool {
	return !m.IsAdmin
}

// TypingStaleAfter is the window after which a typing indicator is treated as
// stale regardless of its IsTyping flag, to tolerate missed stop broadcasts.
const TypingStaleAfter = 10 * time.Second

// TypingIndicator is ephemeral presence state. It is never persisted.
type TypingIndicator struct {
	ActorID   string    `json:"actor_id"`
	IsTyping  bool      `json:"is_typing"`
	LastTyped time.Time `json:"last_typed"`
}

// Active reports whether the indicator should still be shown at now.
func (t TypingIndicator) Active(now time.Time) bool {
	return t.IsTyping && now.Sub(t.LastTyped) <= TypingStaleAfter
}
