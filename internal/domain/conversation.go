package domain

import "time"

// Profile is the display/authorization record for an authenticated user.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"is_admin"`
}

// Conversation is the admin-side projection of one visitor's message group.
// It is derived from the message stream and never persisted.
type Conversation struct {
	ActorID       string    `json:"actor_id"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_timestamp"`
	CreatedAt     time.Time `json:"created_at"`
	UnreadCount   int       `json:"unread_count"`
	Username      string    `json:"username,omitempty"`
}
