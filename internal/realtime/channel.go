package realtime

import (
	"context"
	"time"

	"support-chat/internal/domain"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// ChangeEvent is one message-table change delivered over a channel.
// Delivery is at-least-once; consumers must deduplicate by message id.
type ChangeEvent struct {
	Type    EventType      `json:"type"`
	Message domain.Message `json:"message"`
}

type SubscribeStatus string

const (
	StatusSubscribed   SubscribeStatus = "SUBSCRIBED"
	StatusChannelError SubscribeStatus = "CHANNEL_ERROR"
	StatusClosed       SubscribeStatus = "CLOSED"
)

// PresenceState is one actor's ephemeral tracked state on a channel.
type PresenceState struct {
	ActorID   string    `json:"actor_id"`
	IsTyping  bool      `json:"is_typing"`
	LastTyped time.Time `json:"last_typed"`
}

// Channel is one logical realtime channel: change events plus a presence
// facility. Handlers must be registered before Subscribe is called.
type Channel interface {
	Name() string
	OnChange(handler func(ChangeEvent))
	OnPresenceSync(handler func([]PresenceState))
	Track(ctx context.Context, state PresenceState) error
	// Subscribe blocks until ctx is cancelled, the channel is removed, or the
	// transport fails. The status callback reports lifecycle transitions.
	Subscribe(ctx context.Context, status func(SubscribeStatus)) error
}

// ChannelService creates and removes channels. It is constructed explicitly
// and injected, never reached through a package-level singleton, so tests can
// substitute a double.
type ChannelService interface {
	Channel(name string) Channel
	RemoveChannel(ctx context.Context, ch Channel) error
}

// EventPublisher is the write side used by the store gateway after inserts
// and status updates.
type EventPublisher interface {
	PublishChange(ctx context.Context, channel string, ev ChangeEvent) error
}

// FeedChannelName carries every message change for the admin console's
// conversation list, which derives the conversation set itself.
const FeedChannelName = "conversations"
