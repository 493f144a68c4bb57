package websocket

import (
	"strings"

	"support-chat/internal/domain"
	"support-chat/internal/realtime"
)

const (
	conversationChannelPrefix = "conversation:"
	typingChannelPrefix       = "typing:"
)

// ChannelAuthorizer decides which channels a connection may subscribe to.
// Admins see every conversation plus the feed; a visitor sees only the
// channels of its own conversation.
type ChannelAuthorizer struct{}

func NewChannelAuthorizer() *ChannelAuthorizer {
	return &ChannelAuthorizer{}
}

func (a *ChannelAuthorizer) CanSubscribe(id domain.Identity, isAdmin bool, channel string) bool {
	if isAdmin {
		return channel == realtime.FeedChannelName ||
			strings.HasPrefix(channel, conversationChannelPrefix) ||
			strings.HasPrefix(channel, typingChannelPrefix)
	}

	actorID := id.ActorID()
	if actorID == "" {
		return false
	}
	switch channel {
	case conversationChannelPrefix + actorID, typingChannelPrefix + actorID:
		return true
	}
	return false
}
