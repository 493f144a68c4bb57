package websocket

import (
	"context"
	"encoding/json"
	"strings"

	"support-chat/internal/realtime"
	"support-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

const presenceTopicSuffix = ":presence"

// RedisBridge fans events from the Redis pub/sub bus out to connected
// websocket clients. It pattern-subscribes to the whole channel namespace so
// every conversation, typing topic, and the admin feed flow through one
// subscription.
type RedisBridge struct {
	client *goredis.Client
	hub    *Hub
	log    *logger.Logger
}

func NewRedisBridge(client *goredis.Client, hub *Hub, log *logger.Logger) *RedisBridge {
	return &RedisBridge{client: client, hub: hub, log: log}
}

// presenceFrame is what websocket clients receive when any member of a typing
// topic updates its state. The full state set is sent, not a delta.
type presenceFrame struct {
	Type    string                   `json:"type"`
	Channel string                   `json:"channel"`
	States  []realtime.PresenceState `json:"states"`
}

func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, realtime.TopicPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return goredis.ErrClosed
			}
			b.dispatch(ctx, msg)
		}
	}
}

func (b *RedisBridge) dispatch(ctx context.Context, msg *goredis.Message) {
	name := strings.TrimPrefix(msg.Channel, realtime.TopicPrefix)
	if base, ok := strings.CutSuffix(name, presenceTopicSuffix); ok {
		b.broadcastPresence(ctx, base)
		return
	}
	b.hub.Broadcast(name, []byte(msg.Payload))
}

// broadcastPresence hydrates the presence hash and sends the full state set
// to every subscriber of the base channel. The pub/sub payload itself is only
// a sync notification.
func (b *RedisBridge) broadcastPresence(ctx context.Context, channel string) {
	if b.hub.SubscriberCount(channel) == 0 {
		return
	}
	entries, err := b.client.HGetAll(ctx, "presence:"+channel).Result()
	if err != nil {
		b.log.Warnf("presence hydrate for %s failed: %v", channel, err)
		return
	}
	states := make([]realtime.PresenceState, 0, len(entries))
	for _, raw := range entries {
		var st realtime.PresenceState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	frame, err := json.Marshal(presenceFrame{Type: "presence", Channel: channel, States: states})
	if err != nil {
		return
	}
	b.hub.Broadcast(channel, frame)
}
