package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"support-chat/internal/domain"
	chat_errors "support-chat/pkg/errors"
	"support-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// TopicPrefix namespaces channel traffic on the Redis pub/sub bus. Consumers
// that tap the bus directly (the websocket bridge) strip it to recover the
// channel name.
const TopicPrefix = "channel:"

const (
	channelPrefix  = TopicPrefix
	presenceSuffix = ":presence"
	presenceKeyTTL = 2 * domain.TypingStaleAfter
)

// RedisChannelService implements ChannelService and EventPublisher over Redis
// pub/sub. Presence state lives in a hash per channel; a sync notification is
// published whenever any member tracks new state.
type RedisChannelService struct {
	client *goredis.Client
	log    *logger.Logger
}

func NewRedisChannelService(client *goredis.Client, log *logger.Logger) *RedisChannelService {
	return &RedisChannelService{client: client, log: log}
}

func (s *RedisChannelService) Channel(name string) Channel {
	return &redisChannel{svc: s, name: name}
}

func (s *RedisChannelService) RemoveChannel(ctx context.Context, ch Channel) error {
	rc, ok := ch.(*redisChannel)
	if !ok {
		return nil
	}
	rc.remove()
	return nil
}

func (s *RedisChannelService) PublishChange(ctx context.Context, channel string, ev ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channelPrefix+channel, payload).Err()
}

type redisChannel struct {
	svc  *RedisChannelService
	name string

	mu               sync.Mutex
	changeHandlers   []func(ChangeEvent)
	presenceHandlers []func([]PresenceState)
	pubsub           *goredis.PubSub
	removed          bool
}

func (c *redisChannel) Name() string { return c.name }

func (c *redisChannel) OnChange(handler func(ChangeEvent)) {
	c.mu.Lock()
	c.changeHandlers = append(c.changeHandlers, handler)
	c.mu.Unlock()
}

func (c *redisChannel) OnPresenceSync(handler func([]PresenceState)) {
	c.mu.Lock()
	c.presenceHandlers = append(c.presenceHandlers, handler)
	c.mu.Unlock()
}

func (c *redisChannel) Track(ctx context.Context, state PresenceState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	key := presenceKey(c.name)
	pipe := c.svc.client.Pipeline()
	pipe.HSet(ctx, key, state.ActorID, payload)
	pipe.Expire(ctx, key, presenceKeyTTL)
	pipe.Publish(ctx, channelPrefix+c.name+presenceSuffix, "sync")
	_, err = pipe.Exec(ctx)
	return err
}

func (c *redisChannel) Subscribe(ctx context.Context, status func(SubscribeStatus)) error {
	notify := func(st SubscribeStatus) {
		if status != nil {
			status(st)
		}
	}

	sub := c.svc.client.Subscribe(ctx, channelPrefix+c.name, channelPrefix+c.name+presenceSuffix)

	c.mu.Lock()
	if c.removed {
		c.mu.Unlock()
		_ = sub.Close()
		notify(StatusClosed)
		return nil
	}
	c.pubsub = sub
	c.mu.Unlock()

	// Wait for the subscription confirmation before reporting connected.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		notify(StatusChannelError)
		return &chat_errors.ConnectionError{Channel: c.name, Cause: err}
	}
	notify(StatusSubscribed)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = sub.Close()
			notify(StatusClosed)
			return nil
		case msg, ok := <-ch:
			if !ok {
				if c.wasRemoved() {
					notify(StatusClosed)
					return nil
				}
				notify(StatusChannelError)
				return &chat_errors.ConnectionError{Channel: c.name, Cause: goredis.ErrClosed}
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *redisChannel) handle(ctx context.Context, msg *goredis.Message) {
	if msg.Channel == channelPrefix+c.name+presenceSuffix {
		c.syncPresence(ctx)
		return
	}
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		c.svc.log.Warnf("channel %s: dropping undecodable event: %v", c.name, err)
		return
	}
	c.mu.Lock()
	handlers := append(([]func(ChangeEvent))(nil), c.changeHandlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

func (c *redisChannel) syncPresence(ctx context.Context) {
	entries, err := c.svc.client.HGetAll(ctx, presenceKey(c.name)).Result()
	if err != nil {
		c.svc.log.Warnf("channel %s: presence sync failed: %v", c.name, err)
		return
	}
	states := make([]PresenceState, 0, len(entries))
	for _, raw := range entries {
		var st PresenceState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		states = append(states, st)
	}
	c.mu.Lock()
	handlers := append(([]func([]PresenceState))(nil), c.presenceHandlers...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(states)
	}
}

func (c *redisChannel) remove() {
	c.mu.Lock()
	c.removed = true
	sub := c.pubsub
	c.mu.Unlock()
	if sub != nil {
		_ = sub.Close()
	}
}

func (c *redisChannel) wasRemoved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

func presenceKey(name string) string {
	return "presence:" + name
}

var _ interface {
	ChannelService
	EventPublisher
} = (*RedisChannelService)(nil)
