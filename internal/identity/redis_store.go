package identity

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// RedisSessionStore persists browser-context keys in Redis, one namespace per
// context. Values carry no TTL: the anonymous session id must survive across
// visits until authentication occurs.
type RedisSessionStore struct {
	client    *goredis.Client
	contextID string
}

func NewRedisSessionStore(client *goredis.Client, contextID string) *RedisSessionStore {
	return &RedisSessionStore{client: client, contextID: contextID}
}

func (s *RedisSessionStore) key(key string) string {
	return fmt.Sprintf("browser:%s:%s", s.contextID, key)
}

func (s *RedisSessionStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *RedisSessionStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, 0).Err()
}
