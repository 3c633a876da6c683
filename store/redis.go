package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisDocumentKey = "parley:config_document"

// RedisStore persists the config document under a single redis key. Useful
// when several clients share one config source.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: client}
}

func (s *RedisStore) CheckConnection(ctx context.Context) error {
	_, err := s.client.Ping(ctx).Result()
	return err
}

func (s *RedisStore) LoadDocument(ctx context.Context) ([]byte, error) {
	doc, err := s.client.Get(ctx, redisDocumentKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoDocument
		}
		return nil, fmt.Errorf("failed to load config document from redis: %w", err)
	}
	return doc, nil
}

func (s *RedisStore) SaveDocument(ctx context.Context, doc []byte) error {
	if err := s.client.Set(ctx, redisDocumentKey, doc, 0).Err(); err != nil {
		return fmt.Errorf("failed to save config document to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ DocumentStore = (*RedisStore)(nil)
