package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProcessedRepliesStore реализует service.ProcessedRepliesStore используя Redis.
// Ответы хранятся как строки с TTL, ключ строится из correlation id.
type ProcessedRepliesStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewProcessedRepliesStore создаёт новый Redis store для отправленных ответов
func NewProcessedRepliesStore(client *redis.Client, logger *zap.Logger) *ProcessedRepliesStore {
	return &ProcessedRepliesStore{
		client: client,
		logger: logger,
	}
}

func replyKey(correlationID string) string {
	return fmt.Sprintf("stock-check:reply:%s", correlationID)
}

// Put сохраняет сериализованный ответ под correlation id с указанным ttl
func (s *ProcessedRepliesStore) Put(ctx context.Context, correlationID string, reply []byte, ttl time.Duration) error {
	key := replyKey(correlationID)

	if err := s.client.Set(ctx, key, reply, ttl).Err(); err != nil {
		s.logger.Error("failed to cache stock-check reply in redis",
			zap.Error(err),
			zap.String("correlation_id", correlationID),
		)
		return fmt.Errorf("failed to cache reply: %w", err)
	}

	return nil
}

// Get возвращает сохранённый ответ, если он есть и ttl не истёк
func (s *ProcessedRepliesStore) Get(ctx context.Context, correlationID string) ([]byte, bool, error) {
	key := replyKey(correlationID)

	reply, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		s.logger.Error("failed to get cached stock-check reply from redis",
			zap.Error(err),
			zap.String("correlation_id", correlationID),
		)
		return nil, false, fmt.Errorf("failed to get cached reply: %w", err)
	}

	return reply, true, nil
}
