package service

import (
	"context"
	"time"
)

// ProcessedRepliesStore хранит уже отправленные ответы по correlation id.
// Нужен для redelivery: если responder упал после публикации ответа, но до ack,
// брокер доставит запрос повторно, и ответ берётся из кеша без повторного
// списания остатка.
type ProcessedRepliesStore interface {
	// Put сохраняет сериализованный ответ под correlation id с указанным ttl.
	Put(ctx context.Context, correlationID string, reply []byte, ttl time.Duration) error

	// Get возвращает сохранённый ответ и true, если он есть и ttl не истёк.
	Get(ctx context.Context, correlationID string) ([]byte, bool, error)
}
