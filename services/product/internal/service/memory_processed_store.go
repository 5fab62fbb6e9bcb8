package service

import (
	"context"
	"sync"
	"time"
)

type cachedReply struct {
	reply     []byte
	expiresAt time.Time
}

// MemoryProcessedRepliesStore реализует ProcessedRepliesStore используя in-memory map
// Используется для dev/test окружений. В production используется Redis.
type MemoryProcessedRepliesStore struct {
	mu      sync.Mutex
	replies map[string]cachedReply // correlationID -> ответ с временем истечения
}

// NewMemoryProcessedRepliesStore создаёт новый in-memory store
func NewMemoryProcessedRepliesStore() *MemoryProcessedRepliesStore {
	return &MemoryProcessedRepliesStore{
		replies: make(map[string]cachedReply),
	}
}

// Put сохраняет ответ под correlation id с указанным ttl
func (s *MemoryProcessedRepliesStore) Put(ctx context.Context, correlationID string, reply []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ленивая очистка протухших записей
	s.cleanupExpiredLocked()

	s.replies[correlationID] = cachedReply{
		reply:     reply,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Get возвращает сохранённый ответ, если он есть и ttl не истёк
func (s *MemoryProcessedRepliesStore) Get(ctx context.Context, correlationID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, exists := s.replies[correlationID]
	if !exists {
		return nil, false, nil
	}

	if time.Now().After(cached.expiresAt) {
		delete(s.replies, correlationID)
		return nil, false, nil
	}

	return cached.reply, true, nil
}

// cleanupExpiredLocked удаляет протухшие записи (вызывается с уже захваченным lock)
func (s *MemoryProcessedRepliesStore) cleanupExpiredLocked() {
	now := time.Now()
	for correlationID, cached := range s.replies {
		if now.After(cached.expiresAt) {
			delete(s.replies, correlationID)
		}
	}
}
