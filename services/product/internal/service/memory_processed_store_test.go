package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryProcessedRepliesStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProcessedRepliesStore()

	correlationID := "corr-1"
	reply := []byte(`{"productId":1,"inStock":true}`)
	ttl := 100 * time.Millisecond

	// Сначала ответа нет
	got, found, err := store.Get(ctx, correlationID)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)

	// Сохраняем ответ
	err = store.Put(ctx, correlationID, reply, ttl)
	assert.NoError(t, err)

	// Теперь ответ есть
	got, found, err = store.Get(ctx, correlationID)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, reply, got)
}

func TestMemoryProcessedRepliesStore_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProcessedRepliesStore()

	correlationID := "corr-1"
	ttl := 10 * time.Millisecond // очень короткий ttl для теста

	err := store.Put(ctx, correlationID, []byte("reply"), ttl)
	assert.NoError(t, err)

	// Сразу проверяем - ответ есть
	_, found, err := store.Get(ctx, correlationID)
	assert.NoError(t, err)
	assert.True(t, found)

	// Ждём истечения ttl
	time.Sleep(20 * time.Millisecond)

	// Теперь ответа нет (ttl истёк)
	_, found, err = store.Get(ctx, correlationID)
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryProcessedRepliesStore_DistinctCorrelationIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryProcessedRepliesStore()

	err := store.Put(ctx, "corr-1", []byte("reply-1"), time.Minute)
	assert.NoError(t, err)
	err = store.Put(ctx, "corr-2", []byte("reply-2"), time.Minute)
	assert.NoError(t, err)

	got, found, err := store.Get(ctx, "corr-1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("reply-1"), got)

	got, found, err = store.Get(ctx, "corr-2")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("reply-2"), got)

	_, found, err = store.Get(ctx, "corr-3")
	assert.NoError(t, err)
	assert.False(t, found)
}
