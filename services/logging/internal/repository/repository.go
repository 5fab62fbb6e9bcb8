package repository

import (
	"context"
	"time"
)

// AuditEntry представляет запись аудита о событии заказа
type AuditEntry struct {
	EventID          string
	EventType        string
	EventVersion     int
	OccurredAt       time.Time
	OrderID          string
	CustomerID       int64
	ProductID        int64
	Quantity         int32
	TotalAmountCents int64

	// Координаты сообщения в Kafka для трассировки
	Topic         string
	Partition     int
	MessageOffset int64
}

// AuditRepository определяет интерфейс для insert-only журнала аудита.
// Записи никогда не обновляются и не удаляются.
type AuditRepository interface {
	// InsertEntry вставляет запись аудита.
	// Возвращает inserted=false, если событие с таким event_id уже записано (duplicate)
	InsertEntry(ctx context.Context, entry AuditEntry) (inserted bool, err error)
}
