package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/repository"
)

// Repository реализует AuditRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// InsertEntry вставляет запись аудита.
// Дубликаты определяются по unique constraint на event_id:
// at-least-once доставка из Kafka может принести одно событие дважды
func (r *Repository) InsertEntry(ctx context.Context, entry repository.AuditEntry) (bool, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO order_audit_log
		   (event_id, event_type, event_version, occurred_at, order_id,
		    customer_id, product_id, quantity, total_amount_cents,
		    topic, partition, message_offset)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.EventID, entry.EventType, entry.EventVersion, entry.OccurredAt, entry.OrderID,
		entry.CustomerID, entry.ProductID, entry.Quantity, entry.TotalAmountCents,
		entry.Topic, entry.Partition, entry.MessageOffset)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return false, nil
		}
		return false, err
	}

	return true, nil
}
