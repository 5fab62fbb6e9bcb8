package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository"
)

// Repository реализует OrderRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// Save сохраняет заказ в PostgreSQL
// Save идемпотентен по ID: повторное сохранение обновляет запись
func (r *Repository) Save(ctx context.Context, order repository.Order) error {
	var err error
	if order.CreatedAt > 0 {
		createdAt := time.Unix(order.CreatedAt, 0)
		_, err = r.pool.Exec(ctx,
			`INSERT INTO orders (id, customer_id, product_id, quantity, total_amount_cents, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   customer_id = EXCLUDED.customer_id,
			   product_id = EXCLUDED.product_id,
			   quantity = EXCLUDED.quantity,
			   total_amount_cents = EXCLUDED.total_amount_cents,
			   created_at = EXCLUDED.created_at`,
			order.ID, order.CustomerID, order.ProductID, order.Quantity, order.TotalAmountCents, createdAt)
	} else {
		// Используем DEFAULT now() из БД
		_, err = r.pool.Exec(ctx,
			`INSERT INTO orders (id, customer_id, product_id, quantity, total_amount_cents)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
			   customer_id = EXCLUDED.customer_id,
			   product_id = EXCLUDED.product_id,
			   quantity = EXCLUDED.quantity,
			   total_amount_cents = EXCLUDED.total_amount_cents`,
			order.ID, order.CustomerID, order.ProductID, order.Quantity, order.TotalAmountCents)
	}
	return err
}

// GetByID получает заказ по ID из PostgreSQL
func (r *Repository) GetByID(ctx context.Context, id string) (repository.Order, error) {
	var order repository.Order
	var createdAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, product_id, quantity, total_amount_cents, created_at
		 FROM orders
		 WHERE id = $1`,
		id).Scan(&order.ID, &order.CustomerID, &order.ProductID, &order.Quantity, &order.TotalAmountCents, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Order{}, repository.ErrNotFound
		}
		return repository.Order{}, err
	}

	order.CreatedAt = createdAt.Unix()
	return order, nil
}

// List возвращает все заказы, новые первыми
func (r *Repository) List(ctx context.Context) ([]repository.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, customer_id, product_id, quantity, total_amount_cents, created_at
		 FROM orders
		 ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]repository.Order, 0)
	for rows.Next() {
		var order repository.Order
		var createdAt time.Time
		if err := rows.Scan(&order.ID, &order.CustomerID, &order.ProductID, &order.Quantity, &order.TotalAmountCents, &createdAt); err != nil {
			return nil, err
		}
		order.CreatedAt = createdAt.Unix()
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
