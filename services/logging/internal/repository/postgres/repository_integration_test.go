//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций

	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/repository"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер через testcontainers
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("audit"),
		postgres.WithUsername("logging_user"),
		postgres.WithPassword("logging_password"),
	)
	require.NoError(t, err)
	defer func() {
		err := postgresContainer.Terminate(ctx)
		require.NoError(t, err)
	}()

	dsn, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// Ждём готовности БД через ping с retry
	var pingErr error
	for i := 0; i < 10; i++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	// Вычисляем путь к migrations относительно текущего файла
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")

	testDir := filepath.Dir(filename)
	repoDir := filepath.Dir(testDir)
	internalDir := filepath.Dir(repoDir)
	serviceDir := filepath.Dir(internalDir)
	migrationsDir := filepath.Join(serviceDir, "migrations")

	err = goose.UpContext(ctx, db, migrationsDir)
	require.NoError(t, err, "Failed to run migrations")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)

	entry := repository.AuditEntry{
		EventID:          "event-1",
		EventType:        "order.created",
		EventVersion:     1,
		OccurredAt:       time.Now().UTC().Truncate(time.Second),
		OrderID:          "order-1",
		CustomerID:       42,
		ProductID:        1,
		Quantity:         3,
		TotalAmountCents: 14997,
		Topic:            "order.created",
		Partition:        0,
		MessageOffset:    7,
	}

	t.Run("InsertEntry", func(t *testing.T) {
		inserted, err := repo.InsertEntry(ctx, entry)
		require.NoError(t, err)
		require.True(t, inserted)
	})

	t.Run("Duplicate event_id is not inserted twice", func(t *testing.T) {
		// at-least-once доставка: то же событие с другими координатами
		dup := entry
		dup.MessageOffset = 8

		inserted, err := repo.InsertEntry(ctx, dup)
		require.NoError(t, err)
		require.False(t, inserted)

		var count int
		err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_audit_log WHERE event_id = $1`, entry.EventID).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})

	t.Run("Different event_id inserts a new row", func(t *testing.T) {
		second := entry
		second.EventID = "event-2"
		second.OrderID = "order-2"

		inserted, err := repo.InsertEntry(ctx, second)
		require.NoError(t, err)
		require.True(t, inserted)
	})
}
