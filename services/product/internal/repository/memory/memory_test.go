package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/repository"
)

func newTestRepository() *MemoryRepository {
	return NewMemoryRepository([]repository.Product{
		{ID: 1, Name: "keyboard", PriceCents: 4999, Stock: 10},
		{ID: 2, Name: "mouse", PriceCents: 1999, Stock: 2},
	})
}

func TestMemoryRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository()

	t.Run("success: returns product", func(t *testing.T) {
		product, err := repo.GetByID(ctx, 1)

		require.NoError(t, err)
		require.Equal(t, int64(1), product.ID)
		require.Equal(t, "keyboard", product.Name)
		require.Equal(t, int64(4999), product.PriceCents)
		require.Equal(t, int32(10), product.Stock)
	})

	t.Run("unknown product returns ErrNotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999)

		require.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestMemoryRepository_ReserveStock(t *testing.T) {
	ctx := context.Background()

	t.Run("success: stock 10 reserve 3 leaves 7", func(t *testing.T) {
		repo := newTestRepository()

		result, err := repo.ReserveStock(ctx, 1, 3)

		require.NoError(t, err)
		require.True(t, result.Applied)
		require.Equal(t, int32(7), result.Stock)
		require.Equal(t, int64(4999), result.PriceCents)
	})

	t.Run("insufficient stock leaves stock unchanged", func(t *testing.T) {
		repo := newTestRepository()

		result, err := repo.ReserveStock(ctx, 2, 5)

		require.NoError(t, err)
		require.False(t, result.Applied)
		require.Equal(t, int32(2), result.Stock)
		require.Equal(t, int64(1999), result.PriceCents)

		product, err := repo.GetByID(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, int32(2), product.Stock)
	})

	t.Run("unknown product returns ErrNotFound", func(t *testing.T) {
		repo := newTestRepository()

		_, err := repo.ReserveStock(ctx, 999, 1)

		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("two concurrent reservations of 6 against stock 10: exactly one applies", func(t *testing.T) {
		repo := newTestRepository()

		var wg sync.WaitGroup
		results := make([]repository.ReserveResult, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := repo.ReserveStock(ctx, 1, 6)
				require.NoError(t, err)
				results[i] = result
			}(i)
		}
		wg.Wait()

		applied := 0
		for _, r := range results {
			if r.Applied {
				applied++
				require.Equal(t, int32(4), r.Stock)
			}
		}
		require.Equal(t, 1, applied)

		product, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, int32(4), product.Stock)
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		repo := NewMemoryRepository([]repository.Product{
			{ID: 7, Name: "cable", PriceCents: 500, Stock: 25},
		})

		const callers = 20
		const quantity = int32(3)

		var wg sync.WaitGroup
		results := make([]repository.ReserveResult, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result, err := repo.ReserveStock(ctx, 7, quantity)
				require.NoError(t, err)
				results[i] = result
			}(i)
		}
		wg.Wait()

		var reserved int32
		for _, r := range results {
			if r.Applied {
				reserved += quantity
			}
		}
		require.LessOrEqual(t, reserved, int32(25))

		product, err := repo.GetByID(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, int32(25)-reserved, product.Stock)
		require.GreaterOrEqual(t, product.Stock, int32(0))
	})
}
