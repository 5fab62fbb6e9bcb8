package memory

import (
	"context"
	"sync"

	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/repository"
)

// productEntry — запись товара со своим мьютексом.
// Списание одного товара сериализуется его мьютексом, списания разных товаров
// идут параллельно.
type productEntry struct {
	mu         sync.Mutex
	name       string
	priceCents int64
	stock      int32
}

// MemoryRepository реализует ProductRepository используя in-memory хранилище
// Используется для разработки и тестирования
// В production используется реализация с MongoDB
type MemoryRepository struct {
	mu       sync.RWMutex
	products map[int64]*productEntry
}

// NewMemoryRepository создаёт новый in-memory репозиторий с начальным каталогом
func NewMemoryRepository(products []repository.Product) *MemoryRepository {
	entries := make(map[int64]*productEntry, len(products))
	for _, p := range products {
		entries[p.ID] = &productEntry{
			name:       p.Name,
			priceCents: p.PriceCents,
			stock:      p.Stock,
		}
	}

	return &MemoryRepository{
		products: entries,
	}
}

// GetByID возвращает товар из памяти
// Возвращает ErrNotFound, если товар не найден
func (r *MemoryRepository) GetByID(ctx context.Context, productID int64) (repository.Product, error) {
	entry, err := r.entry(productID)
	if err != nil {
		return repository.Product{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return repository.Product{
		ID:         productID,
		Name:       entry.name,
		PriceCents: entry.priceCents,
		Stock:      entry.stock,
	}, nil
}

// ReserveStock атомарно списывает остаток товара
// Проверка и декремент выполняются под мьютексом записи товара, поэтому два
// конкурентных вызова на один товар не могут оба пройти проверку остатка
func (r *MemoryRepository) ReserveStock(ctx context.Context, productID int64, quantity int32) (repository.ReserveResult, error) {
	entry, err := r.entry(productID)
	if err != nil {
		return repository.ReserveResult{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.stock < quantity {
		// Недостаточно товара - остаток не меняется
		return repository.ReserveResult{
			Applied:    false,
			Stock:      entry.stock,
			PriceCents: entry.priceCents,
		}, nil
	}

	entry.stock -= quantity
	return repository.ReserveResult{
		Applied:    true,
		Stock:      entry.stock,
		PriceCents: entry.priceCents,
	}, nil
}

// entry возвращает запись товара под read-lock карты
func (r *MemoryRepository) entry(productID int64) (*productEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.products[productID]
	if !exists {
		return nil, repository.ErrNotFound
	}
	return entry, nil
}
