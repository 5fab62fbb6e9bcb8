package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/repository"
)

// ErrInvalidQuantity возвращается, когда запрошенное количество не положительное
var ErrInvalidQuantity = errors.New("requested quantity must be positive")

// CheckResult — результат проверки и резервирования остатка.
// AvailableStock — остаток после списания при InStock=true, иначе неизменённый
// остаток. TotalAmount — priceCents * quantity по цене на момент операции.
type CheckResult struct {
	ProductID      int64
	AvailableStock int32
	InStock        bool
	TotalAmount    int64
}

// StockService содержит бизнес-логику проверки и резервирования остатков
// Зависит от интерфейса ProductRepository, а не от конкретной реализации
type StockService struct {
	logger *zap.Logger
	repo   repository.ProductRepository
}

// NewStockService создаёт новый экземпляр StockService
func NewStockService(logger *zap.Logger, repo repository.ProductRepository) *StockService {
	return &StockService{
		logger: logger,
		repo:   repo,
	}
}

// CheckStock проверяет и резервирует остаток товара.
// Репозиторий выполняет проверку и декремент атомарно на один productID,
// поэтому остаток не может уйти в минус при конкурентных вызовах.
// Неизвестный товар — не ошибка: возвращается InStock=false с нулевым остатком
// и суммой.
func (s *StockService) CheckStock(ctx context.Context, productID int64, quantity int32) (CheckResult, error) {
	if quantity <= 0 {
		return CheckResult{}, ErrInvalidQuantity
	}

	result, err := s.repo.ReserveStock(ctx, productID, quantity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("stock check for unknown product",
				zap.Int64("product_id", productID),
				zap.Int32("quantity", quantity),
			)
			return CheckResult{ProductID: productID}, nil
		}
		return CheckResult{}, err
	}

	checkResult := CheckResult{
		ProductID:      productID,
		AvailableStock: result.Stock,
		InStock:        result.Applied,
		TotalAmount:    result.PriceCents * int64(quantity),
	}

	if result.Applied {
		s.logger.Info("stock reserved",
			zap.Int64("product_id", productID),
			zap.Int32("quantity", quantity),
			zap.Int32("stock_after", result.Stock),
			zap.Int64("total_amount", checkResult.TotalAmount),
		)
	} else {
		s.logger.Info("insufficient stock",
			zap.Int64("product_id", productID),
			zap.Int32("quantity", quantity),
			zap.Int32("stock", result.Stock),
		)
	}

	return checkResult, nil
}
