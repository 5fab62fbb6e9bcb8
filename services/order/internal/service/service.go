package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository"
)

var (
	// ErrStockNotAvailable возвращается, когда product service подтвердил,
	// что остатка недостаточно для запрошенного количества.
	ErrStockNotAvailable = errors.New("stock is not available for the requested product")

	// ErrInvalidOrder возвращается при невалидных параметрах заказа.
	ErrInvalidOrder = errors.New("invalid order parameters")
)

// OrderService реализует сценарий оформления заказа: резервирование
// остатка, сохранение заказа и публикация события order.created.
type OrderService struct {
	logger       *zap.Logger
	stockChecker StockChecker
	orderRepo    repository.OrderRepository
	publisher    OrderEventPublisher
}

func NewOrderService(
	logger *zap.Logger,
	stockChecker StockChecker,
	orderRepo repository.OrderRepository,
	publisher OrderEventPublisher,
) *OrderService {
	return &OrderService{
		logger:       logger,
		stockChecker: stockChecker,
		orderRepo:    orderRepo,
		publisher:    publisher,
	}
}

// CreateOrder резервирует остаток у product service и сохраняет заказ.
// Итоговая сумма берётся из ответа product service без пересчёта:
// цена на момент резервирования является источником истины.
func (s *OrderService) CreateOrder(ctx context.Context, customerID, productID int64, quantity int32) (repository.Order, error) {
	log := observability.L(ctx, s.logger)

	if customerID <= 0 || productID <= 0 || quantity <= 0 {
		return repository.Order{}, ErrInvalidOrder
	}

	resp, err := s.stockChecker.Check(ctx, productID, quantity)
	if err != nil {
		return repository.Order{}, fmt.Errorf("check stock: %w", err)
	}

	if !resp.InStock {
		log.Info("Stock not available for order",
			zap.Int64("product_id", productID),
			zap.Int32("requested_quantity", quantity),
			zap.Int32("available_stock", resp.AvailableStock))
		return repository.Order{}, ErrStockNotAvailable
	}

	order := repository.Order{
		ID:               uuid.NewString(),
		CustomerID:       customerID,
		ProductID:        productID,
		Quantity:         quantity,
		TotalAmountCents: resp.TotalAmount,
		CreatedAt:        time.Now().Unix(),
	}

	if err := s.orderRepo.Save(ctx, order); err != nil {
		return repository.Order{}, fmt.Errorf("save order: %w", err)
	}

	// Публикация события не влияет на результат оформления: остаток уже
	// зарезервирован и заказ сохранён, ошибку только логируем.
	if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
		log.Error("Failed to publish order.created event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	log.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int64("customer_id", customerID),
		zap.Int64("product_id", productID),
		zap.Int32("quantity", quantity),
		zap.Int64("total_amount_cents", order.TotalAmountCents))

	return order, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *OrderService) GetOrder(ctx context.Context, id string) (repository.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return repository.Order{}, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrders возвращает все заказы, новые первыми.
func (s *OrderService) ListOrders(ctx context.Context) ([]repository.Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}
