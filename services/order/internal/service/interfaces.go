package service

import (
	"context"

	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository"
	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// StockChecker выполняет синхронную (с точки зрения вызывающего) проверку
// и резервирование остатка у product service.
type StockChecker interface {
	Check(ctx context.Context, productID int64, quantity int32) (productv1.StockCheckResponse, error)
}

// OrderEventPublisher публикует событие о созданном заказе.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, order repository.Order) error
}
