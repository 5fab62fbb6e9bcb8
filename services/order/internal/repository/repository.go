package repository

import (
	"context"
	"errors"
)

// Order представляет доменную модель заказа
// Это бизнес-сущность, не привязанная к HTTP или БД.
// TotalAmountCents — сумма заказа в минорных единицах, взятая из ответа
// проверки остатков на момент резервирования.
type Order struct {
	ID               string
	CustomerID       int64
	ProductID        int64
	Quantity         int32
	TotalAmountCents int64
	CreatedAt        int64 // Unix timestamp для простоты
}

// OrderRepository определяет интерфейс для работы с хранилищем заказов
// Service слой зависит от этого интерфейса, а не от конкретной реализации
type OrderRepository interface {
	// Save сохраняет заказ в хранилище
	Save(ctx context.Context, order Order) error

	// GetByID получает заказ по ID
	// Возвращает ErrNotFound, если заказ не найден
	GetByID(ctx context.Context, id string) (Order, error)

	// List возвращает все заказы, новые первыми
	List(ctx context.Context) ([]Order, error)
}

// ErrNotFound возвращается, когда заказ не найден в хранилище
var ErrNotFound = errors.New("order not found")
