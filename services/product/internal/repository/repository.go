package repository

import (
	"context"
	"errors"
)

// Product — товар с ценой в минорных единицах и текущим остатком на складе
type Product struct {
	ID         int64
	Name       string
	PriceCents int64
	Stock      int32
}

// ReserveResult — результат условного списания остатка.
// Applied=true: списание применено, Stock — остаток после списания.
// Applied=false: остатка не хватило, Stock — неизменённый остаток.
// PriceCents в обоих случаях — цена на момент операции.
type ReserveResult struct {
	Applied    bool
	Stock      int32
	PriceCents int64
}

// ProductRepository определяет интерфейс для работы с хранилищем товаров
// Service слой зависит от этого интерфейса, а не от конкретной реализации
type ProductRepository interface {
	// GetByID возвращает товар по id
	// Возвращает ErrNotFound, если товар не найден
	GetByID(ctx context.Context, productID int64) (Product, error)

	// ReserveStock атомарно проверяет и списывает остаток товара.
	// Проверка stock >= quantity и декремент выполняются как одна операция
	// на один productID: два конкурентных вызова не могут оба пройти проверку,
	// которую должен пройти только один.
	// Возвращает ErrNotFound, если товар не найден.
	ReserveStock(ctx context.Context, productID int64, quantity int32) (ReserveResult, error)
}

// ErrNotFound возвращается, когда товар не найден в хранилище
var ErrNotFound = errors.New("product not found")
