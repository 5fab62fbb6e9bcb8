package service

import (
	"time"
)

// OrderCreatedEvent представляет событие создания заказа (входящее из Kafka)
type OrderCreatedEvent struct {
	EventID          string
	EventType        string
	EventVersion     int
	OccurredAt       time.Time
	OrderID          string
	CustomerID       int64
	ProductID        int64
	Quantity         int32
	TotalAmountCents int64
}
