package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/repository"
)

// AuditService содержит бизнес-логику журналирования событий о заказах
type AuditService struct {
	logger *zap.Logger
	repo   repository.AuditRepository
}

// NewAuditService создаёт новый экземпляр AuditService
func NewAuditService(logger *zap.Logger, repo repository.AuditRepository) *AuditService {
	return &AuditService{
		logger: logger,
		repo:   repo,
	}
}

// HandleOrderCreated записывает событие создания заказа в журнал аудита.
// Idempotency обеспечивается unique constraint на event_id: повторная
// доставка того же события из Kafka не создаёт вторую запись
func (s *AuditService) HandleOrderCreated(ctx context.Context, event OrderCreatedEvent, topic string, partition int, offset int64) error {
	s.logger.Info("handling order created event",
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID),
		zap.Int64("customer_id", event.CustomerID),
		zap.Int64("product_id", event.ProductID),
		zap.Int32("quantity", event.Quantity),
		zap.Int64("total_amount_cents", event.TotalAmountCents),
	)

	inserted, err := s.repo.InsertEntry(ctx, repository.AuditEntry{
		EventID:          event.EventID,
		EventType:        event.EventType,
		EventVersion:     event.EventVersion,
		OccurredAt:       event.OccurredAt,
		OrderID:          event.OrderID,
		CustomerID:       event.CustomerID,
		ProductID:        event.ProductID,
		Quantity:         event.Quantity,
		TotalAmountCents: event.TotalAmountCents,
		Topic:            topic,
		Partition:        partition,
		MessageOffset:    offset,
	})
	if err != nil {
		s.logger.Error("failed to insert audit entry",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID),
		)
		return err
	}

	if !inserted {
		s.logger.Info("event already recorded (duplicate)",
			zap.String("event_id", event.EventID),
			zap.String("order_id", event.OrderID),
		)
		return nil
	}

	s.logger.Info("audit entry recorded",
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID),
	)

	return nil
}
