package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	"github.com/hector-delgado/OrderManagementSystem/services/logging/internal/service"
)

// OrderCreatedConsumer обрабатывает события создания заказа из Kafka
type OrderCreatedConsumer struct {
	logger       *zap.Logger
	reader       *kafka.Reader
	service      *service.AuditService
	dlqPublisher *DLQPublisher
	maxAttempts  int
	backoffBase  time.Duration
}

// NewOrderCreatedConsumer создаёт новый consumer для событий создания заказа
func NewOrderCreatedConsumer(
	logger *zap.Logger,
	brokers []string,
	groupID, topic string,
	svc *service.AuditService,
	dlqPublisher *DLQPublisher,
	maxAttempts int,
	backoffBase time.Duration,
) *OrderCreatedConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	return &OrderCreatedConsumer{
		logger:       logger,
		reader:       reader,
		service:      svc,
		dlqPublisher: dlqPublisher,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
	}
}

// Start запускает consumer и начинает обработку сообщений
// Использует at-least-once семантику: FetchMessage + CommitMessages после успешной обработки
func (c *OrderCreatedConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer",
		zap.String("topic", c.reader.Config().Topic),
		zap.String("group_id", c.reader.Config().GroupID),
		zap.Int("max_retry_attempts", c.maxAttempts),
		zap.Duration("retry_backoff_base", c.backoffBase),
	)

	for {
		// FetchMessage вместо ReadMessage для ручного контроля commit
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled, stopping")
				return nil
			}
			c.logger.Error("failed to fetch message from kafka",
				zap.Error(err),
			)
			continue
		}

		shouldCommit := c.processMessage(ctx, m)

		// Коммитим offset только после успешной обработки
		if shouldCommit {
			if err := c.reader.CommitMessages(ctx, m); err != nil {
				c.logger.Error("failed to commit message offset",
					zap.Error(err),
					zap.String("topic", m.Topic),
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
				)
				continue
			}

			c.logger.Debug("message offset committed",
				zap.String("topic", m.Topic),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
			)
		}
	}
}

// processMessage обрабатывает одно сообщение из Kafka
// Возвращает true, если нужно закоммитить offset (успешная обработка)
func (c *OrderCreatedConsumer) processMessage(ctx context.Context, m kafka.Message) bool {
	ctx, span := c.startSpan(ctx, m)
	defer span.End()

	var payload map[string]interface{}
	if err := json.Unmarshal(m.Value, &payload); err != nil {
		c.logger.Error("failed to unmarshal kafka message",
			zap.Error(err),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		// Отправляем в DLQ и коммитим
		if dlqErr := c.dlqPublisher.Publish(context.Background(), m, err, "", "", ""); dlqErr != nil {
			c.logger.Error("failed to publish to DLQ, not committing",
				zap.Error(dlqErr),
			)
			return false
		}
		return true
	}

	event, err := c.parseOrderCreatedEvent(payload)
	if err != nil {
		c.logger.Error("failed to parse order created event",
			zap.Error(err),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		// Отправляем в DLQ и коммитим
		eventType, _ := payload["event_type"].(string)
		eventID, _ := payload["event_id"].(string)
		orderID, _ := payload["order_id"].(string)
		if dlqErr := c.dlqPublisher.Publish(context.Background(), m, err, eventType, eventID, orderID); dlqErr != nil {
			c.logger.Error("failed to publish to DLQ, not committing",
				zap.Error(dlqErr),
			)
			return false
		}
		return true
	}

	c.logger.Info("received order created event",
		zap.String("event_id", event.EventID),
		zap.String("order_id", event.OrderID),
		zap.Int64("customer_id", event.CustomerID),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	success := c.handleWithRetry(ctx, m, event)

	if !success {
		// После исчерпания retry отправляем в DLQ и коммитим
		c.logger.Error("failed to handle order created event after all retries, sending to DLQ",
			zap.String("order_id", event.OrderID),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
		dlqErr := fmt.Errorf("exhausted all retry attempts")
		if err := c.dlqPublisher.Publish(context.Background(), m, dlqErr, event.EventType, event.EventID, event.OrderID); err != nil {
			c.logger.Error("failed to publish to DLQ, not committing",
				zap.Error(err),
			)
			return false
		}
		return true
	}

	c.logger.Info("order created event processed successfully",
		zap.String("order_id", event.OrderID),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	return true // Коммитим после успешной обработки
}

// handleWithRetry обрабатывает событие с retry логикой
// Возвращает true при успешной обработке, false при исчерпании попыток
func (c *OrderCreatedConsumer) handleWithRetry(ctx context.Context, m kafka.Message, event service.OrderCreatedEvent) bool {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		// Вычисляем backoff: 1s, 2s, 4s (экспоненциально)
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			c.logger.Info("retrying order created event",
				zap.String("order_id", event.OrderID),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return false
			case <-time.After(backoff):
				// Продолжаем retry
			}
		}

		err := c.service.HandleOrderCreated(ctx, event, m.Topic, m.Partition, m.Offset)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("order created event processed successfully after retry",
					zap.String("order_id", event.OrderID),
					zap.Int("attempt", attempt),
				)
			}
			return true
		}

		lastErr = err
		c.logger.Warn("failed to handle order created event",
			zap.Error(err),
			zap.String("order_id", event.OrderID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	c.logger.Error("exhausted all retry attempts",
		zap.Error(lastErr),
		zap.String("order_id", event.OrderID),
		zap.Int("max_attempts", c.maxAttempts),
	)

	return false
}

// parseOrderCreatedEvent преобразует payload в OrderCreatedEvent
func (c *OrderCreatedConsumer) parseOrderCreatedEvent(payload map[string]interface{}) (service.OrderCreatedEvent, error) {
	event := service.OrderCreatedEvent{}

	if v, ok := payload["event_id"].(string); ok {
		event.EventID = v
	}
	if v, ok := payload["event_type"].(string); ok {
		event.EventType = v
	}
	if v, ok := payload["event_version"].(float64); ok {
		event.EventVersion = int(v)
	}
	if v, ok := payload["occurred_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			event.OccurredAt = t
		}
	}
	if v, ok := payload["order_id"].(string); ok {
		event.OrderID = v
	} else {
		return event, &ParseError{Field: "order_id", Message: "order_id is required"}
	}
	if v, ok := payload["customer_id"].(float64); ok {
		event.CustomerID = int64(v)
	}
	if v, ok := payload["product_id"].(float64); ok {
		event.ProductID = int64(v)
	}
	if v, ok := payload["quantity"].(float64); ok {
		event.Quantity = int32(v)
	}
	if v, ok := payload["total_amount_cents"].(float64); ok {
		event.TotalAmountCents = int64(v)
	}

	return event, nil
}

// startSpan извлекает trace context из заголовков сообщения и открывает span обработки
func (c *OrderCreatedConsumer) startSpan(ctx context.Context, m kafka.Message) (context.Context, trace.Span) {
	if len(m.Headers) > 0 {
		ctx = otel.GetTextMapPropagator().Extract(ctx, observability.NewKafkaHeaderCarrier(&m.Headers))
	}
	tracer := otel.Tracer("logging")
	return tracer.Start(ctx, "order-created.process", trace.WithSpanKind(trace.SpanKindConsumer))
}

// Close закрывает Kafka reader
func (c *OrderCreatedConsumer) Close() error {
	c.logger.Info("closing kafka consumer")
	return c.reader.Close()
}
