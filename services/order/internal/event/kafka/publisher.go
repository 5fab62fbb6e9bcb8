package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository"
)

// OrderCreatedPublisher публикует события order.created в Kafka
type OrderCreatedPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
	topic  string
}

// NewOrderCreatedPublisher создаёт новый Kafka publisher для событий о заказах
func NewOrderCreatedPublisher(logger *zap.Logger, brokers []string, topic string) *OrderCreatedPublisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &OrderCreatedPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
	}
}

// Close закрывает Kafka writer
func (p *OrderCreatedPublisher) Close() error {
	return p.writer.Close()
}

// PublishOrderCreated публикует событие о созданном заказе в Kafka
func (p *OrderCreatedPublisher) PublishOrderCreated(ctx context.Context, order repository.Order) error {
	payload := map[string]interface{}{
		"event_id":           uuid.New().String(), //уникальный ID события
		"event_type":         "order.created",
		"event_version":      1,
		"occurred_at":        time.Now().UTC().Format(time.RFC3339),
		"order_id":           order.ID,
		"customer_id":        order.CustomerID,
		"product_id":         order.ProductID,
		"quantity":           order.Quantity,
		"total_amount_cents": order.TotalAmountCents,
	}

	valueBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal order created event",
			zap.Error(err),
			zap.String("order_id", order.ID),
		)
		return err
	}

	message := kafka.Message{
		Key:   []byte(order.ID), //ключ - ID заказа, для порядка внутри партиции
		Value: valueBytes,
	}

	// Пробрасываем trace context в заголовки сообщения
	otel.GetTextMapPropagator().Inject(ctx, observability.NewKafkaHeaderCarrier(&message.Headers))

	err = p.writer.WriteMessages(ctx, message)
	if err != nil {
		p.logger.Error("failed to publish order created event",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("order_id", order.ID),
		)
		return err
	}

	p.logger.Info("order created event published",
		zap.String("topic", p.topic),
		zap.String("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.Int64("total_amount_cents", order.TotalAmountCents),
	)

	return nil
}
