package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// ErrStockCheckTimeout возвращается, когда ответ на проверку остатков не пришёл
// за отведённое время. Для вызывающего это "остаток неизвестен", а не
// "товара нет": заказ создавать нельзя, но условие ретраябельное.
var ErrStockCheckTimeout = errors.New("stock check timed out")

// ErrStockCheckFailed возвращается, когда responder ответил ошибкой обработки
// (malformed_request, internal_error). Отличается и от таймаута, и от
// бизнес-отказа inStock=false.
var ErrStockCheckFailed = errors.New("stock check failed")

// requestPublisher — подмножество *amqp.Channel для публикации запросов.
// Выделено в интерфейс для тестов без брокера.
type requestPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// StockCheckClient — клиент асинхронного stock-check RPC поверх RabbitMQ.
// Запросы публикуются в общую очередь product-сервиса, ответы приходят в
// приватную exclusive reply-очередь этого экземпляра и разносятся по ожидающим
// вызовам через correlation id.
type StockCheckClient struct {
	logger       *zap.Logger
	channel      *amqp.Channel
	publisher    requestPublisher
	requestQueue string
	replyQueue   string
	pending      *pendingCalls
	timeout      time.Duration
}

// NewStockCheckClient создаёт клиент поверх установленного соединения:
// открывает канал, объявляет очередь запросов и приватную reply-очередь,
// запускает фоновый dispatch ответов.
// Reply-очередь server-named, exclusive и auto-delete: живёт ровно столько,
// сколько живёт клиент, и читается только им.
func NewStockCheckClient(
	logger *zap.Logger,
	conn *amqp.Connection,
	requestQueue string,
	timeout time.Duration,
) (*StockCheckClient, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := channel.QueueDeclare(
		requestQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		channel.Close()
		return nil, err
	}

	replyQueue, err := channel.QueueDeclare(
		"",    // имя сгенерирует брокер
		false, // durable
		true,  // autoDelete
		true,  // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		channel.Close()
		return nil, err
	}

	deliveries, err := channel.Consume(
		replyQueue.Name,
		"",   // consumer tag
		true, // autoAck: потеря ответа закрывается таймаутом вызова
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		return nil, err
	}

	client := &StockCheckClient{
		logger:       logger,
		channel:      channel,
		publisher:    channel,
		requestQueue: requestQueue,
		replyQueue:   replyQueue.Name,
		pending:      newPendingCalls(),
		timeout:      timeout,
	}

	go client.dispatch(deliveries)

	logger.Info("stock-check client ready",
		zap.String("request_queue", requestQueue),
		zap.String("reply_queue", replyQueue.Name),
		zap.Duration("timeout", timeout),
	)

	return client, nil
}

// newStockCheckClientForTest собирает клиент с подменённым publisher-ом,
// без канала и брокера. Dispatch запускается тестом вручную.
func newStockCheckClientForTest(logger *zap.Logger, publisher requestPublisher, timeout time.Duration) *StockCheckClient {
	return &StockCheckClient{
		logger:       logger,
		publisher:    publisher,
		requestQueue: productv1.StockCheckQueue,
		replyQueue:   "test-reply-queue",
		pending:      newPendingCalls(),
		timeout:      timeout,
	}
}

// Check публикует запрос на проверку и резервирование остатка и ждёт ответ.
// Возвращает ErrStockCheckTimeout, если ответ не пришёл за таймаут клиента,
// и ErrStockCheckFailed, если responder ответил ошибкой обработки.
// Бизнес-отказ (inStock=false) — не ошибка: он в самом ответе.
func (c *StockCheckClient) Check(ctx context.Context, productID int64, quantity int32) (productv1.StockCheckResponse, error) {
	correlationID := uuid.NewString()

	body, err := json.Marshal(productv1.StockCheckRequest{
		ProductID:         productID,
		RequestedQuantity: quantity,
	})
	if err != nil {
		return productv1.StockCheckResponse{}, fmt.Errorf("marshal stock-check request: %w", err)
	}

	ctx, span := otel.Tracer("order").Start(ctx, "stock-check.call",
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, observability.NewAMQPTableCarrier(headers))

	logger := observability.L(ctx, c.logger).With(
		zap.String("correlation_id", correlationID),
		zap.Int64("product_id", productID),
		zap.Int32("quantity", quantity),
	)

	// Регистрируем ожидание до публикации: ответ не может обогнать запись в реестре
	replyCh := c.pending.add(correlationID)

	err = c.publisher.PublishWithContext(ctx,
		"",             // default exchange
		c.requestQueue, // routing key = имя очереди
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: correlationID,
			ReplyTo:       c.replyQueue,
			Headers:       headers,
			Body:          body,
		},
	)
	if err != nil {
		c.pending.remove(correlationID)
		logger.Error("failed to publish stock-check request", zap.Error(err))
		return productv1.StockCheckResponse{}, fmt.Errorf("publish stock-check request: %w", err)
	}

	logger.Debug("stock-check request published")

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case response := <-replyCh:
		if response.Error != "" {
			logger.Warn("stock check answered with failure", zap.String("error", response.Error))
			return productv1.StockCheckResponse{}, fmt.Errorf("%w: %s", ErrStockCheckFailed, response.Error)
		}
		logger.Info("stock check answered",
			zap.Bool("in_stock", response.InStock),
			zap.Int32("available_stock", response.AvailableStock),
			zap.Int64("total_amount", response.TotalAmount),
		)
		return response, nil

	case <-timer.C:
		c.pending.remove(correlationID)
		logger.Warn("stock check timed out", zap.Duration("timeout", c.timeout))
		return productv1.StockCheckResponse{}, ErrStockCheckTimeout

	case <-ctx.Done():
		c.pending.remove(correlationID)
		return productv1.StockCheckResponse{}, ctx.Err()
	}
}

// dispatch разносит ответы из reply-очереди по ожидающим вызовам.
// Один фоновый consumer на клиент; завершается с закрытием канала.
// Ответы с неизвестным correlation id молча отбрасываются: вызов мог уже
// уйти по таймауту.
func (c *StockCheckClient) dispatch(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		if d.CorrelationId == "" {
			c.logger.Warn("reply without correlation id, dropping")
			continue
		}

		var response productv1.StockCheckResponse
		if err := json.Unmarshal(d.Body, &response); err != nil {
			c.logger.Error("failed to unmarshal stock-check response",
				zap.Error(err),
				zap.String("correlation_id", d.CorrelationId),
			)
			continue
		}

		if !c.pending.resolve(d.CorrelationId, response) {
			c.logger.Debug("reply for unknown correlation id, dropping",
				zap.String("correlation_id", d.CorrelationId),
			)
		}
	}

	c.logger.Info("stock-check reply dispatcher stopped")
}

// Close закрывает AMQP-канал клиента; reply-очередь удалит брокер
func (c *StockCheckClient) Close() error {
	if c.channel == nil {
		return nil
	}
	return c.channel.Close()
}
