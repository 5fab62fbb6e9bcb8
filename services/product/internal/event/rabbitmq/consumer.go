package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	"github.com/hector-delgado/OrderManagementSystem/services/product/internal/service"
	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// replyPublisher — подмножество *amqp.Channel, нужное consumer-у для публикации
// ответов. Выделено в интерфейс для тестов без брокера.
type replyPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// StockCheckConsumer обрабатывает запросы на проверку остатков из RabbitMQ.
// Сообщения обрабатываются по одному (prefetch 1), ack отправляется только
// после публикации ответа либо после финальной ошибки: падение до ack
// приводит к redelivery, а не к потере запроса.
type StockCheckConsumer struct {
	logger      *zap.Logger
	channel     *amqp.Channel
	publisher   replyPublisher
	queue       string
	service     *service.StockService
	replies     service.ProcessedRepliesStore
	replyTTL    time.Duration
	maxAttempts int
	backoffBase time.Duration
}

// NewStockCheckConsumer создаёт consumer поверх установленного соединения:
// открывает канал, объявляет очередь запросов и ставит prefetch 1.
func NewStockCheckConsumer(
	logger *zap.Logger,
	conn *amqp.Connection,
	queue string,
	svc *service.StockService,
	replies service.ProcessedRepliesStore,
	replyTTL time.Duration,
	maxAttempts int,
	backoffBase time.Duration,
) (*StockCheckConsumer, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		channel.Close()
		return nil, err
	}

	// Prefetch 1: следующий запрос доставляется только после ack текущего
	if err := channel.Qos(1, 0, false); err != nil {
		channel.Close()
		return nil, err
	}

	return &StockCheckConsumer{
		logger:      logger,
		channel:     channel,
		publisher:   channel,
		queue:       queue,
		service:     svc,
		replies:     replies,
		replyTTL:    replyTTL,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}, nil
}

// newStockCheckConsumerForTest собирает consumer с подменённым publisher-ом,
// без канала и брокера
func newStockCheckConsumerForTest(
	logger *zap.Logger,
	publisher replyPublisher,
	svc *service.StockService,
	replies service.ProcessedRepliesStore,
	replyTTL time.Duration,
	maxAttempts int,
	backoffBase time.Duration,
) *StockCheckConsumer {
	return &StockCheckConsumer{
		logger:      logger,
		publisher:   publisher,
		queue:       productv1.StockCheckQueue,
		service:     svc,
		replies:     replies,
		replyTTL:    replyTTL,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// Start запускает consumer и начинает обработку запросов.
// Блокируется до отмены контекста или закрытия канала.
func (c *StockCheckConsumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(
		ctx,
		c.queue,
		"",    // consumer tag, сгенерирует брокер
		false, // autoAck выключен: ack вручную после ответа
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("starting stock-check consumer",
		zap.String("queue", c.queue),
		zap.Int("max_retry_attempts", c.maxAttempts),
		zap.Duration("retry_backoff_base", c.backoffBase),
	)

	return c.consume(ctx, deliveries)
}

// consume обрабатывает сообщения из канала доставок до его закрытия
func (c *StockCheckConsumer) consume(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer context cancelled, stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.logger.Info("delivery channel closed, stopping")
				return nil
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery обрабатывает один запрос: отвечает из кеша при redelivery,
// иначе валидирует, резервирует остаток и публикует ответ. Ack отправляется
// в конце в любом исходе: malformed-запросы не возвращаются в очередь,
// чтобы не зациклить poison message.
func (c *StockCheckConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if err := d.Ack(false); err != nil {
			c.logger.Error("failed to ack stock-check request",
				zap.Error(err),
				zap.String("correlation_id", d.CorrelationId),
			)
		}
	}()

	ctx, span := c.startSpan(ctx, d)
	defer span.End()

	logger := observability.L(ctx, c.logger).With(
		zap.String("correlation_id", d.CorrelationId),
		zap.String("reply_to", d.ReplyTo),
	)

	// Redelivery: если ответ с этим correlation id уже публиковался,
	// отвечаем из кеша и не трогаем остатки повторно
	if d.CorrelationId != "" {
		cached, found, err := c.replies.Get(ctx, d.CorrelationId)
		if err != nil {
			logger.Error("failed to check processed replies store", zap.Error(err))
		} else if found {
			logger.Info("request already processed, replying from cache")
			c.publishRaw(ctx, logger, d, cached)
			return
		}
	}

	var request productv1.StockCheckRequest
	if err := json.Unmarshal(d.Body, &request); err != nil {
		logger.Error("failed to unmarshal stock-check request", zap.Error(err))
		c.publishReply(ctx, logger, d, productv1.StockCheckResponse{
			Error: productv1.ErrorMalformedRequest,
		})
		return
	}

	logger.Info("received stock-check request",
		zap.Int64("product_id", request.ProductID),
		zap.Int32("requested_quantity", request.RequestedQuantity),
	)

	result, err := c.checkWithRetry(ctx, logger, request)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuantity) {
			logger.Warn("stock-check request failed validation", zap.Error(err))
			c.publishReply(ctx, logger, d, productv1.StockCheckResponse{
				ProductID: request.ProductID,
				Error:     productv1.ErrorMalformedRequest,
			})
			return
		}

		logger.Error("failed to check stock after all retries", zap.Error(err))
		c.publishReply(ctx, logger, d, productv1.StockCheckResponse{
			ProductID: request.ProductID,
			Error:     productv1.ErrorInternal,
		})
		return
	}

	c.publishReply(ctx, logger, d, productv1.StockCheckResponse{
		ProductID:      result.ProductID,
		AvailableStock: result.AvailableStock,
		InStock:        result.InStock,
		TotalAmount:    result.TotalAmount,
	})
}

// checkWithRetry вызывает CheckStock с экспоненциальным backoff: 1s, 2s, 4s.
// Ошибки валидации не ретраятся.
func (c *StockCheckConsumer) checkWithRetry(ctx context.Context, logger *zap.Logger, request productv1.StockCheckRequest) (service.CheckResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoffBase * time.Duration(1<<uint(attempt-2))
			logger.Info("retrying stock check",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("backoff", backoff),
			)

			select {
			case <-ctx.Done():
				return service.CheckResult{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := c.service.CheckStock(ctx, request.ProductID, request.RequestedQuantity)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, service.ErrInvalidQuantity) {
			return service.CheckResult{}, err
		}

		lastErr = err
		logger.Warn("stock check attempt failed",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	return service.CheckResult{}, lastErr
}

// publishReply сериализует ответ, кеширует его под correlation id и публикует
// в reply-очередь из метаданных запроса
func (c *StockCheckConsumer) publishReply(ctx context.Context, logger *zap.Logger, d amqp.Delivery, response productv1.StockCheckResponse) {
	body, err := json.Marshal(response)
	if err != nil {
		logger.Error("failed to marshal stock-check response", zap.Error(err))
		return
	}

	// Кешируем до публикации: при падении между публикацией и ack повторная
	// доставка ответится из кеша. Ошибка кеша не блокирует ответ.
	if d.CorrelationId != "" && response.Error == "" {
		if err := c.replies.Put(ctx, d.CorrelationId, body, c.replyTTL); err != nil {
			logger.Error("failed to cache stock-check reply", zap.Error(err))
		}
	}

	c.publishRaw(ctx, logger, d, body)
}

// publishRaw публикует готовое тело ответа. Отсутствие reply-очереди и ошибки
// публикации логируются: запрашивающая сторона закроет ожидание по таймауту.
func (c *StockCheckConsumer) publishRaw(ctx context.Context, logger *zap.Logger, d amqp.Delivery, body []byte) {
	if d.ReplyTo == "" {
		logger.Warn("stock-check request has no reply queue, dropping response")
		return
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, observability.NewAMQPTableCarrier(headers))

	err := c.publisher.PublishWithContext(ctx,
		"",        // default exchange
		d.ReplyTo, // routing key = имя reply-очереди
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Headers:       headers,
			Body:          body,
		},
	)
	if err != nil {
		logger.Error("failed to publish stock-check response", zap.Error(err))
		return
	}

	logger.Info("stock-check response published")
}

// startSpan извлекает trace context из заголовков запроса и открывает span обработки
func (c *StockCheckConsumer) startSpan(ctx context.Context, d amqp.Delivery) (context.Context, trace.Span) {
	if d.Headers != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, observability.NewAMQPTableCarrier(d.Headers))
	}
	tracer := otel.Tracer("product")
	return tracer.Start(ctx, "stock-check.process", trace.WithSpanKind(trace.SpanKindConsumer))
}

// Close закрывает AMQP-канал consumer-а
func (c *StockCheckConsumer) Close() error {
	if c.channel == nil {
		return nil
	}
	return c.channel.Close()
}
