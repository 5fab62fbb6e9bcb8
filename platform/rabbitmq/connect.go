package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Connect подключается к RabbitMQ с ретраями по cfg.ConnectAttempts/ConnectDelay.
// Возвращает ошибку последней попытки, если бюджет исчерпан или ctx отменён.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*amqp.Connection, error) {
	var lastErr error
	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := amqp.Dial(cfg.URL)
		if err == nil {
			logger.Info("connected to rabbitmq", zap.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err
		logger.Warn("rabbitmq connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq connect cancelled: %w", ctx.Err())
		case <-time.After(cfg.ConnectDelay):
		}
	}
	return nil, fmt.Errorf("rabbitmq connect after %d attempts: %w", attempts, lastErr)
}
