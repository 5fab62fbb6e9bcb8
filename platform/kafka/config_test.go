package kafka

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	// Arrange
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("KAFKA_TOPIC", "orders.events")

	// Act
	var cfg Config
	err := LoadEnv(&cfg)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, "orders.events", cfg.Topic)
}

func TestLoadEnv_Defaults(t *testing.T) {
	// t.Setenv регистрирует восстановление, Unsetenv делает переменную невидимой
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC", "")
	os.Unsetenv("KAFKA_BROKERS")
	os.Unsetenv("KAFKA_TOPIC")

	var cfg Config
	err := LoadEnv(&cfg)

	require.NoError(t, err)
	assert.Empty(t, cfg.Brokers)
	assert.Equal(t, "order.created", cfg.Topic)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, []string{"localhost:19092"}, cfg.Brokers)
	assert.Equal(t, "order.created", cfg.Topic)
}
