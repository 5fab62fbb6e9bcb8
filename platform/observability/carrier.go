package observability

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// amqpTableCarrier адаптирует amqp.Table (headers сообщения) к propagation.TextMapCarrier
type amqpTableCarrier struct {
	table amqp.Table
}

// NewAMQPTableCarrier создаёт carrier для заголовков AMQP-сообщения.
// Таблица должна быть не-nil: для публикации создайте её заранее и передайте в amqp.Publishing.Headers.
func NewAMQPTableCarrier(table amqp.Table) *amqpTableCarrier {
	if table == nil {
		table = amqp.Table{}
	}
	return &amqpTableCarrier{table: table}
}

// Get возвращает значение по ключу (только строковые значения заголовков)
func (c *amqpTableCarrier) Get(key string) string {
	if v, ok := c.table[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Set устанавливает пару key-value
func (c *amqpTableCarrier) Set(key, value string) {
	c.table[key] = value
}

// Keys возвращает все ключи заголовков
func (c *amqpTableCarrier) Keys() []string {
	out := make([]string, 0, len(c.table))
	for k := range c.table {
		out = append(out, k)
	}
	return out
}

// kafkaHeaderCarrier адаптирует []kafka.Header к propagation.TextMapCarrier
type kafkaHeaderCarrier struct {
	headers *[]kafka.Header
}

// NewKafkaHeaderCarrier создаёт carrier для заголовков Kafka-сообщения.
// Для Inject передайте указатель на Headers сообщения перед публикацией,
// для Extract — указатель на Headers полученного сообщения.
func NewKafkaHeaderCarrier(headers *[]kafka.Header) *kafkaHeaderCarrier {
	return &kafkaHeaderCarrier{headers: headers}
}

// Get возвращает значение по ключу
func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set устанавливает пару key-value, заменяя существующий заголовок с тем же ключом
func (c *kafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

// Keys возвращает все ключи заголовков
func (c *kafkaHeaderCarrier) Keys() []string {
	out := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		out = append(out, h.Key)
	}
	return out
}
