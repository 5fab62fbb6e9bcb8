package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// fakeRequestPublisher записывает публикации и отдаёт их тесту через канал
type fakeRequestPublisher struct {
	mu        sync.Mutex
	err       error
	published chan amqp.Publishing
}

func newFakeRequestPublisher() *fakeRequestPublisher {
	return &fakeRequestPublisher{
		published: make(chan amqp.Publishing, 16),
	}
}

func (p *fakeRequestPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.published <- msg
	return nil
}

func (p *fakeRequestPublisher) failWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func replyDelivery(t *testing.T, correlationID string, response productv1.StockCheckResponse) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(response)
	require.NoError(t, err)
	return amqp.Delivery{CorrelationId: correlationID, Body: body}
}

func newTestClient(t *testing.T, timeout time.Duration) (*StockCheckClient, *fakeRequestPublisher, chan amqp.Delivery) {
	t.Helper()
	publisher := newFakeRequestPublisher()
	client := newStockCheckClientForTest(zap.NewNop(), publisher, timeout)

	deliveries := make(chan amqp.Delivery)
	go client.dispatch(deliveries)
	t.Cleanup(func() { close(deliveries) })

	return client, publisher, deliveries
}

func TestStockCheckClient_Check_Success(t *testing.T) {
	ctx := context.Background()
	client, publisher, deliveries := newTestClient(t, time.Second)

	// Отвечаем на запрос, как только он опубликован
	go func() {
		msg := <-publisher.published

		var request productv1.StockCheckRequest
		if err := json.Unmarshal(msg.Body, &request); err != nil {
			return
		}

		deliveries <- replyDelivery(t, msg.CorrelationId, productv1.StockCheckResponse{
			ProductID:      request.ProductID,
			AvailableStock: 7,
			InStock:        true,
			TotalAmount:    14997,
		})
	}()

	response, err := client.Check(ctx, 1, 3)

	require.NoError(t, err)
	require.True(t, response.InStock)
	require.Equal(t, int64(1), response.ProductID)
	require.Equal(t, int32(7), response.AvailableStock)
	require.Equal(t, int64(14997), response.TotalAmount)
}

func TestStockCheckClient_Check_RequestMetadata(t *testing.T) {
	ctx := context.Background()
	client, publisher, deliveries := newTestClient(t, time.Second)

	go func() {
		msg := <-publisher.published
		deliveries <- replyDelivery(t, msg.CorrelationId, productv1.StockCheckResponse{InStock: true})
	}()

	_, err := client.Check(ctx, 1, 3)
	require.NoError(t, err)

	// Повторный вызов, чтобы проверить уникальность correlation id
	go func() {
		msg := <-publisher.published
		require.NotEmpty(t, msg.CorrelationId)
		require.Equal(t, "test-reply-queue", msg.ReplyTo)
		require.Equal(t, "application/json", msg.ContentType)
		deliveries <- replyDelivery(t, msg.CorrelationId, productv1.StockCheckResponse{InStock: true})
	}()

	_, err = client.Check(ctx, 2, 1)
	require.NoError(t, err)
}

func TestStockCheckClient_Check_Timeout(t *testing.T) {
	ctx := context.Background()
	client, _, _ := newTestClient(t, 50*time.Millisecond)

	_, err := client.Check(ctx, 1, 3)

	require.ErrorIs(t, err, ErrStockCheckTimeout)

	// Реестр очищен: запись таймаутнувшего вызова удалена
	client.pending.mu.Lock()
	require.Empty(t, client.pending.calls)
	client.pending.mu.Unlock()
}

func TestStockCheckClient_Check_LateReplyDropped(t *testing.T) {
	ctx := context.Background()
	client, publisher, deliveries := newTestClient(t, 50*time.Millisecond)

	_, err := client.Check(ctx, 1, 3)
	require.ErrorIs(t, err, ErrStockCheckTimeout)

	msg := <-publisher.published

	// Параллельно регистрируем второй вызов: опоздавший ответ первого
	// не должен его разрешить
	secondDone := make(chan error, 1)
	go func() {
		_, err := client.Check(ctx, 2, 1)
		secondDone <- err
	}()

	// Опоздавший ответ первого вызова
	deliveries <- replyDelivery(t, msg.CorrelationId, productv1.StockCheckResponse{InStock: true})

	// Второй вызов всё равно закрывается своим таймаутом
	require.ErrorIs(t, <-secondDone, ErrStockCheckTimeout)
}

func TestStockCheckClient_Check_ConcurrentCallsResolveIndependently(t *testing.T) {
	ctx := context.Background()
	client, publisher, deliveries := newTestClient(t, time.Second)

	// Отвечаем на запросы в обратном порядке публикации
	go func() {
		first := <-publisher.published
		second := <-publisher.published

		secondReq := productv1.StockCheckRequest{}
		_ = json.Unmarshal(second.Body, &secondReq)
		firstReq := productv1.StockCheckRequest{}
		_ = json.Unmarshal(first.Body, &firstReq)

		deliveries <- replyDelivery(t, second.CorrelationId, productv1.StockCheckResponse{
			ProductID: secondReq.ProductID,
			InStock:   false,
		})
		deliveries <- replyDelivery(t, first.CorrelationId, productv1.StockCheckResponse{
			ProductID: firstReq.ProductID,
			InStock:   true,
		})
	}()

	var wg sync.WaitGroup
	var firstResp, secondResp productv1.StockCheckResponse
	var firstErr, secondErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		firstResp, firstErr = client.Check(ctx, 1, 3)
	}()
	// Небольшая задержка, чтобы порядок публикаций был детерминированным
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		secondResp, secondErr = client.Check(ctx, 2, 5)
	}()
	wg.Wait()

	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	require.Equal(t, int64(1), firstResp.ProductID)
	require.True(t, firstResp.InStock)
	require.Equal(t, int64(2), secondResp.ProductID)
	require.False(t, secondResp.InStock)
}

func TestStockCheckClient_Check_ResponderFailure(t *testing.T) {
	ctx := context.Background()
	client, publisher, deliveries := newTestClient(t, time.Second)

	go func() {
		msg := <-publisher.published
		deliveries <- replyDelivery(t, msg.CorrelationId, productv1.StockCheckResponse{
			Error: productv1.ErrorInternal,
		})
	}()

	_, err := client.Check(ctx, 1, 3)

	require.ErrorIs(t, err, ErrStockCheckFailed)
	require.Contains(t, err.Error(), productv1.ErrorInternal)
}

func TestStockCheckClient_Check_PublishFailure(t *testing.T) {
	ctx := context.Background()
	client, publisher, _ := newTestClient(t, time.Second)
	publisher.failWith(errors.New("channel closed"))

	_, err := client.Check(ctx, 1, 3)

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStockCheckTimeout)

	// Запись несостоявшегося вызова удалена из реестра
	client.pending.mu.Lock()
	require.Empty(t, client.pending.calls)
	client.pending.mu.Unlock()
}

func TestStockCheckClient_Check_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, publisher, _ := newTestClient(t, time.Minute)

	go func() {
		<-publisher.published
		cancel()
	}()

	_, err := client.Check(ctx, 1, 3)

	require.ErrorIs(t, err, context.Canceled)
}

func TestStockCheckClient_Dispatch_MalformedReplyDropped(t *testing.T) {
	ctx := context.Background()
	client, publisher, deliveries := newTestClient(t, time.Second)

	go func() {
		msg := <-publisher.published
		// Сначала мусор, затем нормальный ответ: мусор не должен ломать dispatch
		deliveries <- amqp.Delivery{CorrelationId: msg.CorrelationId, Body: []byte("{not json")}
		deliveries <- amqp.Delivery{Body: []byte("{}")} // без correlation id
		deliveries <- replyDelivery(t, msg.CorrelationId, productv1.StockCheckResponse{InStock: true})
	}()

	response, err := client.Check(ctx, 1, 3)

	require.NoError(t, err)
	require.True(t, response.InStock)
}
