package rabbitmq

import (
	"sync"

	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// pendingCalls — реестр ожидающих ответа вызовов, ключ — correlation id.
// Безопасен для конкурентного доступа: заказы оформляются параллельно и каждый
// ждёт свой ответ независимо от остальных.
type pendingCalls struct {
	mu    sync.Mutex
	calls map[string]chan productv1.StockCheckResponse
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{
		calls: make(map[string]chan productv1.StockCheckResponse),
	}
}

// add регистрирует новый ожидающий вызов и возвращает канал его ответа.
// Канал с буфером 1: доставивший ответ не блокируется, даже если ожидающий
// уже ушёл по таймауту.
func (p *pendingCalls) add(correlationID string) chan productv1.StockCheckResponse {
	ch := make(chan productv1.StockCheckResponse, 1)

	p.mu.Lock()
	p.calls[correlationID] = ch
	p.mu.Unlock()

	return ch
}

// remove удаляет вызов из реестра и возвращает его канал.
// Удаление под мьютексом гарантирует ровно одно разрешение на correlation id:
// либо ответ, либо таймаут заберёт запись, второй найдёт пустоту.
func (p *pendingCalls) remove(correlationID string) (chan productv1.StockCheckResponse, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.calls[correlationID]
	if ok {
		delete(p.calls, correlationID)
	}
	return ch, ok
}

// resolve доставляет ответ ожидающему вызову. Неизвестный или уже разрешённый
// correlation id — no-op: ответ мог прийти после таймаута вызова.
func (p *pendingCalls) resolve(correlationID string, response productv1.StockCheckResponse) bool {
	ch, ok := p.remove(correlationID)
	if !ok {
		return false
	}
	ch <- response
	return true
}
