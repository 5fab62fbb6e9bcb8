// Package productv1 описывает wire-контракт stock-check RPC поверх RabbitMQ.
// Контракт общий для requester-а (order) и responder-а (product): очередь запросов,
// JSON-схемы сообщений и коды ошибок responder-а.
package productv1

// StockCheckQueue — имя очереди, в которую order публикует запросы на проверку
// и резервирование остатков. Очередь объявляет и слушает product.
const StockCheckQueue = "product.stock-check"

// Коды поля error в StockCheckResponse. Пустое поле означает успешную обработку
// (включая бизнес-отказ inStock=false — это не ошибка).
const (
	// ErrorMalformedRequest — запрос не распарсился или не прошёл валидацию.
	ErrorMalformedRequest = "malformed_request"
	// ErrorInternal — responder не смог обработать запрос (например, недоступно хранилище).
	ErrorInternal = "internal_error"
)

// StockCheckRequest — запрос на резервирование товара. Создаётся один раз на
// попытку оформления заказа и не изменяется.
type StockCheckRequest struct {
	ProductID         int64 `json:"productId"`
	RequestedQuantity int32 `json:"requestedQuantity"`
}

// StockCheckResponse — ответ responder-а. TotalAmount считается в минорных
// единицах (копейки/центы) как priceCents * requestedQuantity по цене на момент
// списания. AvailableStock — остаток после списания при inStock=true, либо
// неизменённый остаток при inStock=false.
type StockCheckResponse struct {
	ProductID      int64  `json:"productId"`
	AvailableStock int32  `json:"availableStock"`
	InStock        bool   `json:"inStock"`
	TotalAmount    int64  `json:"totalAmount"`
	Error          string `json:"error,omitempty"`
}
