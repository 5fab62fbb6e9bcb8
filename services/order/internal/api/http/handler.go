package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hector-delgado/OrderManagementSystem/platform/observability"
	rabbitclient "github.com/hector-delgado/OrderManagementSystem/services/order/internal/client/rabbitmq"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/service"
)

// Handler содержит HTTP-обработчики для Order Service.
// Зависит от service слоя, но не знает о деталях реализации (RabbitMQ, БД и т.д.)
type Handler struct {
	logger       *zap.Logger
	orderService *service.OrderService
}

// NewHandler создаёт новый HTTP handler
func NewHandler(logger *zap.Logger, orderService *service.OrderService) *Handler {
	return &Handler{
		logger:       logger,
		orderService: orderService,
	}
}

// OrderRequest представляет HTTP запрос на создание заказа.
// Указатели позволяют отличить отсутствующее поле от нулевого значения.
type OrderRequest struct {
	CustomerID *int64 `json:"customer_id"`
	ProductID  *int64 `json:"product_id"`
	Quantity   *int32 `json:"quantity"`
}

// OrderResponse представляет HTTP ответ с информацией о заказе
type OrderResponse struct {
	ID               string `json:"id"`
	CustomerID       int64  `json:"customer_id"`
	ProductID        int64  `json:"product_id"`
	Quantity         int32  `json:"quantity"`
	TotalAmountCents int64  `json:"total_amount_cents"`
	CreatedAt        int64  `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toOrderResponse(order repository.Order) OrderResponse {
	return OrderResponse{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		ProductID:        order.ProductID,
		Quantity:         order.Quantity,
		TotalAmountCents: order.TotalAmountCents,
		CreatedAt:        order.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// PostOrders обрабатывает POST /orders - создание нового заказа
func (h *Handler) PostOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	var reqBody OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		log.Warn("Failed to decode order request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if reqBody.CustomerID == nil || reqBody.ProductID == nil || reqBody.Quantity == nil {
		writeError(w, http.StatusBadRequest, "customer_id, product_id and quantity are required")
		return
	}

	order, err := h.orderService.CreateOrder(ctx, *reqBody.CustomerID, *reqBody.ProductID, *reqBody.Quantity)
	if err != nil {
		h.writeCreateOrderError(w, log, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

// writeCreateOrderError переводит ошибку сценария оформления заказа в HTTP статус:
// невалидные параметры - 400, нет остатка - 409, stock-check недоступен - 503.
func (h *Handler) writeCreateOrderError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOrder):
		writeError(w, http.StatusBadRequest, "customer_id, product_id must be positive and quantity must be > 0")
	case errors.Is(err, service.ErrStockNotAvailable):
		writeError(w, http.StatusConflict, "stock is not available for the requested product")
	case errors.Is(err, rabbitclient.ErrStockCheckTimeout), errors.Is(err, rabbitclient.ErrStockCheckFailed):
		log.Warn("Stock check unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "stock availability is temporarily unknown, try again later")
	default:
		log.Error("Order creation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// GetOrdersId обрабатывает GET /orders/{id} - получение заказа по ID
func (h *Handler) GetOrdersId(w http.ResponseWriter, r *http.Request, id string) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	order, err := h.orderService.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		log.Error("Failed to get order", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetOrders обрабатывает GET /orders - список заказов, новые первыми
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.L(ctx, h.logger)

	orders, err := h.orderService.ListOrders(ctx)
	if err != nil {
		log.Error("Failed to list orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}

	writeJSON(w, http.StatusOK, resp)
}
