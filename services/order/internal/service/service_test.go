package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	rabbitclient "github.com/hector-delgado/OrderManagementSystem/services/order/internal/client/rabbitmq"
	"github.com/hector-delgado/OrderManagementSystem/services/order/internal/repository"
	productv1 "github.com/hector-delgado/OrderManagementSystem/services/product/v1"
)

// MockStockChecker - мок для StockChecker
type MockStockChecker struct {
	mock.Mock
}

func (m *MockStockChecker) Check(ctx context.Context, productID int64, quantity int32) (productv1.StockCheckResponse, error) {
	args := m.Called(ctx, productID, quantity)
	return args.Get(0).(productv1.StockCheckResponse), args.Error(1)
}

// MockOrderRepository - мок для repository.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Save(ctx context.Context, order repository.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (repository.Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(repository.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context) ([]repository.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Order), args.Error(1)
}

// MockOrderEventPublisher - мок для OrderEventPublisher
type MockOrderEventPublisher struct {
	mock.Mock
}

func (m *MockOrderEventPublisher) PublishOrderCreated(ctx context.Context, order repository.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func newTestService(t *testing.T) (*OrderService, *MockStockChecker, *MockOrderRepository, *MockOrderEventPublisher) {
	t.Helper()

	stockChecker := new(MockStockChecker)
	orderRepo := new(MockOrderRepository)
	publisher := new(MockOrderEventPublisher)

	svc := NewOrderService(zap.NewNop(), stockChecker, orderRepo, publisher)
	return svc, stockChecker, orderRepo, publisher
}

func TestOrderService_CreateOrder_Success(t *testing.T) {
	// Arrange
	svc, stockChecker, orderRepo, publisher := newTestService(t)
	ctx := context.Background()

	stockChecker.On("Check", ctx, int64(1), int32(3)).Return(productv1.StockCheckResponse{
		ProductID:      1,
		AvailableStock: 7,
		InStock:        true,
		TotalAmount:    14997,
	}, nil)
	orderRepo.On("Save", ctx, mock.AnythingOfType("repository.Order")).Return(nil)
	publisher.On("PublishOrderCreated", ctx, mock.AnythingOfType("repository.Order")).Return(nil)

	// Act
	order, err := svc.CreateOrder(ctx, 42, 1, 3)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, int64(42), order.CustomerID)
	assert.Equal(t, int64(1), order.ProductID)
	assert.Equal(t, int32(3), order.Quantity)
	// Итоговая сумма берётся из ответа product service как есть
	assert.Equal(t, int64(14997), order.TotalAmountCents)
	assert.NotZero(t, order.CreatedAt)

	stockChecker.AssertExpectations(t)
	orderRepo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestOrderService_CreateOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	// Arrange
	svc, stockChecker, orderRepo, publisher := newTestService(t)
	ctx := context.Background()

	stockChecker.On("Check", ctx, int64(1), int32(1)).Return(productv1.StockCheckResponse{
		ProductID:      1,
		AvailableStock: 9,
		InStock:        true,
		TotalAmount:    4999,
	}, nil)
	orderRepo.On("Save", ctx, mock.AnythingOfType("repository.Order")).Return(nil)
	publisher.On("PublishOrderCreated", ctx, mock.AnythingOfType("repository.Order")).
		Return(errors.New("kafka is down"))

	// Act
	order, err := svc.CreateOrder(ctx, 42, 1, 1)

	// Assert: заказ оформлен, ошибка публикации не протекает наружу
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	publisher.AssertExpectations(t)
}

func TestOrderService_CreateOrder_StockNotAvailable(t *testing.T) {
	// Arrange
	svc, stockChecker, orderRepo, _ := newTestService(t)
	ctx := context.Background()

	stockChecker.On("Check", ctx, int64(1), int32(5)).Return(productv1.StockCheckResponse{
		ProductID:      1,
		AvailableStock: 2,
		InStock:        false,
		TotalAmount:    9995,
	}, nil)

	// Act
	_, err := svc.CreateOrder(ctx, 42, 1, 5)

	// Assert: заказ не сохраняется
	require.ErrorIs(t, err, ErrStockNotAvailable)
	orderRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_StockCheckTimeout(t *testing.T) {
	// Arrange
	svc, stockChecker, orderRepo, _ := newTestService(t)
	ctx := context.Background()

	stockChecker.On("Check", ctx, int64(1), int32(1)).
		Return(productv1.StockCheckResponse{}, rabbitclient.ErrStockCheckTimeout)

	// Act
	_, err := svc.CreateOrder(ctx, 42, 1, 1)

	// Assert: таймаут означает "остаток неизвестен", заказ не создаётся
	require.ErrorIs(t, err, rabbitclient.ErrStockCheckTimeout)
	orderRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_SaveError(t *testing.T) {
	// Arrange
	svc, stockChecker, orderRepo, publisher := newTestService(t)
	ctx := context.Background()

	stockChecker.On("Check", ctx, int64(1), int32(1)).Return(productv1.StockCheckResponse{
		ProductID:      1,
		AvailableStock: 9,
		InStock:        true,
		TotalAmount:    4999,
	}, nil)
	orderRepo.On("Save", ctx, mock.AnythingOfType("repository.Order")).
		Return(errors.New("connection refused"))

	// Act
	_, err := svc.CreateOrder(ctx, 42, 1, 1)

	// Assert
	require.Error(t, err)
	publisher.AssertNotCalled(t, "PublishOrderCreated", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_InvalidParameters(t *testing.T) {
	svc, stockChecker, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		customerID int64
		productID  int64
		quantity   int32
	}{
		{name: "zero customer", customerID: 0, productID: 1, quantity: 1},
		{name: "zero product", customerID: 42, productID: 0, quantity: 1},
		{name: "zero quantity", customerID: 42, productID: 1, quantity: 0},
		{name: "negative quantity", customerID: 42, productID: 1, quantity: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(ctx, tt.customerID, tt.productID, tt.quantity)
			require.ErrorIs(t, err, ErrInvalidOrder)
		})
	}

	stockChecker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_GetOrder_NotFound(t *testing.T) {
	// Arrange
	svc, _, orderRepo, _ := newTestService(t)
	ctx := context.Background()

	orderRepo.On("GetByID", ctx, "missing").Return(repository.Order{}, repository.ErrNotFound)

	// Act
	_, err := svc.GetOrder(ctx, "missing")

	// Assert
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOrderService_ListOrders(t *testing.T) {
	// Arrange
	svc, _, orderRepo, _ := newTestService(t)
	ctx := context.Background()

	expected := []repository.Order{
		{ID: "order-2", CreatedAt: 200},
		{ID: "order-1", CreatedAt: 100},
	}
	orderRepo.On("List", ctx).Return(expected, nil)

	// Act
	orders, err := svc.ListOrders(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expected, orders)
}
