package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopapp/api/internal/platform/pagination"
	"github.com/shopapp/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the order does not exist or belongs to another buyer.
var ErrOrderNotFound = errors.New("order service: order not found")

// ErrOrderNotPending indicates a fulfilment was attempted on a non-pending order.
var ErrOrderNotPending = errors.New("order service: order is not pending")

// ErrOrderUnavailable indicates a backend dependency failed.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// OrderServiceDeps wires the repository and clock for order reads and fulfilment.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger func(context.Context, string, map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		now:    func() time.Time { return deps.Clock().UTC() },
		logger: logger,
	}, nil
}

func (s *orderService) ListForBuyer(ctx context.Context, buyerID string, page pagination.Params) (OrderList, error) {
	if s == nil || s.orders == nil {
		return OrderList{}, ErrOrderUnavailable
	}
	if strings.TrimSpace(buyerID) == "" {
		return OrderList{}, ErrOrderInvalidInput
	}
	result, err := s.orders.ListByBuyer(ctx, buyerID, pagination.Must(page))
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return OrderList{}, ErrOrderInvalidInput
		}
		return OrderList{}, s.translateRepoError(err)
	}
	return OrderList{Orders: result.Orders, NextPageToken: result.NextPageToken}, nil
}

func (s *orderService) GetForBuyer(ctx context.Context, buyerID, orderID string) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	if strings.TrimSpace(buyerID) == "" || strings.TrimSpace(orderID) == "" {
		return Order{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	// Ownership is part of the lookup; another buyer's order reads as absent.
	if order.BuyerID != buyerID {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) Fulfil(ctx context.Context, cmd FulfilOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	tracking := strings.TrimSpace(cmd.TrackingNumber)
	if orderID == "" || tracking == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.MarkFulfilled(ctx, orderID, tracking, s.now())
	if err != nil {
		var orderErr *repositories.OrderError
		if errors.As(err, &orderErr) {
			switch orderErr.Code {
			case repositories.OrderErrorNotFound:
				return Order{}, ErrOrderNotFound
			case repositories.OrderErrorInvalidState:
				return Order{}, ErrOrderNotPending
			}
		}
		return Order{}, s.translateRepoError(err)
	}

	s.logger(ctx, "order.fulfilled", map[string]any{
		"order_id": order.ID,
		"tracking": tracking,
	})
	return order, nil
}

func (s *orderService) HasPendingOrders(ctx context.Context, buyerID string) (bool, error) {
	if s == nil || s.orders == nil {
		return false, ErrOrderUnavailable
	}
	if strings.TrimSpace(buyerID) == "" {
		return false, ErrOrderInvalidInput
	}
	count, err := s.orders.CountPending(ctx, buyerID)
	if err != nil {
		return false, s.translateRepoError(err)
	}
	return count > 0, nil
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFound(err) {
		return ErrOrderNotFound
	}
	return ErrOrderUnavailable
}
