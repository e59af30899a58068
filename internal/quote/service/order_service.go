package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/google/uuid"
)

// OrderService creates orders from converted quotes.
type OrderService struct {
	orderRepo *repository.OrderRepository
}

func NewOrderService(orderRepo *repository.OrderRepository) *OrderService {
	return &OrderService{orderRepo: orderRepo}
}

// CreateOrder inserts the order for quote using orderID. It is idempotent per quote:
// an existing order is returned unchanged.
func (s *OrderService) CreateOrder(ctx context.Context, quote *entity.Quote, orderID string) (*entity.Order, error) {
	if existing, err := s.orderRepo.FindByQuote(ctx, quote.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find order: %w", err)
	}

	code, err := s.orderRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate order number: %w", err)
	}

	order := &entity.Order{
		ID:          orderID,
		OrderNumber: code,
		QuoteID:     quote.ID,
		ClerkUserID: quote.ClerkUserID,
		Status:      entity.OrderStatusPendingPayment,
		Total:       quote.Total(),
		Currency:    quote.Currency,
	}
	for i, item := range quote.Items {
		price := item.QuotedPrice
		if price == nil {
			price = item.UnitPrice
		}
		order.Items = append(order.Items, entity.OrderItem{
			ID:          uuid.New().String()[:32],
			OrderID:     orderID,
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			SKU:         item.SKU,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			SortOrder:   i + 1,
		})
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

// GetOrder returns an order by id.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}
