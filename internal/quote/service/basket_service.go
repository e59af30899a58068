package service

import (
	"context"
	"errors"
	"strings"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultBasketAttempts = 5

// ErrBasketItemNotFound is returned when updating a line that is not in the basket.
var ErrBasketItemNotFound = errors.New("basket item not found")

// BasketService manages the buyer's pre-submission staging list. Writes are versioned;
// a write that loses a race is replayed against a fresh read.
type BasketService struct {
	repo        *repository.BasketRepository
	quotes      *QuoteService
	maxAttempts int
	logger      *zap.Logger
}

func NewBasketService(repo *repository.BasketRepository, quotes *QuoteService, logger *zap.Logger) *BasketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BasketService{
		repo:        repo,
		quotes:      quotes,
		maxAttempts: defaultBasketAttempts,
		logger:      logger,
	}
}

// BasketItemInput is one line to stage.
type BasketItemInput struct {
	ProductID   string   `json:"product_id" binding:"required"`
	VariantID   *string  `json:"variant_id"`
	ProductName string   `json:"product_name"`
	SKU         string   `json:"sku"`
	Quantity    int      `json:"quantity" binding:"required"`
	UnitPrice   *float64 `json:"unit_price"`
	Note        string   `json:"note"`
}

func (in BasketItemInput) validate() error {
	if strings.TrimSpace(in.ProductID) == "" {
		return validationErr("product_id", "product_id is required")
	}
	if in.Quantity <= 0 {
		return validationErr("quantity", "quantity must be greater than zero")
	}
	if in.UnitPrice != nil && *in.UnitPrice < 0 {
		return validationErr("unit_price", "unit price cannot be negative")
	}
	return nil
}

func (in BasketItemInput) toItem() entity.BasketItem {
	var variant *string
	if in.VariantID != nil && *in.VariantID != "" {
		v := *in.VariantID
		variant = &v
	}
	return entity.BasketItem{
		ID:          uuid.New().String(),
		ProductID:   in.ProductID,
		VariantID:   variant,
		ProductName: in.ProductName,
		SKU:         in.SKU,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Note:        in.Note,
	}
}

// Get returns the buyer's basket, or an empty one if none exists yet.
func (s *BasketService) Get(ctx context.Context, userID string) (*entity.QuoteBasket, error) {
	b, err := s.repo.FindByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return emptyBasket(userID), nil
	}
	if err != nil {
		return nil, persistenceErr("load basket", err)
	}
	return b, nil
}

// AddItem merges by (product, variant): an existing line gains the quantity, otherwise
// the item is appended.
func (s *BasketService) AddItem(ctx context.Context, userID string, in *BasketItemInput) (*entity.QuoteBasket, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	item := in.toItem()
	return s.mutate(ctx, userID, true, func(items entity.BasketItems) (entity.BasketItems, error) {
		return mergeItem(items, item), nil
	})
}

// UpdateItemQuantity sets the quantity of one line.
func (s *BasketService) UpdateItemQuantity(ctx context.Context, userID, itemID string, quantity int) (*entity.QuoteBasket, error) {
	if quantity <= 0 {
		return nil, validationErr("quantity", "quantity must be greater than zero")
	}
	return s.mutate(ctx, userID, false, func(items entity.BasketItems) (entity.BasketItems, error) {
		for i := range items {
			if items[i].ID == itemID {
				items[i].Quantity = quantity
				return items, nil
			}
		}
		return nil, ErrBasketItemNotFound
	})
}

// RemoveItem drops one line. Missing baskets and items are not errors.
func (s *BasketService) RemoveItem(ctx context.Context, userID, itemID string) (*entity.QuoteBasket, error) {
	return s.mutate(ctx, userID, false, func(items entity.BasketItems) (entity.BasketItems, error) {
		return removeItems(items, map[string]bool{itemID: true}), nil
	})
}

// Clear empties the basket. The row itself is kept.
func (s *BasketService) Clear(ctx context.Context, userID string) (*entity.QuoteBasket, error) {
	return s.mutate(ctx, userID, false, func(entity.BasketItems) (entity.BasketItems, error) {
		return entity.BasketItems{}, nil
	})
}

// Replace overwrites all lines with the caller's computed end state.
func (s *BasketService) Replace(ctx context.Context, userID string, inputs []BasketItemInput) (*entity.QuoteBasket, error) {
	items := entity.BasketItems{}
	for _, in := range inputs {
		if err := in.validate(); err != nil {
			return nil, err
		}
		items = mergeItem(items, in.toItem())
	}
	return s.mutate(ctx, userID, true, func(entity.BasketItems) (entity.BasketItems, error) {
		return items, nil
	})
}

// SubmitBasketRequest turns the basket into a quote.
type SubmitBasketRequest struct {
	CompanyName string `json:"company_name"`
	ContactName string `json:"contact_name"`
	Notes       string `json:"notes"`
	SubmitNow   bool   `json:"submit_now"`
}

// SubmitBasketResult is the quote created from a basket.
type SubmitBasketResult struct {
	Quote   *entity.Quote `json:"quote"`
	Warning string        `json:"warning,omitempty"`
}

// Submit creates a quote from the basket items, optionally submits it for review, and
// removes the submitted lines from the basket. Lines added concurrently stay staged.
func (s *BasketService) Submit(ctx context.Context, actor Actor, req *SubmitBasketRequest) (*SubmitBasketResult, error) {
	basket, err := s.Get(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if len(basket.Items) == 0 {
		return nil, validationErr("items", "basket is empty")
	}

	inputs := make([]QuoteItemInput, 0, len(basket.Items))
	submitted := make(map[string]int, len(basket.Items))
	for _, it := range basket.Items {
		inputs = append(inputs, QuoteItemInput{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Note:        it.Note,
		})
		submitted[it.ID] = it.Quantity
	}

	q, err := s.quotes.CreateQuote(ctx, actor, &CreateQuoteRequest{
		CompanyName: req.CompanyName,
		ContactName: req.ContactName,
		Notes:       req.Notes,
		Items:       inputs,
	})
	if err != nil {
		return nil, err
	}
	result := &SubmitBasketResult{Quote: q}

	if req.SubmitNow {
		res, err := s.quotes.SubmitQuote(ctx, actor, q.ID)
		if err != nil {
			s.logger.Warn("submit quote created from basket", zap.String("quote_id", q.ID), zap.Error(err))
			result.Warning = "quote saved as draft but could not be submitted: " + err.Error()
		} else {
			result.Quote = res.Quote
			result.Warning = res.Warning
		}
	}

	_, err = s.mutate(ctx, actor.UserID, false, func(items entity.BasketItems) (entity.BasketItems, error) {
		return subtractItems(items, submitted), nil
	})
	if err != nil {
		s.logger.Warn("clear basket after submission", zap.String("buyer_id", actor.UserID), zap.Error(err))
		if result.Warning == "" {
			result.Warning = "quote created but the basket could not be cleared"
		}
	}
	return result, nil
}

// mutate runs a read-modify-write on the basket, replaying fn on a fresh read when a
// concurrent write wins.
func (s *BasketService) mutate(ctx context.Context, userID string, create bool, fn func(entity.BasketItems) (entity.BasketItems, error)) (*entity.QuoteBasket, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		b, err := s.repo.FindByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			if !create {
				// nothing staged: removals and clears are no-ops
				if _, err := fn(entity.BasketItems{}); err != nil {
					return nil, err
				}
				return emptyBasket(userID), nil
			}
			items, err := fn(entity.BasketItems{})
			if err != nil {
				return nil, err
			}
			b = &entity.QuoteBasket{ClerkUserID: userID, Items: items, Version: 1}
			err = s.repo.Create(ctx, b)
			if errors.Is(err, repository.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, persistenceErr("create basket", err)
			}
			return b, nil
		}
		if err != nil {
			return nil, persistenceErr("load basket", err)
		}

		items, err := fn(cloneItems(b.Items))
		if err != nil {
			return nil, err
		}
		err = s.repo.UpdateItems(ctx, b, items)
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Debug("basket write conflict, retrying", zap.String("buyer_id", userID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, persistenceErr("save basket", err)
		}
		return b, nil
	}
	return nil, &ConflictError{}
}

func emptyBasket(userID string) *entity.QuoteBasket {
	return &entity.QuoteBasket{ClerkUserID: userID, Items: entity.BasketItems{}}
}

func cloneItems(items entity.BasketItems) entity.BasketItems {
	out := make(entity.BasketItems, len(items))
	copy(out, items)
	return out
}

func mergeItem(items entity.BasketItems, item entity.BasketItem) entity.BasketItems {
	for i := range items {
		if items[i].SameLine(item) {
			items[i].Quantity += item.Quantity
			if item.Note != "" {
				items[i].Note = item.Note
			}
			return items
		}
	}
	return append(items, item)
}

// subtractItems takes the submitted quantities off their lines. Quantity merged into a
// line after the snapshot stays staged.
func subtractItems(items entity.BasketItems, submitted map[string]int) entity.BasketItems {
	out := make(entity.BasketItems, 0, len(items))
	for _, it := range items {
		if q, ok := submitted[it.ID]; ok {
			it.Quantity -= q
			if it.Quantity <= 0 {
				continue
			}
		}
		out = append(out, it)
	}
	return out
}

func removeItems(items entity.BasketItems, ids map[string]bool) entity.BasketItems {
	out := make(entity.BasketItems, 0, len(items))
	for _, it := range items {
		if !ids[it.ID] {
			out = append(out, it)
		}
	}
	return out
}
