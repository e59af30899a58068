package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/permission"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultValidityDays = 30

// ActionResult is returned by every successful mutation. Warning carries side-effect
// failures that did not undo the committed change.
type ActionResult struct {
	Success bool          `json:"success"`
	Quote   *entity.Quote `json:"quote"`
	Warning string        `json:"warning,omitempty"`
}

// QuoteView is a quote as one caller may see it.
type QuoteView struct {
	Quote             entity.Quote       `json:"quote"`
	Permissions       permission.Set     `json:"permissions"`
	AllowedNextStates []lifecycle.Status `json:"allowed_next_states"`
	Locked            bool               `json:"locked"`
}

// QuoteService is the only code path that changes a quote's status, pricing or terminal fields.
type QuoteService struct {
	quoteRepo   *repository.QuoteRepository
	auditRepo   *repository.AuditLogRepository
	messageRepo *repository.MessageRepository
	notifier    Notifier
	orders      OrderCreator
	validity    time.Duration
	currency    string
	logger      *zap.Logger
	now         func() time.Time
	nextCode    func(ctx context.Context) (string, error)
}

func NewQuoteService(quoteRepo *repository.QuoteRepository, auditRepo *repository.AuditLogRepository, messageRepo *repository.MessageRepository, logger *zap.Logger) *QuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteService{
		quoteRepo:   quoteRepo,
		auditRepo:   auditRepo,
		messageRepo: messageRepo,
		validity:    defaultValidityDays * 24 * time.Hour,
		currency:    "INR",
		logger:      logger,
		now:         time.Now,
		nextCode:    quoteRepo.GenerateCode,
	}
}

// SetNotifier injects the event notifier.
func (s *QuoteService) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetOrderCreator injects the order collaborator used on conversion.
func (s *QuoteService) SetOrderCreator(o OrderCreator) {
	s.orders = o
}

// SetValidityDays sets how long an approved quote stays convertible.
func (s *QuoteService) SetValidityDays(days int) {
	if days > 0 {
		s.validity = time.Duration(days) * 24 * time.Hour
	}
}

// SetCurrency sets the currency of new quotes.
func (s *QuoteService) SetCurrency(currency string) {
	if currency != "" {
		s.currency = currency
	}
}

// === reads ===

// GetQuote returns the quote with the caller's capabilities. Buyers only see their own
// quotes, with admin pricing removed unless they may view it.
func (s *QuoteService) GetQuote(ctx context.Context, actor Actor, id string) (*QuoteView, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	perms := resolve(actor, q)
	return &QuoteView{
		Quote:             viewFor(q, perms),
		Permissions:       perms,
		AllowedNextStates: lifecycle.AllowedNextStates(q.Status),
		Locked:            lifecycle.IsQuoteLocked(q.Status),
	}, nil
}

// GetQuotePermissions returns only the capability record.
func (s *QuoteService) GetQuotePermissions(ctx context.Context, actor Actor, id string) (permission.Set, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return permission.Set{}, err
	}
	return resolve(actor, q), nil
}

// GetQuoteAuditLog returns the quote history, oldest first. Totals are hidden from
// buyers who may not view pricing.
func (s *QuoteService) GetQuoteAuditLog(ctx context.Context, actor Actor, id string) ([]entity.QuoteAuditLog, error) {
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.auditRepo.FindByQuote(ctx, id)
	if err != nil {
		return nil, persistenceErr("load audit log", err)
	}
	if !resolve(actor, q).CanViewPricing {
		for i := range entries {
			entries[i] = entries[i].Redacted()
		}
	}
	return entries, nil
}

// AllowedNextStates parses a status and returns its successors.
func (s *QuoteService) AllowedNextStates(raw string) ([]lifecycle.Status, error) {
	st, err := lifecycle.ParseStatus(raw)
	if err != nil {
		return nil, validationErr("status", err.Error())
	}
	return lifecycle.AllowedNextStates(st), nil
}

// ListQuotes lists quotes. Buyers are restricted to their own.
func (s *QuoteService) ListQuotes(ctx context.Context, actor Actor, page, pageSize int, filters map[string]string) ([]entity.Quote, int64, error) {
	if filters == nil {
		filters = map[string]string{}
	}
	if !actor.IsAdmin {
		filters["clerk_user_id"] = actor.UserID
	}
	if raw := filters["status"]; raw != "" {
		if _, err := lifecycle.ParseStatus(raw); err != nil {
			return nil, 0, validationErr("status", err.Error())
		}
	}

	items, total, err := s.quoteRepo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, 0, persistenceErr("list quotes", err)
	}
	for i := range items {
		items[i] = viewFor(&items[i], resolve(actor, &items[i]))
	}
	return items, total, nil
}

// === creation ===

// QuoteItemInput is one requested line.
type QuoteItemInput struct {
	ProductID   string   `json:"product_id" binding:"required"`
	VariantID   *string  `json:"variant_id"`
	ProductName string   `json:"product_name"`
	SKU         string   `json:"sku"`
	Quantity    int      `json:"quantity" binding:"required"`
	UnitPrice   *float64 `json:"unit_price"`
	QuotedPrice *float64 `json:"quoted_price"`
	Note        string   `json:"note"`
}

// CreateQuoteRequest creates a draft quote.
type CreateQuoteRequest struct {
	CompanyName string           `json:"company_name"`
	ContactName string           `json:"contact_name"`
	Notes       string           `json:"notes"`
	Items       []QuoteItemInput `json:"items" binding:"required"`
}

const maxCodeAttempts = 3

// CreateQuote creates a draft quote owned by the buyer.
func (s *QuoteService) CreateQuote(ctx context.Context, actor Actor, req *CreateQuoteRequest) (*entity.Quote, error) {
	if actor.IsAdmin || actor.IsSystem {
		return nil, &AuthorizationError{Action: "create", Reason: "quotes are created by buyers"}
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	id := uuid.New().String()[:32]
	items := buildItems(id, req.Items)
	for i := range items {
		items[i].QuotedPrice = nil
	}
	q := &entity.Quote{
		ID:             id,
		Status:         lifecycle.StatusDraft,
		ClerkUserID:    actor.UserID,
		UserType:       string(actor.UserType),
		CompanyName:    req.CompanyName,
		ContactName:    req.ContactName,
		Notes:          req.Notes,
		EstimatedTotal: estimate(items),
		Currency:       s.currency,
		Version:        1,
		Items:          items,
	}
	total := q.EstimatedTotal

	// numbers are MAX+1, so two buyers can race for the same one
	for attempt := 1; ; attempt++ {
		code, err := s.nextCode(ctx)
		if err != nil {
			return nil, persistenceErr("generate quote number", err)
		}
		q.QuoteNumber = code
		audit := &entity.QuoteAuditLog{
			ActionType: entity.AuditCreated,
			NewStatus:  string(lifecycle.StatusDraft),
			NewTotal:   &total,
			ActorID:    actor.UserID,
		}
		err = s.quoteRepo.Create(ctx, q, audit)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt == maxCodeAttempts {
			return nil, persistenceErr("create quote", err)
		}
		s.logger.Warn("quote number taken, retrying", zap.String("quote_number", code), zap.Int("attempt", attempt))
	}

	s.logger.Info("quote created",
		zap.String("quote_id", q.ID),
		zap.String("quote_number", q.QuoteNumber),
		zap.String("buyer_id", actor.UserID),
		zap.Int("items", len(items)))
	return q, nil
}

// === mutations ===

// SubmitQuote moves a draft to pending. The owner or an admin may submit.
func (s *QuoteService) SubmitQuote(ctx context.Context, actor Actor, id string) (*ActionResult, error) {
	return s.run(ctx, actor, id, action{
		name:   "submit",
		target: lifecycle.StatusPending,
		check: func(q *entity.Quote) error {
			if len(q.Items) == 0 {
				return validationErr("items", "cannot submit a quote without items")
			}
			return nil
		},
		build: func(q *entity.Quote, now time.Time) mutation {
			updates := map[string]interface{}{
				"status":       string(lifecycle.StatusPending),
				"submitted_at": now,
			}
			if !actor.IsAdmin {
				updates["user_type"] = string(actor.UserType)
			}
			return mutation{
				updates: updates,
				audit:   &entity.QuoteAuditLog{ActionType: entity.AuditStatusChanged},
			}
		},
	})
}

// StartReview moves a pending quote to reviewing.
func (s *QuoteService) StartReview(ctx context.Context, actor Actor, id string) (*ActionResult, error) {
	return s.run(ctx, actor, id, action{
		name:       "review",
		target:     lifecycle.StatusReviewing,
		adminOnly:  true,
		capability: func(p permission.Set) bool { return p.CanEditQuote },
		build: func(q *entity.Quote, now time.Time) mutation {
			return mutation{
				updates: map[string]interface{}{
					"status":               string(lifecycle.StatusReviewing),
					"reviewing_started_at": now,
				},
				audit: &entity.QuoteAuditLog{ActionType: entity.AuditStatusChanged},
			}
		},
	})
}

// ApproveQuote approves a quote under review and starts its validity period.
func (s *QuoteService) ApproveQuote(ctx context.Context, actor Actor, id, notes string) (*ActionResult, error) {
	return s.run(ctx, actor, id, action{
		name:       "approve",
		target:     lifecycle.StatusApproved,
		adminOnly:  true,
		capability: func(p permission.Set) bool { return p.CanApprove },
		build: func(q *entity.Quote, now time.Time) mutation {
			expires := now.Add(s.validity)
			return mutation{
				updates: map[string]interface{}{
					"status":      string(lifecycle.StatusApproved),
					"approved_at": now,
					"approved_by": actor.UserID,
					"expires_at":  expires,
				},
				audit: &entity.QuoteAuditLog{ActionType: entity.AuditApproved, Notes: notes},
			}
		},
		event: entity.AuditApproved,
	})
}

// RejectQuote rejects a pending or reviewing quote. The reason is required.
func (s *QuoteService) RejectQuote(ctx context.Context, actor Actor, id, reason string) (*ActionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationErr("reason", "a rejection reason is required")
	}
	return s.run(ctx, actor, id, action{
		name:       "reject",
		target:     lifecycle.StatusRejected,
		adminOnly:  true,
		capability: func(p permission.Set) bool { return p.CanReject },
		build: func(q *entity.Quote, now time.Time) mutation {
			return mutation{
				updates: map[string]interface{}{
					"status":           string(lifecycle.StatusRejected),
					"rejected_at":      now,
					"rejected_by":      actor.UserID,
					"rejection_reason": reason,
				},
				audit: &entity.QuoteAuditLog{ActionType: entity.AuditRejected, Notes: reason},
			}
		},
		event:  entity.AuditRejected,
		reason: reason,
	})
}

// ItemPrice sets the quoted unit price of one line.
type ItemPrice struct {
	ItemID      string  `json:"item_id" binding:"required"`
	QuotedPrice float64 `json:"quoted_price"`
}

// SetPricingRequest carries the final pricing of a quote.
type SetPricingRequest struct {
	Total         float64     `json:"total" binding:"required"`
	Subtotal      *float64    `json:"subtotal"`
	TaxTotal      *float64    `json:"tax_total"`
	DiscountTotal *float64    `json:"discount_total"`
	ItemPrices    []ItemPrice `json:"item_prices"`
	Notes         string      `json:"notes"`
}

// SetPricing records final pricing. Status does not change.
func (s *QuoteService) SetPricing(ctx context.Context, actor Actor, id string, req *SetPricingRequest) (*ActionResult, error) {
	if req.Total <= 0 {
		return nil, validationErr("total", "total must be greater than zero")
	}
	for _, part := range []*float64{req.Subtotal, req.TaxTotal, req.DiscountTotal} {
		if part != nil && *part < 0 {
			return nil, validationErr("total", "pricing components cannot be negative")
		}
	}
	for _, ip := range req.ItemPrices {
		if ip.QuotedPrice < 0 {
			return nil, validationErr("item_prices", "quoted prices cannot be negative")
		}
	}

	return s.run(ctx, actor, id, action{
		name:       "set pricing on",
		adminOnly:  true,
		capability: func(p permission.Set) bool { return p.CanSetPricing },
		check: func(q *entity.Quote) error {
			_, err := applyItemPrices(q.Items, req.ItemPrices)
			return err
		},
		build: func(q *entity.Quote, now time.Time) mutation {
			oldTotal := q.Total()
			newTotal := req.Total
			m := mutation{
				updates: map[string]interface{}{
					"final_total":    newTotal,
					"subtotal":       req.Subtotal,
					"tax_total":      req.TaxTotal,
					"discount_total": req.DiscountTotal,
				},
				audit: &entity.QuoteAuditLog{
					ActionType:     entity.AuditPricingUpdated,
					OldTotal:       &oldTotal,
					NewTotal:       &newTotal,
					PricingChanged: true,
					Notes:          req.Notes,
				},
			}
			if len(req.ItemPrices) > 0 {
				m.items, _ = applyItemPrices(q.Items, req.ItemPrices)
			}
			return m
		},
	})
}

// SetPricingVisibility releases or hides final pricing for the buyer.
func (s *QuoteService) SetPricingVisibility(ctx context.Context, actor Actor, id string, visible bool) (*ActionResult, error) {
	return s.run(ctx, actor, id, action{
		name:       "change pricing visibility of",
		adminOnly:  true,
		capability: func(p permission.Set) bool { return p.CanEditQuote },
		check: func(q *entity.Quote) error {
			if q.PricingVisible == visible {
				state := "hidden"
				if visible {
					state = "visible"
				}
				return validationErr("visible", fmt.Sprintf("pricing is already %s", state))
			}
			return nil
		},
		build: func(q *entity.Quote, now time.Time) mutation {
			return mutation{
				updates: map[string]interface{}{"pricing_visible": visible},
				audit: &entity.QuoteAuditLog{
					ActionType: entity.AuditPricingVisibilityChanged,
					Metadata:   entity.JSONB{"pricing_visible": visible},
				},
			}
		},
	})
}

// UpdateItems replaces the lines of a quote that is not yet locked.
func (s *QuoteService) UpdateItems(ctx context.Context, actor Actor, id string, inputs []QuoteItemInput, notes string) (*ActionResult, error) {
	if err := validateItems(inputs); err != nil {
		return nil, err
	}
	return s.run(ctx, actor, id, action{
		name:       "edit",
		adminOnly:  true,
		capability: func(p permission.Set) bool { return p.CanEditQuote },
		check: func(q *entity.Quote) error {
			if lifecycle.IsQuoteLocked(q.Status) {
				return validationErr("status", fmt.Sprintf("quote is locked in '%s' status and its items cannot be changed", q.Status))
			}
			return nil
		},
		build: func(q *entity.Quote, now time.Time) mutation {
			items := buildItems(q.ID, inputs)
			oldTotal := q.EstimatedTotal
			newTotal := estimate(items)
			return mutation{
				updates: map[string]interface{}{"estimated_total": newTotal},
				items:   items,
				audit: &entity.QuoteAuditLog{
					ActionType:     entity.AuditItemsUpdated,
					OldTotal:       &oldTotal,
					NewTotal:       &newTotal,
					PricingChanged: oldTotal != newTotal,
					Notes:          notes,
					Metadata:       entity.JSONB{"item_count": len(items)},
				},
			}
		},
	})
}

// ConvertToOrder converts an approved quote. The order id is allocated up front and
// committed with the quote; the order itself is created afterwards.
func (s *QuoteService) ConvertToOrder(ctx context.Context, actor Actor, id string) (*ActionResult, error) {
	orderID := uuid.New().String()[:32]
	return s.run(ctx, actor, id, action{
		name:       "convert",
		target:     lifecycle.StatusConverted,
		capability: func(p permission.Set) bool { return p.CanConvertToOrder },
		denied:     "only verified business buyers can convert an approved quote to an order",
		check: func(q *entity.Quote) error {
			if q.ExpiresAt != nil && !q.ExpiresAt.After(s.now()) {
				return validationErr("expires_at", "quote validity has ended and it can no longer be converted")
			}
			return nil
		},
		build: func(q *entity.Quote, now time.Time) mutation {
			return mutation{
				updates: map[string]interface{}{
					"status":       string(lifecycle.StatusConverted),
					"converted_at": now,
					"order_id":     orderID,
				},
				audit: &entity.QuoteAuditLog{
					ActionType: entity.AuditConverted,
					Metadata:   entity.JSONB{"order_id": orderID},
				},
			}
		},
		event:   entity.AuditConverted,
		orderID: orderID,
	})
}

// MarkExpired expires an approved quote whose validity has ended. The sweep calls it for
// every due quote; admins may trigger it early for a single due quote.
func (s *QuoteService) MarkExpired(ctx context.Context, actor Actor, id string) (*ActionResult, error) {
	return s.run(ctx, actor, id, action{
		name:        "expire",
		target:      lifecycle.StatusExpired,
		adminOnly:   true,
		allowSystem: true,
		check: func(q *entity.Quote) error {
			if q.ExpiresAt == nil || q.ExpiresAt.After(s.now()) {
				return validationErr("expires_at", "quote validity has not ended yet")
			}
			return nil
		},
		build: func(q *entity.Quote, now time.Time) mutation {
			return mutation{
				updates: map[string]interface{}{
					"status":     string(lifecycle.StatusExpired),
					"expired_at": now,
				},
				audit: &entity.QuoteAuditLog{ActionType: entity.AuditExpired},
			}
		},
		event: entity.AuditExpired,
	})
}

// EnsureOrder creates the order of a converted quote whose order was not created at
// conversion time. It returns the existing order when there is one.
func (s *QuoteService) EnsureOrder(ctx context.Context, actor Actor, id string) (*entity.Order, error) {
	if !actor.IsAdmin && !actor.IsSystem {
		return nil, &AuthorizationError{Action: "repair order", Reason: "only admins can repair orders"}
	}
	q, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if q.Status != lifecycle.StatusConverted || q.OrderID == nil {
		return nil, validationErr("status", fmt.Sprintf("quote is '%s' and has no order to create", q.Status))
	}
	if s.orders == nil {
		return nil, validationErr("order", "order creation is not configured")
	}
	order, err := s.orders.CreateOrder(ctx, q, *q.OrderID)
	if err != nil {
		return nil, persistenceErr("create order", err)
	}
	s.logger.Info("order ensured for converted quote",
		zap.String("quote_id", q.ID),
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("actor_id", actor.UserID))
	return order, nil
}

// === engine ===

type mutation struct {
	updates map[string]interface{}
	items   []entity.QuoteItem
	audit   *entity.QuoteAuditLog
}

type action struct {
	name        string
	target      lifecycle.Status // empty when the status does not change
	adminOnly   bool
	allowSystem bool
	capability  func(permission.Set) bool
	denied      string
	check       func(q *entity.Quote) error
	build       func(q *entity.Quote, now time.Time) mutation
	event       string
	reason      string
	orderID     string
}

// run executes one mutation: actor gate, transition check, capability, guarded write with
// its audit row, then best-effort side effects.
func (s *QuoteService) run(ctx context.Context, actor Actor, id string, a action) (*ActionResult, error) {
	if a.adminOnly && !actor.IsAdmin && !(a.allowSystem && actor.IsSystem) {
		return nil, &AuthorizationError{Action: a.name, Reason: fmt.Sprintf("only admins can %s quotes", a.name)}
	}
	if actor.IsSystem && !a.allowSystem {
		return nil, &AuthorizationError{Action: a.name}
	}

	q, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := q.Status

	if a.target != "" {
		if res := lifecycle.ValidateTransition(from, a.target); !res.Valid {
			return nil, res.Err()
		}
	} else if lifecycle.IsTerminalState(from) {
		return nil, lifecycle.ValidateTransition(from, from).Err()
	}

	perms := resolve(actor, q)
	if a.capability != nil && !a.capability(perms) {
		return nil, &AuthorizationError{Action: a.name, Reason: a.denied}
	}
	if a.check != nil {
		if err := a.check(q); err != nil {
			return nil, err
		}
	}

	now := s.now()
	m := a.build(q, now)
	to := from
	if a.target != "" {
		to = a.target
	}

	audit := m.audit
	audit.OldStatus = string(from)
	audit.NewStatus = string(to)
	audit.ActorID = actor.UserID
	audit.AdminClerkID, audit.AdminName, audit.AdminRole = actor.auditIdentity()
	audit.CreatedAt = now

	err = s.quoteRepo.Apply(ctx, &repository.QuoteChange{
		QuoteID:     q.ID,
		FromStatus:  from,
		FromVersion: q.Version,
		Updates:     m.updates,
		Items:       m.items,
		Audit:       audit,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.logger.Warn("quote write conflict",
				zap.String("quote_id", q.ID),
				zap.String("action", a.name),
				zap.Int("version", q.Version))
			return nil, &ConflictError{QuoteID: q.ID}
		}
		return nil, persistenceErr("save quote", err)
	}

	s.logger.Info("quote changed",
		zap.String("quote_id", q.ID),
		zap.String("quote_number", q.QuoteNumber),
		zap.String("action", audit.ActionType),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.UserID))

	result := &ActionResult{Success: true}
	var warnings []string

	updated, err := s.quoteRepo.FindByID(ctx, q.ID)
	if err != nil {
		s.logger.Error("reload quote after change", zap.String("quote_id", q.ID), zap.Error(err))
		warnings = append(warnings, "change saved but the quote could not be reloaded")
		updated = q
	}

	event := QuoteEvent{
		Action:     audit.ActionType,
		Quote:      updated,
		FromStatus: from,
		ToStatus:   to,
		Reason:     a.reason,
	}
	if a.orderID != "" {
		if w := s.createOrder(ctx, updated, a.orderID, &event); w != "" {
			warnings = append(warnings, w)
		}
	}
	if w := s.notify(ctx, event); w != "" {
		warnings = append(warnings, w)
	}

	view := viewFor(updated, resolve(actor, updated))
	result.Quote = &view
	result.Warning = strings.Join(warnings, "; ")
	return result, nil
}

func (s *QuoteService) createOrder(ctx context.Context, q *entity.Quote, orderID string, event *QuoteEvent) string {
	if s.orders == nil {
		return ""
	}
	order, err := s.orders.CreateOrder(ctx, q, orderID)
	if err != nil {
		s.logger.Error("create order for converted quote",
			zap.String("quote_id", q.ID),
			zap.String("order_id", orderID),
			zap.Error(err))
		return "quote converted but the order could not be created yet; our team has been alerted"
	}
	event.OrderNumber = order.OrderNumber
	return ""
}

func (s *QuoteService) notify(ctx context.Context, event QuoteEvent) string {
	if s.notifier == nil {
		return ""
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("quote notification failed",
			zap.String("quote_id", event.Quote.ID),
			zap.String("action", event.Action),
			zap.Error(err))
		return "change saved but the notification could not be delivered"
	}
	return ""
}

// load fetches a quote the actor may access. Buyers get ErrQuoteNotFound for quotes
// they do not own.
func (s *QuoteService) load(ctx context.Context, actor Actor, id string) (*entity.Quote, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationErr("id", "quote id is required")
	}
	q, err := s.quoteRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, persistenceErr("load quote", err)
	}
	if !actor.IsAdmin && !actor.IsSystem && q.ClerkUserID != actor.UserID {
		return nil, ErrQuoteNotFound
	}
	return q, nil
}

func resolve(actor Actor, q *entity.Quote) permission.Set {
	in := actor.permissionInput()
	in.QuoteStatus = q.Status
	in.PricingVisible = q.PricingVisible
	if actor.IsSystem {
		in.IsAdmin = true
	}
	return permission.Resolve(in)
}

func viewFor(q *entity.Quote, perms permission.Set) entity.Quote {
	if perms.CanViewPricing {
		return *q
	}
	return q.Redacted()
}

func validateItems(items []QuoteItemInput) error {
	if len(items) == 0 {
		return validationErr("items", "at least one item is required")
	}
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return validationErr("items", "every item needs a product_id")
		}
		if it.Quantity <= 0 {
			return validationErr("items", "item quantity must be greater than zero")
		}
		if it.UnitPrice != nil && *it.UnitPrice < 0 {
			return validationErr("items", "unit price cannot be negative")
		}
	}
	return nil
}

func buildItems(quoteID string, inputs []QuoteItemInput) []entity.QuoteItem {
	items := make([]entity.QuoteItem, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, entity.QuoteItem{
			ID:          uuid.New().String()[:32],
			QuoteID:     quoteID,
			ProductID:   in.ProductID,
			VariantID:   in.VariantID,
			ProductName: in.ProductName,
			SKU:         in.SKU,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			QuotedPrice: in.QuotedPrice,
			Note:        in.Note,
			SortOrder:   i + 1,
		})
	}
	return items
}

// estimate sums catalogue prices; lines without a price do not contribute.
func estimate(items []entity.QuoteItem) float64 {
	var total float64
	for _, it := range items {
		if it.UnitPrice != nil {
			total += *it.UnitPrice * float64(it.Quantity)
		}
	}
	return total
}

func applyItemPrices(items []entity.QuoteItem, prices []ItemPrice) ([]entity.QuoteItem, error) {
	out := make([]entity.QuoteItem, len(items))
	copy(out, items)
	index := make(map[string]int, len(out))
	for i, it := range out {
		index[it.ID] = i
	}
	for _, p := range prices {
		i, ok := index[p.ItemID]
		if !ok {
			return nil, validationErr("item_prices", fmt.Sprintf("item '%s' does not belong to this quote", p.ItemID))
		}
		price := p.QuotedPrice
		out[i].QuotedPrice = &price
	}
	return out, nil
}
