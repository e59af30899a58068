package service

import (
	"context"
	"errors"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/lifecycle"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/permission"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/sse"
	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/shared/notify"
)

// QuoteEvent describes a committed quote change.
type QuoteEvent struct {
	Action      string
	Quote       *entity.Quote
	FromStatus  lifecycle.Status
	ToStatus    lifecycle.Status
	Reason      string
	OrderNumber string
}

// Notifier delivers quote events outside the service. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event QuoteEvent) error
}

// OrderCreator materializes the order of a converted quote under a pre-allocated id.
type OrderCreator interface {
	CreateOrder(ctx context.Context, quote *entity.Quote, orderID string) (*entity.Order, error)
}

// MultiNotifier fans an event out to several notifiers and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event QuoteEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookNotifier posts approve, reject and convert cards to the configured webhook.
type WebhookNotifier struct {
	client *notify.WebhookClient
}

func NewWebhookNotifier(client *notify.WebhookClient) *WebhookNotifier {
	return &WebhookNotifier{client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event QuoteEvent) error {
	if !n.client.Enabled() {
		return nil
	}
	q := event.Quote
	// the submit-time class stands in for the live profile here
	showTotal := q.PricingVisible && q.UserType == string(permission.UserTypeVerified)
	info := notify.QuoteInfo{
		QuoteNumber: q.QuoteNumber,
		OwnerID:     q.ClerkUserID,
		CompanyName: q.CompanyName,
		Total:       q.Total(),
		Currency:    q.Currency,
		ShowTotal:   showTotal,
	}

	var card notify.Card
	switch event.Action {
	case entity.AuditApproved:
		card = notify.NewQuoteApprovedCard(info, q.ExpiresAt)
	case entity.AuditRejected:
		card = notify.NewQuoteRejectedCard(info, event.Reason)
	case entity.AuditConverted:
		card = notify.NewQuoteConvertedCard(info, event.OrderNumber)
	default:
		return nil
	}
	return n.client.Send(ctx, card)
}

// SSENotifier pushes every event to the owner's and the admins' live connections.
type SSENotifier struct {
	hub *sse.Hub
}

func NewSSENotifier(hub *sse.Hub) *SSENotifier {
	return &SSENotifier{hub: hub}
}

func (n *SSENotifier) Notify(_ context.Context, event QuoteEvent) error {
	n.hub.PublishQuoteUpdate(event.Quote.ClerkUserID, sse.QuoteUpdate{
		QuoteID:     event.Quote.ID,
		QuoteNumber: event.Quote.QuoteNumber,
		Action:      event.Action,
		FromStatus:  string(event.FromStatus),
		ToStatus:    string(event.ToStatus),
	})
	return nil
}
