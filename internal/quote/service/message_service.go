package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cedarelevatorsindustries/cedarelevators-sub009/internal/quote/entity"
	"go.uber.org/zap"
)

const maxMessageLength = 4000

// ListMessages returns the conversation of a quote.
func (s *QuoteService) ListMessages(ctx context.Context, actor Actor, quoteID string) ([]entity.QuoteMessage, error) {
	if _, err := s.load(ctx, actor, quoteID); err != nil {
		return nil, err
	}
	items, err := s.messageRepo.FindByQuote(ctx, quoteID)
	if err != nil {
		return nil, persistenceErr("load messages", err)
	}
	return items, nil
}

// PostMessage adds a message. Buyers need the message-admin capability; admins may reply
// while they can still edit the quote. Messages are not audit entries.
func (s *QuoteService) PostMessage(ctx context.Context, actor Actor, quoteID, body string) (*entity.QuoteMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationErr("body", "message cannot be empty")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, validationErr("body", "message is too long")
	}
	if actor.IsSystem {
		return nil, &AuthorizationError{Action: "message"}
	}

	q, err := s.load(ctx, actor, quoteID)
	if err != nil {
		return nil, err
	}
	perms := resolve(actor, q)
	if actor.IsAdmin && !perms.CanEditQuote {
		return nil, &AuthorizationError{Action: "message", Reason: "this quote is closed for messages"}
	}
	if !actor.IsAdmin && !perms.CanMessageAdmin {
		return nil, &AuthorizationError{Action: "message", Reason: "only verified business buyers can message the sales team"}
	}

	msg := &entity.QuoteMessage{
		QuoteID:    q.ID,
		SenderID:   actor.UserID,
		SenderName: actor.Name,
		IsAdmin:    actor.IsAdmin,
		Body:       body,
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, persistenceErr("save message", err)
	}

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, QuoteEvent{Action: "message", Quote: q, FromStatus: q.Status, ToStatus: q.Status})
		if err != nil {
			s.logger.Warn("message notification failed", zap.String("quote_id", q.ID), zap.Error(err))
		}
	}
	return msg, nil
}
