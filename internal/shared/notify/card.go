package notify

import (
	"fmt"
	"time"
)

// Card is the JSON document posted for one quote event.
type Card struct {
	Event      string      `json:"event"`
	Title      string      `json:"title"`
	Template   string      `json:"template"` // green / red / blue
	Recipient  string      `json:"recipient"`
	Fields     []CardField `json:"fields"`
	Note       string      `json:"note,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// CardField is one label/value row.
type CardField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// QuoteInfo is what the cards need to know about a quote.
type QuoteInfo struct {
	QuoteNumber string
	OwnerID     string
	CompanyName string
	Total       float64
	Currency    string
	ShowTotal   bool
}

func (q QuoteInfo) fields() []CardField {
	fields := []CardField{{Label: "Quote", Value: q.QuoteNumber}}
	if q.CompanyName != "" {
		fields = append(fields, CardField{Label: "Company", Value: q.CompanyName})
	}
	if q.ShowTotal {
		fields = append(fields, CardField{Label: "Total", Value: fmt.Sprintf("%s %.2f", q.Currency, q.Total)})
	}
	return fields
}

// NewQuoteApprovedCard tells the buyer the quote was approved.
func NewQuoteApprovedCard(q QuoteInfo, expiresAt *time.Time) Card {
	fields := q.fields()
	if expiresAt != nil {
		fields = append(fields, CardField{Label: "Valid until", Value: expiresAt.Format("2006-01-02")})
	}
	return Card{
		Event:      "quote.approved",
		Title:      "Your quote has been approved",
		Template:   "green",
		Recipient:  q.OwnerID,
		Fields:     fields,
		OccurredAt: time.Now(),
	}
}

// NewQuoteRejectedCard tells the buyer the quote was rejected and why.
func NewQuoteRejectedCard(q QuoteInfo, reason string) Card {
	return Card{
		Event:      "quote.rejected",
		Title:      "Your quote could not be approved",
		Template:   "red",
		Recipient:  q.OwnerID,
		Fields:     append(q.fields(), CardField{Label: "Reason", Value: reason}),
		OccurredAt: time.Now(),
	}
}

// NewQuoteConvertedCard confirms the order created from a quote.
func NewQuoteConvertedCard(q QuoteInfo, orderNumber string) Card {
	return Card{
		Event:      "quote.converted",
		Title:      "Order placed from your quote",
		Template:   "blue",
		Recipient:  q.OwnerID,
		Fields:     append(q.fields(), CardField{Label: "Order", Value: orderNumber}),
		Note:       "Our team will contact you for payment and delivery.",
		OccurredAt: time.Now(),
	}
}
