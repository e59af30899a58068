package entity

import "time"

// QuoteMessage is a note exchanged between a buyer and the sales team on a quote.
type QuoteMessage struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	QuoteID    string    `json:"quote_id" gorm:"size:32;not null;index"`
	SenderID   string    `json:"sender_id" gorm:"size:64;not null"`
	SenderName string    `json:"sender_name" gorm:"size:128"`
	IsAdmin    bool      `json:"is_admin"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (QuoteMessage) TableName() string {
	return "quote_messages"
}
