// Package entity holds the persisted quote records.
package entity

// Models lists every table the service owns, in migration order.
func Models() []interface{} {
	return []interface{}{
		&Quote{},
		&QuoteItem{},
		&QuoteAuditLog{},
		&QuoteBasket{},
		&BuyerProfile{},
		&QuoteMessage{},
		&Order{},
		&OrderItem{},
	}
}
