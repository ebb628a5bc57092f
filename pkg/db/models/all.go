package models

// All lists every persisted model, in dependency order. Used by tests and dev auto-migration.
func All() []any {
	return []any{
		&Establishment{},
		&Product{},
		&Offer{},
		&OfferProduct{},
		&Sale{},
		&SaleDetail{},
		&OutboxEvent{},
		&OutboxDLQ{},
		&Notification{},
	}
}
