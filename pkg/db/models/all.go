package models

// All lists every table the services touch, parents before children. The
// Postgres schema comes from the goose migrations; this list drives gorm
// AutoMigrate for sqlite.
func All() []any {
	return []any{
		&SellUnit{},
		&Address{},
		&InventoryRecord{},
		&InventoryReservation{},
		&Coupon{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Refund{},
		&ReturnRequest{},
		&LedgerEvent{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
