package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product as exposed by the catalog. The order workflow only ever reads it;
// Price here is the current catalog price, snapshotted onto order items.
type Product struct {
	ID    uuid.UUID
	Name  string
	Price decimal.Decimal
}

// SizeVariant is one orderable SKU of a product (e.g. size "42") carrying
// its own stock count. Stock is the only catalog state the order workflow
// mutates, and only inside the order transaction.
type SizeVariant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Label     string
	Stock     int
}
