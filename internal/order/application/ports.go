package application

import (
	"context"

	"github.com/google/uuid"

	catalogdomain "github.com/JavoxirAI/sneakers-shop-backend/internal/catalog/domain"
	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/domain"
)

// CatalogProvider is the read side of the externally-owned catalog.
type CatalogProvider interface {
	GetProduct(ctx context.Context, id uuid.UUID) (catalogdomain.Product, error)
	GetSizeVariant(ctx context.Context, productID uuid.UUID, label string) (catalogdomain.SizeVariant, error)
}

// StockReservation is one size-variant decrement to apply atomically with
// the order insert. Name fields exist only for conflict error reporting.
type StockReservation struct {
	SizeID      uuid.UUID
	ProductName string
	Size        string
	Quantity    int
}

type OrderRepository interface {
	// CreateOrder persists the order, its items, the stock decrements and an
	// outbox event in a single transaction. Any failure rolls back everything.
	CreateOrder(ctx context.Context, o domain.Order, reservations []StockReservation, eventType string, payload []byte, traceparent string) error

	// CancelOrder locks the order scoped to its owner, restores stock for
	// sized items, flips the status and writes an outbox event atomically.
	CancelOrder(ctx context.Context, orderID, userID uuid.UUID, eventType string, payload []byte, traceparent string) (domain.Order, error)

	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error)
}
