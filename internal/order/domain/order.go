package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is one purchase transaction. Delivery fields are a free-form
// snapshot taken at order time, not a reference to a user profile.
type Order struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Status        Status
	FullName      string
	Phone         string
	Address       string
	City          string
	Region        string
	PostalCode    string
	PaymentMethod PaymentMethod
	IsPaid        bool
	PaidAt        *time.Time
	Subtotal      decimal.Decimal
	DeliveryPrice decimal.Decimal
	TotalPrice    decimal.Decimal
	Note          string
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is one product line within an order. Price is the unit price
// snapshotted at order time and is never recomputed from the catalog.
type OrderItem struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	SizeID      *uuid.UUID
	SizeLabel   *string
	Quantity    int
	Price       decimal.Decimal
	CreatedAt   time.Time
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CreateOrderInput is a validated order-creation request.
type CreateOrderInput struct {
	FullName      string
	Phone         string
	Address       string
	City          string
	Region        string
	PostalCode    string
	PaymentMethod PaymentMethod
	DeliveryPrice decimal.Decimal
	Note          string
	Lines         []Line
}

// Line is one requested product+size+quantity before persistence.
type Line struct {
	ProductID uuid.UUID
	Size      string
	Quantity  int
}

// NewOrder assembles a pending order from a validated input and its
// price-snapshotted items, computing subtotal and total.
func NewOrder(userID uuid.UUID, in CreateOrderInput, items []OrderItem) Order {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}

	now := time.Now().UTC()
	return Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        StatusPending,
		FullName:      in.FullName,
		Phone:         in.Phone,
		Address:       in.Address,
		City:          in.City,
		Region:        in.Region,
		PostalCode:    in.PostalCode,
		PaymentMethod: in.PaymentMethod,
		Subtotal:      subtotal,
		DeliveryPrice: in.DeliveryPrice,
		TotalPrice:    subtotal.Add(in.DeliveryPrice),
		Note:          in.Note,
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
