package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	catalogdomain "github.com/JavoxirAI/sneakers-shop-backend/internal/catalog/domain"
	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/domain"
)

// Service is the order workflow engine: it validates requests against the
// catalog, snapshots prices and hands the storage layer an atomic unit of
// work. It holds no state of its own.
type Service struct {
	repo    OrderRepository
	catalog CatalogProvider
}

func NewService(repo OrderRepository, catalog CatalogProvider) *Service {
	return &Service{repo: repo, catalog: catalog}
}

// CreateOrder validates each line in submission order, resolving products
// and size variants against the catalog and checking stock net of
// quantities already claimed by earlier lines of the same request. On
// success it persists the order with snapshotted unit prices and the stock
// decrements in one transaction.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, in domain.CreateOrderInput, traceparent string) (domain.Order, error) {
	var zero domain.Order

	if err := validateInput(&in); err != nil {
		return zero, err
	}

	var (
		items        []domain.OrderItem
		reservations []StockReservation
	)
	// Running per-variant totals so two lines of one request cannot jointly
	// oversubscribe the same size.
	reserved := make(map[uuid.UUID]int)
	now := time.Now().UTC()

	for _, line := range in.Lines {
		product, err := s.catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, catalogdomain.ErrProductNotFound) {
				return zero, domain.NotFoundError{Entity: "product", ID: line.ProductID.String()}
			}
			return zero, fmt.Errorf("catalog.GetProduct: %w", err)
		}

		item := domain.OrderItem{
			ID:          uuid.New(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
			CreatedAt:   now,
		}

		if line.Size != "" {
			variant, err := s.catalog.GetSizeVariant(ctx, product.ID, line.Size)
			if err != nil {
				if errors.Is(err, catalogdomain.ErrSizeNotFound) {
					return zero, domain.NotFoundError{
						Entity: fmt.Sprintf("size %q for product %q", line.Size, product.Name),
					}
				}
				return zero, fmt.Errorf("catalog.GetSizeVariant: %w", err)
			}

			available := variant.Stock - reserved[variant.ID]
			if available < line.Quantity {
				return zero, domain.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Size:        variant.Label,
					Requested:   line.Quantity,
					Available:   available,
				}
			}
			reserved[variant.ID] += line.Quantity

			sizeID := variant.ID
			sizeLabel := variant.Label
			item.SizeID = &sizeID
			item.SizeLabel = &sizeLabel

			reservations = append(reservations, StockReservation{
				SizeID:      variant.ID,
				ProductName: product.Name,
				Size:        variant.Label,
				Quantity:    line.Quantity,
			})
		}

		items = append(items, item)
	}

	order := domain.NewOrder(userID, in, items)

	payload, err := json.Marshal(domain.OrderCreated{
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
		Items:      order.Items,
	})
	if err != nil {
		return zero, fmt.Errorf("marshal OrderCreated: %w", err)
	}

	if err := s.repo.CreateOrder(ctx, order, reservations, "OrderCreated", payload, traceparent); err != nil {
		return zero, fmt.Errorf("repo.CreateOrder: %w", err)
	}

	return order, nil
}

// CancelOrder cancels an order owned by userID if it is still pending or
// confirmed, restoring stock for every sized item.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID uuid.UUID, traceparent string) (domain.Order, error) {
	var zero domain.Order

	payload, err := json.Marshal(domain.OrderCancelled{OrderID: orderID, UserID: userID})
	if err != nil {
		return zero, fmt.Errorf("marshal OrderCancelled: %w", err)
	}

	order, err := s.repo.CancelOrder(ctx, orderID, userID, "OrderCancelled", payload, traceparent)
	if err != nil {
		return zero, fmt.Errorf("repo.CancelOrder: %w", err)
	}

	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID, userID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("repo.GetOrder: %w", err)
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	orders, err := s.repo.ListOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("repo.ListOrders: %w", err)
	}
	return orders, nil
}

func validateInput(in *domain.CreateOrderInput) error {
	required := []struct {
		field, value string
	}{
		{"full_name", in.FullName},
		{"phone", in.Phone},
		{"address", in.Address},
		{"city", in.City},
	}
	for _, r := range required {
		if r.value == "" {
			return domain.ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	method, err := domain.ToPaymentMethod(string(in.PaymentMethod))
	if err != nil {
		return err
	}
	in.PaymentMethod = method

	if in.DeliveryPrice.IsNegative() {
		return domain.ValidationError{Field: "delivery_price", Reason: "must not be negative"}
	}

	if len(in.Lines) == 0 {
		return domain.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, line := range in.Lines {
		if line.ProductID == uuid.Nil {
			return domain.ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Reason: "is required"}
		}
		if line.Quantity < 1 {
			return domain.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be at least 1"}
		}
	}

	return nil
}
