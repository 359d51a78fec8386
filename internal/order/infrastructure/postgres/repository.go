package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/application"
	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so read helpers
// can run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const orderColumns = `id, user_id, status, full_name, phone, address, city, region, postal_code,
	payment_method, is_paid, paid_at, subtotal, delivery_price, total_price, note, created_at, updated_at`

// CreateOrder writes the order row, its items, the conditional stock
// decrements and the outbox event in one transaction. A decrement that
// matches no row means a concurrent order won the remaining stock; the
// whole transaction is rolled back with a ConflictError.
func (r *Repository) CreateOrder(ctx context.Context, o domain.Order, reservations []application.StockReservation, eventType string, payload []byte, traceparent string) (txErr error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rbErr))
		}
	}()

	_, err = tx.Exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		o.ID, o.UserID, o.Status, o.FullName, o.Phone, o.Address, o.City, o.Region, o.PostalCode,
		o.PaymentMethod, o.IsPaid, o.PaidAt, o.Subtotal, o.DeliveryPrice, o.TotalPrice, o.Note,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (id, order_id, product_id, size_id, quantity, price, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			item.ID, o.ID, item.ProductID, item.SizeID, item.Quantity, item.Price, item.CreatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	for _, res := range reservations {
		ct, err := tx.Exec(ctx,
			`UPDATE product_sizes SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
			res.SizeID, res.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return domain.ConflictError{
				ProductName: res.ProductName,
				Size:        res.Size,
				Requested:   res.Quantity,
			}
		}
	}

	if err := insertOutbox(ctx, tx, o.ID.String(), eventType, payload, traceparent); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.log.Info("order created", "order_id", o.ID, "user_id", o.UserID, "total", o.TotalPrice)
	return nil
}

// CancelOrder locks the order row scoped to its owner before checking the
// status, so cancellation and other mutations of the same order serialize.
func (r *Repository) CancelOrder(ctx context.Context, orderID, userID uuid.UUID, eventType string, payload []byte, traceparent string) (_ domain.Order, txErr error) {
	var zero domain.Order

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rbErr))
		}
	}()

	o, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		orderID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, domain.NotFoundError{Entity: "order", ID: orderID.String()}
		}
		return zero, fmt.Errorf("lock order: %w", err)
	}

	if !o.Status.CanCancel() {
		return zero, domain.BusinessRuleError{
			Reason: fmt.Sprintf("order in status %q cannot be cancelled", o.Status),
		}
	}

	type restitution struct {
		sizeID   uuid.UUID
		quantity int
	}
	rows, err := tx.Query(ctx,
		`SELECT size_id, quantity FROM order_items WHERE order_id = $1 AND size_id IS NOT NULL`,
		orderID)
	if err != nil {
		return zero, fmt.Errorf("query sized items: %w", err)
	}
	var restitutions []restitution
	for rows.Next() {
		var rest restitution
		if err := rows.Scan(&rest.sizeID, &rest.quantity); err != nil {
			rows.Close()
			return zero, fmt.Errorf("scan sized item: %w", err)
		}
		restitutions = append(restitutions, rest)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return zero, fmt.Errorf("iterate sized items: %w", err)
	}

	for _, rest := range restitutions {
		if _, err := tx.Exec(ctx,
			`UPDATE product_sizes SET stock = stock + $2 WHERE id = $1`,
			rest.sizeID, rest.quantity); err != nil {
			return zero, fmt.Errorf("restore stock: %w", err)
		}
	}

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		orderID, domain.StatusCancelled, now); err != nil {
		return zero, fmt.Errorf("update order status: %w", err)
	}

	if err := insertOutbox(ctx, tx, orderID.String(), eventType, payload, traceparent); err != nil {
		return zero, err
	}

	items, err := loadItems(ctx, tx, []uuid.UUID{orderID})
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit: %w", err)
	}

	o.Status = domain.StatusCancelled
	o.UpdatedAt = now
	o.Items = items[orderID]

	r.log.Info("order cancelled", "order_id", orderID, "user_id", userID)
	return o, nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (domain.Order, error) {
	var zero domain.Order

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND user_id = $2`,
		orderID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, domain.NotFoundError{Entity: "order", ID: orderID.String()}
		}
		return zero, fmt.Errorf("query order: %w", err)
	}

	items, err := loadItems(ctx, r.pool, []uuid.UUID{orderID})
	if err != nil {
		return zero, err
	}
	o.Items = items[orderID]

	return o, nil
}

// ListOrders returns the caller's orders newest first, each with its items.
func (r *Repository) ListOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	ids := lo.Map(orders, func(o domain.Order, _ int) uuid.UUID { return o.ID })
	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
		method string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.FullName, &o.Phone, &o.Address, &o.City,
		&o.Region, &o.PostalCode, &method, &o.IsPaid, &o.PaidAt,
		&o.Subtotal, &o.DeliveryPrice, &o.TotalPrice, &o.Note, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}

	o.Status, err = domain.ToStatus(status)
	if err != nil {
		return o, fmt.Errorf("order %s: %w", o.ID, err)
	}
	o.PaymentMethod = domain.PaymentMethod(method)

	return o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []uuid.UUID) (map[uuid.UUID][]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, p.name, i.size_id, s.label, i.quantity, i.price, i.created_at
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		LEFT JOIN product_sizes s ON s.id = i.size_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.created_at, i.id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[uuid.UUID][]domain.OrderItem)
	for rows.Next() {
		var (
			item    domain.OrderItem
			orderID uuid.UUID
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName,
			&item.SizeID, &item.SizeLabel, &item.Quantity, &item.Price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte, traceparent string) error {
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		"order", aggregateID, eventType, payload, map[string]string{}, traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	return nil
}
