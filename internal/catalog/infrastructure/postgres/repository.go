package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JavoxirAI/sneakers-shop-backend/internal/catalog/domain"
)

// Repository reads the externally-owned catalog tables. It never writes:
// stock mutation happens inside the order transaction.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (domain.Product, error) {
	var p domain.Product

	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, domain.ErrProductNotFound
		}
		return p, fmt.Errorf("query product: %w", err)
	}

	return p, nil
}

func (r *Repository) GetSizeVariant(ctx context.Context, productID uuid.UUID, label string) (domain.SizeVariant, error) {
	var v domain.SizeVariant

	err := r.pool.QueryRow(ctx,
		`SELECT id, product_id, label, stock FROM product_sizes WHERE product_id = $1 AND label = $2`,
		productID, label).
		Scan(&v.ID, &v.ProductID, &v.Label, &v.Stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, domain.ErrSizeNotFound
		}
		return v, fmt.Errorf("query size variant: %w", err)
	}

	return v, nil
}
