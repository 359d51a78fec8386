package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Statements are idempotent so they can run on every startup. The catalog
// and session tables are owned by other services; they are created here so
// dev and test environments work against a single database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id uuid PRIMARY KEY,
		name text NOT NULL,
		price numeric(10,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_sizes (
		id uuid PRIMARY KEY,
		product_id uuid NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		label text NOT NULL,
		stock integer NOT NULL DEFAULT 0 CHECK (stock >= 0),
		UNIQUE (product_id, label)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id uuid PRIMARY KEY,
		user_id uuid NOT NULL,
		status text NOT NULL,
		full_name text NOT NULL,
		phone text NOT NULL,
		address text NOT NULL,
		city text NOT NULL,
		region text NOT NULL DEFAULT '',
		postal_code text NOT NULL DEFAULT '',
		payment_method text NOT NULL,
		is_paid boolean NOT NULL DEFAULT false,
		paid_at timestamptz,
		subtotal numeric(10,2) NOT NULL,
		delivery_price numeric(10,2) NOT NULL DEFAULT 0,
		total_price numeric(10,2) NOT NULL,
		note text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id uuid PRIMARY KEY,
		order_id uuid NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id uuid NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		size_id uuid REFERENCES product_sizes(id) ON DELETE SET NULL,
		quantity integer NOT NULL CHECK (quantity > 0),
		price numeric(10,2) NOT NULL,
		created_at timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token uuid PRIMARY KEY,
		user_id uuid NOT NULL,
		expires_at timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id bigserial PRIMARY KEY,
		aggregate_type text NOT NULL,
		aggregate_id text NOT NULL,
		type text NOT NULL,
		payload jsonb NOT NULL,
		headers jsonb,
		traceparent text NOT NULL DEFAULT '',
		status text NOT NULL DEFAULT 'pending',
		relay_id text,
		lease_until timestamptz,
		retry_count integer NOT NULL DEFAULT 0,
		last_error text,
		created_at timestamptz NOT NULL DEFAULT now()
	)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
