package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	catalogpg "github.com/JavoxirAI/sneakers-shop-backend/internal/catalog/infrastructure/postgres"
	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/application"
	"github.com/JavoxirAI/sneakers-shop-backend/internal/order/domain"
	orderpg "github.com/JavoxirAI/sneakers-shop-backend/internal/order/infrastructure/postgres"
	"github.com/JavoxirAI/sneakers-shop-backend/test/integration"
)

type orderRepositorySuite struct {
	suite.Suite

	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	repo      *orderpg.Repository
	svc       *application.Service
}

// entry point to run the tests in the suite
func TestOrderRepositorySuite(t *testing.T) {
	suite.Run(t, new(orderRepositorySuite))
}

// before all tests in the suite
func (s *orderRepositorySuite) SetupSuite() {
	ctx := s.T().Context()

	var (
		connStr string
		err     error
	)
	s.container, connStr, err = integration.StartPostgres(ctx)
	s.Require().NoError(err)

	cfg, err := pgxpool.ParseConfig(connStr)
	s.Require().NoError(err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	s.pool, err = pgxpool.NewWithConfig(ctx, cfg)
	s.Require().NoError(err)

	s.Require().NoError(orderpg.EnsureSchema(ctx, s.pool))

	log := slog.New(slog.DiscardHandler)
	s.repo = orderpg.NewRepository(log, s.pool)
	s.svc = application.NewService(s.repo, catalogpg.NewRepository(log, s.pool))
}

// after all tests in the suite
func (s *orderRepositorySuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func (s *orderRepositorySuite) TearDownTest() {
	ctx := s.T().Context()
	for _, table := range []string{"order_items", "orders", "outbox", "product_sizes", "products"} {
		_, err := s.pool.Exec(ctx, "DELETE FROM "+table)
		s.Require().NoError(err)
	}
}

func (s *orderRepositorySuite) seedProduct(name, price string) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(s.T().Context(),
		`INSERT INTO products (id, name, price) VALUES ($1,$2,$3)`,
		id, name, decimal.RequireFromString(price))
	s.Require().NoError(err)
	return id
}

func (s *orderRepositorySuite) seedSize(productID uuid.UUID, label string, stock int) uuid.UUID {
	id := uuid.New()
	_, err := s.pool.Exec(s.T().Context(),
		`INSERT INTO product_sizes (id, product_id, label, stock) VALUES ($1,$2,$3,$4)`,
		id, productID, label, stock)
	s.Require().NoError(err)
	return id
}

func (s *orderRepositorySuite) stock(sizeID uuid.UUID) int {
	var stock int
	err := s.pool.QueryRow(s.T().Context(),
		`SELECT stock FROM product_sizes WHERE id = $1`, sizeID).Scan(&stock)
	s.Require().NoError(err)
	return stock
}

func (s *orderRepositorySuite) countRows(table string) int {
	var n int
	err := s.pool.QueryRow(s.T().Context(), "SELECT count(*) FROM "+table).Scan(&n)
	s.Require().NoError(err)
	return n
}

func (s *orderRepositorySuite) createInput(lines ...domain.Line) domain.CreateOrderInput {
	return domain.CreateOrderInput{
		FullName:      gofakeit.Name(),
		Phone:         gofakeit.Phone(),
		Address:       gofakeit.Street(),
		City:          gofakeit.City(),
		PaymentMethod: domain.PaymentCash,
		DeliveryPrice: decimal.Zero,
		Lines:         lines,
	}
}

func (s *orderRepositorySuite) TestCreateOrder_PersistsAndDecrementsStock() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 5)
	userID := uuid.New()

	in := s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 3})
	in.DeliveryPrice = decimal.RequireFromString("2.00")

	created, err := s.svc.CreateOrder(ctx, userID, in, "")
	require.NoError(t, err)

	assert.Equal(t, 2, s.stock(sizeID), "stock decremented by quantity")

	got, err := s.svc.GetOrder(ctx, created.ID, userID)
	require.NoError(t, err)

	// timestamps lose sub-microsecond precision in the round trip
	diff := cmp.Diff(created, got,
		cmpopts.IgnoreFields(domain.Order{}, "CreatedAt", "UpdatedAt"),
		cmpopts.IgnoreFields(domain.OrderItem{}, "CreatedAt"),
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }))
	assert.Empty(t, diff)

	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, got.Subtotal.Equal(decimal.RequireFromString("30.00")), "subtotal %s", got.Subtotal)
	assert.True(t, got.DeliveryPrice.Equal(decimal.RequireFromString("2.00")))
	assert.True(t, got.TotalPrice.Equal(decimal.RequireFromString("32.00")), "total %s", got.TotalPrice)

	require.Len(t, got.Items, 1)
	item := got.Items[0]
	assert.Equal(t, "Air Runner", item.ProductName)
	assert.True(t, item.Price.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 3, item.Quantity)
	require.NotNil(t, item.SizeLabel)
	assert.Equal(t, "M", *item.SizeLabel)
	assert.True(t, item.Subtotal().Equal(decimal.RequireFromString("30.00")))

	// the creation landed in the outbox within the same transaction
	var eventType, status string
	err = s.pool.QueryRow(ctx,
		`SELECT type, status FROM outbox WHERE aggregate_id = $1`, created.ID.String()).
		Scan(&eventType, &status)
	require.NoError(t, err)
	assert.Equal(t, "OrderCreated", eventType)
	assert.Equal(t, "pending", status)
}

func (s *orderRepositorySuite) TestCreateOrder_SnapshotSurvivesPriceChange() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	s.seedSize(productID, "M", 5)
	userID := uuid.New()

	created, err := s.svc.CreateOrder(ctx, userID,
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 1}), "")
	require.NoError(t, err)

	_, err = s.pool.Exec(ctx, `UPDATE products SET price = $2 WHERE id = $1`,
		productID, decimal.RequireFromString("99.99"))
	require.NoError(t, err)

	got, err := s.svc.GetOrder(ctx, created.ID, userID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("10.00")),
		"item price must stay the order-time snapshot")
}

func (s *orderRepositorySuite) TestCreateOrder_UnknownProductRollsBack() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 5)

	in := s.createInput(
		domain.Line{ProductID: productID, Size: "M", Quantity: 2},
		domain.Line{ProductID: uuid.New(), Quantity: 1},
	)

	_, err := s.svc.CreateOrder(ctx, uuid.New(), in, "")
	var notFoundErr domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)

	assert.Equal(t, 5, s.stock(sizeID), "stock untouched")
	assert.Zero(t, s.countRows("orders"))
	assert.Zero(t, s.countRows("order_items"))
	assert.Zero(t, s.countRows("outbox"))
}

func (s *orderRepositorySuite) TestCreateOrder_InsufficientStock() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 2)

	_, err := s.svc.CreateOrder(ctx, uuid.New(),
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 3}), "")

	var stockErr domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Air Runner", stockErr.ProductName)
	assert.Equal(t, "M", stockErr.Size)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	assert.Equal(t, 2, s.stock(sizeID))
	assert.Zero(t, s.countRows("orders"))
}

func (s *orderRepositorySuite) TestCreateOrder_ConflictRollsBackEverything() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 2)
	userID := uuid.New()

	// Bypass the service pre-check to hit the conditional decrement alone,
	// as a concurrent competitor would.
	order := domain.NewOrder(userID,
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 3}),
		[]domain.OrderItem{{
			ID:        uuid.New(),
			ProductID: productID,
			SizeID:    &sizeID,
			Quantity:  3,
			Price:     decimal.RequireFromString("10.00"),
			CreatedAt: time.Now().UTC(),
		}})

	err := s.repo.CreateOrder(ctx, order,
		[]application.StockReservation{{SizeID: sizeID, ProductName: "Air Runner", Size: "M", Quantity: 3}},
		"OrderCreated", []byte(`{}`), "")

	var conflictErr domain.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, "Air Runner", conflictErr.ProductName)

	assert.Equal(t, 2, s.stock(sizeID))
	assert.Zero(t, s.countRows("orders"))
	assert.Zero(t, s.countRows("order_items"))
	assert.Zero(t, s.countRows("outbox"))
}

func (s *orderRepositorySuite) TestCancelOrder_RestoresStock() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 5)
	userID := uuid.New()

	created, err := s.svc.CreateOrder(ctx, userID,
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 3}), "")
	require.NoError(t, err)
	require.Equal(t, 2, s.stock(sizeID))

	cancelled, err := s.svc.CancelOrder(ctx, created.ID, userID, "")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, s.stock(sizeID), "stock restored")
	require.Len(t, cancelled.Items, 1)

	got, err := s.svc.GetOrder(ctx, created.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, got.Status)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func (s *orderRepositorySuite) TestCancelOrder_RejectedOutsidePendingConfirmed() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 5)
	userID := uuid.New()

	created, err := s.svc.CreateOrder(ctx, userID,
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 3}), "")
	require.NoError(t, err)

	_, err = s.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`,
		created.ID, domain.StatusShipped)
	require.NoError(t, err)

	_, err = s.svc.CancelOrder(ctx, created.ID, userID, "")
	var businessRuleErr domain.BusinessRuleError
	require.ErrorAs(t, err, &businessRuleErr)

	assert.Equal(t, 2, s.stock(sizeID), "no restitution on rejected cancel")
}

func (s *orderRepositorySuite) TestCancelOrder_WrongOwnerLooksAbsent() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	s.seedSize(productID, "M", 5)

	created, err := s.svc.CreateOrder(ctx, uuid.New(),
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 1}), "")
	require.NoError(t, err)

	_, err = s.svc.CancelOrder(ctx, created.ID, uuid.New(), "")
	var notFoundErr domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func (s *orderRepositorySuite) TestListOrders_NewestFirstScopedToOwner() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	s.seedSize(productID, "M", 50)
	userID := uuid.New()

	first, err := s.svc.CreateOrder(ctx, userID,
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 1}), "")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	second, err := s.svc.CreateOrder(ctx, userID,
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 2}), "")
	require.NoError(t, err)

	// another user's order must not leak in
	_, err = s.svc.CreateOrder(ctx, uuid.New(),
		s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 1}), "")
	require.NoError(t, err)

	orders, err := s.svc.ListOrders(ctx, userID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "Air Runner", orders[0].Items[0].ProductName)
}

func (s *orderRepositorySuite) TestGetOrder_UnknownIsNotFound() {
	_, err := s.svc.GetOrder(s.T().Context(), uuid.New(), uuid.New())
	var notFoundErr domain.NotFoundError
	require.ErrorAs(s.T(), err, &notFoundErr)
}

// Two concurrent creations fight over 5 units of stock with 3 each: exactly
// one commits, the other fails, and stock never goes negative.
func (s *orderRepositorySuite) TestConcurrentCreate_NoOversell() {
	t := s.T()
	ctx := t.Context()

	productID := s.seedProduct("Air Runner", "10.00")
	sizeID := s.seedSize(productID, "M", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.svc.CreateOrder(ctx, uuid.New(),
				s.createInput(domain.Line{ProductID: productID, Size: "M", Quantity: 3}), "")
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		var (
			stockErr    domain.InsufficientStockError
			conflictErr domain.ConflictError
		)
		assert.True(t,
			errorAsAny(err, &stockErr, &conflictErr),
			"loser must fail with a stock error, got: %v", err)
	}

	assert.Equal(t, 1, failures, "exactly one creation must lose")
	assert.Equal(t, 2, s.stock(sizeID), "stock reflects the single winner")
	assert.Equal(t, 1, s.countRows("orders"))
}

func errorAsAny(err error, targets ...any) bool {
	for _, target := range targets {
		if errors.As(err, target) {
			return true
		}
	}
	return false
}
