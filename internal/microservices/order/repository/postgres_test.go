package repository_test

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/common/pgtest"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/domain/dto"
	"pizzeria-system/internal/microservices/order/repository"
	"pizzeria-system/internal/microservices/order/service"
)

var orderNumber = regexp.MustCompile(`^ORD-\d{8}-\d{4}$`)

type pgFixture struct {
	pool   *pgxpool.Pool
	repo   repository.OrderRepositoryInterface
	svc    *service.Service
	pizza  int64
	cola   int64
	cheese int64
}

// newPGFixture seeds pizza (stock 10, 3 cheese per unit), cola (stock 2, no
// recipe) and cheese (stock 100).
func newPGFixture(t *testing.T) *pgFixture {
	pool := pgtest.Open(t)
	f := &pgFixture{pool: pool}
	f.pizza = pgtest.SeedProduct(t, pool, "Margherita", "10.50", 10)
	f.cola = pgtest.SeedProduct(t, pool, "Cola", "2.00", 2)
	f.cheese = pgtest.SeedIngredient(t, pool, "Mozzarella", "g", "100")
	pgtest.SeedRecipe(t, pool, f.pizza, f.cheese, "3")

	repos := repository.New(pool)
	f.repo = repos.OrderRepo
	f.svc = service.New(*repos, service.NopPublisher{}, logger.NewNop())
	return f
}

func (f *pgFixture) order(t *testing.T, items ...dto.OrderItemInput) (dao.Order, error) {
	t.Helper()
	return f.svc.OrderService.CreateOrder(context.Background(), dto.CreateOrderRequest{
		SaleType:      dao.SaleInStore,
		PaymentMethod: dao.PaymentCash,
		CustomerName:  "Ada",
		CustomerPhone: "555-0100",
		Items:         items,
	})
}

func (f *pgFixture) stock(t *testing.T, kind dao.StockKind, id int64) string {
	t.Helper()
	item, err := f.repo.GetStock(context.Background(), kind, id)
	require.NoError(t, err)
	return item.Stock.String()
}

func (f *pgFixture) orderCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.pool.QueryRow(context.Background(), `SELECT count(*) FROM orders`).Scan(&n))
	return n
}

func line(productID int64, qty int) dto.OrderItemInput {
	return dto.OrderItemInput{ProductID: productID, Quantity: qty}
}

func TestPostgresCreateOrderConsumesStock(t *testing.T) {
	f := newPGFixture(t)

	o, err := f.order(t, line(f.pizza, 2), line(f.cola, 1))
	require.NoError(t, err)

	assert.Regexp(t, orderNumber, o.OrderNumber)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("23")), o.Total.String())
	assert.Equal(t, "8", f.stock(t, dao.KindProduct, f.pizza))
	assert.Equal(t, "1", f.stock(t, dao.KindProduct, f.cola))
	assert.Equal(t, "94", f.stock(t, dao.KindIngredient, f.cheese))

	stored, err := f.repo.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(o.Total))
	require.Len(t, stored.Items, 2)
	assert.True(t, stored.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.50")))

	timeline, err := f.repo.Timeline(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, dao.StatusPending, timeline[0].Status)
}

func TestPostgresShortfallNamesEveryItem(t *testing.T) {
	f := newPGFixture(t)

	_, err := f.order(t, line(f.pizza, 40), line(f.cola, 3))

	var insufficient *dao.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	names := map[string]string{}
	for _, s := range insufficient.Shortfalls {
		names[s.Name] = s.Required.String() + "/" + s.Available.String()
	}
	assert.Equal(t, map[string]string{"Margherita": "40/10", "Cola": "3/2", "Mozzarella": "120/100"}, names)

	assert.Equal(t, "10", f.stock(t, dao.KindProduct, f.pizza))
	assert.Equal(t, "100", f.stock(t, dao.KindIngredient, f.cheese))
	assert.Zero(t, f.orderCount(t))
}

func TestPostgresCancelRestoresStockOnce(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	o, err := f.order(t, line(f.pizza, 3))
	require.NoError(t, err)

	_, err = f.svc.OrderService.CancelOrder(ctx, o.ID, "")
	require.NoError(t, err)
	_, err = f.svc.OrderService.CancelOrder(ctx, o.ID, "")
	require.ErrorIs(t, err, dao.ErrInvalidStateTransition)

	assert.Equal(t, "10", f.stock(t, dao.KindProduct, f.pizza))
	assert.Equal(t, "100", f.stock(t, dao.KindIngredient, f.cheese))
}

func TestPostgresDeliveredOrderIsFinal(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	o, err := f.order(t, line(f.pizza, 1))
	require.NoError(t, err)

	for _, s := range []dao.Status{dao.StatusConfirmed, dao.StatusPreparing, dao.StatusReady, dao.StatusDelivered} {
		_, err := f.svc.OrderService.AdvanceStatus(ctx, o.ID, s, "test")
		require.NoError(t, err, s)
	}
	_, err = f.svc.OrderService.CancelOrder(ctx, o.ID, "")
	require.ErrorIs(t, err, dao.ErrInvalidStateTransition)

	assert.Equal(t, "9", f.stock(t, dao.KindProduct, f.pizza))
	timeline, err := f.repo.Timeline(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 5)
}

func TestPostgresConcurrentOrdersNeverOversell(t *testing.T) {
	f := newPGFixture(t)

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.order(t, line(f.cola, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, dao.ErrInsufficientStock):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, succeeded)
	assert.Equal(t, buyers-2, rejected)
	assert.Equal(t, "0", f.stock(t, dao.KindProduct, f.cola))
	assert.Equal(t, 2, f.orderCount(t))
}

func TestPostgresDecrementGuard(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	err := f.repo.WithinTx(ctx, func(tx repository.TxInterface) error {
		return tx.Decrement(ctx, dao.KindProduct, f.cola, decimal.NewFromInt(5))
	})
	var insufficient *dao.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 1)
	assert.Equal(t, "Cola", insufficient.Shortfalls[0].Name)
	assert.Equal(t, "2", insufficient.Shortfalls[0].Available.String())

	err = f.repo.WithinTx(ctx, func(tx repository.TxInterface) error {
		return tx.Decrement(ctx, dao.KindIngredient, f.cheese+100, decimal.NewFromInt(1))
	})
	require.ErrorIs(t, err, dao.ErrIngredientNotFound)

	err = f.repo.WithinTx(ctx, func(tx repository.TxInterface) error {
		return tx.Decrement(ctx, dao.KindIngredient, f.cheese, decimal.RequireFromString("0.125"))
	})
	require.NoError(t, err)
	assert.Equal(t, "99.875", f.stock(t, dao.KindIngredient, f.cheese))
}

func TestPostgresDuplicateOrderNumber(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	insert := func() error {
		return f.repo.WithinTx(ctx, func(tx repository.TxInterface) error {
			return tx.InsertOrder(ctx, &dao.Order{
				OrderNumber:   "ORD-20260101-0001",
				SaleType:      dao.SaleOnline,
				PaymentMethod: dao.PaymentCard,
				CustomerName:  "Ada",
				CustomerPhone: "555-0100",
				Subtotal:      decimal.NewFromInt(2),
				Total:         decimal.NewFromInt(2),
				Status:        dao.StatusPending,
				Items: []dao.OrderItem{{
					ProductID: f.cola, ProductName: "Cola", UnitPrice: decimal.NewFromInt(2),
					Quantity: 1, Subtotal: decimal.NewFromInt(2),
				}},
			})
		})
	}

	require.NoError(t, insert())
	require.ErrorIs(t, insert(), dao.ErrDuplicateOrderNumber)
	assert.Equal(t, 1, f.orderCount(t))
}

func TestPostgresLockSkipsDeletedRows(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	_, err := f.pool.Exec(ctx, `UPDATE products SET deleted_at = now() WHERE id = $1`, f.cola)
	require.NoError(t, err)

	err = f.repo.WithinTx(ctx, func(tx repository.TxInterface) error {
		products, err := tx.LockProducts(ctx, []int64{f.cola, f.pizza})
		require.NoError(t, err)
		assert.Len(t, products, 1)
		assert.Contains(t, products, f.pizza)

		ingredients, err := tx.LockIngredients(ctx, []int64{f.cheese})
		require.NoError(t, err)
		assert.True(t, ingredients[f.cheese].Stock.Equal(decimal.NewFromInt(100)))

		recipes, err := tx.Recipes(ctx, []int64{f.pizza, f.cola})
		require.NoError(t, err)
		require.Len(t, recipes[f.pizza], 1)
		assert.Equal(t, "3", recipes[f.pizza][0].Quantity.String())
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresListOrdersPaging(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		o, err := f.order(t, line(f.pizza, 1))
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	all, err := f.repo.ListOrders(ctx, dao.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)

	page, err := f.repo.ListOrders(ctx, dao.OrderFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Len(t, page[0].Items, 1)

	require.NoError(t, f.repo.SoftDeleteOrder(ctx, ids[0]))
	rest, err := f.repo.ListOrders(ctx, dao.OrderFilter{Phone: "555-0100"})
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	require.ErrorIs(t, f.repo.SoftDeleteOrder(ctx, ids[0]), dao.ErrOrderNotFound)
}

func TestPostgresReceiveReportsLockedLevel(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	item, err := f.svc.StockService.Receive(ctx, dao.KindIngredient, f.cheese, decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, "102.5", item.Stock.String())
	assert.Equal(t, "102.5", f.stock(t, dao.KindIngredient, f.cheese))

	_, err = f.svc.StockService.Receive(ctx, dao.KindProduct, f.cola, decimal.NewFromInt(2147483646))
	require.ErrorIs(t, err, dao.ErrInvalidOrder)
	assert.Equal(t, "2", f.stock(t, dao.KindProduct, f.cola))
}
