package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"pizzeria-system/internal/microservices/order/domain/dao"
)

// TxInterface is the set of operations available inside one atomic unit of
// work. Nothing done through it is visible to other transactions before the
// enclosing WithinTx returns nil.
type TxInterface interface {
	// LockProducts and LockIngredients read and row-lock the given ids in
	// ascending id order. Missing or deleted ids are absent from the result.
	LockProducts(ctx context.Context, ids []int64) (map[int64]dao.Product, error)
	LockIngredients(ctx context.Context, ids []int64) (map[int64]dao.Ingredient, error)
	Recipes(ctx context.Context, productIDs []int64) (map[int64][]dao.RecipeEntry, error)

	// LockStock reads one stock row and holds its lock until the unit of work ends.
	LockStock(ctx context.Context, kind dao.StockKind, id int64) (dao.StockItem, error)
	// Decrement fails with *dao.InsufficientStockError instead of letting stock go negative.
	Decrement(ctx context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) error
	Increment(ctx context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) error

	NextOrderSequence(ctx context.Context) (int64, error)
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	// InsertOrder persists the header, its items and the first status log
	// entry, filling in generated ids and timestamps.
	InsertOrder(ctx context.Context, order *dao.Order) error
	LockOrder(ctx context.Context, id int64) (dao.Order, error)
	SetOrderStatus(ctx context.Context, id int64, status dao.Status, changedBy, notes string) error
}

type OrderRepositoryInterface interface {
	WithinTx(ctx context.Context, fn func(tx TxInterface) error) error

	GetOrder(ctx context.Context, id int64) (dao.Order, error)
	ListOrders(ctx context.Context, filter dao.OrderFilter) ([]dao.Order, error)
	Timeline(ctx context.Context, orderID int64) ([]dao.StatusLogEntry, error)
	GetStock(ctx context.Context, kind dao.StockKind, id int64) (dao.StockItem, error)
	SoftDeleteOrder(ctx context.Context, id int64) error
}

type Repository struct {
	OrderRepo OrderRepositoryInterface
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{
		OrderRepo: NewOrderRepository(pool),
	}
}
