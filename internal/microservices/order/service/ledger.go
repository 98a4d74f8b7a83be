package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/repository"
)

// StockLedgerInterface is the only way stock changes. Mutations take the
// enclosing transaction and become visible when it commits.
type StockLedgerInterface interface {
	GetStock(ctx context.Context, kind dao.StockKind, id int64) (dao.StockItem, error)

	// Check locks every ingredient in req and compares demand with the
	// locked rows, returning one *dao.InsufficientStockError naming every
	// deficient item. products must already be locked by the caller.
	Check(ctx context.Context, tx repository.TxInterface, req Requirements, products map[int64]dao.Product) error
	ReserveAndDecrement(ctx context.Context, tx repository.TxInterface, kind dao.StockKind, id int64, amount decimal.Decimal) error
	Increment(ctx context.Context, tx repository.TxInterface, kind dao.StockKind, id int64, amount decimal.Decimal) error

	// Apply and Restore run ReserveAndDecrement / Increment over a whole
	// Requirements set, products first, each in ascending id order.
	Apply(ctx context.Context, tx repository.TxInterface, req Requirements) error
	Restore(ctx context.Context, tx repository.TxInterface, req Requirements) error
}

type StockLedger struct {
	db repository.OrderRepositoryInterface
}

func NewStockLedger(db repository.OrderRepositoryInterface) StockLedgerInterface {
	return &StockLedger{db: db}
}

func (l *StockLedger) GetStock(ctx context.Context, kind dao.StockKind, id int64) (dao.StockItem, error) {
	return l.db.GetStock(ctx, kind, id)
}

func (l *StockLedger) Check(ctx context.Context, tx repository.TxInterface, req Requirements, products map[int64]dao.Product) error {
	var shortfalls []dao.Shortfall

	for _, id := range req.ProductIDs() {
		p, ok := products[id]
		if !ok {
			return dao.NotFound(dao.KindProduct, id)
		}
		need, have := req.Products[id], decimal.NewFromInt(int64(p.Stock))
		if have.LessThan(need) {
			shortfalls = append(shortfalls, dao.Shortfall{
				Kind: dao.KindProduct, ID: id, Name: p.Name, Required: need, Available: have,
			})
		}
	}

	ingredientIDs := req.IngredientIDs()
	if len(ingredientIDs) > 0 {
		ingredients, err := tx.LockIngredients(ctx, ingredientIDs)
		if err != nil {
			return err
		}
		for _, id := range ingredientIDs {
			in, ok := ingredients[id]
			if !ok {
				return dao.NotFound(dao.KindIngredient, id)
			}
			if need := req.Ingredients[id]; in.Stock.LessThan(need) {
				shortfalls = append(shortfalls, dao.Shortfall{
					Kind: dao.KindIngredient, ID: id, Name: in.Name, Required: need, Available: in.Stock,
				})
			}
		}
	}

	if len(shortfalls) > 0 {
		return &dao.InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

func (l *StockLedger) ReserveAndDecrement(ctx context.Context, tx repository.TxInterface, kind dao.StockKind, id int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	return tx.Decrement(ctx, kind, id, amount)
}

func (l *StockLedger) Increment(ctx context.Context, tx repository.TxInterface, kind dao.StockKind, id int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	return tx.Increment(ctx, kind, id, amount)
}

func (l *StockLedger) Apply(ctx context.Context, tx repository.TxInterface, req Requirements) error {
	// guard failures are collected, not returned one by one
	var shortfalls []dao.Shortfall
	apply := func(kind dao.StockKind, id int64, amount decimal.Decimal) error {
		err := l.ReserveAndDecrement(ctx, tx, kind, id, amount)
		var insufficient *dao.InsufficientStockError
		if errors.As(err, &insufficient) {
			shortfalls = append(shortfalls, insufficient.Shortfalls...)
			return nil
		}
		return err
	}

	for _, id := range req.ProductIDs() {
		if err := apply(dao.KindProduct, id, req.Products[id]); err != nil {
			return err
		}
	}
	for _, id := range req.IngredientIDs() {
		if err := apply(dao.KindIngredient, id, req.Ingredients[id]); err != nil {
			return err
		}
	}
	if len(shortfalls) > 0 {
		return &dao.InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

func (l *StockLedger) Restore(ctx context.Context, tx repository.TxInterface, req Requirements) error {
	for _, id := range req.ProductIDs() {
		if err := l.Increment(ctx, tx, dao.KindProduct, id, req.Products[id]); err != nil {
			return err
		}
	}
	for _, id := range req.IngredientIDs() {
		if err := l.Increment(ctx, tx, dao.KindIngredient, id, req.Ingredients[id]); err != nil {
			return err
		}
	}
	return nil
}
