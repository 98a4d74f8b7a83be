package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/repository"
)

type StockServiceInterface interface {
	ProductStock(ctx context.Context, id int64) (dao.StockItem, error)
	IngredientStock(ctx context.Context, id int64) (dao.StockItem, error)
	// Receive books incoming goods: one atomic increment.
	Receive(ctx context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) (dao.StockItem, error)
}

type StockService struct {
	db     repository.OrderRepositoryInterface
	ledger StockLedgerInterface
	log    *logger.Logger
}

func NewStockService(db repository.OrderRepositoryInterface, ledger StockLedgerInterface, log *logger.Logger) StockServiceInterface {
	return &StockService{db: db, ledger: ledger, log: log}
}

func (s *StockService) ProductStock(ctx context.Context, id int64) (dao.StockItem, error) {
	return s.ledger.GetStock(ctx, dao.KindProduct, id)
}

func (s *StockService) IngredientStock(ctx context.Context, id int64) (dao.StockItem, error) {
	return s.ledger.GetStock(ctx, dao.KindIngredient, id)
}

func (s *StockService) Receive(ctx context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) (dao.StockItem, error) {
	if !kind.Valid() {
		return dao.StockItem{}, fmt.Errorf("%w: unknown stock kind %q", dao.ErrInvalidOrder, kind)
	}
	if !amount.IsPositive() {
		return dao.StockItem{}, fmt.Errorf("%w: amount must be positive", dao.ErrInvalidOrder)
	}
	if kind == dao.KindProduct && !amount.Equal(amount.Truncate(0)) {
		return dao.StockItem{}, fmt.Errorf("%w: product stock is counted in whole units", dao.ErrInvalidOrder)
	}
	if !kind.Representable(amount) {
		return dao.StockItem{}, fmt.Errorf("%w: %s amount %s exceeds %s or its precision", dao.ErrInvalidOrder, kind, amount, kind.MaxStock())
	}

	var item dao.StockItem
	err := s.db.WithinTx(ctx, func(tx repository.TxInterface) error {
		var err error
		// the row stays locked until commit, so the reported level is exact
		if item, err = tx.LockStock(ctx, kind, id); err != nil {
			return err
		}
		if item.Stock.Add(amount).GreaterThan(kind.MaxStock()) {
			return fmt.Errorf("%w: %s %d would exceed %s", dao.ErrInvalidOrder, kind, id, kind.MaxStock())
		}
		if err := s.ledger.Increment(ctx, tx, kind, id, amount); err != nil {
			return err
		}
		item.Stock = item.Stock.Add(amount)
		return nil
	})
	if err != nil {
		return dao.StockItem{}, txErr("receive stock", err)
	}

	logger.FromContext(ctx, s.log).Info("stock_received", map[string]any{
		"kind": string(kind), "id": id, "amount": amount.String(), "stock": item.Stock.String(),
	})
	return item, nil
}
