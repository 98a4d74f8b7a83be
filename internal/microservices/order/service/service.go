package service

import (
	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/repository"
)

type Service struct {
	OrderService OrderServiceInterface
	StockService StockServiceInterface
}

func New(db repository.Repository, events EventPublisherInterface, log *logger.Logger, opts ...Option) *Service {
	ledger := NewStockLedger(db.OrderRepo)
	return &Service{
		OrderService: NewOrderService(db.OrderRepo, ledger, NewRecipeResolver(), events, log, opts...),
		StockService: NewStockService(db.OrderRepo, ledger, log),
	}
}
