package service

import (
	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/kitchen/repository"
)

type Service struct {
	KitchenService KitchenServiceInterface
}

func New(db repository.Repository, orders OrderAdvancer, log *logger.Logger, opts Options) *Service {
	return &Service{
		KitchenService: NewKitchenService(db.KitchenRepo, orders, log, opts),
	}
}
