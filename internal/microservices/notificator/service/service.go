package service

import "pizzeria-system/internal/common/logger"

type Service struct {
	NotificatorService NotificatorServiceInterface
}

func New(log *logger.Logger) *Service {
	return &Service{NotificatorService: NewNotificatorService(log)}
}
