package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/offerflow/offerflow-api/internal/domain"
	"github.com/offerflow/offerflow-api/internal/mapper"
	"github.com/offerflow/offerflow-api/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OrderService struct {
	orderRepo *repository.OrderRepository
	logger    *zap.Logger
}

func NewOrderService(orderRepo *repository.OrderRepository, logger *zap.Logger) *OrderService {
	return &OrderService{orderRepo: orderRepo, logger: logger}
}

// GetByID returns an order with its items and shipment reference
func (s *OrderService) GetByID(ctx context.Context, orgID, id uuid.UUID) (*domain.OrderDTO, error) {
	order, err := s.orderRepo.GetByID(ctx, orgID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("order %s not found", id)
		}
		return nil, wrapStoreError(err, "get order")
	}
	dto := mapper.ToOrderDTO(order)
	return &dto, nil
}
