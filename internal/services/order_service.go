package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/config"
	"github.com/tonswap/backend/internal/events"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/repositories"
	"github.com/tonswap/backend/internal/swap"
	"go.uber.org/zap"
)

type OrderService struct {
	orders    repositories.OrderRepository
	escrows   repositories.EscrowRepository
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewOrderService(
	orders repositories.OrderRepository,
	escrows repositories.EscrowRepository,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		escrows:   escrows,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// CreateOrder validates and persists a new swap intent, then announces it to
// resolvers over the event stream.
func (s *OrderService) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	order.ID = uuid.New()
	order.Status = models.OrderStatusCreated
	order.Phase = models.PhaseAnnouncement
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt

	if err := order.Validate(); err != nil {
		return nil, err
	}
	if err := swap.ValidateTiming(order, s.cfg.MinTimelockSeconds); err != nil {
		return nil, err
	}
	if order.SecretHash != "" {
		raw, err := hex.DecodeString(order.SecretHash)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("secret_hash must be 32 bytes of hex")
		}
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.StreamSwapEvents, events.Notification{
		Type:    events.TypeOrderCreated,
		OrderID: order.ID,
		TxRef:   order.ID.String(),
		At:      time.Now(),
	}); err != nil {
		s.log.Warn("order announcement publish failed", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, f repositories.OrderFilter) ([]*models.Order, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	return s.orders.List(ctx, f)
}

func (s *OrderService) ListEscrows(ctx context.Context, orderID uuid.UUID) ([]*models.EscrowDeployment, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.escrows.ListByOrder(ctx, orderID)
}

// CancelOrder withdraws an unclaimed announcement. Once a resolver has begun
// depositing, cancellation goes through the timelocked refund path instead.
func (s *OrderService) CancelOrder(ctx context.Context, id uuid.UUID, caller string) error {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if caller != "" && caller != order.Maker {
		return fmt.Errorf("only the maker can cancel an order")
	}
	if order.Status != models.OrderStatusCreated || order.Phase != models.PhaseAnnouncement {
		return fmt.Errorf("order %s is %s/%s and can no longer be cancelled", id, order.Status, order.Phase)
	}

	if err := s.orders.UpdateStatusPhase(ctx, id, models.OrderStatusCreated, models.OrderStatusFailed, models.PhaseRecovery); err != nil {
		return err
	}

	_ = s.publisher.Publish(ctx, events.StreamSwapEvents, events.Notification{
		Type:    events.TypeOrderTimeout,
		OrderID: id,
		TxRef:   "cancel:" + id.String(),
		At:      time.Now(),
	})
	return nil
}
