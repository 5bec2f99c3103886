package services

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/tonswap/backend/internal/config"
	"github.com/tonswap/backend/internal/events"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/repositories"
	"go.uber.org/zap"
)

type publishRecorder struct {
	mu   sync.Mutex
	seen []events.Notification
}

func (p *publishRecorder) handle(n events.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, n)
}

func newTestOrderService(t *testing.T) (*OrderService, *publishRecorder) {
	t.Helper()

	bus := events.NewMemoryBus()
	rec := &publishRecorder{}
	if err := bus.Subscribe(context.Background(), events.StreamSwapEvents, rec.handle); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cfg := &config.Config{MinTimelockSeconds: 600}
	svc := NewOrderService(
		repositories.NewMemoryOrderRepo(),
		repositories.NewMemoryEscrowRepo(),
		bus,
		cfg,
		zap.NewNop(),
	)
	return svc, rec
}

func validOrder() *models.Order {
	return &models.Order{
		Maker:            "maker-1",
		MakerAsset:       models.Asset{Kind: models.AssetKindNative, Amount: big.NewInt(5_000_000_000), Network: "ton-testnet"},
		TakerAsset:       models.Asset{Kind: models.AssetKindNative, Amount: big.NewInt(2_000_000_000), Network: "evm-sepolia"},
		SourceChain:      "ton-testnet",
		DestinationChain: "evm-sepolia",
		RefundAddress:    "maker-refund",
		TargetAddress:    "maker-target",
		ResolverFeeBPS:   50,
		TimelockDuration: 3600,
		FinalityTimelock: 300,
		ExclusivePeriod:  300,
	}
}

func TestCreateOrderAnnounces(t *testing.T) {
	svc, rec := newTestOrderService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, validOrder())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if created.Status != models.OrderStatusCreated {
		t.Errorf("status = %s, want created", created.Status)
	}
	if created.Phase != models.PhaseAnnouncement {
		t.Errorf("phase = %s, want announcement", created.Phase)
	}

	if len(rec.seen) != 1 || rec.seen[0].Type != events.TypeOrderCreated {
		t.Fatalf("expected one order_created announcement, got %+v", rec.seen)
	}
	if rec.seen[0].OrderID != created.ID {
		t.Errorf("announced order %s, want %s", rec.seen[0].OrderID, created.ID)
	}
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestOrderService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.Order)
	}{
		{"missing maker", func(o *models.Order) { o.Maker = "" }},
		{"zero amount", func(o *models.Order) { o.TakerAsset.Amount = big.NewInt(0) }},
		{"token asset without token", func(o *models.Order) { o.MakerAsset.Kind = models.AssetKindJetton }},
		{"timelock below minimum", func(o *models.Order) { o.TimelockDuration = 120 }},
		{"zero exclusive period", func(o *models.Order) { o.ExclusivePeriod = 0 }},
		{"finality eats whole window", func(o *models.Order) { o.FinalityTimelock = 3600 }},
		{"truncated secret hash", func(o *models.Order) { o.SecretHash = "deadbeef" }},
		{"non-hex secret hash", func(o *models.Order) { o.SecretHash = strings.Repeat("zz", 32) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(order)
			if _, err := svc.CreateOrder(ctx, order); err == nil {
				t.Error("invalid order was accepted")
			}
		})
	}
}

func TestCancelOrder(t *testing.T) {
	svc, rec := newTestOrderService(t)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, validOrder())
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := svc.CancelOrder(ctx, created.ID, "someone-else"); err == nil {
		t.Fatal("non-maker cancelled the order")
	}
	if err := svc.CancelOrder(ctx, created.ID, created.Maker); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	got, err := svc.GetOrder(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != models.OrderStatusFailed || got.Phase != models.PhaseRecovery {
		t.Errorf("cancelled order is %s/%s, want failed/recovery", got.Status, got.Phase)
	}

	// A settled or already-cancelled order cannot be cancelled again.
	if err := svc.CancelOrder(ctx, created.ID, created.Maker); err == nil {
		t.Fatal("second cancel succeeded")
	}

	var timeouts int
	for _, n := range rec.seen {
		if n.Type == events.TypeOrderTimeout {
			timeouts++
		}
	}
	if timeouts != 1 {
		t.Errorf("order_timeout announcements = %d, want 1", timeouts)
	}
}
