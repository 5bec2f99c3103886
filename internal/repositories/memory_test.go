package repositories

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/models"
)

func seedOrder(t *testing.T, r *MemoryOrderRepo) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:               uuid.New(),
		Maker:            "maker-1",
		MakerAsset:       models.Asset{Kind: models.AssetKindNative, Amount: big.NewInt(1), Network: "ton-testnet"},
		TakerAsset:       models.Asset{Kind: models.AssetKindNative, Amount: big.NewInt(1), Network: "evm-sepolia"},
		TimelockDuration: 3600,
		Status:           models.OrderStatusCreated,
		Phase:            models.PhaseAnnouncement,
		CreatedAt:        time.Now().UTC(),
	}
	if err := r.Create(context.Background(), o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestOrderStatusWriteIsGuarded(t *testing.T) {
	r := NewMemoryOrderRepo()
	ctx := context.Background()
	o := seedOrder(t, r)

	// A write with a stale expectation is rejected.
	if err := r.UpdateStatusPhase(ctx, o.ID, models.OrderStatusProcessing, models.OrderStatusCompleted, models.PhaseWithdrawal); !errors.Is(err, ErrStale) {
		t.Fatalf("stale write = %v, want ErrStale", err)
	}

	if err := r.UpdateStatusPhase(ctx, o.ID, models.OrderStatusCreated, models.OrderStatusCompleted, models.PhaseWithdrawal); err != nil {
		t.Fatalf("guarded write: %v", err)
	}

	// Terminal reached; a competing refund write must lose.
	if err := r.UpdateStatusPhase(ctx, o.ID, models.OrderStatusCompleted, models.OrderStatusRefunded, models.PhaseRecovery); !errors.Is(err, ErrStale) {
		t.Fatalf("write out of terminal = %v, want ErrStale", err)
	}

	got, err := r.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.OrderStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestCommitSecretHashOnce(t *testing.T) {
	r := NewMemoryOrderRepo()
	ctx := context.Background()
	o := seedOrder(t, r)

	if err := r.CommitSecretHash(ctx, o.ID, "aa"); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := r.CommitSecretHash(ctx, o.ID, "bb"); !errors.Is(err, ErrStale) {
		t.Fatalf("second commit = %v, want ErrStale", err)
	}

	got, err := r.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SecretHash != "aa" {
		t.Errorf("secret hash = %s, want the first commit to win", got.SecretHash)
	}
}

func TestEscrowUniquePerOrderAndRole(t *testing.T) {
	r := NewMemoryEscrowRepo()
	ctx := context.Background()
	orderID := uuid.New()

	first := &models.EscrowDeployment{
		ID:      uuid.New(),
		OrderID: orderID,
		Role:    models.EscrowRoleSource,
		Chain:   "ton-testnet",
		Status:  models.EscrowStatusDeployed,
	}
	if err := r.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &models.EscrowDeployment{
		ID:      uuid.New(),
		OrderID: orderID,
		Role:    models.EscrowRoleSource,
		Chain:   "ton-testnet",
		Status:  models.EscrowStatusDeployed,
	}
	if err := r.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate (order, role) create = %v, want ErrConflict", err)
	}

	// The other role is a separate leg.
	other := &models.EscrowDeployment{
		ID:      uuid.New(),
		OrderID: orderID,
		Role:    models.EscrowRoleDestination,
		Chain:   "evm-sepolia",
		Status:  models.EscrowStatusDeployed,
	}
	if err := r.Create(ctx, other); err != nil {
		t.Fatalf("destination create: %v", err)
	}
}

func TestEscrowStatusCAS(t *testing.T) {
	r := NewMemoryEscrowRepo()
	ctx := context.Background()

	esc := &models.EscrowDeployment{
		ID:      uuid.New(),
		OrderID: uuid.New(),
		Role:    models.EscrowRoleSource,
		Chain:   "ton-testnet",
		Status:  models.EscrowStatusLocked,
	}
	if err := r.Create(ctx, esc); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := r.UpdateStatus(ctx, esc.ID, models.EscrowStatusLocked, models.EscrowStatusExecuted); err != nil {
		t.Fatalf("locked -> executed: %v", err)
	}

	// Concurrent refund loses the race and must not overwrite.
	if err := r.UpdateStatus(ctx, esc.ID, models.EscrowStatusLocked, models.EscrowStatusRefunded); !errors.Is(err, ErrStale) {
		t.Fatalf("competing terminal write = %v, want ErrStale", err)
	}

	got, err := r.Get(ctx, esc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.EscrowStatusExecuted {
		t.Errorf("status = %s, want executed", got.Status)
	}
}

func TestExecutionCreateIsIdempotentPerOrder(t *testing.T) {
	r := NewMemoryExecutionRepo()
	ctx := context.Background()
	orderID := uuid.New()

	first := &models.SwapExecution{ID: uuid.New(), OrderID: orderID, Status: models.ExecutionStatusPending}
	if err := r.Create(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &models.SwapExecution{ID: uuid.New(), OrderID: orderID, Status: models.ExecutionStatusPending}
	if err := r.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate execution create = %v, want ErrConflict", err)
	}

	got, err := r.GetByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("get by order: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("stored execution %s, want %s", got.ID, first.ID)
	}
}
