package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict — a record for the same key already exists. Duplicate
	// escrow creation for one (order, role) pair surfaces as this.
	ErrConflict = errors.New("already exists")

	// ErrStale — a guarded update found a different stored state than the
	// caller assumed (terminal status reached, secret hash already set).
	ErrStale = errors.New("stale update rejected")
)

// OrderFilter narrows List queries.
type OrderFilter struct {
	Status string
	Phase  string
	Maker  string
	Limit  int
	Offset int
}

// OrderRepository is the shared order table. Status writes are guarded so a
// terminal status can be written at most once.
type OrderRepository interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, f OrderFilter) ([]*models.Order, error)

	// UpdateStatusPhase compares against the expected current status before
	// writing; returns ErrStale when the stored status moved underneath the
	// caller or is already terminal.
	UpdateStatusPhase(ctx context.Context, id uuid.UUID, fromStatus, toStatus, toPhase string) error

	// CommitSecretHash sets the order's hashlock exactly once; a second
	// commit returns ErrStale.
	CommitSecretHash(ctx context.Context, id uuid.UUID, secretHash string) error

	// ListExpired returns non-terminal orders whose cancellation window
	// (created_at + timelock_duration) has passed. Feeds the timeout scanner.
	ListExpired(ctx context.Context, limit int) ([]*models.Order, error)
}

// EscrowRepository is the shared escrow table. One row per (order, role);
// creation is idempotent via ErrConflict, status writes are CAS-guarded.
type EscrowRepository interface {
	Create(ctx context.Context, e *models.EscrowDeployment) error
	Get(ctx context.Context, id uuid.UUID) (*models.EscrowDeployment, error)
	GetByOrderAndRole(ctx context.Context, orderID uuid.UUID, role string) (*models.EscrowDeployment, error)
	GetByAddress(ctx context.Context, chain, address string) (*models.EscrowDeployment, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.EscrowDeployment, error)

	// ListActive returns non-terminal escrows on one chain. The relayer polls
	// each returned contract address for events; child escrow contracts do
	// not show up in the factory account's history on TON.
	ListActive(ctx context.Context, chain string) ([]*models.EscrowDeployment, error)

	// UpdateStatus performs a compare-and-swap from -> to; returns ErrStale
	// when the stored status is not `from` (including any terminal status).
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error

	// AnnotateTx records an observed on-chain transaction hash. The relayer's
	// only write; never touches status.
	AnnotateTx(ctx context.Context, id uuid.UUID, txHash string) error
}

// ExecutionRepository tracks active swap executions.
type ExecutionRepository interface {
	Create(ctx context.Context, e *models.SwapExecution) error
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.SwapExecution, error)
	Update(ctx context.Context, e *models.SwapExecution) error
	Delete(ctx context.Context, id uuid.UUID) error
}
