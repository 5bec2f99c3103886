package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/models"
)

// In-memory repositories with the same guard semantics as the Postgres ones.
// Used by tests and the single-binary demo mode.

type MemoryOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*models.Order
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	return &c
}

func (r *MemoryOrderRepo) Create(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return ErrConflict
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryOrderRepo) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryOrderRepo) List(ctx context.Context, f OrderFilter) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.Phase != "" && o.Phase != f.Phase {
			continue
		}
		if f.Maker != "" && o.Maker != f.Maker {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func orderTerminal(status string) bool {
	switch status {
	case models.OrderStatusCompleted, models.OrderStatusRefunded, models.OrderStatusFailed:
		return true
	}
	return false
}

func (r *MemoryOrderRepo) UpdateStatusPhase(ctx context.Context, id uuid.UUID, fromStatus, toStatus, toPhase string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != fromStatus || orderTerminal(o.Status) {
		return ErrStale
	}
	o.Status = toStatus
	o.Phase = toPhase
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryOrderRepo) CommitSecretHash(ctx context.Context, id uuid.UUID, secretHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.SecretHash != "" {
		return ErrStale
	}
	o.SecretHash = secretHash
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryOrderRepo) ListExpired(ctx context.Context, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var out []*models.Order
	for _, o := range r.orders {
		if orderTerminal(o.Status) {
			continue
		}
		if o.CreatedAt.Add(time.Duration(o.TimelockDuration) * time.Second).Before(now) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type escrowKey struct {
	orderID uuid.UUID
	role    string
}

type MemoryEscrowRepo struct {
	mu      sync.Mutex
	escrows map[uuid.UUID]*models.EscrowDeployment
	byKey   map[escrowKey]uuid.UUID
}

func NewMemoryEscrowRepo() *MemoryEscrowRepo {
	return &MemoryEscrowRepo{
		escrows: make(map[uuid.UUID]*models.EscrowDeployment),
		byKey:   make(map[escrowKey]uuid.UUID),
	}
}

func cloneEscrow(e *models.EscrowDeployment) *models.EscrowDeployment {
	c := *e
	return &c
}

func (r *MemoryEscrowRepo) Create(ctx context.Context, e *models.EscrowDeployment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := escrowKey{orderID: e.OrderID, role: e.Role}
	if _, ok := r.byKey[key]; ok {
		return ErrConflict
	}
	r.escrows[e.ID] = cloneEscrow(e)
	r.byKey[key] = e.ID
	return nil
}

func (r *MemoryEscrowRepo) Get(ctx context.Context, id uuid.UUID) (*models.EscrowDeployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEscrow(e), nil
}

func (r *MemoryEscrowRepo) GetByOrderAndRole(ctx context.Context, orderID uuid.UUID, role string) (*models.EscrowDeployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byKey[escrowKey{orderID: orderID, role: role}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEscrow(r.escrows[id]), nil
}

func (r *MemoryEscrowRepo) GetByAddress(ctx context.Context, chain, address string) (*models.EscrowDeployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.escrows {
		if e.Chain == chain && e.ContractAddress == address {
			return cloneEscrow(e), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryEscrowRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.EscrowDeployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.EscrowDeployment
	for _, e := range r.escrows {
		if e.OrderID == orderID {
			out = append(out, cloneEscrow(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (r *MemoryEscrowRepo) ListActive(ctx context.Context, chain string) ([]*models.EscrowDeployment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.EscrowDeployment
	for _, e := range r.escrows {
		if e.Chain != chain || models.IsTerminalEscrowStatus(e.Status) {
			continue
		}
		out = append(out, cloneEscrow(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryEscrowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != from || models.IsTerminalEscrowStatus(e.Status) {
		return ErrStale
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryEscrowRepo) AnnotateTx(ctx context.Context, id uuid.UUID, txHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[id]
	if !ok {
		return ErrNotFound
	}
	e.TxHash = txHash
	e.UpdatedAt = time.Now().UTC()
	return nil
}

type MemoryExecutionRepo struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*models.SwapExecution
	byOrder    map[uuid.UUID]uuid.UUID
}

func NewMemoryExecutionRepo() *MemoryExecutionRepo {
	return &MemoryExecutionRepo{
		executions: make(map[uuid.UUID]*models.SwapExecution),
		byOrder:    make(map[uuid.UUID]uuid.UUID),
	}
}

func cloneExecution(e *models.SwapExecution) *models.SwapExecution {
	c := *e
	c.Secrets = append([]models.SecretRecord(nil), e.Secrets...)
	return &c
}

func (r *MemoryExecutionRepo) Create(ctx context.Context, e *models.SwapExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byOrder[e.OrderID]; ok {
		return ErrConflict
	}
	r.executions[e.ID] = cloneExecution(e)
	r.byOrder[e.OrderID] = e.ID
	return nil
}

func (r *MemoryExecutionRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.SwapExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExecution(r.executions[id]), nil
}

func (r *MemoryExecutionRepo) Update(ctx context.Context, e *models.SwapExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executions[e.ID]; !ok {
		return ErrNotFound
	}
	updated := cloneExecution(e)
	updated.UpdatedAt = time.Now().UTC()
	r.executions[e.ID] = updated
	return nil
}

func (r *MemoryExecutionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.executions[id]
	if !ok {
		return nil
	}
	delete(r.byOrder, e.OrderID)
	delete(r.executions, id)
	return nil
}
