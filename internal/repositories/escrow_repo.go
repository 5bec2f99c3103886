package repositories

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonswap/backend/internal/models"
)

type EscrowRepo struct {
	pool *pgxpool.Pool
}

func NewEscrowRepo(pool *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

const escrowColumns = `
	id, order_id, role, chain, contract_address, tx_hash, secret_hash, amount, deployer,
	finality_deadline, exclusive_deadline, cancellation_deadline,
	status, created_at, updated_at`

func (r *EscrowRepo) Create(ctx context.Context, e *models.EscrowDeployment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO escrow_deployments (`+escrowColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, e.ID, e.OrderID, e.Role, e.Chain, e.ContractAddress, e.TxHash, e.SecretHash,
		e.Amount.String(), e.Deployer,
		e.FinalityDeadline, e.ExclusiveDeadline, e.CancellationDeadline,
		e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrConflict
	}
	return err
}

func (r *EscrowRepo) Get(ctx context.Context, id uuid.UUID) (*models.EscrowDeployment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_deployments WHERE id = $1`, id)
	return scanEscrow(row)
}

func (r *EscrowRepo) GetByOrderAndRole(ctx context.Context, orderID uuid.UUID, role string) (*models.EscrowDeployment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_deployments WHERE order_id = $1 AND role = $2
	`, orderID, role)
	return scanEscrow(row)
}

func (r *EscrowRepo) GetByAddress(ctx context.Context, chain, address string) (*models.EscrowDeployment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+escrowColumns+` FROM escrow_deployments WHERE chain = $1 AND contract_address = $2
	`, chain, address)
	return scanEscrow(row)
}

func (r *EscrowRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*models.EscrowDeployment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+` FROM escrow_deployments WHERE order_id = $1 ORDER BY role
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EscrowDeployment
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EscrowRepo) ListActive(ctx context.Context, chain string) ([]*models.EscrowDeployment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+escrowColumns+` FROM escrow_deployments
		WHERE chain = $1 AND status NOT IN ('executed', 'refunded', 'failed')
		ORDER BY created_at
	`, chain)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.EscrowDeployment
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateStatus is a compare-and-swap: the terminal-state exclusion in the
// WHERE clause makes "at most one terminal write" a structural guarantee.
func (r *EscrowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE escrow_deployments SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		  AND status NOT IN ('executed', 'refunded', 'failed')
	`, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *EscrowRepo) AnnotateTx(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE escrow_deployments SET tx_hash = $1, updated_at = now() WHERE id = $2
	`, txHash, id)
	return err
}

func scanEscrow(row pgx.Row) (*models.EscrowDeployment, error) {
	var e models.EscrowDeployment
	var amount string
	err := row.Scan(&e.ID, &e.OrderID, &e.Role, &e.Chain, &e.ContractAddress, &e.TxHash,
		&e.SecretHash, &amount, &e.Deployer,
		&e.FinalityDeadline, &e.ExclusiveDeadline, &e.CancellationDeadline,
		&e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if e.Amount, err = parseBig(amount); err != nil {
		return nil, err
	}
	return &e, nil
}
