package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonswap/backend/internal/models"
)

type ExecutionRepo struct {
	pool *pgxpool.Pool
}

func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

func (r *ExecutionRepo) Create(ctx context.Context, e *models.SwapExecution) error {
	secretsJSON, err := json.Marshal(e.Secrets)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO swap_executions (id, order_id, source_escrow_id, destination_escrow_id, secrets, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.OrderID, e.SourceEscrowID, e.DestinationEscrowID, secretsJSON, e.Status, e.CreatedAt, e.UpdatedAt)
	return err
}

func (r *ExecutionRepo) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.SwapExecution, error) {
	var e models.SwapExecution
	var secretsJSON []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, source_escrow_id, destination_escrow_id, secrets, status, created_at, updated_at
		FROM swap_executions WHERE order_id = $1
	`, orderID).Scan(&e.ID, &e.OrderID, &e.SourceEscrowID, &e.DestinationEscrowID,
		&secretsJSON, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(secretsJSON) > 0 {
		if err := json.Unmarshal(secretsJSON, &e.Secrets); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func (r *ExecutionRepo) Update(ctx context.Context, e *models.SwapExecution) error {
	secretsJSON, err := json.Marshal(e.Secrets)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE swap_executions
		SET source_escrow_id = $1, destination_escrow_id = $2, secrets = $3, status = $4, updated_at = now()
		WHERE id = $5
	`, e.SourceEscrowID, e.DestinationEscrowID, secretsJSON, e.Status, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ExecutionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM swap_executions WHERE id = $1`, id)
	return err
}
