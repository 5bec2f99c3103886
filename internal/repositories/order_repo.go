package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tonswap/backend/internal/models"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `
	id, maker, resolver,
	maker_asset_kind, maker_asset_token, maker_asset_amount, maker_asset_network,
	taker_asset_kind, taker_asset_token, taker_asset_amount, taker_asset_network,
	source_chain, destination_chain, refund_address, target_address,
	secret_hash, resolver_fee_bps,
	timelock_duration, finality_timelock, exclusive_period,
	maker_safety_deposit, taker_safety_deposit,
	status, phase, created_at, updated_at`

func (r *OrderRepo) Create(ctx context.Context, o *models.Order) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`, o.ID, o.Maker, o.Resolver,
		o.MakerAsset.Kind, o.MakerAsset.Token, o.MakerAsset.Amount.String(), o.MakerAsset.Network,
		o.TakerAsset.Kind, o.TakerAsset.Token, o.TakerAsset.Amount.String(), o.TakerAsset.Network,
		o.SourceChain, o.DestinationChain, o.RefundAddress, o.TargetAddress,
		o.SecretHash, o.ResolverFeeBPS,
		o.TimelockDuration, o.FinalityTimelock, o.ExclusivePeriod,
		bigOrNil(o.MakerSafetyDeposit), bigOrNil(o.TakerSafetyDeposit),
		o.Status, o.Phase, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *OrderRepo) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *OrderRepo) List(ctx context.Context, f OrderFilter) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	idx := 1
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Phase != "" {
		query += fmt.Sprintf(" AND phase = $%d", idx)
		args = append(args, f.Phase)
		idx++
	}
	if f.Maker != "" {
		query += fmt.Sprintf(" AND maker = $%d", idx)
		args = append(args, f.Maker)
		idx++
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit)
		idx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", idx)
		args = append(args, f.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepo) UpdateStatusPhase(ctx context.Context, id uuid.UUID, fromStatus, toStatus, toPhase string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $1, phase = $2, updated_at = now()
		WHERE id = $3 AND status = $4
		  AND status NOT IN ('completed', 'refunded', 'failed')
	`, toStatus, toPhase, id, fromStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *OrderRepo) CommitSecretHash(ctx context.Context, id uuid.UUID, secretHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET secret_hash = $1, updated_at = now()
		WHERE id = $2 AND secret_hash = ''
	`, secretHash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *OrderRepo) ListExpired(ctx context.Context, limit int) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status NOT IN ('completed', 'refunded', 'failed')
		  AND created_at + (timelock_duration * interval '1 second') < now()
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	var makerAmount, takerAmount string
	var makerDeposit, takerDeposit *string
	err := row.Scan(&o.ID, &o.Maker, &o.Resolver,
		&o.MakerAsset.Kind, &o.MakerAsset.Token, &makerAmount, &o.MakerAsset.Network,
		&o.TakerAsset.Kind, &o.TakerAsset.Token, &takerAmount, &o.TakerAsset.Network,
		&o.SourceChain, &o.DestinationChain, &o.RefundAddress, &o.TargetAddress,
		&o.SecretHash, &o.ResolverFeeBPS,
		&o.TimelockDuration, &o.FinalityTimelock, &o.ExclusivePeriod,
		&makerDeposit, &takerDeposit,
		&o.Status, &o.Phase, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if o.MakerAsset.Amount, err = parseBig(makerAmount); err != nil {
		return nil, err
	}
	if o.TakerAsset.Amount, err = parseBig(takerAmount); err != nil {
		return nil, err
	}
	if makerDeposit != nil {
		if o.MakerSafetyDeposit, err = parseBig(*makerDeposit); err != nil {
			return nil, err
		}
	}
	if takerDeposit != nil {
		if o.TakerSafetyDeposit, err = parseBig(*takerDeposit); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func bigOrNil(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
