package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/chains"
	"github.com/tonswap/backend/internal/events"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/repositories"
	"github.com/tonswap/backend/internal/secrets"
	"github.com/tonswap/backend/internal/swap"
	"go.uber.org/zap"
)

// Config tunes one resolver identity.
type Config struct {
	// ResolverAddress identifies this resolver on both chains.
	ResolverAddress string

	// MinProfitBPS is the minimum resolver fee, in basis points of the taker
	// amount, below which orders are declined.
	MinProfitBPS int

	// MinTimelockSeconds is the protocol minimum timelock duration.
	MinTimelockSeconds int64

	// MaxRetries bounds retry attempts around transient chain failures.
	MaxRetries int

	// RetryBaseDelay is the first backoff step; doubles per attempt.
	RetryBaseDelay time.Duration

	// WaitPollInterval is how often deadline waits re-check the clock.
	WaitPollInterval time.Duration

	// Clock is injectable for tests; defaults to time.Now.
	Clock func() time.Time
}

func (c *Config) fill() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.WaitPollInterval <= 0 {
		c.WaitPollInterval = time.Second
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	if c.MinTimelockSeconds <= 0 {
		c.MinTimelockSeconds = 600
	}
}

// Engine drives accepted orders through deploy -> lock -> withdraw, or into
// the refund path on any failure past deployment. One logical owner per order;
// escrow-mutating steps within an order are strictly sequential.
type Engine struct {
	cfg        Config
	orders     repositories.OrderRepository
	escrows    repositories.EscrowRepository
	executions repositories.ExecutionRepository
	adapters   map[string]chains.Adapter
	sm         *swap.StateMachine
	log        *zap.Logger

	mu     sync.Mutex
	active map[uuid.UUID]struct{}

	// seen holds delivered notification keys grouped per order so the whole
	// group can be dropped once the order settles.
	seen map[uuid.UUID]map[string]struct{}

	// One queue per chain: the wallet seqno/nonce is a single mutable
	// resource, so chain-mutating calls from concurrent orders serialize.
	chainQueues map[string]*sync.Mutex

	wg sync.WaitGroup
}

func NewEngine(
	cfg Config,
	orders repositories.OrderRepository,
	escrows repositories.EscrowRepository,
	executions repositories.ExecutionRepository,
	adapters map[string]chains.Adapter,
	log *zap.Logger,
) *Engine {
	cfg.fill()
	queues := make(map[string]*sync.Mutex, len(adapters))
	for network := range adapters {
		queues[network] = &sync.Mutex{}
	}
	return &Engine{
		cfg:         cfg,
		orders:      orders,
		escrows:     escrows,
		executions:  executions,
		adapters:    adapters,
		sm:          swap.NewStateMachine(),
		log:         log,
		active:      make(map[uuid.UUID]struct{}),
		seen:        make(map[uuid.UUID]map[string]struct{}),
		chainQueues: queues,
	}
}

// Wait blocks until all in-flight executions finish. Used on shutdown and in tests.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// HandleNotification is the at-least-once entry point from the relayer.
// Duplicate deliveries are dropped by (orderID, type, txRef) key.
func (e *Engine) HandleNotification(ctx context.Context, n events.Notification) {
	e.mu.Lock()
	keys := e.seen[n.OrderID]
	if keys == nil {
		keys = make(map[string]struct{})
		e.seen[n.OrderID] = keys
	}
	if _, dup := keys[n.Key()]; dup {
		e.mu.Unlock()
		return
	}
	keys[n.Key()] = struct{}{}
	e.mu.Unlock()

	switch n.Type {
	case events.TypeOrderCreated:
		order, err := e.orders.Get(ctx, n.OrderID)
		if err != nil {
			e.log.Error("order from notification not found", zap.String("order_id", n.OrderID.String()), zap.Error(err))
			return
		}
		e.Accept(ctx, order)
	case events.TypeEscrowWithdrawal:
		if n.Secret == "" {
			return
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.completeWithSecret(ctx, n.OrderID, n.Secret)
		}()
	case events.TypeOrderTimeout:
		e.mu.Lock()
		_, busy := e.active[n.OrderID]
		e.mu.Unlock()
		if busy {
			// The owning execution will hit the same deadline itself.
			return
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleRefund(ctx, n.OrderID)
		}()
	}
}

// forgetOrder drops an order's dedup entries once it reaches a terminal
// state. Replayed notifications for a settled order re-enter the handlers,
// which all no-op on terminal orders.
func (e *Engine) forgetOrder(orderID uuid.UUID) {
	e.mu.Lock()
	delete(e.seen, orderID)
	e.mu.Unlock()
}

// Accept decides whether to run an order and, if so, starts its execution.
// Returns false for unprofitable or already-claimed orders. The profitability
// check is local and synchronous; no chain calls.
func (e *Engine) Accept(ctx context.Context, order *models.Order) bool {
	if !e.Profitable(order) {
		e.log.Info("declining unprofitable order",
			zap.String("order_id", order.ID.String()),
			zap.Int("fee_bps", order.ResolverFeeBPS),
			zap.Int("min_bps", e.cfg.MinProfitBPS),
		)
		return false
	}
	if err := swap.ValidateTiming(order, e.cfg.MinTimelockSeconds); err != nil {
		e.log.Warn("rejecting order with invalid timelocks",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return false
	}

	e.mu.Lock()
	if _, busy := e.active[order.ID]; busy {
		e.mu.Unlock()
		return false
	}
	e.active[order.ID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.active, order.ID)
			e.mu.Unlock()
		}()
		e.execute(ctx, order.ID)
	}()
	return true
}

// Profitable checks the resolver fee against the configured floor.
func (e *Engine) Profitable(order *models.Order) bool {
	if order.ResolverFeeBPS < e.cfg.MinProfitBPS {
		return false
	}
	fee := new(big.Int).Mul(order.TakerAsset.Amount, big.NewInt(int64(order.ResolverFeeBPS)))
	fee.Div(fee, big.NewInt(10_000))
	return fee.Sign() > 0
}

// execute runs the swap protocol for one order. Any failure after the first
// deployment falls into the refund path; the swap is always driven to
// completed or refunded, never abandoned mid-lock.
func (e *Engine) execute(ctx context.Context, orderID uuid.UUID) {
	log := e.log.With(zap.String("order_id", orderID.String()))

	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		return
	}
	if order.Terminal() {
		return
	}

	exec, secret, haveSecret, err := e.commitSecret(ctx, order)
	if err != nil {
		log.Error("secret commitment failed", zap.Error(err))
		return
	}

	source, dest, err := e.deployEscrows(ctx, order, exec, log)
	if err != nil {
		log.Error("escrow deployment failed, entering refund path", zap.Error(err))
		e.handleRefund(ctx, order.ID)
		return
	}

	if err := e.lockBoth(ctx, order, source, dest, log); err != nil {
		log.Error("locking failed, entering refund path", zap.Error(err))
		e.handleRefund(ctx, order.ID)
		return
	}

	if !haveSecret {
		// Maker pre-committed the hash and holds the secret. Both legs are
		// locked; settlement resumes when the relayer observes the on-chain
		// reveal and delivers it via an escrow_withdrawal notification.
		log.Info("both legs locked, waiting for maker to reveal secret")
		return
	}

	if err := e.withdrawBoth(ctx, order, exec, secret, source, dest, log); err != nil {
		log.Error("withdrawal failed, entering refund path", zap.Error(err))
		e.handleRefund(ctx, order.ID)
		return
	}

	exec.Status = models.ExecutionStatusCompleted
	if err := e.executions.Update(ctx, exec); err != nil {
		log.Error("failed to finalize execution", zap.Error(err))
	}
	if err := e.orders.UpdateStatusPhase(ctx, order.ID, models.OrderStatusProcessing, models.OrderStatusCompleted, models.PhaseWithdrawal); err != nil {
		log.Error("failed to mark order completed", zap.Error(err))
	}
	e.forgetOrder(order.ID)
	log.Info("swap completed", zap.String("source_escrow", source.ContractAddress), zap.String("dest_escrow", dest.ContractAddress))
}

// commitSecret fixes the order's hashlock before any escrow exists. A maker
// pre-committed hash is honored; otherwise a fresh secret is generated and its
// hash committed exactly once.
func (e *Engine) commitSecret(ctx context.Context, order *models.Order) (*models.SwapExecution, secrets.Secret, bool, error) {
	now := e.cfg.Clock()

	if exec, err := e.executions.GetByOrder(ctx, order.ID); err == nil {
		// Resumed order: reuse the stored secret material.
		if len(exec.Secrets) > 0 && exec.Secrets[0].Secret != "" {
			s, err := secrets.ParseSecret(exec.Secrets[0].Secret)
			if err != nil {
				return nil, secrets.Secret{}, false, fmt.Errorf("stored secret corrupt: %w", err)
			}
			return exec, s, true, nil
		}
		return exec, secrets.Secret{}, false, nil
	}

	exec := &models.SwapExecution{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Status:    models.ExecutionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var secret secrets.Secret
	haveSecret := false
	if order.SecretHash == "" {
		var err error
		secret, err = secrets.GenerateSecret()
		if err != nil {
			return nil, secrets.Secret{}, false, err
		}
		hash := secrets.HashSecret(secret)
		if err := e.orders.CommitSecretHash(ctx, order.ID, hash.Hex()); err != nil {
			return nil, secrets.Secret{}, false, fmt.Errorf("commit secret hash: %w", err)
		}
		order.SecretHash = hash.Hex()
		exec.Secrets = []models.SecretRecord{{Index: 0, Secret: secret.Hex(), Hash: hash.Hex()}}
		haveSecret = true
	}

	if err := e.executions.Create(ctx, exec); err != nil && !errors.Is(err, repositories.ErrConflict) {
		return nil, secrets.Secret{}, false, err
	}
	return exec, secret, haveSecret, nil
}

// deployEscrows creates the source escrow first, then the destination escrow,
// stamping absolute deadlines at deploy time. Replayed deployments reuse the
// existing record for the (order, role) pair.
func (e *Engine) deployEscrows(ctx context.Context, order *models.Order, exec *models.SwapExecution, log *zap.Logger) (*models.EscrowDeployment, *models.EscrowDeployment, error) {
	source, err := e.deployLeg(ctx, order, models.EscrowRoleSource, order.SourceChain)
	if err != nil {
		return nil, nil, fmt.Errorf("source leg: %w", err)
	}

	if err := e.orders.UpdateStatusPhase(ctx, order.ID, order.Status, models.OrderStatusProcessing, models.PhaseDepositing); err != nil && !errors.Is(err, repositories.ErrStale) {
		return nil, nil, err
	}
	order.Status = models.OrderStatusProcessing
	order.Phase = models.PhaseDepositing

	dest, err := e.deployLeg(ctx, order, models.EscrowRoleDestination, order.DestinationChain)
	if err != nil {
		return source, nil, fmt.Errorf("destination leg: %w", err)
	}

	exec.SourceEscrowID = &source.ID
	exec.DestinationEscrowID = &dest.ID
	exec.Status = models.ExecutionStatusExecuting
	if err := e.executions.Update(ctx, exec); err != nil {
		return source, dest, err
	}

	log.Info("both escrows deployed",
		zap.String("source", source.ContractAddress),
		zap.String("destination", dest.ContractAddress),
	)
	return source, dest, nil
}

func (e *Engine) deployLeg(ctx context.Context, order *models.Order, role, network string) (*models.EscrowDeployment, error) {
	if existing, err := e.escrows.GetByOrderAndRole(ctx, order.ID, role); err == nil {
		return existing, nil
	}

	adapter, ok := e.adapters[network]
	if !ok {
		return nil, fmt.Errorf("no adapter for network %q", network)
	}

	var escrow *models.EscrowDeployment
	err := e.withChainQueue(network, func() error {
		return e.retry(ctx, fmt.Sprintf("deploy %s escrow", role), func() error {
			var err error
			escrow, err = adapter.DeployEscrow(ctx, order, order.SecretHash, role)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if err := e.escrows.Create(ctx, escrow); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return e.escrows.GetByOrderAndRole(ctx, order.ID, role)
		}
		return nil, err
	}
	return escrow, nil
}

// lockBoth waits out the finality window, then locks the two legs. The order
// moves toward withdrawal once both legs report locked.
func (e *Engine) lockBoth(ctx context.Context, order *models.Order, source, dest *models.EscrowDeployment, log *zap.Logger) error {
	for _, esc := range []*models.EscrowDeployment{source, dest} {
		if err := e.waitUntil(ctx, esc.FinalityDeadline); err != nil {
			return err
		}
		if err := e.sm.AuthorizeLock(esc, e.cfg.Clock()); err != nil {
			return err
		}

		adapter := e.adapters[esc.Chain]
		err := e.withChainQueue(esc.Chain, func() error {
			return e.retry(ctx, "lock funds", func() error {
				return adapter.LockFunds(ctx, esc.ContractAddress, esc.Amount)
			})
		})
		if err != nil {
			return fmt.Errorf("lock %s escrow: %w", esc.Role, err)
		}

		if err := e.escrows.UpdateStatus(ctx, esc.ID, models.EscrowStatusDeployed, models.EscrowStatusLocked); err != nil {
			return fmt.Errorf("record %s lock: %w", esc.Role, err)
		}
		esc.Status = models.EscrowStatusLocked
		log.Info("escrow locked", zap.String("role", esc.Role), zap.String("address", esc.ContractAddress))
	}

	if err := e.orders.UpdateStatusPhase(ctx, order.ID, models.OrderStatusProcessing, models.OrderStatusProcessing, models.PhaseWithdrawal); err != nil && !errors.Is(err, repositories.ErrStale) {
		return err
	}
	order.Phase = models.PhaseWithdrawal
	return nil
}

// withdrawBoth settles the swap: source escrow first — that withdrawal is the
// on-chain act that makes the secret public — then the destination escrow with
// the now-public secret. Reversing this order would hand an adversary the
// resolver's destination deposit without releasing the maker's funds.
func (e *Engine) withdrawBoth(ctx context.Context, order *models.Order, exec *models.SwapExecution, secret secrets.Secret, source, dest *models.EscrowDeployment, log *zap.Logger) error {
	for _, esc := range []*models.EscrowDeployment{source, dest} {
		if err := e.sm.AuthorizeWithdraw(swap.WithdrawRequest{
			Escrow:           esc,
			OrderSecretHash:  order.SecretHash,
			Secret:           secret,
			Caller:           e.cfg.ResolverAddress,
			AssignedResolver: order.Resolver,
			Now:              e.cfg.Clock(),
		}); err != nil {
			return fmt.Errorf("withdraw pre-check %s: %w", esc.Role, err)
		}

		adapter := e.adapters[esc.Chain]
		var receipt *chains.TransactionReceipt
		err := e.withChainQueue(esc.Chain, func() error {
			return e.retry(ctx, "withdraw", func() error {
				var err error
				receipt, err = adapter.Withdraw(ctx, esc.ContractAddress, secret, nil)
				return err
			})
		})
		if err != nil {
			return fmt.Errorf("withdraw %s escrow: %w", esc.Role, err)
		}

		if err := e.escrows.UpdateStatus(ctx, esc.ID, models.EscrowStatusLocked, models.EscrowStatusExecuted); err != nil {
			return fmt.Errorf("record %s withdrawal: %w", esc.Role, err)
		}
		esc.Status = models.EscrowStatusExecuted
		log.Info("escrow withdrawn", zap.String("role", esc.Role), zap.String("tx", receipt.TxHash))

		if esc.Role == models.EscrowRoleSource && len(exec.Secrets) > 0 {
			now := e.cfg.Clock()
			exec.Secrets[0].Revealed = true
			exec.Secrets[0].RevealedAt = &now
		}
	}
	return nil
}

// handleRefund settles every non-executed escrow of an order one way or the
// other. Escrows whose cancellation deadline has not passed stay pending and
// are retried on the next timeout-scanner notification.
func (e *Engine) handleRefund(ctx context.Context, orderID uuid.UUID) {
	log := e.log.With(zap.String("order_id", orderID.String()))
	now := e.cfg.Clock()

	escrows, err := e.escrows.ListByOrder(ctx, orderID)
	if err != nil {
		log.Error("refund: failed to list escrows", zap.Error(err))
		return
	}

	if len(escrows) == 0 {
		// Nothing was ever deployed. Once the cancellation window passes the
		// order can never be filled; close it out so the timeout scanner
		// stops re-flagging it.
		order, err := e.orders.Get(ctx, orderID)
		if err != nil || order.Terminal() {
			return
		}
		deadline := order.CreatedAt.Add(time.Duration(order.TimelockDuration) * time.Second)
		if !swap.IsExpired(deadline, now) {
			return
		}
		if err := e.orders.UpdateStatusPhase(ctx, orderID, order.Status, models.OrderStatusFailed, models.PhaseRecovery); err != nil && !errors.Is(err, repositories.ErrStale) {
			log.Error("failed to mark expired order failed", zap.Error(err))
			return
		}
		e.forgetOrder(orderID)
		log.Info("expired order closed without escrows")
		return
	}

	if exec, err := e.executions.GetByOrder(ctx, orderID); err == nil && !exec.Terminal() {
		exec.Status = models.ExecutionStatusRefunding
		_ = e.executions.Update(ctx, exec)
	}

	counterpartyFailed := len(escrows) < 2

	allSettled := len(escrows) > 0
	for _, esc := range escrows {
		if models.IsTerminalEscrowStatus(esc.Status) {
			continue
		}
		if err := e.sm.AuthorizeRefund(esc, now, counterpartyFailed); err != nil {
			if errors.Is(err, swap.ErrTimelockNotElapsed) {
				log.Info("refund not yet permitted, leaving pending",
					zap.String("role", esc.Role),
					zap.Duration("remaining", swap.TimeRemaining(esc.CancellationDeadline, now)),
				)
				allSettled = false
				continue
			}
			log.Error("refund pre-check failed", zap.String("role", esc.Role), zap.Error(err))
			allSettled = false
			continue
		}

		adapter, ok := e.adapters[esc.Chain]
		if !ok {
			log.Error("refund: no adapter", zap.String("chain", esc.Chain))
			allSettled = false
			continue
		}

		from := esc.Status
		err := e.withChainQueue(esc.Chain, func() error {
			return e.retry(ctx, "refund", func() error {
				_, err := adapter.Refund(ctx, esc.ContractAddress)
				return err
			})
		})
		if err != nil {
			if errors.Is(err, chains.ErrContract) {
				// The contract may have settled through a path this process
				// never saw (a maker-side withdrawal, a competing refund).
				// The chain is the source of truth; reconcile before giving up.
				if status, rerr := e.resyncEscrow(ctx, esc); rerr == nil && models.IsTerminalEscrowStatus(status) {
					log.Info("escrow already settled on chain",
						zap.String("role", esc.Role), zap.String("status", status))
					continue
				}
			}
			log.Error("refund call failed", zap.String("role", esc.Role), zap.Error(err))
			allSettled = false
			continue
		}

		if err := e.escrows.UpdateStatus(ctx, esc.ID, from, models.EscrowStatusRefunded); err != nil {
			if !errors.Is(err, repositories.ErrStale) {
				log.Error("failed to record refund", zap.String("role", esc.Role), zap.Error(err))
				allSettled = false
			}
			continue
		}
		log.Info("escrow refunded", zap.String("role", esc.Role), zap.String("address", esc.ContractAddress))
	}

	if !allSettled {
		return
	}

	if exec, err := e.executions.GetByOrder(ctx, orderID); err == nil && !exec.Terminal() {
		exec.Status = models.ExecutionStatusRefunded
		_ = e.executions.Update(ctx, exec)
	}

	order, err := e.orders.Get(ctx, orderID)
	if err != nil || order.Terminal() {
		return
	}
	if err := e.orders.UpdateStatusPhase(ctx, orderID, order.Status, models.OrderStatusRefunded, models.PhaseRecovery); err != nil && !errors.Is(err, repositories.ErrStale) {
		log.Error("failed to mark order refunded", zap.Error(err))
	}
	e.forgetOrder(orderID)
	log.Info("order refunded")
}

// completeWithSecret settles any still-locked escrows of an order once the
// secret has become public through an observed on-chain withdrawal.
func (e *Engine) completeWithSecret(ctx context.Context, orderID uuid.UUID, secretHex string) {
	log := e.log.With(zap.String("order_id", orderID.String()))

	secret, err := secrets.ParseSecret(secretHex)
	if err != nil {
		log.Error("revealed secret is malformed", zap.Error(err))
		return
	}

	order, err := e.orders.Get(ctx, orderID)
	if err != nil || order.Terminal() {
		return
	}

	escrows, err := e.escrows.ListByOrder(ctx, orderID)
	if err != nil {
		log.Error("failed to list escrows", zap.Error(err))
		return
	}

	allExecuted := len(escrows) == 2
	for _, esc := range escrows {
		if esc.Status == models.EscrowStatusExecuted {
			continue
		}
		if esc.Status != models.EscrowStatusLocked {
			allExecuted = false
			continue
		}

		if err := e.sm.AuthorizeWithdraw(swap.WithdrawRequest{
			Escrow:           esc,
			OrderSecretHash:  order.SecretHash,
			Secret:           secret,
			Caller:           e.cfg.ResolverAddress,
			AssignedResolver: order.Resolver,
			Now:              e.cfg.Clock(),
		}); err != nil {
			log.Warn("withdraw with revealed secret not authorized", zap.String("role", esc.Role), zap.Error(err))
			allExecuted = false
			continue
		}

		adapter, ok := e.adapters[esc.Chain]
		if !ok {
			allExecuted = false
			continue
		}
		err := e.withChainQueue(esc.Chain, func() error {
			return e.retry(ctx, "withdraw", func() error {
				_, err := adapter.Withdraw(ctx, esc.ContractAddress, secret, nil)
				return err
			})
		})
		if err != nil {
			if errors.Is(err, chains.ErrContract) {
				// Likely already withdrawn by whoever revealed the secret;
				// the chain decides, the table follows.
				if status, rerr := e.resyncEscrow(ctx, esc); rerr == nil && status == models.EscrowStatusExecuted {
					log.Info("escrow already withdrawn on chain", zap.String("role", esc.Role))
					continue
				}
			}
			log.Error("withdraw with revealed secret failed", zap.String("role", esc.Role), zap.Error(err))
			allExecuted = false
			continue
		}
		if err := e.escrows.UpdateStatus(ctx, esc.ID, models.EscrowStatusLocked, models.EscrowStatusExecuted); err != nil && !errors.Is(err, repositories.ErrStale) {
			log.Error("failed to record withdrawal", zap.String("role", esc.Role), zap.Error(err))
			allExecuted = false
		}
	}

	if !allExecuted {
		return
	}
	if exec, err := e.executions.GetByOrder(ctx, orderID); err == nil && !exec.Terminal() {
		exec.Status = models.ExecutionStatusCompleted
		_ = e.executions.Update(ctx, exec)
	}
	if err := e.orders.UpdateStatusPhase(ctx, orderID, order.Status, models.OrderStatusCompleted, models.PhaseWithdrawal); err != nil && !errors.Is(err, repositories.ErrStale) {
		log.Error("failed to mark order completed", zap.Error(err))
	}
	e.forgetOrder(orderID)
	log.Info("swap completed from revealed secret")
}

// resyncEscrow reads the contract's on-chain state and folds it back into the
// escrow table. Used when a chain call is rejected because the contract moved
// past the table's view, e.g. a maker-side withdrawal this process never made.
// Returns the on-chain status.
func (e *Engine) resyncEscrow(ctx context.Context, esc *models.EscrowDeployment) (string, error) {
	adapter, ok := e.adapters[esc.Chain]
	if !ok {
		return "", fmt.Errorf("no adapter for network %q", esc.Chain)
	}
	snap, err := adapter.GetEscrowStatus(ctx, esc.ContractAddress)
	if err != nil {
		return "", err
	}
	if snap.Status == esc.Status {
		return snap.Status, nil
	}
	if !models.IsValidEscrowTransition(esc.Status, snap.Status) {
		return snap.Status, fmt.Errorf("escrow %s cannot move %s -> %s", esc.ID, esc.Status, snap.Status)
	}
	if err := e.escrows.UpdateStatus(ctx, esc.ID, esc.Status, snap.Status); err != nil && !errors.Is(err, repositories.ErrStale) {
		return snap.Status, err
	}
	esc.Status = snap.Status
	e.log.Info("escrow record reconciled with chain",
		zap.String("escrow_id", esc.ID.String()),
		zap.String("chain", esc.Chain),
		zap.String("status", snap.Status),
	)
	return snap.Status, nil
}

// retry wraps a chain call with bounded exponential backoff. Only transient
// errors are retried; a failed withdraw is retried as a withdraw, never
// reinterpreted as something else.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	delay := e.cfg.RetryBaseDelay
	var err error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			e.log.Warn("retrying chain call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
		if !chains.IsTransient(err) {
			return err
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, err)
}

// withChainQueue serializes wallet-mutating calls per chain.
func (e *Engine) withChainQueue(network string, fn func() error) error {
	q, ok := e.chainQueues[network]
	if !ok {
		return fmt.Errorf("no adapter for network %q", network)
	}
	q.Lock()
	defer q.Unlock()
	return fn()
}

// waitUntil blocks until the injected clock passes the deadline.
func (e *Engine) waitUntil(ctx context.Context, deadline time.Time) error {
	for !swap.IsExpired(deadline, e.cfg.Clock()) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.WaitPollInterval):
		}
	}
	return nil
}
