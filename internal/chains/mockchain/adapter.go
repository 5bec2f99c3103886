package mockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/chains"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/secrets"
	"github.com/tonswap/backend/internal/swap"
)

// Adapter is an in-memory chain that enforces the same hashlock/timelock rules
// a real escrow contract would. Used by engine/relayer tests and local demos.
type Adapter struct {
	mu       sync.Mutex
	network  string
	now      func() time.Time
	escrows  map[string]*escrowState
	events   []chains.ChainEvent
	cursor   uint64
	balances map[string]*big.Int
	failures map[string]error
}

type escrowState struct {
	address    string
	secretHash string
	amount     *big.Int
	role       string
	deadlines  swap.Deadlines
	status     string
}

func New(network string) *Adapter {
	return &Adapter{
		network:  network,
		now:      func() time.Time { return time.Now().UTC() },
		escrows:  make(map[string]*escrowState),
		balances: make(map[string]*big.Int),
		failures: make(map[string]error),
	}
}

// SetClock replaces the adapter's clock. Tests use it to cross deadlines
// without sleeping.
func (a *Adapter) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// FailNext makes the next call of the named operation return err once.
// Operation names: deploy, lock, withdraw, refund.
func (a *Adapter) FailNext(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = err
}

// SetBalance seeds an address balance for GetBalance.
func (a *Adapter) SetBalance(address string, amount *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balances[address] = new(big.Int).Set(amount)
}

func (a *Adapter) takeFailure(op string) error {
	if err, ok := a.failures[op]; ok {
		delete(a.failures, op)
		return err
	}
	return nil
}

func (a *Adapter) emit(eventType, contract, txRef string, amount *big.Int, secret string) {
	a.cursor++
	a.events = append(a.events, chains.ChainEvent{
		Type:     eventType,
		Contract: contract,
		TxRef:    txRef,
		Amount:   amount,
		Secret:   secret,
		Cursor:   a.cursor,
		At:       a.now(),
	})
}

func (a *Adapter) Network() string { return a.network }

func (a *Adapter) DeployEscrow(ctx context.Context, order *models.Order, secretHash, role string) (*models.EscrowDeployment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.takeFailure("deploy"); err != nil {
		return nil, err
	}

	deadlines, err := swap.ComputeDeadlines(order, a.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chains.ErrDeployment, err)
	}

	amount := order.MakerAsset.Amount
	if role == models.EscrowRoleDestination {
		amount = order.TakerAsset.Amount
	}

	addr := fmt.Sprintf("%s:escrow:%s", a.network, uuid.NewString()[:8])
	txRef := fmt.Sprintf("%s:tx:%d", a.network, a.cursor+1)
	a.escrows[addr] = &escrowState{
		address:    addr,
		secretHash: secretHash,
		amount:     new(big.Int).Set(amount),
		role:       role,
		deadlines:  deadlines,
		status:     models.EscrowStatusDeployed,
	}
	a.emit(chains.EventEscrowCreated, addr, txRef, amount, "")

	now := a.now()
	return &models.EscrowDeployment{
		ID:                   uuid.New(),
		OrderID:              order.ID,
		Role:                 role,
		Chain:                a.network,
		ContractAddress:      addr,
		TxHash:               txRef,
		SecretHash:           secretHash,
		Amount:               new(big.Int).Set(amount),
		Deployer:             order.Resolver,
		FinalityDeadline:     deadlines.Finality,
		ExclusiveDeadline:    deadlines.Exclusive,
		CancellationDeadline: deadlines.Cancellation,
		Status:               models.EscrowStatusDeployed,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

func (a *Adapter) LockFunds(ctx context.Context, escrowAddress string, amount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.takeFailure("lock"); err != nil {
		return err
	}

	esc, ok := a.escrows[escrowAddress]
	if !ok {
		return fmt.Errorf("%w: unknown escrow %s", chains.ErrContract, escrowAddress)
	}
	if esc.status != models.EscrowStatusDeployed {
		return fmt.Errorf("%w: escrow %s is %s", chains.ErrContract, escrowAddress, esc.status)
	}
	if !swap.IsExpired(esc.deadlines.Finality, a.now()) {
		return swap.ErrTimelockNotElapsed
	}
	esc.status = models.EscrowStatusLocked
	a.emit(chains.EventEscrowLocked, escrowAddress, fmt.Sprintf("%s:tx:%d", a.network, a.cursor+1), esc.amount, "")
	return nil
}

func (a *Adapter) Withdraw(ctx context.Context, escrowAddress string, secret secrets.Secret, proof *secrets.MerkleProof) (*chains.TransactionReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.takeFailure("withdraw"); err != nil {
		return nil, err
	}

	esc, ok := a.escrows[escrowAddress]
	if !ok {
		return nil, fmt.Errorf("%w: unknown escrow %s", chains.ErrContract, escrowAddress)
	}
	if esc.status != models.EscrowStatusLocked {
		return nil, fmt.Errorf("%w: escrow %s is %s", chains.ErrContract, escrowAddress, esc.status)
	}
	now := a.now()
	if swap.IsExpired(esc.deadlines.Cancellation, now) {
		return nil, swap.ErrTimelockElapsed
	}

	committed, err := secrets.ParseHash(esc.secretHash)
	if err != nil {
		return nil, fmt.Errorf("%w: bad stored hash: %v", chains.ErrContract, err)
	}
	leaf := secrets.HashSecret(secret)
	if proof != nil {
		if !secrets.VerifyProof(proof, leaf, committed) {
			return nil, swap.ErrInvalidSecret
		}
	} else if leaf != committed {
		return nil, swap.ErrInvalidSecret
	}

	esc.status = models.EscrowStatusExecuted
	txRef := fmt.Sprintf("%s:tx:%d", a.network, a.cursor+1)
	a.emit(chains.EventEscrowWithdrawn, escrowAddress, txRef, esc.amount, secret.Hex())
	return &chains.TransactionReceipt{TxHash: txRef, At: now}, nil
}

func (a *Adapter) Refund(ctx context.Context, escrowAddress string) (*chains.TransactionReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.takeFailure("refund"); err != nil {
		return nil, err
	}

	esc, ok := a.escrows[escrowAddress]
	if !ok {
		return nil, fmt.Errorf("%w: unknown escrow %s", chains.ErrContract, escrowAddress)
	}
	switch esc.status {
	case models.EscrowStatusExecuted, models.EscrowStatusRefunded:
		return nil, fmt.Errorf("%w: escrow %s already settled (%s)", chains.ErrContract, escrowAddress, esc.status)
	}
	now := a.now()
	if !swap.IsExpired(esc.deadlines.Cancellation, now) {
		return nil, swap.ErrTimelockNotElapsed
	}

	esc.status = models.EscrowStatusRefunded
	txRef := fmt.Sprintf("%s:tx:%d", a.network, a.cursor+1)
	a.emit(chains.EventEscrowRefunded, escrowAddress, txRef, esc.amount, "")
	return &chains.TransactionReceipt{TxHash: txRef, At: now}, nil
}

func (a *Adapter) GetEscrowStatus(ctx context.Context, escrowAddress string) (*chains.EscrowSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	esc, ok := a.escrows[escrowAddress]
	if !ok {
		return nil, fmt.Errorf("%w: unknown escrow %s", chains.ErrContract, escrowAddress)
	}
	return &chains.EscrowSnapshot{
		Address:    esc.address,
		Status:     esc.status,
		Balance:    new(big.Int).Set(esc.amount),
		SecretHash: esc.secretHash,
		Expiry:     esc.deadlines.Cancellation,
	}, nil
}

func (a *Adapter) GetRecentEvents(ctx context.Context, contractAddress string, sinceCursor uint64) ([]chains.ChainEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []chains.ChainEvent
	for _, ev := range a.events {
		if ev.Cursor <= sinceCursor {
			continue
		}
		if contractAddress != "" && ev.Contract != contractAddress {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (a *Adapter) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b, ok := a.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}
