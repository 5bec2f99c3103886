package chains

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/secrets"
)

var (
	// ErrDeployment — chain rejected the escrow deployment or funds were short.
	ErrDeployment = errors.New("escrow deployment failed")

	// ErrChain — transient on-chain/RPC failure; retried with bounded backoff.
	ErrChain = errors.New("chain call failed")

	// ErrNetwork — transient transport failure; retried with bounded backoff.
	ErrNetwork = errors.New("network failure")

	// ErrContract — explicit on-chain revert; not retried as-is, triggers
	// state re-evaluation and possibly the refund path.
	ErrContract = errors.New("contract rejected operation")

	// ErrInsufficientFunds — deployer balance cannot cover the deposit.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// IsTransient reports whether an adapter error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrChain) || errors.Is(err, ErrNetwork)
}

// Event types emitted by escrow contracts, decoded at the adapter boundary so
// the core never inspects raw payloads.
const (
	EventEscrowCreated   = "escrow_created"
	EventEscrowLocked    = "escrow_locked"
	EventEscrowWithdrawn = "escrow_withdrawal"
	EventEscrowRefunded  = "escrow_refund"
	EventUnknown         = "unknown"
)

// ChainEvent is one decoded escrow-contract event. Unknown opcodes are
// surfaced, not dropped, so the relayer can log what it skips.
type ChainEvent struct {
	Type     string    `json:"type"`
	Contract string    `json:"contract"`
	TxRef    string    `json:"tx_ref"`
	Amount   *big.Int  `json:"amount,omitempty"`
	Secret   string    `json:"secret,omitempty"` // hex, on withdrawal events
	Opcode   uint32    `json:"opcode,omitempty"` // for unknown events
	Cursor   uint64    `json:"cursor"`
	At       time.Time `json:"at"`
}

// TransactionReceipt is returned by mutating chain calls.
type TransactionReceipt struct {
	TxHash string    `json:"tx_hash"`
	Block  uint64    `json:"block,omitempty"`
	At     time.Time `json:"at"`
}

// EscrowSnapshot is the chain's view of one escrow contract.
type EscrowSnapshot struct {
	Address    string    `json:"address"`
	Status     string    `json:"status"`
	Balance    *big.Int  `json:"balance"`
	SecretHash string    `json:"secret_hash"`
	Expiry     time.Time `json:"expiry"`
}

// Adapter is the sole interface the core requires from chain-specific code.
// One implementation per chain; deployment, signing and status queries live
// here, secret material never does.
type Adapter interface {
	// Network returns the network id this adapter serves.
	Network() string

	// DeployEscrow creates the escrow contract for one leg of the order.
	DeployEscrow(ctx context.Context, order *models.Order, secretHash, role string) (*models.EscrowDeployment, error)

	// LockFunds transfers the escrow balance into the contract.
	LockFunds(ctx context.Context, escrowAddress string, amount *big.Int) error

	// Withdraw reveals the secret (plus Merkle proof for partial fills) to
	// claim the escrow. The engine pre-checks locally, but the chain is the
	// final authority.
	Withdraw(ctx context.Context, escrowAddress string, secret secrets.Secret, proof *secrets.MerkleProof) (*TransactionReceipt, error)

	// Refund returns the escrow balance to the depositor after expiry.
	Refund(ctx context.Context, escrowAddress string) (*TransactionReceipt, error)

	// GetEscrowStatus fetches the chain's current view of the escrow.
	GetEscrowStatus(ctx context.Context, escrowAddress string) (*EscrowSnapshot, error)

	// GetRecentEvents returns decoded escrow events past the cursor,
	// oldest first. Drives the relayer's polling loop.
	GetRecentEvents(ctx context.Context, contractAddress string, sinceCursor uint64) ([]ChainEvent, error)

	// GetBalance returns the native balance of an address.
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}
