package models

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Escrow roles — which leg of the swap a deployment covers.
const (
	EscrowRoleSource      = "source"
	EscrowRoleDestination = "destination"
)

// Escrow statuses
const (
	EscrowStatusPending  = "pending"
	EscrowStatusDeployed = "deployed"
	EscrowStatusLocked   = "locked"
	EscrowStatusExecuted = "executed"
	EscrowStatusRefunded = "refunded"
	EscrowStatusFailed   = "failed"
)

// Valid escrow status transitions: from -> []to.
// Executed/refunded/failed are terminal; the state machine rejects anything out of them.
var ValidEscrowTransitions = map[string][]string{
	EscrowStatusPending:  {EscrowStatusDeployed, EscrowStatusFailed},
	EscrowStatusDeployed: {EscrowStatusLocked, EscrowStatusRefunded, EscrowStatusFailed},
	EscrowStatusLocked:   {EscrowStatusExecuted, EscrowStatusRefunded, EscrowStatusFailed},
	EscrowStatusExecuted: {},
	EscrowStatusRefunded: {},
	EscrowStatusFailed:   {},
}

func IsValidEscrowTransition(from, to string) bool {
	allowed, ok := ValidEscrowTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalEscrowStatus(status string) bool {
	switch status {
	case EscrowStatusExecuted, EscrowStatusRefunded, EscrowStatusFailed:
		return true
	}
	return false
}

// EscrowDeployment is one on-chain escrow contract backing one leg of an order.
// The resolver engine owns status mutation; the relayer only annotates observed
// transaction hashes.
type EscrowDeployment struct {
	ID              uuid.UUID `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	Role            string    `json:"role"`
	Chain           string    `json:"chain"`
	ContractAddress string    `json:"contract_address"`
	TxHash          string    `json:"tx_hash,omitempty"`
	SecretHash      string    `json:"secret_hash"`
	Amount          *big.Int  `json:"amount"`
	Deployer        string    `json:"deployer"`

	// Absolute deadlines stamped at deploy time from the order's timing parameters.
	FinalityDeadline     time.Time `json:"finality_deadline"`
	ExclusiveDeadline    time.Time `json:"exclusive_deadline"`
	CancellationDeadline time.Time `json:"cancellation_deadline"`

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
