package models

import (
	"time"

	"github.com/google/uuid"
)

// Execution statuses
const (
	ExecutionStatusPending   = "pending"
	ExecutionStatusExecuting = "executing"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusRefunding = "refunding"
	ExecutionStatusRefunded  = "refunded"
	ExecutionStatusFailed    = "failed"
)

// SecretRecord holds one hashlock secret. The secret stays empty in shared
// storage until the resolver reveals it on-chain at settlement time.
type SecretRecord struct {
	Index      int        `json:"index"`
	Secret     string     `json:"secret,omitempty"` // hex, revealed only at settlement
	Hash       string     `json:"hash"`             // hex SHA-256, public from order creation
	Revealed   bool       `json:"revealed"`
	RevealedAt *time.Time `json:"revealed_at,omitempty"`
}

// SwapExecution binds an order to its two escrow deployments and the secret
// material driving them. One per accepted order; removed from active tracking
// once terminal.
type SwapExecution struct {
	ID                  uuid.UUID      `json:"id"`
	OrderID             uuid.UUID      `json:"order_id"`
	SourceEscrowID      *uuid.UUID     `json:"source_escrow_id,omitempty"`
	DestinationEscrowID *uuid.UUID     `json:"destination_escrow_id,omitempty"`
	Secrets             []SecretRecord `json:"secrets,omitempty"`
	Status              string         `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (e *SwapExecution) Terminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusRefunded, ExecutionStatusFailed:
		return true
	}
	return false
}
