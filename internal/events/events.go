package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stream carrying relayer -> resolver notifications.
const StreamSwapEvents = "swap:events"

// Notification types
const (
	TypeEscrowCreated    = "escrow_created"
	TypeEscrowWithdrawal = "escrow_withdrawal"
	TypeEscrowRefund     = "escrow_refund"
	TypeOrderCreated     = "order_created"
	TypeOrderTimeout     = "order_timeout"
)

// Notification is the typed relayer -> resolver message. Delivery is
// at-least-once; consumers dedup by Key().
type Notification struct {
	Type      string    `json:"type"`
	OrderID   uuid.UUID `json:"order_id"`
	ChainRole string    `json:"chain_role,omitempty"` // source / destination
	TxRef     string    `json:"tx_ref,omitempty"`
	Secret    string    `json:"secret,omitempty"` // hex, on withdrawal notices
	At        time.Time `json:"at"`
}

// Key identifies a notification for deduplication.
func (n Notification) Key() string {
	return fmt.Sprintf("%s|%s|%s", n.OrderID, n.Type, n.TxRef)
}

type Publisher interface {
	Publish(ctx context.Context, stream string, n Notification) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Notification)) error
}
