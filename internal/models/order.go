package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Order phases — the coarse swap lifecycle as seen by makers.
const (
	PhaseAnnouncement = "announcement"
	PhaseDepositing   = "depositing"
	PhaseWithdrawal   = "withdrawal"
	PhaseRecovery     = "recovery"
)

// Order statuses
const (
	OrderStatusCreated    = "created"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// Valid phase transitions: from -> []to.
// Recovery is reachable from any non-terminal phase; nothing leaves recovery.
var ValidPhaseTransitions = map[string][]string{
	PhaseAnnouncement: {PhaseDepositing, PhaseRecovery},
	PhaseDepositing:   {PhaseWithdrawal, PhaseRecovery},
	PhaseWithdrawal:   {PhaseRecovery},
	PhaseRecovery:     {},
}

func IsValidPhaseTransition(from, to string) bool {
	allowed, ok := ValidPhaseTransitions[from]
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

// Asset kinds
const (
	AssetKindNative = "native"
	AssetKindJetton = "jetton"
	AssetKindERC20  = "erc20"
)

// Asset identifies one leg's value: kind, token contract (empty for native coins),
// amount in the chain's smallest unit, and the network it lives on.
type Asset struct {
	Kind    string   `json:"kind"`
	Token   string   `json:"token,omitempty"`
	Amount  *big.Int `json:"amount"`
	Network string   `json:"network"`
}

func (a Asset) Validate() error {
	if a.Network == "" {
		return fmt.Errorf("asset network is required")
	}
	if a.Amount == nil || a.Amount.Sign() <= 0 {
		return fmt.Errorf("asset amount must be positive")
	}
	switch a.Kind {
	case AssetKindNative:
	case AssetKindJetton, AssetKindERC20:
		if a.Token == "" {
			return fmt.Errorf("token identifier is required for %s assets", a.Kind)
		}
	default:
		return fmt.Errorf("unknown asset kind %q", a.Kind)
	}
	return nil
}

// Order is a maker's swap intent: trade MakerAsset on SourceChain for TakerAsset
// on DestinationChain, settled through paired hashlocked escrows.
type Order struct {
	ID               uuid.UUID `json:"id"`
	Maker            string    `json:"maker"`
	Resolver         string    `json:"resolver,omitempty"`
	MakerAsset       Asset     `json:"maker_asset"`
	TakerAsset       Asset     `json:"taker_asset"`
	SourceChain      string    `json:"source_chain"`
	DestinationChain string    `json:"destination_chain"`
	RefundAddress    string    `json:"refund_address"`
	TargetAddress    string    `json:"target_address"`

	// SecretHash is the hex SHA-256 commitment (or Merkle root for partial fills).
	// Set exactly once; immutable after either escrow referencing it is deployed.
	SecretHash string `json:"secret_hash,omitempty"`

	// ResolverFeeBPS is the resolver's fee in basis points of the taker amount.
	ResolverFeeBPS int `json:"resolver_fee_bps"`

	// Timing parameters in seconds; absolute deadlines are stamped at deploy time.
	TimelockDuration int64 `json:"timelock_duration"`
	FinalityTimelock int64 `json:"finality_timelock"`
	ExclusivePeriod  int64 `json:"exclusive_period"`

	MakerSafetyDeposit *big.Int `json:"maker_safety_deposit,omitempty"`
	TakerSafetyDeposit *big.Int `json:"taker_safety_deposit,omitempty"`

	Status    string    `json:"status"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks structural invariants that must hold before any chain call.
func (o *Order) Validate() error {
	if o.Maker == "" {
		return fmt.Errorf("maker address is required")
	}
	if o.RefundAddress == "" {
		return fmt.Errorf("refund address is required")
	}
	if o.TargetAddress == "" {
		return fmt.Errorf("target address is required")
	}
	if o.SourceChain == "" || o.DestinationChain == "" {
		return fmt.Errorf("source and destination chains are required")
	}
	if err := o.MakerAsset.Validate(); err != nil {
		return fmt.Errorf("maker asset: %w", err)
	}
	if err := o.TakerAsset.Validate(); err != nil {
		return fmt.Errorf("taker asset: %w", err)
	}
	if o.ResolverFeeBPS < 0 {
		return fmt.Errorf("resolver fee must not be negative")
	}
	if o.TimelockDuration <= 0 || o.FinalityTimelock <= 0 || o.ExclusivePeriod < 0 {
		return fmt.Errorf("timelock parameters must be positive")
	}
	return nil
}

// Terminal reports whether the order needs no further driving.
func (o *Order) Terminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusRefunded, OrderStatusFailed:
		return true
	}
	return false
}
