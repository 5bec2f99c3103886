package swap

import (
	"fmt"
	"time"

	"github.com/tonswap/backend/internal/models"
)

// Deadlines are the absolute time windows of one escrow deployment, stamped
// from the order's relative timing parameters at deploy time t0.
//
//	Finality     — no lock/withdraw before this (reorg safety margin)
//	Exclusive    — before this only the assigned resolver may settle the
//	               destination leg; after, any resolver may
//	Cancellation — after this either party may refund
type Deadlines struct {
	Finality     time.Time `json:"finality"`
	Exclusive    time.Time `json:"exclusive"`
	Cancellation time.Time `json:"cancellation"`
}

// ComputeDeadlines stamps absolute deadlines for an escrow deployed at t0.
// The ordering finality < exclusive < cancellation is the sole correctness
// backstop in lieu of a shared clock, so a violation rejects the order.
func ComputeDeadlines(order *models.Order, t0 time.Time) (Deadlines, error) {
	d := Deadlines{
		Finality:     t0.Add(time.Duration(order.FinalityTimelock) * time.Second),
		Cancellation: t0.Add(time.Duration(order.TimelockDuration) * time.Second),
	}
	d.Exclusive = d.Finality.Add(time.Duration(order.ExclusivePeriod) * time.Second)

	if !d.Finality.Before(d.Exclusive) || !d.Exclusive.Before(d.Cancellation) {
		return Deadlines{}, fmt.Errorf("%w: finality=%s exclusive=%s cancellation=%s",
			ErrInvalidTimelockConfig, d.Finality, d.Exclusive, d.Cancellation)
	}
	return d, nil
}

// ValidateTiming rejects orders whose relative timing parameters cannot yield
// a valid deadline ordering, or that offer weaker guarantees than the protocol
// minimum. Runs at intake, before any chain call.
func ValidateTiming(order *models.Order, minTimelockSeconds int64) error {
	if order.TimelockDuration < minTimelockSeconds {
		return fmt.Errorf("%w: timelock duration %ds below protocol minimum %ds",
			ErrInvalidTimelockConfig, order.TimelockDuration, minTimelockSeconds)
	}
	if order.FinalityTimelock+order.ExclusivePeriod >= order.TimelockDuration {
		return fmt.Errorf("%w: finality (%ds) + exclusive (%ds) must stay below timelock duration (%ds)",
			ErrInvalidTimelockConfig, order.FinalityTimelock, order.ExclusivePeriod, order.TimelockDuration)
	}
	if order.ExclusivePeriod == 0 {
		return fmt.Errorf("%w: exclusive period must be positive", ErrInvalidTimelockConfig)
	}
	return nil
}

// IsExpired reports whether the deadline has passed at now.
func IsExpired(deadline, now time.Time) bool {
	return !now.Before(deadline)
}

// TimeRemaining returns how long until deadline, clamped to zero.
func TimeRemaining(deadline, now time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}
