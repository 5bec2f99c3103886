package swap

import (
	"fmt"
	"time"

	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/secrets"
)

// StateMachine is the single authority on order-phase and escrow-status
// transitions. The engine and relayer query it before issuing chain
// operations; the on-chain contracts enforce the same rules independently,
// but a rule violation must never be discovered only via a failed transaction.
type StateMachine struct{}

func NewStateMachine() *StateMachine {
	return &StateMachine{}
}

// TransitionEscrow moves an escrow to the target status after checking the
// transition table. Any attempt out of a terminal status is rejected with
// ErrIllegalTransition so callers can detect double-processing.
func (m *StateMachine) TransitionEscrow(esc *models.EscrowDeployment, to string) error {
	if models.IsTerminalEscrowStatus(esc.Status) {
		return fmt.Errorf("%w: escrow %s is terminal (%s), refusing %s",
			ErrIllegalTransition, esc.ID, esc.Status, to)
	}
	if !models.IsValidEscrowTransition(esc.Status, to) {
		return fmt.Errorf("%w: escrow %s cannot move %s -> %s",
			ErrIllegalTransition, esc.ID, esc.Status, to)
	}
	esc.Status = to
	esc.UpdatedAt = time.Now().UTC()
	return nil
}

// TransitionPhase moves an order to the target phase.
func (m *StateMachine) TransitionPhase(order *models.Order, to string) error {
	if !models.IsValidPhaseTransition(order.Phase, to) {
		return fmt.Errorf("%w: order %s cannot move %s -> %s",
			ErrIllegalTransition, order.ID, order.Phase, to)
	}
	order.Phase = to
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// AuthorizeLock permits deployed -> locked only after the finality deadline,
// the source-chain reorg safety margin.
func (m *StateMachine) AuthorizeLock(esc *models.EscrowDeployment, now time.Time) error {
	if esc.Status != models.EscrowStatusDeployed {
		return fmt.Errorf("%w: escrow %s is %s, lock requires %s",
			ErrIllegalTransition, esc.ID, esc.Status, models.EscrowStatusDeployed)
	}
	if !IsExpired(esc.FinalityDeadline, now) {
		return fmt.Errorf("%w: finality deadline %s ahead of %s",
			ErrTimelockNotElapsed, esc.FinalityDeadline.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	return nil
}

// WithdrawRequest carries everything the withdraw guard needs. Proof is nil
// for full fills; for partial fills the secret authorizes one Merkle leaf.
type WithdrawRequest struct {
	Escrow           *models.EscrowDeployment
	OrderSecretHash  string
	Secret           secrets.Secret
	Proof            *secrets.MerkleProof
	Caller           string
	AssignedResolver string
	Now              time.Time
}

// AuthorizeWithdraw permits locked -> executed only with a secret (or Merkle
// proof) matching the committed hash, before the cancellation deadline, and —
// on the destination leg — only by the assigned resolver until the exclusive
// deadline opens settlement to anyone.
func (m *StateMachine) AuthorizeWithdraw(req WithdrawRequest) error {
	esc := req.Escrow
	if esc.Status != models.EscrowStatusLocked {
		return fmt.Errorf("%w: escrow %s is %s, withdraw requires %s",
			ErrIllegalTransition, esc.ID, esc.Status, models.EscrowStatusLocked)
	}
	if IsExpired(esc.CancellationDeadline, req.Now) {
		return fmt.Errorf("%w: cancellation deadline %s passed, withdraw window closed",
			ErrTimelockElapsed, esc.CancellationDeadline.Format(time.RFC3339))
	}
	if esc.Role == models.EscrowRoleDestination && req.AssignedResolver != "" &&
		req.Caller != "" && req.Caller != req.AssignedResolver &&
		!IsExpired(esc.ExclusiveDeadline, req.Now) {
		return fmt.Errorf("%w: caller %s is not the assigned resolver %s",
			ErrExclusivePeriod, req.Caller, req.AssignedResolver)
	}

	committed, err := secrets.ParseHash(req.OrderSecretHash)
	if err != nil {
		return fmt.Errorf("committed hash is malformed: %w", err)
	}
	leaf := secrets.HashSecret(req.Secret)
	if req.Proof != nil {
		if !secrets.VerifyProof(req.Proof, leaf, committed) {
			return fmt.Errorf("%w: merkle proof for index %d does not reach root",
				ErrInvalidSecret, req.Proof.Index)
		}
		return nil
	}
	if leaf != committed {
		return ErrInvalidSecret
	}
	return nil
}

// AuthorizeRefund permits a refund after the cancellation deadline, or as an
// early abort when the escrow never reached locked and the counterparty leg
// failed to deploy within the finality window.
func (m *StateMachine) AuthorizeRefund(esc *models.EscrowDeployment, now time.Time, counterpartyFailed bool) error {
	if models.IsTerminalEscrowStatus(esc.Status) {
		return fmt.Errorf("%w: escrow %s is terminal (%s)", ErrIllegalTransition, esc.ID, esc.Status)
	}
	if IsExpired(esc.CancellationDeadline, now) {
		return nil
	}
	if esc.Status != models.EscrowStatusLocked && counterpartyFailed && IsExpired(esc.FinalityDeadline, now) {
		return nil
	}
	return fmt.Errorf("%w: cancellation deadline %s not reached",
		ErrTimelockNotElapsed, esc.CancellationDeadline.Format(time.RFC3339))
}
