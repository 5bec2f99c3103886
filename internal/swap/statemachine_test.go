package swap

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tonswap/backend/internal/models"
	"github.com/tonswap/backend/internal/secrets"
)

func testEscrow(role, status string, t0 time.Time) *models.EscrowDeployment {
	return &models.EscrowDeployment{
		ID:                   uuid.New(),
		OrderID:              uuid.New(),
		Role:                 role,
		Status:               status,
		FinalityDeadline:     t0.Add(5 * time.Minute),
		ExclusiveDeadline:    t0.Add(15 * time.Minute),
		CancellationDeadline: t0.Add(time.Hour),
	}
}

func TestTransitionEscrow(t *testing.T) {
	sm := NewStateMachine()
	t0 := time.Now()

	esc := testEscrow(models.EscrowRoleSource, models.EscrowStatusPending, t0)
	for _, next := range []string{
		models.EscrowStatusDeployed,
		models.EscrowStatusLocked,
		models.EscrowStatusExecuted,
	} {
		if err := sm.TransitionEscrow(esc, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	// Terminal now; every further move must fail.
	for _, next := range []string{
		models.EscrowStatusPending,
		models.EscrowStatusDeployed,
		models.EscrowStatusLocked,
		models.EscrowStatusRefunded,
		models.EscrowStatusFailed,
	} {
		if err := sm.TransitionEscrow(esc, next); !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("transition executed -> %s = %v, want ErrIllegalTransition", next, err)
		}
	}
	if esc.Status != models.EscrowStatusExecuted {
		t.Errorf("status mutated by rejected transition: %s", esc.Status)
	}
}

func TestTransitionEscrowNoSkipping(t *testing.T) {
	sm := NewStateMachine()
	esc := testEscrow(models.EscrowRoleSource, models.EscrowStatusPending, time.Now())

	if err := sm.TransitionEscrow(esc, models.EscrowStatusExecuted); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("pending -> executed = %v, want ErrIllegalTransition", err)
	}
}

func TestAuthorizeLock(t *testing.T) {
	sm := NewStateMachine()
	t0 := time.Now()
	esc := testEscrow(models.EscrowRoleSource, models.EscrowStatusDeployed, t0)

	if err := sm.AuthorizeLock(esc, t0); !errors.Is(err, ErrTimelockNotElapsed) {
		t.Errorf("lock before finality = %v, want ErrTimelockNotElapsed", err)
	}
	if err := sm.AuthorizeLock(esc, esc.FinalityDeadline); err != nil {
		t.Errorf("lock at finality deadline: %v", err)
	}

	esc.Status = models.EscrowStatusPending
	if err := sm.AuthorizeLock(esc, esc.FinalityDeadline); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("lock on pending escrow = %v, want ErrIllegalTransition", err)
	}
}

func TestAuthorizeWithdraw(t *testing.T) {
	sm := NewStateMachine()
	t0 := time.Now()

	secret, err := secrets.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}
	hash := secrets.HashSecret(secret)

	wrongSecret, err := secrets.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret: %v", err)
	}

	base := func(role, status string) *models.EscrowDeployment {
		return testEscrow(role, status, t0)
	}

	tests := []struct {
		name    string
		req     WithdrawRequest
		wantErr error
	}{
		{
			name: "valid secret on source leg",
			req: WithdrawRequest{
				Escrow:          base(models.EscrowRoleSource, models.EscrowStatusLocked),
				OrderSecretHash: hash.Hex(),
				Secret:          secret,
				Now:             t0.Add(10 * time.Minute),
			},
		},
		{
			name: "wrong secret",
			req: WithdrawRequest{
				Escrow:          base(models.EscrowRoleSource, models.EscrowStatusLocked),
				OrderSecretHash: hash.Hex(),
				Secret:          wrongSecret,
				Now:             t0.Add(10 * time.Minute),
			},
			wantErr: ErrInvalidSecret,
		},
		{
			name: "escrow not locked",
			req: WithdrawRequest{
				Escrow:          base(models.EscrowRoleSource, models.EscrowStatusDeployed),
				OrderSecretHash: hash.Hex(),
				Secret:          secret,
				Now:             t0.Add(10 * time.Minute),
			},
			wantErr: ErrIllegalTransition,
		},
		{
			name: "withdraw window closed",
			req: WithdrawRequest{
				Escrow:          base(models.EscrowRoleSource, models.EscrowStatusLocked),
				OrderSecretHash: hash.Hex(),
				Secret:          secret,
				Now:             t0.Add(2 * time.Hour),
			},
			wantErr: ErrTimelockElapsed,
		},
		{
			name: "foreign resolver inside exclusive window",
			req: WithdrawRequest{
				Escrow:           base(models.EscrowRoleDestination, models.EscrowStatusLocked),
				OrderSecretHash:  hash.Hex(),
				Secret:           secret,
				Caller:           "resolver-b",
				AssignedResolver: "resolver-a",
				Now:              t0.Add(10 * time.Minute),
			},
			wantErr: ErrExclusivePeriod,
		},
		{
			name: "foreign resolver after exclusive deadline",
			req: WithdrawRequest{
				Escrow:           base(models.EscrowRoleDestination, models.EscrowStatusLocked),
				OrderSecretHash:  hash.Hex(),
				Secret:           secret,
				Caller:           "resolver-b",
				AssignedResolver: "resolver-a",
				Now:              t0.Add(20 * time.Minute),
			},
		},
		{
			name: "assigned resolver inside exclusive window",
			req: WithdrawRequest{
				Escrow:           base(models.EscrowRoleDestination, models.EscrowStatusLocked),
				OrderSecretHash:  hash.Hex(),
				Secret:           secret,
				Caller:           "resolver-a",
				AssignedResolver: "resolver-a",
				Now:              t0.Add(10 * time.Minute),
			},
		},
		{
			name: "exclusivity does not gate the source leg",
			req: WithdrawRequest{
				Escrow:           base(models.EscrowRoleSource, models.EscrowStatusLocked),
				OrderSecretHash:  hash.Hex(),
				Secret:           secret,
				Caller:           "resolver-b",
				AssignedResolver: "resolver-a",
				Now:              t0.Add(10 * time.Minute),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sm.AuthorizeWithdraw(tt.req)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("AuthorizeWithdraw = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AuthorizeWithdraw = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthorizeWithdrawMerkleProof(t *testing.T) {
	sm := NewStateMachine()
	t0 := time.Now()

	secs := make([]secrets.Secret, 4)
	for i := range secs {
		s, err := secrets.GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret: %v", err)
		}
		secs[i] = s
	}
	tree, err := secrets.BuildMerkleTree(secs)
	if err != nil {
		t.Fatalf("BuildMerkleTree: %v", err)
	}

	esc := testEscrow(models.EscrowRoleSource, models.EscrowStatusLocked, t0)

	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}
	req := WithdrawRequest{
		Escrow:          esc,
		OrderSecretHash: tree.Root.Hex(),
		Secret:          secs[2],
		Proof:           proof,
		Now:             t0.Add(10 * time.Minute),
	}
	if err := sm.AuthorizeWithdraw(req); err != nil {
		t.Errorf("valid merkle withdraw rejected: %v", err)
	}

	// Right secret under the wrong leaf's proof must fail.
	req.Secret = secs[1]
	if err := sm.AuthorizeWithdraw(req); !errors.Is(err, ErrInvalidSecret) {
		t.Errorf("mismatched proof = %v, want ErrInvalidSecret", err)
	}
}

func TestAuthorizeRefund(t *testing.T) {
	sm := NewStateMachine()
	t0 := time.Now()

	tests := []struct {
		name               string
		status             string
		now                time.Time
		counterpartyFailed bool
		wantErr            error
	}{
		{
			name:   "after cancellation deadline",
			status: models.EscrowStatusLocked,
			now:    t0.Add(2 * time.Hour),
		},
		{
			name:    "before cancellation deadline",
			status:  models.EscrowStatusLocked,
			now:     t0.Add(10 * time.Minute),
			wantErr: ErrTimelockNotElapsed,
		},
		{
			name:               "early abort when counterparty never deployed",
			status:             models.EscrowStatusDeployed,
			now:                t0.Add(10 * time.Minute),
			counterpartyFailed: true,
		},
		{
			name:               "no early abort before finality",
			status:             models.EscrowStatusDeployed,
			now:                t0.Add(time.Minute),
			counterpartyFailed: true,
			wantErr:            ErrTimelockNotElapsed,
		},
		{
			name:               "no early abort once locked",
			status:             models.EscrowStatusLocked,
			now:                t0.Add(10 * time.Minute),
			counterpartyFailed: true,
			wantErr:            ErrTimelockNotElapsed,
		},
		{
			name:    "terminal escrow",
			status:  models.EscrowStatusExecuted,
			now:     t0.Add(2 * time.Hour),
			wantErr: ErrIllegalTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			esc := testEscrow(models.EscrowRoleSource, tt.status, t0)
			err := sm.AuthorizeRefund(esc, tt.now, tt.counterpartyFailed)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("AuthorizeRefund = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AuthorizeRefund = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
