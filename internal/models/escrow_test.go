package models

import "testing"

func TestIsValidEscrowTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{EscrowStatusPending, EscrowStatusDeployed, true},
		{EscrowStatusDeployed, EscrowStatusLocked, true},
		{EscrowStatusLocked, EscrowStatusExecuted, true},

		// Recovery paths
		{EscrowStatusPending, EscrowStatusFailed, true},
		{EscrowStatusDeployed, EscrowStatusRefunded, true},
		{EscrowStatusDeployed, EscrowStatusFailed, true},
		{EscrowStatusLocked, EscrowStatusRefunded, true},
		{EscrowStatusLocked, EscrowStatusFailed, true},

		// No skipping
		{EscrowStatusPending, EscrowStatusLocked, false},
		{EscrowStatusPending, EscrowStatusExecuted, false},
		{EscrowStatusDeployed, EscrowStatusExecuted, false},

		// Terminal statuses never move
		{EscrowStatusExecuted, EscrowStatusRefunded, false},
		{EscrowStatusExecuted, EscrowStatusLocked, false},
		{EscrowStatusRefunded, EscrowStatusExecuted, false},
		{EscrowStatusRefunded, EscrowStatusDeployed, false},
		{EscrowStatusFailed, EscrowStatusPending, false},

		// Unknown statuses
		{"nonexistent", EscrowStatusDeployed, false},
		{EscrowStatusPending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidEscrowTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidEscrowTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllEscrowStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{
		EscrowStatusPending, EscrowStatusDeployed, EscrowStatusLocked,
		EscrowStatusExecuted, EscrowStatusRefunded, EscrowStatusFailed,
	}

	for _, status := range allStatuses {
		if _, ok := ValidEscrowTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidEscrowTransitions map", status)
		}
	}
}

func TestIsTerminalEscrowStatus(t *testing.T) {
	terminals := []string{EscrowStatusExecuted, EscrowStatusRefunded, EscrowStatusFailed}
	for _, status := range terminals {
		if !IsTerminalEscrowStatus(status) {
			t.Errorf("expected %q to be terminal", status)
		}
		if targets := ValidEscrowTransitions[status]; len(targets) != 0 {
			t.Errorf("terminal status %q has outgoing transitions %v", status, targets)
		}
	}

	for _, status := range []string{EscrowStatusPending, EscrowStatusDeployed, EscrowStatusLocked} {
		if IsTerminalEscrowStatus(status) {
			t.Errorf("did not expect %q to be terminal", status)
		}
	}
}

func TestIsValidPhaseTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{PhaseAnnouncement, PhaseDepositing, true},
		{PhaseDepositing, PhaseWithdrawal, true},

		// Recovery is reachable from everywhere except itself
		{PhaseAnnouncement, PhaseRecovery, true},
		{PhaseDepositing, PhaseRecovery, true},
		{PhaseWithdrawal, PhaseRecovery, true},
		{PhaseRecovery, PhaseAnnouncement, false},
		{PhaseRecovery, PhaseWithdrawal, false},

		// No skipping or going backwards
		{PhaseAnnouncement, PhaseWithdrawal, false},
		{PhaseWithdrawal, PhaseDepositing, false},
		{PhaseDepositing, PhaseAnnouncement, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidPhaseTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidPhaseTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}
