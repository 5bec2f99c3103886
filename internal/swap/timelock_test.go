package swap

import (
	"errors"
	"testing"
	"time"

	"github.com/tonswap/backend/internal/models"
)

func timingOrder(duration, finality, exclusive int64) *models.Order {
	return &models.Order{
		TimelockDuration: duration,
		FinalityTimelock: finality,
		ExclusivePeriod:  exclusive,
	}
}

func TestValidateTiming(t *testing.T) {
	tests := []struct {
		name      string
		duration  int64
		finality  int64
		exclusive int64
		wantErr   bool
	}{
		{"valid", 3600, 300, 600, false},
		{"tight but valid", 600, 100, 100, false},
		{"below protocol minimum", 300, 30, 60, true},
		{"finality plus exclusive eats whole window", 3600, 1800, 1800, true},
		{"finality plus exclusive overflows window", 3600, 3000, 1200, true},
		{"zero exclusive period", 3600, 300, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTiming(timingOrder(tt.duration, tt.finality, tt.exclusive), 600)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTiming(%d,%d,%d) err = %v, wantErr %v",
					tt.duration, tt.finality, tt.exclusive, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTimelockConfig) {
				t.Errorf("error %v is not ErrInvalidTimelockConfig", err)
			}
		})
	}
}

func TestComputeDeadlinesOrdering(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d, err := ComputeDeadlines(timingOrder(3600, 300, 600), t0)
	if err != nil {
		t.Fatalf("ComputeDeadlines: %v", err)
	}

	if got, want := d.Finality, t0.Add(300*time.Second); !got.Equal(want) {
		t.Errorf("finality = %v, want %v", got, want)
	}
	if got, want := d.Exclusive, t0.Add(900*time.Second); !got.Equal(want) {
		t.Errorf("exclusive = %v, want %v", got, want)
	}
	if got, want := d.Cancellation, t0.Add(3600*time.Second); !got.Equal(want) {
		t.Errorf("cancellation = %v, want %v", got, want)
	}

	if !d.Finality.Before(d.Exclusive) || !d.Exclusive.Before(d.Cancellation) {
		t.Fatal("deadline ordering finality < exclusive < cancellation violated")
	}
}

func TestComputeDeadlinesRejectsBrokenOrdering(t *testing.T) {
	t0 := time.Now()

	tests := []struct {
		name      string
		duration  int64
		finality  int64
		exclusive int64
	}{
		{"exclusive equals cancellation", 900, 300, 600},
		{"exclusive past cancellation", 900, 600, 600},
		{"zero exclusive period", 3600, 300, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeDeadlines(timingOrder(tt.duration, tt.finality, tt.exclusive), t0)
			if !errors.Is(err, ErrInvalidTimelockConfig) {
				t.Errorf("ComputeDeadlines err = %v, want ErrInvalidTimelockConfig", err)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if IsExpired(deadline, deadline.Add(-time.Second)) {
		t.Error("deadline reported expired one second early")
	}
	if !IsExpired(deadline, deadline) {
		t.Error("deadline not expired at the exact instant")
	}
	if !IsExpired(deadline, deadline.Add(time.Second)) {
		t.Error("deadline not expired one second late")
	}
}

func TestTimeRemainingClamped(t *testing.T) {
	deadline := time.Now()

	if got := TimeRemaining(deadline, deadline.Add(time.Hour)); got != 0 {
		t.Errorf("TimeRemaining past deadline = %v, want 0", got)
	}
	if got := TimeRemaining(deadline, deadline.Add(-time.Minute)); got != time.Minute {
		t.Errorf("TimeRemaining = %v, want 1m", got)
	}
}
