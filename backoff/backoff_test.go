package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/cascade/backoff"
)

func TestConstant(t *testing.T) {
	s := backoff.NewConstant(5 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if got := s.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	s := backoff.NewExponential(1*time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := s.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitter(t *testing.T) {
	s := backoff.NewExponentialWithJitter(1*time.Second, 8*time.Second)

	for attempt := 1; attempt <= 6; attempt++ {
		for i := 0; i < 50; i++ {
			d := s.Delay(attempt)
			if d < 0 {
				t.Fatalf("Delay(%d) = %v, want >= 0", attempt, d)
			}
			if d > 8*time.Second {
				t.Fatalf("Delay(%d) = %v, want <= max 8s", attempt, d)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()
	if s == nil {
		t.Fatal("DefaultStrategy returned nil")
	}
	if d := s.Delay(1); d <= 0 {
		t.Errorf("Delay(1) = %v, want > 0", d)
	}
}
