package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/infra/resilience"
)

func TestRetryWithBackoff(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: 5 * time.Millisecond}

	tests := []struct {
		name      string
		failUntil int // calls that fail before succeeding; -1 never succeeds
		wantCalls int
		wantErr   bool
	}{
		{name: "first call succeeds", failUntil: 0, wantCalls: 1},
		{name: "succeeds after transient failures", failUntil: 2, wantCalls: 3},
		{name: "exhausts retries", failUntil: -1, wantCalls: 4, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := resilience.RetryWithBackoff(context.Background(), cfg, func() error {
				calls++
				if tt.failUntil < 0 || calls <= tt.failUntil {
					return errors.New("gateway unavailable")
				}
				return nil
			})

			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryWithBackoff_CancelledContextStopsImmediately(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 5, InitialBackoff: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	err := resilience.RetryWithBackoff(ctx, cfg, func() error {
		calls++
		return errors.New("should not matter")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("fn ran %d times on a dead context", calls)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("cancelled retry must not sleep through backoff")
	}
}

func TestRetryWithBackoff_CancelDuringBackoff(t *testing.T) {
	cfg := resilience.Config{MaxRetries: 5, InitialBackoff: time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := resilience.RetryWithBackoff(ctx, cfg, func() error {
		return errors.New("persistent")
	})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBulkhead_LimitsConcurrency(t *testing.T) {
	bh := resilience.NewBulkhead(2)

	for i := 0; i < 2; i++ {
		if err := bh.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := bh.Acquire(ctx); err == nil {
		t.Fatal("expected the third acquire to block until timeout")
	}

	bh.Release()
	if err := bh.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
