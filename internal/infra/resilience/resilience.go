// Package resilience wraps the outbound HTTP clients with retry,
// circuit-breaker and bulkhead policies. Payment-gateway calls are the
// main consumer; a charge creation that flaps must not hammer the
// provider nor pile up goroutines behind a slow backend.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// Config carries the tunables shared by all outbound clients.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

const maxBackoff = 30 * time.Second

// RetryWithBackoff runs fn up to MaxRetries+1 times with exponential
// backoff and jitter. It returns as soon as fn succeeds, the context is
// cancelled, or the attempts run out (last error wins).
func RetryWithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	backoff := cfg.InitialBackoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return lastErr
		}

		wait := backoff
		if wait > 0 {
			wait += time.Duration(rand.Int63n(int64(wait)/2 + 1))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

// NewCircuitBreaker builds a breaker tuned for the payment gateway and
// storefront backend: trip after 5+ requests with a 60% failure ratio,
// probe with 3 requests when half-open.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

// Bulkhead caps the number of in-flight calls to a downstream.
type Bulkhead struct {
	slots chan struct{}
}

func NewBulkhead(maxConcurrency int) *Bulkhead {
	return &Bulkhead{slots: make(chan struct{}, maxConcurrency)}
}

// Acquire takes a slot, blocking until one frees up or ctx is done.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bulkhead) Release() {
	<-b.slots
}
