// Package clock provides the wall clock and a manually advanced fake.
// Every countdown, polling tick and delay in the payment flows is
// scheduled through the Clock port so timer interleavings are testable
// without real sleeps.
package clock

import (
	"sync"
	"time"

	"github.com/arenastore/checkout-bff-go/internal/port"
)

// Real is the production clock backed by package time.
type Real struct{}

func NewReal() *Real { return &Real{} }

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) port.Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

type realTicker struct{ t *time.Ticker }

func (r *realTicker) Chan() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()                  { r.t.Stop() }

// Fake is a deterministic clock for tests. Advance moves time forward and
// fires every ticker and After that comes due, in order.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
	afters  []*fakeAfter
}

// NewFake creates a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) port.Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		clock:    f,
		interval: d,
		next:     f.now.Add(d),
		ch:       make(chan time.Time, 64),
	}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &fakeAfter{at: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.afters = append(f.afters, a)
	return a.ch
}

// Advance moves the clock forward by d, delivering ticks and expired
// After timers as their deadlines are crossed. Delivery is non-blocking:
// a consumer that stopped reading simply misses ticks, as it would with
// a stopped goroutine on a real ticker.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		// find the earliest pending deadline within the window
		var earliest time.Time
		found := false
		for _, t := range f.tickers {
			if !t.stopped && !t.next.After(target) && (!found || t.next.Before(earliest)) {
				earliest = t.next
				found = true
			}
		}
		for _, a := range f.afters {
			if !a.fired && !a.at.After(target) && (!found || a.at.Before(earliest)) {
				earliest = a.at
				found = true
			}
		}
		if !found {
			break
		}

		f.now = earliest
		for _, t := range f.tickers {
			if !t.stopped && t.next.Equal(earliest) {
				select {
				case t.ch <- earliest:
				default:
				}
				t.next = t.next.Add(t.interval)
			}
		}
		for _, a := range f.afters {
			if !a.fired && a.at.Equal(earliest) {
				a.ch <- earliest
				a.fired = true
			}
		}

		// let consumers run between deliveries
		f.mu.Unlock()
		time.Sleep(time.Millisecond)
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
	// settle goroutines woken by the last delivery
	time.Sleep(2 * time.Millisecond)
}

type fakeTicker struct {
	clock    *Fake
	interval time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

type fakeAfter struct {
	at    time.Time
	ch    chan time.Time
	fired bool
}
