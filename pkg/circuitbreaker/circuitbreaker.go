// Package circuitbreaker stops calls to the standings server after a run of
// failed fetches. After a cool-down one trial fetch is let through; its
// outcome closes or reopens the circuit.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling the guarded function, either
// while cooling down or while the trial fetch is still running.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker guards the ejudge fetch.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	onChange  func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// ForEjudge returns the breaker for standings downloads. It opens after
// threshold consecutive failures and stays open for cooldown. Non-positive
// values fall back to 3 failures and one minute. onChange may be nil.
func ForEjudge(threshold int, cooldown time.Duration, onChange func(from, to State)) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, onChange: onChange}
}

// Execute calls fn unless the circuit is open. A cancelled or expired
// context does not count against the server.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(time.Now()); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit(now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.move(StateHalfOpen)
		b.trial = true
	case StateHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false

	switch {
	case err == nil:
		b.failures = 0
		b.move(StateClosed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.threshold {
			b.openedAt = time.Now()
			b.move(StateOpen)
		}
	}
}

// move must be called with mu held.
func (b *Breaker) move(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.onChange != nil {
		b.onChange(from, to)
	}
}
