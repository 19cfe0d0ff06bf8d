// Package retry repeats an operation with doubling, jittered pauses.
// Only errors marked with Transient are repeated; anything else ends the
// loop at once.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// transientError marks a failure that may go away on its own.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth another attempt. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err carries the Transient mark.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// strip removes the Transient mark so callers see the original error.
func strip(err error) error {
	var t *transientError
	if errors.As(err, &t) {
		return t.err
	}
	return err
}

// Backoff describes a retry loop. The pause before retry n is
// First * 2^(n-1), capped at Ceiling, then spread by ±Jitter of itself.
type Backoff struct {
	// Attempts is the total number of calls, the first one included.
	Attempts int

	First   time.Duration
	Ceiling time.Duration

	// Jitter in [0, 1].
	Jitter float64

	// OnRetry is called before each pause.
	OnRetry func(attempt int, err error, pause time.Duration)
}

// Startup is used while waiting for a backing store to come up.
func Startup() Backoff {
	return Backoff{
		Attempts: 5,
		First:    200 * time.Millisecond,
		Ceiling:  3 * time.Second,
		Jitter:   0.05,
	}
}

// Run calls op until it succeeds, returns an unmarked error or the attempts
// run out. A context cancelled during a pause is joined with the last failure.
func (b Backoff) Run(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(b.Attempts, 1)

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || n >= attempts {
			return strip(err)
		}

		pause := b.pause(n)
		if b.OnRetry != nil {
			b.OnRetry(n, strip(err), pause)
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), strip(err))
		case <-timer.C:
		}
	}
}

func (b Backoff) pause(n int) time.Duration {
	d := b.First << (n - 1)
	if d <= 0 || (b.Ceiling > 0 && d > b.Ceiling) {
		d = b.Ceiling
	}
	if b.Jitter > 0 {
		d += time.Duration(float64(d) * b.Jitter * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}
