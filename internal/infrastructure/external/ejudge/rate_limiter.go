package ejudge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PACING
// ══════════════════════════════════════════════════════════════════════════════

// PacerConfig controls how often the standings page may be requested.
type PacerConfig struct {
	// PerSecond is the sustained request rate.
	PerSecond float64

	// MaxWait is the longest a caller waits for its slot. Zero waits forever.
	MaxWait time.Duration

	// Hold is the pause after a 429 that carried no Retry-After.
	Hold time.Duration
}

// DefaultPacerConfig allows one request per second. The standings page is
// heavy to render.
func DefaultPacerConfig() PacerConfig {
	return PacerConfig{
		PerSecond: 1,
		MaxWait:   30 * time.Second,
		Hold:      30 * time.Second,
	}
}

// Pacer hands out request slots at least one gap apart.
type Pacer struct {
	mu      sync.Mutex
	gap     time.Duration
	maxWait time.Duration
	hold    time.Duration
	next    time.Time
}

func NewPacer(cfg PacerConfig) *Pacer {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = DefaultPacerConfig().PerSecond
	}
	return &Pacer{
		gap:     time.Duration(float64(time.Second) / cfg.PerSecond),
		maxWait: cfg.MaxWait,
		hold:    cfg.Hold,
	}
}

// RateLimitError means ejudge, or the pacer on its behalf, refused a request.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Wait reserves the next slot and sleeps until it comes. A slot further
// away than MaxWait is not reserved.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay, err := p.reserve(time.Now())
	if err != nil || delay <= 0 {
		return err
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pacer) reserve(now time.Time) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	delay := slot.Sub(now)
	if p.maxWait > 0 && delay > p.maxWait {
		return 0, &RateLimitError{
			RetryAfter: delay,
			Message:    fmt.Sprintf("rate limit exceeded, retry after %s", delay.Round(time.Second)),
		}
	}
	p.next = slot.Add(p.gap)
	return delay, nil
}

// Hold pushes every slot at least d into the future. Zero d means the
// configured default.
func (p *Pacer) Hold(d time.Duration) {
	if d <= 0 {
		d = p.hold
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if until := time.Now().Add(d); until.After(p.next) {
		p.next = until
	}
}
