// Package retry provides the backoff policy used while polling a running
// query through transient failures.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines how many consecutive transient failures are tolerated and
// how long to wait between them.
type Policy struct {
	// MaxAttempts is the number of consecutive attempts (including the
	// first) before giving up. Must be at least 1.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries. 0 means no cap.
	MaxDelay time.Duration

	// Multiplier is applied to the delay after each retry.
	Multiplier float64

	// Jitter is a random factor (0-1) applied to the delay.
	Jitter float64
}

// Default tolerates 5 consecutive failures: 500ms, 1s, 2s, 4s between them.
func Default() Policy {
	return Policy{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// NoRetry gives up on the first failure.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1, Multiplier: 1.0}
}

// NextDelay returns the wait before retry number attempt (1-indexed).
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		// [1-jitter, 1+jitter]
		delay = time.Duration(float64(delay) * (1 - p.Jitter + 2*p.Jitter*rand.Float64()))
	}
	return delay
}

// ShouldRetry reports whether another attempt may follow failed attempt
// number attempt (1-indexed).
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
