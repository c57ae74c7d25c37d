package costquery

import (
	"context"
	"time"
)

// PollPolicy controls how query results are polled.
type PollPolicy struct {
	// BaseInterval is the first wait; each attempt doubles it.
	BaseInterval time.Duration
	// MaxInterval caps the wait between ordinary polls.
	MaxInterval time.Duration
	// ThrottleMaxInterval caps the wait after a throttled poll.
	ThrottleMaxInterval time.Duration
	// MaxAttempts bounds the number of polls, throttled ones included.
	MaxAttempts int
}

// DefaultPollPolicy polls after 1s, 2s, 4s ... capped at 30s, for at most 30 attempts.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		BaseInterval:        time.Second,
		MaxInterval:         30 * time.Second,
		ThrottleMaxInterval: 60 * time.Second,
		MaxAttempts:         30,
	}
}

// WithDefaults fills zero fields from DefaultPollPolicy.
func (p PollPolicy) WithDefaults() PollPolicy {
	d := DefaultPollPolicy()
	if p.BaseInterval <= 0 {
		p.BaseInterval = d.BaseInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.ThrottleMaxInterval <= 0 {
		p.ThrottleMaxInterval = d.ThrottleMaxInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Wait returns min(base * 2^attempt, MaxInterval).
func (p PollPolicy) Wait(attempt int) time.Duration {
	return exponential(p.BaseInterval, attempt, p.MaxInterval)
}

// ThrottleWait returns min(base * 2^(attempt+2), ThrottleMaxInterval).
// It starts four times higher than Wait so throttled workers spread out.
func (p PollPolicy) ThrottleWait(attempt int) time.Duration {
	return exponential(p.BaseInterval, attempt+2, p.ThrottleMaxInterval)
}

func exponential(base time.Duration, exp int, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < exp; i++ {
		if d >= ceiling {
			return ceiling
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
