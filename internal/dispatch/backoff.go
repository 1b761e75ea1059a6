package dispatch

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant waits the same interval after every failed attempt.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay after each failed attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(exponentialBase(e.Initial, attempt), e.Max)
}

// ExponentialWithJitter picks a random delay in [Initial, min(Initial * 2^(attempt-1), Max)].
// The lower bound keeps retries from ever firing immediately.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration between Initial and the capped exponential delay.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	upper := capped(exponentialBase(e.Initial, attempt), e.Max)
	if upper <= e.Initial {
		return upper
	}
	spread := float64(upper - e.Initial)
	return e.Initial + time.Duration(rand.Float64()*spread) //nolint:gosec // jitter does not need crypto rand
}

// DefaultStrategy is used for kinds registered without a Backoff:
// exponential with jitter, 1s initial, 1m max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(time.Second, time.Minute)
}

func exponentialBase(initial time.Duration, attempt int) float64 {
	if attempt < 1 {
		attempt = 1
	}
	return float64(initial) * math.Pow(2, float64(attempt-1))
}

func capped(d float64, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}
