// ABOUTME: Retry schedule for failed refreshes built on exponential backoff
// ABOUTME: Bounded retries with jitter, derived from the retry configuration

package refresh

import (
	"errors"
	"time"

	"github.com/cenk/backoff"

	"github.com/hikmaai-io/hikmaai-pkgaudit/internal/config"
)

// Default retry values used for zero config fields.
const (
	DefaultMaxRetries     = 5
	DefaultInitialDelay   = 30 * time.Second
	DefaultMaxDelay       = 30 * time.Minute
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.2
)

// ValidateRetry checks a retry configuration.
func ValidateRetry(cfg config.RetryConfig) error {
	if cfg.JitterFraction < 0 || cfg.JitterFraction > 1 {
		return errors.New("jitter fraction must be between 0 and 1")
	}
	if cfg.Multiplier != 0 && cfg.Multiplier < 1 {
		return errors.New("multiplier must be at least 1")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	return nil
}

// Retrier hands out delays between refresh attempts.
type Retrier struct {
	policy   backoff.BackOff
	attempts int
}

// NewRetrier builds a Retrier. Zero fields use the defaults; a zero
// JitterFraction disables jitter.
func NewRetrier(cfg config.RetryConfig) *Retrier {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = DefaultMultiplier
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialDelay
	exp.MaxInterval = cfg.MaxDelay
	exp.Multiplier = cfg.Multiplier
	exp.RandomizationFactor = cfg.JitterFraction
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &Retrier{
		policy: backoff.WithMaxRetries(exp, uint64(cfg.MaxRetries)),
	}
}

// NextDelay returns the next delay, or false once retries are exhausted.
func (r *Retrier) NextDelay() (time.Duration, bool) {
	d := r.policy.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	r.attempts++
	return d, true
}

// Attempts returns the number of delays handed out.
func (r *Retrier) Attempts() int {
	return r.attempts
}

// Reset restarts the schedule.
func (r *Retrier) Reset() {
	r.policy.Reset()
	r.attempts = 0
}
