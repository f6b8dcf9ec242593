// ABOUTME: Watch mode configuration for periodic cache refresh
// ABOUTME: Configures interval, kinds, and retry backoff settings

package config

import "time"

// RefreshConfig configures the periodic refresh service.
type RefreshConfig struct {
	// Interval is how often each kind is checked.
	Interval time.Duration `yaml:"interval"`

	// Kinds lists the artifact kinds refreshed by watch mode.
	Kinds []string `yaml:"kinds"`

	// Retry configures retry behavior for failed refreshes.
	// If nil, uses DefaultRetryConfig().
	Retry *RetryConfig `yaml:"retry,omitempty"`
}

// GetRetry returns the retry configuration, using defaults if not set.
func (c *RefreshConfig) GetRetry() RetryConfig {
	if c.Retry != nil {
		return *c.Retry
	}
	return DefaultRetryConfig()
}

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier is the exponential backoff multiplier.
	Multiplier float64 `yaml:"multiplier"`

	// JitterFraction is the fraction of delay to randomize (0-1).
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// DefaultRefreshConfig returns a RefreshConfig with sensible defaults.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval: 6 * time.Hour,
		Kinds:    []string{KindPackages, KindOptions},
		Retry:    nil, // Uses DefaultRetryConfig via GetRetry().
	}
}

// DefaultRetryConfig returns default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialDelay:   30 * time.Second,
		MaxDelay:       30 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}
